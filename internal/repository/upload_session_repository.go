package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"tenderdocs/internal/domain"
)

type UploadSessionRepository struct {
	db *sqlx.DB
}

func NewUploadSessionRepository(db *sqlx.DB) *UploadSessionRepository {
	return &UploadSessionRepository{db: db}
}

func (r *UploadSessionRepository) Create(ctx context.Context, session *domain.UploadSession) error {
	query := `
        INSERT INTO upload_sessions (
            id, tender_id, submission_id, user_id, question_id,
            file_name, file_size_bytes, content_type, object_key, provider_upload_id,
            part_size_bytes, total_parts, expires_at, status
        )
        VALUES (
            :id, :tender_id, :submission_id, :user_id, :question_id,
            :file_name, :file_size_bytes, :content_type, :object_key, :provider_upload_id,
            :part_size_bytes, :total_parts, :expires_at, :status
        )`

	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("failed to create upload session: %w", err)
	}

	return nil
}

func (r *UploadSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.UploadSession, error) {
	var session domain.UploadSession
	query := `SELECT * FROM upload_sessions WHERE id = $1`

	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}

	return &session, nil
}

// MarkAborted переводит сессию из initiated в aborted.
// ErrStatusConflict означает, что сессия уже завершена или отменена.
func (r *UploadSessionRepository) MarkAborted(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
        UPDATE upload_sessions
        SET status = 'aborted', aborted_at = $2
        WHERE id = $1 AND status = 'initiated'`

	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to abort upload session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return ErrStatusConflict
	}

	return nil
}

// ListExpiredInitiated возвращает не завершенные сессии с истекшим сроком.
// Сессии отправленных заявок не возвращаются: отправленная заявка не меняется.
func (r *UploadSessionRepository) ListExpiredInitiated(ctx context.Context, now time.Time, limit int) ([]domain.UploadSession, error) {
	var sessions []domain.UploadSession
	query := `
        SELECT us.* FROM upload_sessions us
        JOIN submissions s ON s.id = us.submission_id
        WHERE us.status = 'initiated' AND us.expires_at <= $1 AND s.status = 'draft'
        ORDER BY us.expires_at
        LIMIT $2`

	if err := r.db.SelectContext(ctx, &sessions, query, now, limit); err != nil {
		return nil, fmt.Errorf("failed to list expired upload sessions: %w", err)
	}

	return sessions, nil
}
