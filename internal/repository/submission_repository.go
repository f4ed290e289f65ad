package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"tenderdocs/internal/domain"
)

const submissionColumns = `id, tender_id, user_id, status, submitted_at, created_at`

type SubmissionRepository struct {
	db *sqlx.DB
}

func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// GetOrCreateDraft возвращает заявку пользователя на тендер, создавая черновик при отсутствии.
// Существующая заявка возвращается в любом статусе, проверку статуса делает сервис.
func (r *SubmissionRepository) GetOrCreateDraft(ctx context.Context, tenderID uuid.UUID, userID string) (*domain.Submission, error) {
	query := `
        INSERT INTO submissions (id, tender_id, user_id, status)
        VALUES ($1, $2, $3, 'draft')
        ON CONFLICT (tender_id, user_id) DO UPDATE SET tender_id = EXCLUDED.tender_id
        RETURNING ` + submissionColumns

	var submission domain.Submission
	if err := r.db.GetContext(ctx, &submission, query, uuid.New(), tenderID, userID); err != nil {
		return nil, fmt.Errorf("failed to get or create submission: %w", err)
	}

	return &submission, nil
}

func (r *SubmissionRepository) GetByTenderAndUser(ctx context.Context, tenderID uuid.UUID, userID string) (*domain.Submission, error) {
	var submission domain.Submission
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE tender_id = $1 AND user_id = $2`

	if err := r.db.GetContext(ctx, &submission, query, tenderID, userID); err != nil {
		return nil, err
	}

	return &submission, nil
}

func (r *SubmissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Submission, error) {
	var submission domain.Submission
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = $1`

	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		return nil, err
	}

	return &submission, nil
}

// MarkSubmitted переводит черновик в статус submitted.
// Если заявка уже отправлена, возвращает ErrStatusConflict.
func (r *SubmissionRepository) MarkSubmitted(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
        UPDATE submissions
        SET status = 'submitted', submitted_at = $2
        WHERE id = $1 AND status = 'draft'`

	result, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark submission submitted: %w", err)
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
