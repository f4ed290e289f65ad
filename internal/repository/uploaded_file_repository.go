package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"tenderdocs/internal/domain"
)

type UploadedFileRepository struct {
	db *sqlx.DB
}

func NewUploadedFileRepository(db *sqlx.DB) *UploadedFileRepository {
	return &UploadedFileRepository{db: db}
}

// Finalize в одной транзакции завершает сессию, деактивирует прежний активный
// файл вопроса и вставляет новый. Переход статуса сессии условный:
// если она уже не initiated, транзакция откатывается с ErrStatusConflict.
func (r *UploadedFileRepository) Finalize(ctx context.Context, file *domain.UploadedFile) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
        UPDATE upload_sessions
        SET status = 'completed', completed_at = $2
        WHERE id = $1 AND status = 'initiated'`,
		file.UploadSessionID, file.UploadedAt)
	if err != nil {
		return fmt.Errorf("failed to complete upload session: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return ErrStatusConflict
	}

	// Прежний файл не удаляется, только деактивируется
	_, err = tx.ExecContext(ctx, `
        UPDATE uploaded_files
        SET active = FALSE, deactivated_at = $3
        WHERE submission_id = $1 AND question_id = $2 AND active`,
		file.SubmissionID, file.QuestionID, file.UploadedAt)
	if err != nil {
		return fmt.Errorf("failed to deactivate previous file: %w", err)
	}

	file.Active = true
	_, err = tx.NamedExecContext(ctx, `
        INSERT INTO uploaded_files (
            id, tender_id, submission_id, user_id, question_id, upload_session_id,
            object_key, file_name, file_size_bytes, content_type, etag, uploaded_at, active
        )
        VALUES (
            :id, :tender_id, :submission_id, :user_id, :question_id, :upload_session_id,
            :object_key, :file_name, :file_size_bytes, :content_type, :etag, :uploaded_at, :active
        )`, file)
	if err != nil {
		// Параллельное завершение другой сессии того же вопроса
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrStatusConflict
		}
		return fmt.Errorf("failed to insert uploaded file: %w", err)
	}

	return tx.Commit()
}

func (r *UploadedFileRepository) ListActiveBySubmission(ctx context.Context, submissionID uuid.UUID) ([]domain.UploadedFile, error) {
	var files []domain.UploadedFile
	query := `
        SELECT * FROM uploaded_files
        WHERE submission_id = $1 AND active
        ORDER BY question_id`

	if err := r.db.SelectContext(ctx, &files, query, submissionID); err != nil {
		return nil, fmt.Errorf("failed to list active files: %w", err)
	}

	return files, nil
}
