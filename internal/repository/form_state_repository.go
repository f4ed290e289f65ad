package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"tenderdocs/internal/domain"
)

type FormStateRepository struct {
	db *sqlx.DB
}

func NewFormStateRepository(db *sqlx.DB) *FormStateRepository {
	return &FormStateRepository{db: db}
}

// Get возвращает сохраненное состояние формы. sql.ErrNoRows, если его еще нет.
func (r *FormStateRepository) Get(ctx context.Context, submissionID uuid.UUID) (*domain.FormState, error) {
	var payload []byte
	query := `SELECT payload FROM form_states WHERE submission_id = $1`

	if err := r.db.GetContext(ctx, &payload, query, submissionID); err != nil {
		return nil, err
	}

	var state domain.FormState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("failed to decode form state: %w", err)
	}

	return &state, nil
}

func (r *FormStateRepository) Save(ctx context.Context, submissionID uuid.UUID, userID string, state *domain.FormState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode form state: %w", err)
	}

	query := `
        INSERT INTO form_states (submission_id, user_id, payload, updated_at)
        VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
        ON CONFLICT (submission_id) DO UPDATE
        SET payload = EXCLUDED.payload, updated_at = CURRENT_TIMESTAMP`

	if _, err := r.db.ExecContext(ctx, query, submissionID, userID, payload); err != nil {
		return fmt.Errorf("failed to save form state: %w", err)
	}

	return nil
}
