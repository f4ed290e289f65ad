package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"tenderdocs/internal/domain"
)

type TenderRepository struct {
	db *sqlx.DB
}

func NewTenderRepository(db *sqlx.DB) *TenderRepository {
	return &TenderRepository{db: db}
}

func (r *TenderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tender, error) {
	var tender domain.Tender
	query := `SELECT id, title, active, closes_at, created_at FROM tenders WHERE id = $1`

	if err := r.db.GetContext(ctx, &tender, query, id); err != nil {
		return nil, err
	}

	return &tender, nil
}
