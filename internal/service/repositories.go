package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tenderdocs/internal/domain"
)

// Интерфейсы хранилищ, которые нужны сервисам. Реализации в пакете repository.

type TenderRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Tender, error)
}

type SubmissionRepository interface {
	GetOrCreateDraft(ctx context.Context, tenderID uuid.UUID, userID string) (*domain.Submission, error)
	GetByTenderAndUser(ctx context.Context, tenderID uuid.UUID, userID string) (*domain.Submission, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Submission, error)
	MarkSubmitted(ctx context.Context, id uuid.UUID, at time.Time) error
}

type UploadSessionRepository interface {
	Create(ctx context.Context, session *domain.UploadSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.UploadSession, error)
	MarkAborted(ctx context.Context, id uuid.UUID, at time.Time) error
	ListExpiredInitiated(ctx context.Context, now time.Time, limit int) ([]domain.UploadSession, error)
}

type UploadedFileRepository interface {
	Finalize(ctx context.Context, file *domain.UploadedFile) error
	ListActiveBySubmission(ctx context.Context, submissionID uuid.UUID) ([]domain.UploadedFile, error)
}

type FormStateRepository interface {
	Get(ctx context.Context, submissionID uuid.UUID) (*domain.FormState, error)
	Save(ctx context.Context, submissionID uuid.UUID, userID string, state *domain.FormState) error
}
