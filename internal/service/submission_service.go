package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tenderdocs/internal/cache"
	"tenderdocs/internal/domain"
	"tenderdocs/internal/repository"
)

// SubmissionService отдает состояние заявки и выполняет ее отправку
type SubmissionService struct {
	tenders     TenderRepository
	submissions SubmissionRepository
	files       UploadedFileRepository
	cache       cache.StatusCache
	logger      zerolog.Logger
	now         func() time.Time
}

func NewSubmissionService(
	tenders TenderRepository,
	submissions SubmissionRepository,
	files UploadedFileRepository,
	statusCache cache.StatusCache,
	logger zerolog.Logger,
) *SubmissionService {
	if statusCache == nil {
		statusCache = cache.NullStatusCache{}
	}
	return &SubmissionService{
		tenders:     tenders,
		submissions: submissions,
		files:       files,
		cache:       statusCache,
		logger:      logger.With().Str("component", "submission_service").Logger(),
		now:         time.Now,
	}
}

type SubmitResult struct {
	Status      domain.SubmissionStatus `json:"status"`
	SubmittedAt time.Time               `json:"submittedAt"`
}

// Status возвращает статус заявки и активный файл (или nil) по каждому вопросу каталога
func (s *SubmissionService) Status(ctx context.Context, tenderID uuid.UUID, userID string) (*domain.UploadStatus, error) {
	if cached, ok := s.cache.Get(ctx, tenderID, userID); ok {
		return cached, nil
	}

	if _, err := s.tenders.GetByID(ctx, tenderID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("tender")
		}
		return nil, internal("get tender", err)
	}

	status := &domain.UploadStatus{
		Submission: domain.SubmissionState{Status: domain.SubmissionDraft},
		Uploads:    make(map[string]*domain.FileSummary),
	}
	for _, q := range domain.Questions() {
		status.Uploads[q.ID] = nil
	}

	submission, err := s.submissions.GetByTenderAndUser(ctx, tenderID, userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.cache.Set(ctx, tenderID, userID, status)
		return status, nil
	case err != nil:
		return nil, internal("get submission", err)
	}

	status.Submission = domain.SubmissionState{ID: &submission.ID, Status: submission.Status, SubmittedAt: submission.SubmittedAt}

	files, err := s.files.ListActiveBySubmission(ctx, submission.ID)
	if err != nil {
		return nil, internal("list active files", err)
	}
	for i := range files {
		if _, known := status.Uploads[files[i].QuestionID]; !known {
			continue
		}
		summary := files[i].Summary()
		status.Uploads[files[i].QuestionID] = &summary
	}

	s.cache.Set(ctx, tenderID, userID, status)
	return status, nil
}

// Submit отправляет заявку, если у каждого обязательного вопроса есть активный файл.
// Ошибка перечисляет все недостающие вопросы сразу.
func (s *SubmissionService) Submit(ctx context.Context, tenderID uuid.UUID, userID string) (*SubmitResult, error) {
	now := s.now()

	// Повторная отправка получает ALREADY_SUBMITTED и после закрытия тендера
	submission, err := s.submissions.GetByTenderAndUser(ctx, tenderID, userID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		submission = nil
	case err != nil:
		return nil, internal("get submission", err)
	case !submission.IsDraft():
		return nil, newError(CodeAlreadySubmitted, "submission has already been submitted")
	}

	if err := checkTender(ctx, s.tenders, tenderID, now); err != nil {
		return nil, err
	}
	if submission == nil {
		return nil, missingRequired(domain.RequiredQuestionIDs())
	}

	files, err := s.files.ListActiveBySubmission(ctx, submission.ID)
	if err != nil {
		return nil, internal("list active files", err)
	}
	if missing := MissingRequired(files); len(missing) > 0 {
		return nil, missingRequired(missing)
	}

	if err := s.submissions.MarkSubmitted(ctx, submission.ID, now); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, newError(CodeAlreadySubmitted, "submission has already been submitted")
		}
		return nil, internal("mark submitted", err)
	}

	s.cache.Invalidate(ctx, tenderID, userID)

	s.logger.Info().
		Str("submission_id", submission.ID.String()).
		Str("tender_id", tenderID.String()).
		Msg("submission submitted")

	return &SubmitResult{Status: domain.SubmissionSubmitted, SubmittedAt: now}, nil
}

// MissingRequired возвращает обязательные вопросы без активного файла в порядке каталога
func MissingRequired(active []domain.UploadedFile) []string {
	have := make(map[string]bool, len(active))
	for _, f := range active {
		if f.Active {
			have[f.QuestionID] = true
		}
	}

	var missing []string
	for _, id := range domain.RequiredQuestionIDs() {
		if !have[id] {
			missing = append(missing, id)
		}
	}
	return missing
}

func missingRequired(ids []string) *Error {
	return &Error{
		Code:    CodeMissingRequiredUploads,
		Message: "required uploads are missing: " + strings.Join(ids, ", "),
		Details: map[string]any{"missingQuestionIds": ids},
	}
}
