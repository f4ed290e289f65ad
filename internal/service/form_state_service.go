package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tenderdocs/internal/domain"
)

// FormStateService хранит заявленное клиентом состояние формы заявки
type FormStateService struct {
	submissions SubmissionRepository
	states      FormStateRepository
	logger      zerolog.Logger
}

func NewFormStateService(submissions SubmissionRepository, states FormStateRepository, logger zerolog.Logger) *FormStateService {
	return &FormStateService{
		submissions: submissions,
		states:      states,
		logger:      logger.With().Str("component", "form_state_service").Logger(),
	}
}

func (s *FormStateService) Get(ctx context.Context, submissionID uuid.UUID, userID string) (*domain.FormState, error) {
	if _, err := s.ownedSubmission(ctx, submissionID, userID); err != nil {
		return nil, err
	}

	state, err := s.states.Get(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			empty := domain.NewFormState()
			return &empty, nil
		}
		return nil, internal("get form state", err)
	}

	normalizeFormState(state)
	return state, nil
}

func (s *FormStateService) Save(ctx context.Context, submissionID uuid.UUID, userID string, state *domain.FormState) error {
	submission, err := s.ownedSubmission(ctx, submissionID, userID)
	if err != nil {
		return err
	}
	if !submission.IsDraft() {
		return newError(CodeAlreadySubmitted, "submission has already been submitted")
	}
	if err := ValidateFormState(state); err != nil {
		return err
	}

	normalizeFormState(state)
	if err := s.states.Save(ctx, submissionID, userID, state); err != nil {
		return internal("save form state", err)
	}

	s.logger.Debug().Str("submission_id", submissionID.String()).Msg("form state saved")
	return nil
}

func (s *FormStateService) ownedSubmission(ctx context.Context, submissionID uuid.UUID, userID string) (*domain.Submission, error) {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("submission")
		}
		return nil, internal("get submission", err)
	}
	if submission.UserID != userID {
		return nil, newError(CodeForbidden, "submission belongs to another user")
	}
	return submission, nil
}

// ValidateFormState проверяет версию формата, идентификаторы вопросов и их вид
func ValidateFormState(state *domain.FormState) error {
	if state == nil {
		return invalidInput("form state is required")
	}
	if state.Version != domain.FormStateVersion {
		return invalidInput("unsupported form state version %d", state.Version)
	}

	for questionID, d := range state.SingleUploads {
		q, ok := domain.LookupQuestion(questionID)
		if !ok {
			return invalidInput("unknown question %q", questionID)
		}
		if q.Kind != domain.QuestionSingle {
			return invalidInput("question %s accepts multiple files", questionID)
		}
		if strings.TrimSpace(d.FileID) == "" {
			return invalidInput("file id is required for %s", questionID)
		}
	}
	for questionID, list := range state.MultiUploads {
		q, ok := domain.LookupQuestion(questionID)
		if !ok {
			return invalidInput("unknown question %q", questionID)
		}
		if q.Kind != domain.QuestionMulti {
			return invalidInput("question %s accepts a single file", questionID)
		}
		for _, d := range list {
			if strings.TrimSpace(d.FileID) == "" {
				return invalidInput("file id is required for %s", questionID)
			}
		}
	}
	return nil
}

func normalizeFormState(state *domain.FormState) {
	if state.SingleUploads == nil {
		state.SingleUploads = map[string]domain.FileDescriptor{}
	}
	if state.MultiUploads == nil {
		state.MultiUploads = map[string][]domain.FileDescriptor{}
	}
	for id, list := range state.MultiUploads {
		if len(list) == 0 {
			delete(state.MultiUploads, id)
		}
	}
}
