package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"tenderdocs/internal/auth"
	"tenderdocs/internal/domain"
	"tenderdocs/internal/service"
)

// FormStateManager - чтение и запись сохраненного состояния формы
type FormStateManager interface {
	Get(ctx context.Context, submissionID uuid.UUID, userID string) (*domain.FormState, error)
	Save(ctx context.Context, submissionID uuid.UUID, userID string, state *domain.FormState) error
}

type FormStateHandler struct {
	states FormStateManager
	resp   *Responder
}

func NewFormStateHandler(states FormStateManager, resp *Responder) *FormStateHandler {
	return &FormStateHandler{states: states, resp: resp}
}

func (h *FormStateHandler) GetState(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())

	submissionID, err := submissionIDParam(r)
	if err != nil {
		h.resp.Fail(w, r, err)
		return
	}

	state, err := h.states.Get(r.Context(), submissionID, identity.UserID)
	if err != nil {
		h.resp.Fail(w, r, err)
		return
	}

	h.resp.OK(w, http.StatusOK, state)
}

func (h *FormStateHandler) SaveState(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())

	submissionID, err := submissionIDParam(r)
	if err != nil {
		h.resp.Fail(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFormStateBytes)
	var state domain.FormState
	if err := decodeJSON(r, &state); err != nil {
		h.resp.Fail(w, r, err)
		return
	}

	if err := h.states.Save(r.Context(), submissionID, identity.UserID, &state); err != nil {
		h.resp.Fail(w, r, err)
		return
	}

	h.resp.OK(w, http.StatusOK, map[string]bool{"saved": true})
}

const maxFormStateBytes = 1 << 20

func submissionIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "submissionId"))
	if err != nil {
		return uuid.Nil, &service.Error{Code: service.CodeInvalidInput, Message: "submission id must be a valid id", Err: err}
	}
	return id, nil
}
