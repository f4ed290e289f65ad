package handler

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"tenderdocs/internal/auth"
	"tenderdocs/internal/domain"
	"tenderdocs/internal/service"
)

// UploadManager - операции над сессиями загрузки
type UploadManager interface {
	Initiate(ctx context.Context, in service.InitiateInput) (*service.InitiateResult, error)
	Complete(ctx context.Context, in service.CompleteInput) (*domain.FileSummary, error)
	Abort(ctx context.Context, in service.AbortInput) error
}

// SubmissionManager - статус и отправка заявки
type SubmissionManager interface {
	Status(ctx context.Context, tenderID uuid.UUID, userID string) (*domain.UploadStatus, error)
	Submit(ctx context.Context, tenderID uuid.UUID, userID string) (*service.SubmitResult, error)
}

type UploadHandler struct {
	uploads     UploadManager
	submissions SubmissionManager
	validate    *validator.Validate
	resp        *Responder
}

type initiateRequest struct {
	TenderID      string `json:"tenderId" validate:"required,uuid"`
	QuestionID    string `json:"questionId" validate:"required,max=64"`
	FileName      string `json:"fileName" validate:"required,max=255"`
	FileSizeBytes int64  `json:"fileSizeBytes" validate:"required,gt=0"`
	ContentType   string `json:"contentType" validate:"max=255"`
}

type completeRequest struct {
	TenderID        string                 `json:"tenderId" validate:"required,uuid"`
	UploadSessionID string                 `json:"uploadSessionId" validate:"required,uuid"`
	Parts           []domain.CompletedPart `json:"parts"`
	ETag            string                 `json:"etag" validate:"max=128"`
}

type abortRequest struct {
	TenderID        string `json:"tenderId" validate:"required,uuid"`
	UploadSessionID string `json:"uploadSessionId" validate:"required,uuid"`
}

type submitRequest struct {
	TenderID string `json:"tenderId" validate:"required,uuid"`
}

func NewUploadHandler(uploads UploadManager, submissions SubmissionManager, resp *Responder) *UploadHandler {
	return &UploadHandler{
		uploads:     uploads,
		submissions: submissions,
		validate:    newValidator(),
		resp:        resp,
	}
}

// Initiate открывает сессию загрузки
func (h *UploadHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())

	var req initiateRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		h.resp.Fail(w, r, err)
		return
	}

	result, err := h.uploads.Initiate(r.Context(), service.InitiateInput{
		TenderID:      uuid.MustParse(req.TenderID),
		QuestionID:    req.QuestionID,
		FileName:      req.FileName,
		FileSizeBytes: req.FileSizeBytes,
		ContentType:   req.ContentType,
		UserID:        identity.UserID,
	})
	if err != nil {
		h.resp.Fail(w, r, err)
		return
	}

	h.resp.OK(w, http.StatusCreated, result)
}

// Complete завершает загрузку и делает файл активным для вопроса
func (h *UploadHandler) Complete(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())

	var req completeRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		h.resp.Fail(w, r, err)
		return
	}

	summary, err := h.uploads.Complete(r.Context(), service.CompleteInput{
		TenderID:        uuid.MustParse(req.TenderID),
		UploadSessionID: uuid.MustParse(req.UploadSessionID),
		UserID:          identity.UserID,
		Parts:           req.Parts,
		ETag:            req.ETag,
	})
	if err != nil {
		h.resp.Fail(w, r, err)
		return
	}

	h.resp.OK(w, http.StatusOK, summary)
}

func (h *UploadHandler) Abort(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())

	var req abortRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		h.resp.Fail(w, r, err)
		return
	}

	err := h.uploads.Abort(r.Context(), service.AbortInput{
		TenderID:        uuid.MustParse(req.TenderID),
		UploadSessionID: uuid.MustParse(req.UploadSessionID),
		UserID:          identity.UserID,
	})
	if err != nil {
		h.resp.Fail(w, r, err)
		return
	}

	h.resp.OK(w, http.StatusOK, map[string]bool{"aborted": true})
}

func (h *UploadHandler) Status(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())

	tenderID, err := uuid.Parse(r.URL.Query().Get("tenderId"))
	if err != nil {
		h.resp.Fail(w, r, &service.Error{Code: service.CodeInvalidInput, Message: "tenderId query parameter must be a valid id", Err: err})
		return
	}

	status, err := h.submissions.Status(r.Context(), tenderID, identity.UserID)
	if err != nil {
		h.resp.Fail(w, r, err)
		return
	}

	h.resp.OK(w, http.StatusOK, status)
}

func (h *UploadHandler) Submit(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.FromContext(r.Context())

	var req submitRequest
	if err := decodeAndValidate(r, h.validate, &req); err != nil {
		h.resp.Fail(w, r, err)
		return
	}

	result, err := h.submissions.Submit(r.Context(), uuid.MustParse(req.TenderID), identity.UserID)
	if err != nil {
		h.resp.Fail(w, r, err)
		return
	}

	h.resp.OK(w, http.StatusOK, result)
}
