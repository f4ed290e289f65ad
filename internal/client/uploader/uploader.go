// Package uploader загружает файл напрямую в хранилище по presigned-ссылкам:
// делит его на части, грузит их пулом воркеров с повторами и подтверждает загрузку на сервере.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tenderdocs/internal/client/api"
	"tenderdocs/internal/domain"
)

const (
	defaultConcurrency    = 5
	defaultMaxRetries     = 3
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 4 * time.Second
	abortTimeout          = 15 * time.Second
	sniffLen              = 3072
)

var (
	ErrEmptyFile              = errors.New("file is empty")
	ErrFileTooLarge           = errors.New("file exceeds the size limit for this question")
	ErrContentTypeNotAllowed  = errors.New("file type is not allowed for this question")
	ErrMissingETag            = errors.New("storage response has no ETag")
	ErrUnexpectedSessionShape = errors.New("upload session does not match the file")
)

// API - операции сервера, нужные загрузчику
type API interface {
	Initiate(ctx context.Context, req api.InitiateRequest) (*api.Session, error)
	Complete(ctx context.Context, req api.CompleteRequest) (*domain.FileSummary, error)
	Abort(ctx context.Context, req api.AbortRequest) error
}

type Config struct {
	Concurrency    int
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultConfig() Config {
	return Config{
		Concurrency:    defaultConcurrency,
		MaxRetries:     defaultMaxRetries,
		InitialBackoff: defaultInitialBackoff,
		MaxBackoff:     defaultMaxBackoff,
	}
}

// File - источник данных для загрузки. ContentType можно не указывать.
type File struct {
	Name        string
	Size        int64
	ContentType string
	Reader      io.ReaderAt
}

type Request struct {
	TenderID   uuid.UUID
	Question   domain.Question
	File       File
	OnProgress func(percent int)
}

type Uploader struct {
	api        API
	httpClient *http.Client
	cfg        Config
	logger     zerolog.Logger
}

func New(client API, httpClient *http.Client, cfg Config, logger zerolog.Logger) *Uploader {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	return &Uploader{
		api:        client,
		httpClient: httpClient,
		cfg:        cfg,
		logger:     logger.With().Str("component", "uploader").Logger(),
	}
}

// Upload загружает файл и возвращает запись, подтвержденную сервером.
// При любой ошибке после initiate отправляется abort.
func (u *Uploader) Upload(ctx context.Context, req Request) (*domain.FileSummary, error) {
	contentType, err := checkFile(req.Question, &req.File)
	if err != nil {
		return nil, err
	}

	session, err := u.api.Initiate(ctx, api.InitiateRequest{
		TenderID:      req.TenderID,
		QuestionID:    req.Question.ID,
		FileName:      req.File.Name,
		FileSizeBytes: req.File.Size,
		ContentType:   contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initiate upload: %w", err)
	}

	logger := u.logger.With().
		Str("upload_session_id", session.UploadSessionID.String()).
		Str("question_id", req.Question.ID).
		Int("total_parts", session.TotalParts).
		Logger()

	progress := newProgress(session.TotalParts, req.OnProgress)
	progress.start()

	complete := api.CompleteRequest{TenderID: req.TenderID, UploadSessionID: session.UploadSessionID}
	if session.IsSinglePart() {
		complete.ETag, err = u.putWithRetry(ctx, logger, session.URL, contentType, req.File.Reader, 0, req.File.Size)
		if err == nil {
			progress.partDone()
		}
	} else {
		complete.Parts, err = u.uploadParts(ctx, logger, session, req.File, progress)
	}
	if err != nil {
		u.abort(ctx, logger, req.TenderID, session.UploadSessionID)
		return nil, err
	}

	summary, err := u.api.Complete(ctx, complete)
	if err != nil {
		u.abort(ctx, logger, req.TenderID, session.UploadSessionID)
		return nil, fmt.Errorf("failed to complete upload: %w", err)
	}

	progress.finish()
	logger.Info().Str("file_id", summary.FileID.String()).Msg("upload completed")
	return summary, nil
}

// abort выполняется и после отмены ctx
func (u *Uploader) abort(ctx context.Context, logger zerolog.Logger, tenderID, sessionID uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), abortTimeout)
	defer cancel()

	if err := u.api.Abort(ctx, api.AbortRequest{TenderID: tenderID, UploadSessionID: sessionID}); err != nil {
		logger.Warn().Err(err).Msg("failed to abort upload session")
		return
	}
	logger.Info().Msg("upload session aborted")
}

// checkFile проверяет ограничения вопроса до любых сетевых вызовов
func checkFile(question domain.Question, file *File) (string, error) {
	if file.Size < 1 {
		return "", ErrEmptyFile
	}
	if question.MaxSizeBytes > 0 && file.Size > question.MaxSizeBytes {
		return "", fmt.Errorf("%w: %d > %d bytes", ErrFileTooLarge, file.Size, question.MaxSizeBytes)
	}

	contentType := file.ContentType
	if contentType == "" {
		contentType = sniffContentType(file.Reader, file.Size)
	}
	if !question.AllowsContentType(contentType) {
		return "", fmt.Errorf("%w: %s", ErrContentTypeNotAllowed, contentType)
	}
	return contentType, nil
}

func sniffContentType(r io.ReaderAt, size int64) string {
	buf := make([]byte, min(size, sniffLen))
	n, err := r.ReadAt(buf, 0)
	if n == 0 && err != nil {
		return "application/octet-stream"
	}
	return mimetype.Detect(buf[:n]).String()
}
