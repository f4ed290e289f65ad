package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tenderdocs/internal/cache"
	"tenderdocs/internal/config"
	"tenderdocs/internal/domain"
	"tenderdocs/internal/repository"
	"tenderdocs/internal/service/s3"
)

const defaultContentType = "application/octet-stream"

// UploadService управляет жизненным циклом сессий загрузки
type UploadService struct {
	tenders     TenderRepository
	submissions SubmissionRepository
	sessions    UploadSessionRepository
	files       UploadedFileRepository
	storage     s3.Storage
	cache       cache.StatusCache
	cfg         config.UploadConfig
	logger      zerolog.Logger
	now         func() time.Time
}

func NewUploadService(
	tenders TenderRepository,
	submissions SubmissionRepository,
	sessions UploadSessionRepository,
	files UploadedFileRepository,
	storage s3.Storage,
	statusCache cache.StatusCache,
	cfg config.UploadConfig,
	logger zerolog.Logger,
) *UploadService {
	if statusCache == nil {
		statusCache = cache.NullStatusCache{}
	}
	return &UploadService{
		tenders:     tenders,
		submissions: submissions,
		sessions:    sessions,
		files:       files,
		storage:     storage,
		cache:       statusCache,
		cfg:         cfg,
		logger:      logger.With().Str("component", "upload_service").Logger(),
		now:         time.Now,
	}
}

type InitiateInput struct {
	TenderID      uuid.UUID
	QuestionID    string
	FileName      string
	FileSizeBytes int64
	ContentType   string
	UserID        string
}

type InitiateResult struct {
	UploadSessionID  uuid.UUID              `json:"uploadSessionId"`
	ProviderUploadID string                 `json:"providerUploadId"`
	ObjectKey        string                 `json:"objectKey"`
	PartSizeBytes    int64                  `json:"partSizeBytes"`
	TotalParts       int                    `json:"totalParts"`
	ExpiresAt        time.Time              `json:"expiresAt"`
	Parts            []domain.PresignedPart `json:"parts,omitempty"`
	URL              string                 `json:"url,omitempty"`
}

type CompleteInput struct {
	TenderID        uuid.UUID
	UploadSessionID uuid.UUID
	UserID          string
	Parts           []domain.CompletedPart
	ETag            string
}

type AbortInput struct {
	TenderID        uuid.UUID
	UploadSessionID uuid.UUID
	UserID          string
}

// TotalParts считает количество частей: ceil(size / partSize)
func TotalParts(size, partSize int64) int {
	if size <= 0 || partSize <= 0 {
		return 0
	}
	return int((size + partSize - 1) / partSize)
}

// Initiate открывает сессию загрузки и выдает presigned-ссылки
func (s *UploadService) Initiate(ctx context.Context, in InitiateInput) (*InitiateResult, error) {
	question, ok := domain.LookupQuestion(in.QuestionID)
	if !ok {
		return nil, invalidInput("unknown question %q", in.QuestionID)
	}
	if strings.TrimSpace(in.FileName) == "" {
		return nil, invalidInput("file name is required")
	}
	if in.FileSizeBytes < 1 || in.FileSizeBytes > s.cfg.MaxFileSize() {
		return nil, invalidInput("file size must be between 1 and %d bytes", s.cfg.MaxFileSize())
	}
	if question.MaxSizeBytes > 0 && in.FileSizeBytes > question.MaxSizeBytes {
		return nil, invalidInput("file size exceeds the %d bytes limit for %s", question.MaxSizeBytes, question.ID)
	}
	contentType := strings.TrimSpace(in.ContentType)
	if contentType == "" {
		contentType = defaultContentType
	}
	if !question.AllowsContentType(contentType) {
		return nil, invalidInput("content type %s is not accepted for %s", contentType, question.ID)
	}

	totalParts := TotalParts(in.FileSizeBytes, s.cfg.PartSizeBytes)
	if totalParts > s.cfg.MaxParts {
		return nil, invalidInput("file requires %d parts, the limit is %d", totalParts, s.cfg.MaxParts)
	}

	now := s.now()
	if err := s.checkTender(ctx, in.TenderID, now); err != nil {
		return nil, err
	}

	submission, err := s.submissions.GetOrCreateDraft(ctx, in.TenderID, in.UserID)
	if err != nil {
		return nil, internal("get or create submission", err)
	}
	if !submission.IsDraft() {
		return nil, newError(CodeAlreadySubmitted, "submission has already been submitted")
	}

	session := &domain.UploadSession{
		ID:            uuid.New(),
		TenderID:      in.TenderID,
		SubmissionID:  submission.ID,
		UserID:        in.UserID,
		QuestionID:    question.ID,
		FileName:      strings.TrimSpace(in.FileName),
		FileSizeBytes: in.FileSizeBytes,
		ContentType:   contentType,
		ObjectKey:     buildObjectKey(submission.ID, question.ID, now, in.FileName),
		PartSizeBytes: s.cfg.PartSizeBytes,
		TotalParts:    totalParts,
		ExpiresAt:     now.Add(s.cfg.SessionTTL),
		Status:        domain.UploadSessionInitiated,
	}

	urlExpiry := now.Add(s.cfg.PresignTTL)
	if urlExpiry.After(session.ExpiresAt) {
		urlExpiry = session.ExpiresAt
	}
	presignTTL := urlExpiry.Sub(now)

	result := &InitiateResult{
		UploadSessionID: session.ID,
		ObjectKey:       session.ObjectKey,
		PartSizeBytes:   session.PartSizeBytes,
		TotalParts:      session.TotalParts,
		ExpiresAt:       session.ExpiresAt,
	}

	storageCtx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()

	if in.FileSizeBytes <= s.cfg.SinglePartThreshold {
		url, err := s.storage.PresignPutObject(storageCtx, session.ObjectKey, contentType, presignTTL)
		if err != nil {
			return nil, storageError(err)
		}
		result.URL = url
	} else {
		uploadID, err := s.storage.CreateMultipartUpload(storageCtx, session.ObjectKey, contentType)
		if err != nil {
			return nil, storageError(err)
		}
		session.ProviderUploadID = uploadID
		result.ProviderUploadID = uploadID

		parts, err := s.presignParts(storageCtx, session, presignTTL, urlExpiry)
		if err != nil {
			s.abortProviderUpload(session)
			return nil, storageError(err)
		}
		result.Parts = parts
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		s.abortProviderUpload(session)
		return nil, internal("create upload session", err)
	}

	s.logger.Info().
		Str("upload_session_id", session.ID.String()).
		Str("question_id", session.QuestionID).
		Int64("file_size_bytes", session.FileSizeBytes).
		Int("total_parts", session.TotalParts).
		Msg("upload session initiated")

	return result, nil
}

func (s *UploadService) presignParts(ctx context.Context, session *domain.UploadSession, ttl time.Duration, expiresAt time.Time) ([]domain.PresignedPart, error) {
	parts := make([]domain.PresignedPart, 0, session.TotalParts)
	for n := 1; n <= session.TotalParts; n++ {
		url, err := s.storage.PresignUploadPart(ctx, session.ObjectKey, session.ProviderUploadID, n, ttl)
		if err != nil {
			return nil, err
		}
		parts = append(parts, domain.PresignedPart{PartNumber: n, URL: url, ExpiresAt: expiresAt})
	}
	return parts, nil
}

// abortProviderUpload освобождает многочастную загрузку у провайдера после
// неудачной инициализации. Ошибка только логируется.
func (s *UploadService) abortProviderUpload(session *domain.UploadSession) {
	if !session.IsMultipart() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.StorageTimeout)
	defer cancel()

	if err := s.storage.AbortMultipartUpload(ctx, session.ObjectKey, session.ProviderUploadID); err != nil && !s3.IsNotFound(err) {
		s.logger.Warn().Err(err).Str("object_key", session.ObjectKey).Msg("failed to abort provider upload")
	}
}

// Complete проверяет части, завершает загрузку в хранилище и делает файл активным
func (s *UploadService) Complete(ctx context.Context, in CompleteInput) (*domain.FileSummary, error) {
	now := s.now()

	session, err := s.loadSession(ctx, in.UploadSessionID, in.TenderID, in.UserID)
	if err != nil {
		return nil, err
	}
	if session.Status != domain.UploadSessionInitiated {
		return nil, newError(CodeSessionState, "upload session is already "+string(session.Status))
	}
	if session.IsExpired(now) {
		return nil, newError(CodeSessionExpired, "upload session has expired, start the upload again")
	}
	if err := s.requireDraft(ctx, session.SubmissionID); err != nil {
		return nil, err
	}

	storageCtx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()

	var etag string
	if session.IsMultipart() {
		parts, err := ValidateParts(in.Parts, session.TotalParts)
		if err != nil {
			return nil, err
		}
		etag, err = s.storage.CompleteMultipartUpload(storageCtx, session.ObjectKey, session.ProviderUploadID, parts)
		if err != nil {
			return nil, storageError(err)
		}
	} else {
		etag, err = s.verifySinglePart(storageCtx, session, in)
		if err != nil {
			return nil, err
		}
	}

	file := &domain.UploadedFile{
		ID:              uuid.New(),
		TenderID:        session.TenderID,
		SubmissionID:    session.SubmissionID,
		UserID:          session.UserID,
		QuestionID:      session.QuestionID,
		UploadSessionID: session.ID,
		ObjectKey:       session.ObjectKey,
		FileName:        session.FileName,
		FileSizeBytes:   session.FileSizeBytes,
		ContentType:     session.ContentType,
		ETag:            normalizeETag(etag),
		UploadedAt:      now,
	}

	if err := s.files.Finalize(ctx, file); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return nil, newError(CodeSessionState, "upload session was finalized by another request")
		}
		return nil, internal("finalize upload", err)
	}

	s.cache.Invalidate(ctx, session.TenderID, session.UserID)

	s.logger.Info().
		Str("upload_session_id", session.ID.String()).
		Str("question_id", session.QuestionID).
		Str("file_id", file.ID.String()).
		Msg("upload completed")

	summary := file.Summary()
	return &summary, nil
}

// verifySinglePart сверяет объект, записанный одним PUT, с заявленными данными
func (s *UploadService) verifySinglePart(ctx context.Context, session *domain.UploadSession, in CompleteInput) (string, error) {
	etag := strings.TrimSpace(in.ETag)
	if etag == "" && len(in.Parts) == 1 && in.Parts[0].PartNumber == 1 {
		etag = strings.TrimSpace(in.Parts[0].ETag)
	}
	if etag == "" {
		return "", partsMismatch("etag is required for a single-part upload")
	}

	info, err := s.storage.StatObject(ctx, session.ObjectKey)
	if err != nil {
		if s3.IsNotFound(err) {
			return "", partsMismatch("uploaded object was not found, upload the file again")
		}
		return "", storageError(err)
	}
	if info.Size != session.FileSizeBytes {
		return "", partsMismatch("uploaded object has %d bytes, expected %d", info.Size, session.FileSizeBytes)
	}
	if normalizeETag(info.ETag) != normalizeETag(etag) {
		return "", partsMismatch("etag does not match the uploaded object")
	}
	return info.ETag, nil
}

// ValidateParts требует ровно по одной части на каждый номер 1..totalParts
// с непустым ETag и возвращает их отсортированными по номеру
func ValidateParts(parts []domain.CompletedPart, totalParts int) ([]s3.CompletedPart, error) {
	if len(parts) != totalParts {
		return nil, partsMismatch("expected %d parts, got %d", totalParts, len(parts))
	}

	seen := make(map[int]bool, len(parts))
	out := make([]s3.CompletedPart, 0, len(parts))
	for _, p := range parts {
		if p.PartNumber < 1 || p.PartNumber > totalParts {
			return nil, partsMismatch("part number %d is out of range 1..%d", p.PartNumber, totalParts)
		}
		if seen[p.PartNumber] {
			return nil, partsMismatch("part number %d is duplicated", p.PartNumber)
		}
		if strings.TrimSpace(p.ETag) == "" {
			return nil, partsMismatch("part %d has an empty etag", p.PartNumber)
		}
		seen[p.PartNumber] = true
		out = append(out, s3.CompletedPart{PartNumber: p.PartNumber, ETag: strings.TrimSpace(p.ETag)})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].PartNumber < out[j].PartNumber })
	return out, nil
}

// Abort отменяет загрузку у провайдера и помечает сессию aborted
func (s *UploadService) Abort(ctx context.Context, in AbortInput) error {
	session, err := s.loadSession(ctx, in.UploadSessionID, in.TenderID, in.UserID)
	if err != nil {
		return err
	}
	if session.Status != domain.UploadSessionInitiated {
		return newError(CodeSessionState, "upload session is already "+string(session.Status))
	}
	if err := s.requireDraft(ctx, session.SubmissionID); err != nil {
		return err
	}

	storageCtx, cancel := context.WithTimeout(ctx, s.cfg.StorageTimeout)
	defer cancel()

	if err := releaseStorage(storageCtx, s.storage, session, s.logger); err != nil {
		return storageError(err)
	}

	if err := s.sessions.MarkAborted(ctx, session.ID, s.now()); err != nil {
		if errors.Is(err, repository.ErrStatusConflict) {
			return newError(CodeSessionState, "upload session was finalized by another request")
		}
		return internal("abort upload session", err)
	}

	s.logger.Info().
		Str("upload_session_id", session.ID.String()).
		Str("question_id", session.QuestionID).
		Msg("upload aborted")

	return nil
}

// releaseStorage освобождает ресурсы сессии у провайдера. Для многочастной
// загрузки это abort, для однократной - удаление объекта, если он успел появиться.
func releaseStorage(ctx context.Context, storage s3.Storage, session *domain.UploadSession, logger zerolog.Logger) error {
	if session.IsMultipart() {
		err := storage.AbortMultipartUpload(ctx, session.ObjectKey, session.ProviderUploadID)
		if err != nil && !s3.IsNotFound(err) {
			return err
		}
		return nil
	}

	if err := storage.DeleteObject(ctx, session.ObjectKey); err != nil {
		logger.Warn().Err(err).Str("object_key", session.ObjectKey).Msg("failed to delete single-part object")
	}
	return nil
}

func (s *UploadService) loadSession(ctx context.Context, id, tenderID uuid.UUID, userID string) (*domain.UploadSession, error) {
	session, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("upload session")
		}
		return nil, internal("get upload session", err)
	}
	// Чужая сессия неотличима от несуществующей
	if session.UserID != userID || session.TenderID != tenderID {
		return nil, notFound("upload session")
	}
	return session, nil
}

func (s *UploadService) requireDraft(ctx context.Context, submissionID uuid.UUID) error {
	submission, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("submission")
		}
		return internal("get submission", err)
	}
	if !submission.IsDraft() {
		return newError(CodeAlreadySubmitted, "submission has already been submitted")
	}
	return nil
}

func (s *UploadService) checkTender(ctx context.Context, tenderID uuid.UUID, now time.Time) error {
	return checkTender(ctx, s.tenders, tenderID, now)
}

func checkTender(ctx context.Context, tenders TenderRepository, tenderID uuid.UUID, now time.Time) error {
	tender, err := tenders.GetByID(ctx, tenderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("tender")
		}
		return internal("get tender", err)
	}
	if !tender.AcceptsUploads(now) {
		return newError(CodeTenderInactive, "tender is not accepting documents")
	}
	return nil
}

// normalizeETag убирает кавычки и префикс слабого ETag
func normalizeETag(etag string) string {
	etag = strings.TrimSpace(etag)
	etag = strings.TrimPrefix(etag, "W/")
	return strings.Trim(etag, `"`)
}
