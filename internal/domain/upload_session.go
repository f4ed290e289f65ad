package domain

import (
	"time"

	"github.com/google/uuid"
)

type UploadSessionStatus string

const (
	UploadSessionInitiated UploadSessionStatus = "initiated"
	UploadSessionCompleted UploadSessionStatus = "completed"
	UploadSessionAborted   UploadSessionStatus = "aborted"
)

// UploadSession - одна попытка загрузить один файл для одного вопроса.
// Переходы статуса только initiated->completed или initiated->aborted.
type UploadSession struct {
	ID               uuid.UUID           `json:"id" db:"id"`
	TenderID         uuid.UUID           `json:"tender_id" db:"tender_id"`
	SubmissionID     uuid.UUID           `json:"submission_id" db:"submission_id"`
	UserID           string              `json:"user_id" db:"user_id"`
	QuestionID       string              `json:"question_id" db:"question_id"`
	FileName         string              `json:"file_name" db:"file_name"`
	FileSizeBytes    int64               `json:"file_size_bytes" db:"file_size_bytes"`
	ContentType      string              `json:"content_type" db:"content_type"`
	ObjectKey        string              `json:"object_key" db:"object_key"`
	ProviderUploadID string              `json:"provider_upload_id" db:"provider_upload_id"` // пусто для однократной загрузки
	PartSizeBytes    int64               `json:"part_size_bytes" db:"part_size_bytes"`
	TotalParts       int                 `json:"total_parts" db:"total_parts"`
	ExpiresAt        time.Time           `json:"expires_at" db:"expires_at"`
	Status           UploadSessionStatus `json:"status" db:"status"`
	CompletedAt      *time.Time          `json:"completed_at,omitempty" db:"completed_at"`
	AbortedAt        *time.Time          `json:"aborted_at,omitempty" db:"aborted_at"`
	CreatedAt        time.Time           `json:"created_at" db:"created_at"`
}

// IsMultipart сообщает, открыта ли у провайдера многочастная загрузка
func (s *UploadSession) IsMultipart() bool {
	return s.ProviderUploadID != ""
}

func (s *UploadSession) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// PresignedPart - адрес для прямой загрузки одной части в хранилище
type PresignedPart struct {
	PartNumber int       `json:"partNumber"`
	URL        string    `json:"url"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// CompletedPart - номер части и ETag, который вернуло хранилище
type CompletedPart struct {
	PartNumber int    `json:"partNumber"`
	ETag       string `json:"etag"`
}
