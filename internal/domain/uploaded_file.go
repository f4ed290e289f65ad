package domain

import (
	"time"

	"github.com/google/uuid"
)

// UploadedFile - итоговая запись о загруженном файле.
// Для пары (submission, question) активна не более чем одна запись,
// предыдущие деактивируются и не удаляются.
type UploadedFile struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	TenderID        uuid.UUID  `json:"tender_id" db:"tender_id"`
	SubmissionID    uuid.UUID  `json:"submission_id" db:"submission_id"`
	UserID          string     `json:"user_id" db:"user_id"`
	QuestionID      string     `json:"question_id" db:"question_id"`
	UploadSessionID uuid.UUID  `json:"upload_session_id" db:"upload_session_id"`
	ObjectKey       string     `json:"object_key" db:"object_key"`
	FileName        string     `json:"file_name" db:"file_name"`
	FileSizeBytes   int64      `json:"file_size_bytes" db:"file_size_bytes"`
	ContentType     string     `json:"content_type" db:"content_type"`
	ETag            string     `json:"etag" db:"etag"`
	UploadedAt      time.Time  `json:"uploaded_at" db:"uploaded_at"`
	Active          bool       `json:"active" db:"active"`
	DeactivatedAt   *time.Time `json:"deactivated_at,omitempty" db:"deactivated_at"`
}

// FileSummary - представление активного файла для клиента
type FileSummary struct {
	FileID        uuid.UUID `json:"fileId"`
	QuestionID    string    `json:"questionId"`
	FileName      string    `json:"fileName"`
	FileSizeBytes int64     `json:"fileSizeBytes"`
	ContentType   string    `json:"contentType"`
	UploadedAt    time.Time `json:"uploadedAt"`
}

func (f *UploadedFile) Summary() FileSummary {
	return FileSummary{
		FileID:        f.ID,
		QuestionID:    f.QuestionID,
		FileName:      f.FileName,
		FileSizeBytes: f.FileSizeBytes,
		ContentType:   f.ContentType,
		UploadedAt:    f.UploadedAt,
	}
}
