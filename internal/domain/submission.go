package domain

import (
	"time"

	"github.com/google/uuid"
)

type SubmissionStatus string

const (
	SubmissionDraft     SubmissionStatus = "draft"
	SubmissionSubmitted SubmissionStatus = "submitted"
)

// Submission - заявка пользователя на тендер. После отправки неизменяема.
type Submission struct {
	ID          uuid.UUID        `json:"id" db:"id"`
	TenderID    uuid.UUID        `json:"tender_id" db:"tender_id"`
	UserID      string           `json:"user_id" db:"user_id"`
	Status      SubmissionStatus `json:"status" db:"status"`
	SubmittedAt *time.Time       `json:"submitted_at,omitempty" db:"submitted_at"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
}

func (s *Submission) IsDraft() bool {
	return s.Status == SubmissionDraft
}

// SubmissionState - краткое состояние заявки для ответа status
type SubmissionState struct {
	ID          *uuid.UUID       `json:"id,omitempty"` // пусто, пока заявка не создана
	Status      SubmissionStatus `json:"status"`
	SubmittedAt *time.Time       `json:"submittedAt"`
}

// UploadStatus - состояние заявки и активные файлы по каждому вопросу
type UploadStatus struct {
	Submission SubmissionState         `json:"submission"`
	Uploads    map[string]*FileSummary `json:"uploads"`
}
