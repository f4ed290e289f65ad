package domain

import (
	"time"

	"github.com/google/uuid"
)

type Tender struct {
	ID        uuid.UUID  `json:"id" db:"id"`
	Title     string     `json:"title" db:"title"`
	Active    bool       `json:"active" db:"active"`
	ClosesAt  *time.Time `json:"closes_at,omitempty" db:"closes_at"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// AcceptsUploads сообщает, принимает ли тендер документы в момент now
func (t *Tender) AcceptsUploads(now time.Time) bool {
	if !t.Active {
		return false
	}
	return t.ClosesAt == nil || now.Before(*t.ClosesAt)
}
