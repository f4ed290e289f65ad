package formstate

import (
	"tenderdocs/internal/domain"
)

// Reconciled - состояние формы после сверки с сервером
type Reconciled struct {
	// Visible - файл, который показывается по каждому вопросу, или nil
	Visible map[string]*domain.FileSummary
	State   domain.FormState
}

// Reconcile сверяет заявленное состояние с активными файлами сервера.
// Активный файл вопроса без записи в состоянии скрывается. Для вопроса с записью
// показывается активный файл сервера, а записи без активного файла отбрасываются.
func Reconcile(persisted domain.FormState, status domain.UploadStatus) Reconciled {
	out := Reconciled{
		Visible: make(map[string]*domain.FileSummary, len(status.Uploads)),
		State:   domain.NewFormState(),
	}

	for questionID, active := range status.Uploads {
		out.Visible[questionID] = nil
		if active == nil || !persisted.HasEntry(questionID) {
			continue
		}

		summary := *active
		out.Visible[questionID] = &summary

		descriptor := Descriptor(&summary)
		if _, ok := persisted.SingleUploads[questionID]; ok {
			out.State.SingleUploads[questionID] = descriptor
		} else {
			out.State.MultiUploads[questionID] = []domain.FileDescriptor{descriptor}
		}
	}

	return out
}

// Descriptor строит запись состояния формы по подтвержденному файлу
func Descriptor(summary *domain.FileSummary) domain.FileDescriptor {
	return domain.FileDescriptor{
		FileID:      summary.FileID.String(),
		FileName:    summary.FileName,
		Size:        summary.FileSizeBytes,
		Mime:        summary.ContentType,
		CompletedAt: summary.UploadedAt,
	}
}
