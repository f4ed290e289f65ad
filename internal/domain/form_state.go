package domain

import "time"

// FormStateVersion - единственная поддерживаемая версия формата сохраненного состояния
const FormStateVersion = 1

// FileDescriptor описывает завершенную загрузку, которую пользователь оставил в форме
type FileDescriptor struct {
	FileID      string    `json:"fileId"`
	FileName    string    `json:"fileName"`
	Size        int64     `json:"size"`
	Mime        string    `json:"mime"`
	CompletedAt time.Time `json:"completedAt"`
}

// FormState - заявленное клиентом множество оставленных файлов по вопросам
type FormState struct {
	Version       int                         `json:"version"`
	SingleUploads map[string]FileDescriptor   `json:"singleUploads"`
	MultiUploads  map[string][]FileDescriptor `json:"multiUploads"`
}

func NewFormState() FormState {
	return FormState{
		Version:       FormStateVersion,
		SingleUploads: map[string]FileDescriptor{},
		MultiUploads:  map[string][]FileDescriptor{},
	}
}

// HasEntry сообщает, заявлен ли для вопроса хотя бы один файл
func (s FormState) HasEntry(questionID string) bool {
	if _, ok := s.SingleUploads[questionID]; ok {
		return true
	}
	return len(s.MultiUploads[questionID]) > 0
}
