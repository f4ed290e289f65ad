// Package formstate хранит на клиенте множество оставленных пользователем файлов по вопросам,
// сохраняет его на сервер с задержкой и сверяет с активными файлами при загрузке формы.
package formstate

import (
	"tenderdocs/internal/domain"
)

type EventType string

const (
	EventInit         EventType = "init"
	EventAddSingle    EventType = "add-single"
	EventRemoveSingle EventType = "remove-single"
	EventAddMulti     EventType = "add-multi"
	EventRemoveMulti  EventType = "remove-multi"
	EventMarkSaved    EventType = "mark-saved"
)

type Event struct {
	Type       EventType
	QuestionID string
	File       domain.FileDescriptor
	FileID     string           // remove-multi
	State      domain.FormState // init
	Revision   uint64           // mark-saved
}

// State - текущее состояние формы. Revision растет при каждом изменении.
type State struct {
	SingleUploads map[string]domain.FileDescriptor
	MultiUploads  map[string][]domain.FileDescriptor
	IsDirty       bool
	Revision      uint64
}

func NewState() State {
	return State{
		SingleUploads: map[string]domain.FileDescriptor{},
		MultiUploads:  map[string][]domain.FileDescriptor{},
	}
}

// Reduce возвращает новое состояние, не изменяя s
func Reduce(s State, e Event) State {
	switch e.Type {
	case EventInit:
		next := NewState()
		for q, f := range e.State.SingleUploads {
			next.SingleUploads[q] = f
		}
		for q, files := range e.State.MultiUploads {
			if len(files) > 0 {
				next.MultiUploads[q] = append([]domain.FileDescriptor(nil), files...)
			}
		}
		next.Revision = s.Revision
		return next

	case EventAddSingle:
		next := s.clone()
		next.SingleUploads[e.QuestionID] = e.File
		return next.touch()

	case EventRemoveSingle:
		if _, ok := s.SingleUploads[e.QuestionID]; !ok {
			return s
		}
		next := s.clone()
		delete(next.SingleUploads, e.QuestionID)
		return next.touch()

	case EventAddMulti:
		for _, f := range s.MultiUploads[e.QuestionID] {
			if f.FileID == e.File.FileID {
				return s
			}
		}
		next := s.clone()
		next.MultiUploads[e.QuestionID] = append(next.MultiUploads[e.QuestionID], e.File)
		return next.touch()

	case EventRemoveMulti:
		files := s.MultiUploads[e.QuestionID]
		kept := make([]domain.FileDescriptor, 0, len(files))
		for _, f := range files {
			if f.FileID != e.FileID {
				kept = append(kept, f)
			}
		}
		if len(kept) == len(files) {
			return s
		}
		next := s.clone()
		if len(kept) == 0 {
			delete(next.MultiUploads, e.QuestionID)
		} else {
			next.MultiUploads[e.QuestionID] = kept
		}
		return next.touch()

	case EventMarkSaved:
		// Сохранение устаревшей ревизии не снимает признак изменений
		if e.Revision != s.Revision {
			return s
		}
		next := s.clone()
		next.IsDirty = false
		return next
	}
	return s
}

// Persisted возвращает представление для сохранения на сервере
func (s State) Persisted() domain.FormState {
	out := domain.NewFormState()
	for q, f := range s.SingleUploads {
		out.SingleUploads[q] = f
	}
	for q, files := range s.MultiUploads {
		out.MultiUploads[q] = append([]domain.FileDescriptor(nil), files...)
	}
	return out
}

func (s State) clone() State {
	next := State{
		SingleUploads: make(map[string]domain.FileDescriptor, len(s.SingleUploads)),
		MultiUploads:  make(map[string][]domain.FileDescriptor, len(s.MultiUploads)),
		IsDirty:       s.IsDirty,
		Revision:      s.Revision,
	}
	for q, f := range s.SingleUploads {
		next.SingleUploads[q] = f
	}
	for q, files := range s.MultiUploads {
		next.MultiUploads[q] = append([]domain.FileDescriptor(nil), files...)
	}
	return next
}

func (s State) touch() State {
	s.IsDirty = true
	s.Revision++
	return s
}
