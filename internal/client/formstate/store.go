package formstate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tenderdocs/internal/domain"
)

const (
	DefaultDebounce = 300 * time.Millisecond

	// Предельная пауза между повторами неудачного сохранения
	maxRetryInterval = 30 * time.Second
)

// Client - сервер, на котором хранится состояние формы
type Client interface {
	GetFormState(ctx context.Context, submissionID uuid.UUID) (*domain.FormState, error)
	SaveFormState(ctx context.Context, submissionID uuid.UUID, state domain.FormState) error
	Status(ctx context.Context, tenderID uuid.UUID) (*domain.UploadStatus, error)
}

type snapshot struct {
	state    domain.FormState
	revision uint64
}

// Store применяет события к состоянию и сохраняет его с задержкой.
// Одновременно выполняется не более одного сохранения. Изменения во время
// сохранения перезаписывают единственный ожидающий снимок, который
// отправляется сразу после завершения текущего сохранения.
type Store struct {
	client       Client
	tenderID     uuid.UUID
	submissionID uuid.UUID
	debounce     time.Duration
	logger       zerolog.Logger

	mu       sync.Mutex
	state    State
	visible  map[string]*domain.FileSummary
	timer    *time.Timer
	inFlight bool
	pending  *snapshot
	idle     chan struct{}
	lastErr  error
	saves    int
	retry    *backoff.ExponentialBackOff

	ctx    context.Context
	cancel context.CancelFunc
}

func NewStore(client Client, tenderID, submissionID uuid.UUID, debounce time.Duration, logger zerolog.Logger) *Store {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = debounce
	retry.MaxInterval = maxRetryInterval
	retry.MaxElapsedTime = 0
	retry.Reset()

	ctx, cancel := context.WithCancel(context.Background())
	return &Store{
		client:       client,
		tenderID:     tenderID,
		submissionID: submissionID,
		debounce:     debounce,
		logger:       logger.With().Str("component", "form_state").Str("submission_id", submissionID.String()).Logger(),
		state:        NewState(),
		visible:      map[string]*domain.FileSummary{},
		retry:        retry,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Load читает сохраненное состояние и статус, сверяет их и инициализирует форму
func (s *Store) Load(ctx context.Context) (map[string]*domain.FileSummary, error) {
	persisted, err := s.client.GetFormState(ctx, s.submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load form state: %w", err)
	}
	status, err := s.client.Status(ctx, s.tenderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load upload status: %w", err)
	}

	reconciled := Reconcile(*persisted, *status)

	s.mu.Lock()
	s.state = Reduce(s.state, Event{Type: EventInit, State: reconciled.State})
	s.visible = reconciled.Visible
	s.mu.Unlock()

	return reconciled.Visible, nil
}

// Dispatch применяет событие и планирует сохранение, если состояние изменилось
func (s *Store) Dispatch(e Event) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state.Revision
	s.state = Reduce(s.state, e)
	if s.state.Revision != prev {
		s.scheduleLocked()
	}
	return s.state.clone()
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Visible возвращает файлы, которые сейчас показываются по вопросам
func (s *Store) Visible() map[string]*domain.FileSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*domain.FileSummary, len(s.visible))
	for q, f := range s.visible {
		out[q] = f
	}
	return out
}

// Saves возвращает количество выполненных запросов сохранения
func (s *Store) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *Store) scheduleLocked() {
	if s.inFlight {
		s.pending = &snapshot{state: s.state.Persisted(), revision: s.state.Revision}
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.fire)
}

func (s *Store) fire() {
	s.mu.Lock()
	s.timer = nil
	if !s.state.IsDirty || s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	snap := snapshot{state: s.state.Persisted(), revision: s.state.Revision}
	if s.inFlight {
		s.pending = &snap
		s.mu.Unlock()
		return
	}
	s.beginLocked()
	s.mu.Unlock()

	go s.run(snap)
}

// scheduleRetryLocked повторяет неудачное сохранение, пока состояние не сохранится
func (s *Store) scheduleRetryLocked() {
	if s.ctx.Err() != nil || !s.state.IsDirty || s.timer != nil {
		return
	}
	delay := s.retry.NextBackOff()
	s.logger.Debug().Dur("retry_in", delay).Msg("form state save scheduled for retry")
	s.timer = time.AfterFunc(delay, s.fire)
}

func (s *Store) beginLocked() {
	s.inFlight = true
	if s.idle == nil {
		s.idle = make(chan struct{})
	}
}

// run сохраняет снимок и затем ожидающий снимок, если он появился
func (s *Store) run(snap snapshot) {
	for {
		err := s.client.SaveFormState(s.ctx, s.submissionID, snap.state)

		s.mu.Lock()
		s.saves++
		s.lastErr = err
		if err != nil {
			s.logger.Warn().Err(err).Uint64("revision", snap.revision).Msg("failed to save form state")
		} else {
			s.retry.Reset()
			s.state = Reduce(s.state, Event{Type: EventMarkSaved, Revision: snap.revision})
		}

		if s.pending == nil || s.ctx.Err() != nil {
			s.pending = nil
			s.inFlight = false
			if err != nil {
				s.scheduleRetryLocked()
			}
			close(s.idle)
			s.idle = nil
			s.mu.Unlock()
			return
		}
		snap = *s.pending
		s.pending = nil
		s.mu.Unlock()
	}
}

// Flush сохраняет несохраненные изменения без задержки и ждет окончания сохранений
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.state.IsDirty && !s.inFlight {
		snap := snapshot{state: s.state.Persisted(), revision: s.state.Revision}
		s.beginLocked()
		go s.run(snap)
	}
	idle := s.idle
	s.mu.Unlock()

	if idle != nil {
		select {
		case <-idle:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Close останавливает отложенные сохранения. Несохраненные изменения теряются,
// поэтому перед Close обычно вызывают Flush.
func (s *Store) Close() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.cancel()
}

// UploadCompleted записывает подтвержденный файл в состояние формы
func (s *Store) UploadCompleted(question domain.Question, summary *domain.FileSummary) {
	descriptor := Descriptor(summary)
	if question.Kind == domain.QuestionMulti {
		s.Dispatch(Event{Type: EventAddMulti, QuestionID: question.ID, File: descriptor})
	} else {
		s.Dispatch(Event{Type: EventAddSingle, QuestionID: question.ID, File: descriptor})
	}

	s.mu.Lock()
	s.visible[question.ID] = summary
	s.mu.Unlock()
}

// UploadFailed оставляет слот вопроса пустым
func (s *Store) UploadFailed(question domain.Question) {
	if question.Kind == domain.QuestionMulti {
		return
	}
	s.Dispatch(Event{Type: EventRemoveSingle, QuestionID: question.ID})

	s.mu.Lock()
	delete(s.visible, question.ID)
	s.mu.Unlock()
}
