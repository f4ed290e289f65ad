package uploader

import (
	"context"
	"sync"

	"tenderdocs/internal/domain"
)

// Sink получает итог загрузки по вопросу
type Sink interface {
	UploadCompleted(question domain.Question, summary *domain.FileSummary)
	UploadFailed(question domain.Question)
}

type controller struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Registry держит не более одной активной загрузки на вопрос.
// Новая загрузка для вопроса отменяет предыдущую и дожидается ее завершения.
type Registry struct {
	uploader *Uploader
	sink     Sink

	mu     sync.Mutex
	active map[string]*controller
}

func NewRegistry(uploader *Uploader, sink Sink) *Registry {
	return &Registry{
		uploader: uploader,
		sink:     sink,
		active:   make(map[string]*controller),
	}
}

// Start загружает файл для вопроса и сообщает результат в Sink
func (r *Registry) Start(ctx context.Context, req Request) (*domain.FileSummary, error) {
	ctx, cancel := context.WithCancel(ctx)
	c := &controller{cancel: cancel, done: make(chan struct{})}

	questionID := req.Question.ID
	r.mu.Lock()
	prev := r.active[questionID]
	r.active[questionID] = c
	r.mu.Unlock()

	defer func() {
		cancel()
		r.mu.Lock()
		if r.active[questionID] == c {
			delete(r.active, questionID)
		}
		r.mu.Unlock()
		close(c.done)
	}()

	if prev != nil {
		prev.cancel()
		<-prev.done
	}

	summary, err := r.uploader.Upload(ctx, req)
	if err != nil {
		if r.sink != nil {
			r.sink.UploadFailed(req.Question)
		}
		return nil, err
	}

	if r.sink != nil {
		r.sink.UploadCompleted(req.Question, summary)
	}
	return summary, nil
}

// Cancel отменяет активную загрузку вопроса и ждет ее завершения
func (r *Registry) Cancel(questionID string) bool {
	r.mu.Lock()
	c := r.active[questionID]
	r.mu.Unlock()

	if c == nil {
		return false
	}
	c.cancel()
	<-c.done
	return true
}

func (r *Registry) CancelAll() {
	r.mu.Lock()
	controllers := make([]*controller, 0, len(r.active))
	for _, c := range r.active {
		controllers = append(controllers, c)
	}
	r.mu.Unlock()

	for _, c := range controllers {
		c.cancel()
		<-c.done
	}
}

func (r *Registry) Active(questionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[questionID]
	return ok
}
