package uploader

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tenderdocs/internal/client/api"
	"tenderdocs/internal/domain"
)

// fakeStorage принимает PUT /parts/{n} и /object, отвечает ETag
type fakeStorage struct {
	mu       sync.Mutex
	received map[int][]byte
	attempts map[int]int
	order    []int
	headers  map[int]http.Header

	// failures[n] - сколько первых попыток для части n завершаются статусом failStatus
	failures   map[int]int
	failStatus int
	noETag     bool
	delay      map[int]time.Duration
	block      chan struct{}

	server *httptest.Server
}

func newFakeStorage(t *testing.T) *fakeStorage {
	t.Helper()
	s := &fakeStorage{
		received:   map[int][]byte{},
		attempts:   map[int]int{},
		headers:    map[int]http.Header{},
		failures:   map[int]int{},
		failStatus: http.StatusServiceUnavailable,
		delay:      map[int]time.Duration{},
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.server.Close)
	return s
}

func (s *fakeStorage) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	n := 0
	if p := strings.TrimPrefix(r.URL.Path, "/parts/"); p != r.URL.Path {
		n, _ = strconv.Atoi(p)
	}

	s.mu.Lock()
	s.attempts[n]++
	attempt := s.attempts[n]
	fail := attempt <= s.failures[n]
	delay := s.delay[n]
	block := s.block
	s.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-r.Context().Done():
			return
		}
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return
	}
	if fail {
		w.WriteHeader(s.failStatus)
		return
	}

	s.mu.Lock()
	s.received[n] = body
	s.order = append(s.order, n)
	s.headers[n] = r.Header.Clone()
	s.mu.Unlock()

	if !s.noETag {
		w.Header().Set("ETag", fmt.Sprintf("\"etag-%d\"", n))
	}
	w.WriteHeader(http.StatusOK)
}

func (s *fakeStorage) attemptsFor(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts[n]
}

// fakeAPI выдает сессии с адресами fakeStorage
type fakeAPI struct {
	mu          sync.Mutex
	storage     *fakeStorage
	partSize    int64
	initiated   []api.InitiateRequest
	completed   []api.CompleteRequest
	aborted     []api.AbortRequest
	initiateErr error
	completeErr error
	onComplete  func()
}

func (f *fakeAPI) Initiate(_ context.Context, req api.InitiateRequest) (*api.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.initiated = append(f.initiated, req)
	if f.initiateErr != nil {
		return nil, f.initiateErr
	}

	session := &api.Session{
		UploadSessionID: uuid.New(),
		PartSizeBytes:   f.partSize,
		ExpiresAt:       time.Now().Add(time.Hour),
	}
	if req.FileSizeBytes <= f.partSize {
		session.TotalParts = 1
		session.URL = f.storage.server.URL + "/object"
		return session, nil
	}

	session.ProviderUploadID = "mp-1"
	session.TotalParts = int((req.FileSizeBytes + f.partSize - 1) / f.partSize)
	for n := session.TotalParts; n >= 1; n-- {
		session.Parts = append(session.Parts, domain.PresignedPart{
			PartNumber: n,
			URL:        fmt.Sprintf("%s/parts/%d", f.storage.server.URL, n),
		})
	}
	return session, nil
}

func (f *fakeAPI) Complete(_ context.Context, req api.CompleteRequest) (*domain.FileSummary, error) {
	f.mu.Lock()
	f.completed = append(f.completed, req)
	hook := f.onComplete
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return &domain.FileSummary{FileID: uuid.New(), UploadedAt: time.Now()}, nil
}

func (f *fakeAPI) Abort(ctx context.Context, req api.AbortRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = append(f.aborted, req)
	return nil
}

func (f *fakeAPI) counts() (initiated, completed, aborted int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.initiated), len(f.completed), len(f.aborted)
}

func testConfig() Config {
	return Config{
		Concurrency:    5,
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     4 * time.Millisecond,
	}
}

func newTestUploader(t *testing.T, partSize int64) (*Uploader, *fakeAPI, *fakeStorage) {
	t.Helper()
	storage := newFakeStorage(t)
	fake := &fakeAPI{storage: storage, partSize: partSize}
	return New(fake, storage.server.Client(), testConfig(), zerolog.Nop()), fake, storage
}

var anyQuestion = domain.Question{ID: "supporting_documents", Kind: domain.QuestionMulti, MaxSizeBytes: 500 << 20}

func fileOf(data []byte, name string) File {
	return File{Name: name, Size: int64(len(data)), ContentType: "application/octet-stream", Reader: bytes.NewReader(data)}
}
