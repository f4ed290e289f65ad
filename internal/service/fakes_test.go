package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tenderdocs/internal/domain"
	"tenderdocs/internal/repository"
	"tenderdocs/internal/service/s3"
)

// memDB - общее in-memory хранилище для фейковых репозиториев
type memDB struct {
	mu          sync.Mutex
	tenders     map[uuid.UUID]*domain.Tender
	submissions map[uuid.UUID]*domain.Submission
	sessions    map[uuid.UUID]*domain.UploadSession
	files       []*domain.UploadedFile
	formStates  map[uuid.UUID]*domain.FormState

	finalizeErr error
}

func newMemDB() *memDB {
	return &memDB{
		tenders:     map[uuid.UUID]*domain.Tender{},
		submissions: map[uuid.UUID]*domain.Submission{},
		sessions:    map[uuid.UUID]*domain.UploadSession{},
		formStates:  map[uuid.UUID]*domain.FormState{},
	}
}

func (db *memDB) addTender(active bool) uuid.UUID {
	db.mu.Lock()
	defer db.mu.Unlock()
	id := uuid.New()
	db.tenders[id] = &domain.Tender{ID: id, Title: "Road works", Active: active}
	return id
}

func (db *memDB) activeFiles(submissionID uuid.UUID, questionID string) []*domain.UploadedFile {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []*domain.UploadedFile
	for _, f := range db.files {
		if f.SubmissionID == submissionID && f.QuestionID == questionID && f.Active {
			out = append(out, f)
		}
	}
	return out
}

func (db *memDB) session(id uuid.UUID) domain.UploadSession {
	db.mu.Lock()
	defer db.mu.Unlock()
	return *db.sessions[id]
}

type memTenders struct{ db *memDB }

func (r memTenders) GetByID(_ context.Context, id uuid.UUID) (*domain.Tender, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.tenders[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

type memSubmissions struct{ db *memDB }

func (r memSubmissions) GetOrCreateDraft(_ context.Context, tenderID uuid.UUID, userID string) (*domain.Submission, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, s := range r.db.submissions {
		if s.TenderID == tenderID && s.UserID == userID {
			cp := *s
			return &cp, nil
		}
	}
	s := &domain.Submission{ID: uuid.New(), TenderID: tenderID, UserID: userID, Status: domain.SubmissionDraft, CreatedAt: time.Now()}
	r.db.submissions[s.ID] = s
	cp := *s
	return &cp, nil
}

func (r memSubmissions) GetByTenderAndUser(_ context.Context, tenderID uuid.UUID, userID string) (*domain.Submission, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, s := range r.db.submissions {
		if s.TenderID == tenderID && s.UserID == userID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (r memSubmissions) GetByID(_ context.Context, id uuid.UUID) (*domain.Submission, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.submissions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (r memSubmissions) MarkSubmitted(_ context.Context, id uuid.UUID, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.submissions[id]
	if !ok || s.Status != domain.SubmissionDraft {
		return repository.ErrStatusConflict
	}
	s.Status = domain.SubmissionSubmitted
	s.SubmittedAt = &at
	return nil
}

type memSessions struct{ db *memDB }

func (r memSessions) Create(_ context.Context, session *domain.UploadSession) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cp := *session
	cp.CreatedAt = time.Now()
	r.db.sessions[session.ID] = &cp
	return nil
}

func (r memSessions) GetByID(_ context.Context, id uuid.UUID) (*domain.UploadSession, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.sessions[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (r memSessions) MarkAborted(_ context.Context, id uuid.UUID, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.sessions[id]
	if !ok || s.Status != domain.UploadSessionInitiated {
		return repository.ErrStatusConflict
	}
	s.Status = domain.UploadSessionAborted
	s.AbortedAt = &at
	return nil
}

func (r memSessions) ListExpiredInitiated(_ context.Context, now time.Time, limit int) ([]domain.UploadSession, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.UploadSession
	for _, s := range r.db.sessions {
		sub, ok := r.db.submissions[s.SubmissionID]
		if !ok || !sub.IsDraft() {
			continue
		}
		if s.Status == domain.UploadSessionInitiated && s.IsExpired(now) && len(out) < limit {
			out = append(out, *s)
		}
	}
	return out, nil
}

type memFiles struct{ db *memDB }

func (r memFiles) Finalize(_ context.Context, file *domain.UploadedFile) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.finalizeErr != nil {
		return r.db.finalizeErr
	}
	s, ok := r.db.sessions[file.UploadSessionID]
	if !ok || s.Status != domain.UploadSessionInitiated {
		return repository.ErrStatusConflict
	}
	s.Status = domain.UploadSessionCompleted
	s.CompletedAt = &file.UploadedAt

	for _, f := range r.db.files {
		if f.SubmissionID == file.SubmissionID && f.QuestionID == file.QuestionID && f.Active {
			f.Active = false
			f.DeactivatedAt = &file.UploadedAt
		}
	}
	file.Active = true
	cp := *file
	r.db.files = append(r.db.files, &cp)
	return nil
}

func (r memFiles) ListActiveBySubmission(_ context.Context, submissionID uuid.UUID) ([]domain.UploadedFile, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.UploadedFile
	for _, f := range r.db.files {
		if f.SubmissionID == submissionID && f.Active {
			out = append(out, *f)
		}
	}
	return out, nil
}

type memFormStates struct{ db *memDB }

func (r memFormStates) Get(_ context.Context, submissionID uuid.UUID) (*domain.FormState, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.formStates[submissionID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *s
	return &cp, nil
}

func (r memFormStates) Save(_ context.Context, submissionID uuid.UUID, _ string, state *domain.FormState) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cp := *state
	r.db.formStates[submissionID] = &cp
	return nil
}

// fakeStorage имитирует S3: помнит открытые загрузки и записанные объекты
type fakeStorage struct {
	mu         sync.Mutex
	uploads    map[string]string
	objects    map[string]s3.ObjectInfo
	completed  map[string][]s3.CompletedPart
	aborted    []string
	deleted    []string
	presigned  int
	creates    int
	createErr  error
	presignErr error
	completeFn func(key string, parts []s3.CompletedPart) (string, error)
	abortErr   error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		uploads:   map[string]string{},
		objects:   map[string]s3.ObjectInfo{},
		completed: map[string][]s3.CompletedPart{},
	}
}

func (f *fakeStorage) CreateMultipartUpload(_ context.Context, key, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return "", f.createErr
	}
	id := "upload-" + uuid.NewString()
	f.uploads[id] = key
	return id, nil
}

func (f *fakeStorage) PresignUploadPart(_ context.Context, key, uploadID string, partNumber int, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.presignErr != nil {
		return "", f.presignErr
	}
	f.presigned++
	return fmt.Sprintf("https://storage.test/%s?uploadId=%s&partNumber=%d", key, uploadID, partNumber), nil
}

func (f *fakeStorage) PresignPutObject(_ context.Context, key, _ string, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.presignErr != nil {
		return "", f.presignErr
	}
	f.presigned++
	return "https://storage.test/" + key, nil
}

func (f *fakeStorage) CompleteMultipartUpload(_ context.Context, key, uploadID string, parts []s3.CompletedPart) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completeFn != nil {
		return f.completeFn(key, parts)
	}
	if _, ok := f.uploads[uploadID]; !ok {
		return "", &s3.Error{Op: "CompleteMultipartUpload", Kind: s3.KindNotFound, ProviderCode: "NoSuchUpload", Err: fmt.Errorf("no such upload")}
	}
	delete(f.uploads, uploadID)
	f.completed[key] = parts
	return `"final-etag"`, nil
}

func (f *fakeStorage) AbortMultipartUpload(_ context.Context, key, uploadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.abortErr != nil {
		return f.abortErr
	}
	delete(f.uploads, uploadID)
	f.aborted = append(f.aborted, key)
	return nil
}

func (f *fakeStorage) StatObject(_ context.Context, key string) (*s3.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.objects[key]
	if !ok {
		return nil, &s3.Error{Op: "HeadObject", Key: key, Kind: s3.KindNotFound, Err: fmt.Errorf("not found")}
	}
	return &info, nil
}

func (f *fakeStorage) DeleteObject(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	f.deleted = append(f.deleted, key)
	return nil
}

func (f *fakeStorage) Ping(context.Context) error { return nil }

func (f *fakeStorage) putObject(key string, size int64, etag string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = s3.ObjectInfo{Key: key, Size: size, ETag: etag}
}
