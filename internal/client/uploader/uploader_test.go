package uploader

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenderdocs/internal/domain"
)

const mb = 1 << 20

func TestUpload_MultipartScenario(t *testing.T) {
	u, fake, storage := newTestUploader(t, 8*mb)
	storage.delay[1] = 30 * time.Millisecond

	data := bytes.Repeat([]byte("0123456789abcdef"), 25*mb/16)
	var progress []int
	var mu sync.Mutex

	summary, err := u.Upload(context.Background(), Request{
		Question: anyQuestion,
		File:     fileOf(data, "tender.zip"),
		OnProgress: func(p int) {
			mu.Lock()
			progress = append(progress, p)
			mu.Unlock()
		},
	})

	require.NoError(t, err)
	require.NotNil(t, summary)

	assert.Len(t, storage.received, 4)
	assert.Len(t, storage.received[1], 8*mb)
	assert.Len(t, storage.received[4], 1*mb)
	assert.Equal(t, data[24*mb:], storage.received[4])
	assert.NotEqual(t, 1, storage.order[0])

	require.Len(t, fake.completed, 1)
	parts := fake.completed[0].Parts
	require.Len(t, parts, 4)
	for i, p := range parts {
		assert.Equal(t, i+1, p.PartNumber)
		assert.NotEmpty(t, p.ETag)
	}
	assert.Equal(t, int64(25*mb), fake.initiated[0].FileSizeBytes)
	assert.Empty(t, fake.aborted)

	require.NotEmpty(t, progress)
	assert.Equal(t, 100, progress[len(progress)-1])
	for i := 1; i < len(progress); i++ {
		assert.Greater(t, progress[i], progress[i-1])
	}
	for _, p := range progress[:len(progress)-1] {
		assert.GreaterOrEqual(t, p, 1)
		assert.LessOrEqual(t, p, 99)
	}
}

func TestUpload_NoHundredBeforeConfirmation(t *testing.T) {
	u, fake, _ := newTestUploader(t, 1024)

	var mu sync.Mutex
	var seen []int
	fake.onComplete = func() {
		mu.Lock()
		defer mu.Unlock()
		assert.NotContains(t, seen, 100)
	}
	fake.completeErr = errors.New("server rejected")

	_, err := u.Upload(context.Background(), Request{
		Question: anyQuestion,
		File:     fileOf(bytes.Repeat([]byte{1}, 3000), "a.bin"),
		OnProgress: func(p int) {
			mu.Lock()
			seen = append(seen, p)
			mu.Unlock()
		},
	})

	require.Error(t, err)
	assert.NotContains(t, seen, 100)
	assert.Contains(t, seen, 99)
	assert.Len(t, fake.aborted, 1)
}

func TestUpload_SinglePart(t *testing.T) {
	u, fake, storage := newTestUploader(t, 8*mb)

	_, err := u.Upload(context.Background(), Request{
		Question: anyQuestion,
		File:     File{Name: "small.txt", Size: 5, ContentType: "text/plain", Reader: bytes.NewReader([]byte("hello"))},
	})

	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), storage.received[0])
	assert.Equal(t, "text/plain", storage.headers[0].Get("Content-Type"))
	require.Len(t, fake.completed, 1)
	assert.Equal(t, "\"etag-0\"", fake.completed[0].ETag)
	assert.Empty(t, fake.completed[0].Parts)
}

func TestUpload_RetriesTransientFailures(t *testing.T) {
	u, fake, storage := newTestUploader(t, 1024)
	storage.failures[2] = 2

	_, err := u.Upload(context.Background(), Request{Question: anyQuestion, File: fileOf(make([]byte, 3000), "a.bin")})

	require.NoError(t, err)
	assert.Equal(t, 3, storage.attemptsFor(2))
	assert.Equal(t, 1, storage.attemptsFor(1))
	assert.Len(t, fake.completed, 1)
}

func TestUpload_GivesUpAfterThreeRetries(t *testing.T) {
	u, fake, storage := newTestUploader(t, 1024)
	storage.failures[3] = 100

	_, err := u.Upload(context.Background(), Request{Question: anyQuestion, File: fileOf(make([]byte, 3000), "a.bin")})

	require.Error(t, err)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, 4, storage.attemptsFor(3))

	_, completed, aborted := fake.counts()
	assert.Zero(t, completed)
	assert.Equal(t, 1, aborted)
}

func TestUpload_PermanentStatusIsNotRetried(t *testing.T) {
	u, _, storage := newTestUploader(t, 1024)
	storage.failures[1] = 100
	storage.failStatus = http.StatusForbidden

	_, err := u.Upload(context.Background(), Request{Question: anyQuestion, File: fileOf(make([]byte, 3000), "a.bin")})

	require.Error(t, err)
	assert.Equal(t, 1, storage.attemptsFor(1))
}

func TestUpload_MissingETag(t *testing.T) {
	u, fake, storage := newTestUploader(t, 1024)
	storage.noETag = true

	_, err := u.Upload(context.Background(), Request{Question: anyQuestion, File: fileOf(make([]byte, 3000), "a.bin")})

	assert.ErrorIs(t, err, ErrMissingETag)
	_, completed, aborted := fake.counts()
	assert.Zero(t, completed)
	assert.Equal(t, 1, aborted)
}

func TestUpload_LocalValidation(t *testing.T) {
	pdfQuestion := domain.Question{ID: "company_registration", Kind: domain.QuestionSingle, MaxSizeBytes: 10, ContentTypes: []string{"application/pdf"}}
	png := []byte("\x89PNG\r\n\x1a\n0000")

	tests := []struct {
		name string
		file File
		want error
	}{
		{"empty", File{Name: "a.pdf", Size: 0, Reader: bytes.NewReader(nil)}, ErrEmptyFile},
		{"too large", File{Name: "a.pdf", Size: 11, ContentType: "application/pdf", Reader: bytes.NewReader(make([]byte, 11))}, ErrFileTooLarge},
		{"declared type", File{Name: "a.png", Size: 4, ContentType: "image/png", Reader: bytes.NewReader(png[:4])}, ErrContentTypeNotAllowed},
		{"sniffed type", File{Name: "a.pdf", Size: int64(len(png)), Reader: bytes.NewReader(png)}, ErrContentTypeNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, fake, _ := newTestUploader(t, 1024)

			_, err := u.Upload(context.Background(), Request{Question: pdfQuestion, File: tt.file})

			assert.ErrorIs(t, err, tt.want)
			initiated, _, _ := fake.counts()
			assert.Zero(t, initiated)
		})
	}
}

func TestUpload_SniffsContentType(t *testing.T) {
	u, fake, _ := newTestUploader(t, 1024)
	pdf := []byte("%PDF-1.4\n%âãÏÓ\n1 0 obj\n")
	question := domain.Question{ID: "company_registration", MaxSizeBytes: 1024, ContentTypes: []string{"application/pdf"}}

	_, err := u.Upload(context.Background(), Request{
		Question: question,
		File:     File{Name: "reg.pdf", Size: int64(len(pdf)), Reader: bytes.NewReader(pdf)},
	})

	require.NoError(t, err)
	assert.Equal(t, "application/pdf", fake.initiated[0].ContentType)
}

func TestUpload_CancelAbortsSession(t *testing.T) {
	u, fake, storage := newTestUploader(t, 1024)
	storage.block = make(chan struct{})
	defer close(storage.block)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := u.Upload(ctx, Request{Question: anyQuestion, File: fileOf(make([]byte, 5000), "a.bin")})

	assert.ErrorIs(t, err, context.Canceled)
	_, completed, aborted := fake.counts()
	assert.Zero(t, completed)
	assert.Equal(t, 1, aborted)
}

func TestUpload_WorkerCountShrinks(t *testing.T) {
	storage := newFakeStorage(t)
	fake := &fakeAPI{storage: storage, partSize: 1024}
	cfg := testConfig()
	cfg.Concurrency = 16
	u := New(fake, storage.server.Client(), cfg, zerolog.Nop())

	_, err := u.Upload(context.Background(), Request{Question: anyQuestion, File: fileOf(make([]byte, 2048), "a.bin")})

	require.NoError(t, err)
	assert.Len(t, storage.received, 2)
	assert.Equal(t, 1, storage.attemptsFor(1))
	assert.Equal(t, 1, storage.attemptsFor(2))
}

func TestPercent(t *testing.T) {
	tests := []struct {
		done, total, want int
	}{
		{0, 4, 1},
		{1, 4, 25},
		{2, 4, 50},
		{3, 4, 74},
		{4, 4, 99},
		{1, 1, 99},
		{0, 1000, 1},
		{1, 1000, 1},
		{999, 1000, 98},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, percent(tt.done, tt.total), "%d/%d", tt.done, tt.total)
	}
}

func TestPartBackOff_JitterStaysUnderCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRetries = 10

	for i := 0; i < 500; i++ {
		b := newPartBackOff(cfg)
		for n := 0; n < cfg.MaxRetries; n++ {
			d := b.NextBackOff()
			require.NotEqual(t, backoff.Stop, d)
			assert.Positive(t, d)
			assert.LessOrEqual(t, d, cfg.MaxBackoff)
		}
		assert.Equal(t, backoff.Stop, b.NextBackOff())
	}
}
