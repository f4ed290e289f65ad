package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"tenderdocs/internal/client/api"
	"tenderdocs/internal/domain"
)

// StatusError - ответ хранилища с неуспешным статусом
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("storage responded with status %d", e.StatusCode)
}

// Retryable: 408, 429 и 5xx
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

// uploadParts грузит части пулом воркеров. Каждый воркер берет следующий
// незанятый индекс из общего счетчика, поэтому ни одна часть не грузится дважды.
func (u *Uploader) uploadParts(ctx context.Context, logger zerolog.Logger, session *api.Session, file File, progress *progress) ([]domain.CompletedPart, error) {
	parts := session.Parts
	if len(parts) != session.TotalParts || session.PartSizeBytes <= 0 {
		return nil, fmt.Errorf("%w: %d urls for %d parts", ErrUnexpectedSessionShape, len(parts), session.TotalParts)
	}
	for _, part := range parts {
		if part.PartNumber < 1 || int64(part.PartNumber-1)*session.PartSizeBytes >= file.Size {
			return nil, fmt.Errorf("%w: part %d is out of range", ErrUnexpectedSessionShape, part.PartNumber)
		}
	}

	completed := make([]domain.CompletedPart, len(parts))
	var next atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	workers := min(u.cfg.Concurrency, len(parts))
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for {
				i := int(next.Add(1) - 1)
				if i >= len(parts) {
					return nil
				}
				if err := gctx.Err(); err != nil {
					return err
				}

				part := parts[i]
				offset := int64(part.PartNumber-1) * session.PartSizeBytes
				length := min(session.PartSizeBytes, file.Size-offset)

				etag, err := u.putWithRetry(gctx, logger.With().Int("part", part.PartNumber).Logger(), part.URL, "", file.Reader, offset, length)
				if err != nil {
					return fmt.Errorf("part %d: %w", part.PartNumber, err)
				}

				completed[i] = domain.CompletedPart{PartNumber: part.PartNumber, ETag: etag}
				progress.partDone()
			}
		})
	}

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	sort.Slice(completed, func(i, j int) bool {
		return completed[i].PartNumber < completed[j].PartNumber
	})
	return completed, nil
}

// cappedBackOff ограничивает задержку после случайного разброса
type cappedBackOff struct {
	backoff.BackOff
	max time.Duration
}

func (c cappedBackOff) NextBackOff() time.Duration {
	d := c.BackOff.NextBackOff()
	if d != backoff.Stop && d > c.max {
		return c.max
	}
	return d
}

// newPartBackOff: база InitialBackoff, множитель 2, разброс 50%, не больше MaxBackoff
// и не больше MaxRetries повторов
func newPartBackOff(cfg Config) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialBackoff
	b.Multiplier = 2
	b.MaxInterval = cfg.MaxBackoff
	b.RandomizationFactor = 0.5
	b.MaxElapsedTime = 0

	return backoff.WithMaxRetries(cappedBackOff{BackOff: b, max: cfg.MaxBackoff}, uint64(cfg.MaxRetries))
}

// putWithRetry отправляет диапазон файла на presigned-ссылку с экспоненциальной
// задержкой между попытками. Отмена проверяется перед каждой попыткой.
func (u *Uploader) putWithRetry(ctx context.Context, logger zerolog.Logger, url, contentType string, r io.ReaderAt, offset, length int64) (string, error) {
	policy := backoff.WithContext(newPartBackOff(u.cfg), ctx)

	attempt := 0
	operation := func() (string, error) {
		if err := ctx.Err(); err != nil {
			return "", backoff.Permanent(err)
		}
		attempt++

		etag, err := u.put(ctx, url, contentType, io.NewSectionReader(r, offset, length), length)
		if err == nil {
			return etag, nil
		}

		var statusErr *StatusError
		switch {
		case errors.As(err, &statusErr) && !statusErr.Retryable():
			return "", backoff.Permanent(err)
		case errors.Is(err, ErrMissingETag):
			return "", backoff.Permanent(err)
		}
		return "", err
	}

	notify := func(err error, delay time.Duration) {
		logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("part upload failed, retrying")
	}

	etag, err := backoff.RetryNotifyWithData(operation, policy, notify)
	if err != nil {
		return "", err
	}
	return etag, nil
}

func (u *Uploader) put(ctx context.Context, url, contentType string, body io.Reader, length int64) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, body)
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	req.ContentLength = length
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{StatusCode: resp.StatusCode}
	}

	etag := strings.TrimSpace(resp.Header.Get("ETag"))
	if etag == "" {
		return "", ErrMissingETag
	}
	return etag, nil
}
