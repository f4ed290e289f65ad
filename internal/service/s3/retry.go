package s3

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Паузы между повторами временных сбоев: всего не более трех попыток
var defaultRetryDelays = []time.Duration{250 * time.Millisecond, 750 * time.Millisecond}

// fixedDelays отдает паузы из списка по очереди, затем backoff.Stop
type fixedDelays struct {
	delays []time.Duration
	next   int
}

func (f *fixedDelays) NextBackOff() time.Duration {
	if f.next >= len(f.delays) {
		return backoff.Stop
	}
	d := f.delays[f.next]
	f.next++
	return d
}

func (f *fixedDelays) Reset() {
	f.next = 0
}

type retrier struct {
	delays []time.Duration
	logger zerolog.Logger
}

func newRetrier(logger zerolog.Logger) retrier {
	return retrier{delays: defaultRetryDelays, logger: logger}
}

// do выполняет fn и повторяет ее только для ошибок, помеченных как временные
func (r retrier) do(ctx context.Context, op, key string, fn func(ctx context.Context) error) error {
	attempt := 0

	operation := func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}

		se := classify(op, key, err)
		se.Attempts = attempt
		if !se.Retryable {
			return backoff.Permanent(se)
		}
		return se
	}

	notify := func(err error, delay time.Duration) {
		r.logger.Warn().
			Err(err).
			Str("op", op).
			Str("key", key).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("storage call failed, retrying")
	}

	policy := backoff.WithContext(&fixedDelays{delays: r.delays}, ctx)
	err := backoff.RetryNotify(operation, policy, notify)
	if err == nil {
		return nil
	}

	if se, ok := AsError(err); ok {
		return se
	}

	// Контекст отменен во время паузы
	ce := classify(op, key, err)
	ce.Attempts = attempt
	return ce
}
