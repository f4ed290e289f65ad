package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"tenderdocs/internal/repository"
	"tenderdocs/internal/service/s3"
)

// SessionSweeper освобождает у провайдера загрузки с истекшими сессиями
// и переводит такие сессии в aborted
type SessionSweeper struct {
	sessions       UploadSessionRepository
	storage        s3.Storage
	batchSize      int
	storageTimeout time.Duration
	logger         zerolog.Logger
	now            func() time.Time
}

func NewSessionSweeper(sessions UploadSessionRepository, storage s3.Storage, batchSize int, storageTimeout time.Duration, logger zerolog.Logger) *SessionSweeper {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &SessionSweeper{
		sessions:       sessions,
		storage:        storage,
		batchSize:      batchSize,
		storageTimeout: storageTimeout,
		logger:         logger.With().Str("component", "session_sweeper").Logger(),
		now:            time.Now,
	}
}

// Run запускает очистку каждые interval до отмены ctx
func (s *SessionSweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error().Err(err).Msg("expired session sweep failed")
			}
		}
	}
}

// SweepOnce обрабатывает одну пачку истекших сессий и возвращает число отмененных
func (s *SessionSweeper) SweepOnce(ctx context.Context) (int, error) {
	now := s.now()
	sessions, err := s.sessions.ListExpiredInitiated(ctx, now, s.batchSize)
	if err != nil {
		return 0, err
	}

	aborted := 0
	for i := range sessions {
		session := &sessions[i]
		log := s.logger.With().Str("upload_session_id", session.ID.String()).Logger()

		storageCtx, cancel := context.WithTimeout(ctx, s.storageTimeout)
		err := releaseStorage(storageCtx, s.storage, session, log)
		cancel()
		if err != nil {
			// Оставляем сессию initiated, попробуем на следующем проходе
			log.Warn().Err(err).Msg("failed to release expired upload")
			continue
		}

		if err := s.sessions.MarkAborted(ctx, session.ID, now); err != nil {
			if !errors.Is(err, repository.ErrStatusConflict) {
				log.Warn().Err(err).Msg("failed to mark expired session aborted")
			}
			continue
		}
		aborted++
	}

	if aborted > 0 {
		s.logger.Info().Int("aborted", aborted).Int("expired", len(sessions)).Msg("expired upload sessions cleaned up")
	}
	return aborted, nil
}
