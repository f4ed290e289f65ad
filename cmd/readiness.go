package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

type readiness struct {
	health *health.Server
	checks map[string]func(ctx context.Context) error
	logger zerolog.Logger
}

func newReadiness(h *health.Server, logger zerolog.Logger, checks map[string]func(ctx context.Context) error) *readiness {
	return &readiness{health: h, checks: checks, logger: logger.With().Str("component", "readiness").Logger()}
}

// run периодически проверяет зависимости и выставляет статус gRPC health.
// Недоступный кэш не делает сервис неготовым.
func (r *readiness) run(ctx context.Context, interval time.Duration) {
	r.check(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.check(ctx)
		}
	}
}

func (r *readiness) check(ctx context.Context) {
	status := grpc_health_v1.HealthCheckResponse_SERVING
	for name, check := range r.checks {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := check(checkCtx)
		cancel()

		serving := grpc_health_v1.HealthCheckResponse_SERVING
		if err != nil {
			r.logger.Warn().Err(err).Str("dependency", name).Msg("readiness check failed")
			serving = grpc_health_v1.HealthCheckResponse_NOT_SERVING
			if name != "cache" {
				status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
			}
		}
		r.health.SetServingStatus(name, serving)
	}
	r.health.SetServingStatus("", status)
}
