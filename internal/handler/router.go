package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"tenderdocs/internal/auth"
)

type RouterConfig struct {
	Uploads        *UploadHandler
	FormStates     *FormStateHandler
	Responder      *Responder
	Verifier       *auth.Verifier
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// NewRouter собирает HTTP маршруты сервиса
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"ETag"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		cfg.Responder.OK(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Verifier, cfg.Responder.AuthFailure))
		r.Use(auth.RequireRole(auth.RoleApplicant, cfg.Responder.AuthFailure))

		r.Route("/uploads", func(r chi.Router) {
			r.Post("/initiate", cfg.Uploads.Initiate)
			r.Post("/complete", cfg.Uploads.Complete)
			r.Post("/abort", cfg.Uploads.Abort)
			r.Get("/status", cfg.Uploads.Status)
			r.Post("/submit", cfg.Uploads.Submit)
		})

		r.Route("/application/{submissionId}", func(r chi.Router) {
			r.Get("/state", cfg.FormStates.GetState)
			r.Post("/state", cfg.FormStates.SaveState)
		})
	})

	return r
}
