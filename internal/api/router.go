package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/maltedev/fragrance-scraper/internal/metrics"
)

// OutboxStats reports relay backlog for /health. *database.Relay satisfies it.
type OutboxStats interface {
	GetPendingCount(ctx context.Context) (int64, error)
	GetDeadLetterCount(ctx context.Context) (int64, error)
}

const (
	pendingWarnThreshold    = 1000
	deadLetterFailThreshold = 100
)

type RouterConfig struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	// Outbox is nil when the file gateway is used.
	Outbox OutboxStats
}

func NewRouter(h *Handlers, cfg RouterConfig) http.Handler {
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"http://localhost:*", "https://localhost:*"}
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.health(cfg.Outbox))
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/scraper", func(r chi.Router) {
			r.Post("/perfume", h.StartSinglePage)
			r.Post("/brand", h.StartBrandListing)
			r.Post("/bulk", h.StartBulk)

			r.Get("/jobs", h.ListJobs)
			r.Post("/jobs/cancel-all", h.CancelAll)
			r.Get("/jobs/{jobID}", h.GetJob)
			r.Post("/jobs/{jobID}/retry", h.RetryFailed)
			r.Post("/jobs/{jobID}/cancel", h.CancelJob)
		})

		r.Get("/perfumes/{perfumeID}/similar", h.SimilarPerfumes)

		r.Route("/similarity", func(r chi.Router) {
			r.Get("/expand", h.ExpandNote)
			r.Post("/compare", h.CompareNotes)
			r.Get("/groups", h.ListGroups)
			r.Post("/groups", h.AddGroup)
		})
	})

	return r
}

func (h *Handlers) health(outbox OutboxStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := map[string]interface{}{"status": "ok"}
		status := http.StatusOK

		if outbox != nil {
			pending, err := outbox.GetPendingCount(r.Context())
			if err != nil {
				h.logger.Warn("failed to count pending outbox events", "error", err)
			}
			deadLetter, err := outbox.GetDeadLetterCount(r.Context())
			if err != nil {
				h.logger.Warn("failed to count dead letter events", "error", err)
			}

			health["outbox"] = map[string]int64{
				"pending":     pending,
				"dead_letter": deadLetter,
			}

			if pending > pendingWarnThreshold {
				health["status"] = "warning"
				health["message"] = "High number of pending outbox events"
			}
			if deadLetter > deadLetterFailThreshold {
				health["status"] = "error"
				health["message"] = "High number of dead letter events"
				status = http.StatusServiceUnavailable
			}
		}

		h.respondJSON(w, status, health)
	}
}
