package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/promptlab/promptlab/internal/catalog"
	"github.com/promptlab/promptlab/internal/chat"
	"github.com/promptlab/promptlab/internal/evaluator"
	"github.com/promptlab/promptlab/internal/history"
	httpmiddleware "github.com/promptlab/promptlab/internal/http/middleware"
	"github.com/promptlab/promptlab/internal/llm"
	"github.com/promptlab/promptlab/internal/splittest"
	"github.com/promptlab/promptlab/internal/timeline"
	"github.com/promptlab/promptlab/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger           *logging.Logger
	CatalogHandler   *catalog.Handler
	ChatHandler      *chat.Handler
	SplitTestHandler *splittest.Handler
	EvaluatorHandler *evaluator.Handler
	TimelineHandler  *timeline.Handler
	HistoryHandler   *history.Handler
	MetricsHandler   http.Handler

	AdminAuthSecret    string
	CORSAllowedOrigins []string

	// Rate limit for the completion-heavy endpoints; zero disables it.
	CompletionRateLimit float64
	CompletionBurst     int
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(api chi.Router) {
		api.Get("/models", listModels)

		if cfg.CatalogHandler != nil {
			api.Mount("/", cfg.CatalogHandler.Routes())
		}
		if cfg.ChatHandler != nil {
			api.Mount("/chats", cfg.ChatHandler.Routes())
		}

		completions := api
		if cfg.CompletionRateLimit > 0 {
			completions = api.With(httpmiddleware.RateLimit(cfg.CompletionRateLimit, cfg.CompletionBurst))
		}
		if cfg.SplitTestHandler != nil {
			completions.Mount("/split-tests", cfg.SplitTestHandler.Routes())
		}
		if cfg.EvaluatorHandler != nil {
			completions.Mount("/evaluate", cfg.EvaluatorHandler.Routes())
		}

		if cfg.TimelineHandler != nil {
			api.Mount("/timeline", cfg.TimelineHandler.Routes())
		}
	})

	// Raw history access is destructive and stays behind admin auth.
	if cfg.HistoryHandler != nil && cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Mount("/history", cfg.HistoryHandler.Routes())
		})
	}

	return r
}

// listModels returns the selectable model catalog.
func listModels(w http.ResponseWriter, _ *http.Request) {
	type model struct {
		Value    string `json:"value"`
		Label    string `json:"label"`
		Provider string `json:"provider"`
	}
	out := make([]model, 0, len(llm.Models))
	for _, m := range llm.Models {
		out = append(out, model{Value: m.Value, Label: m.Label, Provider: string(m.Provider)})
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(out); err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
