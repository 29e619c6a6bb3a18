package router

import (
	"encoding/json"
	"net/http"

	"github.com/brightpaw/vetdesk-ai-platform/internal/http/handlers"
	httpmiddleware "github.com/brightpaw/vetdesk-ai-platform/internal/http/middleware"
	"github.com/brightpaw/vetdesk-ai-platform/pkg/logging"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	VoiceTools     *handlers.VoiceToolsHandler
	MetricsHandler http.Handler
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthCheck)

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Webhook called by the voice platform when the assistant invokes a
	// tool mid-call.
	if cfg.VoiceTools != nil {
		r.Post("/webhooks/voice/tools", cfg.VoiceTools.HandleToolCall)
	}

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
