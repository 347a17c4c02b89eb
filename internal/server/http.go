package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cgint/voxmlx/internal/config"
)

// SessionLister reports the ids of live sessions for the /sessions endpoint.
type SessionLister interface {
	SessionIDs() []string
}

// HTTPServer provides HTTP endpoints for monitoring the worker
type HTTPServer struct {
	server   *http.Server
	logger   *slog.Logger
	config   *config.Config
	sessions SessionLister
	gatherer prometheus.Gatherer

	startTime time.Time
}

// NewHTTPServer creates a new monitoring server. sessions may be nil for
// workers without a session table; gatherer nil falls back to the default
// registry.
func NewHTTPServer(cfg *config.Config, logger *slog.Logger,
	sessions SessionLister, gatherer prometheus.Gatherer) *HTTPServer {

	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	h := &HTTPServer{
		logger:    logger,
		config:    cfg,
		sessions:  sessions,
		gatherer:  gatherer,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// setupRoutes configures the monitoring routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/sessions", h.handleSessions)
	mux.HandleFunc("/config", h.handleConfig)
	mux.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", h.handleRoot)
}

// Start starts the HTTP server in the background
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting monitoring HTTP server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping monitoring HTTP server...")

	return h.server.Shutdown(ctx)
}

// handleHealth implements the /healthz endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
	}
	if h.sessions != nil {
		health["active_sessions"] = len(h.sessions.SessionIDs())
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleSessions implements the /sessions endpoint
func (h *HTTPServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ids := []string{}
	if h.sessions != nil {
		ids = h.sessions.SessionIDs()
	}

	response := map[string]interface{}{
		"total_sessions": len(ids),
		"timestamp":      time.Now().UTC(),
		"sessions":       ids,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sanitized := map[string]interface{}{
		"model": map[string]interface{}{
			"path":        h.config.Model.Path,
			"temperature": h.config.Model.Temperature,
		},
		"transcription": map[string]interface{}{
			"partial_interval":       h.config.Transcription.PartialInterval,
			"min_chunks_for_partial": h.config.Transcription.MinChunksForPartial,
			"cycle_interval":         h.config.Transcription.CycleInterval,
		},
		"synthesis": map[string]interface{}{
			"voice":       h.config.Synthesis.Voice,
			"speed":       h.config.Synthesis.Speed,
			"sample_rate": h.config.Synthesis.SampleRate,
			"chunk_size":  h.config.Synthesis.ChunkSize,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sanitized)
}

// handleRoot implements the / endpoint with endpoint documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "voxmlx speech worker",
		"endpoints": map[string]interface{}{
			"GET /":         "Endpoint documentation",
			"GET /healthz":  "Worker health check",
			"GET /sessions": "List live session ids",
			"GET /config":   "Sanitized configuration",
			"GET /metrics":  "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(apiDoc)
}
