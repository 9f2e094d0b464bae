package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	backend     Pinger
	storage     string
	environment string
	logger      *slog.Logger
}

func NewHealthHandler(backend Pinger, storage, environment string, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		backend:     backend,
		storage:     storage,
		environment: environment,
		logger:      logger.With("component", "health"),
	}
}

type healthResponse struct {
	Status      string    `json:"status"`
	Environment string    `json:"environment"`
	Storage     string    `json:"storage"`
	Database    string    `json:"database"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:      "healthy",
		Environment: h.environment,
		Storage:     h.storage,
		Database:    "connected",
		Timestamp:   time.Now().UTC(),
	}

	if err := h.backend.Ping(ctx); err != nil {
		h.logger.Warn("backend ping failed", "error", err)
		resp.Status = "unhealthy"
		resp.Database = "disconnected"
		resp.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
