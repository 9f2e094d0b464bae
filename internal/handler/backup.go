package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/picky/internal/backup"
)

// BackupRunner is the part of the backup manager exposed over HTTP.
type BackupRunner interface {
	Status() backup.Status
	RunNow(ctx context.Context) (string, error)
}

type BackupHandler struct {
	manager BackupRunner
	logger  *slog.Logger
}

func NewBackupHandler(m BackupRunner, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{manager: m, logger: logger.With("component", "backup_handler")}
}

func (h *BackupHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.Status())
}

// Run starts a backup and waits for it to finish.
func (h *BackupHandler) Run(w http.ResponseWriter, r *http.Request) {
	key, err := h.manager.RunNow(r.Context())
	switch {
	case errors.Is(err, backup.ErrDisabled):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Code: codeUnavailable})
		return
	case errors.Is(err, backup.ErrInProgress):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: codeBadRequest})
		return
	case err != nil:
		h.logger.Error("backup failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "backup failed", Code: codeUnavailable})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key})
}
