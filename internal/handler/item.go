package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/dukerupert/picky/internal/model"
)

// MaxBodyBytes bounds every request body.
const MaxBodyBytes = 1 << 20

// ItemStore is the store surface the item handler needs.
type ItemStore[T any] interface {
	List(ctx context.Context) ([]T, error)
	Create(ctx context.Context, fields T) (*T, error)
	Update(ctx context.Context, id string, fields T) (*T, error)
	Delete(ctx context.Context, id string) error
	ReplaceAll(ctx context.Context, items []T) ([]T, error)
}

// ItemHandler serves one item resource.
type ItemHandler[T any] struct {
	store      ItemStore[T]
	kind       model.Kind
	logger     *slog.Logger
	replaceAll bool
}

func NewItemHandler[T any](kind model.Kind, s ItemStore[T], logger *slog.Logger) *ItemHandler[T] {
	return &ItemHandler[T]{
		store:  s,
		kind:   kind,
		logger: logger.With("component", "handler", "resource", kind.Resource()),
	}
}

// WithReplaceAll lets POST accept a JSON array that replaces the collection.
func (h *ItemHandler[T]) WithReplaceAll() *ItemHandler[T] {
	h.replaceAll = true
	return h
}

func (h *ItemHandler[T]) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.store.List(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, items)
}

// Create handles POST. An object body creates one record; an array body
// replaces the collection when enabled.
func (h *ItemHandler[T]) Create(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	if body[0] == '[' {
		if !h.replaceAll {
			writeBadRequest(w, fmt.Sprintf("%s does not accept an array body", h.kind.Resource()))
			return
		}
		var items []T
		if err := json.Unmarshal(body, &items); err != nil {
			writeBadRequest(w, "invalid JSON")
			return
		}
		replaced, err := h.store.ReplaceAll(r.Context(), items)
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		h.logger.Info("collection replaced", "count", len(replaced))
		writeJSON(w, http.StatusOK, replaced)
		return
	}

	var fields T
	if err := json.Unmarshal(body, &fields); err != nil {
		writeBadRequest(w, "invalid JSON")
		return
	}
	created, err := h.store.Create(r.Context(), fields)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// Update handles PUT. The id in the path wins over any id in the body.
func (h *ItemHandler[T]) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	var fields T
	if err := json.Unmarshal(body, &fields); err != nil {
		writeBadRequest(w, "invalid JSON")
		return
	}

	updated, err := h.store.Update(r.Context(), id, fields)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *ItemHandler[T]) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// readBody reads the size-limited body and returns it with leading
// whitespace removed. It writes a 400 and returns false when the body is
// empty or too large.
func (h *ItemHandler[T]) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeBadRequest(w, "request body too large")
			return nil, false
		}
		writeBadRequest(w, "failed to read request body")
		return nil, false
	}

	data = bytes.TrimLeft(data, " \t\r\n")
	if len(data) == 0 {
		writeBadRequest(w, "request body is required")
		return nil, false
	}
	return data, true
}
