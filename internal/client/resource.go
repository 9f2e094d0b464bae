package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/dukerupert/picky/internal/model"
)

// Resource is the typed API surface of one item collection.
type Resource[T any, P model.RecordPtr[T]] struct {
	c    *Client
	path string
}

func NewResource[T any, P model.RecordPtr[T]](c *Client) *Resource[T, P] {
	return &Resource[T, P]{c: c, path: "/api/" + model.KindOf[T, P]().Resource()}
}

func (r *Resource[T, P]) List(ctx context.Context) ([]T, error) {
	var items []T
	if err := r.c.do(ctx, http.MethodGet, r.path, nil, &items, true); err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// Create is sent once and never retried.
func (r *Resource[T, P]) Create(ctx context.Context, fields T) (T, error) {
	P(&fields).Common().ID = ""
	var created T
	err := r.c.do(ctx, http.MethodPost, r.path, fields, &created, false)
	return created, err
}

// Update sends the full record to the record's own id.
func (r *Resource[T, P]) Update(ctx context.Context, item T) (T, error) {
	var updated T
	err := r.c.do(ctx, http.MethodPut, r.itemPath(P(&item).Common().ID), item, &updated, true)
	return updated, err
}

func (r *Resource[T, P]) Delete(ctx context.Context, id string) error {
	return r.c.do(ctx, http.MethodDelete, r.itemPath(id), nil, nil, true)
}

// ReplaceAll replaces the whole collection. Only the shopping resource
// accepts it.
func (r *Resource[T, P]) ReplaceAll(ctx context.Context, items []T) ([]T, error) {
	if items == nil {
		items = []T{}
	}
	var replaced []T
	if err := r.c.do(ctx, http.MethodPost, r.path, items, &replaced, false); err != nil {
		return nil, err
	}
	return replaced, nil
}

func (r *Resource[T, P]) itemPath(id string) string {
	return r.path + "/" + url.PathEscape(id)
}
