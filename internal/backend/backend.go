// Package backend defines the persistence contract the item store delegates
// to. Implementations store opaque JSON documents keyed by id inside named
// collections; they know nothing about item fields.
package backend

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned by Get and Delete when the id is not in the collection.
var ErrNotFound = errors.New("document not found")

// Document is one stored record. Body is the full JSON encoding of the item.
type Document struct {
	ID   string
	Body json.RawMessage
}

// Backend is a document store with independent collections. A collection
// that was never written behaves as empty.
type Backend interface {
	// List returns every document in the collection in insertion order.
	List(ctx context.Context, collection string) ([]Document, error)
	Get(ctx context.Context, collection, id string) (*Document, error)
	// Put creates or unconditionally overwrites the document with doc.ID.
	Put(ctx context.Context, collection string, doc Document) error
	Delete(ctx context.Context, collection, id string) error
	// ReplaceAll substitutes the whole collection with docs.
	ReplaceAll(ctx context.Context, collection string, docs []Document) error
	Ping(ctx context.Context) error
	Close() error
}
