// Package jsonfile stores each collection as <dir>/<collection>.json in the
// legacy Picky layout:
//
//	{"items": [{"id": "...", ...}], "lastUpdated": "2024-01-02T15:04:05Z"}
//
// Every operation re-reads the file under a cross-process lock so several
// processes can share a data directory.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/dukerupert/picky/internal/backend"
)

const (
	lockTimeout    = 3 * time.Second
	lockRetryDelay = 50 * time.Millisecond
)

// LastUpdated is kept as text: older files carry timestamps without a zone.
type fileData struct {
	Items       []json.RawMessage `json:"items"`
	LastUpdated string            `json:"lastUpdated"`
}

type Backend struct {
	dir string
	now func() time.Time

	mu    sync.Mutex
	locks map[string]*collectionLock
}

type collectionLock struct {
	mu    sync.Mutex
	flock *flock.Flock
}

// New creates dir if needed and returns a backend rooted there.
func New(dir string) (*Backend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Backend{
		dir:   dir,
		now:   time.Now,
		locks: make(map[string]*collectionLock),
	}, nil
}

func (b *Backend) path(collection string) string {
	return filepath.Join(b.dir, collection+".json")
}

func (b *Backend) lockFor(collection string) *collectionLock {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.locks[collection]
	if !ok {
		l = &collectionLock{flock: flock.New(b.path(collection) + ".lock")}
		b.locks[collection] = l
	}
	return l
}

// withLock runs fn holding the in-process mutex and the file lock for the
// collection. Reads take a shared file lock, writes an exclusive one.
func (b *Backend) withLock(ctx context.Context, collection string, write bool, fn func() error) error {
	l := b.lockFor(collection)
	l.mu.Lock()
	defer l.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()

	var (
		locked bool
		err    error
	)
	if write {
		locked, err = l.flock.TryLockContext(ctx, lockRetryDelay)
	} else {
		locked, err = l.flock.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		return fmt.Errorf("lock %s: %w", collection, err)
	}
	if !locked {
		return fmt.Errorf("lock %s: timed out", collection)
	}
	defer func() { _ = l.flock.Unlock() }()

	return fn()
}

// load reads the collection file. A missing or empty file is an empty
// collection. Items written by older versions are normalized: numeric ids
// become strings, items without an id get a fresh one, and timestamps are
// rewritten as RFC 3339. assigned reports whether any fresh id was generated;
// those ids only exist in memory until the file is saved.
func (b *Backend) load(collection string) (docs []backend.Document, assigned bool, err error) {
	data, err := os.ReadFile(b.path(collection))
	if errors.Is(err, os.ErrNotExist) {
		return []backend.Document{}, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %s: %w", collection, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []backend.Document{}, false, nil
	}

	var fd fileData
	if err := json.Unmarshal(data, &fd); err != nil {
		return nil, false, fmt.Errorf("parse %s: %w", collection, err)
	}

	docs = make([]backend.Document, 0, len(fd.Items))
	for i, raw := range fd.Items {
		doc, fresh, err := normalizeItem(raw)
		if err != nil {
			return nil, false, fmt.Errorf("parse %s item %d: %w", collection, i, err)
		}
		assigned = assigned || fresh
		docs = append(docs, doc)
	}
	return docs, assigned, nil
}

// read loads the collection under the shared lock. When load had to assign
// ids, the file is reloaded and saved under the exclusive lock so the ids
// stay stable across reads.
func (b *Backend) read(ctx context.Context, collection string) ([]backend.Document, error) {
	var (
		docs     []backend.Document
		assigned bool
	)
	err := b.withLock(ctx, collection, false, func() error {
		var err error
		docs, assigned, err = b.load(collection)
		return err
	})
	if err != nil || !assigned {
		return docs, err
	}

	err = b.withLock(ctx, collection, true, func() error {
		var err error
		docs, assigned, err = b.load(collection)
		if err != nil || !assigned {
			return err
		}
		return b.save(collection, docs)
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// normalizeItem returns the item as a document and reports whether its id
// was generated.
func normalizeItem(raw json.RawMessage) (backend.Document, bool, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return backend.Document{}, false, err
	}

	id, changed, fresh, err := normalizeID(fields)
	if err != nil {
		return backend.Document{}, false, err
	}
	if normalizeTimestamps(fields) {
		changed = true
	}
	if !changed {
		return backend.Document{ID: id, Body: raw}, false, nil
	}

	body, err := json.Marshal(fields)
	if err != nil {
		return backend.Document{}, false, err
	}
	return backend.Document{ID: id, Body: body}, fresh, nil
}

// normalizeID makes sure fields["id"] is a JSON string. It reports whether
// the id had to be rewritten and whether it was generated.
func normalizeID(fields map[string]json.RawMessage) (id string, rewritten, generated bool, err error) {
	rawID, ok := fields["id"]
	switch {
	case !ok || string(rawID) == "null":
		id = uuid.NewString()
		generated = true
	case len(rawID) > 0 && rawID[0] == '"':
		if err := json.Unmarshal(rawID, &id); err != nil {
			return "", false, false, fmt.Errorf("id: %w", err)
		}
		return id, false, false, nil
	default:
		var n json.Number
		if err := json.Unmarshal(rawID, &n); err != nil {
			return "", false, false, fmt.Errorf("id: %w", err)
		}
		id = n.String()
	}

	quoted, err := json.Marshal(id)
	if err != nil {
		return "", false, false, err
	}
	fields["id"] = quoted
	return id, true, generated, nil
}

var legacyTimestampKeys = map[string]string{
	"created_at": "createdAt",
	"updated_at": "modifiedAt",
}

// legacyTimeLayout matches timestamps written without a zone. They are read
// as UTC.
const legacyTimeLayout = "2006-01-02T15:04:05.999999999"

// normalizeTimestamps renames snake_case timestamp keys and rewrites zone-less
// or unparseable timestamps so they decode as RFC 3339.
func normalizeTimestamps(fields map[string]json.RawMessage) bool {
	changed := false
	for old, key := range legacyTimestampKeys {
		if v, ok := fields[old]; ok {
			if _, exists := fields[key]; !exists {
				fields[key] = v
			}
			delete(fields, old)
			changed = true
		}
	}

	for _, key := range []string{"createdAt", "modifiedAt"} {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			delete(fields, key)
			changed = true
			continue
		}
		if _, err := time.Parse(time.RFC3339Nano, s); err == nil {
			continue
		}
		changed = true
		t, err := time.Parse(legacyTimeLayout, s)
		if err != nil {
			delete(fields, key)
			continue
		}
		fields[key], _ = json.Marshal(t.UTC())
	}
	return changed
}

// save writes to a temp file and renames it over the collection file.
func (b *Backend) save(collection string, docs []backend.Document) error {
	fd := fileData{
		Items:       make([]json.RawMessage, len(docs)),
		LastUpdated: b.now().UTC().Format(time.RFC3339),
	}
	for i, doc := range docs {
		fd.Items[i] = doc.Body
	}

	data, err := json.MarshalIndent(fd, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", collection, err)
	}

	path := b.path(collection)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func (b *Backend) List(ctx context.Context, collection string) ([]backend.Document, error) {
	return b.read(ctx, collection)
}

func (b *Backend) Get(ctx context.Context, collection, id string) (*backend.Document, error) {
	docs, err := b.read(ctx, collection)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		if docs[i].ID == id {
			return &docs[i], nil
		}
	}
	return nil, backend.ErrNotFound
}

func (b *Backend) Put(ctx context.Context, collection string, doc backend.Document) error {
	return b.withLock(ctx, collection, true, func() error {
		docs, _, err := b.load(collection)
		if err != nil {
			return err
		}
		replaced := false
		for i := range docs {
			if docs[i].ID == doc.ID {
				docs[i] = doc
				replaced = true
				break
			}
		}
		if !replaced {
			docs = append(docs, doc)
		}
		return b.save(collection, docs)
	})
}

func (b *Backend) Delete(ctx context.Context, collection, id string) error {
	return b.withLock(ctx, collection, true, func() error {
		docs, _, err := b.load(collection)
		if err != nil {
			return err
		}
		for i := range docs {
			if docs[i].ID == id {
				docs = append(docs[:i], docs[i+1:]...)
				return b.save(collection, docs)
			}
		}
		return backend.ErrNotFound
	})
}

func (b *Backend) ReplaceAll(ctx context.Context, collection string, docs []backend.Document) error {
	seen := make(map[string]bool, len(docs))
	for _, doc := range docs {
		if seen[doc.ID] {
			return fmt.Errorf("replace %s: duplicate id %q", collection, doc.ID)
		}
		seen[doc.ID] = true
	}
	return b.withLock(ctx, collection, true, func() error {
		return b.save(collection, docs)
	})
}

// Ping checks that the data directory is still a usable directory.
func (b *Backend) Ping(ctx context.Context) error {
	info, err := os.Stat(b.dir)
	if err != nil {
		return fmt.Errorf("stat data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data dir %s is not a directory", b.dir)
	}
	return nil
}

func (b *Backend) Close() error {
	return nil
}
