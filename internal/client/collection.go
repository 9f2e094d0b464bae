package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dukerupert/picky/internal/model"
)

// EntryState tags a local entry as an unsaved draft or a persisted record.
type EntryState int

const (
	Draft EntryState = iota
	Persisted
)

func (s EntryState) String() string {
	if s == Draft {
		return "draft"
	}
	return "persisted"
}

// Entry is one row of local state. For persisted entries ID equals the
// record id; drafts carry a placeholder id and an empty record id.
type Entry[T any] struct {
	ID    string
	State EntryState
	Item  T
}

// Collection is the local mirror of one item collection. Local state only
// changes after the server confirms a request.
type Collection[T any, P model.RecordPtr[T]] struct {
	res    *Resource[T, P]
	status *StatusLine
	label  string

	mu        sync.Mutex
	entries   []Entry[T]
	err       error
	nextDraft int
	inFlight  map[string]bool
	adding    bool
}

func NewCollection[T any, P model.RecordPtr[T]](res *Resource[T, P], status *StatusLine) *Collection[T, P] {
	return &Collection[T, P]{
		res:      res,
		status:   status,
		label:    string(model.KindOf[T, P]()),
		inFlight: make(map[string]bool),
	}
}

// Load replaces the persisted entries with the server's list. Drafts are
// kept. On failure the previous entries stay and Err reports the failure.
func (c *Collection[T, P]) Load(ctx context.Context) error {
	c.status.Set(LevelLoading, "Loading %s items...", c.label)

	items, err := c.res.List(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.err = err
		c.status.Set(LevelError, "Failed to load %s items: %v", c.label, err)
		return fmt.Errorf("load %s items: %w", c.label, err)
	}

	entries := make([]Entry[T], 0, len(items))
	for _, item := range items {
		entries = append(entries, Entry[T]{ID: P(&item).Common().ID, State: Persisted, Item: item})
	}
	for _, e := range c.entries {
		if e.State == Draft {
			entries = append(entries, e)
		}
	}
	c.entries = entries
	c.err = nil
	c.status.Set(LevelSuccess, "Loaded %d %s items", len(items), c.label)
	return nil
}

// NewDraft appends an empty draft row and returns its placeholder id.
func (c *Collection[T, P]) NewDraft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextDraft++
	id := fmt.Sprintf("draft-%d", c.nextDraft)
	c.entries = append(c.entries, Entry[T]{ID: id, State: Draft})
	return id
}

// SetDraft edits a draft locally. A draft that is being saved cannot be
// edited.
func (c *Collection[T, P]) SetDraft(localID string, mutate func(P)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.index(localID)
	if i < 0 || c.entries[i].State != Draft {
		return fmt.Errorf("draft %q: %w", localID, ErrUnknownID)
	}
	if c.inFlight[localID] {
		return ErrBusy
	}
	mutate(P(&c.entries[i].Item))
	return nil
}

// SaveDraft persists a draft once its name is non-empty and replaces it in
// place with the server record. It reports whether a record was created.
func (c *Collection[T, P]) SaveDraft(ctx context.Context, localID string) (bool, error) {
	c.mu.Lock()
	i := c.index(localID)
	if i < 0 || c.entries[i].State != Draft {
		c.mu.Unlock()
		return false, fmt.Errorf("draft %q: %w", localID, ErrUnknownID)
	}
	item := c.entries[i].Item
	if strings.TrimSpace(P(&item).Common().Name) == "" {
		c.mu.Unlock()
		return false, nil
	}
	if c.inFlight[localID] {
		c.mu.Unlock()
		return false, ErrBusy
	}
	c.inFlight[localID] = true
	c.mu.Unlock()

	c.status.Set(LevelLoading, "Saving %s item...", c.label)
	created, err := c.res.Create(ctx, item)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, localID)
	if err != nil {
		c.status.Set(LevelError, "Failed to save %s item: %v", c.label, err)
		return false, err
	}

	entry := Entry[T]{ID: P(&created).Common().ID, State: Persisted, Item: created}
	// A load during the save may already have brought in the record.
	c.remove(entry.ID)
	if i := c.index(localID); i >= 0 {
		c.entries[i] = entry
	} else {
		c.entries = append(c.entries, entry)
	}
	c.status.Set(LevelSuccess, "Added %s", P(&created).Common().Name)
	return true, nil
}

// Add creates a record and appends the server's copy.
func (c *Collection[T, P]) Add(ctx context.Context, fields T) (T, error) {
	var zero T
	c.mu.Lock()
	if c.adding {
		c.mu.Unlock()
		return zero, ErrBusy
	}
	c.adding = true
	c.mu.Unlock()

	c.status.Set(LevelLoading, "Adding %s item...", c.label)
	created, err := c.res.Create(ctx, fields)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.adding = false
	if err != nil {
		c.status.Set(LevelError, "Failed to add %s item: %v", c.label, err)
		return zero, err
	}
	c.upsert(Entry[T]{ID: P(&created).Common().ID, State: Persisted, Item: created})
	c.status.Set(LevelSuccess, "Added %s", P(&created).Common().Name)
	return created, nil
}

// Update applies mutate to a copy of the local record, sends the merged
// record and replaces the local record with the server's response.
func (c *Collection[T, P]) Update(ctx context.Context, id string, mutate func(P)) (T, error) {
	var zero T
	c.mu.Lock()
	i := c.index(id)
	if i < 0 || c.entries[i].State != Persisted {
		c.mu.Unlock()
		return zero, fmt.Errorf("%s item %q: %w", c.label, id, ErrUnknownID)
	}
	if c.inFlight[id] {
		c.mu.Unlock()
		return zero, ErrBusy
	}
	merged := c.entries[i].Item
	mutate(P(&merged))
	P(&merged).Common().ID = id
	c.inFlight[id] = true
	c.mu.Unlock()

	c.status.Set(LevelLoading, "Saving %s item...", c.label)
	updated, err := c.res.Update(ctx, merged)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, id)
	if err != nil {
		c.status.Set(LevelError, "Failed to update %s item: %v", c.label, err)
		return zero, err
	}
	if i := c.index(id); i >= 0 {
		c.entries[i].Item = updated
	}
	c.status.Set(LevelSuccess, "Updated %s", P(&updated).Common().Name)
	return updated, nil
}

// Delete removes a record on the server and then locally. A record that is
// already gone on the server counts as deleted. Drafts are dropped locally.
func (c *Collection[T, P]) Delete(ctx context.Context, id string) error {
	c.mu.Lock()
	i := c.index(id)
	if i < 0 {
		c.mu.Unlock()
		return fmt.Errorf("%s item %q: %w", c.label, id, ErrUnknownID)
	}
	if c.entries[i].State == Draft {
		c.entries = append(c.entries[:i], c.entries[i+1:]...)
		c.mu.Unlock()
		return nil
	}
	if c.inFlight[id] {
		c.mu.Unlock()
		return ErrBusy
	}
	c.inFlight[id] = true
	c.mu.Unlock()

	c.status.Set(LevelLoading, "Deleting %s item...", c.label)
	err := c.res.Delete(ctx, id)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, id)
	if err != nil && !IsNotFound(err) {
		c.status.Set(LevelError, "Failed to delete %s item: %v", c.label, err)
		return err
	}
	c.remove(id)
	c.status.Set(LevelSuccess, "Deleted %s item", c.label)
	return nil
}

// RemoveFlagged deletes every persisted record whose flag is set, after
// confirm accepts the count. Records whose delete fails stay in local state
// and their errors are joined. It returns the number removed.
func (c *Collection[T, P]) RemoveFlagged(ctx context.Context, confirm func(count int) bool) (int, error) {
	c.mu.Lock()
	var ids []string
	for _, e := range c.entries {
		if e.State == Persisted && P(&e.Item).Flagged() && !c.inFlight[e.ID] {
			ids = append(ids, e.ID)
		}
	}
	c.mu.Unlock()

	if len(ids) == 0 {
		return 0, nil
	}
	if confirm != nil && !confirm(len(ids)) {
		return 0, ErrCancelled
	}

	c.status.Set(LevelLoading, "Removing %d %s items...", len(ids), c.label)
	var errs []error
	removed := 0
	for _, id := range ids {
		err := c.res.Delete(ctx, id)
		if err != nil && !IsNotFound(err) {
			errs = append(errs, fmt.Errorf("delete %s: %w", id, err))
			continue
		}
		c.mu.Lock()
		c.remove(id)
		c.mu.Unlock()
		removed++
	}

	if err := errors.Join(errs...); err != nil {
		c.status.Set(LevelError, "Removed %d of %d %s items: %v", removed, len(ids), c.label, err)
		return removed, err
	}
	c.status.Set(LevelSuccess, "Removed %d %s items", removed, c.label)
	return removed, nil
}

// Sorted returns the entries with unflagged records before flagged ones.
// Relative order within each group is preserved.
func (c *Collection[T, P]) Sorted() []Entry[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry[T], 0, len(c.entries))
	var flagged []Entry[T]
	for _, e := range c.entries {
		if P(&e.Item).Flagged() {
			flagged = append(flagged, e)
			continue
		}
		out = append(out, e)
	}
	return append(out, flagged...)
}

// Entries returns a copy of the entries in insertion order.
func (c *Collection[T, P]) Entries() []Entry[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry[T], len(c.entries))
	copy(out, c.entries)
	return out
}

// Err returns the error of the last load, if it failed.
func (c *Collection[T, P]) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Collection[T, P]) index(id string) int {
	for i, e := range c.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// upsert replaces the entry with the same id or appends e.
func (c *Collection[T, P]) upsert(e Entry[T]) {
	if i := c.index(e.ID); i >= 0 {
		c.entries[i] = e
		return
	}
	c.entries = append(c.entries, e)
}

func (c *Collection[T, P]) remove(id string) {
	if i := c.index(id); i >= 0 {
		c.entries = append(c.entries[:i], c.entries[i+1:]...)
	}
}
