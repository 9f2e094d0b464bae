// Package store implements item CRUD for the three collections on top of a
// document backend.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dukerupert/picky/internal/backend"
	"github.com/dukerupert/picky/internal/model"
)

// ItemStore stores one collection of T. P is *T.
type ItemStore[T any, P model.RecordPtr[T]] struct {
	backend  backend.Backend
	kind     model.Kind
	validate *validator.Validate
	now      func() time.Time
	newID    func() string
}

type (
	ShoppingStore = ItemStore[model.ShoppingItem, *model.ShoppingItem]
	LarderStore   = ItemStore[model.LarderItem, *model.LarderItem]
	MealStore     = ItemStore[model.MealItem, *model.MealItem]
)

func NewItemStore[T any, P model.RecordPtr[T]](b backend.Backend) *ItemStore[T, P] {
	return &ItemStore[T, P]{
		backend:  b,
		kind:     model.KindOf[T, P](),
		validate: newValidator(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Stores bundles the three item stores over one backend.
type Stores struct {
	Shopping *ShoppingStore
	Larder   *LarderStore
	Meals    *MealStore
}

func NewStores(b backend.Backend) *Stores {
	return &Stores{
		Shopping: NewItemStore[model.ShoppingItem](b),
		Larder:   NewItemStore[model.LarderItem](b),
		Meals:    NewItemStore[model.MealItem](b),
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (s *ItemStore[T, P]) Kind() model.Kind {
	return s.kind
}

func (s *ItemStore[T, P]) collection() string {
	return s.kind.Collection()
}

// List returns every record in backend order. A collection that was never
// written is empty.
func (s *ItemStore[T, P]) List(ctx context.Context) ([]T, error) {
	docs, err := s.backend.List(ctx, s.collection())
	if err != nil {
		return nil, &BackendUnavailableError{Op: "list " + s.collection(), Err: err}
	}

	items := make([]T, 0, len(docs))
	for _, doc := range docs {
		item, err := s.decode(doc)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, nil
}

func (s *ItemStore[T, P]) Get(ctx context.Context, id string) (*T, error) {
	doc, err := s.backend.Get(ctx, s.collection(), id)
	if errors.Is(err, backend.ErrNotFound) {
		return nil, &NotFoundError{Kind: s.kind, ID: id}
	}
	if err != nil {
		return nil, &BackendUnavailableError{Op: "get " + s.collection(), Err: err}
	}
	return s.decode(*doc)
}

// Create persists fields as a new record. Any id or timestamps on fields are
// replaced.
func (s *ItemStore[T, P]) Create(ctx context.Context, fields T) (*T, error) {
	item := fields
	p := P(&item)
	if err := s.check(p); err != nil {
		return nil, err
	}

	base := p.Common()
	now := s.now().UTC()
	base.ID = s.newID()
	base.CreatedAt = now
	base.ModifiedAt = now

	if err := s.put(ctx, "create", p); err != nil {
		return nil, err
	}
	return &item, nil
}

// Update replaces the mutable fields of the record with id. The id and
// createdAt of the stored record are kept.
func (s *ItemStore[T, P]) Update(ctx context.Context, id string, fields T) (*T, error) {
	item := fields
	p := P(&item)
	if err := s.check(p); err != nil {
		return nil, err
	}

	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	base := p.Common()
	base.ID = id
	base.CreatedAt = P(existing).Common().CreatedAt
	base.ModifiedAt = s.now().UTC()

	if err := s.put(ctx, "update", p); err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *ItemStore[T, P]) Delete(ctx context.Context, id string) error {
	err := s.backend.Delete(ctx, s.collection(), id)
	if errors.Is(err, backend.ErrNotFound) {
		return &NotFoundError{Kind: s.kind, ID: id}
	}
	if err != nil {
		return &BackendUnavailableError{Op: "delete " + s.collection(), Err: err}
	}
	return nil
}

// ReplaceAll substitutes the whole collection. Every record is validated
// before anything is written. Supplied ids are kept, missing ones assigned.
func (s *ItemStore[T, P]) ReplaceAll(ctx context.Context, items []T) ([]T, error) {
	out := make([]T, len(items))
	copy(out, items)

	now := s.now().UTC()
	seen := make(map[string]bool, len(out))
	docs := make([]backend.Document, len(out))

	for i := range out {
		p := P(&out[i])
		if err := s.check(p); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				ve.Field = fmt.Sprintf("[%d].%s", i, ve.Field)
				ve.Message = fmt.Sprintf("item %d: %s", i, ve.Message)
			}
			return nil, err
		}

		base := p.Common()
		base.ID = strings.TrimSpace(base.ID)
		if base.ID == "" {
			base.ID = s.newID()
		}
		if seen[base.ID] {
			return nil, &ValidationError{
				Field:   fmt.Sprintf("[%d].id", i),
				Message: fmt.Sprintf("duplicate id %q", base.ID),
			}
		}
		seen[base.ID] = true

		if base.CreatedAt.IsZero() {
			base.CreatedAt = now
		}
		base.ModifiedAt = now

		doc, err := s.encode(p)
		if err != nil {
			return nil, err
		}
		docs[i] = doc
	}

	if err := s.backend.ReplaceAll(ctx, s.collection(), docs); err != nil {
		return nil, &BackendUnavailableError{Op: "replace " + s.collection(), Err: err}
	}
	return out, nil
}

// check normalizes p in place and validates it.
func (s *ItemStore[T, P]) check(p P) error {
	p.Common().Normalize()

	err := s.validate.Struct(p)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("validate %s item: %w", s.kind, err)
	}

	fe := fieldErrs[0]
	var msg string
	switch fe.Tag() {
	case "required":
		msg = fmt.Sprintf("item %s is required", fe.Field())
	case "max":
		msg = fmt.Sprintf("item %s must be at most %s characters", fe.Field(), fe.Param())
	default:
		msg = fmt.Sprintf("item %s is invalid", fe.Field())
	}
	return &ValidationError{Field: fe.Field(), Message: msg}
}

func (s *ItemStore[T, P]) put(ctx context.Context, op string, p P) error {
	doc, err := s.encode(p)
	if err != nil {
		return err
	}
	if err := s.backend.Put(ctx, s.collection(), doc); err != nil {
		return &BackendUnavailableError{Op: op + " " + s.collection(), Err: err}
	}
	return nil
}

func (s *ItemStore[T, P]) encode(p P) (backend.Document, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return backend.Document{}, fmt.Errorf("encode %s item: %w", s.kind, err)
	}
	return backend.Document{ID: p.Common().ID, Body: body}, nil
}

// decode reads a stored document. The document id is authoritative over
// whatever the body carries.
func (s *ItemStore[T, P]) decode(doc backend.Document) (*T, error) {
	var item T
	if err := json.Unmarshal(doc.Body, &item); err != nil {
		return nil, fmt.Errorf("decode %s item %s: %w", s.kind, doc.ID, err)
	}
	P(&item).Common().ID = doc.ID
	return &item, nil
}
