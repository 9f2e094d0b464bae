package model

import (
	"strings"
	"time"
)

// Kind identifies one of the three independent item collections.
type Kind string

const (
	KindShopping Kind = "shopping"
	KindLarder   Kind = "larder"
	KindMeal     Kind = "meal"
)

// Kinds lists every item kind in display order.
var Kinds = []Kind{KindShopping, KindLarder, KindMeal}

// Collection returns the storage collection name for the kind.
func (k Kind) Collection() string {
	return string(k) + "_items"
}

// Resource returns the REST path segment for the kind.
func (k Kind) Resource() string {
	return string(k) + "-items"
}

// Base holds the fields every item shares. It is embedded by value so the
// JSON encoding of each item stays flat.
type Base struct {
	ID         string    `json:"id"`
	Name       string    `json:"name" validate:"required,max=200"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// Common gives generic code access to the shared fields.
func (b *Base) Common() *Base { return b }

// Normalize trims the name.
func (b *Base) Normalize() {
	b.Name = strings.TrimSpace(b.Name)
}

// Record is implemented by the three item types only: Common is promoted
// from the embedded Base.
type Record interface {
	Common() *Base
	Kind() Kind
	// Flagged reports the boolean the presentation sort partitions on.
	Flagged() bool
}

// RecordPtr constrains generic code to pointers of the item types.
type RecordPtr[T any] interface {
	*T
	Record
}

type ShoppingItem struct {
	Base
	InCart bool `json:"inCart"`
}

func (ShoppingItem) Kind() Kind { return KindShopping }
func (i ShoppingItem) Flagged() bool { return i.InCart }

type LarderItem struct {
	Base
	Reorder bool `json:"reorder"`
}

func (LarderItem) Kind() Kind { return KindLarder }
func (i LarderItem) Flagged() bool { return i.Reorder }

type MealItem struct {
	Base
	Ingredients string `json:"ingredients" validate:"max=4000"`
}

func (MealItem) Kind() Kind { return KindMeal }
func (MealItem) Flagged() bool { return false }

// KindOf returns the kind of the item type T.
func KindOf[T any, P RecordPtr[T]]() Kind {
	var zero T
	return P(&zero).Kind()
}
