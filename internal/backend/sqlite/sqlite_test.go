package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/picky/internal/backend"
	"github.com/dukerupert/picky/internal/database"
)

func setupBackend(t *testing.T) *Backend {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	b := New(db)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func doc(id, body string) backend.Document {
	return backend.Document{ID: id, Body: []byte(body)}
}

func TestListEmptyCollection(t *testing.T) {
	b := setupBackend(t)

	docs, err := b.List(context.Background(), "shopping_items")
	require.NoError(t, err)
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
}

func TestPutGetDelete(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "larder_items", doc("a", `{"id":"a","name":"rice"}`)))

	got, err := b.Get(ctx, "larder_items", "a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"a","name":"rice"}`, string(got.Body))

	require.NoError(t, b.Delete(ctx, "larder_items", "a"))

	_, err = b.Get(ctx, "larder_items", "a")
	assert.ErrorIs(t, err, backend.ErrNotFound)
	assert.ErrorIs(t, b.Delete(ctx, "larder_items", "a"), backend.ErrNotFound)
}

func TestPutOverwriteKeepsPosition(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "meal_items", doc("1", `{"name":"soup"}`)))
	require.NoError(t, b.Put(ctx, "meal_items", doc("2", `{"name":"stew"}`)))
	require.NoError(t, b.Put(ctx, "meal_items", doc("1", `{"name":"broth"}`)))

	docs, err := b.List(ctx, "meal_items")
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "1", docs[0].ID)
	assert.JSONEq(t, `{"name":"broth"}`, string(docs[0].Body))
	assert.Equal(t, "2", docs[1].ID)
}

func TestCollectionsAreIndependent(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "shopping_items", doc("x", `{"name":"milk"}`)))
	require.NoError(t, b.Put(ctx, "larder_items", doc("x", `{"name":"flour"}`)))

	got, err := b.Get(ctx, "shopping_items", "x")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"milk"}`, string(got.Body))

	require.NoError(t, b.Delete(ctx, "larder_items", "x"))
	_, err = b.Get(ctx, "shopping_items", "x")
	assert.NoError(t, err)
}

func TestReplaceAll(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "shopping_items", doc("a", `{}`)))
	require.NoError(t, b.Put(ctx, "shopping_items", doc("b", `{}`)))
	require.NoError(t, b.Put(ctx, "larder_items", doc("keep", `{}`)))

	require.NoError(t, b.ReplaceAll(ctx, "shopping_items", []backend.Document{doc("c", `{"name":"milk"}`)}))

	docs, err := b.List(ctx, "shopping_items")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "c", docs[0].ID)

	larder, err := b.List(ctx, "larder_items")
	require.NoError(t, err)
	assert.Len(t, larder, 1)
}

func TestReplaceAllDuplicateIDRollsBack(t *testing.T) {
	b := setupBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "shopping_items", doc("a", `{}`)))

	err := b.ReplaceAll(ctx, "shopping_items", []backend.Document{doc("x", `{}`), doc("x", `{}`)})
	require.Error(t, err)

	docs, err := b.List(ctx, "shopping_items")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0].ID)
}
