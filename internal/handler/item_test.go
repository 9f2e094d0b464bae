package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/picky/internal/backend/sqlite"
	"github.com/dukerupert/picky/internal/database"
	"github.com/dukerupert/picky/internal/model"
	"github.com/dukerupert/picky/internal/store"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func setupMux(t *testing.T) *http.ServeMux {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	b := sqlite.New(db)
	t.Cleanup(func() { _ = b.Close() })
	stores := store.NewStores(b)

	mux := http.NewServeMux()
	register(mux, NewItemHandler[model.ShoppingItem](model.KindShopping, stores.Shopping, discard).WithReplaceAll())
	register(mux, NewItemHandler[model.LarderItem](model.KindLarder, stores.Larder, discard))
	return mux
}

func register[T any](mux *http.ServeMux, h *ItemHandler[T]) {
	base := "/api/" + h.kind.Resource()
	mux.HandleFunc("GET "+base, h.List)
	mux.HandleFunc("POST "+base, h.Create)
	mux.HandleFunc("PUT "+base+"/{id}", h.Update)
	mux.HandleFunc("DELETE "+base+"/{id}", h.Delete)
}

func do(t *testing.T, mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestListEmptyIsArray(t *testing.T) {
	mux := setupMux(t)

	rec := do(t, mux, http.MethodGet, "/api/shopping-items", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCreateReturnsBareRecord(t *testing.T) {
	mux := setupMux(t)

	rec := do(t, mux, http.MethodPost, "/api/shopping-items", `{"name":"Milk"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var item map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.NotEmpty(t, item["id"])
	assert.Equal(t, "Milk", item["name"])
	assert.Equal(t, false, item["inCart"])
	assert.NotContains(t, item, "success")
}

func TestCreateEmptyNameIs400(t *testing.T) {
	mux := setupMux(t)

	rec := do(t, mux, http.MethodPost, "/api/larder-items", `{"name":"   "}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeValidation, decodeError(t, rec).Code)

	rec = do(t, mux, http.MethodGet, "/api/larder-items", "")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestCreateBadBodies(t *testing.T) {
	mux := setupMux(t)

	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"whitespace", "  \n "},
		{"malformed", `{"name":`},
		{"wrong type", `{"name": 5}`},
		{"too large", `{"name":"` + strings.Repeat("x", MaxBodyBytes) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, mux, http.MethodPost, "/api/shopping-items", tt.body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, codeBadRequest, decodeError(t, rec).Code)
		})
	}
}

func TestPostArrayReplacesShopping(t *testing.T) {
	mux := setupMux(t)

	do(t, mux, http.MethodPost, "/api/shopping-items", `{"name":"Old"}`)

	rec := do(t, mux, http.MethodPost, "/api/shopping-items", ` [{"id":"a","name":"Eggs","inCart":true},{"name":"Ham"}]`)
	require.Equal(t, http.StatusOK, rec.Code)

	var items []model.ShoppingItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &items))
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].ID)
	assert.True(t, items[0].InCart)

	rec = do(t, mux, http.MethodGet, "/api/shopping-items", "")
	var listed []model.ShoppingItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed, 2)
}

func TestPostArrayRejectedForLarder(t *testing.T) {
	mux := setupMux(t)

	rec := do(t, mux, http.MethodPost, "/api/larder-items", `[{"name":"Rice"}]`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, codeBadRequest, decodeError(t, rec).Code)
}

func TestUpdatePathIDWins(t *testing.T) {
	mux := setupMux(t)

	rec := do(t, mux, http.MethodPost, "/api/larder-items", `{"name":"Flour"}`)
	var created model.LarderItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = do(t, mux, http.MethodPut, "/api/larder-items/"+created.ID, `{"id":"other","name":"Flour","reorder":true}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var updated model.LarderItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, created.ID, updated.ID)
	assert.True(t, updated.Reorder)
}

func TestUpdateMissingIs404(t *testing.T) {
	mux := setupMux(t)

	rec := do(t, mux, http.MethodPut, "/api/larder-items/nope", `{"name":"Flour"}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, codeNotFound, decodeError(t, rec).Code)
}

func TestDelete(t *testing.T) {
	mux := setupMux(t)

	rec := do(t, mux, http.MethodPost, "/api/shopping-items", `{"name":"Milk"}`)
	var created model.ShoppingItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = do(t, mux, http.MethodDelete, "/api/shopping-items/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = do(t, mux, http.MethodDelete, "/api/shopping-items/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type brokenStore struct{}

func (brokenStore) List(context.Context) ([]model.MealItem, error) {
	return nil, &store.BackendUnavailableError{Op: "list meal_items", Err: errors.New("disk gone")}
}
func (brokenStore) Create(context.Context, model.MealItem) (*model.MealItem, error) {
	return nil, errors.New("boom")
}
func (brokenStore) Update(context.Context, string, model.MealItem) (*model.MealItem, error) {
	return nil, errors.New("boom")
}
func (brokenStore) Delete(context.Context, string) error { return errors.New("boom") }
func (brokenStore) ReplaceAll(context.Context, []model.MealItem) ([]model.MealItem, error) {
	return nil, errors.New("boom")
}

func TestBackendFailureIs500(t *testing.T) {
	mux := http.NewServeMux()
	register(mux, NewItemHandler[model.MealItem](model.KindMeal, brokenStore{}, discard))

	rec := do(t, mux, http.MethodGet, "/api/meal-items", "")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, codeUnavailable, resp.Code)
	assert.NotContains(t, resp.Error, "disk gone")

	rec = do(t, mux, http.MethodDelete, "/api/meal-items/x", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
