package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenInMemory(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, db.Close()) })

	var name string
	err = db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='documents'").Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "documents", name)
}

func TestOpenFileRunsMigrationsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "picky.db")

	db, err := Open(path)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO documents (collection, id, body) VALUES ('shopping_items', 'a', '{}')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening must not re-run the create migration or lose rows.
	db, err = Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM documents").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestDocumentsSchema(t *testing.T) {
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rows, err := db.Query("SELECT name, pk FROM pragma_table_info('documents') ORDER BY cid")
	require.NoError(t, err)
	defer rows.Close()

	var cols []string
	var keys []string
	for rows.Next() {
		var name string
		var pk int
		require.NoError(t, rows.Scan(&name, &pk))
		cols = append(cols, name)
		if pk > 0 {
			keys = append(keys, name)
		}
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{"collection", "id", "body", "updated_at"}, cols)
	assert.Equal(t, []string{"collection", "id"}, keys)
}
