package backup

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/picky/internal/backend"
	"github.com/dukerupert/picky/internal/backend/sqlite"
	"github.com/dukerupert/picky/internal/database"
)

// mockS3Client implements s3Client for testing.
type mockS3Client struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*input.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3Client) DeleteObject(_ context.Context, input *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, *input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3Client) ListObjectsV2(_ context.Context, input *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for key := range m.objects {
		if strings.HasPrefix(key, aws.ToString(input.Prefix)) {
			keys = append(keys, key)
		}
	}
	// Newest first, so the manager has to order keys itself.
	slices.Sort(keys)
	slices.Reverse(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	for _, key := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(key)})
	}
	return out, nil
}

func (m *mockS3Client) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

var testS3 = S3Config{Bucket: "test", AccessKey: "key", SecretKey: "secret", Region: "us-east-1"}

func setupManager(t *testing.T, cfg Config) (*Manager, *mockS3Client, backend.Backend) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	b := sqlite.New(db)
	t.Cleanup(func() { _ = b.Close() })

	cfg.S3 = testS3
	m := NewManager(cfg, b, "hunter2", discard)
	mock := newMockS3()
	m.client = mock

	clock := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	m.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return m, mock, b
}

func put(t *testing.T, b backend.Backend, collection, id, body string) {
	t.Helper()
	require.NoError(t, b.Put(context.Background(), collection, backend.Document{ID: id, Body: []byte(body)}))
}

func TestManagerDisabledWithoutConfig(t *testing.T) {
	m := NewManager(Config{}, nil, "pw", discard)
	assert.Equal(t, StateDisabled, m.Status().State)

	_, err := m.RunNow(context.Background())
	assert.ErrorIs(t, err, ErrDisabled)
	_, err = m.Restore(context.Background(), "")
	assert.ErrorIs(t, err, ErrDisabled)

	noPass := NewManager(Config{S3: testS3}, nil, "", discard)
	assert.Equal(t, StateDisabled, noPass.Status().State)

	enabled := NewManager(Config{S3: testS3}, nil, "pw", discard)
	assert.Equal(t, StateIdle, enabled.Status().State)
}

func TestSnapshotReadsAllCollections(t *testing.T) {
	m, _, b := setupManager(t, Config{})
	put(t, b, "shopping_items", "s1", `{"id":"s1","name":"Milk"}`)
	put(t, b, "meal_items", "m1", `{"id":"m1","name":"Soup"}`)

	snap, err := m.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snapshotVersion, snap.Version)
	assert.Len(t, snap.Collections["shopping_items"], 1)
	assert.Empty(t, snap.Collections["larder_items"])
	assert.Len(t, snap.Collections["meal_items"], 1)
	assert.Equal(t, 2, snap.Count())
}

func TestRunNowAndRestore(t *testing.T) {
	m, mock, b := setupManager(t, Config{})
	ctx := context.Background()
	put(t, b, "shopping_items", "s1", `{"id":"s1","name":"Milk"}`)
	put(t, b, "larder_items", "l1", `{"id":"l1","name":"Rice"}`)

	key, err := m.RunNow(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "picky/backup-"))
	assert.Equal(t, []string{key}, mock.keys())
	assert.NotContains(t, string(mock.objects[key]), "Milk")

	st := m.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.Equal(t, key, st.LastKey)
	require.NotNil(t, st.LastBackup)

	// Diverge from the backup, then restore it.
	put(t, b, "shopping_items", "s2", `{"id":"s2","name":"Eggs"}`)
	require.NoError(t, b.Delete(ctx, "larder_items", "l1"))

	snap, err := m.Restore(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Count())

	shopping, err := b.List(ctx, "shopping_items")
	require.NoError(t, err)
	require.Len(t, shopping, 1)
	assert.Equal(t, "s1", shopping[0].ID)

	larder, err := b.List(ctx, "larder_items")
	require.NoError(t, err)
	require.Len(t, larder, 1)
	assert.JSONEq(t, `{"id":"l1","name":"Rice"}`, string(larder[0].Body))
}

func TestRestoreWrongPassphrase(t *testing.T) {
	m, _, b := setupManager(t, Config{})
	ctx := context.Background()
	put(t, b, "shopping_items", "s1", `{"id":"s1","name":"Milk"}`)

	key, err := m.RunNow(ctx)
	require.NoError(t, err)

	m.passphrase = "wrong"
	_, err = m.Restore(ctx, key)
	assert.ErrorIs(t, err, ErrDecrypt)

	docs, err := b.List(ctx, "shopping_items")
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestRestoreNoBackups(t *testing.T) {
	m, _, _ := setupManager(t, Config{})

	_, err := m.Restore(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoBackups)
}

func TestRunNowPrunesOldBackups(t *testing.T) {
	m, mock, _ := setupManager(t, Config{Keep: 2})
	ctx := context.Background()

	var keys []string
	for i := 0; i < 4; i++ {
		key, err := m.RunNow(ctx)
		require.NoError(t, err)
		keys = append(keys, key)
	}

	assert.Equal(t, keys[2:], mock.keys())

	latest, err := m.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, keys[3], latest)
}

func TestRunNowUploadFailure(t *testing.T) {
	m, mock, _ := setupManager(t, Config{})
	mock.putErr = errors.New("access denied")

	_, err := m.RunNow(context.Background())
	require.Error(t, err)

	st := m.Status()
	assert.Equal(t, StateError, st.State)
	assert.Contains(t, st.Error, "access denied")
	assert.False(t, st.InProgress)
}

func TestManagerStopSafety(t *testing.T) {
	m, _, _ := setupManager(t, Config{Interval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	cancel()
	m.Stop()

	// Double stop should not panic
	m.Stop()
}

func TestManagerDisabledNoStart(t *testing.T) {
	m := NewManager(Config{Interval: time.Minute}, nil, "", discard)

	m.Start(context.Background())
	m.Stop()
}
