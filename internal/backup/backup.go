// Package backup writes encrypted snapshots of every item collection to
// S3-compatible storage and restores them.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/picky/internal/backend"
	"github.com/dukerupert/picky/internal/model"
)

const (
	snapshotVersion = 1
	keySuffix       = ".json.enc"
	keyTimeFormat   = "2006-01-02T150405.000Z"
)

var (
	ErrDisabled   = errors.New("backup not configured")
	ErrInProgress = errors.New("backup already in progress")
	ErrNoBackups  = errors.New("no backups found")
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

func (c S3Config) complete() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// Config holds backup manager configuration.
type Config struct {
	S3 S3Config
	// Prefix is prepended to every object key.
	Prefix string
	// Interval between scheduled backups. Zero disables the schedule.
	Interval time.Duration
	// Keep is the number of backups retained after each run. Zero keeps all.
	Keep int
}

type State string

const (
	StateIdle     State = "idle"
	StateRunning  State = "running"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

type Status struct {
	State      State      `json:"state"`
	LastBackup *time.Time `json:"lastBackup,omitempty"`
	LastKey    string     `json:"lastKey,omitempty"`
	Error      string     `json:"error,omitempty"`
	InProgress bool       `json:"inProgress"`
}

// Snapshot is the plaintext content of one backup.
type Snapshot struct {
	Version     int                `json:"version"`
	CreatedAt   time.Time          `json:"createdAt"`
	Collections map[string][]Entry `json:"collections"`
}

type Entry struct {
	ID   string          `json:"id"`
	Body json.RawMessage `json:"body"`
}

// Count returns the number of records across all collections.
func (s *Snapshot) Count() int {
	n := 0
	for _, entries := range s.Collections {
		n += len(entries)
	}
	return n
}

// Manager manages encrypted backups to S3-compatible storage.
type Manager struct {
	mu     sync.RWMutex
	cfg    Config
	status Status

	backend    backend.Backend
	client     s3Client
	passphrase string
	logger     *slog.Logger
	now        func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a manager over b. Without complete S3 settings and a
// passphrase the manager is disabled and RunNow/Restore return ErrDisabled.
func NewManager(cfg Config, b backend.Backend, passphrase string, logger *slog.Logger) *Manager {
	if cfg.Prefix == "" {
		cfg.Prefix = "picky"
	}
	m := &Manager{
		cfg:        cfg,
		backend:    b,
		passphrase: passphrase,
		logger:     logger.With("component", "backup"),
		now:        time.Now,
		status:     Status{State: StateDisabled},
	}

	if cfg.S3.complete() && passphrase != "" {
		m.client = newS3Client(cfg.S3)
		m.status.State = StateIdle
	}
	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Start begins the scheduled backup loop.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	if m.status.State == StateDisabled || m.cfg.Interval <= 0 || m.cancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	interval := m.cfg.Interval
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := m.RunNow(ctx); err != nil {
					m.logger.Error("scheduled backup failed", "error", err)
				}
			}
		}
	}()
}

// Stop gracefully stops the backup loop.
func (m *Manager) Stop() {
	m.mu.RLock()
	cancel := m.cancel
	done := m.done
	m.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Status returns the current backup status.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) setStatus(s Status) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

// Snapshot reads every item collection from the backend.
func (m *Manager) Snapshot(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{
		Version:     snapshotVersion,
		CreatedAt:   m.now().UTC(),
		Collections: make(map[string][]Entry, len(model.Kinds)),
	}
	for _, kind := range model.Kinds {
		docs, err := m.backend.List(ctx, kind.Collection())
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", kind.Collection(), err)
		}
		entries := make([]Entry, len(docs))
		for i, doc := range docs {
			entries[i] = Entry{ID: doc.ID, Body: doc.Body}
		}
		snap.Collections[kind.Collection()] = entries
	}
	return snap, nil
}

// RunNow takes a snapshot, encrypts it and uploads it. It returns the object
// key. Older backups beyond Config.Keep are removed afterwards.
func (m *Manager) RunNow(ctx context.Context) (string, error) {
	m.mu.Lock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	prev := m.status
	if client == nil {
		m.mu.Unlock()
		return "", ErrDisabled
	}
	if prev.InProgress {
		m.mu.Unlock()
		return "", ErrInProgress
	}
	m.status = Status{State: StateRunning, InProgress: true, LastBackup: prev.LastBackup, LastKey: prev.LastKey}
	m.mu.Unlock()

	fail := func(err error) (string, error) {
		m.setStatus(Status{State: StateError, Error: err.Error(), LastBackup: prev.LastBackup, LastKey: prev.LastKey})
		return "", err
	}

	snap, err := m.Snapshot(ctx)
	if err != nil {
		return fail(err)
	}
	plaintext, err := json.Marshal(snap)
	if err != nil {
		return fail(fmt.Errorf("encode snapshot: %w", err))
	}
	encrypted, err := Encrypt(plaintext, m.passphrase)
	if err != nil {
		return fail(err)
	}

	key := fmt.Sprintf("%s/backup-%s%s", m.cfg.Prefix, snap.CreatedAt.Format(keyTimeFormat), keySuffix)
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(encrypted),
		ContentLength: aws.Int64(int64(len(encrypted))),
	})
	if err != nil {
		return fail(fmt.Errorf("upload to s3: %w", err))
	}

	m.logger.Info("backup complete", "key", key, "records", snap.Count(), "bytes", len(encrypted))
	at := snap.CreatedAt
	m.setStatus(Status{State: StateIdle, LastBackup: &at, LastKey: key})

	if m.cfg.Keep > 0 {
		if err := m.prune(ctx, m.cfg.Keep); err != nil {
			m.logger.Warn("backup prune failed", "error", err)
		}
	}
	return key, nil
}

// List returns the keys of all backups, oldest first.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	prefix := m.cfg.Prefix + "/"
	m.mu.RUnlock()

	if client == nil {
		return nil, ErrDisabled
	}

	var (
		keys  []string
		token *string
	)
	for {
		out, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("list s3 objects: %w", err)
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, keySuffix) {
				keys = append(keys, key)
			}
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}
	// Keys embed a sortable UTC timestamp.
	slices.Sort(keys)
	return keys, nil
}

// Latest returns the key of the newest backup.
func (m *Manager) Latest(ctx context.Context) (string, error) {
	keys, err := m.List(ctx)
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "", ErrNoBackups
	}
	return keys[len(keys)-1], nil
}

// Restore downloads and decrypts the backup at key (the newest one when key
// is empty) and replaces every collection with its content.
func (m *Manager) Restore(ctx context.Context, key string) (*Snapshot, error) {
	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	m.mu.RUnlock()

	if client == nil {
		return nil, ErrDisabled
	}
	if key == "" {
		latest, err := m.Latest(ctx)
		if err != nil {
			return nil, err
		}
		key = latest
	}

	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("download from s3: %w", err)
	}
	defer result.Body.Close()

	encrypted, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}
	plaintext, err := Decrypt(encrypted, m.passphrase)
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal(plaintext, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}

	for _, kind := range model.Kinds {
		entries := snap.Collections[kind.Collection()]
		docs := make([]backend.Document, len(entries))
		for i, e := range entries {
			docs[i] = backend.Document{ID: e.ID, Body: e.Body}
		}
		if err := m.backend.ReplaceAll(ctx, kind.Collection(), docs); err != nil {
			return nil, fmt.Errorf("restore %s: %w", kind.Collection(), err)
		}
	}

	m.logger.Info("restore complete", "key", key, "records", snap.Count())
	return &snap, nil
}

// prune deletes the oldest backups so that at most keep remain.
func (m *Manager) prune(ctx context.Context, keep int) error {
	keys, err := m.List(ctx)
	if err != nil {
		return err
	}
	if len(keys) <= keep {
		return nil
	}

	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	m.mu.RUnlock()

	for _, key := range keys[:len(keys)-keep] {
		if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		}); err != nil {
			m.logger.Warn("failed to delete old backup", "key", key, "error", err)
		}
	}
	return nil
}
