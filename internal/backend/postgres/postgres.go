// Package postgres stores documents as jsonb rows through gorm.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/dukerupert/picky/internal/backend"
)

// document is one row of the documents table. Seq records insertion order and
// is left untouched by upserts.
type document struct {
	Seq        int64     `gorm:"autoIncrement;not null;index"`
	Collection string    `gorm:"primaryKey;size:64"`
	ID         string    `gorm:"primaryKey;size:128"`
	Body       []byte    `gorm:"type:jsonb;not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

func (document) TableName() string { return "documents" }

type Backend struct {
	db *gorm.DB
}

// Open connects to dsn and migrates the documents table.
func Open(dsn string) (*Backend, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&document{}); err != nil {
		return nil, fmt.Errorf("migrate documents: %w", err)
	}
	return &Backend{db: db}, nil
}

func (b *Backend) List(ctx context.Context, collection string) ([]backend.Document, error) {
	var rows []document
	err := b.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("seq asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	docs := make([]backend.Document, len(rows))
	for i, row := range rows {
		docs[i] = backend.Document{ID: row.ID, Body: row.Body}
	}
	return docs, nil
}

func (b *Backend) Get(ctx context.Context, collection, id string) (*backend.Document, error) {
	var row document
	err := b.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, backend.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &backend.Document{ID: row.ID, Body: row.Body}, nil
}

func (b *Backend) Put(ctx context.Context, collection string, doc backend.Document) error {
	row := document{
		Collection: collection,
		ID:         doc.ID,
		Body:       doc.Body,
		UpdatedAt:  time.Now().UTC(),
	}
	err := b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "collection"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"body", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("put document: %w", err)
	}
	return nil
}

func (b *Backend) Delete(ctx context.Context, collection, id string) error {
	result := b.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		Delete(&document{})
	if result.Error != nil {
		return fmt.Errorf("delete document: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return backend.ErrNotFound
	}
	return nil
}

func (b *Backend) ReplaceAll(ctx context.Context, collection string, docs []backend.Document) error {
	now := time.Now().UTC()
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("collection = ?", collection).Delete(&document{}).Error; err != nil {
			return fmt.Errorf("clear collection: %w", err)
		}
		if len(docs) == 0 {
			return nil
		}
		rows := make([]document, len(docs))
		for i, doc := range docs {
			rows[i] = document{Collection: collection, ID: doc.ID, Body: doc.Body, UpdatedAt: now}
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("insert documents: %w", err)
		}
		return nil
	})
}

func (b *Backend) Ping(ctx context.Context) error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (b *Backend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
