// Package migrate copies item collections between persistence backends.
package migrate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukerupert/picky/internal/backend"
	"github.com/dukerupert/picky/internal/model"
)

type Options struct {
	// Reset replaces each target collection instead of merging into it.
	Reset bool
	// DryRun reads the source and reports counts without writing.
	DryRun bool
}

// Result counts the documents copied per collection.
type Result map[string]int

func (r Result) Total() int {
	n := 0
	for _, c := range r {
		n += c
	}
	return n
}

// Copy copies every item collection from src to dst. Without Reset, documents
// are upserted by id so existing target documents with other ids survive.
func Copy(ctx context.Context, src, dst backend.Backend, opts Options, logger *slog.Logger) (Result, error) {
	logger = logger.With("component", "migrate")
	result := Result{}

	for _, kind := range model.Kinds {
		collection := kind.Collection()
		docs, err := src.List(ctx, collection)
		if err != nil {
			return result, fmt.Errorf("read %s: %w", collection, err)
		}

		if opts.DryRun {
			result[collection] = len(docs)
			logger.Info("dry run", "collection", collection, "documents", len(docs))
			continue
		}

		if opts.Reset {
			if err := dst.ReplaceAll(ctx, collection, docs); err != nil {
				return result, fmt.Errorf("replace %s: %w", collection, err)
			}
		} else {
			for _, doc := range docs {
				if err := dst.Put(ctx, collection, doc); err != nil {
					return result, fmt.Errorf("write %s/%s: %w", collection, doc.ID, err)
				}
			}
		}

		result[collection] = len(docs)
		logger.Info("collection migrated", "collection", collection, "documents", len(docs), "reset", opts.Reset)
	}
	return result, nil
}
