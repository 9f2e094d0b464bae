package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/dukerupert/picky/internal/backend"
	"github.com/dukerupert/picky/internal/backend/jsonfile"
	"github.com/dukerupert/picky/internal/backend/postgres"
	"github.com/dukerupert/picky/internal/backend/sqlite"
	"github.com/dukerupert/picky/internal/config"
	"github.com/dukerupert/picky/internal/database"
	"github.com/dukerupert/picky/internal/secrets"
)

// parseBackendArg splits "kind:target". The target is optional.
func parseBackendArg(arg string) (kind, target string) {
	kind, target, _ = strings.Cut(strings.TrimSpace(arg), ":")
	return strings.ToLower(kind), target
}

// openBackend opens the backend named by arg, e.g. "sqlite:picky.db",
// "jsonfile:./data" or "postgres:database-url-production". A missing target
// falls back to the configured path. Postgres targets are DSNs or secret
// names.
func openBackend(ctx context.Context, arg string, cfg *config.Config, provider secrets.Provider) (backend.Backend, error) {
	kind, target := parseBackendArg(arg)
	switch kind {
	case config.BackendSQLite:
		if target == "" {
			target = cfg.SQLitePath
		}
		db, err := database.Open(target)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", target, err)
		}
		return sqlite.New(db), nil

	case config.BackendJSONFile:
		if target == "" {
			target = cfg.DataDir
		}
		b, err := jsonfile.New(target)
		if err != nil {
			return nil, fmt.Errorf("open data dir %s: %w", target, err)
		}
		return b, nil

	case config.BackendPostgres:
		dsn, err := postgresDSN(ctx, target, cfg, provider)
		if err != nil {
			return nil, err
		}
		b, err := postgres.Open(dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return b, nil
	}
	return nil, fmt.Errorf("unknown backend %q", kind)
}

func postgresDSN(ctx context.Context, target string, cfg *config.Config, provider secrets.Provider) (string, error) {
	if strings.Contains(target, "://") || strings.Contains(target, "=") {
		return target, nil
	}
	name := target
	if name == "" {
		name = cfg.DatabaseSecret
	}
	if name == "" {
		name = secrets.ConnectionSecretName(string(cfg.Environment))
	}
	dsn, err := provider.Secret(ctx, name)
	if err != nil {
		return "", fmt.Errorf("resolve database secret: %w", err)
	}
	return dsn, nil
}

func secretsProvider(cfg *config.Config) (secrets.Provider, error) {
	chain := secrets.Chain{secrets.EnvProvider{}}
	if cfg.SecretsFile != "" {
		fp, err := secrets.NewFileProvider(cfg.SecretsFile)
		if err != nil {
			return nil, err
		}
		chain = append(chain, fp)
	}
	return chain, nil
}
