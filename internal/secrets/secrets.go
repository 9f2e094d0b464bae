// Package secrets resolves named secrets such as database connection strings
// and the backup passphrase.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrSecretNotFound = errors.New("secret not found")

type Provider interface {
	Secret(ctx context.Context, name string) (string, error)
}

// ConnectionSecretName is the secret holding the database connection string
// for env.
func ConnectionSecretName(env string) string {
	return "database-url-" + strings.ToLower(env)
}

// EnvProvider reads secret "foo-bar" from PICKY_SECRET_FOO_BAR.
type EnvProvider struct{}

func EnvVarName(name string) string {
	upper := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
	return "PICKY_SECRET_" + upper
}

func (EnvProvider) Secret(_ context.Context, name string) (string, error) {
	if v, ok := os.LookupEnv(EnvVarName(name)); ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
}

// FileProvider serves secrets from a flat YAML map of name to value.
type FileProvider struct {
	values map[string]string
}

func NewFileProvider(path string) (*FileProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read secrets file: %w", err)
	}
	values := map[string]string{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse secrets file %s: %w", path, err)
	}
	return &FileProvider{values: values}, nil
}

func (p *FileProvider) Secret(_ context.Context, name string) (string, error) {
	if v, ok := p.values[name]; ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
}

// Chain asks each provider in turn and returns the first hit. Errors other
// than ErrSecretNotFound stop the search.
type Chain []Provider

func (c Chain) Secret(ctx context.Context, name string) (string, error) {
	for _, p := range c {
		v, err := p.Secret(ctx, name)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, ErrSecretNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
}

// Optional returns the secret or "" when it is not configured.
func Optional(ctx context.Context, p Provider, name string) (string, error) {
	v, err := p.Secret(ctx, name)
	if errors.Is(err, ErrSecretNotFound) {
		return "", nil
	}
	return v, err
}
