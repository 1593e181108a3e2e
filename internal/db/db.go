package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultQuota mirrors the 5 MiB ceiling browsers give local storage.
const DefaultQuota = 5 * 1024 * 1024

var ErrQuotaExceeded = errors.New("storage quota exceeded")

// Backend is one storage tier: a flat key to JSON-string map with a byte
// quota. Get reports ok=false for a missing key.
type Backend interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Close()
}

// Open picks the durable backend for databaseURL: Postgres for postgres://
// URLs, a SQLite file for anything else.
func Open(ctx context.Context, databaseURL string, quota int) (Backend, error) {
	if quota <= 0 {
		quota = DefaultQuota
	}
	lower := strings.ToLower(databaseURL)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		store, err := NewStore(ctx, databaseURL, quota)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return store, nil
	}
	path := strings.TrimPrefix(databaseURL, "sqlite://")
	if path == "" {
		path = "blog.db"
	}
	lite, err := NewSQLite(ctx, path, quota)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return lite, nil
}

func entrySize(key, value string) int {
	return len(key) + len(value)
}
