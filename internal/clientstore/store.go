// Package clientstore keeps small per-client string values under fixed keys,
// the server-side counterpart of browser local storage.
package clientstore

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"chathistory/internal/redis"
)

// ErrNotFound is returned when a key has never been written for the client.
var ErrNotFound = errors.New("client storage key not found")

// Store reads and writes client-scoped values.
type Store interface {
	Get(ctx context.Context, clientID, key string) (string, error)
	Set(ctx context.Context, clientID, key, value string) error
	Delete(ctx context.Context, clientID, key string) error
}

// New builds the backend named by kind: memory, sql or redis.
func New(kind string, db *sql.DB, driver string, rdb *redis.Client) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "memory":
		return NewMemoryStore(), nil
	case "sql", "":
		if db == nil {
			return nil, errors.New("sql client store requires a database")
		}
		return NewSQLStore(db, driver), nil
	case "redis":
		if rdb == nil {
			return nil, errors.New("redis client store requires a redis client")
		}
		return NewRedisStore(rdb), nil
	default:
		return nil, errors.Errorf("unknown client store %q", kind)
	}
}

func validate(clientID, key string) error {
	if strings.TrimSpace(clientID) == "" {
		return errors.New("client id is required")
	}
	if strings.TrimSpace(key) == "" {
		return errors.New("storage key is required")
	}
	return nil
}
