package clientstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"chathistory/internal/storage"
)

// SQLStore persists values in the client_storage table.
type SQLStore struct {
	db     *sql.DB
	upsert string
}

var _ Store = (*SQLStore)(nil)

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	upsert := `INSERT INTO client_storage (client_id, storage_key, value, updated_at) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE value = VALUES(value), updated_at = VALUES(updated_at)`
	if storage.IsSQLite(driver) {
		upsert = `INSERT INTO client_storage (client_id, storage_key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(client_id, storage_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	}
	return &SQLStore{db: db, upsert: upsert}
}

func (s *SQLStore) Get(ctx context.Context, clientID, key string) (string, error) {
	if err := validate(clientID, key); err != nil {
		return "", err
	}
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM client_storage WHERE client_id = ? AND storage_key = ?`,
		clientID, key,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", errors.Wrap(err, "read client storage")
	}
	return value, nil
}

func (s *SQLStore) Set(ctx context.Context, clientID, key, value string) error {
	if err := validate(clientID, key); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.upsert, clientID, key, value, time.Now().UTC()); err != nil {
		return errors.Wrap(err, "write client storage")
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, clientID, key string) error {
	if err := validate(clientID, key); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM client_storage WHERE client_id = ? AND storage_key = ?`,
		clientID, key,
	); err != nil {
		return errors.Wrap(err, "delete client storage")
	}
	return nil
}
