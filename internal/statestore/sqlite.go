package statestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kuitang/studynotes/internal/clock"
	"github.com/kuitang/studynotes/internal/db"
)

// SQLite stores records in the state_entries table.
type SQLite struct {
	db    *sql.DB
	clock clock.Clock
}

// NewSQLite returns a Store backed by d. A nil clk uses the real clock.
func NewSQLite(d *db.DB, clk clock.Clock) *SQLite {
	if clk == nil {
		clk = clock.Real{}
	}
	return &SQLite{db: d.SQL(), clock: clk}
}

func (s *SQLite) Get(ctx context.Context, key Key, dst any) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM state_entries WHERE owner_id = ? AND kind = ?`,
		key.Owner, string(key.Kind)).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get state %s: %w", key, err)
	}
	return true, decode(key, data, dst)
}

func (s *SQLite) Put(ctx context.Context, key Key, value any) error {
	if err := validateKey(key); err != nil {
		return err
	}
	data, err := encode(key, value)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO state_entries (owner_id, kind, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(owner_id, kind) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key.Owner, string(key.Kind), data, s.clock.Now().Unix())
	if err != nil {
		return fmt.Errorf("put state %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Delete(ctx context.Context, key Key) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM state_entries WHERE owner_id = ? AND kind = ?`,
		key.Owner, string(key.Kind)); err != nil {
		return fmt.Errorf("delete state %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) DeleteOwner(ctx context.Context, owner string) error {
	if err := validateOwner(owner); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM state_entries WHERE owner_id = ?`, owner); err != nil {
		return fmt.Errorf("delete state for %s: %w", owner, err)
	}
	return nil
}

func (s *SQLite) ListOwner(ctx context.Context, owner string) ([]Key, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind FROM state_entries WHERE owner_id = ? ORDER BY kind`, owner)
	if err != nil {
		return nil, fmt.Errorf("list state for %s: %w", owner, err)
	}
	defer rows.Close()

	var keys []Key
	for rows.Next() {
		var kind string
		if err := rows.Scan(&kind); err != nil {
			return nil, fmt.Errorf("scan state kind: %w", err)
		}
		keys = append(keys, Key{Owner: owner, Kind: Kind(kind)})
	}
	return keys, rows.Err()
}
