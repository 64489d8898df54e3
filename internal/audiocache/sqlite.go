package audiocache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kuitang/studynotes/internal/db"
)

// SQLiteEntries stores entry metadata in the audio_entries table.
// Timestamps are kept as unix milliseconds.
type SQLiteEntries struct {
	db *sql.DB
}

func NewSQLiteEntries(d *db.DB) *SQLiteEntries {
	return &SQLiteEntries{db: d.SQL()}
}

const entryColumns = `owner_id, fingerprint, title, blob_key, size_bytes, timestamp`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (Entry, error) {
	var e Entry
	var ts int64
	if err := r.Scan(&e.OwnerID, &e.Fingerprint, &e.Title, &e.BlobKey, &e.Size, &ts); err != nil {
		return Entry{}, err
	}
	e.Timestamp = time.UnixMilli(ts)
	return e, nil
}

func (s *SQLiteEntries) Get(ctx context.Context, ownerID, fingerprint string) (Entry, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM audio_entries WHERE owner_id = ? AND fingerprint = ?`,
		ownerID, fingerprint)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("get audio entry: %w", err)
	}
	return e, true, nil
}

func (s *SQLiteEntries) Insert(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audio_entries (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(owner_id, fingerprint) DO UPDATE SET
		   title = excluded.title, blob_key = excluded.blob_key,
		   size_bytes = excluded.size_bytes, timestamp = excluded.timestamp`,
		e.OwnerID, e.Fingerprint, e.Title, e.BlobKey, e.Size, e.Timestamp.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert audio entry: %w", err)
	}
	return nil
}

func (s *SQLiteEntries) Touch(ctx context.Context, ownerID, fingerprint string, ts time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE audio_entries SET timestamp = ? WHERE owner_id = ? AND fingerprint = ?`,
		ts.UnixMilli(), ownerID, fingerprint)
	if err != nil {
		return fmt.Errorf("touch audio entry: %w", err)
	}
	return nil
}

func (s *SQLiteEntries) DeleteOwner(ctx context.Context, ownerID string) ([]Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	removed, err := queryEntries(ctx, tx,
		`SELECT `+entryColumns+` FROM audio_entries WHERE owner_id = ?`, ownerID)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM audio_entries WHERE owner_id = ?`, ownerID); err != nil {
		return nil, fmt.Errorf("delete audio entries for owner: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return removed, nil
}

func (s *SQLiteEntries) DeleteIfOlder(ctx context.Context, ownerID, fingerprint string, cutoff time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM audio_entries WHERE owner_id = ? AND fingerprint = ? AND timestamp < ?`,
		ownerID, fingerprint, cutoff.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("delete expired audio entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteEntries) ListOlderThan(ctx context.Context, cutoff time.Time) ([]Entry, error) {
	return queryEntries(ctx, s.db,
		`SELECT `+entryColumns+` FROM audio_entries WHERE timestamp < ?
		 ORDER BY timestamp, owner_id, fingerprint`, cutoff.UnixMilli())
}

func (s *SQLiteEntries) List(ctx context.Context) ([]Entry, error) {
	return queryEntries(ctx, s.db,
		`SELECT `+entryColumns+` FROM audio_entries ORDER BY timestamp, owner_id, fingerprint`)
}

func (s *SQLiteEntries) Stats(ctx context.Context) (int, int64, error) {
	var n int
	var total int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size_bytes), 0) FROM audio_entries`).Scan(&n, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("audio cache stats: %w", err)
	}
	return n, total, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryEntries(ctx context.Context, q querier, query string, args ...any) ([]Entry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audio entries: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audio entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
