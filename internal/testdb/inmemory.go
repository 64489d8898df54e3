// Package testdb provides in-memory encrypted databases for tests.
package testdb

import (
	"bytes"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/kuitang/studynotes/internal/crypto"
	"github.com/kuitang/studynotes/internal/db"
)

// MasterKey is the fixed master key used by test databases.
var MasterKey = bytes.Repeat([]byte{0x42}, 32)

var seq atomic.Int64

// NewInMemory creates an in-memory encrypted database with the full schema.
// Each call gets its own database.
func NewInMemory(name string) (*db.DB, error) {
	if name == "" {
		name = "test"
	}
	name = fmt.Sprintf("%s-%d", name, seq.Add(1))

	d, err := db.OpenInMemory(name, crypto.DeriveKey(MasterKey, crypto.PurposeDatabase, db.KeyVersion))
	if err != nil {
		return nil, err
	}
	if err := applyFastSQLitePragmas(d); err != nil {
		d.Close()
		return nil, fmt.Errorf("failed to apply fast SQLite pragmas: %w", err)
	}
	return d, nil
}

// New is NewInMemory for tests; the database is closed on cleanup.
func New(t testing.TB) *db.DB {
	t.Helper()
	d, err := NewInMemory(sanitize(t.Name()))
	if err != nil {
		t.Fatalf("testdb: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func sanitize(name string) string {
	out := []byte(name)
	for i, c := range out {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_') {
			out[i] = '_'
		}
	}
	return string(out)
}

func applyFastSQLitePragmas(d *db.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=MEMORY",
		"PRAGMA synchronous=OFF",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA secure_delete=OFF",
	}
	for _, pragma := range pragmas {
		if _, err := d.SQL().Exec(pragma); err != nil {
			return err
		}
	}
	return nil
}
