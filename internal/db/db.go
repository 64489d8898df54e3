// Package db opens the encrypted SQLite database that backs notes, tiles,
// typed state entries, and audio cache metadata.
package db

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kuitang/studynotes/internal/crypto"
)

const (
	// DefaultDataDirectory is the default root directory for database files
	DefaultDataDirectory = "./data"

	// FileName is the filename of the application database
	FileName = "studynotes.db"

	// KeyVersion selects the HKDF info used to derive the database key.
	KeyVersion = 1

	// MaxOpenConns is the maximum number of open connections.
	// SQLite is single-writer, so high connection counts are counterproductive.
	MaxOpenConns = 10

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns = 2
)

// DB wraps the encrypted sql.DB.
type DB struct {
	db *sql.DB
}

// NewFromSQL wraps an existing sql.DB whose schema is already applied.
func NewFromSQL(sqlDB *sql.DB) *DB {
	return &DB{db: sqlDB}
}

// SQL returns the underlying sql.DB for direct access by stores.
func (d *DB) SQL() *sql.DB {
	return d.db
}

// Open opens (creating if needed) dataDir/studynotes.db encrypted with a
// key derived from masterKey, and applies the schema.
func Open(dataDir string, masterKey []byte) (*DB, error) {
	if len(masterKey) < crypto.KeySize {
		return nil, fmt.Errorf("master key must be at least %d bytes, got %d", crypto.KeySize, len(masterKey))
	}
	if dataDir == "" {
		dataDir = DefaultDataDirectory
	}
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	key := crypto.DeriveKey(masterKey, crypto.PurposeDatabase, KeyVersion)
	dbPath := filepath.Join(dataDir, FileName)

	// Format: file.db?_pragma_key=x'HEX_KEY'&_pragma_cipher_page_size=4096
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, hex.EncodeToString(key))
	dsn = appendSQLiteParams(dsn, sqliteCommonParams())

	sqlDB, err := sql.Open(SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(MaxOpenConns)
	sqlDB.SetMaxIdleConns(MaxIdleConns)

	if err := initialize(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return NewFromSQL(sqlDB), nil
}

// OpenInMemory opens a named shared-cache in-memory database encrypted with
// key and applies the schema. Connections with the same name share data.
func OpenInMemory(name string, key []byte) (*DB, error) {
	if len(key) != crypto.KeySize {
		return nil, fmt.Errorf("key must be exactly %d bytes, got %d", crypto.KeySize, len(key))
	}
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma_key=x'%s'&_pragma_cipher_page_size=4096",
		name, hex.EncodeToString(key))

	sqlDB, err := sql.Open(SQLiteDriverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(MaxOpenConns)

	if err := initialize(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return NewFromSQL(sqlDB), nil
}

// initialize verifies the key and applies the schema.
func initialize(sqlDB *sql.DB) error {
	// With a wrong key the first read of the file fails here.
	var sqliteVersion string
	if err := sqlDB.QueryRow("SELECT sqlite_version()").Scan(&sqliteVersion); err != nil {
		return fmt.Errorf("failed to verify database connection: %w", err)
	}
	if _, err := sqlDB.Exec(Schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

func sqliteCommonParams() string {
	// Production-safe defaults: WAL + NORMAL provides good throughput while preserving safety.
	return "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on"
}

func appendSQLiteParams(dsn, params string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	return dsn + "?" + params
}
