package db

import (
	"database/sql"

	sqlite3 "github.com/mutecomm/go-sqlcipher/v4"
)

const (
	// SQLiteDriverName is the project-specific SQLCipher driver.
	SQLiteDriverName = "sqlite3_studynotes"
)

func init() {
	sql.Register(SQLiteDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			// Cascades from notes to tiles depend on this per connection.
			_, err := conn.Exec("PRAGMA foreign_keys = ON", nil)
			return err
		},
	})
}
