package db

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

var ErrNotFound = errors.New("not found")

// busyTimeoutMs lets a reader wait for the writer instead of failing with SQLITE_BUSY.
const busyTimeoutMs = 5000

// NewSQLiteDB opens the sqlite file at dbPath in WAL mode.
func NewSQLiteDB(dbPath string) (*sql.DB, error) {
	database, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}
	pragmas := fmt.Sprintf(`
		pragma journal_mode = WAL;
		pragma synchronous = normal;
		pragma busy_timeout = %d;
	`, busyTimeoutMs)
	if _, err = database.Exec(pragmas); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to set pragmas on %s: %w", dbPath, err)
	}
	return database, nil
}

// ReturnErrNotFound maps sql.ErrNoRows to ErrNotFound.
func ReturnErrNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
