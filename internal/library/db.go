package library

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// OpenDB opens the database behind driver and source and returns the
// library stored in it. For sqlite3, foreign keys are enabled and the pool
// is limited to one connection so ":memory:" databases are shared.
func OpenDB(driver, source string) (*Library, *sql.DB, error) {
	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to configure sqlite: %w", err)
		}
	}

	l, err := Open(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return l, db, nil
}
