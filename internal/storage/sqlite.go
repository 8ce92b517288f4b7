package storage

import (
	"database/sql"
	"strings"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:vendorrisk.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{newBaseStore(db, goose.DialectSQLite3, "sqlite", false)}, nil
}
