// Package database opens the Postgres pool backing the provider's device
// store. Pairing sessions themselves are ephemeral and never touch the
// database; only the device-link credential material persists here.
package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type DB struct {
	*sqlx.DB
}

func Connect(databaseURL string) (*DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &DB{db}, nil
}

func (db *DB) Ping(ctx context.Context) error {
	return db.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.DB.Close()
}

// Raw exposes the underlying *sql.DB for libraries that manage their own
// schema on top of it.
func (db *DB) Raw() *sql.DB {
	return db.DB.DB
}
