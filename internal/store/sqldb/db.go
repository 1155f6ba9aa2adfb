// Package sqldb implements store.Repository on sqlx. The same query set runs
// against Postgres (pgx stdlib driver) in production and in-memory SQLite
// (modernc) for development and tests; placeholders are rebound per driver.
package sqldb

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Open connects to the store. DSNs starting with postgres:// (or
// postgresql://) use the pgx driver; anything else is treated as a SQLite
// path (":memory:" for ephemeral dev mode).
func Open(dsn string, poolSize int) (*Repo, error) {
	driver := "sqlite"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = "pgx"
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}

	if poolSize <= 0 {
		poolSize = 10
	}
	// Every pooled connection to ":memory:" would get its own private
	// database, so in-memory mode runs on a single connection.
	if driver == "sqlite" && strings.Contains(dsn, ":memory:") {
		poolSize = 1
	}
	db.SetMaxOpenConns(poolSize)
	db.SetMaxIdleConns(poolSize)

	if driver == "sqlite" {
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	}

	slog.Info("store connected", "driver", driver, "pool_size", poolSize)
	return &Repo{db: db}, nil
}

// Repo is the sqlx-backed store.Repository.
type Repo struct {
	db *sqlx.DB
}

// DB exposes the underlying handle (migration hooks, tests).
func (r *Repo) DB() *sqlx.DB { return r.db }

func (r *Repo) Close() error { return r.db.Close() }

// rebind converts ? placeholders to the driver's style.
func (r *Repo) rebind(q string) string { return r.db.Rebind(q) }
