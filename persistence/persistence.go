// Package persistence opens the bun database and applies the embedded
// migrations.
package persistence

import (
	"context"
	"database/sql"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-membership/migrations"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects the database to open.
type Options struct {
	Driver string
	DSN    string
	// Debug logs every query through bundebug.
	Debug bool
}

// Open connects to the configured database. SQLite handles are limited to
// one connection so in-memory databases stay shared.
func Open(opts Options) (*bun.DB, error) {
	var (
		sqldb *sql.DB
		db    *bun.DB
		err   error
	)

	switch opts.Driver {
	case DriverSQLite, "":
		sqldb, err = sql.Open(sqliteshim.ShimName, opts.DSN)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open sqlite database")
		}
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())
		if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
			db.Close()
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to enable sqlite foreign keys")
		}
	case DriverPostgres:
		sqldb, err = sql.Open("pgx", opts.DSN)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open postgres database")
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, goerrors.New(fmt.Sprintf("unsupported database driver %q", opts.Driver), goerrors.CategoryBadInput)
	}

	if opts.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	return db, nil
}

// Migrate applies every pending migration for driver.
func Migrate(ctx context.Context, db *bun.DB, driver string) error {
	dialect, dir := "sqlite3", migrations.SQLiteDir
	if driver == DriverPostgres {
		dialect, dir = "postgres", migrations.PostgresDir
	}

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect(dialect); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to set goose dialect")
	}

	if err := goose.UpContext(ctx, db.DB, dir); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to apply migrations").
			WithMetadata(map[string]any{"driver": driver})
	}
	return nil
}

// OpenAndMigrate is Open followed by Migrate.
func OpenAndMigrate(ctx context.Context, opts Options) (*bun.DB, error) {
	db, err := Open(opts)
	if err != nil {
		return nil, err
	}
	if err := Migrate(ctx, db, opts.Driver); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
