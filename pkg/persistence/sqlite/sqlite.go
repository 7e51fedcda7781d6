// Package sqlite provides the embedded SQLite persistence used for single-node
// deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"strings"

	"github.com/dukex/flowstate/pkg/persistence/sqlbase"
	"github.com/mattn/go-sqlite3"
)

// Dialect is the SQLite flavour of the shared SQL repositories. Transactions
// start with BEGIN IMMEDIATE, so row locks are not needed.
var Dialect = sqlbase.Dialect{
	Name:       "sqlite",
	LockClause: "",
	MigrationsTableSQL: `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
	`,
	Rebind: sqlbase.NumberedQuestionMarks,
	IsUniqueViolation: func(err error) bool {
		var sqliteErr sqlite3.Error
		if !errors.As(err, &sqliteErr) {
			return false
		}

		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	},
}

// connection settings applied to every pooled connection:
//   - WAL journal for reads concurrent with the single writer
//   - 5 second busy timeout for lock contention
//   - foreign key enforcement
//   - BEGIN IMMEDIATE so each transaction takes the write lock up front
var pragmas = url.Values{
	"_journal_mode": {"WAL"},
	"_synchronous":  {"NORMAL"},
	"_busy_timeout": {"5000"},
	"_foreign_keys": {"on"},
	"_txlock":       {"immediate"},
}

// Persistence implements the persistence layer for SQLite.
type Persistence struct {
	*sqlbase.Persistence
}

// NewPersistence opens (creating if needed) the database file at path and
// migrates it. path may carry a sqlite:// or file: prefix.
func NewPersistence(ctx context.Context, logger *slog.Logger, path string) (*Persistence, error) {
	database, err := sql.Open("sqlite3", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, Dialect, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		_ = database.Close()

		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{Persistence: sqlbase.NewPersistence(database, Dialect, logger)}, nil
}

// DSN builds the go-sqlite3 connection string for a database file. Query
// parameters already present on path override the defaults.
func DSN(path string) string {
	path = strings.TrimPrefix(path, "sqlite://")
	path = strings.TrimPrefix(path, "file:")
	base, query, _ := strings.Cut(path, "?")

	params := url.Values{}
	maps.Copy(params, pragmas)

	extra, err := url.ParseQuery(query)
	if err == nil {
		maps.Copy(params, extra)
	}

	return "file:" + base + "?" + params.Encode()
}
