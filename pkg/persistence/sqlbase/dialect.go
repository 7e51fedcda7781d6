// Package sqlbase provides the base functionality for SQL database persistence.
package sqlbase

import (
	"context"
	"database/sql"
	"strings"
)

// Dialect captures the differences between the supported SQL engines.
// Queries are written with PostgreSQL-style $N placeholders.
type Dialect struct {
	Name string

	// LockClause is appended to SELECTs that must hold a row lock for the
	// rest of the transaction. Engines that lock the whole database on write
	// leave it empty.
	LockClause string

	// MigrationsTableSQL creates the schema_migrations bookkeeping table.
	MigrationsTableSQL string

	// Rebind rewrites placeholders for the engine. Nil keeps $N.
	Rebind func(query string) string

	// IsUniqueViolation reports whether err is a unique constraint failure.
	IsUniqueViolation func(err error) bool
}

func (d Dialect) bind(query string) string {
	if d.Rebind == nil {
		return query
	}

	return d.Rebind(query)
}

func (d Dialect) uniqueViolation(err error) bool {
	return err != nil && d.IsUniqueViolation != nil && d.IsUniqueViolation(err)
}

// NumberedQuestionMarks rewrites $N placeholders into ?N.
func NumberedQuestionMarks(query string) string {
	return strings.ReplaceAll(query, "$", "?")
}

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

type conn struct {
	q       Querier
	dialect Dialect
}

func (c conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.dialect.bind(query), args...)
}

func (c conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.dialect.bind(query), args...)
}

func (c conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.dialect.bind(query), args...)
}
