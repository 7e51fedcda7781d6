package sqlbase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/flowstate/pkg/persistence"
)

// Persistence implements persistence.Persistence on top of database/sql.
// Engine-specific packages supply the connection and the dialect.
type Persistence struct {
	db      *sql.DB
	logger  *slog.Logger
	dialect Dialect
	repositories
}

// NewPersistence wraps an open database. Migrations must already have run.
func NewPersistence(db *sql.DB, dialect Dialect, logger *slog.Logger) *Persistence {
	return &Persistence{
		db:           db,
		logger:       logger,
		dialect:      dialect,
		repositories: newRepositories(conn{q: db, dialect: dialect}, logger),
	}
}

// DB exposes the underlying connection pool.
func (p *Persistence) DB() *sql.DB {
	return p.db
}

// InTx runs fn inside a database transaction.
func (p *Persistence) InTx(ctx context.Context, fn func(ctx context.Context, tx persistence.Repositories) error) error {
	transaction, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	err = fn(ctx, newRepositories(conn{q: transaction, dialect: p.dialect}, p.logger))
	if err != nil {
		rollbackErr := transaction.Rollback()
		if rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			p.logger.ErrorContext(ctx, "Failed to roll back transaction", "error", rollbackErr)
		}

		return err
	}

	err = transaction.Commit()
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Directory returns the SQL-backed user and display-name directory.
func (p *Persistence) Directory() persistence.DirectoryRepository {
	return &DirectoryRepository{conn: conn{q: p.db, dialect: p.dialect}, logger: p.logger}
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

type repositories struct {
	graph         *GraphRepository
	instances     *InstanceRepository
	nodeStates    *NodeStateRepository
	approvals     *ApprovalRepository
	notifications *NotificationRepository
}

func newRepositories(c conn, logger *slog.Logger) repositories {
	return repositories{
		graph:         &GraphRepository{conn: c, logger: logger},
		instances:     &InstanceRepository{conn: c, logger: logger},
		nodeStates:    &NodeStateRepository{conn: c, logger: logger},
		approvals:     &ApprovalRepository{conn: c, logger: logger},
		notifications: &NotificationRepository{conn: c, logger: logger},
	}
}

func (r repositories) Graph() persistence.GraphRepository { return r.graph }
func (r repositories) Instances() persistence.InstanceRepository { return r.instances }
func (r repositories) NodeStates() persistence.NodeStateRepository { return r.nodeStates }
func (r repositories) Approvals() persistence.ApprovalRepository { return r.approvals }
func (r repositories) Notifications() persistence.NotificationRepository { return r.notifications }
