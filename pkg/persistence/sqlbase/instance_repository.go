package sqlbase

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/flowstate/pkg/models"
	"github.com/dukex/flowstate/pkg/persistence"
)

const instanceColumns = `id, diagram_id, status, context, start_mapping_id, start_object_id,
	started_by, started_at, completed_at`

// InstanceRepository stores workflow instances.
type InstanceRepository struct {
	conn   conn
	logger *slog.Logger
}

// Create inserts a new instance row.
func (r *InstanceRepository) Create(ctx context.Context, instance *models.WorkflowInstance) error {
	contextJSON, err := marshalContext(instance.Context)
	if err != nil {
		return persistence.NewInstanceError("Create", instance.ID, err)
	}

	_, err = r.conn.exec(ctx, `
		INSERT INTO workflow_instances (`+instanceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		instance.ID,
		instance.DiagramID,
		string(instance.Status),
		contextJSON,
		instance.StartMappingID,
		instance.StartObjectID,
		instance.StartedBy,
		instance.StartedAt,
		nullTime(instance.CompletedAt),
	)
	if r.conn.dialect.uniqueViolation(err) {
		return persistence.NewInstanceError("Create", instance.ID, persistence.ErrDuplicateRunningInstance)
	}

	if err != nil {
		return persistence.NewInstanceError("Create", instance.ID, err)
	}

	return nil
}

// ByID returns an instance without locking it.
func (r *InstanceRepository) ByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	return r.get(ctx, "ByID", id, "")
}

// Lock returns an instance and holds its row lock until the transaction ends.
func (r *InstanceRepository) Lock(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	return r.get(ctx, "Lock", id, r.conn.dialect.LockClause)
}

func (r *InstanceRepository) get(ctx context.Context, op, id, lockClause string) (*models.WorkflowInstance, error) {
	row := r.conn.queryRow(ctx, `
		SELECT `+instanceColumns+`
		FROM workflow_instances
		WHERE id = $1`+lockClause, id)

	instance, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, persistence.NewInstanceError(op, id, persistence.ErrInstanceNotFound)
	}

	if err != nil {
		return nil, persistence.NewInstanceError(op, id, err)
	}

	return instance, nil
}

// FindRunning returns the active or waiting instance for a start key, or nil.
func (r *InstanceRepository) FindRunning(ctx context.Context, key models.StartKey) (*models.WorkflowInstance, error) {
	row := r.conn.queryRow(ctx, `
		SELECT `+instanceColumns+`
		FROM workflow_instances
		WHERE diagram_id = $1
			AND start_mapping_id = $2
			AND start_object_id = $3
			AND started_by = $4
			AND status IN ('active', 'waiting')`+r.conn.dialect.LockClause,
		key.DiagramID, key.MappingID, key.ObjectID, key.StartedBy)

	instance, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to find running instance of diagram %s: %w", key.DiagramID, err)
	}

	return instance, nil
}

// SaveContext overwrites the stored context document.
func (r *InstanceRepository) SaveContext(ctx context.Context, id string, instanceContext *models.Context) error {
	contextJSON, err := marshalContext(instanceContext)
	if err != nil {
		return persistence.NewInstanceError("SaveContext", id, err)
	}

	result, err := r.conn.exec(ctx, "UPDATE workflow_instances SET context = $1 WHERE id = $2", contextJSON, id)
	if err != nil {
		return persistence.NewInstanceError("SaveContext", id, err)
	}

	return requireRow(result, persistence.NewInstanceError("SaveContext", id, persistence.ErrInstanceNotFound))
}

// Transition changes the status when the current one is in from.
func (r *InstanceRepository) Transition(
	ctx context.Context,
	id string,
	to models.InstanceStatus,
	completedAt *time.Time,
	from ...models.InstanceStatus,
) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}

	args := []any{string(to), nullTime(completedAt), id}
	placeholders := make([]string, 0, len(from))

	for _, status := range from {
		args = append(args, string(status))
		placeholders = append(placeholders, "$"+strconv.Itoa(len(args)))
	}

	result, err := r.conn.exec(ctx, `
		UPDATE workflow_instances
		SET status = $1, completed_at = COALESCE($2, completed_at)
		WHERE id = $3 AND status IN (`+strings.Join(placeholders, ", ")+`)`, args...)
	if err != nil {
		return false, persistence.NewInstanceError("Transition", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, persistence.NewInstanceError("Transition", id, err)
	}

	if affected > 0 {
		r.logger.DebugContext(ctx, "Instance status changed", "instance_id", id, "status", to)
	}

	return affected > 0, nil
}

func scanInstance(row scanner) (*models.WorkflowInstance, error) {
	var (
		instance    models.WorkflowInstance
		status      string
		contextJSON []byte
		completedAt sql.NullTime
	)

	err := row.Scan(
		&instance.ID,
		&instance.DiagramID,
		&status,
		&contextJSON,
		&instance.StartMappingID,
		&instance.StartObjectID,
		&instance.StartedBy,
		&instance.StartedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	instance.Status = models.InstanceStatus(status)
	instance.Context = models.NewContext()

	if len(contextJSON) > 0 {
		err = json.Unmarshal(contextJSON, instance.Context)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal context of instance %s: %w", instance.ID, err)
		}
	}

	if completedAt.Valid {
		instance.CompletedAt = &completedAt.Time
	}

	return &instance, nil
}

func marshalContext(instanceContext *models.Context) (string, error) {
	if instanceContext == nil {
		instanceContext = models.NewContext()
	}

	data, err := json.Marshal(instanceContext)
	if err != nil {
		return "", fmt.Errorf("failed to marshal context: %w", err)
	}

	return string(data), nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: *t, Valid: true}
}

func requireRow(result sql.Result, notFound error) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}

	if affected == 0 {
		return notFound
	}

	return nil
}
