package sqlbase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/dukex/flowstate/pkg/models"
	"github.com/dukex/flowstate/pkg/persistence"
)

// DirectoryRepository reads users, role memberships and display names.
type DirectoryRepository struct {
	conn   conn
	logger *slog.Logger
}

// UsersByRole returns the distinct members of the given roles ordered by id.
func (r *DirectoryRepository) UsersByRole(ctx context.Context, roleIDs []string) ([]models.User, error) {
	if len(roleIDs) == 0 {
		return []models.User{}, nil
	}

	placeholders, args := inList(roleIDs)

	rows, err := r.conn.query(ctx, `
		SELECT DISTINCT u.id, u.email
		FROM directory_users u
		JOIN directory_user_roles ur ON ur.user_id = u.id
		WHERE ur.role_id IN (`+placeholders+`)
		ORDER BY u.id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users by role: %w", err)
	}

	return collectUsers(rows)
}

// UsersByID returns the known users among ids ordered by id.
func (r *DirectoryRepository) UsersByID(ctx context.Context, ids []string) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}

	placeholders, args := inList(ids)

	rows, err := r.conn.query(ctx, `
		SELECT id, email
		FROM directory_users
		WHERE id IN (`+placeholders+`)
		ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users by id: %w", err)
	}

	return collectUsers(rows)
}

// DisplayName returns the display name of a user.
func (r *DirectoryRepository) DisplayName(ctx context.Context, userID string) (string, error) {
	return r.lookup(ctx, "SELECT display_name FROM directory_users WHERE id = $1", userID)
}

// EventDisplayName returns the display name of a trigger event.
func (r *DirectoryRepository) EventDisplayName(ctx context.Context, eventName string) (string, error) {
	return r.lookup(ctx, "SELECT display_name FROM trigger_events WHERE name = $1", eventName)
}

// MappingDisplayName returns the display name of an object mapping.
func (r *DirectoryRepository) MappingDisplayName(ctx context.Context, mappingID string) (string, error) {
	return r.lookup(ctx, "SELECT display_name FROM object_mappings WHERE id = $1", mappingID)
}

func (r *DirectoryRepository) lookup(ctx context.Context, query, key string) (string, error) {
	var name string

	err := r.conn.queryRow(ctx, query, key).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", persistence.ErrDisplayNameNotFound, key)
	}

	if err != nil {
		return "", fmt.Errorf("failed to look up display name of %s: %w", key, err)
	}

	return name, nil
}

// SaveUser upserts a user and replaces its role memberships.
func (r *DirectoryRepository) SaveUser(ctx context.Context, user persistence.DirectoryUser) error {
	_, err := r.conn.exec(ctx, `
		INSERT INTO directory_users (id, email, display_name) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET email = excluded.email, display_name = excluded.display_name`,
		user.ID, user.Email, user.DisplayName)
	if err != nil {
		return fmt.Errorf("failed to save user %s: %w", user.ID, err)
	}

	_, err = r.conn.exec(ctx, "DELETE FROM directory_user_roles WHERE user_id = $1", user.ID)
	if err != nil {
		return fmt.Errorf("failed to clear roles of user %s: %w", user.ID, err)
	}

	for _, roleID := range user.RoleIDs {
		_, err = r.conn.exec(ctx, `
			INSERT INTO directory_user_roles (user_id, role_id) VALUES ($1, $2)
			ON CONFLICT (user_id, role_id) DO NOTHING`, user.ID, roleID)
		if err != nil {
			return fmt.Errorf("failed to save role %s of user %s: %w", roleID, user.ID, err)
		}
	}

	return nil
}

// SaveEvent upserts the display name of a trigger event.
func (r *DirectoryRepository) SaveEvent(ctx context.Context, eventName, displayName string) error {
	_, err := r.conn.exec(ctx, `
		INSERT INTO trigger_events (name, display_name) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET display_name = excluded.display_name`, eventName, displayName)
	if err != nil {
		return fmt.Errorf("failed to save event %s: %w", eventName, err)
	}

	return nil
}

// SaveMapping upserts the display name of an object mapping.
func (r *DirectoryRepository) SaveMapping(ctx context.Context, mappingID, displayName string) error {
	_, err := r.conn.exec(ctx, `
		INSERT INTO object_mappings (id, display_name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET display_name = excluded.display_name`, mappingID, displayName)
	if err != nil {
		return fmt.Errorf("failed to save mapping %s: %w", mappingID, err)
	}

	return nil
}

func inList(values []string) (string, []any) {
	placeholders := make([]string, len(values))
	args := make([]any, len(values))

	for i, value := range values {
		placeholders[i] = "$" + strconv.Itoa(i+1)
		args[i] = value
	}

	return strings.Join(placeholders, ", "), args
}

func collectUsers(rows *sql.Rows) ([]models.User, error) {
	defer func() { _ = rows.Close() }()

	users := make([]models.User, 0)

	for rows.Next() {
		var user models.User

		err := rows.Scan(&user.ID, &user.Email)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}

		users = append(users, user)
	}

	err := rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	return users, nil
}
