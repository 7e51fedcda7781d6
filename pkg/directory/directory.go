// Package directory resolves users, roles and the display names used when
// composing notifications.
package directory

import (
	"context"

	"github.com/dukex/flowstate/pkg/models"
)

// Directory resolves workflow participants.
type Directory interface {
	UsersByRole(ctx context.Context, roleIDs []string) ([]models.User, error)
	UsersByID(ctx context.Context, ids []string) ([]models.User, error)
	DisplayName(ctx context.Context, userID string) (string, error)
}

// Catalog resolves human-readable labels for trigger events and object mappings.
type Catalog interface {
	EventDisplayName(ctx context.Context, eventName string) (string, error)
	MappingDisplayName(ctx context.Context, mappingID string) (string, error)
}

// Store is a Directory that is also a Catalog, as the SQL-backed directory is.
type Store interface {
	Directory
	Catalog
}
