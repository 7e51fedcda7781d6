package sqlbase

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/flowstate/pkg/models"
)

const notificationColumns = `id, instance_id, node_state_id, recipient_id, sender_id, sender_name,
	title, body, needs_action, created_at`

// NotificationRepository stores in-app notifications.
type NotificationRepository struct {
	conn   conn
	logger *slog.Logger
}

// Create inserts one in-app notification.
func (r *NotificationRepository) Create(ctx context.Context, notification *models.InAppNotification) error {
	_, err := r.conn.exec(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		notification.ID,
		notification.InstanceID,
		notification.NodeStateID,
		notification.RecipientID,
		notification.SenderID,
		notification.SenderName,
		notification.Title,
		notification.Body,
		notification.NeedsAction,
		notification.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification for recipient %s: %w", notification.RecipientID, err)
	}

	return nil
}

// ListByRecipient returns the notifications addressed to a user, newest first.
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID string) ([]*models.InAppNotification, error) {
	rows, err := r.conn.query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC, id`, recipientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications of recipient %s: %w", recipientID, err)
	}

	return collectNotifications(rows)
}

// ListByInstance returns the notifications raised by an instance ordered by recipient.
func (r *NotificationRepository) ListByInstance(ctx context.Context, instanceID string) ([]*models.InAppNotification, error) {
	rows, err := r.conn.query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE instance_id = $1
		ORDER BY recipient_id, created_at`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications of instance %s: %w", instanceID, err)
	}

	return collectNotifications(rows)
}

func collectNotifications(rows *sql.Rows) ([]*models.InAppNotification, error) {
	defer func() { _ = rows.Close() }()

	notifications := make([]*models.InAppNotification, 0)

	for rows.Next() {
		var notification models.InAppNotification

		err := rows.Scan(
			&notification.ID,
			&notification.InstanceID,
			&notification.NodeStateID,
			&notification.RecipientID,
			&notification.SenderID,
			&notification.SenderName,
			&notification.Title,
			&notification.Body,
			&notification.NeedsAction,
			&notification.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}

		notifications = append(notifications, &notification)
	}

	err := rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}

	return notifications, nil
}
