package workflow

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/dukex/flowstate/pkg/events"
	"github.com/dukex/flowstate/pkg/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type sendExecutor struct{}

// execute decides what to notify and to whom. In-app rows are engine state and
// are written in the transaction; every other channel becomes an outbound task
// published after commit.
func (sendExecutor) execute(ctx context.Context, e *Engine, w *unit, act activation, node *models.DiagramNode, state *models.NodeState) ([]*models.Connection, error) {
	data, err := node.Send()
	if err != nil {
		return nil, err
	}

	logger := e.logger.With("instance_id", w.instance.ID, "node_id", node.NodeID, "node_state_id", state.ID)

	recipients, err := e.resolveRecipients(ctx, w, node)
	if err != nil {
		return nil, err
	}

	if len(recipients) == 0 {
		logger.WarnContext(ctx, "Send node has no recipients")
	}

	notification := e.compose(ctx, w, act, state, data, recipients)

	for _, channel := range data.Kinds {
		notification.Channel = channel

		if channel == models.ChannelInApp {
			err = e.storeInApp(ctx, w, notification)
			if err != nil {
				return nil, err
			}

			continue
		}

		w.emit(events.NotificationRequested{
			BaseEvent:    events.NewBaseEvent(e.newID(), events.NotificationRequestedEvent, w.instance.ID, w.instance.DiagramID, e.now().UTC()),
			Notification: notification,
		})
	}

	err = complete(ctx, w, state)
	if err != nil {
		return nil, err
	}

	return w.outgoing(ctx, node)
}

// resolveRecipients expands the human nodes connected to node into users,
// without duplicates, ordered by id.
func (e *Engine) resolveRecipients(ctx context.Context, w *unit, node *models.DiagramNode) ([]models.User, error) {
	rules, err := w.humans(ctx, node)
	if err != nil {
		return nil, err
	}

	var personal, roles []string

	for _, rule := range rules {
		switch rule.Type {
		case models.HumanTypePersonal:
			personal = append(personal, rule.UserIDs...)
		case models.HumanTypeRole:
			roles = append(roles, rule.RoleIDs...)
		}
	}

	byID := make(map[string]models.User)

	if len(personal) > 0 {
		users, err := e.directory.UsersByID(ctx, personal)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve users: %w", err)
		}

		for _, user := range users {
			byID[user.ID] = user
		}

		for _, id := range personal {
			if _, ok := byID[id]; !ok && id != "" {
				byID[id] = models.User{ID: id}
			}
		}
	}

	if len(roles) > 0 {
		users, err := e.directory.UsersByRole(ctx, roles)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve role members: %w", err)
		}

		for _, user := range users {
			byID[user.ID] = user
		}
	}

	recipients := make([]models.User, 0, len(byID))
	for _, id := range slices.Sorted(maps.Keys(byID)) {
		recipients = append(recipients, byID[id])
	}

	return recipients, nil
}

// compose builds the notification shared by every channel of a send node.
func (e *Engine) compose(
	ctx context.Context,
	w *unit,
	act activation,
	state *models.NodeState,
	data models.SendData,
	recipients []models.User,
) models.Notification {
	root := w.root()

	senderID := w.instance.StartedBy
	senderName := e.displayName(ctx, senderID, e.directory.DisplayName, senderID)
	eventName := e.displayName(ctx, root.EventName, e.directory.EventDisplayName, humanize(root.EventName))
	mappingName := e.displayName(ctx, root.MappingID, e.directory.MappingDisplayName, humanize("mapping "+root.MappingID))
	subject := objectLabel(root, w.instance.StartObjectID)
	needsAction := needsApproval(act.fromNode)

	title := data.Title
	if title == "" {
		title = fmt.Sprintf("%s: %s", mappingName, eventName)
	}

	body := data.Message
	if body == "" {
		if needsAction {
			body = fmt.Sprintf("%s requests your approval for %s %s", senderName, mappingName, subject)
		} else {
			body = fmt.Sprintf("%s triggered %s on %s %s", senderName, strings.ToLower(eventName), mappingName, subject)
		}
	}

	recipientIDs := make([]string, 0, len(recipients))
	for _, recipient := range recipients {
		recipientIDs = append(recipientIDs, recipient.ID)
	}

	return models.Notification{
		InstanceID:   w.instance.ID,
		NodeStateID:  state.ID,
		SenderID:     senderID,
		SenderName:   senderName,
		NeedsAction:  needsAction,
		Title:        title,
		Body:         body,
		Payload:      maps.Clone(root.Fields),
		RecipientIDs: recipientIDs,
		Recipients:   recipients,
	}
}

func (e *Engine) storeInApp(ctx context.Context, w *unit, notification models.Notification) error {
	now := e.now().UTC()

	for _, recipientID := range notification.RecipientIDs {
		err := w.tx.Notifications().Create(ctx, &models.InAppNotification{
			ID:          e.newID(),
			InstanceID:  notification.InstanceID,
			NodeStateID: notification.NodeStateID,
			RecipientID: recipientID,
			SenderID:    notification.SenderID,
			SenderName:  notification.SenderName,
			Title:       notification.Title,
			Body:        notification.Body,
			NeedsAction: notification.NeedsAction,
			CreatedAt:   now,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// displayName looks a label up, using fallback when the lookup fails.
func (e *Engine) displayName(ctx context.Context, key string, lookup func(context.Context, string) (string, error), fallback string) string {
	if key == "" {
		return fallback
	}

	name, err := lookup(ctx, key)
	if err != nil || name == "" {
		e.logger.DebugContext(ctx, "Display name not found, using fallback", "key", key, "error", err)

		return fallback
	}

	return name
}

// needsApproval reports whether the node that reached the send node asks
// recipients to act.
func needsApproval(from *models.DiagramNode) bool {
	if from == nil || from.NodeType != models.NodeTypeTrigger {
		return false
	}

	data, err := from.Trigger()
	if err != nil {
		return false
	}

	return data.HasEvent(models.EventSendApprove)
}

func objectLabel(root *models.NodeContext, objectID string) string {
	if name, ok := root.Field("Name"); ok {
		return scalarString(name)
	}

	if objectID != "" {
		return "#" + objectID
	}

	return ""
}

func humanize(value string) string {
	return cases.Title(language.English).String(strings.NewReplacer("_", " ", "-", " ").Replace(value))
}
