package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/dukex/flowstate/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypes(t *testing.T) {
	base := NewBaseEvent("evt-1", NotificationRequestedEvent, "instance-1", "diagram-1", time.Now().UTC())

	tests := []struct {
		event interface{ GetType() EventType }
		want  EventType
	}{
		{InstanceStarted{BaseEvent: base}, InstanceStartedEvent},
		{InstanceResumed{BaseEvent: base}, InstanceResumedEvent},
		{InstanceCompleted{BaseEvent: base}, InstanceCompletedEvent},
		{ApprovalResolved{BaseEvent: base}, ApprovalResolvedEvent},
		{NotificationRequested{BaseEvent: base}, NotificationRequestedEvent},
	}

	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.event.GetType())
		})
	}
}

func TestNotificationRequested_JSON(t *testing.T) {
	event := NotificationRequested{
		BaseEvent: NewBaseEvent("evt-1", NotificationRequestedEvent, "instance-1", "diagram-1", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		Notification: models.Notification{
			Channel:      models.ChannelEmail,
			Title:        "Create Company",
			RecipientIDs: []string{"u2"},
			Recipients:   []models.User{{ID: "u2", Email: "bob@example.com"}},
		},
	}

	payload, err := json.Marshal(event)
	require.NoError(t, err)

	var document map[string]any
	require.NoError(t, json.Unmarshal(payload, &document))
	assert.Equal(t, "instance-1", document["instance_id"])
	assert.Equal(t, "notification.requested", document["type"])

	notification, ok := document["notification"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "email", notification["channel"])
}
