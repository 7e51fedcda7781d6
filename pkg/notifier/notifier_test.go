package notifier_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/flowstate/pkg/channels/gochannel"
	"github.com/dukex/flowstate/pkg/eventbus"
	"github.com/dukex/flowstate/pkg/events"
	"github.com/dukex/flowstate/pkg/mocks"
	"github.com/dukex/flowstate/pkg/models"
	"github.com/dukex/flowstate/pkg/notifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func emailNotification() models.Notification {
	return models.Notification{
		Channel:      models.ChannelEmail,
		InstanceID:   "instance-1",
		NodeStateID:  "state-1",
		Title:        "Company: Create",
		Body:         "Grace triggered create on Company Acme",
		RecipientIDs: []string{"u1", "u2"},
		Recipients: []models.User{
			{ID: "u1", Email: "ada@example.com"},
			{ID: "u2"},
		},
	}
}

func TestNew_ValidatesConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*notifier.Config)
		wantErr bool
	}{
		{"defaults", func(*notifier.Config) {}, false},
		{"no workers", func(c *notifier.Config) { c.Workers = 0 }, true},
		{"bad sender", func(c *notifier.Config) { c.From = "not-an-address" }, true},
		{"missing sender", func(c *notifier.Config) { c.From = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := notifier.DefaultConfig()
			tt.mutate(&cfg)

			n, err := notifier.New(cfg, &notifier.MemoryMailer{}, testLogger())
			if tt.wantErr {
				assert.Error(t, err)

				return
			}

			require.NoError(t, err)
			require.NoError(t, n.Close())
		})
	}
}

func TestNotifier_Deliver(t *testing.T) {
	mailer := &notifier.MemoryMailer{}
	n, err := notifier.New(notifier.DefaultConfig(), mailer, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })

	ctx := context.Background()

	require.NoError(t, n.Deliver(ctx, emailNotification()))

	sent := mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"ada@example.com"}, sent[0].To)
	assert.Equal(t, "Company: Create", sent[0].Subject)
	assert.Equal(t, notifier.DefaultConfig().From, sent[0].From)

	noAddress := emailNotification()
	noAddress.Recipients = []models.User{{ID: "u2"}}
	require.NoError(t, n.Deliver(ctx, noAddress))
	assert.Len(t, mailer.Sent(), 1)

	inApp := emailNotification()
	inApp.Channel = models.ChannelInApp
	assert.ErrorIs(t, n.Deliver(ctx, inApp), notifier.ErrUnsupportedChannel)
}

func TestNotifier_DeliverReportsMailerErrors(t *testing.T) {
	mailer := &mocks.MockMailer{}
	mailer.On("Send", mock.Anything, mock.MatchedBy(func(message notifier.Message) bool {
		return message.Subject == "Company: Create"
	})).Return(errors.New("smtp unavailable")).Once()

	n, err := notifier.New(notifier.DefaultConfig(), mailer, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })

	err = n.Deliver(context.Background(), emailNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp unavailable")
	mailer.AssertExpectations(t)
}

func TestNotifier_RegisterHandlesNotificationRequests(t *testing.T) {
	bus := &mocks.MockEventBus{}
	bus.On("Handle", events.NotificationRequestedEvent, mock.Anything).Return(nil).Once()

	n, err := notifier.New(notifier.DefaultConfig(), &notifier.MemoryMailer{}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })

	require.NoError(t, n.Register(bus))
	bus.AssertExpectations(t)
}

func TestNotifier_ConsumesNotificationRequests(t *testing.T) {
	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() { _ = bus.Close() })

	mailer := &notifier.MemoryMailer{}
	n, err := notifier.New(notifier.DefaultConfig(), mailer, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = n.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, n.Register(bus))
	require.NoError(t, bus.Subscribe(ctx))

	for range 3 {
		require.NoError(t, bus.Publish(ctx, "instance-1", events.NotificationRequested{
			BaseEvent:    events.NewBaseEvent(bus.GenerateID(), events.NotificationRequestedEvent, "instance-1", "diagram-1", time.Now().UTC()),
			Notification: emailNotification(),
		}))
	}

	assert.Eventually(t, func() bool {
		return len(mailer.Sent()) == 3
	}, 5*time.Second, 20*time.Millisecond)
}
