// Package notifier delivers the notifications the workflow engine requests on
// channels other than in-app.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/flowstate/pkg/eventbus"
	"github.com/dukex/flowstate/pkg/events"
	"github.com/dukex/flowstate/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/panjf2000/ants/v2"
)

var ErrUnsupportedChannel = errors.New("unsupported notification channel")

// Config tunes delivery.
type Config struct {
	Workers        int           `validate:"min=1,max=1024"`
	From           string        `validate:"required,email"`
	ReleaseTimeout time.Duration `validate:"min=0"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		Workers:        8,
		From:           "flowstate@example.com",
		ReleaseTimeout: 10 * time.Second,
	}
}

// Notifier consumes NotificationRequested events and delivers them through a
// bounded worker pool.
type Notifier struct {
	cfg    Config
	mailer Mailer
	pool   *ants.Pool
	logger *slog.Logger
	wg     sync.WaitGroup
}

func New(cfg Config, mailer Mailer, logger *slog.Logger) (*Notifier, error) {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid notifier config: %w", err)
	}

	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create delivery pool: %w", err)
	}

	return &Notifier{
		cfg:    cfg,
		mailer: mailer,
		pool:   pool,
		logger: logger.With("module", "notifier"),
	}, nil
}

// Register subscribes the notifier to notification requests.
func (n *Notifier) Register(subscriber eventbus.EventSubscriber) error {
	return subscriber.Handle(events.NotificationRequestedEvent, n.handle)
}

func (n *Notifier) handle(ctx context.Context, event any) error {
	var notification models.Notification

	switch e := event.(type) {
	case *events.NotificationRequested:
		notification = e.Notification
	case events.NotificationRequested:
		notification = e.Notification
	default:
		return fmt.Errorf("unexpected event %T", event)
	}

	n.wg.Add(1)

	err := n.pool.Submit(func() {
		defer n.wg.Done()

		deliverErr := n.Deliver(ctx, notification)
		if deliverErr != nil {
			n.logger.ErrorContext(ctx, "Failed to deliver notification",
				"instance_id", notification.InstanceID,
				"node_state_id", notification.NodeStateID,
				"channel", notification.Channel,
				"error", deliverErr,
			)
		}
	})
	if err != nil {
		n.wg.Done()

		return fmt.Errorf("failed to schedule delivery: %w", err)
	}

	return nil
}

// Deliver sends one notification synchronously.
func (n *Notifier) Deliver(ctx context.Context, notification models.Notification) error {
	logger := n.logger.With(
		"instance_id", notification.InstanceID,
		"node_state_id", notification.NodeStateID,
		"channel", notification.Channel,
	)

	switch notification.Channel {
	case models.ChannelEmail:
		to := addresses(notification.Recipients)
		if len(to) == 0 {
			logger.WarnContext(ctx, "Notification has no recipient with an email address")

			return nil
		}

		err := n.mailer.Send(ctx, Message{
			From:    n.cfg.From,
			To:      to,
			Subject: notification.Title,
			Body:    notification.Body,
		})
		if err != nil {
			return fmt.Errorf("failed to send mail: %w", err)
		}

		logger.InfoContext(ctx, "Notification delivered", "recipients", len(to))

		return nil
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedChannel, notification.Channel)
	}
}

// Wait blocks until every scheduled delivery finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// Close waits for scheduled deliveries and releases the pool.
func (n *Notifier) Close() error {
	n.wg.Wait()

	if n.cfg.ReleaseTimeout > 0 {
		return n.pool.ReleaseTimeout(n.cfg.ReleaseTimeout)
	}

	n.pool.Release()

	return nil
}

func addresses(recipients []models.User) []string {
	to := make([]string, 0, len(recipients))

	for _, recipient := range recipients {
		if recipient.Email != "" {
			to = append(to, recipient.Email)
		}
	}

	return to
}
