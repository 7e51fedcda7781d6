// Package eventbus provides the publish/subscribe infrastructure used to hand
// committed workflow events to other processes.
package eventbus

import (
	"context"
	"errors"

	"github.com/dukex/flowstate/pkg/events"
)

var (
	// ErrHandlerExists is returned when a second handler is registered for an event type.
	ErrHandlerExists = errors.New("event type already has a handler")

	// ErrAlreadySubscribed is returned when handlers change after Subscribe.
	ErrAlreadySubscribed = errors.New("event bus is already subscribed")
)

// Event is anything carrying an event type; the concrete types live in package events.
type Event interface {
	GetType() events.EventType
}

type EventPublisher interface {
	// Publish sends event; key orders events sharing it (the instance id).
	Publish(ctx context.Context, key string, event Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

// EventHandler receives a pointer to the decoded event. A returned error
// asks the transport to redeliver.
type EventHandler func(ctx context.Context, event any) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}
