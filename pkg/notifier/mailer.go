package notifier

import (
	"context"
	"log/slog"
	"sync"
)

// Message is one outbound mail.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Mailer delivers mail to a provider.
type Mailer interface {
	Send(ctx context.Context, message Message) error
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger.With("module", "log_mailer")}
}

func (m *LogMailer) Send(ctx context.Context, message Message) error {
	m.logger.InfoContext(ctx, "Mail sent",
		"from", message.From,
		"to", message.To,
		"subject", message.Subject,
	)

	return nil
}

// MemoryMailer keeps sent messages in memory.
type MemoryMailer struct {
	mu   sync.Mutex
	sent []Message
}

func (m *MemoryMailer) Send(_ context.Context, message Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sent = append(m.sent, message)

	return nil
}

// Sent returns a copy of the messages sent so far.
func (m *MemoryMailer) Sent() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Message(nil), m.sent...)
}
