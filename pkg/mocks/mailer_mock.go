package mocks

import (
	"context"

	"github.com/dukex/flowstate/pkg/notifier"
	"github.com/stretchr/testify/mock"
)

// MockMailer is a mock implementation of notifier.Mailer interface.
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, message notifier.Message) error {
	args := m.Called(ctx, message)

	return args.Error(0)
}
