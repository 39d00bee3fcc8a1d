package mock

import (
	"context"
	"sync"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/domain"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/publisher"
)

// Ensure MockPublisher implements publisher.Publisher.
var _ publisher.Publisher = (*MockPublisher)(nil)

// MockPublisher is a mock message publisher for testing.
type MockPublisher struct {
	mu        sync.Mutex
	Published []*domain.TaskMessage
	PublishFn func(ctx context.Context, msg *domain.TaskMessage) error
	Unhealthy bool
}

// NewMockPublisher creates a new mock publisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(ctx context.Context, msg *domain.TaskMessage) error {
	if m.PublishFn != nil {
		return m.PublishFn(ctx, msg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, msg)
	return nil
}

// Messages returns a snapshot of published messages.
func (m *MockPublisher) Messages() []*domain.TaskMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.TaskMessage(nil), m.Published...)
}

func (m *MockPublisher) Healthy() bool { return !m.Unhealthy }

func (m *MockPublisher) Close() error {
	return nil
}
