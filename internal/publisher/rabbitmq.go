package publisher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/domain"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/queue"
)

const (
	// Reconnection settings
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 30 * time.Second

	// Publish timeout, including the broker confirm.
	publishTimeout = 5 * time.Second
)

// ErrUnavailable is returned while the broker connection is being re-established.
var ErrUnavailable = errors.New("rabbitmq: channel not available (reconnecting)")

// Publisher defines the interface for publishing tasks to the message broker.
type Publisher interface {
	Publish(ctx context.Context, msg *domain.TaskMessage) error
	Healthy() bool
	Close() error
}

type rabbitPublisher struct {
	url     string
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *zap.Logger
	mu      sync.RWMutex
	// pubMu serializes publishes; confirm sequence numbers are per channel.
	pubMu  sync.Mutex
	closed bool
	done   chan struct{}
}

// NewRabbitMQPublisher creates a new RabbitMQ publisher with exchange and queue setup.
func NewRabbitMQPublisher(url string, logger *zap.Logger) (Publisher, error) {
	p := &rabbitPublisher{
		url:    url,
		logger: logger,
		done:   make(chan struct{}),
	}

	if err := p.connect(); err != nil {
		return nil, err
	}

	// Watch for connection closures and reconnect
	go p.watchConnection()

	return p, nil
}

func (p *rabbitPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("rabbitmq: channel: %w", err)
	}

	// Enable publisher confirms
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("rabbitmq: enable confirms: %w", err)
	}

	if err := queue.Declare(ch); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("rabbitmq: %w", err)
	}

	p.mu.Lock()
	p.conn = conn
	p.channel = ch
	p.mu.Unlock()

	p.logger.Info("RabbitMQ publisher initialized",
		zap.String("exchange", queue.Exchange),
		zap.String("queue", queue.Queue),
	)

	return nil
}

// watchConnection monitors the connection and reconnects on failure.
func (p *rabbitPublisher) watchConnection() {
	for {
		p.mu.RLock()
		conn := p.conn
		p.mu.RUnlock()

		var reason *amqp.Error
		var ok bool
		select {
		case reason, ok = <-conn.NotifyClose(make(chan *amqp.Error, 1)):
		case <-p.done:
			return
		}
		if !ok || reason == nil {
			// Closed by us.
			return
		}

		p.logger.Warn("RabbitMQ connection lost, reconnecting...",
			zap.String("reason", reason.Error()),
		)

		p.mu.Lock()
		p.channel = nil
		p.mu.Unlock()

		delay := reconnectDelay
		for {
			select {
			case <-p.done:
				return
			case <-time.After(delay):
			}

			if err := p.connect(); err != nil {
				p.logger.Warn("RabbitMQ reconnect failed", zap.Error(err), zap.Duration("retry_in", delay))
				delay = delay * 2
				if delay > maxReconnectDelay {
					delay = maxReconnectDelay
				}
				continue
			}

			p.logger.Info("RabbitMQ reconnected successfully")
			break
		}
	}
}

// Publish sends msg and waits for the broker to confirm it was persisted.
func (p *rabbitPublisher) Publish(ctx context.Context, msg *domain.TaskMessage) error {
	publishing, err := queue.Encode(msg)
	if err != nil {
		return fmt.Errorf("rabbitmq: %w", err)
	}

	p.mu.RLock()
	ch := p.channel
	p.mu.RUnlock()

	if ch == nil {
		return ErrUnavailable
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	p.pubMu.Lock()
	confirm, err := ch.PublishWithDeferredConfirmWithContext(publishCtx,
		queue.Exchange,
		queue.RoutingKey,
		false, // mandatory
		false, // immediate
		publishing,
	)
	p.pubMu.Unlock()
	if err != nil {
		return fmt.Errorf("rabbitmq: publish: %w", err)
	}

	acked, err := confirm.WaitContext(publishCtx)
	if err != nil {
		return fmt.Errorf("rabbitmq: publish confirmation (job_id=%s): %w", msg.JobID, err)
	}
	if !acked {
		return fmt.Errorf("rabbitmq: broker nacked message (job_id=%s)", msg.JobID)
	}

	p.logger.Debug("Published task to RabbitMQ",
		zap.String("job_id", msg.JobID.String()),
		zap.String("task_type", msg.TaskType),
		zap.Int("body_size", len(publishing.Body)),
	)
	return nil
}

// Healthy reports whether the publisher currently holds an open channel.
func (p *rabbitPublisher) Healthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.channel != nil && !p.channel.IsClosed()
}

func (p *rabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	close(p.done)

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
