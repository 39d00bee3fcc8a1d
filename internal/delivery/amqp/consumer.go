package amqp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	amqplib "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/domain"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/queue"
)

const (
	// Reconnection parameters
	maxReconnectDelay  = 30 * time.Second
	baseReconnectDelay = 1 * time.Second
)

var errDeliveriesClosed = errors.New("delivery channel closed")

// Consumer listens to RabbitMQ and dispatches TaskDelivery values (with ACK
// callbacks) to the worker pool channel. Messages are acknowledged by the
// pool once the execution handler returns, never on receipt.
type Consumer struct {
	url      string
	prefetch int
	conn     *amqplib.Connection
	channel  *amqplib.Channel
	logger   *zap.Logger
	tasks    chan<- *domain.TaskDelivery

	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}
}

// NewConsumer creates a new RabbitMQ consumer. prefetch bounds unacknowledged
// deliveries and should match the worker pool size.
func NewConsumer(url string, prefetch int, tasks chan<- *domain.TaskDelivery, logger *zap.Logger) (*Consumer, error) {
	c := &Consumer{
		url:      url,
		prefetch: prefetch,
		logger:   logger,
		tasks:    tasks,
		closeCh:  make(chan struct{}),
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	return c, nil
}

// connect establishes the AMQP connection, sets QoS and declares the topology.
func (c *Consumer) connect() error {
	conn, err := amqplib.Dial(c.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("amqp qos: %w", err)
	}

	if err := queue.Declare(ch); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("amqp topology: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()

	return nil
}

// Start begins consuming messages. It blocks until the context is cancelled
// or Close is called. On connection loss it reconnects with exponential backoff.
func (c *Consumer) Start(ctx context.Context) error {
	for {
		err := c.consume(ctx)
		if err == nil {
			// Context was cancelled; clean shutdown.
			return nil
		}

		select {
		case <-c.closeCh:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		c.logger.Warn("AMQP consumer lost connection, reconnecting...", zap.Error(err))

		for attempt := 0; ; attempt++ {
			delay := time.Duration(math.Min(
				float64(baseReconnectDelay)*math.Pow(2, float64(attempt)),
				float64(maxReconnectDelay),
			))
			c.logger.Info("Reconnect attempt",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
			)

			select {
			case <-c.closeCh:
				return nil
			case <-ctx.Done():
				return nil
			case <-time.After(delay):
			}

			if err := c.connect(); err != nil {
				c.logger.Error("Reconnect failed", zap.Error(err))
				continue
			}

			c.logger.Info("Reconnected to RabbitMQ")
			break
		}
	}
}

// consume runs one consume session until the delivery channel closes or ctx is cancelled.
func (c *Consumer) consume(ctx context.Context) error {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()

	if ch == nil {
		return fmt.Errorf("channel is nil")
	}

	deliveries, err := ch.Consume(
		queue.Queue,
		"",    // auto-generated consumer tag
		false, // auto-ack disabled (manual ack)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("amqp consume: %w", err)
	}

	c.logger.Info("AMQP consumer started",
		zap.String("queue", queue.Queue),
		zap.Int("prefetch", c.prefetch),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("AMQP consumer stopping (context cancelled)")
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return errDeliveriesClosed
			}

			task, err := queue.Decode(delivery.Body)
			if err != nil {
				c.logger.Error("Failed to decode task",
					zap.Error(err),
					zap.String("message_id", delivery.MessageId),
				)
				_ = delivery.Nack(false, false) // reject → DLQ
				continue
			}

			c.logger.Debug("Received task from queue",
				zap.String("job_id", task.JobID.String()),
				zap.String("task_type", task.TaskType),
				zap.Bool("redelivered", delivery.Redelivered),
			)

			msg := wrapDelivery(task, delivery)

			// Blocks while every worker is busy; prefetch caps what the
			// broker pushes meanwhile.
			select {
			case c.tasks <- msg:
			case <-ctx.Done():
				// Shutting down: nack so the message is requeued.
				_ = delivery.Nack(false, true)
				return nil
			}
		}
	}
}

// Acknowledger is the subset of amqp091.Delivery used by the pool callbacks.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// wrapDelivery binds the ack callbacks of one delivery to its task. Each
// callback fires at most once; later calls are no-ops.
func wrapDelivery(task *domain.TaskMessage, d Acknowledger) *domain.TaskDelivery {
	var once sync.Once
	return &domain.TaskDelivery{
		Task: task,
		Ack: func() error {
			var err error
			once.Do(func() { err = d.Ack(false) })
			return err
		},
		Nack: func(requeue bool) error {
			var err error
			once.Do(func() { err = d.Nack(false, requeue) })
			return err
		},
	}
}

// Close gracefully shuts down the consumer.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closeCh)

	var firstErr error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			firstErr = err
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
