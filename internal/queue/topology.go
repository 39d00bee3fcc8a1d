// Package queue owns the RabbitMQ topology and wire format shared by the
// API publisher and the worker consumer.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/domain"
)

const (
	Exchange     = "quill.direct"
	ExchangeType = "direct"
	RoutingKey   = "task"
	Queue        = "quill.tasks"

	DeadLetterExchange   = "quill.dlx"
	DeadLetterQueue      = "quill.tasks.dlq"
	DeadLetterRoutingKey = "quill.tasks.dlq"

	// DeliveryLimit dead-letters a message after this many redeliveries.
	DeliveryLimit = 5

	contentType = "application/json"
)

// Declarer is the subset of *amqp.Channel used to declare the topology.
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// QueueArgs are the arguments of the task queue. Every declaration must use
// the same arguments or the broker rejects it with PRECONDITION_FAILED.
func QueueArgs() amqp.Table {
	return amqp.Table{
		"x-queue-type":              "quorum",
		"x-dead-letter-exchange":    DeadLetterExchange,
		"x-dead-letter-routing-key": DeadLetterRoutingKey,
		"x-delivery-limit":          DeliveryLimit,
	}
}

// Declare idempotently declares exchanges, queues and bindings.
func Declare(ch Declarer) error {
	if err := ch.ExchangeDeclare(DeadLetterExchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLX: %w", err)
	}
	if _, err := ch.QueueDeclare(DeadLetterQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare DLQ: %w", err)
	}
	if err := ch.QueueBind(DeadLetterQueue, DeadLetterRoutingKey, DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("bind DLQ: %w", err)
	}

	if err := ch.ExchangeDeclare(Exchange, ExchangeType, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(Queue, true, false, false, false, QueueArgs()); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(Queue, RoutingKey, Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// Encode builds the persistent AMQP message for a task.
func Encode(msg *domain.TaskMessage) (amqp.Publishing, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal task: %w", err)
	}
	return amqp.Publishing{
		ContentType:  contentType,
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.JobID.String(),
		Type:         msg.TaskType,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}, nil
}

// Decode parses a delivery body. Messages without a job id are rejected.
func Decode(body []byte) (*domain.TaskMessage, error) {
	var msg domain.TaskMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal task: %w", err)
	}
	if msg.JobID == uuid.Nil {
		return nil, errors.New("unmarshal task: missing job_id")
	}
	return &msg, nil
}
