package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TaskMessage is the queue payload. It only references a job; the
// repository row stays authoritative.
type TaskMessage struct {
	JobID      uuid.UUID       `json:"job_id"`
	TaskType   string          `json:"task_type"`
	OwnerID    string          `json:"owner_id"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// TaskDelivery wraps a consumed message with its broker acknowledgement
// callbacks. The worker pool calls exactly one of them once the job has
// been handled.
type TaskDelivery struct {
	Task *TaskMessage
	Ack  func() error
	Nack func(requeue bool) error
}

// Outcome is how the execution handler disposed of a delivery.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	// OutcomeSkipped covers redeliveries of terminal jobs, deliveries racing
	// an in-flight execution, and messages for unknown jobs.
	OutcomeSkipped Outcome = "skipped"
)

// EventType names a notification pushed to job owners.
type EventType string

const (
	EventJobCompleted EventType = "job.completed"
	EventJobFailed    EventType = "job.failed"
)

// Event is a terminal-state notification.
type Event struct {
	Type            EventType `json:"type"`
	JobID           uuid.UUID `json:"job_id"`
	OwnerID         string    `json:"owner_id"`
	TaskType        string    `json:"task_type"`
	Status          JobStatus `json:"status"`
	ResultReference string    `json:"result_reference,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	OccurredAt      time.Time `json:"occurred_at"`
}

// NewTerminalEvent builds the notification for a job's terminal write.
func NewTerminalEvent(job *Job, update TerminalUpdate, at time.Time) Event {
	evType := EventJobCompleted
	if update.Status == StatusFailed {
		evType = EventJobFailed
	}
	return Event{
		Type:            evType,
		JobID:           job.ID,
		OwnerID:         job.OwnerID,
		TaskType:        job.TaskType,
		Status:          update.Status,
		ResultReference: update.ResultReference,
		ErrorMessage:    update.ErrorMessage,
		OccurredAt:      at,
	}
}
