package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the lifecycle state of an asynchronous job.
// Execution itself is not persisted: a job is pending until its single
// terminal write.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
)

// IsTerminal returns true if the status represents a final state.
func (s JobStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsValid checks if the status is one of the known states.
func (s JobStatus) IsValid() bool {
	return s == StatusPending || s.IsTerminal()
}

// TaskSummarization is the task type of text summarization jobs.
const TaskSummarization = "summarization"

// Job is the durable record of a unit of asynchronous work.
type Job struct {
	ID              uuid.UUID  `json:"job_id"`
	OwnerID         string     `json:"owner_id"`
	TaskType        string     `json:"task_type"`
	Status          JobStatus  `json:"status"`
	ResultReference *string    `json:"result_reference,omitempty"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// TerminalUpdate is the one and only mutation a job receives after insertion.
type TerminalUpdate struct {
	Status          JobStatus
	ResultReference string
	ErrorMessage    string
}

// Completed builds the terminal update of a successful job.
func Completed(resultRef string) TerminalUpdate {
	return TerminalUpdate{Status: StatusCompleted, ResultReference: resultRef}
}

// Failed builds the terminal update of a failed job.
func Failed(message string) TerminalUpdate {
	return TerminalUpdate{Status: StatusFailed, ErrorMessage: message}
}

// Validate enforces that exactly one of result reference and error message
// accompanies a terminal status.
func (u TerminalUpdate) Validate() error {
	switch u.Status {
	case StatusCompleted:
		if u.ResultReference == "" || u.ErrorMessage != "" {
			return ErrInvalidTerminalUpdate
		}
	case StatusFailed:
		if u.ErrorMessage == "" || u.ResultReference != "" {
			return ErrInvalidTerminalUpdate
		}
	default:
		return ErrInvalidTerminalUpdate
	}
	return nil
}

// SubmitRequest is a validated-at-the-edge request to run a task.
type SubmitRequest struct {
	OwnerID  string          `json:"-"`
	TaskType string          `json:"task_type" binding:"required"`
	Payload  json.RawMessage `json:"payload" binding:"required"`
}

// SubmitResponse is returned after a successful submission.
type SubmitResponse struct {
	JobID  uuid.UUID `json:"job_id"`
	Status JobStatus `json:"status"`
}

// JobView is what a polling client sees.
type JobView struct {
	JobID           uuid.UUID  `json:"job_id"`
	TaskType        string     `json:"task_type"`
	Status          JobStatus  `json:"status"`
	ResultReference *string    `json:"result_reference,omitempty"`
	ResultURL       string     `json:"result_url,omitempty"`
	ErrorMessage    *string    `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// NewJobView projects a job onto its client-facing view.
func NewJobView(job *Job) *JobView {
	return &JobView{
		JobID:           job.ID,
		TaskType:        job.TaskType,
		Status:          job.Status,
		ResultReference: job.ResultReference,
		ErrorMessage:    job.ErrorMessage,
		CreatedAt:       job.CreatedAt,
		FinishedAt:      job.FinishedAt,
	}
}

// TaskTypeInfo describes a registered task type.
type TaskTypeInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}
