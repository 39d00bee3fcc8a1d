package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/domain"
)

func TestSubmit_Success(t *testing.T) {
	h := newHarness(t, summarizationRegistry(t))

	resp, err := h.submit.Execute(context.Background(), &domain.SubmitRequest{
		OwnerID:  "alice",
		TaskType: domain.TaskSummarization,
		Payload:  textPayload("Queues decouple work. Workers drain queues."),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Status != domain.StatusPending {
		t.Errorf("expected pending status, got %s", resp.Status)
	}
	if resp.JobID.Version() != 7 {
		t.Errorf("expected UUIDv7 job id, got version %d", resp.JobID.Version())
	}

	job := mustJob(t, h, resp.JobID)
	if job.Status != domain.StatusPending || job.OwnerID != "alice" {
		t.Errorf("unexpected stored job: %+v", job)
	}

	msgs := h.pub.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(msgs))
	}
	if msgs[0].JobID != resp.JobID || msgs[0].OwnerID != "alice" || len(msgs[0].Payload) == 0 {
		t.Errorf("unexpected message: %+v", msgs[0])
	}
}

func TestSubmit_ValidationCreatesNoJob(t *testing.T) {
	cases := []struct {
		name string
		req  *domain.SubmitRequest
		want error
	}{
		{"missing owner", &domain.SubmitRequest{TaskType: domain.TaskSummarization, Payload: textPayload("x")}, domain.ErrMissingOwner},
		{"unknown type", &domain.SubmitRequest{OwnerID: "alice", TaskType: "ocr", Payload: textPayload("x")}, domain.ErrUnknownTaskType},
		{"empty text", &domain.SubmitRequest{OwnerID: "alice", TaskType: domain.TaskSummarization, Payload: textPayload("   ")}, domain.ErrEmptyInput},
		{"too large", &domain.SubmitRequest{OwnerID: "alice", TaskType: domain.TaskSummarization, Payload: textPayload(strings.Repeat("a", testMaxChars+1))}, domain.ErrInputTooLarge},
		{"malformed", &domain.SubmitRequest{OwnerID: "alice", TaskType: domain.TaskSummarization, Payload: []byte(`{"text":`)}, domain.ErrMalformedPayload},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, summarizationRegistry(t))
			_, err := h.submit.Execute(context.Background(), tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
			if n := len(h.repo.GetAll()); n != 0 {
				t.Errorf("expected no jobs, got %d", n)
			}
			if n := len(h.pub.Messages()); n != 0 {
				t.Errorf("expected no published messages, got %d", n)
			}
		})
	}
}

func TestSubmit_EnqueueFailureCompensates(t *testing.T) {
	h := newHarness(t, summarizationRegistry(t))
	h.pub.PublishFn = func(ctx context.Context, msg *domain.TaskMessage) error {
		return errors.New("connection refused")
	}

	_, err := h.submit.Execute(context.Background(), &domain.SubmitRequest{
		OwnerID:  "alice",
		TaskType: domain.TaskSummarization,
		Payload:  textPayload("Some text."),
	})
	if !errors.Is(err, domain.ErrEnqueueFailed) {
		t.Fatalf("expected ErrEnqueueFailed, got %v", err)
	}

	jobs := h.repo.GetAll()
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	job := jobs[0]
	if job.Status != domain.StatusFailed {
		t.Fatalf("expected failed job, got %s", job.Status)
	}
	if job.ErrorMessage == nil || !strings.HasPrefix(*job.ErrorMessage, "failed to enqueue job") {
		t.Errorf("unexpected error message: %v", job.ErrorMessage)
	}
	if job.ResultReference != nil {
		t.Error("failed job must not carry a result reference")
	}
}

func TestSubmit_RepositoryFailure(t *testing.T) {
	h := newHarness(t, summarizationRegistry(t))
	h.repo.CreateFunc = func(ctx context.Context, job *domain.Job) error {
		return errors.New("db down")
	}

	_, err := h.submit.Execute(context.Background(), &domain.SubmitRequest{
		OwnerID:  "alice",
		TaskType: domain.TaskSummarization,
		Payload:  textPayload("Some text."),
	})
	if err == nil || errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected infrastructure error, got %v", err)
	}
	if n := len(h.pub.Messages()); n != 0 {
		t.Errorf("nothing may be published without a row, got %d messages", n)
	}
}
