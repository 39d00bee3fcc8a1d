package usecase_test

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/domain"
	pubmock "github.com/ehtisham-id/proj7-ai-platform-api/internal/publisher/mock"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/repository/mock"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/storage"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/summarize"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/tasks"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/usecase"
)

const testMaxChars = 100000

var testPolicy = usecase.RetryPolicy{
	MaxRetries: 3,
	Delay:      time.Millisecond,
	LockWait:   50 * time.Millisecond,
	LockPoll:   2 * time.Millisecond,
}

// scriptedHandler is a summarization handler whose Run behavior is scripted per call.
type scriptedHandler struct {
	mu    sync.Mutex
	calls int
	runFn func(ctx context.Context, call int) (*tasks.Artifact, error)
}

func (h *scriptedHandler) Type() string        { return domain.TaskSummarization }
func (h *scriptedHandler) Description() string { return "scripted" }

func (h *scriptedHandler) Validate(json.RawMessage) error { return nil }

func (h *scriptedHandler) Run(ctx context.Context, _ json.RawMessage) (*tasks.Artifact, error) {
	h.mu.Lock()
	h.calls++
	call := h.calls
	h.mu.Unlock()
	if h.runFn != nil {
		return h.runFn(ctx, call)
	}
	return &tasks.Artifact{Name: "summary.txt", Data: []byte("summary")}, nil
}

func (h *scriptedHandler) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

// recordingNotifier records events and optionally fails.
type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, ev domain.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) Events() []domain.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Event(nil), n.events...)
}

func registryWith(t *testing.T, h tasks.Handler) *tasks.Registry {
	t.Helper()
	r := tasks.NewRegistry()
	if err := r.Register(h); err != nil {
		t.Fatal(err)
	}
	return r
}

func summarizationRegistry(t *testing.T) *tasks.Registry {
	return registryWith(t, tasks.NewSummarization(summarize.NewExtractive(summarize.DefaultRatio), testMaxChars))
}

// harness wires the usecases to in-memory collaborators.
type harness struct {
	repo     *mock.MockJobRepository
	idem     *mock.IdempotencyStore
	pub      *pubmock.MockPublisher
	store    *storage.MemoryStorage
	notifier *recordingNotifier
	registry *tasks.Registry

	submit  *usecase.SubmitJobUsecase
	execute *usecase.ExecuteJobUsecase
	get     *usecase.GetJobUsecase
}

func newHarness(t *testing.T, registry *tasks.Registry) *harness {
	t.Helper()
	h := &harness{
		repo:     mock.NewMockJobRepository(),
		idem:     &mock.IdempotencyStore{},
		pub:      pubmock.NewMockPublisher(),
		store:    storage.NewMemoryStorage("test"),
		notifier: &recordingNotifier{},
		registry: registry,
	}
	logger := zap.NewNop()
	h.submit = usecase.NewSubmitJobUsecase(h.repo, h.pub, registry, logger)
	h.execute = usecase.NewExecuteJobUsecase(h.repo, h.idem, h.store, registry, h.notifier, testPolicy, logger)
	h.get = usecase.NewGetJobUsecase(h.repo, h.store, time.Hour, logger)
	return h
}

// seedPending stores a pending job and returns the queue message for it.
func (h *harness) seedPending(owner string) *domain.TaskMessage {
	job := &domain.Job{ID: uuid.Must(uuid.NewV7()), OwnerID: owner, TaskType: domain.TaskSummarization}
	_ = h.repo.Create(context.Background(), job)
	return &domain.TaskMessage{
		JobID:    job.ID,
		TaskType: job.TaskType,
		OwnerID:  owner,
		Payload:  textPayload(strings.Repeat("word ", 10)),
	}
}

func textPayload(text string) json.RawMessage {
	b, _ := json.Marshal(map[string]string{"text": text})
	return b
}

func mustJob(t *testing.T, h *harness, id uuid.UUID) *domain.Job {
	t.Helper()
	job, err := h.repo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get job %s: %v", id, err)
	}
	return job
}
