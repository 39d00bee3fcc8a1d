package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/domain"
)

type executorFunc func(ctx context.Context, task *domain.TaskMessage) (domain.Outcome, error)

func (f executorFunc) Execute(ctx context.Context, task *domain.TaskMessage) (domain.Outcome, error) {
	return f(ctx, task)
}

type settlement struct {
	mu       sync.Mutex
	acks     int
	nacks    int
	requeued int
	done     chan struct{}
}

func newDelivery(s *settlement) *domain.TaskDelivery {
	return &domain.TaskDelivery{
		Task: &domain.TaskMessage{JobID: uuid.New(), TaskType: domain.TaskSummarization},
		Ack: func() error {
			s.mu.Lock()
			s.acks++
			s.mu.Unlock()
			s.done <- struct{}{}
			return nil
		},
		Nack: func(requeue bool) error {
			s.mu.Lock()
			s.nacks++
			if requeue {
				s.requeued++
			}
			s.mu.Unlock()
			s.done <- struct{}{}
			return nil
		},
	}
}

func waitSettled(t *testing.T, s *settlement, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-s.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d of %d settlements", i, n)
		}
	}
}

func TestWorkerPool_AcksEveryOutcome(t *testing.T) {
	outcomes := []domain.Outcome{domain.OutcomeCompleted, domain.OutcomeFailed, domain.OutcomeSkipped}
	var i int32
	exec := executorFunc(func(context.Context, *domain.TaskMessage) (domain.Outcome, error) {
		n := atomic.AddInt32(&i, 1)
		return outcomes[int(n-1)%len(outcomes)], nil
	})

	tasks := make(chan *domain.TaskDelivery, 3)
	s := &settlement{done: make(chan struct{}, 3)}
	for range outcomes {
		tasks <- newDelivery(s)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := NewWorkerPool(2, tasks, exec, zap.NewNop())
	p.Start(ctx)
	waitSettled(t, s, 3)
	cancel()
	p.Stop()

	if s.acks != 3 || s.nacks != 0 {
		t.Errorf("expected 3 acks, got acks=%d nacks=%d", s.acks, s.nacks)
	}
}

func TestWorkerPool_ErrorRequeues(t *testing.T) {
	exec := executorFunc(func(context.Context, *domain.TaskMessage) (domain.Outcome, error) {
		return "", errors.New("db down")
	})
	tasks := make(chan *domain.TaskDelivery, 1)
	s := &settlement{done: make(chan struct{}, 1)}
	tasks <- newDelivery(s)

	ctx, cancel := context.WithCancel(context.Background())
	p := NewWorkerPool(1, tasks, exec, zap.NewNop())
	p.Start(ctx)
	waitSettled(t, s, 1)
	cancel()
	p.Stop()

	if s.nacks != 1 || s.requeued != 1 {
		t.Errorf("expected one requeue nack, got nacks=%d requeued=%d", s.nacks, s.requeued)
	}
}

func TestWorkerPool_LockedJobIsRequeued(t *testing.T) {
	exec := executorFunc(func(context.Context, *domain.TaskMessage) (domain.Outcome, error) {
		return "", domain.ErrJobInFlight
	})
	tasks := make(chan *domain.TaskDelivery, 1)
	s := &settlement{done: make(chan struct{}, 1)}
	tasks <- newDelivery(s)

	ctx, cancel := context.WithCancel(context.Background())
	p := NewWorkerPool(1, tasks, exec, zap.NewNop())
	p.Start(ctx)
	waitSettled(t, s, 1)
	cancel()
	p.Stop()

	if s.acks != 0 || s.requeued != 1 {
		t.Errorf("a locked pending job must be requeued, not acked: acks=%d requeued=%d", s.acks, s.requeued)
	}
}

func TestWorkerPool_PanicIsContained(t *testing.T) {
	var calls int32
	exec := executorFunc(func(context.Context, *domain.TaskMessage) (domain.Outcome, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			panic("boom")
		}
		return domain.OutcomeCompleted, nil
	})
	tasks := make(chan *domain.TaskDelivery, 2)
	s := &settlement{done: make(chan struct{}, 2)}
	tasks <- newDelivery(s)
	tasks <- newDelivery(s)

	ctx, cancel := context.WithCancel(context.Background())
	p := NewWorkerPool(1, tasks, exec, zap.NewNop())
	p.Start(ctx)
	waitSettled(t, s, 2)
	cancel()
	p.Stop()

	if s.nacks != 1 || s.acks != 1 {
		t.Errorf("expected the single worker to survive the panic, got acks=%d nacks=%d", s.acks, s.nacks)
	}
}

func TestWorkerPool_BoundedConcurrency(t *testing.T) {
	const size = 3
	var (
		running int32
		peak    int32
	)
	exec := executorFunc(func(context.Context, *domain.TaskMessage) (domain.Outcome, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return domain.OutcomeCompleted, nil
	})

	const total = 12
	tasks := make(chan *domain.TaskDelivery, total)
	s := &settlement{done: make(chan struct{}, total)}
	for i := 0; i < total; i++ {
		tasks <- newDelivery(s)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := NewWorkerPool(size, tasks, exec, zap.NewNop())
	p.Start(ctx)
	waitSettled(t, s, total)
	cancel()
	p.Stop()

	if got := atomic.LoadInt32(&peak); got > size {
		t.Errorf("expected at most %d concurrent executions, saw %d", size, got)
	}
}

func TestWorkerPool_StopsWhenChannelCloses(t *testing.T) {
	tasks := make(chan *domain.TaskDelivery)
	p := NewWorkerPool(2, tasks, executorFunc(func(context.Context, *domain.TaskMessage) (domain.Outcome, error) {
		return domain.OutcomeCompleted, nil
	}), zap.NewNop())
	p.Start(context.Background())
	close(tasks)

	done := make(chan struct{})
	go func() { p.Stop(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool did not stop after channel close")
	}
}
