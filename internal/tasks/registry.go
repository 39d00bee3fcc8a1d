// Package tasks maps job task types to the code that validates and runs them.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/domain"
)

// Artifact is the output of a task run, stored under the job's result key.
type Artifact struct {
	Name string
	Data []byte
}

// Handler runs one task type. Validate is called at submission time and must
// be cheap; Run is called by workers and may be retried.
type Handler interface {
	Type() string
	Description() string
	Validate(payload json.RawMessage) error
	Run(ctx context.Context, payload json.RawMessage) (*Artifact, error)
}

// Registry holds the handlers known to this process.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(h Handler) error {
	if h == nil {
		return fmt.Errorf("nil handler")
	}
	t := h.Type()
	if t == "" {
		return fmt.Errorf("handler Type() is empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[t]; exists {
		return fmt.Errorf("handler already registered for task_type=%s", t)
	}
	r.handlers[t] = h
	return nil
}

// MustRegister is Register for process start-up wiring.
func (r *Registry) MustRegister(h Handler) {
	if err := r.Register(h); err != nil {
		panic(err)
	}
}

func (r *Registry) Get(taskType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[taskType]
	return h, ok
}

// Types lists registered task types sorted by name.
func (r *Registry) Types() []domain.TaskTypeInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.TaskTypeInfo, 0, len(r.handlers))
	for _, h := range r.handlers {
		out = append(out, domain.TaskTypeInfo{Name: h.Type(), Description: h.Description()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
