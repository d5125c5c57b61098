package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrRegistryClosed is returned by Registry.Model after Close.
var ErrRegistryClosed = errors.New("model registry closed")

// Registry hands out process-lifetime model handles. A model is verified (and
// pulled, when allowed) the first time it is requested; later requests reuse
// the handle. Safe for concurrent use. Initialization runs outside the lock,
// so a slow pull of one model never delays lookups of another.
type Registry struct {
	engine   Engine
	autoPull bool

	mu     sync.Mutex
	models map[string]*entry
	closed bool
}

// entry is one model's initialization. ready is closed once model or err is set.
type entry struct {
	ready chan struct{}
	model *Model
	err   error
}

// NewRegistry creates a Registry over e. When autoPull is false, a model that
// is not already present locally is an error.
func NewRegistry(e Engine, autoPull bool) *Registry {
	return &Registry{
		engine:   e,
		autoPull: autoPull,
		models:   make(map[string]*entry),
	}
}

// Model returns the handle for name, initializing it on first use. Concurrent
// callers for the same name wait for a single initialization. A failed
// initialization is not cached.
func (r *Registry) Model(ctx context.Context, name string) (*Model, error) {
	if name == "" {
		return nil, fmt.Errorf("model name is empty")
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	e, ok := r.models[name]
	if ok {
		r.mu.Unlock()
		select {
		case <-e.ready:
			return e.model, e.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	e = &entry{ready: make(chan struct{})}
	r.models[name] = e
	r.mu.Unlock()

	e.model, e.err = r.initModel(ctx, name)

	r.mu.Lock()
	if e.err != nil && r.models[name] == e {
		delete(r.models, name)
	}
	r.mu.Unlock()
	close(e.ready)

	return e.model, e.err
}

func (r *Registry) initModel(ctx context.Context, name string) (*Model, error) {
	if !r.engine.HasModel(ctx, name) {
		if !r.autoPull {
			return nil, fmt.Errorf("model %s is not available locally and auto-pull is disabled", name)
		}
		if err := r.engine.PullModel(ctx, name, progressPrinter(io.Discard)); err != nil {
			return nil, fmt.Errorf("pulling model %s: %w", name, err)
		}
	}
	return &Model{engine: r.engine, name: name}, nil
}

// loaded returns the names of successfully initialized models.
func (r *Registry) loaded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.models))
	for n, e := range r.models {
		select {
		case <-e.ready:
			if e.err == nil {
				names = append(names, n)
			}
		default:
		}
	}
	return names
}

// Close drops all handles. Later calls to Model fail with ErrRegistryClosed.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.models = make(map[string]*entry)
	r.closed = true
	return nil
}

// Model is an initialized handle bound to one model name.
type Model struct {
	engine Engine
	name   string
}

func (m *Model) Name() string { return m.name }

func (m *Model) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	return m.engine.Generate(ctx, m.name, req)
}

func (m *Model) Embed(ctx context.Context, text string) ([]float32, error) {
	return m.engine.Embed(ctx, m.name, text)
}
