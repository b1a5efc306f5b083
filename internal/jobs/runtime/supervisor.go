package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/lessonforge/internal/observability"
	"github.com/yungbote/lessonforge/internal/platform/logger"
)

// ErrShuttingDown is returned by Go once Shutdown has begun.
var ErrShuttingDown = errors.New("supervisor is shutting down")

// Task is a unit of supervised work. The context is owned by the supervisor,
// not the caller, so a task outlives the request that started it.
type Task func(ctx context.Context) error

// Handle tracks one supervised task.
type Handle struct {
	ID   uuid.UUID
	Kind string

	done chan struct{}
	err  error
}

func (h *Handle) Done() <-chan struct{} { return h.done }

// Err is valid after Done is closed.
func (h *Handle) Err() error { return h.err }

// Wait blocks until the task finishes or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Supervisor runs detached tasks and keeps an explicit registry of what is
// in flight, keyed by entity id. At most one task per id runs at a time.
type Supervisor struct {
	log  *logger.Logger
	sems map[string]chan struct{}

	mu     sync.Mutex
	tasks  map[uuid.UUID]*Handle
	closed bool

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSupervisor(baseLog *logger.Logger) *Supervisor {
	base, cancel := context.WithCancel(context.Background())
	return &Supervisor{
		log:    baseLog.With("component", "Supervisor"),
		sems:   map[string]chan struct{}{},
		tasks:  map[uuid.UUID]*Handle{},
		base:   base,
		cancel: cancel,
	}
}

// Limit caps how many tasks of kind run at once. Tasks over the limit stay
// registered and wait for a slot. Call before starting tasks of that kind.
func (s *Supervisor) Limit(kind string, n int) *Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > 0 {
		s.sems[kind] = make(chan struct{}, n)
	} else {
		delete(s.sems, kind)
	}
	return s
}

// Go starts fn under id unless a task with that id is already in flight, in
// which case the existing handle is returned and started is false.
func (s *Supervisor) Go(kind string, id uuid.UUID, fn Task) (h *Handle, started bool, err error) {
	if fn == nil {
		return nil, false, fmt.Errorf("supervisor: nil task")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrShuttingDown
	}
	if existing, ok := s.tasks[id]; ok {
		return existing, false, nil
	}
	h = &Handle{ID: id, Kind: kind, done: make(chan struct{})}
	s.tasks[id] = h
	s.wg.Add(1)
	observability.InFlightTasks.WithLabelValues(kind).Inc()
	go s.run(h, s.sems[kind], fn)
	return h, true, nil
}

func (s *Supervisor) run(h *Handle, sem chan struct{}, fn Task) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("Supervised task panic", "kind", h.Kind, "id", h.ID, "panic", r)
			h.err = &panicError{Val: r}
		}
		s.mu.Lock()
		delete(s.tasks, h.ID)
		s.mu.Unlock()
		observability.InFlightTasks.WithLabelValues(h.Kind).Dec()
		close(h.done)
	}()

	if sem != nil {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
		case <-s.base.Done():
			h.err = s.base.Err()
			return
		}
	}
	h.err = fn(s.base)
	if h.err != nil && !errors.Is(h.err, context.Canceled) {
		s.log.Warn("Supervised task failed", "kind", h.Kind, "id", h.ID, "error", h.err)
	}
}

// Lookup returns the in-flight handle for id, if any.
func (s *Supervisor) Lookup(id uuid.UUID) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.tasks[id]
	return h, ok
}

// InFlight lists the ids of running tasks of the given kind ("" for all).
func (s *Supervisor) InFlight(kind string) []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]uuid.UUID, 0, len(s.tasks))
	for id, h := range s.tasks {
		if kind == "" || h.Kind == kind {
			out = append(out, id)
		}
	}
	return out
}

// Shutdown stops accepting tasks and waits for running ones to drain. When
// ctx expires first the remaining tasks are cancelled and awaited.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.log.Warn("Supervisor drain timed out; cancelling tasks", "remaining", len(s.InFlight("")))
		s.cancel()
		<-drained
		return ctx.Err()
	}
}

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("panic: %v", e.Val) }
