package offline

import (
	"context"
	"fmt"
	"sync"
)

// EventType tags the worker lifecycle and background events. Fetch
// interception is not dispatched here: Go's HTTP handler boundary already is
// that event, and the service binds the dispatcher to it directly.
type EventType int

const (
	EventInstall EventType = iota
	EventActivate
	EventSync
	EventPush
)

func (t EventType) String() string {
	switch t {
	case EventInstall:
		return "install"
	case EventActivate:
		return "activate"
	case EventSync:
		return "sync"
	case EventPush:
		return "push"
	default:
		return "unknown"
	}
}

// Event carries one dispatched occurrence. Tag is set for sync events,
// Payload for push events.
type Event struct {
	Type    EventType
	Tag     string
	Payload []byte
}

// EventHandler processes one event to completion. The dispatcher waits for
// the returned error before considering the event resolved.
type EventHandler func(ctx context.Context, ev Event) error

// WorkerState tracks the lifecycle of the worker instance.
type WorkerState int

const (
	StateNew WorkerState = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActive
)

func (s WorkerState) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActive:
		return "active"
	default:
		return "new"
	}
}

// Worker is the event registry: handlers are keyed by event type and run
// sequentially in registration order. Dispatch awaits every handler; the
// first failure resolves the event with that error.
type Worker struct {
	mu          sync.Mutex
	handlers    map[EventType][]EventHandler
	state       WorkerState
	skipWaiting bool
}

func NewWorker() *Worker {
	return &Worker{handlers: map[EventType][]EventHandler{}}
}

// On registers a handler for one event type.
func (w *Worker) On(t EventType, h EventHandler) {
	w.mu.Lock()
	w.handlers[t] = append(w.handlers[t], h)
	w.mu.Unlock()
}

// Dispatch runs every handler registered for the event's type.
func (w *Worker) Dispatch(ctx context.Context, ev Event) error {
	w.mu.Lock()
	hs := make([]EventHandler, len(w.handlers[ev.Type]))
	copy(hs, w.handlers[ev.Type])
	w.mu.Unlock()

	for _, h := range hs {
		if err := h(ctx, ev); err != nil {
			return fmt.Errorf("%s event: %w", ev.Type, err)
		}
	}
	return nil
}

// SkipWaiting asks the lifecycle to activate immediately after install
// instead of a staged handover from an outgoing instance.
func (w *Worker) SkipWaiting() {
	w.mu.Lock()
	w.skipWaiting = true
	w.mu.Unlock()
}

func (w *Worker) SkippedWaiting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.skipWaiting
}

func (w *Worker) setState(s WorkerState) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// State returns the current lifecycle state.
func (w *Worker) State() WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}
