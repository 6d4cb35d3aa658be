// Package tasks defines the task-side interfaces the context memory consumes:
// a snapshot view of a task, a read-only task store, and a typed lifecycle
// event bus. The task CRUD store itself lives elsewhere in the application;
// this package only specifies what the signal extractor needs from it.
package tasks

import (
	"context"
	"sync"
	"time"
)

// EventKind identifies a task lifecycle event.
type EventKind string

const (
	// EventCreated fires when a task is created or modified.
	EventCreated EventKind = "created"

	// EventCompleted fires when a task is completed.
	EventCompleted EventKind = "completed"
)

// Event is a task lifecycle notification. It carries only the task ID;
// subscribers re-fetch current task fields through a TaskStore rather than
// trusting a snapshot embedded in the event.
type Event struct {
	Kind   EventKind
	TaskID string
}

// Task is the read-side snapshot of a task, limited to the fields signal
// extraction needs.
type Task struct {
	ID          string
	Title       string
	Notes       string
	ListName    string
	ScheduledAt *time.Time
	CompletedAt *time.Time
	Recurring   bool
}

// TaskStore is the read-only view of the application's task store.
type TaskStore interface {
	// GetTask fetches the current state of a task by ID.
	GetTask(ctx context.Context, id string) (*Task, error)
}

// Handler consumes task lifecycle events.
type Handler func(ctx context.Context, ev Event)

// Bus is a typed, explicit event channel for task lifecycle events. It
// replaces an implicit notification-center broadcast: subscribers are
// registered in code, so the dependency is visible at compile time.
//
// Publish delivers synchronously, in registration order, on the caller's
// goroutine. Handlers are expected to be non-blocking and to swallow their
// own errors; the publishing task mutation must never be affected.
type Bus struct {
	mu       sync.RWMutex
	handlers []Handler
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all subsequent events.
func (b *Bus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

// Publish delivers an event to every registered handler.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ctx, ev)
	}
}
