package api

import (
	"runtime/debug"
	"sync"

	"github.com/phuhao00/scriptbridge/server/internal/metrics"
	"github.com/phuhao00/scriptbridge/server/internal/utils"
)

// Hook is a multicast event without arguments.
type Hook struct {
	name      string
	mu        sync.Mutex
	listeners []func()
}

// Attach adds fn; listeners run in attachment order.
func (h *Hook) Attach(fn func()) {
	if fn == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

func (h *Hook) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

func (h *Hook) invoke() {
	h.mu.Lock()
	listeners := h.listeners
	h.mu.Unlock()
	for i, fn := range listeners {
		safeCall(h.name, i, fn)
	}
}

// Event is a multicast fire-and-forget event. A panicking listener is logged
// and the remaining listeners still run.
type Event[T any] struct {
	name      string
	mu        sync.Mutex
	listeners []func(T)
}

// Attach adds fn; listeners run in attachment order.
func (e *Event[T]) Attach(fn func(T)) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

func (e *Event[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}

func (e *Event[T]) invoke(arg T) {
	e.mu.Lock()
	listeners := e.listeners
	e.mu.Unlock()
	for i, fn := range listeners {
		safeCall(e.name, i, func() { fn(arg) })
	}
}

// Cancellable is shared by every listener of one CancelEvent invocation.
// Listeners see and may overwrite each other's decision; the value left after
// the last listener is the verdict.
type Cancellable struct {
	Cancel bool
}

// CancelEvent is a multicast event whose listeners decide whether the caller
// should suppress the action that raised it.
type CancelEvent[T any] struct {
	name      string
	mu        sync.Mutex
	listeners []func(T, *Cancellable)
}

// Attach adds fn; listeners run in attachment order.
func (e *CancelEvent[T]) Attach(fn func(T, *Cancellable)) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

func (e *CancelEvent[T]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}

// invoke returns true when the action must be suppressed. No listeners means
// proceed.
func (e *CancelEvent[T]) invoke(arg T) bool {
	e.mu.Lock()
	listeners := e.listeners
	e.mu.Unlock()
	c := &Cancellable{}
	for i, fn := range listeners {
		safeCall(e.name, i, func() { fn(arg, c) })
	}
	return c.Cancel
}

func safeCall(event string, index int, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.TaskPanics.Inc()
			utils.LogErrorf("[API] Listener %d of %s panicked: %v\n%s", index, event, r, debug.Stack())
		}
	}()
	fn()
}
