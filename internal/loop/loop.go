// Package loop provides the execution contexts tiles run on.
//
// A tile engine has exactly two logical contexts: a main (rendering) context where
// views are computed and the host is refreshed, and a background context where the
// settings store is read and written. Each context is strictly sequential, so state
// owned by one context needs no locks as long as work is marshalled with Post.
package loop

import (
	"context"
	"log/slog"
	"sync"
)

// Handler accepts work to run on the context it represents.
// Post reports false when the work was dropped (the context is gone).
type Handler interface {
	Post(fn func()) bool
}

// Inline runs posted work immediately on the caller's goroutine.
// Useful for tests and single-threaded hosts.
type Inline struct{}

func (Inline) Post(fn func()) bool {
	fn()
	return true
}

// Looper is a single goroutine draining a queue of tasks.
//
// The owner either calls Run, or selects on Tasks() from its own loop (the daemon does
// the latter so that IPC events and posted tasks are serialized on one goroutine).
type Looper struct {
	name   string
	tasks  chan func()
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewLooper creates a looper with a buffered task queue. If buf <= 0 a default is used.
func NewLooper(name string, buf int, logger *slog.Logger) *Looper {
	if buf <= 0 {
		buf = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Looper{
		name:   name,
		tasks:  make(chan func(), buf),
		logger: logger,
	}
}

// Post enqueues fn. It never blocks: when the queue is full the task is dropped
// and logged.
func (l *Looper) Post(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	select {
	case l.tasks <- fn:
		return true
	default:
		l.logger.Warn("looper queue full, dropping task", "looper", l.name)
		return false
	}
}

// Tasks exposes the queue for owners that drive the looper from their own select loop.
func (l *Looper) Tasks() <-chan func() {
	return l.tasks
}

// Run drains tasks until ctx is canceled. Pending tasks are discarded on exit.
func (l *Looper) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			l.Close()
			return
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Closed reports whether Close has been called.
func (l *Looper) Closed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Close stops accepting work. Further Post calls report false.
func (l *Looper) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}
