// Package ui provides the single event loop that owns every display
// surface. Other goroutines never touch surfaces directly; they Post
// closures that the loop runs in order.
package ui

import (
	"context"
	"runtime"
	"sync"

	"github.com/bryanchriswhite/InfinitePIP/internal/logger"
)

// Dispatcher is the hand-off primitive used by capture goroutines.
type Dispatcher interface {
	// Post queues fn to run on the UI loop. It never blocks and returns
	// false once the loop has stopped.
	Post(fn func()) bool
}

// Loop is an unbounded FIFO of closures drained by one goroutine.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	stopped bool
	wake    chan struct{}
	done    chan struct{}
}

// NewLoop creates a loop. Call Run to start draining it.
func NewLoop() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post implements Dispatcher.
func (l *Loop) Post(fn func()) bool {
	if fn == nil {
		return false
	}
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Call posts fn and waits for it to run. It must not be called from the
// loop itself. It returns false if the loop stopped before fn ran.
func (l *Loop) Call(fn func()) bool {
	ran := make(chan struct{})
	if !l.Post(func() {
		defer close(ran)
		fn()
	}) {
		return false
	}
	select {
	case <-ran:
		return true
	case <-l.done:
		return false
	}
}

// Done is closed after Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Run drains the queue until ctx is cancelled. Closures already queued when
// ctx ends are still run so that surfaces are released.
func (l *Loop) Run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			l.mu.Lock()
			l.stopped = true
			rest := l.queue
			l.queue = nil
			l.mu.Unlock()
			for _, fn := range rest {
				l.run(fn)
			}
			return
		case <-l.wake:
			for {
				l.mu.Lock()
				if len(l.queue) == 0 {
					l.mu.Unlock()
					break
				}
				fn := l.queue[0]
				l.queue[0] = nil
				l.queue = l.queue[1:]
				l.mu.Unlock()
				l.run(fn)
			}
		}
	}
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithComponent("ui").Error().Interface("panic", r).Msg("UI task panicked")
		}
	}()
	fn()
}
