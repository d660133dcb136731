// Package eventloop runs every state change of a converter on one goroutine.
//
// Timers, display frames, media events and encoder callbacks are all posted
// onto a Loop and executed in FIFO order, so the state they touch needs no
// locking.
package eventloop

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

// DefaultFrameInterval approximates one display refresh at 60Hz.
const DefaultFrameInterval = time.Second / 60

// ErrClosed is returned by Do after Close.
var ErrClosed = errors.New("event loop closed")

// PanicError is returned by Do when the task it ran panicked.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("event loop task panicked: %v", e.Value)
}

// Scheduler is the part of the loop that components depend on.
type Scheduler interface {
	// Post queues fn to run on the loop.
	Post(fn func())
	// Every runs fn on the loop every d until the returned Timer is stopped.
	Every(d time.Duration, fn func()) Timer
	// NextFrame runs fn once on the loop at the next display frame.
	NextFrame(fn func())
}

// Timer is a repeating callback. After Stop returns, fn never runs again,
// even if a tick was already queued.
type Timer interface {
	Stop()
}

// Loop is a single-goroutine task queue.
type Loop struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}

	frame  time.Duration
	logger *slog.Logger
}

// Option configures a Loop.
type Option func(*Loop)

// WithFrameInterval overrides the NextFrame delay.
func WithFrameInterval(d time.Duration) Option {
	return func(l *Loop) {
		if d > 0 {
			l.frame = d
		}
	}
}

// WithLogger sets the logger used to report panicking tasks.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New starts a loop goroutine.
func New(opts ...Option) *Loop {
	l := &Loop{
		done:   make(chan struct{}),
		frame:  DefaultFrameInterval,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.queue) == 0 && l.closed {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.exec(fn)
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event loop task panicked", slog.Any("panic", r))
		}
	}()
	fn()
}

// Post queues fn. Tasks posted after Close are dropped.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.queue = append(l.queue, fn)
	l.cond.Signal()
}

// Do runs fn on the loop and waits for it to finish. A panic in fn is
// recovered and returned as a *PanicError. It must not be called from a task
// already running on the loop.
func (l *Loop) Do(fn func()) error {
	finished := make(chan struct{})
	var panicErr error
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.queue = append(l.queue, func() {
		defer close(finished)
		defer func() {
			if r := recover(); r != nil {
				l.logger.Error("event loop task panicked", slog.Any("panic", r))
				panicErr = &PanicError{Value: r}
			}
		}()
		fn()
	})
	l.cond.Signal()
	l.mu.Unlock()

	select {
	case <-finished:
		return panicErr
	case <-l.done:
		// Close drains the queue, so fn ran unless it was dropped.
		select {
		case <-finished:
			return panicErr
		default:
			return ErrClosed
		}
	}
}

// Every implements Scheduler. Ticks that arrive while a previous tick is
// still queued are dropped rather than piling up. A non-positive d ticks at
// the frame interval.
func (l *Loop) Every(d time.Duration, fn func()) Timer {
	if d <= 0 {
		l.logger.Warn("non-positive timer interval, using frame interval", slog.Duration("interval", d))
		d = l.frame
	}
	t := &ticker{
		ticker: time.NewTicker(d),
		stop:   make(chan struct{}),
	}
	go func() {
		for {
			select {
			case <-t.stop:
				return
			case <-l.done:
				return
			case <-t.ticker.C:
				if !t.pending.CompareAndSwap(false, true) {
					continue
				}
				l.Post(func() {
					t.pending.Store(false)
					if t.stopped.Load() {
						return
					}
					fn()
				})
			}
		}
	}()
	return t
}

// NextFrame implements Scheduler.
func (l *Loop) NextFrame(fn func()) {
	time.AfterFunc(l.frame, func() { l.Post(fn) })
}

// Close stops accepting tasks, runs what is already queued and waits for
// the loop goroutine to exit.
func (l *Loop) Close() {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		l.cond.Broadcast()
	}
	l.mu.Unlock()
	<-l.done
}

type ticker struct {
	ticker  *time.Ticker
	stop    chan struct{}
	once    sync.Once
	stopped atomic.Bool
	pending atomic.Bool
}

func (t *ticker) Stop() {
	t.once.Do(func() {
		t.stopped.Store(true)
		t.ticker.Stop()
		close(t.stop)
	})
}

var _ Scheduler = (*Loop)(nil)
