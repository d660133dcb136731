package testsupport

import (
	"time"

	"github.com/ZacxDev/clipnship/internal/eventloop"
)

// Loop is a manually driven eventloop.Scheduler. Nothing runs until the test
// calls RunPending, Tick or RunFrame.
type Loop struct {
	queue  []func()
	frames []func()
	timers []*Timer
}

// NewLoop returns an idle manual loop.
func NewLoop() *Loop {
	return &Loop{}
}

// Timer is a repeating callback registered through Every.
type Timer struct {
	Interval time.Duration
	Fired    int

	fn      func()
	stopped bool
}

// Stop implements eventloop.Timer.
func (t *Timer) Stop() { t.stopped = true }

// Stopped reports whether Stop was called.
func (t *Timer) Stopped() bool { return t.stopped }

func (l *Loop) Post(fn func()) {
	l.queue = append(l.queue, fn)
}

func (l *Loop) Every(d time.Duration, fn func()) eventloop.Timer {
	t := &Timer{Interval: d, fn: fn}
	l.timers = append(l.timers, t)
	return t
}

func (l *Loop) NextFrame(fn func()) {
	l.frames = append(l.frames, fn)
}

// Do runs fn immediately and then drains the queue, matching the ordering a
// real loop gives a caller that waits for completion.
func (l *Loop) Do(fn func()) error {
	fn()
	l.RunPending()
	return nil
}

// RunPending runs queued tasks, including ones they post, until the queue
// is empty. It returns how many ran.
func (l *Loop) RunPending() int {
	n := 0
	for len(l.queue) > 0 {
		fn := l.queue[0]
		l.queue = l.queue[1:]
		fn()
		n++
	}
	return n
}

// RunFrame runs the callbacks waiting for the next display frame, then
// drains the queue. It returns how many frame callbacks ran.
func (l *Loop) RunFrame() int {
	frames := l.frames
	l.frames = nil
	for _, fn := range frames {
		fn()
	}
	l.RunPending()
	return len(frames)
}

// Tick fires every active timer n times, draining the queue after each round.
func (l *Loop) Tick(n int) {
	for i := 0; i < n; i++ {
		for _, t := range l.Timers() {
			if t.stopped {
				continue
			}
			t.Fired++
			t.fn()
		}
		l.RunPending()
	}
}

// Timers returns every timer ever registered, in order.
func (l *Loop) Timers() []*Timer {
	out := make([]*Timer, len(l.timers))
	copy(out, l.timers)
	return out
}

// ActiveTimers counts timers that have not been stopped.
func (l *Loop) ActiveTimers() int {
	n := 0
	for _, t := range l.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// PendingFrames counts callbacks waiting for RunFrame.
func (l *Loop) PendingFrames() int {
	return len(l.frames)
}

var _ eventloop.Scheduler = (*Loop)(nil)
