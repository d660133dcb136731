package render

import (
	"context"
	"sync"
)

// Job is a handle on an in-flight render. It is safe for use from any
// goroutine.
type Job struct {
	id   string
	done chan struct{}

	mu       sync.Mutex
	progress float64
	output   *Output
	err      error
}

func newJob(id string) *Job {
	return &Job{id: id, done: make(chan struct{})}
}

// ID is the render session id.
func (j *Job) ID() string { return j.id }

// Done is closed after onFinish has returned.
func (j *Job) Done() <-chan struct{} { return j.done }

// Progress is the last reported progress in [0,1].
func (j *Job) Progress() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress
}

// Err is the encoder error, if it failed. Output is still delivered.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Output is the encoded clip, nil until Done.
func (j *Job) Output() *Output {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.output
}

// Wait blocks until the render finishes or ctx is done.
func (j *Job) Wait(ctx context.Context) (*Output, error) {
	select {
	case <-j.done:
		return j.Output(), j.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (j *Job) setProgress(p float64) {
	j.mu.Lock()
	j.progress = p
	j.mu.Unlock()
}

func (j *Job) finish(out *Output, err error) {
	j.mu.Lock()
	j.output = out
	j.err = err
	j.mu.Unlock()
	close(j.done)
}
