package queue

import "context"

func NewDispatcher() *Dispatcher {
	return &Dispatcher{queue: New(0)}
}

// Post schedules fn to run after everything posted before it. It never blocks.
func (d *Dispatcher) Post(fn func()) {
	// an unbounded queue never reports ErrQueueFull
	_, _ = d.queue.Enqueue(Job{Run: fn})
}

// Run executes posted functions until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) {
	d.queue.ProcessQueue(ctx)
}

// Sync waits until every function posted before the call has run.
func (d *Dispatcher) Sync(ctx context.Context) error {
	done := make(chan struct{})
	d.Post(func() { close(done) })
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
