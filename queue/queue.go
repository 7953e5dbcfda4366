package queue

import (
	"context"
	"fmt"

	"diffuser/logger"
)

// New creates a queue holding at most limit waiting jobs (0 = unbounded).
func New(limit int) *Queue {
	return &Queue{
		limit: limit,
		wake:  make(chan struct{}, 1),
	}
}

// Enqueue adds a job to the end of the queue and returns the number of jobs
// ahead of it, counting one that is currently running.
func (q *Queue) Enqueue(job Job) (int, error) {
	q.mutex.Lock()
	if q.limit > 0 && q.hasElementsUnsafe(q.limit) {
		q.mutex.Unlock()
		return 0, fmt.Errorf("%w (limit is %d)", ErrQueueFull, q.limit)
	}

	// Add the new job to the queue
	q.elements = append(q.elements, job)

	// Determine the number of jobs ahead
	itemsAhead := len(q.elements) - 1
	q.mutex.Unlock()

	if q.isProcessing() {
		itemsAhead++
	}

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return itemsAhead, nil
}

// Dequeue removes and returns the first job of the queue
func (q *Queue) Dequeue() *Job {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if len(q.elements) == 0 {
		return nil
	}
	element := q.elements[0]
	q.elements[0] = Job{}
	q.elements = q.elements[1:]
	return &element
}

// IsEmpty checks if the queue is empty
func (q *Queue) IsEmpty() bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.elements) == 0
}

// Len returns the current number of waiting jobs
func (q *Queue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.elements)
}

// IsCurrentlyProcessing returns whether a job is actively being processed
func (q *Queue) IsCurrentlyProcessing() bool {
	return q.isProcessing()
}

// hasElementsUnsafe is an internal function that checks queue size without locking
// It should only be called when the mutex is already locked
func (q *Queue) hasElementsUnsafe(amount int) bool {
	return len(q.elements) >= amount
}

func (q *Queue) setProcessing(job *Job) {
	q.processingMutex.Lock()
	defer q.processingMutex.Unlock()
	q.processing = job != nil
	q.processingJob = job
}

func (q *Queue) isProcessing() bool {
	q.processingMutex.Lock()
	defer q.processingMutex.Unlock()
	return q.processing
}

// ProcessQueue runs queued jobs one at a time on the calling goroutine until
// ctx is done. Jobs still waiting at that point are not run.
func (q *Queue) ProcessQueue(ctx context.Context) {
	for {
		for {
			if ctx.Err() != nil {
				return
			}
			job := q.Dequeue()
			if job == nil {
				break
			}
			q.run(job)
		}

		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		}
	}
}

func (q *Queue) run(job *Job) {
	q.setProcessing(job)
	defer q.setProcessing(nil)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Queue: job panicked", "job", job.Name, "panic", r)
		}
	}()

	if job.Name != "" {
		logger.Debug("Queue: executing job", "job", job.Name, "queue_length", q.Len())
	}
	if job.Run != nil {
		job.Run()
	}
}

// GetJobNames returns the names of the waiting jobs in order
func (q *Queue) GetJobNames() []string {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	names := make([]string, 0, len(q.elements))
	for _, job := range q.elements {
		names = append(names, job.Name)
	}
	return names
}

// GetProcessingName returns the name of the running job (or empty string if none)
func (q *Queue) GetProcessingName() string {
	q.processingMutex.Lock()
	defer q.processingMutex.Unlock()
	if q.processingJob != nil {
		return q.processingJob.Name
	}
	return ""
}

// Clear removes all waiting jobs from the queue
func (q *Queue) Clear() {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	q.elements = nil
	logger.Info("Queue cleared")
}
