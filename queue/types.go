package queue

import (
	"errors"
	"sync"
)

var ErrQueueFull = errors.New("the queue is currently full")

// Job is a unit of work run by ProcessQueue.
type Job struct {
	Name string
	Run  func()
}

// Queue is a FIFO of jobs executed one at a time.
type Queue struct {
	elements        []Job
	limit           int // 0 means unbounded
	mutex           sync.Mutex
	processing      bool
	processingMutex sync.Mutex
	processingJob   *Job // currently processing job
	wake            chan struct{}
}

// Dispatcher runs posted functions in order on a single goroutine. It is the
// serialized context on which observable state changes are delivered.
type Dispatcher struct {
	queue *Queue
}
