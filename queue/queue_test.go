package queue

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

func TestQueueCreation(t *testing.T) {
	q := New(1)

	if !q.IsEmpty() {
		t.Error("New queue should be empty")
	}
	if q.IsCurrentlyProcessing() {
		t.Error("New queue should not be processing")
	}
	if q.GetProcessingName() != "" {
		t.Error("New queue should have no processing job")
	}
}

func TestQueueLimit(t *testing.T) {
	q := New(1)

	ahead, err := q.Enqueue(Job{Name: "load"})
	if err != nil || ahead != 0 {
		t.Fatalf("Enqueue() = %d, %v; want 0, nil", ahead, err)
	}

	if _, err := q.Enqueue(Job{Name: "generate"}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("Enqueue() error = %v, want ErrQueueFull", err)
	}

	if got := q.GetJobNames(); !reflect.DeepEqual(got, []string{"load"}) {
		t.Errorf("GetJobNames() = %v", got)
	}

	q.Clear()
	if !q.IsEmpty() {
		t.Error("Clear() left jobs behind")
	}
}

func TestQueueFIFO(t *testing.T) {
	q := New(0)
	for _, name := range []string{"a", "b", "c"} {
		if _, err := q.Enqueue(Job{Name: name}); err != nil {
			t.Fatal(err)
		}
	}
	if q.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", q.Len())
	}
	for _, want := range []string{"a", "b", "c"} {
		if job := q.Dequeue(); job == nil || job.Name != want {
			t.Fatalf("Dequeue() = %v, want %s", job, want)
		}
	}
	if q.Dequeue() != nil {
		t.Error("Dequeue() on empty queue should be nil")
	}
}

func TestProcessQueueRunsSequentially(t *testing.T) {
	q := New(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.ProcessQueue(ctx)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := range 5 {
		wg.Add(1)
		_, err := q.Enqueue(Job{Name: "job", Run: func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}})
		if err != nil {
			t.Fatal(err)
		}
	}
	wg.Wait()

	if !reflect.DeepEqual(order, []int{0, 1, 2, 3, 4}) {
		t.Errorf("jobs ran out of order: %v", order)
	}
}

func TestProcessQueueSurvivesPanic(t *testing.T) {
	q := New(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.ProcessQueue(ctx)

	done := make(chan struct{})
	q.Enqueue(Job{Name: "boom", Run: func() { panic("boom") }})
	q.Enqueue(Job{Name: "after", Run: func() { close(done) }})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("queue stopped after a panicking job")
	}
}

func TestDispatcherSync(t *testing.T) {
	d := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	var got []string
	d.Post(func() { got = append(got, "first") })
	d.Post(func() { got = append(got, "second") })

	syncCtx, syncCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer syncCancel()
	if err := d.Sync(syncCtx); err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"first", "second"}) {
		t.Errorf("posted functions = %v", got)
	}
}

func TestDispatcherSyncTimesOutWhenStopped(t *testing.T) {
	d := NewDispatcher()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := d.Sync(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Sync() error = %v, want deadline exceeded", err)
	}
}
