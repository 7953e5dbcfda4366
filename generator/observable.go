package generator

import "sync"

// Cell holds the latest value of an observable. Subscribers never see a
// backlog: each subscription channel holds at most one value and a newer
// one replaces an unread older one.
type Cell[T any] struct {
	mutex sync.Mutex
	value T
	subs  map[int]chan T
	next  int
}

func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{value: initial, subs: make(map[int]chan T)}
}

func (c *Cell[T]) Get() T {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.value
}

func (c *Cell[T]) Set(v T) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.value = v
	for _, ch := range c.subs {
		offer(ch, v)
	}
}

// Subscribe returns a channel that immediately carries the current value and
// then every newer value the reader has not yet missed. cancel closes it.
func (c *Cell[T]) Subscribe() (<-chan T, func()) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	id := c.next
	c.next++
	ch := make(chan T, 1)
	ch <- c.value
	c.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mutex.Lock()
			defer c.mutex.Unlock()
			delete(c.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

// offer replaces any unread value. Callers hold the cell mutex, so no other
// sender races for the slot.
func offer[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}
