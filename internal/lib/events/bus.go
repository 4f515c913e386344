// Package events carries typed notifications between the map components.
//
// Handlers registered with Subscribe run synchronously on the publishing goroutine, which
// for the core components is the frame scheduler. Stream hands events to other goroutines
// (the websocket bridge, HTTP long-polls) without ever blocking the publisher.
package events

import (
	"context"
	"sync"
)

// Topic fans a single event type out to its subscribers
type Topic[T any] struct {
	mu       sync.RWMutex
	next     int
	handlers []handler[T]
}

type handler[T any] struct {
	id int
	fn func(T)
}

// Subscribe registers fn and returns a function that removes it
func (t *Topic[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.next++
	id := t.next
	t.handlers = append(t.handlers, handler[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { t.remove(id) })
	}
}

func (t *Topic[T]) remove(id int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, h := range t.handlers {
		if h.id == id {
			t.handlers = append(t.handlers[:i:i], t.handlers[i+1:]...)
			return
		}
	}
}

// Publish delivers v to every subscriber in subscription order. Handlers may
// subscribe or unsubscribe while being called; changes apply to the next Publish.
func (t *Topic[T]) Publish(v T) {
	t.mu.RLock()
	handlers := t.handlers
	t.mu.RUnlock()

	for _, h := range handlers {
		h.fn(v)
	}
}

// Len returns the number of subscribers
func (t *Topic[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.handlers)
}

// Stream subscribes a buffered channel that closes when ctx ends.
// Events are dropped for a full channel so slow readers never stall the publisher.
func (t *Topic[T]) Stream(ctx context.Context, buffer int) <-chan T {
	ch := make(chan T, buffer)

	var mu sync.Mutex
	closed := false
	unsubscribe := t.Subscribe(func(v T) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- v:
		default:
		}
	})

	go func() {
		<-ctx.Done()
		unsubscribe()
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	}()

	return ch
}

// Bus groups the topics the map components publish on. The zero value is ready to use.
type Bus struct {
	RouteChanged      Topic[RouteChanged]
	RouteClicked      Topic[RouteClicked]
	WaypointReached   Topic[WaypointReached]
	SelectionChanged  Topic[SelectionChanged]
	FlightStarted     Topic[Flight]
	FlightCompleted   Topic[Flight]
	FlightInterrupted Topic[Flight]
	CameraState       Topic[CameraState]
	PlaybackProgress  Topic[PlaybackProgress]
	ClustersChanged   Topic[ClustersChanged]
}

// NewBus returns an empty bus
func NewBus() *Bus {
	return &Bus{}
}
