package event

import "sync"

// Recorder keeps every published event in memory. It is used by the watch
// client and by tests that compare whole runs.
type Recorder struct {
	events []Event
	ch     chan Event
	done   chan struct{}
	mu     sync.Mutex
	once   sync.Once
}

// NewRecorder creates a Recorder and starts its collection goroutine.
func NewRecorder() *Recorder {
	r := &Recorder{
		ch:   make(chan Event, 256),
		done: make(chan struct{}),
	}
	go r.collect()
	return r
}

func (r *Recorder) collect() {
	for e := range r.ch {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
	}
	close(r.done)
}

// Publish queues e. Order is preserved. Publish after Close panics.
func (r *Recorder) Publish(e Event) {
	r.ch <- e
}

// Close stops accepting events and waits for queued ones to be recorded.
func (r *Recorder) Close() {
	r.once.Do(func() { close(r.ch) })
	<-r.done
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]Event, len(r.events))
	copy(result, r.events)
	return result
}

// Types returns the type of every recorded event, in order.
func (r *Recorder) Types() []Type {
	events := r.Events()
	types := make([]Type, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}
