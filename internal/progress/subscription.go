package progress

import (
	"context"
	"iter"
	"sync"
)

// Subscription is one subscriber's ordered view of a progress channel.
type Subscription struct {
	requestID string
	limit     int

	mu       sync.Mutex
	queue    []Event
	finished bool
	dropped  int
	notify   chan struct{}
	cancel   func()
}

func newSubscription(requestID string, limit int) *Subscription {
	return &Subscription{
		requestID: requestID,
		limit:     limit,
		notify:    make(chan struct{}, 1),
	}
}

// RequestID returns the request this subscription follows.
func (s *Subscription) RequestID() string { return s.requestID }

// Next blocks until an event is available, the subscription finishes, or ctx
// is done. The boolean is false once no further events will arrive.
func (s *Subscription) Next(ctx context.Context) (Event, bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			event := s.queue[0]
			s.queue[0] = Event{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return event, true
		}
		if s.finished {
			s.mu.Unlock()
			return Event{}, false
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return Event{}, false
		case <-s.notify:
		}
	}
}

// Events ranges over the subscription until it finishes or ctx is done.
func (s *Subscription) Events(ctx context.Context) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for {
			event, ok := s.Next(ctx)
			if !ok || !yield(event) {
				return
			}
		}
	}
}

// Dropped returns how many step_chunk events were shed on overflow.
func (s *Subscription) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close detaches the subscription. Queued events are discarded. It does not
// affect the run being observed.
func (s *Subscription) Close() {
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Lock()
	s.queue = nil
	s.mu.Unlock()
	s.finish()
}

func (s *Subscription) push(event Event) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	if s.limit > 0 && len(s.queue) >= s.limit {
		if event.Type == EventStepChunk {
			s.dropped++
			s.mu.Unlock()
			return
		}
		for i, queued := range s.queue {
			if queued.Type == EventStepChunk {
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				s.dropped++
				break
			}
		}
	}
	s.queue = append(s.queue, event)
	s.mu.Unlock()
	s.signal()
}

// finish marks the end of the stream; queued events remain readable.
func (s *Subscription) finish() {
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()
	s.signal()
}

func (s *Subscription) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
