package llm

import (
	"context"
	"io"
	"sync"
)

// eventStream adapts a producer goroutine to the Stream interface. The
// producer sends events on the channel and returns when the turn is over;
// a nil return surfaces as io.EOF to the consumer.
type eventStream struct {
	events chan Event
	errCh  chan error
	cancel context.CancelFunc

	mu   sync.Mutex
	done bool
	err  error
}

// newEventStream starts producer in a goroutine and returns a Stream over
// its events. Close cancels the producer's context.
func newEventStream(ctx context.Context, producer func(ctx context.Context, events chan<- Event) error) Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &eventStream{
		events: make(chan Event, 16),
		errCh:  make(chan error, 1),
		cancel: cancel,
	}
	go func() {
		defer close(s.events)
		s.errCh <- producer(ctx, s.events)
	}()
	return s
}

func (s *eventStream) Recv() (Event, error) {
	s.mu.Lock()
	if s.done {
		err := s.err
		s.mu.Unlock()
		return Event{}, err
	}
	s.mu.Unlock()

	event, ok := <-s.events
	if ok {
		return event, nil
	}

	err := <-s.errCh
	if err == nil {
		err = io.EOF
	}
	s.mu.Lock()
	s.done = true
	s.err = err
	s.mu.Unlock()
	return Event{}, err
}

func (s *eventStream) Close() error {
	s.cancel()
	return nil
}
