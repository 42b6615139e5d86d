package llm

import (
	"context"
	"io"
	"sync"
)

// eventStream adapts a producer function to the Stream interface. The
// producer runs in its own goroutine and writes events to the channel; a
// returned error is surfaced from Recv after buffered events drain.
type eventStream struct {
	events chan Event
	cancel context.CancelFunc

	mu   sync.Mutex
	err  error
	done bool
}

// newEventStream starts producer and returns a Stream over its events.
func newEventStream(ctx context.Context, producer func(ctx context.Context, events chan<- Event) error) Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &eventStream{
		events: make(chan Event, 16),
		cancel: cancel,
	}
	go func() {
		err := producer(ctx, s.events)
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.events)
	}()
	return s
}

func (s *eventStream) Recv() (Event, error) {
	event, ok := <-s.events
	if !ok {
		s.mu.Lock()
		err := s.err
		s.mu.Unlock()
		if err != nil {
			return Event{}, err
		}
		return Event{}, io.EOF
	}
	return event, nil
}

func (s *eventStream) Close() error {
	s.mu.Lock()
	if !s.done {
		s.done = true
		s.cancel()
	}
	s.mu.Unlock()
	return nil
}

// agentStream is the AgentStream counterpart of eventStream.
type agentStream struct {
	events chan AgentEvent
	cancel context.CancelFunc

	mu   sync.Mutex
	err  error
	done bool
}

// newAgentStream starts producer and returns an AgentStream over its events.
func newAgentStream(ctx context.Context, producer func(ctx context.Context, events chan<- AgentEvent) error) AgentStream {
	ctx, cancel := context.WithCancel(ctx)
	s := &agentStream{
		events: make(chan AgentEvent, 16),
		cancel: cancel,
	}
	go func() {
		err := producer(ctx, s.events)
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.events)
	}()
	return s
}

func (s *agentStream) Recv() (AgentEvent, error) {
	event, ok := <-s.events
	if !ok {
		s.mu.Lock()
		err := s.err
		s.mu.Unlock()
		if err != nil {
			return AgentEvent{}, err
		}
		return AgentEvent{}, io.EOF
	}
	return event, nil
}

func (s *agentStream) Close() error {
	s.mu.Lock()
	if !s.done {
		s.done = true
		s.cancel()
	}
	s.mu.Unlock()
	return nil
}
