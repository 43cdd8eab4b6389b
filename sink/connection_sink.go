package sink

import (
	"context"
	"sync"
	"sync/atomic"

	"match-chat/domain/event"
	"match-chat/errors"
)

// ConnectionSink buffers the events addressed to one connection.
// The transport writer drains Events and performs the socket write.
type ConnectionSink struct {
	events     chan event.DomainEvent
	evicted    chan struct{}
	once       sync.Once
	overflowed atomic.Bool
}

func NewConnectionSink(bufferSize int) *ConnectionSink {
	return &ConnectionSink{
		events:  make(chan event.DomainEvent, bufferSize),
		evicted: make(chan struct{}),
	}
}

// Consume enqueues without blocking.
// A full buffer evicts the sink: the transport is expected to close the connection.
func (s *ConnectionSink) Consume(_ context.Context, e event.DomainEvent) error {
	select {
	case <-s.evicted:
		return errors.ErrSinkClosed
	default:
	}

	select {
	case s.events <- e:
		return nil
	default:
		s.overflowed.Store(true)
		s.Evict()
		return errors.ErrSlowConsumer
	}
}

func (s *ConnectionSink) Events() <-chan event.DomainEvent { return s.events }

// Evicted is closed once the sink stops accepting events.
func (s *ConnectionSink) Evicted() <-chan struct{} { return s.evicted }

func (s *ConnectionSink) Evict() {
	s.once.Do(func() { close(s.evicted) })
}

func (s *ConnectionSink) IsEvicted() bool {
	select {
	case <-s.evicted:
		return true
	default:
		return false
	}
}

// Overflowed tells whether the sink was evicted because its buffer was full,
// as opposed to an external Evict call.
func (s *ConnectionSink) Overflowed() bool { return s.overflowed.Load() }
