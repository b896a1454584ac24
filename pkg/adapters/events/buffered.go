package events

import (
	"context"
	"sync"

	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/domain"
	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/ports"
)

// BufferedSink holds events and forwards them to the inner sink only at
// checkpoints (round boundaries and terminal events), in emission order. It
// trades liveness for batching: a consumer behind the inner sink sees whole
// rounds instead of an interleaved trickle.
type BufferedSink struct {
	mu     sync.Mutex
	inner  ports.EventSink
	buffer []domain.Event
}

// NewBufferedSink wraps the inner sink with checkpoint batching.
func NewBufferedSink(inner ports.EventSink) *BufferedSink {
	return &BufferedSink{inner: inner}
}

// Emit buffers the event. When the event is a checkpoint the whole buffer,
// checkpoint included, is flushed to the inner sink.
func (s *BufferedSink) Emit(ctx context.Context, event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer = append(s.buffer, event)
	if event.Checkpoint() {
		return s.flushLocked(ctx)
	}
	return nil
}

// Flush forwards any buffered events immediately.
func (s *BufferedSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

func (s *BufferedSink) flushLocked(ctx context.Context) error {
	for i, ev := range s.buffer {
		if err := s.inner.Emit(ctx, ev); err != nil {
			s.buffer = s.buffer[i:]
			return err
		}
	}
	s.buffer = s.buffer[:0]
	return nil
}

// BusSink streams each event onto a bus topic as produced.
type BusSink struct {
	bus   ports.EventBus
	topic string
}

// NewBusSink creates a streaming sink publishing to the given topic.
func NewBusSink(bus ports.EventBus, topic string) *BusSink {
	return &BusSink{bus: bus, topic: topic}
}

func (s *BusSink) Emit(ctx context.Context, event domain.Event) error {
	return s.bus.Publish(ctx, s.topic, event)
}

// SinkFunc adapts a function to the EventSink interface.
type SinkFunc func(ctx context.Context, event domain.Event) error

func (f SinkFunc) Emit(ctx context.Context, event domain.Event) error {
	return f(ctx, event)
}
