package ports

import (
	"context"

	"github.com/tonybaloney/agentic-popup-shop-sub001/pkg/domain"
)

// EventSink receives lifecycle events as a run produces them. Streaming sinks
// deliver each event immediately; buffered sinks hold events until a
// checkpoint. Sink implementations must not block the producer for long:
// a slow consumer risks starving concurrent fan-out branches.
type EventSink interface {
	Emit(ctx context.Context, event domain.Event) error
}

// FlushableSink is a sink with explicit checkpoint delivery, implemented by
// the buffered sink.
type FlushableSink interface {
	EventSink
	Flush(ctx context.Context) error
}

// EventHandler consumes one event from a bus subscription.
type EventHandler func(ctx context.Context, event domain.Event) error

// EventBus distributes run events across process boundaries (or in memory
// for tests). Topics partition the stream; the run id travels on the event.
type EventBus interface {
	Publish(ctx context.Context, topic string, event domain.Event) error
	Subscribe(ctx context.Context, topic string, handler EventHandler) error
	Close() error
}
