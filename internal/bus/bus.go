package bus

import (
	"context"
	"log/slog"
)

const defaultQueueSize = 256

// Bus is a bounded in-process event queue. Publish never blocks the caller:
// when the queue is full the event is dropped with a warning, since the
// channel will redeliver webhook events it never got a 200 for.
type Bus struct {
	events chan InboundEvent
}

func New(size int) *Bus {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Bus{events: make(chan InboundEvent, size)}
}

// Publish enqueues an event without blocking.
func (b *Bus) Publish(ev InboundEvent) {
	select {
	case b.events <- ev:
	default:
		slog.Warn("bus: queue full, dropping event", "event_id", ev.EventID, "sender", ev.SenderID)
	}
}

// Consume delivers queued events to handle until ctx is cancelled.
func (b *Bus) Consume(ctx context.Context, handle Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-b.events:
			handle(ev)
		}
	}
}
