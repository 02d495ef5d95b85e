package bus

import (
	"context"
	"sync"
	"sync/atomic"
)

const defaultBufferSize = 100

// MessageBus carries deliveries from the webhook listener to consumers and
// outbound sends from interactive surfaces to the sender loop.
type MessageBus struct {
	inbound  chan Delivery
	outbound chan OutboundMessage
	dropped  atomic.Uint64

	eventSubscribers      map[uint64]chan Event
	nextEventSubscriberID uint64

	done      chan struct{}
	closeOnce sync.Once

	mu sync.RWMutex
}

// NewMessageBus returns a bus whose queues hold size entries (default 100).
func NewMessageBus(size int) *MessageBus {
	if size <= 0 {
		size = defaultBufferSize
	}

	return &MessageBus{
		inbound:          make(chan Delivery, size),
		outbound:         make(chan OutboundMessage, size),
		eventSubscribers: make(map[uint64]chan Event),
		done:             make(chan struct{}),
	}
}

func (mb *MessageBus) PublishInbound(ctx context.Context, delivery Delivery) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	case mb.inbound <- delivery:
		return true
	}
}

// TryPublishInbound enqueues without blocking. A full queue drops the delivery
// and counts it.
func (mb *MessageBus) TryPublishInbound(delivery Delivery) bool {
	select {
	case <-mb.done:
		return false
	default:
	}

	select {
	case mb.inbound <- delivery:
		return true
	default:
		mb.dropped.Add(1)
		return false
	}
}

func (mb *MessageBus) ConsumeInbound(ctx context.Context) (Delivery, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return Delivery{}, false
	case <-mb.done:
		return Delivery{}, false
	case delivery := <-mb.inbound:
		return delivery, true
	}
}

// Dropped reports how many deliveries were discarded on a full queue.
func (mb *MessageBus) Dropped() uint64 {
	return mb.dropped.Load()
}

// Pending reports how many deliveries wait to be consumed.
func (mb *MessageBus) Pending() int {
	return len(mb.inbound)
}

func (mb *MessageBus) PublishOutbound(ctx context.Context, msg OutboundMessage) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	case mb.outbound <- msg:
		return true
	}
}

func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return OutboundMessage{}, false
	case <-mb.done:
		return OutboundMessage{}, false
	case msg := <-mb.outbound:
		return msg, true
	}
}

func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		close(mb.done)

		mb.mu.Lock()
		for id, ch := range mb.eventSubscribers {
			close(ch)
			delete(mb.eventSubscribers, id)
		}
		mb.mu.Unlock()
	})
}
