package bus

import (
	"sync"
	"time"

	"github.com/tinyclaw-dev/tinyclaw/pkg/models"
)

const defaultCapacity = 100

// MessageBus decouples chat channels from the agent core. Two bounded FIFO
// queues: publishes block when full, a closed bus drops publishes silently,
// and consumes poll with a short timeout so consumers stay responsive to
// shutdown.
type MessageBus struct {
	inbound   chan models.InboundMessage
	outbound  chan models.OutboundMessage
	done      chan struct{}
	closeOnce sync.Once
	poll      time.Duration
}

// NewMessageBus creates a bus with the default queue capacity.
func NewMessageBus() *MessageBus {
	return NewMessageBusWithCapacity(defaultCapacity)
}

// NewMessageBusWithCapacity creates a bus with explicit queue capacity.
func NewMessageBusWithCapacity(capacity int) *MessageBus {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &MessageBus{
		inbound:  make(chan models.InboundMessage, capacity),
		outbound: make(chan models.OutboundMessage, capacity),
		done:     make(chan struct{}),
		poll:     time.Second,
	}
}

// PublishInbound enqueues a message from a channel to the agent, blocking
// when the queue is full. Dropped after Close.
func (b *MessageBus) PublishInbound(msg models.InboundMessage) {
	select {
	case <-b.done:
	default:
		select {
		case b.inbound <- msg:
		case <-b.done:
		}
	}
}

// PublishOutbound enqueues a reply from the agent to channels, blocking when
// the queue is full. Dropped after Close.
func (b *MessageBus) PublishOutbound(msg models.OutboundMessage) {
	select {
	case <-b.done:
	default:
		select {
		case b.outbound <- msg:
		case <-b.done:
		}
	}
}

// ConsumeInbound dequeues the next inbound message. Returns ok=false when
// the poll window elapses or the bus is closed.
func (b *MessageBus) ConsumeInbound() (models.InboundMessage, bool) {
	select {
	case msg := <-b.inbound:
		return msg, true
	case <-b.done:
		return models.InboundMessage{}, false
	case <-time.After(b.poll):
		return models.InboundMessage{}, false
	}
}

// ConsumeOutbound dequeues the next outbound message. Same contract as
// ConsumeInbound.
func (b *MessageBus) ConsumeOutbound() (models.OutboundMessage, bool) {
	select {
	case msg := <-b.outbound:
		return msg, true
	case <-b.done:
		return models.OutboundMessage{}, false
	case <-time.After(b.poll):
		return models.OutboundMessage{}, false
	}
}

// Close shuts the bus down. Queued messages are abandoned.
func (b *MessageBus) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
	})
}

// Closed reports whether Close has been called.
func (b *MessageBus) Closed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}
