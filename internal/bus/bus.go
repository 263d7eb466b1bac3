// Package bus provides the in-process message bus decoupling channel
// adapters from the agent loop. It carries two independent unbounded FIFO
// queues: inbound (adapter -> agent) and outbound (agent -> adapter).
package bus

import (
	"context"
	"sync"

	"github.com/courier-ai/courier/pkg/models"
)

// queue is an unbounded FIFO. Publishing never blocks; consuming blocks
// until an element arrives or the context is cancelled.
type queue[T any] struct {
	mu    sync.Mutex
	items []T
	wake  chan struct{}
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{wake: make(chan struct{}, 1)}
}

func (q *queue[T]) push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *queue[T]) pop(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.items[0]
			q.items = q.items[1:]
			if len(q.items) > 0 {
				// Wake the next waiter; multiple consumers race
				// first-come on a shared wake signal.
				select {
				case q.wake <- struct{}{}:
				default:
				}
			}
			q.mu.Unlock()
			return item, nil
		}
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-q.wake:
		}
	}
}

func (q *queue[T]) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// MessageBus connects producers and consumers of inbound and outbound
// messages. All methods are safe for concurrent use.
type MessageBus struct {
	inbound  *queue[*models.InboundMessage]
	outbound *queue[*models.OutboundMessage]
}

// New creates an empty bus.
func New() *MessageBus {
	return &MessageBus{
		inbound:  newQueue[*models.InboundMessage](),
		outbound: newQueue[*models.OutboundMessage](),
	}
}

// PublishInbound enqueues a message for the agent loop. It never blocks.
func (b *MessageBus) PublishInbound(msg *models.InboundMessage) {
	b.inbound.push(msg)
}

// PublishOutbound enqueues a message for channel delivery. It never blocks.
func (b *MessageBus) PublishOutbound(msg *models.OutboundMessage) {
	b.outbound.push(msg)
}

// ConsumeInbound removes and returns the oldest inbound message, blocking
// until one is available or ctx is cancelled.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (*models.InboundMessage, error) {
	return b.inbound.pop(ctx)
}

// ConsumeOutbound removes and returns the oldest outbound message, blocking
// until one is available or ctx is cancelled.
func (b *MessageBus) ConsumeOutbound(ctx context.Context) (*models.OutboundMessage, error) {
	return b.outbound.pop(ctx)
}

// InboundLen reports the number of queued inbound messages.
func (b *MessageBus) InboundLen() int { return b.inbound.len() }

// OutboundLen reports the number of queued outbound messages.
func (b *MessageBus) OutboundLen() int { return b.outbound.len() }
