package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"council-ai/internal/domain"
)

// DefaultQueueSize is the per-subscriber buffer used by New.
const DefaultQueueSize = 256

type delivery struct {
	ctx   context.Context
	event domain.Event
}

type subscription struct {
	id      uint64
	handler domain.EventHandler
	queue   chan delivery
}

// Bus is an in-process, goroutine-safe event bus. Every subscriber owns a
// buffered queue drained by a single goroutine, so a subscriber sees events
// in publish order. Publish never blocks: when a queue is full the event is
// dropped for that subscriber and counted.
type Bus struct {
	mu        sync.RWMutex
	typed     map[domain.EventType][]*subscription
	allSubs   []*subscription
	closed    bool
	nextID    atomic.Uint64
	dropped   atomic.Uint64
	queueSize int
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// New creates an event bus with DefaultQueueSize buffers.
func New(logger *slog.Logger) *Bus {
	return NewWithQueueSize(logger, DefaultQueueSize)
}

// NewWithQueueSize creates an event bus with the given per-subscriber buffer.
func NewWithQueueSize(logger *slog.Logger, size int) *Bus {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Bus{
		typed:     make(map[domain.EventType][]*subscription),
		queueSize: size,
		logger:    logger,
	}
}

// Publish enqueues an event for matching typed subscribers and all-event
// subscribers.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}

	d := delivery{ctx: ctx, event: event}
	for _, sub := range b.typed[event.Type] {
		b.enqueue(sub, d)
	}
	for _, sub := range b.allSubs {
		b.enqueue(sub, d)
	}
}

func (b *Bus) enqueue(sub *subscription, d delivery) {
	select {
	case sub.queue <- d:
	default:
		b.dropped.Add(1)
		b.logger.Debug("event dropped, subscriber queue full",
			"event", string(d.event.Type),
			"subscriber", sub.id,
		)
	}
}

func (b *Bus) start(sub *subscription) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for d := range sub.queue {
			b.invoke(sub, d)
		}
	}()
}

func (b *Bus) invoke(sub *subscription, d delivery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(d.event.Type),
				"panic", r,
			)
		}
	}()
	sub.handler(d.ctx, d.event)
}

func (b *Bus) newSubscription(handler domain.EventHandler) *subscription {
	return &subscription{
		id:      b.nextID.Add(1),
		handler: handler,
		queue:   make(chan delivery, b.queueSize),
	}
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	sub := b.newSubscription(handler)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.typed[eventType] = append(b.typed[eventType], sub)
	b.start(sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.typed[eventType]
		for i, s := range subs {
			if s.id == sub.id {
				b.typed[eventType] = append(subs[:i], subs[i+1:]...)
				close(s.queue)
				return
			}
		}
	}
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	sub := b.newSubscription(handler)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.allSubs = append(b.allSubs, sub)
	b.start(sub)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.allSubs {
			if s.id == sub.id {
				b.allSubs = append(b.allSubs[:i], b.allSubs[i+1:]...)
				close(s.queue)
				return
			}
		}
	}
}

// Dropped returns how many deliveries were discarded because a subscriber
// fell behind.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Close prevents new publishes and waits for every queued event to be
// handled. Close is idempotent.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, subs := range b.typed {
		for _, s := range subs {
			close(s.queue)
		}
	}
	for _, s := range b.allSubs {
		close(s.queue)
	}
	b.typed = nil
	b.allSubs = nil
	b.mu.Unlock()

	b.wg.Wait()
}

var _ domain.EventBus = (*Bus)(nil)
