package events

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"workhub/internal/core/domain"
	"workhub/internal/core/ports"

	"go.uber.org/zap"
)

var (
	ErrQueueClosed     = errors.New("event queue closed")
	ErrAlreadyConsumed = errors.New("event queue already has a subscriber")
)

// MemoryQueue is an in-process queue with a single consumer. Publish blocks
// while the buffer is full, but never past ctx.
type MemoryQueue struct {
	events chan domain.Event
	done   chan struct{}
	logger *zap.SugaredLogger

	mu         sync.Mutex
	subscribed bool
	closeOnce  sync.Once
}

var _ ports.EventQueue = (*MemoryQueue)(nil)

func NewMemoryQueue(buffer int, logger *zap.SugaredLogger) *MemoryQueue {
	if buffer <= 0 {
		buffer = 1024
	}
	return &MemoryQueue{
		events: make(chan domain.Event, buffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (q *MemoryQueue) Publish(ctx context.Context, event domain.Event) error {
	if err := event.Validate(); err != nil {
		return err
	}

	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case q.events <- event:
		q.logger.Debugw("published event", "kind", event.Kind, "rooms", event.Rooms)
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return fmt.Errorf("publish %s: %w", event.Kind, ctx.Err())
	}
}

// Subscribe dispatches events to handler until ctx is done or the queue closes.
func (q *MemoryQueue) Subscribe(ctx context.Context, handler ports.EventHandler) error {
	q.mu.Lock()
	if q.subscribed {
		q.mu.Unlock()
		return ErrAlreadyConsumed
	}
	q.subscribed = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.subscribed = false
		q.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.done:
			return nil
		case event := <-q.events:
			handler(ctx, event)
		}
	}
}

// Len reports how many events are waiting.
func (q *MemoryQueue) Len() int {
	return len(q.events)
}

func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}
