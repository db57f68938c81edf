package services

import (
	"log/slog"
	"sync"
)

type EventType string

const (
	EventTypeStep   EventType = "step"
	EventTypeAnswer EventType = "answer"
	EventTypeError  EventType = "error"
)

// Event is one real-time notification scoped to a conversation thread.
type Event struct {
	ThreadID  string
	Type      EventType
	Data      string // JSON payload or raw text
	Timestamp int64
}

// EventBus fans out run events to SSE subscribers, keyed by thread ID.
type EventBus struct {
	logger *slog.Logger
	mu     sync.RWMutex
	subs   map[string][]chan Event
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{
		logger: logger,
		subs:   make(map[string][]chan Event),
	}
}

// Subscribe returns a channel that receives events for a specific thread
// and an unsubscribe function that closes it.
func (b *EventBus) Subscribe(threadID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 100) // buffer to prevent blocking publisher
	b.subs[threadID] = append(b.subs[threadID], ch)

	unsub := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subscribers := b.subs[threadID]
		for i, sub := range subscribers {
			if sub == ch {
				close(ch)
				b.subs[threadID] = append(subscribers[:i], subscribers[i+1:]...)
				break
			}
		}
		if len(b.subs[threadID]) == 0 {
			delete(b.subs, threadID)
		}
	}

	return ch, unsub
}

// Publish sends an event to all subscribers of the thread. Full channels
// drop the event rather than block the pipeline.
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	subscribers, ok := b.subs[e.ThreadID]
	if !ok {
		return
	}

	for _, ch := range subscribers {
		select {
		case ch <- e:
		default:
			b.logger.Warn("event bus channel full, dropping event", "thread_id", e.ThreadID)
		}
	}
}
