package server

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/spoolworks/spool/engine"
)

// subscriberBuffer bounds the per-subscriber queue. A consumer that stops
// reading loses notifications rather than stalling the engine.
const subscriberBuffer = 64

// Frame is one serialized notification ready for the SSE feed.
type Frame struct {
	// Event is the notification's wire name ("started", "completed", ...).
	Event string

	// Data is the JSON-encoded notification payload.
	Data string
}

// Broadcaster fans engine notifications out to any number of feed
// subscribers. It implements engine.Sink, so it plugs directly into the
// engine's notification path.
type Broadcaster struct {
	logger *zap.Logger

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]chan Frame
}

// NewBroadcaster creates a Broadcaster.
func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Broadcaster{
		logger: logger,
		subs:   make(map[uint64]chan Frame),
	}
}

// Notify serializes the notification and delivers it to every subscriber.
// Slow subscribers are skipped, never waited on.
func (b *Broadcaster) Notify(n engine.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		b.logger.Error("could not encode notification",
			zap.String("event", n.Name()),
			zap.Error(err),
		)
		return
	}

	frame := Frame{Event: n.Name(), Data: string(payload)}

	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		select {
		case ch <- frame:
		default:
			b.logger.Warn("subscriber queue full, notification dropped",
				zap.Uint64("subscriber", id),
				zap.String("event", frame.Event),
			)
		}
	}
}

// Subscribe registers a new feed subscriber and returns its id and frame
// channel. The caller must Unsubscribe when done.
func (b *Broadcaster) Subscribe() (uint64, <-chan Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID

	ch := make(chan Frame, subscriberBuffer)
	b.subs[id] = ch

	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Subscribers returns the current subscriber count.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
