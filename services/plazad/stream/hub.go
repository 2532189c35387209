package stream

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gguuttss/RadixPlaza/core/events"
	"github.com/gguuttss/RadixPlaza/core/types"
)

// DefaultBuffer is the per-subscriber queue length. A subscriber whose queue
// is full misses the message instead of stalling the emitting call.
const DefaultBuffer = 64

// Message is the JSON frame pushed to stream subscribers.
type Message struct {
	Type       string            `json:"type"`
	Pair       string            `json:"pair"`
	Attributes map[string]string `json:"attributes"`
	At         int64             `json:"ts"`
}

type subscriber struct {
	pair string
	ch   chan Message
}

// Hub fans pair events out to live subscribers. It implements
// events.Emitter so it can sit next to the log emitter on the engine.
type Hub struct {
	mu      sync.Mutex
	subs    map[uint64]*subscriber
	next    uint64
	buffer  int
	dropped uint64
	logger  *slog.Logger
	now     func() time.Time
}

// NewHub returns an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subs:   make(map[uint64]*subscriber),
		buffer: DefaultBuffer,
		logger: logger,
		now:    time.Now,
	}
}

// Subscribe registers interest in one pair's events. An empty pair receives
// every event. The cancel func closes the channel and is safe to call twice.
func (h *Hub) Subscribe(pair string) (<-chan Message, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	sub := &subscriber{pair: pair, ch: make(chan Message, h.buffer)}
	h.subs[id] = sub
	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(sub.ch)
		})
	}
}

// Subscribers reports the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped reports how many messages were discarded for slow subscribers.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Emit implements events.Emitter.
func (h *Hub) Emit(evt events.Event) {
	if h == nil || evt == nil {
		return
	}
	typed, ok := evt.(interface{ Event() *types.Event })
	if !ok || typed.Event() == nil {
		return
	}
	raw := typed.Event()
	attrs := make(map[string]string, len(raw.Attributes))
	for k, v := range raw.Attributes {
		attrs[k] = v
	}
	msg := Message{Type: raw.Type, Pair: raw.Attr("pair"), Attributes: attrs, At: h.now().Unix()}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subs {
		if sub.pair != "" && sub.pair != msg.Pair {
			continue
		}
		select {
		case sub.ch <- msg:
		default:
			h.dropped++
			h.logger.Warn("stream subscriber lagging", "pair", msg.Pair, "event", msg.Type)
		}
	}
}
