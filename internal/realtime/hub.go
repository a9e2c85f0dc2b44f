package realtime

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ChannelBuffer is the number of undelivered events a channel holds before
// new events are dropped.
const ChannelBuffer = 64

// Feed opens and closes change notification channels.
type Feed interface {
	Channel(name string, filters ...Filter) *Channel
	RemoveChannel(ch *Channel)
}

// Publisher accepts change events from a source.
type Publisher interface {
	Publish(ev ChangeEvent)
}

// Channel is a filtered subscription to a Hub.
type Channel struct {
	id      string
	name    string
	filters []Filter
	events  chan ChangeEvent
}

// ID returns the unique channel id.
func (c *Channel) ID() string { return c.id }

// Name returns the name the channel was opened with.
func (c *Channel) Name() string { return c.name }

// Events returns the event stream. It is closed when the channel is removed.
func (c *Channel) Events() <-chan ChangeEvent { return c.events }

func (c *Channel) matches(ev ChangeEvent) bool {
	if len(c.filters) == 0 {
		return true
	}
	for _, f := range c.filters {
		if f.Matches(ev) {
			return true
		}
	}
	return false
}

// Hub fans change events out to open channels.
type Hub struct {
	mu       sync.Mutex
	channels map[*Channel]struct{}
	logger   *slog.Logger
}

var (
	_ Feed      = (*Hub)(nil)
	_ Publisher = (*Hub)(nil)
)

// NewHub creates an empty hub. A nil logger uses slog.Default().
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		channels: make(map[*Channel]struct{}),
		logger:   logger,
	}
}

// Channel opens a channel receiving events that match any of filters, or
// every event when no filters are given.
func (h *Hub) Channel(name string, filters ...Filter) *Channel {
	ch := &Channel{
		id:      uuid.NewString(),
		name:    name,
		filters: filters,
		events:  make(chan ChangeEvent, ChannelBuffer),
	}

	h.mu.Lock()
	h.channels[ch] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("realtime channel opened", "channel", name, "id", ch.id)
	return ch
}

// RemoveChannel closes ch. Removing an unknown or already removed channel is a no-op.
func (h *Hub) RemoveChannel(ch *Channel) {
	if ch == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.channels[ch]; !ok {
		return
	}
	delete(h.channels, ch)
	close(ch.events)
	h.logger.Debug("realtime channel removed", "channel", ch.name, "id", ch.id)
}

// Publish delivers ev to every matching channel without blocking.
func (h *Hub) Publish(ev ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.channels {
		if !ch.matches(ev) {
			continue
		}
		select {
		case ch.events <- ev:
		default:
			h.logger.Warn("realtime channel full, dropping event", "channel", ch.name, "event", ev.String())
		}
	}
}

// ActiveChannels returns the number of open channels.
func (h *Hub) ActiveChannels() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels)
}

// Close removes every open channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.channels {
		delete(h.channels, ch)
		close(ch.events)
	}
}
