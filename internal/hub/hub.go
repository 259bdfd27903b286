package hub

import (
	"context"
	"errors"
	"sync"

	"chatrelay/internal/model"
)

var ErrChannelClosed = errors.New("channel closed")

// Channel is an unbounded FIFO delivery queue tied to one user and one
// live streaming connection. Pushes never block the dispatcher; a closed
// channel drops pushes silently, so a dead connection can never wedge
// fan-out.
type Channel struct {
	userID string

	mu     sync.Mutex
	queue  []model.Message
	closed bool
	wake   chan struct{}
}

func newChannel(userID string) *Channel {
	return &Channel{userID: userID, wake: make(chan struct{}, 1)}
}

func (c *Channel) UserID() string { return c.userID }

func (c *Channel) push(msg model.Message) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.queue = append(c.queue, msg)
	c.mu.Unlock()
	c.signal()
}

func (c *Channel) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Next blocks until a message is available, the channel is closed, or
// the context is done. Queued messages drain in push order even after
// close, so a clean shutdown delivers everything already accepted.
func (c *Channel) Next(ctx context.Context) (model.Message, error) {
	for {
		c.mu.Lock()
		if len(c.queue) > 0 {
			msg := c.queue[0]
			c.queue = c.queue[1:]
			c.mu.Unlock()
			return msg, nil
		}
		closed := c.closed
		c.mu.Unlock()

		if closed {
			return model.Message{}, ErrChannelClosed
		}
		select {
		case <-ctx.Done():
			return model.Message{}, ctx.Err()
		case <-c.wake:
		}
	}
}

func (c *Channel) close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.signal()
}

// Hub is the fan-out channel registry: per user, the set of channels
// belonging to that user's live streaming connections. Connection
// handlers register on open and deregister in a deferred Close, which
// bounds every channel's registration to its connection's lifetime.
type Hub struct {
	mu       sync.RWMutex
	channels map[string]map[*Channel]struct{}
}

func New() *Hub {
	return &Hub{channels: make(map[string]map[*Channel]struct{})}
}

// Open allocates a channel for one streaming connection of the user.
// The caller owns the channel and must Close it when the connection
// ends, on every exit path.
func (h *Hub) Open(userID string) *Channel {
	ch := newChannel(userID)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.channels[userID] == nil {
		h.channels[userID] = make(map[*Channel]struct{})
	}
	h.channels[userID][ch] = struct{}{}
	return ch
}

func (h *Hub) Close(ch *Channel) {
	h.mu.Lock()
	set := h.channels[ch.userID]
	if set != nil {
		delete(set, ch)
		if len(set) == 0 {
			delete(h.channels, ch.userID)
		}
	}
	h.mu.Unlock()

	ch.close()
}

// Dispatch pushes the message onto every live channel of every listed
// member. Members with no live channels receive nothing; there is no
// offline mailbox. Iteration order across members and channels is
// unspecified, but each individual channel preserves push order.
func (h *Hub) Dispatch(members []string, msg model.Message) {
	h.mu.RLock()
	var targets []*Channel
	for _, member := range members {
		for ch := range h.channels[member] {
			targets = append(targets, ch)
		}
	}
	h.mu.RUnlock()

	for _, ch := range targets {
		ch.push(msg)
	}
}
