package registry

import (
	"slices"
	"sync"
	"time"

	"github.com/DoyleJ11/fantasy-draft-backend/internal/outbound"
)

// Connection is one live socket. Its room set is only changed by the room
// broker while it holds that room's lock.
type Connection struct {
	ID     string
	UserID string
	Queue  *outbound.Queue

	closeFn   func()
	closeOnce sync.Once

	mu           sync.Mutex
	rooms        map[string]struct{}
	lastActivity time.Time
	closed       bool
}

// Enqueue hands msg to the connection's outbound queue.
func (c *Connection) Enqueue(msg outbound.Message) bool {
	return c.Queue.Enqueue(msg)
}

func (c *Connection) Touch(at time.Time) {
	c.mu.Lock()
	if at.After(c.lastActivity) {
		c.lastActivity = at
	}
	c.mu.Unlock()
}

func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// Rooms returns the joined room names, sorted.
func (c *Connection) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		out = append(out, r)
	}
	slices.Sort(out)
	return out
}

func (c *Connection) InRoom(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[room]
	return ok
}

// AddRoom records a membership. It reports false once the connection has
// been unregistered.
func (c *Connection) AddRoom(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.rooms[room] = struct{}{}
	return true
}

func (c *Connection) RemoveRoom(room string) {
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
}

func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Connection) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Connection) close() {
	c.closeOnce.Do(func() {
		if c.closeFn != nil {
			c.closeFn()
		}
	})
}
