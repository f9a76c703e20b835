package player

import (
	"sync"

	"github.com/phuhao00/scriptbridge/server/internal/model"
)

// Events receives player state changes. The script registry implements it by
// queueing the matching event on every active resource.
type Events interface {
	HealthChanged(c *Client, last, current int)
	PositionChanged(c *Client, last, current model.Vector3)
	Updated(c *Client)
}

// Client is a connected player. ID is the transport connection identifier and
// Username is stable for the lifetime of the connection.
type Client struct {
	ID       uint64
	Username string

	events Events

	mu           sync.RWMutex
	position     model.Vector3
	lastPosition model.Vector3
	health       int
	lastHealth   int
}

// NewClient creates the state for a freshly handshaken player. events may be nil.
func NewClient(id uint64, username string, events Events) *Client {
	return &Client{
		ID:       id,
		Username: username,
		events:   events,
	}
}

func (c *Client) Position() model.Vector3 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.position
}

// LastPosition is the value held before the most recent position change.
func (c *Client) LastPosition() model.Vector3 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPosition
}

func (c *Client) Health() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.health
}

// LastHealth is the value held before the most recent health change.
func (c *Client) LastHealth() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastHealth
}

// SetPosition commits a new position. Writing the current value is a no-op;
// any other value fires exactly one PositionChanged.
func (c *Client) SetPosition(v model.Vector3) {
	c.mu.Lock()
	if c.position.Equal(v) {
		c.mu.Unlock()
		return
	}
	last := c.position
	c.lastPosition = last
	c.position = v
	c.mu.Unlock()

	if c.events != nil {
		c.events.PositionChanged(c, last, v)
	}
}

// SetHealth commits a new health value with the same rules as SetPosition.
func (c *Client) SetHealth(h int) {
	c.mu.Lock()
	if c.health == h {
		c.mu.Unlock()
		return
	}
	last := c.health
	c.lastHealth = last
	c.health = h
	c.mu.Unlock()

	if c.events != nil {
		c.events.HealthChanged(c, last, h)
	}
}

// ApplyUpdate applies an inbound state-sync packet. Field changes fire their
// own events first; Updated fires once per packet regardless.
func (c *Client) ApplyUpdate(pos model.Vector3, health int) {
	c.SetPosition(pos)
	c.SetHealth(health)
	if c.events != nil {
		c.events.Updated(c)
	}
}

func (c *Client) String() string {
	return c.Username
}
