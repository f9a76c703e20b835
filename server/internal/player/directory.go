package player

import (
	"sort"
	"strings"
	"sync"
)

// Directory tracks connected clients by connection id.
type Directory struct {
	mu      sync.RWMutex
	clients map[uint64]*Client
}

func NewDirectory() *Directory {
	return &Directory{clients: make(map[uint64]*Client)}
}

// Add registers c, replacing any client already stored under the same id.
func (d *Directory) Add(c *Client) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clients[c.ID] = c
}

// AddUnique registers c unless its id or, ignoring case, its username is
// already present. The check and the insert happen under one lock.
func (d *Directory) AddUnique(c *Client) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.clients[c.ID]; ok {
		return false
	}
	for _, other := range d.clients {
		if strings.EqualFold(other.Username, c.Username) {
			return false
		}
	}
	d.clients[c.ID] = c
	return true
}

// Remove drops the client with the given id and returns it, if present.
func (d *Directory) Remove(id uint64) (*Client, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.clients[id]
	if ok {
		delete(d.clients, id)
	}
	return c, ok
}

func (d *Directory) Get(id uint64) (*Client, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.clients[id]
	return c, ok
}

// List returns a snapshot of connected clients ordered by connection id.
func (d *Directory) List() []*Client {
	d.mu.RLock()
	out := make([]*Client, 0, len(d.clients))
	for _, c := range d.clients {
		out = append(out, c)
	}
	d.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ByUsername finds a client by name, ignoring case.
func (d *Directory) ByUsername(name string) (*Client, bool) {
	for _, c := range d.List() {
		if strings.EqualFold(c.Username, name) {
			return c, true
		}
	}
	return nil, false
}

func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.clients)
}
