package script

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/phuhao00/scriptbridge/server/internal/api"
	"github.com/phuhao00/scriptbridge/server/internal/metrics"
	"github.com/phuhao00/scriptbridge/server/internal/model"
	"github.com/phuhao00/scriptbridge/server/internal/player"
)

// Registry is the set of active resources. Server code broadcasts events
// through it; it also satisfies player.Events so state changes reach every
// script.
type Registry struct {
	mu        sync.RWMutex
	resources map[string]*Resource
}

var _ player.Events = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{resources: make(map[string]*Resource)}
}

// Add makes r receive broadcasts until its worker exits, at which point it
// is dropped from the registry. Names are unique.
func (g *Registry) Add(r *Resource) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.resources[r.Name()]; exists {
		return fmt.Errorf("resource %q already running", r.Name())
	}
	g.resources[r.Name()] = r
	metrics.ActiveResources.Set(float64(len(g.resources)))
	go g.dropWhenDone(r)
	return nil
}

func (g *Registry) dropWhenDone(r *Resource) {
	<-r.Done()
	g.mu.Lock()
	defer g.mu.Unlock()
	// The name may have been reused by a newer resource.
	if g.resources[r.Name()] == r {
		delete(g.resources, r.Name())
		metrics.ActiveResources.Set(float64(len(g.resources)))
	}
}

// Remove detaches the named resource without stopping it.
func (g *Registry) Remove(name string) (*Resource, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.resources[name]
	if ok {
		delete(g.resources, name)
		metrics.ActiveResources.Set(float64(len(g.resources)))
	}
	return r, ok
}

func (g *Registry) Get(name string) (*Resource, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.resources[name]
	return r, ok
}

// List returns the resources sorted by name.
func (g *Registry) List() []*Resource {
	g.mu.RLock()
	list := make([]*Resource, 0, len(g.resources))
	for _, r := range g.resources {
		list = append(list, r)
	}
	g.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list
}

func (g *Registry) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.resources)
}

// NotifyAll queues fn on every resource. Stopped resources are skipped.
func (g *Registry) NotifyAll(fn func(*api.API)) {
	for _, r := range g.List() {
		r.Notify(fn)
	}
}

// AskAny asks every resource in parallel and reports whether any of them
// answered true. Each ask is bounded by its resource's timeout, so the whole
// call is bounded by the largest one.
func (g *Registry) AskAny(fn func(*api.API) bool) bool {
	list := g.List()
	if len(list) == 0 {
		return false
	}
	var (
		cancelled atomic.Bool
		wg        sync.WaitGroup
	)
	wg.Add(len(list))
	for _, r := range list {
		go func(r *Resource) {
			defer wg.Done()
			if r.Ask(fn) {
				cancelled.Store(true)
			}
		}(r)
	}
	wg.Wait()
	return cancelled.Load()
}

// StopAll stops every resource and waits for their stop events to finish.
func (g *Registry) StopAll(ctx context.Context) error {
	list := g.List()
	for _, r := range list {
		r.Stop()
	}
	for _, r := range list {
		if err := r.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for resource %q: %w", r.Name(), err)
		}
		g.Remove(r.Name())
	}
	return nil
}

func (g *Registry) HealthChanged(c *player.Client, last, current int) {
	g.NotifyAll(func(a *api.API) {
		a.InvokePlayerHealthChanged(&api.HealthChange{Client: c, Last: last, Current: current})
	})
}

func (g *Registry) PositionChanged(c *player.Client, last, current model.Vector3) {
	g.NotifyAll(func(a *api.API) {
		a.InvokePlayerPositionChanged(&api.PositionChange{Client: c, Last: last, Current: current})
	})
}

func (g *Registry) Updated(c *player.Client) {
	g.NotifyAll(func(a *api.API) { a.InvokePlayerUpdate(c) })
}
