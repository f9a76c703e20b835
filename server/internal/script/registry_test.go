package script

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/phuhao00/scriptbridge/server/internal/api"
	"github.com/phuhao00/scriptbridge/server/internal/model"
	"github.com/phuhao00/scriptbridge/server/internal/player"
)

type stateCounter struct {
	health    []api.HealthChange
	positions []api.PositionChange
	updates   int
}

func (s *stateCounter) Init(a *api.API) error {
	a.OnPlayerHealthChanged.Attach(func(c *api.HealthChange) { s.health = append(s.health, *c) })
	a.OnPlayerPositionChanged.Attach(func(c *api.PositionChange) { s.positions = append(s.positions, *c) })
	a.OnPlayerUpdate.Attach(func(*player.Client) { s.updates++ })
	return nil
}

func TestRegistryDeliversStateChanges(t *testing.T) {
	sig := NewSignal()
	defer sig.Trigger()

	reg := NewRegistry()
	first, second := &stateCounter{}, &stateCounter{}
	r1 := New("first", first, newServices(), fastOptions(sig))
	r2 := New("second", second, newServices(), fastOptions(sig))
	for _, r := range []*Resource{r1, r2} {
		if err := reg.Add(r); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	c := player.NewClient(1, "bob", reg)
	c.SetHealth(100)
	c.SetHealth(100)
	c.SetPosition(model.Vector3{})
	c.SetPosition(model.Vector3{X: 1, Y: 2, Z: 3})
	c.ApplyUpdate(model.Vector3{X: 1, Y: 2, Z: 3}, 80)
	barrier(t, r1)
	barrier(t, r2)

	for name, s := range map[string]*stateCounter{"first": first, "second": second} {
		if len(s.health) != 2 {
			t.Errorf("%s: %d health events, want 2", name, len(s.health))
		} else if s.health[1].Last != 100 || s.health[1].Current != 80 {
			t.Errorf("%s: unexpected health change %+v", name, s.health[1])
		}
		if len(s.positions) != 1 {
			t.Errorf("%s: %d position events, want 1", name, len(s.positions))
		} else if !s.positions[0].Current.Equal(model.Vector3{X: 1, Y: 2, Z: 3}) {
			t.Errorf("%s: unexpected position change %+v", name, s.positions[0])
		}
		if s.updates != 1 {
			t.Errorf("%s: %d update events, want 1", name, s.updates)
		}
	}
}

func TestRegistryAskAny(t *testing.T) {
	sig := NewSignal()
	defer sig.Trigger()

	t.Run("Empty", func(t *testing.T) {
		if NewRegistry().AskAny(func(*api.API) bool { return true }) {
			t.Error("no resources should never cancel")
		}
	})

	reg := NewRegistry()
	reg.Add(New("yes", ScriptFunc(func(a *api.API) error {
		a.OnChatMessage.Attach(func(m *api.ChatMessage, c *api.Cancellable) { c.Cancel = m.Message == "spam" })
		return nil
	}), newServices(), fastOptions(sig)))
	reg.Add(New("no", ScriptFunc(noop), newServices(), fastOptions(sig)))

	ask := func(text string) bool {
		return reg.AskAny(func(a *api.API) bool {
			return a.InvokeChatMessage(&api.ChatMessage{Message: text})
		})
	}
	if !ask("spam") {
		t.Error("one resource cancelling should cancel the message")
	}
	if ask("hello") {
		t.Error("nobody cancelled; the message should proceed")
	}
}

func TestRegistryManagement(t *testing.T) {
	sig := NewSignal()
	defer sig.Trigger()

	reg := NewRegistry()
	b := New("b", ScriptFunc(noop), newServices(), fastOptions(sig))
	a := New("a", ScriptFunc(noop), newServices(), fastOptions(sig))
	if err := reg.Add(b); err != nil {
		t.Fatal(err)
	}
	if err := reg.Add(a); err != nil {
		t.Fatal(err)
	}
	if err := reg.Add(New("a", ScriptFunc(noop), newServices(), fastOptions(sig))); err == nil {
		t.Error("duplicate names should be rejected")
	}

	list := reg.List()
	if len(list) != 2 || list[0] != a || list[1] != b {
		t.Errorf("List() not sorted by name: %v", list)
	}
	if got, ok := reg.Get("b"); !ok || got != b {
		t.Error("Get(b) failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := reg.StopAll(ctx); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	if !a.Stopped() || !b.Stopped() || reg.Len() != 0 {
		t.Errorf("after StopAll: a=%v b=%v len=%d", a.Stopped(), b.Stopped(), reg.Len())
	}
}

func waitForLen(t *testing.T, reg *Registry, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for reg.Len() != want {
		if time.Now().After(deadline) {
			t.Fatalf("registry has %d resource(s), want %d", reg.Len(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestRegistryDropsStoppedResources(t *testing.T) {
	sig := NewSignal()
	defer sig.Trigger()

	t.Run("InitFailure", func(t *testing.T) {
		reg := NewRegistry()
		broken := New("broken", ScriptFunc(func(*api.API) error {
			return errors.New("missing dependency")
		}), newServices(), fastOptions(sig))
		if err := reg.Add(broken); err != nil {
			t.Fatal(err)
		}
		waitForLen(t, reg, 0)
		if reg.AskAny(func(*api.API) bool { return true }) {
			t.Error("a dropped resource must not be asked")
		}
	})

	t.Run("IndividualStop", func(t *testing.T) {
		reg := NewRegistry()
		a := New("a", ScriptFunc(noop), newServices(), fastOptions(sig))
		b := New("b", ScriptFunc(noop), newServices(), fastOptions(sig))
		for _, r := range []*Resource{a, b} {
			if err := reg.Add(r); err != nil {
				t.Fatal(err)
			}
		}
		a.Stop()
		waitForLen(t, reg, 1)
		if _, ok := reg.Get("b"); !ok {
			t.Error("b should still be registered")
		}
	})

	t.Run("NameReused", func(t *testing.T) {
		reg := NewRegistry()
		old := New("hud", ScriptFunc(noop), newServices(), fastOptions(sig))
		if err := reg.Add(old); err != nil {
			t.Fatal(err)
		}
		reg.Remove("hud")
		fresh := New("hud", ScriptFunc(noop), newServices(), fastOptions(sig))
		if err := reg.Add(fresh); err != nil {
			t.Fatal(err)
		}
		old.Stop()
		waitStopped(t, old)
		// Give the old resource's drop a chance to run.
		time.Sleep(20 * time.Millisecond)
		if got, ok := reg.Get("hud"); !ok || got != fresh {
			t.Error("stopping the old resource must not drop its replacement")
		}
	})
}
