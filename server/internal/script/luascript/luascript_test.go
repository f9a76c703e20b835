package luascript

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/phuhao00/scriptbridge/server/internal/api"
	"github.com/phuhao00/scriptbridge/server/internal/command"
	"github.com/phuhao00/scriptbridge/server/internal/packet"
	"github.com/phuhao00/scriptbridge/server/internal/player"
	"github.com/phuhao00/scriptbridge/server/internal/script"
	"github.com/phuhao00/scriptbridge/server/internal/transport"
)

type fixture struct {
	rec      *transport.Recorder
	clients  *player.Directory
	services *api.Services
	signal   *script.Signal
}

func newFixture(t *testing.T, ids ...uint64) *fixture {
	t.Helper()
	f := &fixture{
		rec:     transport.NewRecorder(ids...),
		clients: player.NewDirectory(),
		signal:  script.NewSignal(),
	}
	f.services = api.NewServices(f.rec, f.clients, command.NewRegistry())
	t.Cleanup(f.signal.Trigger)
	return f
}

func (f *fixture) start(t *testing.T, name, source string) *script.Resource {
	t.Helper()
	r := script.New(name, FromSource(name, source), f.services,
		script.Options{TickRate: 1000, AskTimeout: time.Second, Shutdown: f.signal})
	f.sync(t, r)
	return r
}

func (f *fixture) sync(t *testing.T, r *script.Resource) {
	t.Helper()
	if _, err := r.AskContext(context.Background(), func(*api.API) bool { return true }); err != nil {
		t.Fatalf("resource %s not responding: %v", r.Name(), err)
	}
}

func TestEventsReachLua(t *testing.T) {
	f := newFixture(t, 1)
	r := f.start(t, "greeter", `
		bridge.on("start", function() bridge.send_chat("greeter ready") end)
		bridge.on("player_connected", function(p)
			bridge.send_chat("welcome " .. p.name, { p.id })
		end)
		bridge.on("player_health_changed", function(p, last, current)
			bridge.send_chat(p.name .. " " .. last .. "->" .. current)
		end)
	`)

	bob := player.NewClient(1, "bob", nil)
	r.Notify(func(a *api.API) { a.InvokePlayerConnected(bob) })
	r.Notify(func(a *api.API) {
		a.InvokePlayerHealthChanged(&api.HealthChange{Client: bob, Last: 100, Current: 75})
	})
	f.sync(t, r)

	var lines []string
	for _, d := range f.rec.Deliveries() {
		lines = append(lines, d.Packet.(*packet.ChatMessage).Message)
	}
	want := "greeter ready|welcome bob|bob 100->75"
	if strings.Join(lines, "|") != want {
		t.Errorf("chat lines = %q, want %q", strings.Join(lines, "|"), want)
	}
}

func TestCancelVerdict(t *testing.T) {
	f := newFixture(t)
	r := f.start(t, "filter", `
		bridge.on("chat_message", function(p, message)
			if string.find(message, "badword") then return true end
		end)
		bridge.on("mod_packet", function(p, target, mod, id, payload)
			return mod == "blocked"
		end)
	`)
	bob := player.NewClient(1, "bob", nil)

	cases := []struct {
		name string
		ask  func(a *api.API) bool
		want bool
	}{
		{"ChatCancelled", func(a *api.API) bool {
			return a.InvokeChatMessage(&api.ChatMessage{Client: bob, Message: "you badword"})
		}, true},
		{"ChatAllowed", func(a *api.API) bool {
			return a.InvokeChatMessage(&api.ChatMessage{Client: bob, Message: "hello"})
		}, false},
		{"ModBlocked", func(a *api.API) bool {
			return a.InvokeModPacket(&api.ModPacket{Client: bob, ModName: "blocked"})
		}, true},
		{"ModAllowed", func(a *api.API) bool {
			return a.InvokeModPacket(&api.ModPacket{Client: bob, ModName: "minimap"})
		}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.Ask(tc.ask); got != tc.want {
				t.Errorf("verdict = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestNativeCallFromLua(t *testing.T) {
	f := newFixture(t, 1)
	r := f.start(t, "natives", `
		bridge.on("start", function()
			bridge.native("0xDEADBEEF", 7, 1.5, "text", true, { x = 1, y = 2, z = 3 })
			bridge.native(1, function() end)
		end)
	`)
	f.sync(t, r)

	d := f.rec.Deliveries()
	if len(d) != 1 {
		t.Fatalf("expected exactly one native call, got %d", len(d))
	}
	call := d[0].Packet.(*packet.NativeCall)
	if call.Hash != 0xDEADBEEF || len(call.Args) != 5 {
		t.Fatalf("unexpected call %+v", call)
	}
	kinds := []packet.ArgKind{packet.ArgInt, packet.ArgFloat, packet.ArgString, packet.ArgBool, packet.ArgVector3}
	for i, k := range kinds {
		if call.Args[i].Kind != k {
			t.Errorf("arg %d kind = %v, want %v", i, call.Args[i].Kind, k)
		}
	}
}

func TestLuaCommands(t *testing.T) {
	f := newFixture(t, 1)
	r := f.start(t, "cmds", `
		local ok, err = bridge.register_command("heal", "/heal <amount>", 1, function(p, args)
			return "healed " .. p.name .. " by " .. args[1]
		end)
		assert(ok, err)
	`)

	cmd, ok := f.services.Commands().Lookup("heal")
	if !ok {
		t.Fatal("command not registered")
	}
	if !cmd.Checked() || cmd.Usage != "/heal <amount>" {
		t.Errorf("unexpected command %+v", cmd)
	}

	var replies []string
	cmd.Callback(command.NewContext(player.NewClient(1, "bob", nil), "heal", []string{"20"},
		func(s string) { replies = append(replies, s) }))
	f.sync(t, r)

	if len(replies) != 1 || replies[0] != "healed bob by 20" {
		t.Errorf("replies = %v", replies)
	}
}

func TestPlayersQuery(t *testing.T) {
	f := newFixture(t, 1, 2)
	f.clients.Add(player.NewClient(1, "bob", nil))
	f.clients.Add(player.NewClient(2, "alice", nil))
	f.start(t, "query", `
		bridge.on("start", function()
			local names = {}
			for _, p in ipairs(bridge.players()) do names[#names + 1] = p.name end
			bridge.send_chat(table.concat(names, ","))
			local alice = bridge.player("ALICE")
			bridge.send_chat(alice and tostring(alice.id) or "missing")
		end)
	`)

	d := f.rec.Deliveries()
	if len(d) != 2 {
		t.Fatalf("expected two chat lines, got %d", len(d))
	}
	if got := d[0].Packet.(*packet.ChatMessage).Message; got != "bob,alice" {
		t.Errorf("players() = %q", got)
	}
	if got := d[1].Packet.(*packet.ChatMessage).Message; got != "2" {
		t.Errorf("player(ALICE) = %q", got)
	}
}

func TestHandlerErrorIsIsolated(t *testing.T) {
	f := newFixture(t, 1)
	f.start(t, "faulty", `
		bridge.on("start", function() error("first handler broke") end)
		bridge.on("start", function() bridge.send_chat("second handler ran") end)
	`)
	if len(f.rec.Deliveries()) != 1 {
		t.Errorf("the second handler should still run, deliveries=%d", len(f.rec.Deliveries()))
	}
}

func TestLoadErrors(t *testing.T) {
	t.Run("Syntax", func(t *testing.T) {
		if err := FromSource("bad", "this is not lua").Init(api.New("bad", nil)); err == nil {
			t.Error("expected a load error")
		}
	})

	t.Run("UnknownEvent", func(t *testing.T) {
		err := FromSource("bad", `bridge.on("nope", function() end)`).Init(api.New("bad", nil))
		if err == nil || !strings.Contains(err.Error(), "unknown event") {
			t.Errorf("expected an unknown event error, got %v", err)
		}
	})

	t.Run("FromFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "main.lua")
		if err := os.WriteFile(path, []byte(`bridge.on("start", function() end)`), 0o644); err != nil {
			t.Fatal(err)
		}
		a := api.New("file", nil)
		if err := FromFile("file", path).Init(a); err != nil {
			t.Fatalf("Init: %v", err)
		}
		if a.OnStart.Len() != 1 {
			t.Error("start handler not attached")
		}
	})
}
