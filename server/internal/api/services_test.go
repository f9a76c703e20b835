package api

import (
	"bytes"
	"errors"
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/phuhao00/scriptbridge/server/internal/command"
	"github.com/phuhao00/scriptbridge/server/internal/model"
	"github.com/phuhao00/scriptbridge/server/internal/packet"
	"github.com/phuhao00/scriptbridge/server/internal/player"
	"github.com/phuhao00/scriptbridge/server/internal/transport"
	"github.com/phuhao00/scriptbridge/server/internal/utils"
)

func newTestServices(ids ...uint64) (*Services, *transport.Recorder, *player.Directory) {
	rec := transport.NewRecorder(ids...)
	dir := player.NewDirectory()
	return NewServices(rec, dir, command.NewRegistry()), rec, dir
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	utils.SetOutput(&buf)
	t.Cleanup(func() { utils.SetOutput(os.Stdout) })
	return &buf
}

func TestSendChatMessageToAll(t *testing.T) {
	t.Run("AllConnections", func(t *testing.T) {
		s, rec, _ := newTestServices(1, 2, 3)
		s.SendChatMessageToAll("server restarting")

		d := rec.Deliveries()
		if len(d) != 1 {
			t.Fatalf("expected one delivery, got %d", len(d))
		}
		if !reflect.DeepEqual(d[0].Conns, []uint64{1, 2, 3}) {
			t.Errorf("delivered to %v", d[0].Conns)
		}
		if d[0].Channel != transport.ChannelChat || d[0].Method != transport.ReliableOrdered {
			t.Errorf("wrong channel/method: %+v", d[0])
		}
		chat := d[0].Packet.(*packet.ChatMessage)
		if chat.Message != "server restarting" || chat.Username != "" {
			t.Errorf("unexpected packet %+v", chat)
		}
		if rec.Flushes() != 1 {
			t.Errorf("expected a flush after sending, got %d", rec.Flushes())
		}
	})

	t.Run("Subset", func(t *testing.T) {
		s, rec, _ := newTestServices(1, 2, 3)
		s.SendChatMessageFrom("bob", "psst", 3, 99)

		d := rec.Deliveries()
		if len(d) != 1 || !reflect.DeepEqual(d[0].Conns, []uint64{3}) {
			t.Fatalf("expected delivery only to 3, got %+v", d)
		}
	})

	t.Run("SubsetWithNoMatchSendsNothing", func(t *testing.T) {
		s, rec, _ := newTestServices(1)
		s.SendChatMessageToAll("nobody", 42)
		if rec.MessagesCreated() != 0 || len(rec.Deliveries()) != 0 {
			t.Error("nothing should be encoded for an empty target set")
		}
	})

	t.Run("SendFailureIsLoggedNotPropagated", func(t *testing.T) {
		logs := captureLogs(t)
		s, rec, _ := newTestServices(1)
		rec.FailSends(errors.New("socket gone"))
		s.SendChatMessageToAll("lost")
		if !strings.Contains(logs.String(), "socket gone") {
			t.Errorf("send failure not logged: %q", logs.String())
		}
	})
}

func TestSendModPacketToAll(t *testing.T) {
	s, rec, _ := newTestServices(5, 6)
	s.SendModPacketToAll("minimap", 2, []byte{1, 2, 3}, 6)

	d := rec.Deliveries()
	if len(d) != 1 || d[0].Channel != transport.ChannelMod {
		t.Fatalf("unexpected deliveries %+v", d)
	}
	mp := d[0].Packet.(*packet.ModPacket)
	if mp.ModName != "minimap" || mp.CustomID != 2 || !bytes.Equal(mp.Payload, []byte{1, 2, 3}) || mp.Sender != 0 {
		t.Errorf("unexpected mod packet %+v", mp)
	}
	if !reflect.DeepEqual(d[0].Conns, []uint64{6}) {
		t.Errorf("delivered to %v", d[0].Conns)
	}
}

func TestSendNativeCallToAll(t *testing.T) {
	t.Run("NoConnectionsNoWork", func(t *testing.T) {
		s, rec, _ := newTestServices()
		s.SendNativeCallToAll(0x1234, 1, "two")
		if rec.MessagesCreated() != 0 {
			t.Error("no message should be created without connections")
		}
	})

	t.Run("UnsupportedArgumentAborts", func(t *testing.T) {
		logs := captureLogs(t)
		s, rec, _ := newTestServices(1)
		s.SendNativeCallToAll(0x1234, 1, make(chan int), "tail")
		if rec.MessagesCreated() != 0 || len(rec.Deliveries()) != 0 {
			t.Error("a bad argument must abort the whole call")
		}
		if !strings.Contains(logs.String(), "aborted") {
			t.Errorf("expected an error log, got %q", logs.String())
		}
	})

	t.Run("Encodes", func(t *testing.T) {
		s, rec, _ := newTestServices(1, 2)
		target := player.NewClient(2, "bob", nil)
		args := []interface{}{target, model.Vector3{X: 1}, true}
		s.SendNativeCallToAll(0xCAFE, args...)

		if args[0] != target {
			t.Error("caller's argument slice must not be modified")
		}
		d := rec.Deliveries()
		if len(d) != 1 || d[0].Channel != transport.ChannelNative {
			t.Fatalf("unexpected deliveries %+v", d)
		}
		call := d[0].Packet.(*packet.NativeCall)
		if call.Hash != 0xCAFE || len(call.Args) != 3 {
			t.Fatalf("unexpected call %+v", call)
		}
		if call.Args[0].Kind != packet.ArgInt || call.Args[0].Int != 2 {
			t.Errorf("client argument should encode as its id, got %+v", call.Args[0])
		}
	})

	t.Run("Subset", func(t *testing.T) {
		s, rec, _ := newTestServices(1, 2)
		s.SendNativeCall(0xBEEF, []uint64{1}, 3)
		d := rec.Deliveries()
		if len(d) != 1 || !reflect.DeepEqual(d[0].Conns, []uint64{1}) {
			t.Fatalf("unexpected deliveries %+v", d)
		}
	})
}

func TestClientQueries(t *testing.T) {
	s, _, dir := newTestServices(1, 2)
	bob := player.NewClient(1, "Bob", nil)
	dir.Add(bob)
	dir.Add(player.NewClient(2, "alice", nil))

	for _, name := range []string{"Bob", "bob", "BOB"} {
		c, ok := s.ClientByUsername(name)
		if !ok || c != bob {
			t.Errorf("ClientByUsername(%q) = %v, %v", name, c, ok)
		}
	}
	if _, ok := s.ClientByUsername("carol"); ok {
		t.Error("unknown player should not be found")
	}
	if len(s.Clients()) != 2 || len(s.Connections()) != 2 {
		t.Errorf("Clients()=%d Connections()=%d", len(s.Clients()), len(s.Connections()))
	}
}

type greeter struct{ greeted []string }

func (g *greeter) Hello(ctx *command.Context) { g.greeted = append(g.greeted, ctx.Args...) }

func TestCommandRegistrationThroughAPI(t *testing.T) {
	s, _, _ := newTestServices()
	a := New("cmds", s)

	var posted []func()
	a.BindExecutor(func(fn func()) { posted = append(posted, fn) })

	ran := false
	if err := a.RegisterCommand("tp", "/tp <x> <y>", 2, func(*command.Context) { ran = true }); err != nil {
		t.Fatalf("RegisterCommand: %v", err)
	}
	g := &greeter{}
	if err := a.RegisterCommands(g); err != nil {
		t.Fatalf("RegisterCommands: %v", err)
	}

	tp, ok := s.Commands().Lookup("tp")
	if !ok || tp.ArgsLength != 2 {
		t.Fatalf("tp not registered: %+v", tp)
	}
	tp.Callback(command.NewContext(nil, "tp", []string{"1", "2"}, nil))
	if ran {
		t.Fatal("callback must be routed through the executor, not run inline")
	}
	if len(posted) != 1 {
		t.Fatalf("expected one posted task, got %d", len(posted))
	}
	posted[0]()
	if !ran {
		t.Error("posted task should run the callback")
	}

	t.Run("Duplicate", func(t *testing.T) {
		other := New("other", s)
		err := other.RegisterCommandFunc("TP", func(*command.Context) {})
		if !errors.Is(err, command.ErrDuplicate) {
			t.Errorf("expected ErrDuplicate, got %v", err)
		}
		other.ReleaseCommands()
		if _, ok := s.Commands().Lookup("tp"); !ok {
			t.Error("a failed registration must not release another resource's command")
		}
	})

	t.Run("Release", func(t *testing.T) {
		a.ReleaseCommands()
		if len(s.Commands().List()) != 0 {
			t.Errorf("commands left after release: %v", s.Commands().List())
		}
	})
}
