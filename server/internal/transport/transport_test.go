package transport

import (
	"errors"
	"testing"

	"github.com/phuhao00/scriptbridge/server/internal/packet"
)

func TestFilter(t *testing.T) {
	conns := []Connection{ConnID(1), ConnID(2), ConnID(3)}

	if got := Filter(conns); len(got) != 3 {
		t.Errorf("no ids should keep all connections, got %d", len(got))
	}

	got := Filter(conns, 3, 1, 42)
	if len(got) != 2 || got[0].ID() != 1 || got[1].ID() != 3 {
		t.Errorf("Filter kept %v, want [1 3]", got)
	}
}

func TestRecorder(t *testing.T) {
	r := NewRecorder(2, 1)

	if conns := r.Connections(); len(conns) != 2 || conns[0].ID() != 1 {
		t.Fatalf("Connections() = %v", conns)
	}

	msg := r.CreateMessage()
	msg.Write(&packet.ChatMessage{Username: "server", Message: "hi"})
	if err := r.Send(msg, r.Connections(), ReliableOrdered, ChannelChat); err != nil {
		t.Fatalf("Send: %v", err)
	}
	r.Flush()

	d := r.Deliveries()
	if len(d) != 1 || d[0].Channel != ChannelChat || len(d[0].Conns) != 2 {
		t.Fatalf("unexpected deliveries: %+v", d)
	}
	if chat, ok := d[0].Packet.(*packet.ChatMessage); !ok || chat.Message != "hi" {
		t.Errorf("recorded packet = %+v", d[0].Packet)
	}
	if r.MessagesCreated() != 1 || r.Flushes() != 1 {
		t.Errorf("created=%d flushes=%d", r.MessagesCreated(), r.Flushes())
	}

	t.Run("EmptyMessage", func(t *testing.T) {
		if err := r.Send(&Message{}, nil, ReliableOrdered, ChannelChat); !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("expected ErrEmptyMessage, got %v", err)
		}
	})

	t.Run("FailSends", func(t *testing.T) {
		boom := errors.New("boom")
		r.FailSends(boom)
		if err := r.Send(msg, nil, ReliableOrdered, ChannelChat); !errors.Is(err, boom) {
			t.Errorf("expected injected error, got %v", err)
		}
	})
}
