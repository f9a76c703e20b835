package transport

import (
	"errors"
	"fmt"

	"github.com/phuhao00/scriptbridge/server/internal/packet"
)

// Channel separates traffic kinds on a connection.
type Channel uint8

const (
	ChannelDefault Channel = iota
	ChannelChat
	ChannelMod
	ChannelNative
)

func (c Channel) String() string {
	switch c {
	case ChannelDefault:
		return "default"
	case ChannelChat:
		return "chat"
	case ChannelMod:
		return "mod"
	case ChannelNative:
		return "native"
	default:
		return fmt.Sprintf("channel-%d", uint8(c))
	}
}

// DeliveryMethod is the delivery guarantee requested for a message.
type DeliveryMethod uint8

const (
	Unreliable DeliveryMethod = iota
	ReliableUnordered
	ReliableOrdered
)

var (
	ErrEmptyMessage = errors.New("transport: message has no payload")
	ErrClosed       = errors.New("transport: closed")
)

// Connection is an open client connection.
type Connection interface {
	ID() uint64
}

// Message is an encoded outgoing payload.
type Message struct {
	Payload []byte
}

// Write encodes p into the message, replacing any previous payload.
func (m *Message) Write(p packet.Packet) {
	m.Payload = packet.Marshal(p)
}

// Transport delivers messages to client connections.
type Transport interface {
	CreateMessage() *Message
	Send(msg *Message, conns []Connection, method DeliveryMethod, channel Channel) error
	Flush()
	Connections() []Connection
}

// Handler receives inbound traffic. Methods are called from the connection's
// reader goroutine.
type Handler interface {
	Connected(conn Connection)
	Received(conn Connection, p packet.Packet)
	Disconnected(conn Connection, reason string)
}

// Filter keeps the connections whose id is in ids. No ids keeps everything.
func Filter(conns []Connection, ids ...uint64) []Connection {
	if len(ids) == 0 {
		return conns
	}
	want := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make([]Connection, 0, len(ids))
	for _, c := range conns {
		if _, ok := want[c.ID()]; ok {
			out = append(out, c)
		}
	}
	return out
}
