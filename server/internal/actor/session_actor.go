package actor

import (
	"bufio"
	"net"

	"github.com/asynkron/protoactor-go/actor"

	"github.com/phuhao00/scriptbridge/server/internal/actor/messages"
	"github.com/phuhao00/scriptbridge/server/internal/packet"
	"github.com/phuhao00/scriptbridge/server/internal/utils"
)

// SessionActor owns the write side of a single client connection. All
// outbound frames for that connection pass through its mailbox, so frames
// sent from one producer arrive in send order.
type SessionActor struct {
	connID uint64
	conn   net.Conn
	writer *bufio.Writer
	closed bool
}

// NewSessionActor creates a new SessionActor instance.
func NewSessionActor() actor.Actor {
	return &SessionActor{}
}

// Receive is the main message handling loop for the SessionActor.
func (a *SessionActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		utils.LogDebugf("[SessionActor %s] Started.", ctx.Self().Id)

	case *messages.ClientConnected:
		a.connID = msg.ConnID
		a.conn = msg.Conn
		a.writer = bufio.NewWriter(msg.Conn)
		utils.LogDebugf("[SessionActor %s] Bound to connection %d (%s)", ctx.Self().Id, a.connID, msg.Conn.RemoteAddr())

	case *messages.ForwardToClient:
		a.handleForwardToClient(ctx, msg)

	case *messages.FlushClient:
		a.flush(ctx)

	case *messages.ClientDisconnected:
		utils.LogDebugf("[SessionActor %s] Connection %d disconnected: %s", ctx.Self().Id, a.connID, msg.Reason)
		a.flush(ctx)
		a.close()
		ctx.Stop(ctx.Self())

	case *actor.Stopping:
		a.close()

	case *actor.Stopped:
		utils.LogDebugf("[SessionActor %s] Stopped.", ctx.Self().Id)

	default:
		utils.LogWarnf("[SessionActor %s] Received unknown message: %T", ctx.Self().Id, msg)
	}
}

// handleForwardToClient buffers one length-prefixed frame. A write error
// closes the socket; the reader goroutine then reports the disconnect.
func (a *SessionActor) handleForwardToClient(ctx actor.Context, msg *messages.ForwardToClient) {
	if a.writer == nil || a.closed {
		utils.LogDebugf("[SessionActor %s] No connection available to forward message.", ctx.Self().Id)
		return
	}
	if err := packet.WriteFrame(a.writer, msg.Payload); err != nil {
		utils.LogWarnf("[SessionActor %s] Error writing to connection %d: %v", ctx.Self().Id, a.connID, err)
		a.close()
	}
}

func (a *SessionActor) flush(ctx actor.Context) {
	if a.writer == nil || a.closed {
		return
	}
	if err := a.writer.Flush(); err != nil {
		utils.LogWarnf("[SessionActor %s] Error flushing connection %d: %v", ctx.Self().Id, a.connID, err)
		a.close()
	}
}

func (a *SessionActor) close() {
	if a.conn == nil || a.closed {
		return
	}
	a.closed = true
	_ = a.conn.Close()
}

// Props creates actor.Props for SessionActor.
func Props() *actor.Props {
	return actor.PropsFromProducer(NewSessionActor)
}
