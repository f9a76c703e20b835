package api

import (
	"fmt"
	"runtime/debug"

	"github.com/phuhao00/scriptbridge/server/internal/command"
	"github.com/phuhao00/scriptbridge/server/internal/packet"
	"github.com/phuhao00/scriptbridge/server/internal/player"
	"github.com/phuhao00/scriptbridge/server/internal/transport"
	"github.com/phuhao00/scriptbridge/server/internal/utils"
)

// Services are the server operations shared by every resource. Broadcasts are
// best-effort: failures are logged and never returned to the caller.
type Services struct {
	transport transport.Transport
	clients   *player.Directory
	commands  *command.Registry
}

func NewServices(t transport.Transport, clients *player.Directory, commands *command.Registry) *Services {
	return &Services{transport: t, clients: clients, commands: commands}
}

// Commands exposes the shared command registry.
func (s *Services) Commands() *command.Registry { return s.commands }

// SendChatMessageToAll sends a server chat line to every connection, or only
// to the given connection ids. Messages longer than packet.MaxStringLength
// bytes are cut at a rune boundary.
func (s *Services) SendChatMessageToAll(message string, connections ...uint64) {
	s.SendChatMessageFrom("", message, connections...)
}

// SendChatMessageFrom is SendChatMessageToAll with an explicit sender name.
func (s *Services) SendChatMessageFrom(username, message string, connections ...uint64) {
	s.deliver("SendChatMessage", &packet.ChatMessage{Username: username, Message: message},
		transport.ChannelChat, connections)
}

// SendModPacketToAll sends a server-originated mod packet.
func (s *Services) SendModPacketToAll(modName string, customID byte, payload []byte, connections ...uint64) {
	s.RelayModPacket(&packet.ModPacket{ModName: modName, CustomID: customID, Payload: payload}, connections...)
}

// RelayModPacket forwards p verbatim.
func (s *Services) RelayModPacket(p *packet.ModPacket, connections ...uint64) {
	s.deliver("SendModPacket", p, transport.ChannelMod, connections)
}

// SendNativeCallToAll asks every client to run the native function hash.
// Nothing is encoded when no client is connected. If any argument has no
// wire form the whole call is dropped and logged.
func (s *Services) SendNativeCallToAll(hash uint64, args ...interface{}) {
	s.SendNativeCall(hash, nil, args...)
}

// SendNativeCall is SendNativeCallToAll limited to the given connection ids.
func (s *Services) SendNativeCall(hash uint64, connections []uint64, args ...interface{}) {
	if len(s.transport.Connections()) == 0 {
		return
	}
	values := make([]interface{}, len(args))
	for i, arg := range args {
		if c, ok := arg.(*player.Client); ok && c != nil {
			values[i] = c.ID
			continue
		}
		values[i] = arg
	}
	nativeArgs, err := packet.ToNativeArgs(values...)
	if err != nil {
		utils.LogErrorf("[API] SendNativeCall 0x%016X aborted: %v", hash, err)
		return
	}
	s.deliver("SendNativeCall", &packet.NativeCall{Hash: hash, Args: nativeArgs}, transport.ChannelNative, connections)
}

// Connections returns the open transport connections.
func (s *Services) Connections() []transport.Connection {
	return s.transport.Connections()
}

// Clients returns every player that completed the handshake.
func (s *Services) Clients() []*player.Client {
	return s.clients.List()
}

// ClientByUsername looks a player up by name, ignoring case.
func (s *Services) ClientByUsername(username string) (*player.Client, bool) {
	return s.clients.ByUsername(username)
}

func (s *Services) deliver(source string, p packet.Packet, channel transport.Channel, ids []uint64) {
	defer func() {
		if r := recover(); r != nil {
			utils.LogErrorf("[API] %s panicked: %v\n%s", source, r, debug.Stack())
		}
	}()

	targets := transport.Filter(s.transport.Connections(), ids...)
	if len(targets) == 0 {
		return
	}
	msg := s.transport.CreateMessage()
	msg.Write(p)
	if err := s.transport.Send(msg, targets, transport.ReliableOrdered, channel); err != nil {
		utils.LogErrorf("[API] %s failed: %v", source, fmt.Errorf("send %s to %d connection(s): %w", p.Kind(), len(targets), err))
		return
	}
	s.transport.Flush()
}
