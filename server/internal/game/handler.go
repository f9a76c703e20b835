// Package game connects transport traffic to player state and scripts.
package game

import (
	"bytes"
	"strings"

	"github.com/phuhao00/scriptbridge/server/internal/api"
	"github.com/phuhao00/scriptbridge/server/internal/packet"
	"github.com/phuhao00/scriptbridge/server/internal/player"
	"github.com/phuhao00/scriptbridge/server/internal/script"
	"github.com/phuhao00/scriptbridge/server/internal/transport"
	"github.com/phuhao00/scriptbridge/server/internal/utils"
)

// Handler implements transport.Handler. A connection must complete the
// handshake before any other packet is accepted from it.
type Handler struct {
	clients   *player.Directory
	resources *script.Registry
	services  *api.Services
	commands  *CommandDispatcher
}

var _ transport.Handler = (*Handler)(nil)

func NewHandler(clients *player.Directory, resources *script.Registry, services *api.Services, commands *CommandDispatcher) *Handler {
	return &Handler{
		clients:   clients,
		resources: resources,
		services:  services,
		commands:  commands,
	}
}

func (h *Handler) Connected(conn transport.Connection) {
	utils.LogDebugf("[Game] Connection %d awaiting handshake", conn.ID())
}

func (h *Handler) Received(conn transport.Connection, p packet.Packet) {
	if hs, ok := p.(*packet.Handshake); ok {
		h.handshake(conn, hs)
		return
	}

	c, ok := h.clients.Get(conn.ID())
	if !ok {
		utils.LogWarnf("[Game] Connection %d sent %s before handshake. Ignoring.", conn.ID(), p.Kind())
		return
	}
	switch p := p.(type) {
	case *packet.PlayerUpdate:
		c.ApplyUpdate(p.Position, int(p.Health))
	case *packet.ChatMessage:
		h.chat(c, p.Message)
	case *packet.ModPacket:
		h.modPacket(c, p)
	default:
		utils.LogDebugf("[Game] Ignoring %s from %s", p.Kind(), c.Username)
	}
}

func (h *Handler) Disconnected(conn transport.Connection, reason string) {
	h.commands.Forget(conn.ID())
	c, ok := h.clients.Remove(conn.ID())
	if !ok {
		return
	}
	utils.LogInfof("[Game] %s left (%s)", c.Username, reason)
	h.resources.NotifyAll(func(a *api.API) { a.InvokePlayerDisconnected(c) })
}

func (h *Handler) handshake(conn transport.Connection, p *packet.Handshake) {
	if _, ok := h.clients.Get(conn.ID()); ok {
		utils.LogWarnf("[Game] Connection %d sent a second handshake. Ignoring.", conn.ID())
		return
	}
	username := strings.TrimSpace(p.Username)
	if username == "" {
		utils.LogWarnf("[Game] Connection %d sent a handshake without a username. Ignoring.", conn.ID())
		return
	}
	c := player.NewClient(conn.ID(), username, h.resources)
	if !h.clients.AddUnique(c) {
		utils.LogWarnf("[Game] Connection %d asked for username %q which is already in use.", conn.ID(), username)
		return
	}
	utils.LogInfof("[Game] %s joined on connection %d (mod version %q)", username, conn.ID(), p.ModVersion)

	hs := &api.Handshake{Client: c, ModVersion: p.ModVersion}
	h.resources.NotifyAll(func(a *api.API) {
		a.InvokeHandshake(hs)
		a.InvokePlayerConnected(c)
	})
}

func (h *Handler) chat(c *player.Client, text string) {
	if h.commands.Dispatch(c, text) {
		return
	}
	cancelled := h.resources.AskAny(func(a *api.API) bool {
		return a.InvokeChatMessage(&api.ChatMessage{Client: c, Message: text})
	})
	if cancelled {
		utils.LogDebugf("[Game] Chat from %s cancelled by a script", c.Username)
		return
	}
	h.services.SendChatMessageFrom(c.Username, text)
}

// modPacket relays a client's mod packet to its target, or to every other
// client when the target is zero.
func (h *Handler) modPacket(c *player.Client, p *packet.ModPacket) {
	p.Sender = c.ID
	if p.Target == c.ID {
		return
	}
	// Resources are asked in parallel; each gets its own payload so a
	// listener cannot change what the others see or what is relayed.
	cancelled := h.resources.AskAny(func(a *api.API) bool {
		return a.InvokeModPacket(&api.ModPacket{
			Client:   c,
			Target:   p.Target,
			ModName:  p.ModName,
			CustomID: p.CustomID,
			Payload:  bytes.Clone(p.Payload),
		})
	})
	if cancelled {
		utils.LogDebugf("[Game] Mod packet %s/%d from %s cancelled by a script", p.ModName, p.CustomID, c.Username)
		return
	}

	if p.Target != 0 {
		h.services.RelayModPacket(p, p.Target)
		return
	}
	var others []uint64
	for _, other := range h.clients.List() {
		if other.ID != c.ID {
			others = append(others, other.ID)
		}
	}
	if len(others) == 0 {
		return
	}
	h.services.RelayModPacket(p, others...)
}
