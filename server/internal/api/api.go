// Package api is the surface a script sees: the events it can listen to and
// the server operations it can call back into.
//
// One API belongs to one script resource. Its Invoke methods are called only
// from that resource's worker goroutine, so listeners never run concurrently
// with each other. Attach may be called from anywhere.
package api

import (
	"sync"

	"github.com/phuhao00/scriptbridge/server/internal/command"
	"github.com/phuhao00/scriptbridge/server/internal/model"
	"github.com/phuhao00/scriptbridge/server/internal/player"
)

// Handshake is raised when a client introduces itself.
type Handshake struct {
	Client     *player.Client
	ModVersion string
}

type HealthChange struct {
	Client  *player.Client
	Last    int
	Current int
}

type PositionChange struct {
	Client  *player.Client
	Last    model.Vector3
	Current model.Vector3
}

// ChatMessage is a non-command chat line about to be relayed.
type ChatMessage struct {
	Client  *player.Client
	Message string
}

// ModPacket is a mod payload about to be relayed. Target zero means every
// other client.
type ModPacket struct {
	Client   *player.Client
	Target   uint64
	ModName  string
	CustomID byte
	Payload  []byte
}

// API is the per-resource event broker.
type API struct {
	*Services

	name string

	OnStart                 Hook
	OnStop                  Hook
	OnHandshake             Event[*Handshake]
	OnPlayerConnected       Event[*player.Client]
	OnPlayerDisconnected    Event[*player.Client]
	OnPlayerUpdate          Event[*player.Client]
	OnPlayerHealthChanged   Event[*HealthChange]
	OnPlayerPositionChanged Event[*PositionChange]
	OnChatMessage           CancelEvent[*ChatMessage]
	OnModPacket             CancelEvent[*ModPacket]

	mu       sync.Mutex
	post     func(func())
	commands []string
}

// New creates the broker for the resource called name.
func New(name string, services *Services) *API {
	a := &API{Services: services, name: name}
	a.OnStart.name = name + ".OnStart"
	a.OnStop.name = name + ".OnStop"
	a.OnHandshake.name = name + ".OnHandshake"
	a.OnPlayerConnected.name = name + ".OnPlayerConnected"
	a.OnPlayerDisconnected.name = name + ".OnPlayerDisconnected"
	a.OnPlayerUpdate.name = name + ".OnPlayerUpdate"
	a.OnPlayerHealthChanged.name = name + ".OnPlayerHealthChanged"
	a.OnPlayerPositionChanged.name = name + ".OnPlayerPositionChanged"
	a.OnChatMessage.name = name + ".OnChatMessage"
	a.OnModPacket.name = name + ".OnModPacket"
	return a
}

func (a *API) Name() string { return a.name }

// BindExecutor routes command callbacks registered through this API onto the
// owning resource's worker. Without one, callbacks run on the caller.
func (a *API) BindExecutor(post func(func())) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.post = post
}

func (a *API) InvokeStart() { a.OnStart.invoke() }
func (a *API) InvokeStop()  { a.OnStop.invoke() }

func (a *API) InvokeHandshake(h *Handshake) { a.OnHandshake.invoke(h) }

func (a *API) InvokePlayerConnected(c *player.Client)    { a.OnPlayerConnected.invoke(c) }
func (a *API) InvokePlayerDisconnected(c *player.Client) { a.OnPlayerDisconnected.invoke(c) }
func (a *API) InvokePlayerUpdate(c *player.Client)       { a.OnPlayerUpdate.invoke(c) }

func (a *API) InvokePlayerHealthChanged(c *HealthChange) { a.OnPlayerHealthChanged.invoke(c) }

func (a *API) InvokePlayerPositionChanged(c *PositionChange) { a.OnPlayerPositionChanged.invoke(c) }

// InvokeChatMessage returns true if the message must not be relayed.
func (a *API) InvokeChatMessage(m *ChatMessage) bool { return a.OnChatMessage.invoke(m) }

// InvokeModPacket returns true if the packet must not be relayed.
func (a *API) InvokeModPacket(p *ModPacket) bool { return a.OnModPacket.invoke(p) }

// RegisterCommand registers a checked command whose callback runs on this
// resource's worker.
func (a *API) RegisterCommand(name, usage string, argsLength int, cb func(*command.Context)) error {
	return a.register(command.Command{Name: name, Usage: usage, ArgsLength: argsLength, Callback: cb})
}

// RegisterCommandFunc registers an unchecked command.
func (a *API) RegisterCommandFunc(name string, cb func(*command.Context)) error {
	return a.register(command.Command{Name: name, ArgsLength: command.AnyArgs, Callback: cb})
}

// RegisterCommands registers every func(*command.Context) method of v.
func (a *API) RegisterCommands(v interface{}) error {
	names, err := a.Services.commands.RegisterTypeWith(v, func(cmd *command.Command) {
		cmd.Callback = a.bind(cmd.Callback)
	})
	a.track(names...)
	return err
}

func (a *API) register(cmd command.Command) error {
	if cmd.Callback == nil {
		return command.ErrNoHandler
	}
	cmd.Callback = a.bind(cmd.Callback)
	if err := a.Services.commands.Register(cmd); err != nil {
		return err
	}
	a.track(cmd.Name)
	return nil
}

func (a *API) track(names ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.commands = append(a.commands, names...)
}

// ReleaseCommands unregisters every command this API registered.
func (a *API) ReleaseCommands() {
	a.mu.Lock()
	names := a.commands
	a.commands = nil
	a.mu.Unlock()
	for _, name := range names {
		a.Services.commands.Unregister(name)
	}
}

func (a *API) bind(cb func(*command.Context)) func(*command.Context) {
	return func(ctx *command.Context) {
		a.mu.Lock()
		post := a.post
		a.mu.Unlock()
		if post == nil {
			cb(ctx)
			return
		}
		post(func() { cb(ctx) })
	}
}
