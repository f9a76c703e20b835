// Package luascript hosts Lua scripts on a script.Resource.
//
// A script talks to the server through the global bridge table:
//
//	bridge.on(event, fn)
//	bridge.send_chat(message [, ids])
//	bridge.send_mod(mod, custom_id, payload [, ids])
//	bridge.native(hash, ...)
//	bridge.register_command(name, usage, args_length, fn)
//	bridge.players()
//	bridge.player(name)
//	bridge.log(message)
//
// Every call into the Lua state happens on the owning resource's worker, so a
// state is never touched by two goroutines.
package luascript

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Shopify/go-lua"

	"github.com/phuhao00/scriptbridge/server/internal/api"
	"github.com/phuhao00/scriptbridge/server/internal/command"
	"github.com/phuhao00/scriptbridge/server/internal/model"
	"github.com/phuhao00/scriptbridge/server/internal/player"
	"github.com/phuhao00/scriptbridge/server/internal/utils"
)

const handlersKey = "scriptbridge.handlers"

// Script is a Lua chunk loaded from a file or from source text.
type Script struct {
	name   string
	path   string
	source string

	state    *lua.State
	api      *api.API
	handlers int
}

func FromFile(name, path string) *Script {
	return &Script{name: name, path: path}
}

func FromSource(name, source string) *Script {
	return &Script{name: name, source: source}
}

// Init creates the Lua state, installs the bridge table and runs the chunk.
func (s *Script) Init(a *api.API) error {
	l := lua.NewState()
	lua.OpenLibraries(l)
	s.state, s.api = l, a

	l.NewTable()
	l.SetField(lua.RegistryIndex, handlersKey)
	s.openBridge(l)

	var err error
	if s.path != "" {
		err = lua.LoadFile(l, s.path, "")
	} else {
		err = lua.LoadString(l, s.source)
	}
	if err != nil {
		return fmt.Errorf("load lua %s: %w", s.name, err)
	}
	if err := l.ProtectedCall(0, 0, 0); err != nil {
		return fmt.Errorf("run lua %s: %w", s.name, err)
	}
	return nil
}

func (s *Script) openBridge(l *lua.State) {
	l.NewTable()
	lua.SetFunctions(l, []lua.RegistryFunction{
		{Name: "on", Function: s.on},
		{Name: "send_chat", Function: s.sendChat},
		{Name: "send_mod", Function: s.sendMod},
		{Name: "native", Function: s.native},
		{Name: "register_command", Function: s.registerCommand},
		{Name: "players", Function: s.players},
		{Name: "player", Function: s.player},
		{Name: "log", Function: s.log},
	}, 0)
	l.PushString(s.api.Name())
	l.SetField(-2, "name")
	l.SetGlobal("bridge")
}

func (s *Script) on(l *lua.State) int {
	event := lua.CheckString(l, 1)
	lua.CheckType(l, 2, lua.TypeFunction)
	ref := s.ref(l, 2)
	a := s.api

	switch event {
	case "start":
		a.OnStart.Attach(func() { s.invoke(ref, event, nil) })
	case "stop":
		a.OnStop.Attach(func() { s.invoke(ref, event, nil) })
	case "handshake":
		a.OnHandshake.Attach(func(h *api.Handshake) {
			s.invoke(ref, event, func(l *lua.State) int {
				pushPlayer(l, h.Client)
				l.PushString(h.ModVersion)
				return 2
			})
		})
	case "player_connected":
		a.OnPlayerConnected.Attach(s.playerHandler(ref, event))
	case "player_disconnected":
		a.OnPlayerDisconnected.Attach(s.playerHandler(ref, event))
	case "player_update":
		a.OnPlayerUpdate.Attach(s.playerHandler(ref, event))
	case "player_health_changed":
		a.OnPlayerHealthChanged.Attach(func(c *api.HealthChange) {
			s.invoke(ref, event, func(l *lua.State) int {
				pushPlayer(l, c.Client)
				l.PushInteger(c.Last)
				l.PushInteger(c.Current)
				return 3
			})
		})
	case "player_position_changed":
		a.OnPlayerPositionChanged.Attach(func(c *api.PositionChange) {
			s.invoke(ref, event, func(l *lua.State) int {
				pushPlayer(l, c.Client)
				pushVector(l, c.Last)
				pushVector(l, c.Current)
				return 3
			})
		})
	case "chat_message":
		a.OnChatMessage.Attach(func(m *api.ChatMessage, c *api.Cancellable) {
			verdict, ok := s.invoke(ref, event, func(l *lua.State) int {
				pushPlayer(l, m.Client)
				l.PushString(m.Message)
				return 2
			})
			if ok {
				c.Cancel = verdict
			}
		})
	case "mod_packet":
		a.OnModPacket.Attach(func(p *api.ModPacket, c *api.Cancellable) {
			verdict, ok := s.invoke(ref, event, func(l *lua.State) int {
				pushPlayer(l, p.Client)
				l.PushInteger(int(p.Target))
				l.PushString(p.ModName)
				l.PushInteger(int(p.CustomID))
				l.PushString(string(p.Payload))
				return 5
			})
			if ok {
				c.Cancel = verdict
			}
		})
	default:
		lua.ArgumentError(l, 1, "unknown event '"+event+"'")
	}
	return 0
}

func (s *Script) playerHandler(ref int, event string) func(*player.Client) {
	return func(c *player.Client) {
		s.invoke(ref, event, func(l *lua.State) int {
			pushPlayer(l, c)
			return 1
		})
	}
}

// ref stores the function at index in the handler table and returns its key.
func (s *Script) ref(l *lua.State, index int) int {
	index = l.AbsIndex(index)
	l.Field(lua.RegistryIndex, handlersKey)
	s.handlers++
	l.PushValue(index)
	l.RawSetInt(-2, s.handlers)
	l.Pop(1)
	return s.handlers
}

// invoke calls handler ref with whatever push leaves on the stack. A boolean
// first result is reported as the verdict; ok is false for any other result.
func (s *Script) invoke(ref int, event string, push func(*lua.State) int) (verdict, ok bool) {
	l := s.state
	top := l.Top()
	defer l.SetTop(top)

	l.Field(lua.RegistryIndex, handlersKey)
	l.RawGetInt(-1, ref)
	l.Remove(-2)
	args := 0
	if push != nil {
		args = push(l)
	}
	if err := l.ProtectedCall(args, 1, 0); err != nil {
		utils.LogErrorf("[Lua %s] %s handler failed: %v", s.name, event, err)
		return false, false
	}
	if l.TypeOf(-1) != lua.TypeBoolean {
		return false, false
	}
	return l.ToBoolean(-1), true
}

func (s *Script) sendChat(l *lua.State) int {
	message := lua.CheckString(l, 1)
	ids, ok := connectionIDs(l, 2)
	if ok {
		s.api.SendChatMessageToAll(message, ids...)
	}
	return 0
}

func (s *Script) sendMod(l *lua.State) int {
	mod := lua.CheckString(l, 1)
	customID := lua.CheckInteger(l, 2)
	if customID < 0 || customID > math.MaxUint8 {
		lua.ArgumentError(l, 2, "custom id out of range")
	}
	payload := lua.OptString(l, 3, "")
	ids, ok := connectionIDs(l, 4)
	if ok {
		s.api.SendModPacketToAll(mod, byte(customID), []byte(payload), ids...)
	}
	return 0
}

// unsupported carries a Lua value with no native wire form so the send path
// rejects the whole call.
type unsupported struct{ luaType string }

func (s *Script) native(l *lua.State) int {
	hash := checkHash(l, 1)
	args := make([]interface{}, 0, l.Top()-1)
	for i := 2; i <= l.Top(); i++ {
		args = append(args, nativeValue(l, i))
	}
	s.api.SendNativeCallToAll(hash, args...)
	return 0
}

func checkHash(l *lua.State, index int) uint64 {
	if l.TypeOf(index) == lua.TypeString {
		text, _ := l.ToString(index)
		hash, err := strconv.ParseUint(text, 0, 64)
		if err != nil {
			lua.ArgumentError(l, index, "invalid native hash")
		}
		return hash
	}
	return uint64(lua.CheckInteger(l, index))
}

func nativeValue(l *lua.State, index int) interface{} {
	switch l.TypeOf(index) {
	case lua.TypeBoolean:
		return l.ToBoolean(index)
	case lua.TypeNumber:
		n, _ := l.ToNumber(index)
		if n == math.Trunc(n) && math.Abs(n) < 1<<53 {
			return int64(n)
		}
		return n
	case lua.TypeString:
		text, _ := l.ToString(index)
		return text
	case lua.TypeTable:
		if v, ok := toVector(l, index); ok {
			return v
		}
		if id, ok := numberField(l, index, "id"); ok {
			return uint64(id)
		}
	}
	return unsupported{luaType: lua.TypeNameOf(l, index)}
}

func (s *Script) registerCommand(l *lua.State) int {
	name := lua.CheckString(l, 1)
	usage := lua.OptString(l, 2, "")
	argsLength := lua.OptInteger(l, 3, command.AnyArgs)
	lua.CheckType(l, 4, lua.TypeFunction)
	ref := s.ref(l, 4)

	err := s.api.RegisterCommand(name, usage, argsLength, func(ctx *command.Context) {
		l := s.state
		top := l.Top()
		defer l.SetTop(top)

		l.Field(lua.RegistryIndex, handlersKey)
		l.RawGetInt(-1, ref)
		l.Remove(-2)
		pushPlayer(l, ctx.Client)
		l.NewTable()
		for i, arg := range ctx.Args {
			l.PushString(arg)
			l.RawSetInt(-2, i+1)
		}
		if err := l.ProtectedCall(2, 1, 0); err != nil {
			utils.LogErrorf("[Lua %s] command /%s failed: %v", s.name, ctx.Name, err)
			return
		}
		if reply, ok := l.ToString(-1); ok && reply != "" {
			ctx.Reply("%s", reply)
		}
	})
	if err != nil {
		l.PushBoolean(false)
		l.PushString(err.Error())
		return 2
	}
	l.PushBoolean(true)
	return 1
}

func (s *Script) players(l *lua.State) int {
	l.NewTable()
	for i, c := range s.api.Clients() {
		pushPlayer(l, c)
		l.RawSetInt(-2, i+1)
	}
	return 1
}

func (s *Script) player(l *lua.State) int {
	c, ok := s.api.ClientByUsername(lua.CheckString(l, 1))
	if !ok {
		l.PushNil()
		return 1
	}
	pushPlayer(l, c)
	return 1
}

func (s *Script) log(l *lua.State) int {
	parts := make([]string, 0, l.Top())
	for i := 1; i <= l.Top(); i++ {
		text, _ := lua.ToStringMeta(l, i)
		parts = append(parts, text)
		l.Pop(1)
	}
	utils.LogInfof("[Lua %s] %s", s.name, strings.Join(parts, " "))
	return 0
}

func pushPlayer(l *lua.State, c *player.Client) {
	if c == nil {
		l.PushNil()
		return
	}
	l.NewTable()
	l.PushInteger(int(c.ID))
	l.SetField(-2, "id")
	l.PushString(c.Username)
	l.SetField(-2, "name")
	l.PushInteger(c.Health())
	l.SetField(-2, "health")
	pushVector(l, c.Position())
	l.SetField(-2, "position")
}

func pushVector(l *lua.State, v model.Vector3) {
	l.NewTable()
	l.PushNumber(float64(v.X))
	l.SetField(-2, "x")
	l.PushNumber(float64(v.Y))
	l.SetField(-2, "y")
	l.PushNumber(float64(v.Z))
	l.SetField(-2, "z")
}

func toVector(l *lua.State, index int) (model.Vector3, bool) {
	x, okX := numberField(l, index, "x")
	y, okY := numberField(l, index, "y")
	z, okZ := numberField(l, index, "z")
	if !okX || !okY || !okZ {
		return model.Vector3{}, false
	}
	return model.Vector3{X: float32(x), Y: float32(y), Z: float32(z)}, true
}

func numberField(l *lua.State, index int, key string) (float64, bool) {
	l.Field(index, key)
	defer l.Pop(1)
	if l.TypeOf(-1) != lua.TypeNumber {
		return 0, false
	}
	return l.ToNumber(-1)
}

// connectionIDs reads an optional array of connection ids. A missing array
// means everyone; an empty one means nobody and reports ok false.
func connectionIDs(l *lua.State, index int) (ids []uint64, ok bool) {
	if l.IsNoneOrNil(index) {
		return nil, true
	}
	lua.CheckType(l, index, lua.TypeTable)
	n := l.RawLength(index)
	ids = make([]uint64, 0, n)
	for i := 1; i <= n; i++ {
		l.RawGetInt(index, i)
		if id, isInt := l.ToInteger(-1); isInt && id >= 0 {
			ids = append(ids, uint64(id))
		}
		l.Pop(1)
	}
	return ids, len(ids) > 0
}
