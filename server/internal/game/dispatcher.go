package game

import (
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/phuhao00/scriptbridge/server/internal/api"
	"github.com/phuhao00/scriptbridge/server/internal/command"
	"github.com/phuhao00/scriptbridge/server/internal/player"
	"github.com/phuhao00/scriptbridge/server/internal/utils"
)

// CommandDispatcher turns prefixed chat lines into command invocations.
// Each player has their own token bucket.
type CommandDispatcher struct {
	prefix   string
	commands *command.Registry
	services *api.Services
	limit    rate.Limit
	burst    int

	mu       sync.Mutex
	limiters map[uint64]*rate.Limiter
}

// NewCommandDispatcher creates a dispatcher. A non-positive perSecond disables
// throttling.
func NewCommandDispatcher(prefix string, commands *command.Registry, services *api.Services, perSecond float64, burst int) *CommandDispatcher {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst < 1 {
		burst = 1
	}
	return &CommandDispatcher{
		prefix:   prefix,
		commands: commands,
		services: services,
		limit:    limit,
		burst:    burst,
		limiters: make(map[uint64]*rate.Limiter),
	}
}

// Dispatch runs text as a command if it carries the prefix. It reports whether
// the line was consumed; consumed lines are never relayed as chat.
func (d *CommandDispatcher) Dispatch(c *player.Client, text string) bool {
	name, args, ok := command.Parse(d.prefix, text)
	if !ok {
		return false
	}
	reply := func(message string) { d.services.SendChatMessageToAll(message, c.ID) }

	if !d.allow(c.ID) {
		utils.LogDebugf("[Commands] %s throttled on %s%s", c.Username, d.prefix, name)
		reply("You are sending commands too quickly.")
		return true
	}
	cmd, found := d.commands.Lookup(name)
	if !found {
		reply(fmt.Sprintf("Unknown command: %s%s", d.prefix, name))
		return true
	}
	if err := cmd.Validate(args); err != nil {
		utils.LogDebugf("[Commands] %s: %v", c.Username, err)
		reply("Usage: " + cmd.Usage)
		return true
	}
	utils.LogDebugf("[Commands] %s ran %s%s %v", c.Username, d.prefix, name, args)
	cmd.Callback(command.NewContext(c, name, args, reply))
	return true
}

// Forget drops the rate state for a disconnected player.
func (d *CommandDispatcher) Forget(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.limiters, id)
}

func (d *CommandDispatcher) allow(id uint64) bool {
	if d.limit == rate.Inf {
		return true
	}
	d.mu.Lock()
	l, ok := d.limiters[id]
	if !ok {
		l = rate.NewLimiter(d.limit, d.burst)
		d.limiters[id] = l
	}
	d.mu.Unlock()
	return l.Allow()
}

// RegisterHelp adds a help command that lists every registered command.
func (d *CommandDispatcher) RegisterHelp() error {
	return d.commands.Register(command.Command{
		Name:       "help",
		Usage:      d.prefix + "help",
		ArgsLength: 0,
		Callback: func(ctx *command.Context) {
			for _, cmd := range d.commands.List() {
				usage := cmd.Usage
				if usage == "" {
					usage = d.prefix + cmd.Name
				}
				ctx.Reply("%s", usage)
			}
		},
	})
}
