package command

import (
	"errors"
	"fmt"
	"strings"

	"github.com/phuhao00/scriptbridge/server/internal/player"
)

// AnyArgs disables the argument count check for a command.
const AnyArgs = -1

var (
	ErrDuplicate = errors.New("command already registered")
	ErrArgCount  = errors.New("wrong number of arguments")
	ErrNoName    = errors.New("command name is empty")
	ErrNoHandler = errors.New("command callback is nil")
)

// Context is handed to a command callback.
type Context struct {
	Client *player.Client
	Name   string
	Args   []string

	reply func(string)
}

// NewContext builds a context; reply may be nil.
func NewContext(client *player.Client, name string, args []string, reply func(string)) *Context {
	return &Context{Client: client, Name: name, Args: args, reply: reply}
}

// Reply sends a chat line back to the issuing player only.
func (c *Context) Reply(format string, args ...interface{}) {
	if c.reply == nil {
		return
	}
	c.reply(fmt.Sprintf(format, args...))
}

// Command is a registry entry. Usage and ArgsLength are only enforced when
// Usage is non-empty and ArgsLength is not AnyArgs.
type Command struct {
	Name       string
	Usage      string
	ArgsLength int
	Callback   func(*Context)
}

// Checked reports whether invocations must match ArgsLength exactly.
func (c *Command) Checked() bool {
	return c.Usage != "" && c.ArgsLength != AnyArgs
}

// Validate rejects an argument list that does not match a checked command.
func (c *Command) Validate(args []string) error {
	if c.Checked() && len(args) != c.ArgsLength {
		return fmt.Errorf("%w: %s expects %d, got %d (usage: %s)", ErrArgCount, c.Name, c.ArgsLength, len(args), c.Usage)
	}
	return nil
}

// Parse splits a chat line into a lower-cased command name and its arguments.
// ok is false when text does not start with prefix or names no command.
func Parse(prefix, text string) (name string, args []string, ok bool) {
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(text, prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}
