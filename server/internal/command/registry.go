package command

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/phuhao00/scriptbridge/server/internal/utils"
)

// Meta carries the optional usage metadata for a method registered through
// RegisterType.
type Meta struct {
	Usage      string
	ArgsLength int
}

// Describer lets a command set passed to RegisterType describe its methods.
// Keys are lower-case command names.
type Describer interface {
	CommandMeta() map[string]Meta
}

// Registry maps case-insensitive command names to their entries.
type Registry struct {
	mu       sync.RWMutex
	commands map[string]*Command
}

func NewRegistry() *Registry {
	return &Registry{commands: make(map[string]*Command)}
}

// Register adds cmd. Names are stored lower-cased.
func (r *Registry) Register(cmd Command) error {
	name := strings.ToLower(strings.TrimSpace(cmd.Name))
	if name == "" {
		return ErrNoName
	}
	if cmd.Callback == nil {
		return fmt.Errorf("%w: %s", ErrNoHandler, name)
	}
	cmd.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}
	r.commands[name] = &cmd
	utils.LogDebugf("[CommandRegistry] Registered command '%s' (usage=%q, args=%d)", name, cmd.Usage, cmd.ArgsLength)
	return nil
}

// RegisterFunc adds an unchecked command.
func (r *Registry) RegisterFunc(name string, cb func(*Context)) error {
	return r.Register(Command{Name: name, ArgsLength: AnyArgs, Callback: cb})
}

var contextFuncType = reflect.TypeOf(func(*Context) {})

// RegisterType registers every exported method of v with the signature
// func(*Context). The method name, lower-cased, becomes the command name.
func (r *Registry) RegisterType(v interface{}) error {
	_, err := r.RegisterTypeWith(v, nil)
	return err
}

// RegisterTypeWith is RegisterType with a hook that may adjust each command
// before it is stored. It returns the names that were registered, which may
// be a prefix of the full set when an error stops it.
func (r *Registry) RegisterTypeWith(v interface{}, prepare func(*Command)) ([]string, error) {
	if v == nil {
		return nil, ErrNoHandler
	}
	var metas map[string]Meta
	if s, ok := v.(Describer); ok {
		metas = s.CommandMeta()
	}

	val := reflect.ValueOf(v)
	typ := val.Type()
	var names []string
	for i := 0; i < typ.NumMethod(); i++ {
		method := val.Method(i)
		if method.Type() != contextFuncType {
			continue
		}
		name := strings.ToLower(typ.Method(i).Name)
		cmd := Command{Name: name, ArgsLength: AnyArgs}
		if meta, ok := metas[name]; ok {
			cmd.Usage = meta.Usage
			cmd.ArgsLength = meta.ArgsLength
		}
		cmd.Callback = method.Interface().(func(*Context))
		if prepare != nil {
			prepare(&cmd)
		}
		if err := r.Register(cmd); err != nil {
			return names, err
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%T has no func(*command.Context) methods", v)
	}
	return names, nil
}

// Lookup finds a command by name, ignoring case.
func (r *Registry) Lookup(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[strings.ToLower(name)]
	return cmd, ok
}

// Unregister removes a command. It reports whether anything was removed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	name = strings.ToLower(name)
	if _, ok := r.commands[name]; !ok {
		return false
	}
	delete(r.commands, name)
	return true
}

// List returns all registered commands sorted by name.
func (r *Registry) List() []Command {
	r.mu.RLock()
	out := make([]Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, *cmd)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
