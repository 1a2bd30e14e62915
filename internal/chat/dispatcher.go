package chat

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// Caller identifies the player that typed the command.
type Caller interface {
	ClientID() uint32
	Username() string
}

// Context carries the command invocation: the room it happened in, the
// caller, and the original message. Reply sends a chat line to the caller
// only, marked so the client renders it apart from normal chat.
type Context struct {
	RoomCode string
	Caller   Caller
	Message  string

	reply func(text string) error
}

// NewContext builds an invocation context. reply is the caller-only chat
// channel provided by the relay.
func NewContext(roomCode string, caller Caller, message string, reply func(string) error) *Context {
	return &Context{RoomCode: roomCode, Caller: caller, Message: message, reply: reply}
}

// Reply sends text to the caller on the command reply channel.
func (c *Context) Reply(text string) error {
	if c.reply == nil {
		return nil
	}
	return c.reply(text)
}

// CallError is a user-facing command failure: it is relayed as a chat reply
// to the caller instead of being logged as a server error.
type CallError struct {
	msg string
}

func (e *CallError) Error() string { return e.msg }

// Callf builds a user-facing command error.
func Callf(format string, args ...any) error {
	return &CallError{msg: fmt.Sprintf(format, args...)}
}

// Table is the registered command table. Commands are registered at startup
// and read-only afterwards.
type Table struct {
	mu       sync.RWMutex
	commands map[string]*Command
}

// NewTable creates a command table with the built-in help command.
func NewTable() *Table {
	t := &Table{commands: make(map[string]*Command, 16)}
	// Built-in: help [command]
	if err := t.Register("help [command]", "Lists commands, or details one", t.handleHelp); err != nil {
		panic(fmt.Sprintf("registering builtin help: %v", err))
	}
	return t
}

// Register parses the usage string and adds the command.
func (t *Table) Register(usage, description string, handler Handler) error {
	name, params, err := ParseUsage(usage)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.commands[name]; ok {
		return fmt.Errorf("command %q already registered", name)
	}
	t.commands[name] = &Command{
		Name:        name,
		Params:      params,
		Description: description,
		Handler:     handler,
	}
	return nil
}

// Lookup returns the named command, or nil.
func (t *Table) Lookup(name string) *Command {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.commands[name]
}

// Names returns registered command names, sorted.
func (t *Table) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	names := make([]string, 0, len(t.commands))
	for name := range t.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch tokenizes line (without the "/" prefix), binds parameters, and
// invokes the handler. User-facing failures go back on ctx.Reply; anything
// else is logged and swallowed.
func (t *Table) Dispatch(ctx *Context, line string) {
	tokens := Tokenize(line)
	if len(tokens) == 0 {
		return
	}

	cmd := t.Lookup(tokens[0])
	if cmd == nil {
		if err := ctx.Reply("No command with name: " + tokens[0]); err != nil {
			slog.Warn("command reply failed", "error", err)
		}
		return
	}

	args, ok := bindParams(cmd, tokens[1:])
	if !ok {
		if err := ctx.Reply(usageReply(cmd)); err != nil {
			slog.Warn("command reply failed", "error", err)
		}
		return
	}

	if err := cmd.Handler(ctx, args); err != nil {
		var callErr *CallError
		if errors.As(err, &callErr) {
			if rerr := ctx.Reply(callErr.Error()); rerr != nil {
				slog.Warn("command reply failed", "command", cmd.Name, "error", rerr)
			}
			return
		}
		caller := "?"
		if ctx.Caller != nil {
			caller = ctx.Caller.Username()
		}
		slog.Error("chat command failed",
			"command", cmd.Name,
			"caller", caller,
			"room", ctx.RoomCode,
			"error", err)
	}
}

// bindParams binds tokens to parameters in order. Returns ok=false when a
// required parameter has no token.
func bindParams(cmd *Command, tokens []string) (map[string]string, bool) {
	args := make(map[string]string, len(cmd.Params))
	for i, p := range cmd.Params {
		if i >= len(tokens) {
			if p.Required {
				return nil, false
			}
			continue
		}
		if p.Rest {
			args[p.Name] = strings.Join(tokens[i:], " ")
			return args, true
		}
		args[p.Name] = tokens[i]
	}
	return args, true
}

func usageReply(cmd *Command) string {
	return fmt.Sprintf("Usage: /%s — %s", cmd.RenderUsage(), cmd.Description)
}

// handleHelp implements the built-in help command.
func (t *Table) handleHelp(ctx *Context, args map[string]string) error {
	if name, ok := args["command"]; ok {
		cmd := t.Lookup(name)
		if cmd == nil {
			return Callf("No command with name: %s", name)
		}
		return ctx.Reply(usageReply(cmd))
	}

	var sb strings.Builder
	sb.WriteString("Commands:")
	for _, name := range t.Names() {
		cmd := t.Lookup(name)
		sb.WriteString(fmt.Sprintf("\n/%s — %s", cmd.RenderUsage(), cmd.Description))
	}
	return ctx.Reply(sb.String())
}
