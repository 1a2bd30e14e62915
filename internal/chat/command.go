// Package chat implements the "/"-prefixed chat command table: usage-string
// parsing, quote-aware tokenization, and dispatch with a per-caller reply
// channel.
package chat

import (
	"fmt"
	"strings"
)

// Param is one declared command parameter.
type Param struct {
	Name     string
	Required bool
	// Rest consumes all remaining tokens joined by single spaces.
	// A rest parameter must be last.
	Rest bool
}

// Command is one registered chat command.
type Command struct {
	Name        string
	Params      []Param
	Description string
	Handler     Handler
}

// Handler executes a command with tokens bound to parameters by name.
type Handler func(ctx *Context, args map[string]string) error

// ParseUsage parses a usage string like "kick <name> [reason...]" into the
// command name and parameter list. `<x>` is required, `[x]` optional, and a
// trailing `...` marks a rest parameter.
func ParseUsage(usage string) (string, []Param, error) {
	fields := strings.Fields(usage)
	if len(fields) == 0 {
		return "", nil, fmt.Errorf("empty usage string")
	}

	name := fields[0]
	if strings.ContainsAny(name, "<>[]") {
		return "", nil, fmt.Errorf("usage %q: command name must come before parameters", usage)
	}

	var params []Param
	seenOptional := false
	for _, f := range fields[1:] {
		var p Param
		switch {
		case strings.HasPrefix(f, "<") && strings.HasSuffix(f, ">"):
			p = Param{Name: f[1 : len(f)-1], Required: true}
		case strings.HasPrefix(f, "[") && strings.HasSuffix(f, "]"):
			p = Param{Name: f[1 : len(f)-1]}
		default:
			return "", nil, fmt.Errorf("usage %q: parameter %q must be <required> or [optional]", usage, f)
		}
		if strings.HasSuffix(p.Name, "...") {
			p.Name = strings.TrimSuffix(p.Name, "...")
			p.Rest = true
		}
		if p.Name == "" {
			return "", nil, fmt.Errorf("usage %q: empty parameter name", usage)
		}
		if len(params) > 0 && params[len(params)-1].Rest {
			return "", nil, fmt.Errorf("usage %q: rest parameter must be last", usage)
		}
		if p.Required && seenOptional {
			return "", nil, fmt.Errorf("usage %q: required parameter %q follows an optional one", usage, p.Name)
		}
		if !p.Required {
			seenOptional = true
		}
		params = append(params, p)
	}
	return name, params, nil
}

// RenderUsage reconstructs the usage string from the parameter list.
func (c *Command) RenderUsage() string {
	var sb strings.Builder
	sb.WriteString(c.Name)
	for _, p := range c.Params {
		sb.WriteByte(' ')
		name := p.Name
		if p.Rest {
			name += "..."
		}
		if p.Required {
			sb.WriteString("<" + name + ">")
		} else {
			sb.WriteString("[" + name + "]")
		}
	}
	return sb.String()
}

// Tokenize splits a command line into tokens. Single quotes toggle
// inside-string mode; outside a string, ASCII space separates tokens and
// the quotes themselves are stripped. Empty trailing tokens are discarded.
func Tokenize(line string) []string {
	var tokens []string
	var cur strings.Builder
	inString := false
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\'':
			inString = !inString
		case ' ':
			if inString {
				cur.WriteByte(' ')
			} else {
				flush()
			}
		default:
			cur.WriteByte(line[i])
		}
	}
	flush()
	return tokens
}
