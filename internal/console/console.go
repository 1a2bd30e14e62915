// Package console is the interactive operator surface. It reads commands
// from a line-oriented stream (stdin in production) and reaches into the
// relay through Server.Submit, so every inspection and mutation runs on the
// server's event loop.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/skeldgo/skeld/internal/chat"
	"github.com/skeldgo/skeld/internal/config"
	"github.com/skeldgo/skeld/internal/plugin"
	"github.com/skeldgo/skeld/internal/protocol"
	"github.com/skeldgo/skeld/internal/relay"
)

// Console drives the operator command loop.
type Console struct {
	server  *relay.Server
	plugins plugin.Host
	cfg     config.Console

	in  io.Reader
	out io.Writer
}

// New builds a console over the given streams.
func New(server *relay.Server, plugins plugin.Host, cfg config.Console, in io.Reader, out io.Writer) *Console {
	return &Console{
		server:  server,
		plugins: plugins,
		cfg:     cfg,
		in:      in,
		out:     out,
	}
}

// Run reads and executes commands until the input closes or ctx is done.
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	authed := c.cfg.PasswordHash == ""
	if !authed {
		c.printf("password: ")
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if !authed {
				if err := bcrypt.CompareHashAndPassword([]byte(c.cfg.PasswordHash), []byte(strings.TrimSpace(line))); err != nil {
					c.printf("wrong password\npassword: ")
					continue
				}
				authed = true
				c.printf("ok\n")
				continue
			}
			c.execute(line)
		}
	}
}

func (c *Console) printf(format string, args ...any) {
	if _, err := fmt.Fprintf(c.out, format, args...); err != nil {
		slog.Warn("console write failed", "error", err)
	}
}

// execute runs one command line.
func (c *Console) execute(line string) {
	tokens := chat.Tokenize(line)
	if len(tokens) == 0 {
		return
	}
	args := tokens[1:]

	switch tokens[0] {
	case "dc":
		c.cmdDisconnect(args)
	case "destroy":
		c.cmdDestroy(args)
	case "load":
		c.cmdLoad(args)
	case "unload":
		c.cmdUnload(args)
	case "list":
		c.cmdList(args)
	case "broadcast":
		c.cmdBroadcast(args)
	case "mem":
		c.cmdMem()
	case "help":
		c.printf("commands: dc, destroy, load, unload, list, broadcast, mem\n")
	default:
		c.printf("unknown command: %s\n", tokens[0])
	}
}

// flagValues splits "--name value" pairs out of args; bare tokens stay in
// rest.
func flagValues(args []string) (flags map[string]string, rest []string) {
	flags = make(map[string]string)
	for i := 0; i < len(args); i++ {
		if !strings.HasPrefix(args[i], "--") {
			rest = append(rest, args[i])
			continue
		}
		name := strings.TrimPrefix(args[i], "--")
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
			flags[name] = args[i+1]
			i++
		} else {
			flags[name] = ""
		}
	}
	return flags, rest
}

// cmdDisconnect: dc --clientid N | --username X | --address A | --room CODE
// [--reason text] [--ban]
func (c *Console) cmdDisconnect(args []string) {
	flags, _ := flagValues(args)
	if len(flags) == 0 {
		c.printf("usage: dc --clientid N | --username X | --address A | --room CODE [--reason text] [--ban]\n")
		return
	}
	reasonText := flags["reason"]
	_, ban := flags["ban"]

	matches := func(conn *relay.Connection) bool {
		if v, ok := flags["clientid"]; ok {
			id, err := strconv.ParseUint(v, 10, 32)
			if err != nil || conn.ClientID() != uint32(id) {
				return false
			}
		}
		if v, ok := flags["username"]; ok && conn.Username() != v {
			return false
		}
		if v, ok := flags["address"]; ok && !strings.HasPrefix(conn.Addr().String(), v) {
			return false
		}
		if v, ok := flags["room"]; ok {
			code, err := protocol.CodeFromString(v)
			if err != nil || conn.Room() == nil || conn.Room().Code() != code {
				return false
			}
		}
		return true
	}

	var count int
	c.server.Submit(func() {
		var targets []*relay.Connection
		c.server.ForEachConnection(func(conn *relay.Connection) bool {
			if matches(conn) {
				targets = append(targets, conn)
			}
			return true
		})
		for _, conn := range targets {
			if ban && conn.Room() != nil {
				conn.Room().Kick(conn.ClientID(), true, time.Now())
				count++
				continue
			}
			reason := protocol.ReasonExitGame
			if reasonText != "" {
				reason = protocol.ReasonCustom
			}
			c.server.Disconnect(conn, reason, reasonText)
			count++
		}
	})
	c.printf("disconnected %d client(s)\n", count)
}

// cmdDestroy: destroy <code> [--reason text]
func (c *Console) cmdDestroy(args []string) {
	flags, rest := flagValues(args)
	if len(rest) != 1 {
		c.printf("usage: destroy <code> [--reason text]\n")
		return
	}
	code, err := protocol.CodeFromString(rest[0])
	if err != nil {
		c.printf("%v\n", err)
		return
	}
	_ = flags["reason"] // reasons other than Destroy are not on the wire

	var found bool
	c.server.Submit(func() {
		if room := c.server.RoomByCode(code); room != nil {
			c.server.DestroyRoom(room, protocol.ReasonDestroy)
			found = true
		}
	})
	if !found {
		c.printf("no room %s\n", code)
		return
	}
	c.printf("room %s destroyed\n", code)
}

func (c *Console) cmdLoad(args []string) {
	if len(args) != 1 {
		c.printf("usage: load <path>\n")
		return
	}
	p, err := c.plugins.Load(args[0])
	if err != nil {
		c.printf("%v\n", err)
		return
	}
	c.printf("loaded %s %s\n", p.ID, p.Version)
}

func (c *Console) cmdUnload(args []string) {
	if len(args) != 1 {
		c.printf("usage: unload <plugin-id>\n")
		return
	}
	if err := c.plugins.Unload(args[0]); err != nil {
		c.printf("%v\n", err)
		return
	}
	c.printf("unloaded %s\n", args[0])
}

// cmdList: list clients|rooms|plugins|mods <id>|players <code>|pov <code>
func (c *Console) cmdList(args []string) {
	if len(args) == 0 {
		c.printf("usage: list clients|rooms|plugins|mods <id>|players <code>|pov <code>\n")
		return
	}
	switch args[0] {
	case "clients":
		c.listClients()
	case "rooms":
		c.listRooms()
	case "plugins":
		for _, p := range c.plugins.Plugins() {
			c.printf("%s %s side=%s path=%s\n", p.ID, p.Version, p.Side, p.Path)
		}
	case "mods":
		if len(args) != 2 {
			c.printf("usage: list mods <clientid>\n")
			return
		}
		c.listMods(args[1])
	case "players":
		if len(args) != 2 {
			c.printf("usage: list players <code>\n")
			return
		}
		c.listPlayers(args[1])
	case "pov":
		if len(args) != 2 {
			c.printf("usage: list pov <code>\n")
			return
		}
		c.listPerspectives(args[1])
	default:
		c.printf("unknown list target: %s\n", args[0])
	}
}

func (c *Console) listClients() {
	type row struct {
		id       uint32
		username string
		addr     string
		room     string
		state    string
		rtt      string
	}
	var rows []row
	c.server.Submit(func() {
		c.server.ForEachConnection(func(conn *relay.Connection) bool {
			r := row{
				id:       conn.ClientID(),
				username: conn.Username(),
				addr:     conn.Addr().String(),
				state:    conn.State().String(),
				rtt:      conn.RTT().String(),
			}
			if room := conn.Room(); room != nil {
				r.room = room.Code().String()
			}
			rows = append(rows, r)
			return true
		})
	})
	for _, r := range rows {
		c.printf("%d\t%s\t%s\troom=%s\tstate=%s\trtt=%s\n",
			r.id, r.username, r.addr, r.room, r.state, r.rtt)
	}
	c.printf("%d client(s)\n", len(rows))
}

func (c *Console) listRooms() {
	type row struct {
		code    string
		state   string
		members int
		public  bool
	}
	var rows []row
	c.server.Submit(func() {
		c.server.ForEachRoom(func(room *relay.Room) bool {
			rows = append(rows, row{
				code:    room.Code().String(),
				state:   room.State().String(),
				members: room.MemberCount(),
				public:  room.Public(),
			})
			return true
		})
	})
	for _, r := range rows {
		c.printf("%s\t%s\tmembers=%d\tpublic=%t\n", r.code, r.state, r.members, r.public)
	}
	c.printf("%d room(s)\n", len(rows))
}

func (c *Console) listMods(clientID string) {
	id, err := strconv.ParseUint(clientID, 10, 32)
	if err != nil {
		c.printf("bad client id %q\n", clientID)
		return
	}
	var lines []string
	c.server.Submit(func() {
		c.server.ForEachConnection(func(conn *relay.Connection) bool {
			if conn.ClientID() != uint32(id) {
				return true
			}
			for _, d := range conn.Mods() {
				lines = append(lines, fmt.Sprintf("%s %s side=%s", d.ModID, d.Version, d.Side))
			}
			return false
		})
	})
	for _, line := range lines {
		c.printf("%s\n", line)
	}
	c.printf("%d mod(s)\n", len(lines))
}

func (c *Console) listPlayers(code string) {
	gc, err := protocol.CodeFromString(code)
	if err != nil {
		c.printf("%v\n", err)
		return
	}
	var lines []string
	c.server.Submit(func() {
		room := c.server.RoomByCode(gc)
		if room == nil {
			return
		}
		hostID := room.HostID()
		for _, member := range room.Members() {
			marker := ""
			if member.ClientID() == hostID {
				marker = " (host)"
			}
			lines = append(lines, fmt.Sprintf("%d\t%s%s", member.ClientID(), member.Username(), marker))
		}
	})
	for _, line := range lines {
		c.printf("%s\n", line)
	}
	c.printf("%d player(s)\n", len(lines))
}

func (c *Console) listPerspectives(code string) {
	gc, err := protocol.CodeFromString(code)
	if err != nil {
		c.printf("%v\n", err)
		return
	}
	var lines []string
	c.server.Submit(func() {
		room := c.server.RoomByCode(gc)
		if room == nil {
			return
		}
		for i, p := range room.Perspectives() {
			lines = append(lines, fmt.Sprintf("pov %d: players=%v", i, p.Players()))
		}
	})
	for _, line := range lines {
		c.printf("%s\n", line)
	}
	c.printf("%d perspective(s)\n", len(lines))
}

// cmdBroadcast: broadcast <text> [--room <code>]
func (c *Console) cmdBroadcast(args []string) {
	flags, rest := flagValues(args)
	if len(rest) == 0 {
		c.printf("usage: broadcast <text> [--room <code>]\n")
		return
	}
	text := strings.Join(rest, " ")

	var missing bool
	c.server.Submit(func() {
		var room *relay.Room
		if v, ok := flags["room"]; ok {
			code, err := protocol.CodeFromString(v)
			if err != nil {
				missing = true
				return
			}
			room = c.server.RoomByCode(code)
			if room == nil {
				missing = true
				return
			}
		}
		c.server.BroadcastServerChat(text, room)
	})
	if missing {
		c.printf("no such room\n")
		return
	}
	c.printf("sent\n")
}

// cmdMem prints a runtime memory snapshot.
func (c *Console) cmdMem() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	c.printf("alloc=%s sys=%s heapObjects=%d gc=%d goroutines=%d\n",
		byteSize(ms.Alloc), byteSize(ms.Sys), ms.HeapObjects, ms.NumGC, runtime.NumGoroutine())
}

func byteSize(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
