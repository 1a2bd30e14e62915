package console

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/skeldgo/skeld/internal/chat"
	"github.com/skeldgo/skeld/internal/config"
	"github.com/skeldgo/skeld/internal/locale"
	"github.com/skeldgo/skeld/internal/plugin"
	"github.com/skeldgo/skeld/internal/protocol"
	"github.com/skeldgo/skeld/internal/relay"
)

// startServer runs a relay server on an ephemeral port so Submit has a live
// event loop.
func startServer(t *testing.T) (*relay.Server, *plugin.Registry) {
	t.Helper()
	cfg := config.DefaultServer()
	cfg.Socket.Port = 0
	registry := plugin.NewRegistry(nil)
	s, err := relay.New(&cfg, locale.Default{}, registry, chat.NewTable())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		if err := s.Run(ctx); err != nil {
			t.Errorf("server run: %v", err)
		}
	}()
	return s, registry
}

func runConsole(t *testing.T, s *relay.Server, registry *plugin.Registry, cfg config.Console, input string) string {
	t.Helper()
	var out bytes.Buffer
	c := New(s, registry, cfg, strings.NewReader(input), &out)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Run(ctx))
	return out.String()
}

func TestListEmpty(t *testing.T) {
	s, registry := startServer(t)
	out := runConsole(t, s, registry, config.Console{}, "list clients\nlist rooms\n")
	assert.Contains(t, out, "0 client(s)")
	assert.Contains(t, out, "0 room(s)")
}

func TestUnknownCommand(t *testing.T) {
	s, registry := startServer(t)
	out := runConsole(t, s, registry, config.Console{}, "frobnicate\n")
	assert.Contains(t, out, "unknown command: frobnicate")
}

func TestPasswordGate(t *testing.T) {
	s, registry := startServer(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	cfg := config.Console{PasswordHash: string(hash)}

	out := runConsole(t, s, registry, cfg, "wrong\nhunter2\nmem\n")
	assert.Contains(t, out, "wrong password")
	assert.Contains(t, out, "ok")
	assert.Contains(t, out, "goroutines=")
}

func TestPasswordRequiredBeforeCommands(t *testing.T) {
	s, registry := startServer(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	cfg := config.Console{PasswordHash: string(hash)}

	// Commands typed before authenticating are treated as password attempts.
	out := runConsole(t, s, registry, cfg, "list clients\n")
	assert.Contains(t, out, "wrong password")
	assert.NotContains(t, out, "client(s)")
}

func TestPluginLoadUnloadList(t *testing.T) {
	s, registry := startServer(t)
	require.NoError(t, registry.Register(&plugin.Plugin{
		ID:      "gg.example.plugin",
		Version: "1.2.0",
		Side:    protocol.ModSideBoth,
	}))

	out := runConsole(t, s, registry, config.Console{},
		"list plugins\nunload gg.example.plugin\nlist plugins\nunload gg.example.plugin\n")
	assert.Contains(t, out, "gg.example.plugin 1.2.0")
	assert.Contains(t, out, "unloaded gg.example.plugin")
	assert.Contains(t, out, "not loaded")
}

func TestDestroyMissingRoom(t *testing.T) {
	s, registry := startServer(t)
	out := runConsole(t, s, registry, config.Console{}, "destroy QQQQQQ\n")
	assert.Contains(t, out, "no room QQQQQQ")
}

func TestMem(t *testing.T) {
	s, registry := startServer(t)
	out := runConsole(t, s, registry, config.Console{}, "mem\n")
	assert.Contains(t, out, "alloc=")
	assert.Contains(t, out, "gc=")
}
