package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "skeldserver.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadServer_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadServer(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 22023, cfg.Socket.Port)
	assert.Equal(t, "v2", cfg.Rooms.GameCodes)
	assert.False(t, cfg.Reactor.Enabled)
}

func TestLoadServer_Overrides(t *testing.T) {
	path := writeConfig(t, `
socket:
  port: 22123
  accept_unknown_game_data: true
rooms:
  game_codes: v1
  chat_commands: false
  create_timeout: 30
versions:
  - "2022.3.29"
`)
	cfg, err := LoadServer(path)
	require.NoError(t, err)
	assert.Equal(t, 22123, cfg.Socket.Port)
	assert.True(t, cfg.Socket.AcceptUnknownGameData)
	assert.Equal(t, "v1", cfg.Rooms.GameCodes)
	assert.False(t, cfg.Rooms.ChatCommands)
	assert.Equal(t, 30, cfg.Rooms.CreateTimeout)
	assert.Equal(t, []string{"2022.3.29"}, cfg.Versions)
}

func TestLoadServer_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad port", "socket:\n  port: 700000\n"},
		{"bad scheme", "rooms:\n  game_codes: v3\n"},
		{"negative timeout", "rooms:\n  create_timeout: -1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadServer(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestReactor_BoolForms(t *testing.T) {
	cfg, err := LoadServer(writeConfig(t, "reactor: true\n"))
	require.NoError(t, err)
	assert.True(t, cfg.Reactor.Enabled)
	assert.True(t, cfg.Reactor.AllowNormalClients)
	assert.True(t, cfg.Reactor.AllowExtraMods)

	cfg, err = LoadServer(writeConfig(t, "reactor: false\n"))
	require.NoError(t, err)
	assert.False(t, cfg.Reactor.Enabled)
}

func TestReactor_ObjectForm(t *testing.T) {
	cfg, err := LoadServer(writeConfig(t, `
reactor:
  allow_normal_clients: false
  require_host_mods: true
  allow_extra_mods: false
  mods:
    gg.example.required: true
    gg.example.banned: false
    gg.example.pinned:
      version: ">=1.2.0 <2.0.0"
    gg.example.extra:
      optional: true
`))
	require.NoError(t, err)

	r := cfg.Reactor
	assert.True(t, r.Enabled, "object form implies enabled")
	assert.False(t, r.AllowNormalClients)
	assert.True(t, r.RequireHostMods)
	assert.False(t, r.AllowExtraMods)

	require.Len(t, r.Mods, 4)
	assert.False(t, r.Mods["gg.example.required"].Banned)
	assert.True(t, r.Mods["gg.example.banned"].Banned)
	assert.Equal(t, ">=1.2.0 <2.0.0", r.Mods["gg.example.pinned"].Version)
	assert.True(t, r.Mods["gg.example.extra"].Optional)
}
