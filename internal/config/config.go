package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Server holds all configuration for the relay server.
type Server struct {
	// ClusterID tags this process in logs and listings; the server is a
	// single node, the tag only names it.
	ClusterID string `yaml:"cluster_id"`

	LogLevel string `yaml:"log_level"`

	Socket        Socket        `yaml:"socket"`
	Versions      []string      `yaml:"versions"`
	Rooms         Rooms         `yaml:"rooms"`
	Reactor       Reactor       `yaml:"reactor"`
	Optimizations Optimizations `yaml:"optimizations"`
	Console       Console       `yaml:"console"`
}

// Socket holds the UDP bind options.
type Socket struct {
	Port int `yaml:"port"`
	// AcceptUnknownGameData forwards opaque game-data children instead of
	// dropping them.
	AcceptUnknownGameData bool `yaml:"accept_unknown_game_data"`
	// MessageOrdering is reserved; parsed but unused.
	MessageOrdering bool `yaml:"message_ordering"`
}

// Rooms holds room-registry options.
type Rooms struct {
	// GameCodes selects the code scheme: "v1" (4 letters) or "v2" (6 letters).
	GameCodes string `yaml:"game_codes"`
	// ChatCommands enables the "/"-prefixed chat command dispatcher.
	ChatCommands bool `yaml:"chat_commands"`
	// ServerAsHost is reserved for server-authoritative lobbies.
	ServerAsHost bool `yaml:"server_as_host"`
	// CreateTimeout is the empty-room grace period in seconds.
	CreateTimeout int `yaml:"create_timeout"`
}

// Optimizations holds the relay tuning knobs.
type Optimizations struct {
	Movement            Movement `yaml:"movement"`
	DisablePerspectives bool     `yaml:"disable_perspectives"`
}

// Movement holds the movement-packet tuning knobs. Parsed for compatibility;
// only ReuseBuffer and UpdateRate affect the relay.
type Movement struct {
	ReuseBuffer  bool `yaml:"reuse_buffer"`
	UpdateRate   int  `yaml:"update_rate"`
	VisionChecks bool `yaml:"vision_checks"`
	DeadChecks   bool `yaml:"dead_checks"`
}

// Console holds the operator-surface options.
type Console struct {
	// PasswordHash, when set, is a bcrypt hash the operator must match
	// before the console accepts commands.
	PasswordHash string `yaml:"password_hash"`
}

// DefaultServer returns Server config with sensible defaults.
func DefaultServer() Server {
	return Server{
		ClusterID: "skeld",
		LogLevel:  "info",
		Socket: Socket{
			Port: 22023,
		},
		Versions: []string{"2021.6.30", "2021.11.9"},
		Rooms: Rooms{
			GameCodes:     "v2",
			ChatCommands:  true,
			CreateTimeout: 10,
		},
		Optimizations: Optimizations{
			Movement: Movement{
				ReuseBuffer: true,
				UpdateRate:  1,
			},
		},
	}
}

// LoadServer loads server config from a YAML file.
// If the file doesn't exist, returns defaults.
func LoadServer(path string) (Server, error) {
	cfg := DefaultServer()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate rejects option values the relay cannot serve.
func (s *Server) Validate() error {
	if s.Socket.Port < 0 || s.Socket.Port > 65535 {
		return fmt.Errorf("socket.port %d out of range", s.Socket.Port)
	}
	switch s.Rooms.GameCodes {
	case "", "v1", "v2":
	default:
		return fmt.Errorf("rooms.game_codes %q: must be v1 or v2", s.Rooms.GameCodes)
	}
	if s.Rooms.CreateTimeout < 0 {
		return fmt.Errorf("rooms.create_timeout must not be negative")
	}
	return nil
}
