// Package relay implements the room-relay engine: the reliability layer over
// UDP, the connection and room registries, the mod-handshake state machine,
// and the root-message handlers.
//
// The engine is single-threaded: datagrams, timer ticks, and operator
// commands all serialize onto one event loop, so the types in this package
// carry no locks. Anything outside the loop reaches in via Server.Submit.
package relay

import "net"

// HandshakeState tracks the per-connection handshake progression.
type HandshakeState int32

const (
	// StateNew: no valid hello yet; everything but a hello is ignored.
	StateNew HandshakeState = iota
	// StateModsAwaited: modded hello accepted, mod declarations pending.
	StateModsAwaited
	// StateReady: handshake complete, gameplay messages accepted.
	StateReady
)

// String returns the state name for logging.
func (s HandshakeState) String() string {
	switch s {
	case StateNew:
		return "New"
	case StateModsAwaited:
		return "ModsAwaited"
	case StateReady:
		return "Ready"
	default:
		return "Unknown"
	}
}

// GameState tracks a room's lifecycle.
type GameState int

const (
	GameNotStarted GameState = iota
	GameStarted
	GameEnded
	GameDestroyed
)

// String returns the state name for logging.
func (s GameState) String() string {
	switch s {
	case GameNotStarted:
		return "NotStarted"
	case GameStarted:
		return "Started"
	case GameEnded:
		return "Ended"
	case GameDestroyed:
		return "Destroyed"
	default:
		return "Unknown"
	}
}

// PacketSink is where encoded datagrams go. *net.UDPConn satisfies it; tests
// substitute a capture sink.
type PacketSink interface {
	WriteToUDP(b []byte, addr *net.UDPAddr) (int, error)
}

// addrKey is the connection identity: "address:port".
func addrKey(addr *net.UDPAddr) string {
	return addr.String()
}
