package relay

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/skeldgo/skeld/internal/protocol"
)

// RoomManager owns all rooms keyed by game code and schedules the
// empty-room sweep. Mutated only from the event loop.
type RoomManager struct {
	server *Server
	scheme protocol.CodeScheme

	byCode map[protocol.GameCode]*Room

	// emptySince records when a room last lost its final member; swept once
	// the configured grace period passes. Zero grace destroys immediately.
	emptySince map[protocol.GameCode]time.Time
	grace      time.Duration
}

// NewRoomManager creates an empty room registry.
func NewRoomManager(server *Server, scheme protocol.CodeScheme, grace time.Duration) *RoomManager {
	return &RoomManager{
		server:     server,
		scheme:     scheme,
		byCode:     make(map[protocol.GameCode]*Room, 64),
		emptySince: make(map[protocol.GameCode]time.Time, 8),
		grace:      grace,
	}
}

// Get returns the room for the code, or nil.
func (rm *RoomManager) Get(code protocol.GameCode) *Room {
	return rm.byCode[code]
}

// Count returns the number of live rooms.
func (rm *RoomManager) Count() int {
	return len(rm.byCode)
}

// ForEach iterates over all rooms. If fn returns false, iteration stops.
func (rm *RoomManager) ForEach(fn func(*Room) bool) {
	for _, r := range rm.byCode {
		if !fn(r) {
			return
		}
	}
}

// Generate draws a fresh unused code for the manager's scheme.
func (rm *RoomManager) Generate() protocol.GameCode {
	for {
		code := protocol.RandomCode(rm.scheme)
		if _, used := rm.byCode[code]; !used {
			return code
		}
	}
}

// Create constructs a room under the given code in the NotStarted state.
// Fails when the code is already in use.
func (rm *RoomManager) Create(code protocol.GameCode, settings *protocol.GameSettings, now time.Time) (*Room, error) {
	if _, used := rm.byCode[code]; used {
		return nil, fmt.Errorf("room code %s already in use", code)
	}
	r := newRoom(rm.server, code, settings, now)
	rm.byCode[code] = r
	slog.Info("room created",
		"room", code,
		"maxPlayers", settings.MaxPlayers,
		"map", settings.MapID)
	return r, nil
}

func (rm *RoomManager) remove(code protocol.GameCode) {
	delete(rm.byCode, code)
	delete(rm.emptySince, code)
}

// scheduleSweep marks a now-empty room for destruction after the grace
// period; with no grace configured it is destroyed on the spot.
func (rm *RoomManager) scheduleSweep(r *Room, now time.Time) {
	if rm.grace <= 0 {
		r.Destroy(protocol.ReasonDestroy, now)
		return
	}
	rm.emptySince[r.code] = now
}

// sweep destroys rooms that stayed empty through the grace period and
// clears marks on rooms that gained members again. Runs on the shared
// reliability ticker.
func (rm *RoomManager) sweep(now time.Time) {
	for code, since := range rm.emptySince {
		r := rm.byCode[code]
		if r == nil {
			delete(rm.emptySince, code)
			continue
		}
		if len(r.members) > 0 {
			delete(rm.emptySince, code)
			continue
		}
		if now.Sub(since) >= rm.grace {
			r.Destroy(protocol.ReasonDestroy, now)
		}
	}
}
