package relay

import (
	"log/slog"
	"time"

	"github.com/skeldgo/skeld/internal/protocol"
)

// Room is one game session: membership, settings, ban set, and the
// broadcast fan-out. The room holds back-references to connections; it owns
// its member list but never the connections themselves.
type Room struct {
	server *Server

	code      protocol.GameCode
	createdAt time.Time
	state     GameState
	settings  *protocol.GameSettings
	public    bool

	hostID  uint32
	members map[uint32]*Connection
	bans    map[string]struct{} // banned remote IPs

	// waitingForHost holds members that rejoined after a game ended, parked
	// until the host is back.
	waitingForHost map[uint32]struct{}

	perspectives []*Perspective

	// transformNetIDs tracks the network-transform components announced by
	// player spawns; Data messages against them are movement and relay
	// unreliably.
	transformNetIDs map[uint32]struct{}
	moveCounters    map[uint32]int
}

func newRoom(server *Server, code protocol.GameCode, settings *protocol.GameSettings, now time.Time) *Room {
	return &Room{
		server:          server,
		code:            code,
		createdAt:       now,
		state:           GameNotStarted,
		settings:        settings,
		public:          false,
		members:         make(map[uint32]*Connection, 16),
		bans:            make(map[string]struct{}, 4),
		waitingForHost:  make(map[uint32]struct{}, 4),
		transformNetIDs: make(map[uint32]struct{}, 16),
		moveCounters:    make(map[uint32]int, 16),
	}
}

// Code returns the room code.
func (r *Room) Code() protocol.GameCode { return r.code }

// State returns the room lifecycle state.
func (r *Room) State() GameState { return r.state }

// Settings returns the game-settings blob.
func (r *Room) Settings() *protocol.GameSettings { return r.settings }

// HostID returns the current host's client-id (zero when empty).
func (r *Room) HostID() uint32 { return r.hostID }

// Host returns the current host connection, or nil.
func (r *Room) Host() *Connection { return r.members[r.hostID] }

// MemberCount returns the number of attached members.
func (r *Room) MemberCount() int { return len(r.members) }

// Public reports whether the host has made the room public.
func (r *Room) Public() bool { return r.public }

// Members returns the member connections in client-id order.
func (r *Room) Members() []*Connection {
	out := make([]*Connection, 0, len(r.members))
	for _, id := range r.memberIDs() {
		out = append(out, r.members[id])
	}
	return out
}

// Perspectives returns the room's active sub-views.
func (r *Room) Perspectives() []*Perspective { return r.perspectives }

// Age returns seconds since creation.
func (r *Room) Age(now time.Time) uint32 {
	return uint32(now.Sub(r.createdAt) / time.Second)
}

// memberIDs returns member client-ids in insertion-independent sorted order.
func (r *Room) memberIDs() []uint32 {
	ids := make([]uint32, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j] < ids[j-1]; j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	return ids
}

// HandleRemoteJoin admits conn into the room, or sends a JoinError without
// touching room state. On success every existing member learns about the
// joiner and the joiner receives the full member list.
func (r *Room) HandleRemoteJoin(conn *Connection, now time.Time) {
	_, rejoining := r.members[conn.id]

	var reason protocol.DisconnectReason = 0
	switch {
	case r.state == GameDestroyed:
		reason = protocol.ReasonGameNotFound
	case r.isBanned(conn):
		reason = protocol.ReasonBanned
	case !rejoining && len(r.members) >= int(r.settings.MaxPlayers):
		reason = protocol.ReasonGameFull
	case r.state == GameStarted:
		reason = protocol.ReasonGameStarted
	}
	if reason != 0 {
		slog.Debug("join refused",
			"room", r.code,
			"client", conn.id,
			"reason", reason)
		if err := conn.sendReliable([]*protocol.Message{protocol.BuildJoinError(reason, "")}, now); err != nil {
			slog.Warn("sending join error", "client", conn.id, "error", err)
		}
		return
	}

	for _, hook := range r.server.joinHooks {
		if cancel, hookReason := hook.OnJoin(conn, r); cancel {
			if err := conn.sendReliable([]*protocol.Message{protocol.BuildJoinError(protocol.ReasonCustom, hookReason)}, now); err != nil {
				slog.Warn("sending join error", "client", conn.id, "error", err)
			}
			return
		}
	}

	conn.room = r
	r.members[conn.id] = conn
	if r.hostID == 0 {
		r.hostID = conn.id
	}

	// Rejoin after an ended game: only the host's return resumes the lobby.
	// Everyone else is parked until then.
	if r.state == GameEnded && conn.id != r.hostID {
		r.waitingForHost[conn.id] = struct{}{}
		r.broadcastRoot([]*protocol.Message{
			protocol.BuildJoinBroadcast(r.code, conn.id, r.hostID),
		}, map[uint32]bool{conn.id: true}, now)
		if err := conn.sendReliable([]*protocol.Message{
			protocol.BuildWaitForHost(r.code, conn.id),
		}, now); err != nil {
			slog.Warn("sending wait for host", "client", conn.id, "error", err)
		}
		slog.Info("client waiting for host",
			"room", r.code,
			"client", conn.id,
			"waiting", len(r.waitingForHost))
		return
	}

	if r.state == GameEnded {
		r.state = GameNotStarted
	}

	// Existing members learn about the joiner.
	r.broadcastRoot([]*protocol.Message{
		protocol.BuildJoinBroadcast(r.code, conn.id, r.hostID),
	}, map[uint32]bool{conn.id: true}, now)

	r.sendJoinedGame(conn, now)

	slog.Info("client joined room",
		"room", r.code,
		"client", conn.id,
		"username", conn.username,
		"members", len(r.members))

	// The host is back: complete the parked joins.
	if len(r.waitingForHost) > 0 {
		for _, id := range r.memberIDs() {
			if _, waiting := r.waitingForHost[id]; !waiting {
				continue
			}
			delete(r.waitingForHost, id)
			r.sendJoinedGame(r.members[id], now)
		}
		r.waitingForHost = make(map[uint32]struct{}, 4)
	}
}

// sendJoinedGame sends conn the full member list for its own join.
func (r *Room) sendJoinedGame(conn *Connection, now time.Time) {
	others := make([]uint32, 0, len(r.members)-1)
	for _, id := range r.memberIDs() {
		if id != conn.id {
			others = append(others, id)
		}
	}
	if err := conn.sendReliable([]*protocol.Message{
		protocol.BuildJoinedGame(r.code, conn.id, r.hostID, others),
	}, now); err != nil {
		slog.Warn("sending joined game", "client", conn.id, "error", err)
	}
}

// RemoveMember detaches conn. If the host leaves while members remain, the
// lowest client-id among them becomes the new host. An empty room is
// destroyed after the configured grace period (immediately when zero).
func (r *Room) RemoveMember(conn *Connection, reason protocol.DisconnectReason, now time.Time) {
	if _, ok := r.members[conn.id]; !ok {
		return
	}
	delete(r.members, conn.id)
	delete(r.waitingForHost, conn.id)
	conn.room = nil
	if conn.perspective != nil {
		conn.perspective.removePlayer(conn)
		conn.perspective = nil
	}

	if r.hostID == conn.id {
		r.hostID = 0
		if ids := r.memberIDs(); len(ids) > 0 {
			r.hostID = ids[0]
		}
	}

	r.broadcastRoot([]*protocol.Message{
		protocol.BuildRemovePlayer(r.code, conn.id, r.hostID, reason),
	}, nil, now)

	slog.Info("client left room",
		"room", r.code,
		"client", conn.id,
		"remaining", len(r.members))

	if len(r.members) == 0 && r.state != GameDestroyed {
		r.server.rooms.scheduleSweep(r, now)
	}
}

// Kick removes the named member by host order, honoring the ban flag.
func (r *Room) Kick(target uint32, ban bool, now time.Time) {
	conn, ok := r.members[target]
	if !ok {
		return
	}
	if ban {
		r.bans[conn.addr.IP.String()] = struct{}{}
	}
	r.broadcastRoot([]*protocol.Message{
		protocol.BuildKickPlayer(r.code, target, ban),
	}, nil, now)

	reason := protocol.ReasonKicked
	if ban {
		reason = protocol.ReasonBanned
	}
	r.server.disconnect(conn, reason, "")
}

// Destroy detaches all members and marks the room destroyed.
func (r *Room) Destroy(reason protocol.DisconnectReason, now time.Time) {
	if r.state == GameDestroyed {
		return
	}
	r.broadcastRoot([]*protocol.Message{protocol.BuildRemoveGame(reason)}, nil, now)
	for _, conn := range r.members {
		conn.room = nil
		conn.perspective = nil
	}
	r.members = make(map[uint32]*Connection)
	r.perspectives = nil
	r.state = GameDestroyed
	r.server.rooms.remove(r.code)
	slog.Info("room destroyed", "room", r.code, "reason", reason)
}

func (r *Room) isBanned(conn *Connection) bool {
	_, banned := r.bans[conn.addr.IP.String()]
	return banned
}

// broadcastRoot sends root-level children reliably to every member except
// those excluded. Each recipient gets its own nonce.
func (r *Room) broadcastRoot(children []*protocol.Message, exclude map[uint32]bool, now time.Time) {
	for id, member := range r.members {
		if exclude[id] {
			continue
		}
		if err := member.sendReliable(children, now); err != nil {
			slog.Warn("broadcast failed", "room", r.code, "client", id, "error", err)
		}
	}
}

// broadcastGameData wraps game-data children for each selected recipient:
// everyone except excluded, or only target when set. Reliable wraps get a
// fresh nonce per recipient; unreliable ships as a bare game-data frame.
func (r *Room) broadcastGameData(children []*protocol.GameDataChild, target *Connection, exclude map[uint32]bool, reliable bool, now time.Time) {
	if len(children) == 0 {
		return
	}
	send := func(member *Connection) {
		msg := protocol.BuildGameData(r.code, member.id, target != nil, children)
		var err error
		if reliable {
			err = member.sendReliable([]*protocol.Message{msg}, now)
		} else {
			err = member.sendUnreliable([]*protocol.Message{msg})
		}
		if err != nil {
			slog.Warn("game data broadcast failed", "room", r.code, "client", member.id, "error", err)
		}
	}
	if target != nil {
		if _, ok := r.members[target.id]; ok {
			send(target)
		}
		return
	}
	for id, member := range r.members {
		if exclude[id] {
			continue
		}
		send(member)
	}
}
