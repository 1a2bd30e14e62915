package relay

import (
	"log/slog"
	"time"

	"github.com/skeldgo/skeld/internal/protocol"
)

// ChildFilter inspects one game-data child and reports whether it must be
// canceled. Filters never mutate the child payload.
type ChildFilter func(child *protocol.GameDataChild) (cancel bool)

// Perspective is a filtered sub-view of a room owned by a subset of players.
// Messages leaving the perspective toward the base room pass the outgoing
// filter; messages inside the perspective bypass it. Perspectives share the
// base room's code on the wire, so members of a perspective are still room
// members for every other purpose.
type Perspective struct {
	room    *Room
	players map[uint32]*Connection
	filter  ChildFilter // outgoing, serverbound-to-base; nil passes all
}

// CreatePerspective builds a perspective over the given room members and
// moves them into it. Members not in the room are skipped.
func (r *Room) CreatePerspective(players []*Connection, filter ChildFilter) *Perspective {
	p := &Perspective{
		room:    r,
		players: make(map[uint32]*Connection, len(players)),
		filter:  filter,
	}
	for _, conn := range players {
		if _, ok := r.members[conn.id]; !ok {
			continue
		}
		if conn.perspective != nil {
			conn.perspective.removePlayer(conn)
		}
		conn.perspective = p
		p.players[conn.id] = conn
	}
	r.perspectives = append(r.perspectives, p)
	return p
}

// Destroy releases the perspective, returning its players to the plain room
// view.
func (p *Perspective) Destroy() {
	for _, conn := range p.players {
		conn.perspective = nil
	}
	p.players = nil
	kept := p.room.perspectives[:0]
	for _, other := range p.room.perspectives {
		if other != p {
			kept = append(kept, other)
		}
	}
	p.room.perspectives = kept
}

// Players returns the client-ids currently inside the perspective.
func (p *Perspective) Players() []uint32 {
	ids := make([]uint32, 0, len(p.players))
	for id := range p.players {
		ids = append(ids, id)
	}
	return ids
}

func (p *Perspective) removePlayer(conn *Connection) {
	delete(p.players, conn.id)
}

// applyFilter runs the outgoing filter over one child.
func (p *Perspective) applyFilter(child *protocol.GameDataChild) bool {
	if p.filter == nil {
		return false
	}
	return p.filter(child)
}

// broadcastInside delivers game-data children to the perspective's own
// members, excluding the sender.
func (p *Perspective) broadcastInside(children []*protocol.GameDataChild, sender *Connection, reliable bool, now time.Time) {
	if len(children) == 0 {
		return
	}
	for id, member := range p.players {
		if id == sender.id {
			continue
		}
		msg := protocol.BuildGameData(p.room.code, member.id, false, children)
		var err error
		if reliable {
			err = member.sendReliable([]*protocol.Message{msg}, now)
		} else {
			err = member.sendUnreliable([]*protocol.Message{msg})
		}
		if err != nil {
			slog.Warn("perspective broadcast failed",
				"room", p.room.code,
				"client", id,
				"error", err)
		}
	}
}
