package relay

import (
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/skeldgo/skeld/internal/chat"
	"github.com/skeldgo/skeld/internal/protocol"
)

// handleDatagram routes one inbound datagram. Everything downstream of here
// runs on the event loop.
func (s *Server) handleDatagram(data []byte, addr *net.UDPAddr, now time.Time) {
	pkt, err := protocol.Parse(data, protocol.Serverbound)
	if err != nil {
		slog.Debug("dropping malformed datagram", "addr", addr, "error", err)
		return
	}

	switch p := pkt.(type) {
	case *protocol.Hello:
		conn, created := s.conns.GetOrCreate(addr)
		if created {
			slog.Debug("new endpoint", "addr", addr, "client", conn.id)
		}
		conn.sendAck(p.Nonce)
		if conn.acceptNonce(p.Nonce) {
			s.handleHello(conn, p, now)
		}

	case *protocol.Ack:
		if conn := s.conns.Lookup(addr); conn != nil {
			conn.handleAck(p.Nonce, now)
		}

	case *protocol.Ping:
		if conn := s.conns.Lookup(addr); conn != nil {
			conn.sendAck(p.Nonce)
			conn.acceptNonce(p.Nonce)
		}

	case *protocol.Disconnect:
		if conn := s.conns.Lookup(addr); conn != nil {
			s.removeConnection(conn, protocol.ReasonExitGame, now)
		}

	case *protocol.Reliable:
		conn := s.conns.Lookup(addr)
		if conn == nil || conn.state == StateNew {
			// No identity; only a hello is meaningful here.
			return
		}
		conn.sendAck(p.Nonce)
		if conn.acceptNonce(p.Nonce) {
			for _, child := range p.Children {
				s.handleChild(conn, child, true, now)
			}
			return
		}
		// Known-broken clients send mod declarations with nonce 0, which the
		// dedupe rule would otherwise suppress. Process only those children.
		if p.Nonce == 0 {
			for _, child := range p.Children {
				if child.Tag == protocol.GameDataTagMod {
					s.handleModDeclaration(conn, child)
				}
			}
		}

	case *protocol.Unreliable:
		conn := s.conns.Lookup(addr)
		if conn == nil || conn.state == StateNew {
			return
		}
		for _, child := range p.Children {
			s.handleChild(conn, child, false, now)
		}
	}
}

// handleChild routes one child message of a Reliable/Unreliable root.
func (s *Server) handleChild(conn *Connection, m *protocol.Message, reliable bool, now time.Time) {
	switch m.Tag {
	case protocol.TagHostGame:
		s.handleHostGame(conn, m, now)
	case protocol.TagJoinGame:
		s.handleJoinGame(conn, m, now)
	case protocol.TagGameData, protocol.TagGameDataTo:
		s.handleGameData(conn, m, reliable, now)
	case protocol.TagStartGame, protocol.TagEndGame, protocol.TagAlterGame,
		protocol.TagKickPlayer, protocol.TagRemoveGame:
		s.handleHostOnly(conn, m, now)
	case protocol.TagGetGameList:
		s.handleGetGameList(conn, m, now)
	case protocol.GameDataTagMod:
		s.handleModDeclaration(conn, m)
	default:
		slog.Debug("unhandled child tag",
			"client", conn.id,
			"tag", m.Tag)
	}
}

func (s *Server) handleHostGame(conn *Connection, m *protocol.Message, now time.Time) {
	req, err := protocol.DecodeHostGame(m)
	if err != nil {
		slog.Warn("bad HostGame", "client", conn.id, "error", err)
		return
	}
	settings := req.Settings
	for _, hook := range s.createHooks {
		cancel, altered := hook.OnCreate(conn, settings)
		if cancel {
			msg := protocol.BuildJoinError(protocol.ReasonCustom, "Room creation refused")
			if err := conn.sendReliable([]*protocol.Message{msg}, now); err != nil {
				slog.Warn("sending create refusal", "client", conn.id, "error", err)
			}
			return
		}
		if altered != nil {
			settings = altered
		}
	}

	code := s.rooms.Generate()
	if _, err := s.rooms.Create(code, settings, now); err != nil {
		slog.Error("creating room", "client", conn.id, "error", err)
		return
	}
	if err := conn.sendReliable([]*protocol.Message{protocol.BuildHostGameReply(code)}, now); err != nil {
		slog.Warn("sending host reply", "client", conn.id, "error", err)
	}
}

func (s *Server) handleJoinGame(conn *Connection, m *protocol.Message, now time.Time) {
	req, err := protocol.DecodeJoinGame(m, protocol.Serverbound)
	if err != nil {
		slog.Warn("bad JoinGame", "client", conn.id, "error", err)
		return
	}

	if msg, ok := s.validateJoinMods(conn, s.rooms.Get(req.Code)); !ok {
		s.disconnect(conn, protocol.ReasonCustom, msg)
		return
	}

	room := s.rooms.Get(req.Code)
	if room == nil {
		reply := protocol.BuildJoinError(protocol.ReasonGameNotFound, "")
		if err := conn.sendReliable([]*protocol.Message{reply}, now); err != nil {
			slog.Warn("sending join error", "client", conn.id, "error", err)
		}
		return
	}

	if conn.room != nil && conn.room != room {
		conn.room.RemoveMember(conn, protocol.ReasonExitGame, now)
	}
	room.HandleRemoteJoin(conn, now)
}

// handleHostOnly serves the game-control tags that must originate from the
// room host. A non-host sender is disconnected for tampering.
func (s *Server) handleHostOnly(conn *Connection, m *protocol.Message, now time.Time) {
	room := conn.room
	if room == nil {
		return
	}
	if room.hostID != conn.id {
		slog.Warn("non-host sent control message",
			"room", room.code,
			"client", conn.id,
			"tag", m.Tag)
		s.disconnect(conn, protocol.ReasonHacking, "")
		return
	}

	exclude := map[uint32]bool{conn.id: true}
	switch m.Tag {
	case protocol.TagStartGame:
		code, err := protocol.DecodeGameCodeOnly(m)
		if err != nil || code != room.code {
			slog.Warn("StartGame code mismatch", "client", conn.id, "error", err)
			return
		}
		room.state = GameStarted
		room.broadcastRoot([]*protocol.Message{protocol.BuildStartGame(room.code)}, exclude, now)
		slog.Info("game started", "room", room.code)

	case protocol.TagEndGame:
		end, err := protocol.DecodeEndGame(m)
		if err != nil {
			slog.Warn("bad EndGame", "client", conn.id, "error", err)
			return
		}
		if end.Code != room.code {
			return
		}
		room.state = GameEnded
		room.broadcastRoot([]*protocol.Message{
			protocol.BuildEndGame(room.code, end.Reason, end.ShowAd),
		}, exclude, now)
		slog.Info("game ended", "room", room.code, "reason", end.Reason)

	case protocol.TagAlterGame:
		alter, err := protocol.DecodeAlterGame(m)
		if err != nil {
			slog.Warn("bad AlterGame", "client", conn.id, "error", err)
			return
		}
		if alter.Code != room.code {
			return
		}
		if alter.Flag == protocol.AlterGameFlagPublicity {
			room.public = alter.Value != 0
		}
		room.broadcastRoot([]*protocol.Message{
			protocol.BuildAlterGame(room.code, alter.Flag, alter.Value),
		}, exclude, now)

	case protocol.TagKickPlayer:
		kick, err := protocol.DecodeKickPlayer(m)
		if err != nil {
			slog.Warn("bad KickPlayer", "client", conn.id, "error", err)
			return
		}
		room.Kick(kick.Target, kick.Banned, now)

	case protocol.TagRemoveGame:
		code, err := protocol.DecodeGameCodeOnly(m)
		if err != nil || code != room.code {
			slog.Warn("RemoveGame code mismatch", "client", conn.id, "error", err)
			return
		}
		room.Destroy(protocol.ReasonDestroy, now)
	}
}

// handleGameData relays a gameplay container through the room, applying the
// perspective pipeline, server-side observation, and the unreliable movement
// path.
func (s *Server) handleGameData(conn *Connection, m *protocol.Message, arrivedReliable bool, now time.Time) {
	room := conn.room
	if room == nil {
		return
	}
	gd, err := protocol.DecodeGameData(m)
	if err != nil {
		slog.Warn("bad GameData", "client", conn.id, "error", err)
		return
	}
	if gd.Code != room.code {
		slog.Debug("game data for wrong room",
			"client", conn.id,
			"room", room.code,
			"code", gd.Code)
		return
	}

	if gd.Targeted {
		s.relayDirected(room, conn, gd, arrivedReliable, now)
		return
	}
	s.relayGameData(room, conn, gd, now)
}

// relayDirected forwards a GameDataTo to exactly the named recipient, or
// drops it silently.
func (s *Server) relayDirected(room *Room, sender *Connection, gd *protocol.GameData, reliable bool, now time.Time) {
	recipient, ok := room.members[gd.Target]
	if !ok {
		return
	}
	children := gd.Children
	if !s.cfg.Socket.AcceptUnknownGameData {
		children = knownChildren(children)
	}
	if len(children) == 0 {
		return
	}
	msg := protocol.BuildGameData(room.code, recipient.id, true, children)
	var err error
	if reliable {
		err = recipient.sendReliable([]*protocol.Message{msg}, now)
	} else {
		err = recipient.sendUnreliable([]*protocol.Message{msg})
	}
	if err != nil {
		slog.Warn("directed relay failed",
			"room", room.code,
			"to", recipient.id,
			"error", err)
	}
}

// relayedChild tracks one child through the two-phase perspective pipeline.
// The cancel flag is reset between observation and the outgoing filter.
type relayedChild struct {
	child    *protocol.GameDataChild
	observed bool // canceled during observation
	filtered bool // canceled by the outgoing filter
}

// relayGameData fans one game-data container out to the room. Observation
// (server-side state tracking and chat interception) runs first and may
// cancel children; the perspective outgoing filter runs as an independent
// second phase.
func (s *Server) relayGameData(room *Room, sender *Connection, gd *protocol.GameData, now time.Time) {
	children := make([]*relayedChild, 0, len(gd.Children))
	for _, c := range gd.Children {
		children = append(children, &relayedChild{child: c})
	}

	// Phase 1: observation. Targets the sender's perspective view when one
	// is active, the room otherwise; the state effects are room-wide either
	// way.
	for _, rc := range children {
		rc.observed = s.observeChild(room, sender, rc.child, now)
	}

	p := sender.perspective
	if s.cfg.Optimizations.DisablePerspectives {
		p = nil
	}

	// Phase 2: outgoing filter toward the base room. Cancel state from
	// phase 1 is not carried over.
	baseOut := make([]*protocol.GameDataChild, 0, len(children))
	for _, rc := range children {
		if rc.observed {
			continue
		}
		if p != nil {
			rc.filtered = p.applyFilter(rc.child)
		}
		if !rc.filtered {
			baseOut = append(baseOut, rc.child)
		}
	}

	reliable := !s.isMovement(room, baseOut)
	if reliable || s.throttleMovement(room, baseOut) {
		// Players inside any perspective receive through their own surface,
		// not the base broadcast.
		exclude := map[uint32]bool{sender.id: true}
		if !s.cfg.Optimizations.DisablePerspectives {
			for _, q := range room.perspectives {
				for id := range q.players {
					exclude[id] = true
				}
			}
		}
		room.broadcastGameData(baseOut, nil, exclude, reliable, now)
		if !s.cfg.Optimizations.DisablePerspectives {
			for _, q := range room.perspectives {
				if q != p {
					q.broadcastInside(baseOut, sender, reliable, now)
				}
			}
		}
	}

	// Phase 3: perspective-internal broadcast ignores the outgoing filter.
	if p != nil {
		inside := make([]*protocol.GameDataChild, 0, len(children))
		for _, rc := range children {
			if !rc.observed {
				inside = append(inside, rc.child)
			}
		}
		p.broadcastInside(inside, sender, !s.isMovement(room, inside), now)
	}
}

// observeChild lets the server watch a relayed child: spawn bookkeeping,
// chat command interception, unknown-tag policy. Returns true when the child
// must not be relayed.
func (s *Server) observeChild(room *Room, sender *Connection, c *protocol.GameDataChild, now time.Time) bool {
	switch c.Tag {
	case protocol.GameDataTagSpawn:
		s.observeSpawn(room, sender, c)
		return false

	case protocol.GameDataTagDespawn:
		if netID, err := protocol.DecodeDespawn(c); err == nil {
			delete(room.transformNetIDs, netID)
			delete(room.moveCounters, netID)
		}
		return false

	case protocol.GameDataTagRpc:
		return s.observeRpc(room, sender, c, now)

	default:
		if !c.Known() && !s.cfg.Socket.AcceptUnknownGameData {
			slog.Debug("dropping unknown game data",
				"room", room.code,
				"client", sender.id,
				"tag", c.Tag)
			return true
		}
		return false
	}
}

// observeSpawn tracks the net-objects announced by a player spawn: the
// control component (chat replies address it) and the network transform
// (movement updates against it relay unreliably).
func (s *Server) observeSpawn(room *Room, sender *Connection, c *protocol.GameDataChild) {
	spawn, err := protocol.DecodeSpawn(c)
	if err != nil {
		slog.Debug("bad Spawn", "client", sender.id, "error", err)
		return
	}
	if spawn.SpawnType != protocol.SpawnTypePlayer || len(spawn.Components) == 0 {
		return
	}
	if owner, ok := room.members[uint32(spawn.OwnerID)]; ok {
		owner.playerNetID = spawn.Components[0].NetID
	}
	if len(spawn.Components) > protocol.TransformComponentIndex {
		room.transformNetIDs[spawn.Components[protocol.TransformComponentIndex].NetID] = struct{}{}
	}
}

// observeRpc intercepts "/"-prefixed chat lines for the command dispatcher.
// Intercepted chat is canceled so it never reaches other players.
func (s *Server) observeRpc(room *Room, sender *Connection, c *protocol.GameDataChild, now time.Time) bool {
	if !s.cfg.Rooms.ChatCommands {
		return false
	}
	rpc, err := protocol.DecodeRpc(c)
	if err != nil || rpc.CallID != protocol.RpcCallChat {
		return false
	}
	text, err := rpc.ChatText()
	if err != nil || !strings.HasPrefix(text, "/") {
		return false
	}

	ctx := chat.NewContext(room.code.String(), sender, text, func(reply string) error {
		return s.sendServerChat(room, sender, reply, now)
	})
	s.chat.Dispatch(ctx, strings.TrimPrefix(text, "/"))
	return true
}

// sendServerChat delivers a chat line to one member only. The line is sent
// from another member's player object so the client renders it on the left
// side, apart from the member's own messages.
func (s *Server) sendServerChat(room *Room, to *Connection, text string, now time.Time) error {
	netID := to.playerNetID
	for _, member := range room.members {
		if member.id != to.id && member.playerNetID != 0 {
			netID = member.playerNetID
			break
		}
	}
	child := protocol.BuildChatRpc(netID, text)
	msg := protocol.BuildGameData(room.code, to.id, true, []*protocol.GameDataChild{child})
	return to.sendReliable([]*protocol.Message{msg}, now)
}

// isMovement reports whether the relayed set is a lone Data update against a
// known network-transform component.
func (s *Server) isMovement(room *Room, children []*protocol.GameDataChild) bool {
	if len(children) != 1 || children[0].Tag != protocol.GameDataTagData {
		return false
	}
	header, err := protocol.DecodeDataHeader(children[0])
	if err != nil {
		return false
	}
	_, ok := room.transformNetIDs[header.NetID]
	return ok
}

// throttleMovement applies the configured movement update-rate divider.
// Returns true when this update must be relayed.
func (s *Server) throttleMovement(room *Room, children []*protocol.GameDataChild) bool {
	rate := s.cfg.Optimizations.Movement.UpdateRate
	if rate <= 1 {
		return true
	}
	header, err := protocol.DecodeDataHeader(children[0])
	if err != nil {
		return true
	}
	room.moveCounters[header.NetID]++
	return room.moveCounters[header.NetID]%rate == 0
}

// knownChildren filters out children with tags outside the catalog.
func knownChildren(children []*protocol.GameDataChild) []*protocol.GameDataChild {
	out := make([]*protocol.GameDataChild, 0, len(children))
	for _, c := range children {
		if c.Known() {
			out = append(out, c)
		}
	}
	return out
}
