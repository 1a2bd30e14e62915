package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skeldgo/skeld/internal/config"
	"github.com/skeldgo/skeld/internal/protocol"
)

// joinError digs the reason out of a clientbound JoinGame error.
func joinError(t *testing.T, m *protocol.Message) protocol.DisconnectReason {
	t.Helper()
	reason, err := m.Reader().ReadByte()
	require.NoError(t, err)
	return protocol.DisconnectReason(reason)
}

func TestJoinUnknownRoom(t *testing.T) {
	s, sink := newTestServer(t, nil)
	addr := clientAddr(1)
	connect(t, s, addr, "alice")

	code, err := protocol.CodeFromString("QQQQQQ")
	require.NoError(t, err)
	sendReliable(s, addr, 2, joinGameChild(code))

	errs := childrenTo(t, sink, addr, protocol.TagJoinGame)
	require.Len(t, errs, 1)
	assert.Equal(t, protocol.ReasonGameNotFound, joinError(t, errs[0]))
}

func TestJoinFullRoom(t *testing.T) {
	s, sink := newTestServer(t, nil)
	room := makeRoom(t, s, "WWWWWW")
	room.settings.MaxPlayers = 2

	for i := 1; i <= 2; i++ {
		conn := connect(t, s, clientAddr(i), "player")
		room.HandleRemoteJoin(conn, t0)
	}
	require.Equal(t, 2, room.MemberCount())

	late := clientAddr(3)
	conn := connect(t, s, late, "late")
	sink.reset()
	room.HandleRemoteJoin(conn, t0)

	assert.Equal(t, 2, room.MemberCount())
	assert.Nil(t, conn.Room())
	errs := childrenTo(t, sink, late, protocol.TagJoinGame)
	require.Len(t, errs, 1)
	assert.Equal(t, protocol.ReasonGameFull, joinError(t, errs[0]))
}

func TestJoinStartedRoom(t *testing.T) {
	s, sink := newTestServer(t, nil)
	room := makeRoom(t, s, "WWWWWW")
	room.state = GameStarted

	addr := clientAddr(1)
	conn := connect(t, s, addr, "late")
	sink.reset()
	room.HandleRemoteJoin(conn, t0)

	errs := childrenTo(t, sink, addr, protocol.TagJoinGame)
	require.Len(t, errs, 1)
	assert.Equal(t, protocol.ReasonGameStarted, joinError(t, errs[0]))
}

func TestJoinBannedAddress(t *testing.T) {
	s, sink := newTestServer(t, nil)
	room := makeRoom(t, s, "WWWWWW")
	addr := clientAddr(1)
	conn := connect(t, s, addr, "banned")
	room.bans[addr.IP.String()] = struct{}{}

	sink.reset()
	room.HandleRemoteJoin(conn, t0)

	errs := childrenTo(t, sink, addr, protocol.TagJoinGame)
	require.Len(t, errs, 1)
	assert.Equal(t, protocol.ReasonBanned, joinError(t, errs[0]))
}

func TestJoinNotifiesMembersAndJoiner(t *testing.T) {
	s, sink := newTestServer(t, nil)
	room := makeRoom(t, s, "WWWWWW")

	hostAddr, joinerAddr := clientAddr(1), clientAddr(2)
	host := connect(t, s, hostAddr, "host")
	room.HandleRemoteJoin(host, t0)
	require.Equal(t, host.ClientID(), room.HostID())

	sink.reset()
	joiner := connect(t, s, joinerAddr, "joiner")
	room.HandleRemoteJoin(joiner, t0)

	// Existing member gets the join announcement, the joiner gets the
	// member list.
	assert.Len(t, childrenTo(t, sink, hostAddr, protocol.TagJoinGame), 1)
	joined := childrenTo(t, sink, joinerAddr, protocol.TagJoinedGame)
	require.Len(t, joined, 1)

	r := joined[0].Reader()
	code, err := r.ReadInt32()
	require.NoError(t, err)
	assert.Equal(t, room.Code(), protocol.GameCode(code))
	joinedID, err := r.ReadPackedUint32()
	require.NoError(t, err)
	assert.Equal(t, joiner.ClientID(), joinedID)
	hostID, err := r.ReadPackedUint32()
	require.NoError(t, err)
	assert.Equal(t, host.ClientID(), hostID)
}

func TestHostElectionLowestClientID(t *testing.T) {
	s, sink := newTestServer(t, nil)
	room := makeRoom(t, s, "WWWWWW")

	conns := make([]*Connection, 3)
	for i := range conns {
		conns[i] = connect(t, s, clientAddr(i+1), "player")
		room.HandleRemoteJoin(conns[i], t0)
	}
	require.Equal(t, conns[0].ClientID(), room.HostID())

	sink.reset()
	room.RemoveMember(conns[0], protocol.ReasonExitGame, t0)

	assert.Equal(t, conns[1].ClientID(), room.HostID(),
		"lowest remaining client-id becomes host")

	// The departure broadcast carries the re-elected host.
	removes := childrenTo(t, sink, clientAddr(3), protocol.TagRemovePlayer)
	require.Len(t, removes, 1)
	r := removes[0].Reader()
	_, err := r.ReadInt32()
	require.NoError(t, err)
	removed, err := r.ReadPackedUint32()
	require.NoError(t, err)
	assert.Equal(t, conns[0].ClientID(), removed)
	newHost, err := r.ReadPackedUint32()
	require.NoError(t, err)
	assert.Equal(t, conns[1].ClientID(), newHost)
}

func TestRemoveConnectionDetachesFromRoom(t *testing.T) {
	s, _ := newTestServer(t, nil)
	room := makeRoom(t, s, "WWWWWW")
	conn := connect(t, s, clientAddr(1), "alice")
	peer := connect(t, s, clientAddr(2), "bob")
	room.HandleRemoteJoin(conn, t0)
	room.HandleRemoteJoin(peer, t0)

	s.removeConnection(conn, protocol.ReasonExitGame, t0)

	assert.Nil(t, conn.Room())
	assert.NotContains(t, room.members, conn.ClientID())
	assert.Equal(t, 1, room.MemberCount())
	assert.Equal(t, 1, s.conns.Count())
}

func TestKickWithBan(t *testing.T) {
	s, sink := newTestServer(t, nil)
	room := makeRoom(t, s, "WWWWWW")
	host := connect(t, s, clientAddr(1), "host")
	victimAddr := clientAddr(2)
	victim := connect(t, s, victimAddr, "victim")
	room.HandleRemoteJoin(host, t0)
	room.HandleRemoteJoin(victim, t0)

	sink.reset()
	room.Kick(victim.ClientID(), true, t0)

	assert.NotContains(t, room.members, victim.ClientID())
	assert.Contains(t, room.bans, victimAddr.IP.String())

	dcs := disconnectsTo(t, sink, victimAddr)
	require.Len(t, dcs, 1)
	assert.Equal(t, protocol.ReasonBanned, dcs[0].Reason)
	assert.Len(t, childrenTo(t, sink, clientAddr(1), protocol.TagKickPlayer), 1)

	// The banned address cannot rejoin.
	sink.reset()
	again := connect(t, s, victimAddr, "victim")
	room.HandleRemoteJoin(again, t0)
	errs := childrenTo(t, sink, victimAddr, protocol.TagJoinGame)
	require.Len(t, errs, 1)
	assert.Equal(t, protocol.ReasonBanned, joinError(t, errs[0]))
}

func TestEmptyRoomSweptAfterGrace(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Server) {
		c.Rooms.CreateTimeout = 10
	})
	room := makeRoom(t, s, "WWWWWW")
	conn := connect(t, s, clientAddr(1), "alice")
	room.HandleRemoteJoin(conn, t0)
	room.RemoveMember(conn, protocol.ReasonExitGame, t0)

	s.rooms.sweep(t0.Add(5 * time.Second))
	assert.Equal(t, 1, s.rooms.Count(), "grace period not over yet")

	s.rooms.sweep(t0.Add(11 * time.Second))
	assert.Equal(t, 0, s.rooms.Count())
	assert.Equal(t, GameDestroyed, room.State())
}

func TestEmptyRoomSweepCanceledByRejoin(t *testing.T) {
	s, _ := newTestServer(t, func(c *config.Server) {
		c.Rooms.CreateTimeout = 10
	})
	room := makeRoom(t, s, "WWWWWW")
	conn := connect(t, s, clientAddr(1), "alice")
	room.HandleRemoteJoin(conn, t0)
	room.RemoveMember(conn, protocol.ReasonExitGame, t0)

	rejoin := connect(t, s, clientAddr(2), "bob")
	room.HandleRemoteJoin(rejoin, t0.Add(2*time.Second))

	s.rooms.sweep(t0.Add(30 * time.Second))
	assert.Equal(t, 1, s.rooms.Count(), "repopulated room must survive the sweep")
}

func TestDestroyDetachesMembers(t *testing.T) {
	s, sink := newTestServer(t, nil)
	room := makeRoom(t, s, "WWWWWW")
	conn := connect(t, s, clientAddr(1), "alice")
	room.HandleRemoteJoin(conn, t0)

	sink.reset()
	room.Destroy(protocol.ReasonDestroy, t0)

	assert.Equal(t, GameDestroyed, room.State())
	assert.Nil(t, conn.Room())
	assert.Equal(t, 0, s.rooms.Count())
	// Connections survive room destruction.
	assert.Equal(t, 1, s.conns.Count())
	assert.Len(t, childrenTo(t, sink, clientAddr(1), protocol.TagRemoveGame), 1)
}

func TestJoinHookVeto(t *testing.T) {
	s, sink := newTestServer(t, nil)
	s.RegisterJoinHook(JoinHookFunc(func(conn *Connection, room *Room) (bool, string) {
		return conn.Username() == "blocked", "not welcome"
	}))
	room := makeRoom(t, s, "WWWWWW")

	ok := connect(t, s, clientAddr(1), "fine")
	room.HandleRemoteJoin(ok, t0)
	assert.Equal(t, 1, room.MemberCount())

	blockedAddr := clientAddr(2)
	blocked := connect(t, s, blockedAddr, "blocked")
	sink.reset()
	room.HandleRemoteJoin(blocked, t0)

	assert.Equal(t, 1, room.MemberCount())
	errs := childrenTo(t, sink, blockedAddr, protocol.TagJoinGame)
	require.Len(t, errs, 1)
	assert.Equal(t, protocol.ReasonCustom, joinError(t, errs[0]))
}
