package relay

import (
	"net"
	"time"

	"github.com/skeldgo/skeld/internal/protocol"
)

// maxInflight bounds the per-connection in-flight deque. A full deque with
// no acks is the liveness signal that kills the connection.
const maxInflight = 8

// maxRecvNonces bounds the recently-received nonce deque.
const maxRecvNonces = 8

// SentPacket is one in-flight reliable datagram awaiting an ack.
// Immutable once created except for Acked and SentAt.
type SentPacket struct {
	Nonce  uint16
	Data   []byte
	SentAt time.Time
	Acked  bool
}

// Connection represents one client endpoint. Created on the first valid
// hello from an unknown endpoint; destroyed after a disconnect exchange or
// liveness timeout. Owned by the ConnectionManager; rooms hold
// back-references only.
type Connection struct {
	addr *net.UDPAddr
	key  string
	id   uint32
	sink PacketSink

	username      string
	language      uint32
	clientVersion protocol.ClientVersion

	state            HandshakeState
	modded           bool
	declaredModCount uint32
	mods             map[string]*protocol.ModDeclaration // by mod-id
	modsByNetID      map[uint32]*protocol.ModDeclaration // by client-assigned net-id

	// Reliability bookkeeping.
	nextNonce     uint16
	lastSeenNonce uint16
	recvNonces    []uint16      // newest first, ≤ maxRecvNonces
	inflight      []*SentPacket // newest first, ≤ maxInflight
	rtt           time.Duration

	// playerNetID is the control net-object announced by this client's
	// player spawn; zero until observed. Chat replies address it.
	playerNetID uint32

	room          *Room
	perspective   *Perspective
	disconnecting bool
}

func newConnection(addr *net.UDPAddr, id uint32, sink PacketSink) *Connection {
	return &Connection{
		addr:        addr,
		key:         addrKey(addr),
		id:          id,
		sink:        sink,
		mods:        make(map[string]*protocol.ModDeclaration, 4),
		modsByNetID: make(map[uint32]*protocol.ModDeclaration, 4),
	}
}

// ClientID returns the monotonically assigned numeric client-id.
func (c *Connection) ClientID() uint32 { return c.id }

// Username returns the declared username.
func (c *Connection) Username() string { return c.username }

// Addr returns the remote endpoint.
func (c *Connection) Addr() *net.UDPAddr { return c.addr }

// Room returns the room this connection belongs to, or nil.
func (c *Connection) Room() *Room { return c.room }

// State returns the handshake state.
func (c *Connection) State() HandshakeState { return c.state }

// Modded reports whether the client used the mod-framework hello.
func (c *Connection) Modded() bool { return c.modded }

// Mods returns the announced mod set indexed by mod-id.
func (c *Connection) Mods() map[string]*protocol.ModDeclaration { return c.mods }

// RTT returns the last round-trip estimate (zero before the first ack).
func (c *Connection) RTT() time.Duration { return c.rtt }

// Perspective returns the connection's active room sub-view, or nil.
func (c *Connection) Perspective() *Perspective { return c.perspective }

// Language returns the client-declared language id.
func (c *Connection) Language() uint32 { return c.language }

// ClientVersion returns the declared client build version.
func (c *Connection) ClientVersion() protocol.ClientVersion { return c.clientVersion }

// addMod records a mod declaration under both indexes. Excess declarations
// beyond the declared count are silently discarded.
func (c *Connection) addMod(d *protocol.ModDeclaration) {
	if uint32(len(c.mods)) >= c.declaredModCount {
		return
	}
	c.mods[d.ModID] = d
	c.modsByNetID[d.NetID] = d
}

// acceptNonce applies the dedupe rule: a nonce ≤ last-seen is a duplicate or
// reorder and must be dropped. Accepted nonces update last-seen and the
// bounded received deque.
func (c *Connection) acceptNonce(nonce uint16) bool {
	if nonce <= c.lastSeenNonce {
		return false
	}
	c.lastSeenNonce = nonce
	c.recvNonces = append([]uint16{nonce}, c.recvNonces...)
	if len(c.recvNonces) > maxRecvNonces {
		c.recvNonces = c.recvNonces[:maxRecvNonces]
	}
	return true
}

// assignNonce hands out the next per-connection nonce, starting at 1.
func (c *Connection) assignNonce() uint16 {
	c.nextNonce++
	return c.nextNonce
}

// trackSent pushes a SentPacket at the head of the in-flight deque,
// truncating to maxInflight.
func (c *Connection) trackSent(nonce uint16, data []byte, now time.Time) {
	sp := &SentPacket{Nonce: nonce, Data: data, SentAt: now}
	c.inflight = append([]*SentPacket{sp}, c.inflight...)
	if len(c.inflight) > maxInflight {
		c.inflight = c.inflight[:maxInflight]
	}
}

// handleAck marks the matching in-flight packet acked and updates the
// round-trip estimate.
func (c *Connection) handleAck(nonce uint16, now time.Time) {
	for _, sp := range c.inflight {
		if sp.Nonce == nonce {
			if !sp.Acked {
				sp.Acked = true
				c.rtt = now.Sub(sp.SentAt)
			}
			return
		}
	}
}

// deadByBackpressure reports the liveness failure condition: the in-flight
// deque is full and nothing in it has been acked.
func (c *Connection) deadByBackpressure() bool {
	if len(c.inflight) < maxInflight {
		return false
	}
	for _, sp := range c.inflight {
		if sp.Acked {
			return false
		}
	}
	return true
}
