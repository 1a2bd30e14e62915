package relay

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/skeldgo/skeld/internal/protocol"
)

// Reliability timing. The process-wide ticker fires every tickInterval; an
// unacked packet older than retransmitAge is sent again.
const (
	tickInterval  = 2000 * time.Millisecond
	retransmitAge = 500 * time.Millisecond
)

// sendReliable wraps children in a Reliable with a fresh nonce, tracks it
// in-flight, and transmits. Acknowledge packets are never tracked.
func (c *Connection) sendReliable(children []*protocol.Message, now time.Time) error {
	nonce := c.assignNonce()
	data, err := protocol.Write(&protocol.Reliable{Nonce: nonce, Children: children})
	if err != nil {
		return fmt.Errorf("encoding reliable: %w", err)
	}
	c.trackSent(nonce, data, now)
	return c.transmit(data)
}

// sendUnreliable ships children with no delivery guarantee.
func (c *Connection) sendUnreliable(children []*protocol.Message) error {
	data, err := protocol.Write(&protocol.Unreliable{Children: children})
	if err != nil {
		return fmt.Errorf("encoding unreliable: %w", err)
	}
	return c.transmit(data)
}

// sendAck acknowledges an inbound reliable-bearing packet immediately.
// The mask reports all-received; selective retransmit is the peer's job.
func (c *Connection) sendAck(nonce uint16) {
	data, err := protocol.Write(&protocol.Ack{Nonce: nonce, MissingMask: 0xff})
	if err != nil {
		slog.Error("encoding ack", "client", c.id, "error", err)
		return
	}
	if err := c.transmit(data); err != nil {
		slog.Warn("sending ack", "client", c.id, "error", err)
	}
}

// sendPing sends a keepalive with a fresh nonce, tracked like any reliable.
func (c *Connection) sendPing(now time.Time) error {
	nonce := c.assignNonce()
	data, err := protocol.Write(&protocol.Ping{Nonce: nonce})
	if err != nil {
		return fmt.Errorf("encoding ping: %w", err)
	}
	c.trackSent(nonce, data, now)
	return c.transmit(data)
}

// sendDisconnect ships a clientbound disconnect with a structured reason.
// Not tracked: the peer is going away.
func (c *Connection) sendDisconnect(reason protocol.DisconnectReason, message string) {
	data, err := protocol.Write(&protocol.Disconnect{
		HasReason: true,
		Reason:    reason,
		Message:   message,
	})
	if err != nil {
		slog.Error("encoding disconnect", "client", c.id, "error", err)
		return
	}
	if err := c.transmit(data); err != nil {
		slog.Warn("sending disconnect", "client", c.id, "error", err)
	}
}

// transmit writes one datagram to the connection's endpoint. A transient
// send error drops that packet only.
func (c *Connection) transmit(data []byte) error {
	if _, err := c.sink.WriteToUDP(data, c.addr); err != nil {
		return fmt.Errorf("writing to %s: %w", c.key, err)
	}
	return nil
}

// tick runs the per-connection slice of the 2000 ms reliability timer:
// keepalive ping, retransmit of stale unacked packets, and the liveness
// check. Returns false when the connection must be declared dead.
func (c *Connection) tick(now time.Time) bool {
	if err := c.sendPing(now); err != nil {
		slog.Warn("keepalive ping failed", "client", c.id, "error", err)
	}

	for _, sp := range c.inflight {
		if sp.Acked || now.Sub(sp.SentAt) <= retransmitAge {
			continue
		}
		if err := c.transmit(sp.Data); err != nil {
			slog.Warn("retransmit failed", "client", c.id, "nonce", sp.Nonce, "error", err)
			continue
		}
		sp.SentAt = now
	}

	return !c.deadByBackpressure()
}
