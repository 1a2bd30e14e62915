package relay

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/skeldgo/skeld/internal/chat"
	"github.com/skeldgo/skeld/internal/config"
	"github.com/skeldgo/skeld/internal/locale"
	"github.com/skeldgo/skeld/internal/plugin"
	"github.com/skeldgo/skeld/internal/protocol"
	"github.com/skeldgo/skeld/internal/protocol/packet"
)

// Shared test scaffolding: a capture sink instead of a socket, handlers
// invoked directly with explicit time.

var t0 = time.Unix(1700000000, 0)

var testVersion = protocol.EncodeVersion(2021, 6, 30, 1)

type capturedPacket struct {
	addr string
	data []byte
}

type captureSink struct {
	packets []capturedPacket
}

func (cs *captureSink) WriteToUDP(b []byte, addr *net.UDPAddr) (int, error) {
	data := make([]byte, len(b))
	copy(data, b)
	cs.packets = append(cs.packets, capturedPacket{addr: addr.String(), data: data})
	return len(b), nil
}

func (cs *captureSink) reset() {
	cs.packets = nil
}

// to returns the raw datagrams sent to addr, in order.
func (cs *captureSink) to(addr *net.UDPAddr) [][]byte {
	key := addr.String()
	var out [][]byte
	for _, p := range cs.packets {
		if p.addr == key {
			out = append(out, p.data)
		}
	}
	return out
}

func newTestServer(t *testing.T, mutate func(*config.Server)) (*Server, *captureSink) {
	t.Helper()
	cfg := config.DefaultServer()
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(&cfg, locale.Default{}, plugin.NewRegistry(nil), chat.NewTable())
	require.NoError(t, err)
	sink := &captureSink{}
	s.sink = sink
	return s, sink
}

func clientAddr(n int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000 + n}
}

func writePacket(t *testing.T, p protocol.RootPacket) []byte {
	t.Helper()
	data, err := protocol.Write(p)
	require.NoError(t, err)
	return data
}

// connect drives a vanilla hello and returns the resulting connection. Nil
// when the server rejected the hello and removed the endpoint.
func connect(t *testing.T, s *Server, addr *net.UDPAddr, username string) *Connection {
	t.Helper()
	hello := writePacket(t, &protocol.Hello{
		Nonce:         1,
		ClientVersion: int32(testVersion),
		Username:      username,
		Language:      1,
	})
	s.handleDatagram(hello, addr, t0)
	return s.conns.Lookup(addr)
}

func sendReliable(s *Server, addr *net.UDPAddr, nonce uint16, children ...*protocol.Message) {
	data, err := protocol.Write(&protocol.Reliable{Nonce: nonce, Children: children})
	if err != nil {
		panic(err)
	}
	s.handleDatagram(data, addr, t0)
}

func sendUnreliable(s *Server, addr *net.UDPAddr, children ...*protocol.Message) {
	data, err := protocol.Write(&protocol.Unreliable{Children: children})
	if err != nil {
		panic(err)
	}
	s.handleDatagram(data, addr, t0)
}

// makeRoom creates a room directly in the registry.
func makeRoom(t *testing.T, s *Server, code string) *Room {
	t.Helper()
	gc, err := protocol.CodeFromString(code)
	require.NoError(t, err)
	room, err := s.rooms.Create(gc, protocol.NewGameSettings(10, 2, 0, 0x409), t0)
	require.NoError(t, err)
	return room
}

// joinGameChild builds the serverbound JoinGame payload.
func joinGameChild(code protocol.GameCode) *protocol.Message {
	w := packet.NewWriter(8)
	w.WriteInt32(int32(code))
	return &protocol.Message{Tag: protocol.TagJoinGame, Payload: w.Bytes()}
}

// hostGameChild builds the serverbound HostGame payload.
func hostGameChild(settings *protocol.GameSettings) *protocol.Message {
	w := packet.NewWriter(64)
	settings.WriteTo(w)
	return &protocol.Message{Tag: protocol.TagHostGame, Payload: w.Bytes()}
}

// spawnPlayerChild builds a player Spawn with a control component and a
// network-transform component.
func spawnPlayerChild(controlNetID, ownerID, transformNetID uint32) *protocol.GameDataChild {
	w := packet.NewWriter(64)
	w.WritePackedUint32(protocol.SpawnTypePlayer)
	w.WritePackedInt32(int32(ownerID))
	w.WriteByte(0)
	w.WritePackedUint32(3)
	for _, id := range []uint32{controlNetID, controlNetID + 1, transformNetID} {
		w.WritePackedUint32(id)
		w.BeginMessage(1)
		w.EndMessage()
	}
	return &protocol.GameDataChild{Tag: protocol.GameDataTagSpawn, Payload: w.BytesCopy()}
}

// dataChild builds a Data sub-message against netID.
func dataChild(netID uint32, body ...byte) *protocol.GameDataChild {
	w := packet.NewWriter(16)
	w.WritePackedUint32(netID)
	w.WriteBytes(body)
	return &protocol.GameDataChild{Tag: protocol.GameDataTagData, Payload: w.BytesCopy()}
}

// outbound decoding helpers

func parseOut(t *testing.T, data []byte) protocol.RootPacket {
	t.Helper()
	pkt, err := protocol.Parse(data, protocol.Clientbound)
	require.NoError(t, err)
	return pkt
}

// rootTags lists the root tags of every datagram sent to addr.
func rootTags(cs *captureSink, addr *net.UDPAddr) []byte {
	var tags []byte
	for _, data := range cs.to(addr) {
		tags = append(tags, data[0])
	}
	return tags
}

// childrenTo collects child messages with the given tag sent to addr, from
// both reliable and unreliable roots.
func childrenTo(t *testing.T, cs *captureSink, addr *net.UDPAddr, tag byte) []*protocol.Message {
	t.Helper()
	var out []*protocol.Message
	for _, data := range cs.to(addr) {
		var children []*protocol.Message
		switch pkt := parseOut(t, data).(type) {
		case *protocol.Reliable:
			children = pkt.Children
		case *protocol.Unreliable:
			children = pkt.Children
		default:
			continue
		}
		for _, c := range children {
			if c.Tag == tag {
				out = append(out, c)
			}
		}
	}
	return out
}

// disconnectsTo collects the clientbound disconnect packets sent to addr.
func disconnectsTo(t *testing.T, cs *captureSink, addr *net.UDPAddr) []*protocol.Disconnect {
	t.Helper()
	var out []*protocol.Disconnect
	for _, data := range cs.to(addr) {
		if pkt, ok := parseOut(t, data).(*protocol.Disconnect); ok {
			out = append(out, pkt)
		}
	}
	return out
}

// acksTo collects the ack nonces sent to addr.
func acksTo(t *testing.T, cs *captureSink, addr *net.UDPAddr) []uint16 {
	t.Helper()
	var out []uint16
	for _, data := range cs.to(addr) {
		if pkt, ok := parseOut(t, data).(*protocol.Ack); ok {
			out = append(out, pkt.Nonce)
		}
	}
	return out
}
