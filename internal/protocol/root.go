package protocol

import (
	"fmt"

	"github.com/skeldgo/skeld/internal/protocol/packet"
)

// Message is one Hazel-framed child message inside a Reliable or Unreliable
// root packet. The payload is kept verbatim: the relay forwards most children
// untouched, and typed decoding happens lazily via the Decode* helpers.
type Message struct {
	Tag     byte
	Payload []byte
}

// Reader returns a fresh reader over the message payload.
func (m *Message) Reader() *packet.Reader {
	return packet.NewReader(m.Payload)
}

// WriteTo appends the framed message (u16 length, tag, payload) to w.
func (m *Message) WriteTo(w *packet.Writer) {
	w.WriteUint16(uint16(len(m.Payload)))
	w.WriteByte(m.Tag)
	w.WriteBytes(m.Payload)
}

// RootPacket is one of the fixed closed set of datagram variants.
type RootPacket interface {
	// RootTag returns the one-byte tag identifying the variant.
	RootTag() byte
}

// Unreliable carries child messages with no delivery guarantee.
type Unreliable struct {
	Children []*Message
}

// Reliable carries a nonce and child messages; it is acked and retransmitted.
type Reliable struct {
	Nonce    uint16
	Children []*Message
}

// Hello opens a connection. A modded hello (mod-framework handshake) appends
// the reactor protocol byte and declared mod count after the vanilla fields.
type Hello struct {
	Nonce           uint16
	HazelVersion    byte
	ClientVersion   int32
	Username        string
	Language        uint32
	Modded          bool
	ReactorProtocol byte
	ModCount        uint32
}

// Disconnect closes a connection. Serverbound disconnects are bare;
// clientbound ones may carry a structured reason (plus a free-form message
// when the reason is ReasonCustom).
type Disconnect struct {
	HasReason bool
	Reason    DisconnectReason
	Message   string
}

// Ack confirms receipt of a reliable-bearing packet.
type Ack struct {
	Nonce       uint16
	MissingMask byte
}

// Ping is a nonce-only keepalive; it is reliable-bearing (acked by the peer).
type Ping struct {
	Nonce uint16
}

func (*Unreliable) RootTag() byte { return TagUnreliable }
func (*Reliable) RootTag() byte   { return TagReliable }
func (*Hello) RootTag() byte      { return TagHello }
func (*Disconnect) RootTag() byte { return TagDisconnect }
func (*Ack) RootTag() byte        { return TagAck }
func (*Ping) RootTag() byte       { return TagPing }

// Parse decodes one datagram into a root packet. dir selects the dialect for
// direction-asymmetric layouts (serverbound disconnects are bare, clientbound
// ones carry a reason).
func Parse(data []byte, dir Direction) (RootPacket, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty datagram")
	}
	r := packet.NewReader(data[1:])

	switch data[0] {
	case TagUnreliable:
		children, err := parseChildren(r)
		if err != nil {
			return nil, fmt.Errorf("unreliable: %w", err)
		}
		return &Unreliable{Children: children}, nil

	case TagReliable:
		nonce, err := r.ReadUint16BE()
		if err != nil {
			return nil, fmt.Errorf("reliable nonce: %w", err)
		}
		children, err := parseChildren(r)
		if err != nil {
			return nil, fmt.Errorf("reliable: %w", err)
		}
		return &Reliable{Nonce: nonce, Children: children}, nil

	case TagHello:
		return parseHello(r)

	case TagDisconnect:
		return parseDisconnect(r, dir)

	case TagAck:
		nonce, err := r.ReadUint16BE()
		if err != nil {
			return nil, fmt.Errorf("ack nonce: %w", err)
		}
		mask, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("ack mask: %w", err)
		}
		return &Ack{Nonce: nonce, MissingMask: mask}, nil

	case TagPing:
		nonce, err := r.ReadUint16BE()
		if err != nil {
			return nil, fmt.Errorf("ping nonce: %w", err)
		}
		return &Ping{Nonce: nonce}, nil

	default:
		return nil, fmt.Errorf("unknown root tag 0x%02X", data[0])
	}
}

func parseChildren(r *packet.Reader) ([]*Message, error) {
	var children []*Message
	for r.Remaining() > 0 {
		tag, body, err := r.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("child %d: %w", len(children), err)
		}
		payload, err := body.ReadBytesCopy(body.Remaining())
		if err != nil {
			return nil, err
		}
		children = append(children, &Message{Tag: tag, Payload: payload})
	}
	return children, nil
}

func parseHello(r *packet.Reader) (*Hello, error) {
	h := &Hello{}
	var err error
	if h.Nonce, err = r.ReadUint16BE(); err != nil {
		return nil, fmt.Errorf("hello nonce: %w", err)
	}
	if h.HazelVersion, err = r.ReadByte(); err != nil {
		return nil, fmt.Errorf("hello hazel version: %w", err)
	}
	if h.ClientVersion, err = r.ReadInt32(); err != nil {
		return nil, fmt.Errorf("hello client version: %w", err)
	}
	if h.Username, err = r.ReadString(); err != nil {
		return nil, fmt.Errorf("hello username: %w", err)
	}
	if h.Language, err = r.ReadUint32(); err != nil {
		return nil, fmt.Errorf("hello language: %w", err)
	}
	if r.Remaining() == 0 {
		return h, nil
	}
	// Trailing bytes mean a mod-framework handshake.
	h.Modded = true
	if h.ReactorProtocol, err = r.ReadByte(); err != nil {
		return nil, fmt.Errorf("hello mod protocol: %w", err)
	}
	if h.ModCount, err = r.ReadPackedUint32(); err != nil {
		return nil, fmt.Errorf("hello mod count: %w", err)
	}
	return h, nil
}

func parseDisconnect(r *packet.Reader, dir Direction) (*Disconnect, error) {
	d := &Disconnect{}
	if dir == Serverbound || r.Remaining() == 0 {
		return d, nil
	}
	// Clientbound layout: forced flag byte, then one framed message whose
	// payload is the reason byte (+ custom string).
	if _, err := r.ReadByte(); err != nil {
		return nil, fmt.Errorf("disconnect flag: %w", err)
	}
	_, body, err := r.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("disconnect body: %w", err)
	}
	reason, err := body.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("disconnect reason: %w", err)
	}
	d.HasReason = true
	d.Reason = DisconnectReason(reason)
	if d.Reason == ReasonCustom && body.Remaining() > 0 {
		if d.Message, err = body.ReadString(); err != nil {
			return nil, fmt.Errorf("disconnect message: %w", err)
		}
	}
	return d, nil
}

// Write encodes a root packet into datagram bytes. The returned slice is
// freshly allocated and owned by the caller.
func Write(p RootPacket) ([]byte, error) {
	w := packet.Get()
	defer w.Put()
	if err := writeTo(w, p); err != nil {
		return nil, err
	}
	return w.BytesCopy(), nil
}

func writeTo(w *packet.Writer, p RootPacket) error {
	w.WriteByte(p.RootTag())

	switch pkt := p.(type) {
	case *Unreliable:
		for _, c := range pkt.Children {
			c.WriteTo(w)
		}
	case *Reliable:
		w.WriteUint16BE(pkt.Nonce)
		for _, c := range pkt.Children {
			c.WriteTo(w)
		}
	case *Hello:
		w.WriteUint16BE(pkt.Nonce)
		w.WriteByte(pkt.HazelVersion)
		w.WriteInt32(pkt.ClientVersion)
		w.WriteString(pkt.Username)
		w.WriteUint32(pkt.Language)
		if pkt.Modded {
			w.WriteByte(pkt.ReactorProtocol)
			w.WritePackedUint32(pkt.ModCount)
		}
	case *Disconnect:
		if pkt.HasReason {
			w.WriteByte(1)
			w.BeginMessage(0)
			w.WriteByte(byte(pkt.Reason))
			if pkt.Reason == ReasonCustom {
				w.WriteString(pkt.Message)
			}
			if err := w.EndMessage(); err != nil {
				return err
			}
		}
	case *Ack:
		w.WriteUint16BE(pkt.Nonce)
		w.WriteByte(pkt.MissingMask)
	case *Ping:
		w.WriteUint16BE(pkt.Nonce)
	default:
		return fmt.Errorf("unknown root packet type %T", p)
	}
	return nil
}
