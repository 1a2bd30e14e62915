package protocol

import (
	"fmt"

	"github.com/skeldgo/skeld/internal/protocol/packet"
)

// GameDataChild is one sub-message inside a GameData/GameDataTo container.
// Payloads stay verbatim for relaying; Known reports whether the tag is in
// the catalog (unknown tags are dropped unless opaque forwarding is enabled).
type GameDataChild struct {
	Tag     byte
	Payload []byte
}

// Known reports whether the tag belongs to the known game-data catalog.
func (c *GameDataChild) Known() bool {
	switch c.Tag {
	case GameDataTagData, GameDataTagRpc, GameDataTagSpawn, GameDataTagDespawn,
		GameDataTagSceneChange, GameDataTagReady, GameDataTagClientInfo, GameDataTagMod:
		return true
	}
	return false
}

// Reader returns a fresh reader over the child payload.
func (c *GameDataChild) Reader() *packet.Reader {
	return packet.NewReader(c.Payload)
}

// GameData is the relayed gameplay container. Target is only present for
// the GameDataTo variant.
type GameData struct {
	Code     GameCode
	Target   uint32
	Targeted bool
	Children []*GameDataChild
}

// DecodeGameData decodes a GameData or GameDataTo child message.
func DecodeGameData(m *Message) (*GameData, error) {
	if m.Tag != TagGameData && m.Tag != TagGameDataTo {
		return nil, fmt.Errorf("GameData: unexpected tag 0x%02X", m.Tag)
	}
	r := m.Reader()
	code, err := r.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("GameData code: %w", err)
	}
	gd := &GameData{Code: GameCode(code)}
	if m.Tag == TagGameDataTo {
		gd.Targeted = true
		if gd.Target, err = r.ReadPackedUint32(); err != nil {
			return nil, fmt.Errorf("GameDataTo target: %w", err)
		}
	}
	for r.Remaining() > 0 {
		tag, body, err := r.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("GameData child %d: %w", len(gd.Children), err)
		}
		payload, err := body.ReadBytesCopy(body.Remaining())
		if err != nil {
			return nil, err
		}
		gd.Children = append(gd.Children, &GameDataChild{Tag: tag, Payload: payload})
	}
	return gd, nil
}

// BuildGameData rebuilds a GameData/GameDataTo child message from parts.
func BuildGameData(code GameCode, target uint32, targeted bool, children []*GameDataChild) *Message {
	w := packet.Get()
	defer w.Put()
	w.WriteInt32(int32(code))
	tag := TagGameData
	if targeted {
		tag = TagGameDataTo
		w.WritePackedUint32(target)
	}
	for _, c := range children {
		w.WriteUint16(uint16(len(c.Payload)))
		w.WriteByte(c.Tag)
		w.WriteBytes(c.Payload)
	}
	return &Message{Tag: tag, Payload: w.BytesCopy()}
}

// DataHeader is the prefix of a Data sub-message: the net-object it targets.
type DataHeader struct {
	NetID uint32
}

// DecodeDataHeader reads the net-id prefix of a Data sub-message.
func DecodeDataHeader(c *GameDataChild) (*DataHeader, error) {
	if c.Tag != GameDataTagData {
		return nil, fmt.Errorf("Data: unexpected tag 0x%02X", c.Tag)
	}
	r := c.Reader()
	netID, err := r.ReadPackedUint32()
	if err != nil {
		return nil, fmt.Errorf("Data netID: %w", err)
	}
	return &DataHeader{NetID: netID}, nil
}

// Rpc is a remote procedure call against a net-object.
type Rpc struct {
	NetID  uint32
	CallID byte
	Args   []byte
}

// DecodeRpc decodes an Rpc sub-message.
func DecodeRpc(c *GameDataChild) (*Rpc, error) {
	if c.Tag != GameDataTagRpc {
		return nil, fmt.Errorf("Rpc: unexpected tag 0x%02X", c.Tag)
	}
	r := c.Reader()
	netID, err := r.ReadPackedUint32()
	if err != nil {
		return nil, fmt.Errorf("Rpc netID: %w", err)
	}
	callID, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("Rpc callID: %w", err)
	}
	args, err := r.ReadBytesCopy(r.Remaining())
	if err != nil {
		return nil, err
	}
	return &Rpc{NetID: netID, CallID: callID, Args: args}, nil
}

// BuildRpc builds an Rpc sub-message.
func BuildRpc(netID uint32, callID byte, args []byte) *GameDataChild {
	w := packet.Get()
	defer w.Put()
	w.WritePackedUint32(netID)
	w.WriteByte(callID)
	w.WriteBytes(args)
	return &GameDataChild{Tag: GameDataTagRpc, Payload: w.BytesCopy()}
}

// ChatText extracts the chat string from an Rpc with RpcCallChat.
func (rpc *Rpc) ChatText() (string, error) {
	if rpc.CallID != RpcCallChat {
		return "", fmt.Errorf("ChatText: callID %d is not chat", rpc.CallID)
	}
	return packet.NewReader(rpc.Args).ReadString()
}

// BuildChatRpc builds a chat Rpc from the named net-object.
func BuildChatRpc(netID uint32, text string) *GameDataChild {
	w := packet.Get()
	defer w.Put()
	w.WriteString(text)
	args := w.BytesCopy()
	return BuildRpc(netID, RpcCallChat, args)
}

// SpawnComponent is one component of a spawned net-object.
type SpawnComponent struct {
	NetID uint32
	Data  []byte
}

// Spawn announces a net-object entering the game.
type Spawn struct {
	SpawnType  uint32
	OwnerID    int32
	Flags      byte
	Components []*SpawnComponent
}

// SpawnTypePlayer is the spawn-type of a player object. Its third component
// is the network transform that carries movement updates.
const SpawnTypePlayer uint32 = 4

// TransformComponentIndex is the index of the network-transform component
// inside a player spawn.
const TransformComponentIndex = 2

// DecodeSpawn decodes a Spawn sub-message.
func DecodeSpawn(c *GameDataChild) (*Spawn, error) {
	if c.Tag != GameDataTagSpawn {
		return nil, fmt.Errorf("Spawn: unexpected tag 0x%02X", c.Tag)
	}
	r := c.Reader()
	s := &Spawn{}
	var err error
	if s.SpawnType, err = r.ReadPackedUint32(); err != nil {
		return nil, fmt.Errorf("Spawn type: %w", err)
	}
	if s.OwnerID, err = r.ReadPackedInt32(); err != nil {
		return nil, fmt.Errorf("Spawn owner: %w", err)
	}
	if s.Flags, err = r.ReadByte(); err != nil {
		return nil, fmt.Errorf("Spawn flags: %w", err)
	}
	count, err := r.ReadPackedUint32()
	if err != nil {
		return nil, fmt.Errorf("Spawn component count: %w", err)
	}
	for i := uint32(0); i < count; i++ {
		netID, err := r.ReadPackedUint32()
		if err != nil {
			return nil, fmt.Errorf("Spawn component %d netID: %w", i, err)
		}
		_, body, err := r.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("Spawn component %d data: %w", i, err)
		}
		data, err := body.ReadBytesCopy(body.Remaining())
		if err != nil {
			return nil, err
		}
		s.Components = append(s.Components, &SpawnComponent{NetID: netID, Data: data})
	}
	return s, nil
}

// DecodeDespawn reads the net-id of a Despawn sub-message.
func DecodeDespawn(c *GameDataChild) (uint32, error) {
	if c.Tag != GameDataTagDespawn {
		return 0, fmt.Errorf("Despawn: unexpected tag 0x%02X", c.Tag)
	}
	netID, err := c.Reader().ReadPackedUint32()
	if err != nil {
		return 0, fmt.Errorf("Despawn netID: %w", err)
	}
	return netID, nil
}

// ModDeclaration announces one client mod during the mod-framework handshake.
// It arrives as the reserved 0xff child of a Reliable packet.
type ModDeclaration struct {
	NetID   uint32 // client-assigned per-mod net-id
	ModID   string
	Version string
	Side    ModSide
}

// ModSide declares which side a mod affects.
type ModSide byte

const (
	ModSideBoth       ModSide = 0
	ModSideClientside ModSide = 1
	ModSideServerside ModSide = 2
)

// String returns the side name for logging.
func (s ModSide) String() string {
	switch s {
	case ModSideBoth:
		return "Both"
	case ModSideClientside:
		return "Clientside"
	case ModSideServerside:
		return "Serverside"
	default:
		return "Unknown"
	}
}

// DecodeModDeclaration decodes the reserved-tag mod declaration child.
func DecodeModDeclaration(m *Message) (*ModDeclaration, error) {
	if m.Tag != GameDataTagMod {
		return nil, fmt.Errorf("ModDeclaration: unexpected tag 0x%02X", m.Tag)
	}
	r := m.Reader()
	d := &ModDeclaration{}
	var err error
	if d.NetID, err = r.ReadPackedUint32(); err != nil {
		return nil, fmt.Errorf("ModDeclaration netID: %w", err)
	}
	if d.ModID, err = r.ReadString(); err != nil {
		return nil, fmt.Errorf("ModDeclaration modID: %w", err)
	}
	if d.Version, err = r.ReadString(); err != nil {
		return nil, fmt.Errorf("ModDeclaration version: %w", err)
	}
	side, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("ModDeclaration side: %w", err)
	}
	d.Side = ModSide(side)
	return d, nil
}

// BuildModDeclaration builds a mod declaration child. Used for the mirrored
// server-plugin announcements and in tests.
func BuildModDeclaration(d *ModDeclaration) *Message {
	w := packet.Get()
	defer w.Put()
	w.WritePackedUint32(d.NetID)
	w.WriteString(d.ModID)
	w.WriteString(d.Version)
	w.WriteByte(byte(d.Side))
	return &Message{Tag: GameDataTagMod, Payload: w.BytesCopy()}
}
