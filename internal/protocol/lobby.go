package protocol

import (
	"fmt"
	"net"

	"github.com/skeldgo/skeld/internal/protocol/packet"
)

// Typed views over the lobby-management child messages. Children are kept as
// raw Message values for relaying; these helpers decode the few the server
// must interpret and build the ones it originates. A handful of tags are
// dual-meaning: the serverbound and clientbound payloads differ, so decode
// helpers take the Direction explicitly.

// HostGame (serverbound) asks the server to allocate a room.
type HostGame struct {
	Settings *GameSettings
}

// DecodeHostGame decodes a serverbound HostGame child.
func DecodeHostGame(m *Message) (*HostGame, error) {
	if m.Tag != TagHostGame {
		return nil, fmt.Errorf("HostGame: unexpected tag 0x%02X", m.Tag)
	}
	settings, err := ParseGameSettings(m.Reader())
	if err != nil {
		return nil, fmt.Errorf("HostGame: %w", err)
	}
	return &HostGame{Settings: settings}, nil
}

// BuildHostGameReply builds the clientbound HostGame carrying the new code.
func BuildHostGameReply(code GameCode) *Message {
	w := packet.Get()
	defer w.Put()
	w.WriteInt32(int32(code))
	return &Message{Tag: TagHostGame, Payload: w.BytesCopy()}
}

// JoinGame (serverbound) asks to join the room named by code.
type JoinGame struct {
	Code GameCode
}

// DecodeJoinGame decodes the dual-meaning JoinGame tag. Serverbound it is a
// join request; clientbound it is a join error, which the relay never decodes.
func DecodeJoinGame(m *Message, dir Direction) (*JoinGame, error) {
	if m.Tag != TagJoinGame {
		return nil, fmt.Errorf("JoinGame: unexpected tag 0x%02X", m.Tag)
	}
	if dir != Serverbound {
		return nil, fmt.Errorf("JoinGame: clientbound payload is a join error")
	}
	r := m.Reader()
	code, err := r.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("JoinGame code: %w", err)
	}
	return &JoinGame{Code: GameCode(code)}, nil
}

// BuildJoinError builds the clientbound JoinGame error variant.
func BuildJoinError(reason DisconnectReason, message string) *Message {
	w := packet.Get()
	defer w.Put()
	w.WriteByte(byte(reason))
	if reason == ReasonCustom {
		w.WriteString(message)
	}
	return &Message{Tag: TagJoinGame, Payload: w.BytesCopy()}
}

// BuildJoinedGame builds the clientbound JoinedGame sent to a new member,
// carrying the full member list.
func BuildJoinedGame(code GameCode, joined, host uint32, members []uint32) *Message {
	w := packet.Get()
	defer w.Put()
	w.WriteInt32(int32(code))
	w.WritePackedUint32(joined)
	w.WritePackedUint32(host)
	w.WritePackedUint32(uint32(len(members)))
	for _, id := range members {
		w.WritePackedUint32(id)
	}
	return &Message{Tag: TagJoinedGame, Payload: w.BytesCopy()}
}

// BuildJoinBroadcast builds the clientbound JoinGame variant announcing a new
// member to the existing ones.
func BuildJoinBroadcast(code GameCode, joined, host uint32) *Message {
	w := packet.Get()
	defer w.Put()
	w.WriteInt32(int32(code))
	w.WritePackedUint32(joined)
	w.WritePackedUint32(host)
	return &Message{Tag: TagJoinGame, Payload: w.BytesCopy()}
}

// StartGame / EndGame carry the room code; EndGame adds a reason byte.

// DecodeGameCodeOnly decodes children whose whole payload is the room code
// (StartGame, RemoveGame and the serverbound AlterGame prefix share this).
func DecodeGameCodeOnly(m *Message) (GameCode, error) {
	r := m.Reader()
	code, err := r.ReadInt32()
	if err != nil {
		return 0, fmt.Errorf("tag 0x%02X code: %w", m.Tag, err)
	}
	return GameCode(code), nil
}

// BuildStartGame builds the clientbound StartGame broadcast.
func BuildStartGame(code GameCode) *Message {
	w := packet.Get()
	defer w.Put()
	w.WriteInt32(int32(code))
	return &Message{Tag: TagStartGame, Payload: w.BytesCopy()}
}

// EndGame (dual): serverbound from the host ends the round; the clientbound
// broadcast carries the same layout.
type EndGame struct {
	Code   GameCode
	Reason byte
	ShowAd bool
}

// DecodeEndGame decodes an EndGame child.
func DecodeEndGame(m *Message) (*EndGame, error) {
	r := m.Reader()
	code, err := r.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("EndGame code: %w", err)
	}
	reason, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("EndGame reason: %w", err)
	}
	showAd, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("EndGame showAd: %w", err)
	}
	return &EndGame{Code: GameCode(code), Reason: reason, ShowAd: showAd != 0}, nil
}

// BuildEndGame builds an EndGame broadcast.
func BuildEndGame(code GameCode, reason byte, showAd bool) *Message {
	w := packet.Get()
	defer w.Put()
	w.WriteInt32(int32(code))
	w.WriteByte(reason)
	if showAd {
		w.WriteByte(1)
	} else {
		w.WriteByte(0)
	}
	return &Message{Tag: TagEndGame, Payload: w.BytesCopy()}
}

// AlterGame toggles a room flag (only publicity is defined upstream).
type AlterGame struct {
	Code  GameCode
	Flag  byte
	Value byte
}

// DecodeAlterGame decodes an AlterGame child.
func DecodeAlterGame(m *Message) (*AlterGame, error) {
	r := m.Reader()
	code, err := r.ReadInt32()
	if err != nil {
		return nil, fmt.Errorf("AlterGame code: %w", err)
	}
	flag, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("AlterGame flag: %w", err)
	}
	value, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("AlterGame value: %w", err)
	}
	return &AlterGame{Code: GameCode(code), Flag: flag, Value: value}, nil
}

// BuildAlterGame builds an AlterGame broadcast.
func BuildAlterGame(code GameCode, flag, value byte) *Message {
	w := packet.Get()
	defer w.Put()
	w.WriteInt32(int32(code))
	w.WriteByte(flag)
	w.WriteByte(value)
	return &Message{Tag: TagAlterGame, Payload: w.BytesCopy()}
}

// KickPlayer (serverbound, host-only) names a member to remove.
type KickPlayer struct {
	Target uint32
	Banned bool
}

// DecodeKickPlayer decodes a serverbound KickPlayer child.
func DecodeKickPlayer(m *Message) (*KickPlayer, error) {
	r := m.Reader()
	target, err := r.ReadPackedUint32()
	if err != nil {
		return nil, fmt.Errorf("KickPlayer target: %w", err)
	}
	banned, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("KickPlayer banned: %w", err)
	}
	return &KickPlayer{Target: target, Banned: banned != 0}, nil
}

// BuildKickPlayer builds the clientbound KickPlayer broadcast.
func BuildKickPlayer(code GameCode, target uint32, banned bool) *Message {
	w := packet.Get()
	defer w.Put()
	w.WriteInt32(int32(code))
	w.WritePackedUint32(target)
	if banned {
		w.WriteByte(1)
	} else {
		w.WriteByte(0)
	}
	return &Message{Tag: TagKickPlayer, Payload: w.BytesCopy()}
}

// BuildRemovePlayer builds the clientbound RemovePlayer broadcast announcing
// a departure and the (possibly re-elected) host.
func BuildRemovePlayer(code GameCode, removed, host uint32, reason DisconnectReason) *Message {
	w := packet.Get()
	defer w.Put()
	w.WriteInt32(int32(code))
	w.WritePackedUint32(removed)
	w.WritePackedUint32(host)
	w.WriteByte(byte(reason))
	return &Message{Tag: TagRemovePlayer, Payload: w.BytesCopy()}
}

// BuildRemoveGame builds the clientbound RemoveGame notice.
func BuildRemoveGame(reason DisconnectReason) *Message {
	return &Message{Tag: TagRemoveGame, Payload: []byte{byte(reason)}}
}

// BuildWaitForHost tells a joiner the host is momentarily absent and the
// join will complete when the host returns.
func BuildWaitForHost(code GameCode, joined uint32) *Message {
	w := packet.Get()
	defer w.Put()
	w.WriteInt32(int32(code))
	w.WritePackedUint32(joined)
	return &Message{Tag: TagWaitForHost, Payload: w.BytesCopy()}
}

// GameListing is one entry of a GetGameList response.
type GameListing struct {
	Addr         net.IP
	Port         uint16
	Code         GameCode
	HostName     string
	PlayerCount  uint8
	Age          uint32 // seconds since room creation
	MapID        byte
	NumImpostors uint8
	MaxPlayers   uint8
}

// GetGameList (serverbound) carries the requester's filter settings.
type GetGameList struct {
	Filter *GameSettings
}

// DecodeGetGameList decodes a serverbound GetGameList child.
func DecodeGetGameList(m *Message) (*GetGameList, error) {
	r := m.Reader()
	// Leading version byte, then the filter settings blob.
	if _, err := r.ReadByte(); err != nil {
		return nil, fmt.Errorf("GetGameList version: %w", err)
	}
	filter, err := ParseGameSettings(r)
	if err != nil {
		return nil, fmt.Errorf("GetGameList filter: %w", err)
	}
	return &GetGameList{Filter: filter}, nil
}

// BuildGameList builds the clientbound GetGameList response with up to the
// caller-provided listings, each Hazel-framed inside a list container.
func BuildGameList(listings []*GameListing) *Message {
	w := packet.Get()
	defer w.Put()
	w.BeginMessage(0)
	for _, g := range listings {
		w.BeginMessage(0)
		ip := g.Addr.To4()
		if ip == nil {
			ip = net.IPv4zero.To4()
		}
		w.WriteBytes(ip)
		w.WriteUint16(g.Port)
		w.WriteInt32(int32(g.Code))
		w.WriteString(g.HostName)
		w.WriteByte(g.PlayerCount)
		w.WritePackedUint32(g.Age)
		w.WriteByte(g.MapID)
		w.WriteByte(g.NumImpostors)
		w.WriteByte(g.MaxPlayers)
		w.EndMessage()
	}
	w.EndMessage()
	return &Message{Tag: TagGetGameList, Payload: w.BytesCopy()}
}
