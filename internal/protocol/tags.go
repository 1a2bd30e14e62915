package protocol

import "fmt"

// Root packet tags (first byte of every datagram).
const (
	TagUnreliable byte = 0x00
	TagReliable   byte = 0x01
	TagHello      byte = 0x08
	TagDisconnect byte = 0x09
	TagAck        byte = 0x0a
	TagPing       byte = 0x0c
)

// Child message tags (Hazel-framed messages inside Reliable/Unreliable).
const (
	TagHostGame     byte = 0x00
	TagJoinGame     byte = 0x01
	TagStartGame    byte = 0x02
	TagRemoveGame   byte = 0x03
	TagRemovePlayer byte = 0x04
	TagGameData     byte = 0x05
	TagGameDataTo   byte = 0x06
	TagJoinedGame   byte = 0x07
	TagEndGame      byte = 0x08
	TagAlterGame    byte = 0x0a
	TagKickPlayer   byte = 0x0b
	TagWaitForHost  byte = 0x0c
	TagRedirect     byte = 0x0d
	TagGetGameList  byte = 0x10
)

// Game-data sub-message tags (inside GameData/GameDataTo).
const (
	GameDataTagData        byte = 0x01
	GameDataTagRpc         byte = 0x02
	GameDataTagSpawn       byte = 0x04
	GameDataTagDespawn     byte = 0x05
	GameDataTagSceneChange byte = 0x06
	GameDataTagReady       byte = 0x07
	GameDataTagClientInfo  byte = 0x08
	GameDataTagMod         byte = 0xff // mod framework reserved tag
)

// RpcCallChat is the RPC call-id carrying a chat message.
const RpcCallChat byte = 13

// Direction selects the dialect for dual-meaning child tags.
type Direction int

const (
	// Serverbound packets travel client → server.
	Serverbound Direction = iota
	// Clientbound packets travel server → client.
	Clientbound
)

// String returns the direction name for logging.
func (d Direction) String() string {
	switch d {
	case Serverbound:
		return "serverbound"
	case Clientbound:
		return "clientbound"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// AlterGameFlagPublicity is the only AlterGame flag the upstream client sends.
const AlterGameFlagPublicity byte = 1
