package protocol

import (
	"fmt"

	"github.com/skeldgo/skeld/internal/protocol/packet"
)

// GameSettings is the game-options blob carried by HostGame and AlterGame.
// The core only interprets the handful of header fields it needs for join
// checks and game listing; the full blob is kept verbatim so relayed copies
// stay bit-exact across client versions that append trailing fields.
type GameSettings struct {
	Version      byte
	MaxPlayers   uint8
	Keywords     uint32
	MapID        byte
	NumImpostors uint8

	// Raw is the settings body exactly as received (without the packed
	// length prefix). Never mutated.
	Raw []byte
}

// settings body offsets after the version byte.
const (
	settingsMinLen      = 30
	offMaxPlayers       = 1
	offKeywords         = 2
	offMapID            = 6
	offNumImpostors     = 29 // after 4 float32 tuning fields + task counts + meetings
)

// ParseGameSettings reads a packed-length-prefixed settings blob.
func ParseGameSettings(r *packet.Reader) (*GameSettings, error) {
	length, err := r.ReadPackedUint32()
	if err != nil {
		return nil, fmt.Errorf("settings length: %w", err)
	}
	body, err := r.ReadBytesCopy(int(length))
	if err != nil {
		return nil, fmt.Errorf("settings body: %w", err)
	}
	if len(body) < settingsMinLen {
		return nil, fmt.Errorf("settings body too short: %d bytes", len(body))
	}

	s := &GameSettings{
		Version:      body[0],
		MaxPlayers:   body[offMaxPlayers],
		MapID:        body[offMapID],
		NumImpostors: body[offNumImpostors],
		Raw:          body,
	}
	s.Keywords = uint32(body[offKeywords]) |
		uint32(body[offKeywords+1])<<8 |
		uint32(body[offKeywords+2])<<16 |
		uint32(body[offKeywords+3])<<24
	return s, nil
}

// WriteTo appends the blob (packed length + body) to w.
func (s *GameSettings) WriteTo(w *packet.Writer) {
	w.WritePackedUint32(uint32(len(s.Raw)))
	w.WriteBytes(s.Raw)
}

// NewGameSettings builds a minimal settings blob. Used by tests and the
// operator surface; real lobbies always arrive with a client-built blob.
func NewGameSettings(maxPlayers, numImpostors uint8, mapID byte, keywords uint32) *GameSettings {
	body := make([]byte, settingsMinLen)
	body[0] = 2 // settings version
	body[offMaxPlayers] = maxPlayers
	body[offKeywords] = byte(keywords)
	body[offKeywords+1] = byte(keywords >> 8)
	body[offKeywords+2] = byte(keywords >> 16)
	body[offKeywords+3] = byte(keywords >> 24)
	body[offMapID] = mapID
	body[offNumImpostors] = numImpostors
	return &GameSettings{
		Version:      body[0],
		MaxPlayers:   maxPlayers,
		Keywords:     keywords,
		MapID:        mapID,
		NumImpostors: numImpostors,
		Raw:          body,
	}
}
