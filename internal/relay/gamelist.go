package relay

import (
	"log/slog"
	"time"

	"github.com/skeldgo/skeld/internal/protocol"
)

// maxGameListEntries caps one GetGameList response.
const maxGameListEntries = 10

// handleGetGameList answers a lobby-browser query. Listings exclude the
// reserved LOCAL code and private rooms; the requester's settings blob acts
// as the filter (keyword equality, map-mask bit, impostor count with zero as
// a wildcard).
func (s *Server) handleGetGameList(conn *Connection, m *protocol.Message, now time.Time) {
	req, err := protocol.DecodeGetGameList(m)
	if err != nil {
		slog.Warn("bad GetGameList", "client", conn.id, "error", err)
		return
	}

	listings := make([]*protocol.GameListing, 0, maxGameListEntries)
	s.rooms.ForEach(func(r *Room) bool {
		if !roomMatchesFilter(r, req.Filter) {
			return true
		}
		host := r.Host()
		if host == nil {
			return true
		}
		listings = append(listings, &protocol.GameListing{
			Addr:         host.addr.IP,
			Port:         uint16(host.addr.Port),
			Code:         r.code,
			HostName:     host.username,
			PlayerCount:  uint8(len(r.members)),
			Age:          r.Age(now),
			MapID:        r.settings.MapID,
			NumImpostors: r.settings.NumImpostors,
			MaxPlayers:   r.settings.MaxPlayers,
		})
		return len(listings) < maxGameListEntries
	})

	if err := conn.sendReliable([]*protocol.Message{protocol.BuildGameList(listings)}, now); err != nil {
		slog.Warn("sending game list", "client", conn.id, "error", err)
	}
}

func roomMatchesFilter(r *Room, filter *protocol.GameSettings) bool {
	if r.code == protocol.CodeLocal || !r.public || r.state != GameNotStarted {
		return false
	}
	if filter == nil {
		return true
	}
	if filter.Keywords != 0 && filter.Keywords != r.settings.Keywords {
		return false
	}
	// The filter's map field is a bitmask of wanted maps.
	if filter.MapID != 0 && filter.MapID&(1<<r.settings.MapID) == 0 {
		return false
	}
	if filter.NumImpostors != 0 && filter.NumImpostors != r.settings.NumImpostors {
		return false
	}
	return true
}
