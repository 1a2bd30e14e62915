package relay

import (
	"log/slog"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/skeldgo/skeld/internal/locale"
	"github.com/skeldgo/skeld/internal/protocol"
)

// mirrorChunkSize bounds how many mirrored plugin declarations ride in one
// reliable packet during the mod-framework handshake.
const mirrorChunkSize = 4

// handleHello drives the New → (ModsAwaited | Ready) transition. The root
// ack for the hello nonce is the handshake acknowledgement; mirrored server
// plugins follow in chunked reliable packets for modded clients.
func (s *Server) handleHello(conn *Connection, hello *protocol.Hello, now time.Time) {
	if conn.state != StateNew {
		// Retransmitted hello; the ack already went out.
		return
	}

	conn.username = hello.Username
	conn.language = hello.Language
	conn.clientVersion = protocol.ClientVersion(hello.ClientVersion)

	if !s.versionAllowed(conn.clientVersion) {
		slog.Info("rejecting client version",
			"client", conn.id,
			"version", conn.clientVersion)
		s.disconnect(conn, protocol.ReasonIncorrectVersion, "")
		return
	}

	reactor := s.cfg.Reactor
	if !hello.Modded {
		if reactor.Enabled && !reactor.AllowNormalClients {
			s.disconnect(conn, protocol.ReasonCustom,
				s.locale.Format(conn.language, locale.KeyModFrameworkRequired))
			return
		}
		conn.state = StateReady
		slog.Info("client connected",
			"client", conn.id,
			"username", conn.username,
			"version", conn.clientVersion)
		return
	}

	if !reactor.Enabled {
		s.disconnect(conn, protocol.ReasonCustom,
			s.locale.Format(conn.language, locale.KeyModFrameworkDisabled))
		return
	}

	conn.modded = true
	conn.declaredModCount = hello.ModCount
	s.sendMirroredPlugins(conn, now)

	if hello.ModCount == 0 {
		conn.state = StateReady
	} else {
		conn.state = StateModsAwaited
	}
	slog.Info("modded client connected",
		"client", conn.id,
		"username", conn.username,
		"version", conn.clientVersion,
		"declaredMods", hello.ModCount)
}

// sendMirroredPlugins announces server plugins that mirror as mods, at most
// mirrorChunkSize declarations per reliable packet.
func (s *Server) sendMirroredPlugins(conn *Connection, now time.Time) {
	mirrored := s.plugins.Mirrored()
	for start := 0; start < len(mirrored); start += mirrorChunkSize {
		end := start + mirrorChunkSize
		if end > len(mirrored) {
			end = len(mirrored)
		}
		children := make([]*protocol.Message, 0, end-start)
		for _, d := range mirrored[start:end] {
			children = append(children, protocol.BuildModDeclaration(d))
		}
		if err := conn.sendReliable(children, now); err != nil {
			slog.Warn("announcing mirrored plugins",
				"client", conn.id, "error", err)
			return
		}
	}
}

// handleModDeclaration records one declared client mod. Once the declared
// count is reached the connection becomes Ready; excess declarations are
// silently discarded.
func (s *Server) handleModDeclaration(conn *Connection, m *protocol.Message) {
	if conn.state != StateModsAwaited {
		return
	}
	d, err := protocol.DecodeModDeclaration(m)
	if err != nil {
		slog.Warn("bad mod declaration", "client", conn.id, "error", err)
		return
	}
	conn.addMod(d)
	slog.Debug("mod declared",
		"client", conn.id,
		"mod", d.ModID,
		"version", d.Version,
		"side", d.Side)
	if uint32(len(conn.mods)) >= conn.declaredModCount {
		conn.state = StateReady
		slog.Info("mod handshake complete",
			"client", conn.id,
			"mods", len(conn.mods))
	}
}

// versionAllowed checks the declared client version against the configured
// accepted builds, ignoring the revision component.
func (s *Server) versionAllowed(v protocol.ClientVersion) bool {
	if len(s.allowedVersions) == 0 {
		return true
	}
	for _, allowed := range s.allowedVersions {
		if allowed.MatchesBuild(v) {
			return true
		}
	}
	return false
}

// validateJoinMods runs the join-time mod checks: handshake completeness,
// the server-wide mod policy, and host/joiner symmetry. A non-empty message
// means the join must be refused with a custom disconnect.
func (s *Server) validateJoinMods(conn *Connection, room *Room) (string, bool) {
	if conn.state != StateReady || uint32(len(conn.mods)) < conn.declaredModCount {
		return s.locale.Format(conn.language, locale.KeyModsIncomplete), false
	}
	if !conn.modded {
		return "", true
	}

	reactor := s.cfg.Reactor
	for modID, policy := range reactor.Mods {
		declared, has := conn.mods[modID]
		if !has {
			if policy.Banned || policy.Optional {
				continue
			}
			want := policy.Version
			if want == "" {
				want = "any"
			}
			return s.locale.Format(conn.language, locale.KeyModMissing, modID, want), false
		}
		if policy.Banned {
			return s.locale.Format(conn.language, locale.KeyModBanned, modID), false
		}
		if policy.Version != "" && !versionInRange(declared.Version, policy.Version) {
			return s.locale.Format(conn.language, locale.KeyModVersionMismatch,
				modID, policy.Version, declared.Version), false
		}
	}
	if !reactor.AllowExtraMods {
		for modID := range conn.mods {
			if _, ok := reactor.Mods[modID]; !ok {
				return s.locale.Format(conn.language, locale.KeyModNotAllowed, modID), false
			}
		}
	}

	if reactor.RequireHostMods && room != nil {
		if host := room.Host(); host != nil && host != conn {
			if modID, ok := modSetsMatch(host, conn, reactor.BlockClientSideOnly); !ok {
				return s.locale.Format(conn.language, locale.KeyModHostMismatch, modID), false
			}
		}
	}
	return "", true
}

// modSetsMatch checks host/joiner mod symmetry. Client-side-only mods are
// skipped when skipClientSide is set. Returns the first offending mod-id.
func modSetsMatch(host, joiner *Connection, skipClientSide bool) (string, bool) {
	for modID, hostMod := range host.mods {
		if skipClientSide && hostMod.Side == protocol.ModSideClientside {
			continue
		}
		joinerMod, ok := joiner.mods[modID]
		if !ok || joinerMod.Version != hostMod.Version {
			return modID, false
		}
	}
	for modID, joinerMod := range joiner.mods {
		if skipClientSide && joinerMod.Side == protocol.ModSideClientside {
			continue
		}
		if _, ok := host.mods[modID]; !ok {
			return modID, false
		}
	}
	return "", true
}

// versionInRange matches a declared mod version against a semver constraint.
// Unparseable versions or constraints never match.
func versionInRange(version, constraint string) bool {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		slog.Warn("bad mod policy version constraint", "constraint", constraint, "error", err)
		return false
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return false
	}
	return c.Check(v)
}
