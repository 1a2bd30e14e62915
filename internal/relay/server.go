package relay

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/skeldgo/skeld/internal/chat"
	"github.com/skeldgo/skeld/internal/config"
	"github.com/skeldgo/skeld/internal/locale"
	"github.com/skeldgo/skeld/internal/plugin"
	"github.com/skeldgo/skeld/internal/protocol"
)

// datagram is one raw inbound packet queued for the event loop.
type datagram struct {
	data []byte
	addr *net.UDPAddr
}

// Server is the relay process: one UDP socket, one event loop. Datagrams,
// reliability ticks, and operator commands all serialize on the loop, so
// handlers never race.
type Server struct {
	cfg     *config.Server
	locale  locale.Catalog
	plugins plugin.Host
	chat    *chat.Table

	allowedVersions []protocol.ClientVersion

	conns *ConnectionManager
	rooms *RoomManager

	joinHooks   []JoinHook
	createHooks []CreateHook

	sink   PacketSink
	events chan func()
}

// New builds a server from configuration. The socket is bound in Run.
func New(cfg *config.Server, cat locale.Catalog, plugins plugin.Host, table *chat.Table) (*Server, error) {
	s := &Server{
		cfg:     cfg,
		locale:  cat,
		plugins: plugins,
		chat:    table,
		events:  make(chan func(), 64),
	}

	for _, v := range cfg.Versions {
		parsed, err := protocol.ParseVersionString(v)
		if err != nil {
			return nil, fmt.Errorf("versions: %w", err)
		}
		s.allowedVersions = append(s.allowedVersions, parsed)
	}

	scheme := protocol.CodeV2
	if cfg.Rooms.GameCodes == "v1" {
		scheme = protocol.CodeV1
	}

	s.conns = NewConnectionManager(s)
	s.rooms = NewRoomManager(s, scheme, time.Duration(cfg.Rooms.CreateTimeout)*time.Second)
	return s, nil
}

// WriteToUDP forwards to the bound socket. Server is its own PacketSink so
// connections created before the bind still route to the live socket; tests
// swap the sink for a capture.
func (s *Server) WriteToUDP(b []byte, addr *net.UDPAddr) (int, error) {
	if s.sink == nil {
		return 0, fmt.Errorf("socket not bound")
	}
	return s.sink.WriteToUDP(b, addr)
}

// RegisterJoinHook adds a pre-join hook. Startup only.
func (s *Server) RegisterJoinHook(h JoinHook) {
	s.joinHooks = append(s.joinHooks, h)
}

// RegisterCreateHook adds a pre-create hook. Startup only.
func (s *Server) RegisterCreateHook(h CreateHook) {
	s.createHooks = append(s.createHooks, h)
}

// Run binds the UDP socket and drives the event loop until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	sock, err := net.ListenUDP("udp", &net.UDPAddr{Port: s.cfg.Socket.Port})
	if err != nil {
		return fmt.Errorf("binding udp port %d: %w", s.cfg.Socket.Port, err)
	}
	defer sock.Close()
	s.sink = sock

	slog.Info("server listening",
		"cluster", s.cfg.ClusterID,
		"addr", sock.LocalAddr(),
		"gameCodes", s.cfg.Rooms.GameCodes,
		"reactor", s.cfg.Reactor.Enabled)

	datagrams := make(chan datagram, 256)
	readErr := make(chan error, 1)
	go readLoop(sock, datagrams, readErr)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown()
			return nil

		case err := <-readErr:
			return fmt.Errorf("reading udp socket: %w", err)

		case d := <-datagrams:
			s.handleDatagram(d.data, d.addr, time.Now())

		case now := <-ticker.C:
			s.handleTick(now)

		case fn := <-s.events:
			fn()
		}
	}
}

// readLoop pumps the socket into the event loop. Exits when the socket
// closes.
func readLoop(sock *net.UDPConn, out chan<- datagram, fail chan<- error) {
	buf := make([]byte, 2048)
	for {
		n, addr, err := sock.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			fail <- err
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		out <- datagram{data: data, addr: addr}
	}
}

// handleTick runs the shared 2000 ms reliability pass and the empty-room
// sweep.
func (s *Server) handleTick(now time.Time) {
	var dead []*Connection
	s.conns.ForEach(func(c *Connection) bool {
		if !c.tick(now) {
			dead = append(dead, c)
		}
		return true
	})
	for _, c := range dead {
		slog.Info("connection timed out",
			"client", c.id,
			"username", c.username)
		s.removeConnection(c, protocol.ReasonExitGame, now)
	}
	s.rooms.sweep(now)
}

// shutdown disconnects every client before the socket closes.
func (s *Server) shutdown() {
	slog.Info("server shutting down",
		"connections", s.conns.Count(),
		"rooms", s.rooms.Count())
	s.conns.ForEach(func(c *Connection) bool {
		c.sendDisconnect(protocol.ReasonDestroy, "")
		return true
	})
}

// Submit schedules fn onto the event loop and waits for it to finish. This
// is the only safe way to touch server state from another goroutine.
func (s *Server) Submit(fn func()) {
	done := make(chan struct{})
	s.events <- func() {
		defer close(done)
		fn()
	}
	<-done
}

// disconnect performs a graceful disconnect: reason packet first, then
// removal.
func (s *Server) disconnect(conn *Connection, reason protocol.DisconnectReason, message string) {
	if conn.disconnecting {
		return
	}
	conn.disconnecting = true
	conn.sendDisconnect(reason, message)
	s.removeConnection(conn, reason, time.Now())
}

// removeConnection detaches the connection from its room (announcing the
// departure) and deletes it from the registry.
func (s *Server) removeConnection(conn *Connection, reason protocol.DisconnectReason, now time.Time) {
	if conn.room != nil {
		conn.room.RemoveMember(conn, reason, now)
	}
	s.conns.Remove(conn)
	slog.Info("connection removed", "client", conn.id, "reason", reason)
}

// Query surface for the operator console. Call these inside Submit.

// ForEachConnection iterates over all connections.
func (s *Server) ForEachConnection(fn func(*Connection) bool) {
	s.conns.ForEach(fn)
}

// ForEachRoom iterates over all rooms.
func (s *Server) ForEachRoom(fn func(*Room) bool) {
	s.rooms.ForEach(fn)
}

// RoomByCode returns the room for the code, or nil.
func (s *Server) RoomByCode(code protocol.GameCode) *Room {
	return s.rooms.Get(code)
}

// Disconnect performs an operator-initiated graceful disconnect.
func (s *Server) Disconnect(conn *Connection, reason protocol.DisconnectReason, message string) {
	s.disconnect(conn, reason, message)
}

// DestroyRoom destroys a room on operator request.
func (s *Server) DestroyRoom(room *Room, reason protocol.DisconnectReason) {
	room.Destroy(reason, time.Now())
}

// BroadcastServerChat sends a server chat line to every member of room, or
// of all rooms when room is nil.
func (s *Server) BroadcastServerChat(text string, room *Room) {
	now := time.Now()
	line := s.locale.Format(0, locale.KeyServerBroadcast, text)
	deliver := func(r *Room) {
		for _, member := range r.members {
			if err := s.sendServerChat(r, member, line, now); err != nil {
				slog.Warn("server broadcast failed",
					"room", r.code,
					"client", member.id,
					"error", err)
			}
		}
	}
	if room != nil {
		deliver(room)
		return
	}
	s.rooms.ForEach(func(r *Room) bool {
		deliver(r)
		return true
	})
}
