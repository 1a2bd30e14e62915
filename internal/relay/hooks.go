package relay

import "github.com/skeldgo/skeld/internal/protocol"

// Pre-operation hooks. One narrow interface per operation so callers see
// exactly what can veto them; there is no general event bus.

// JoinHook runs before a connection is admitted into a room. Returning
// cancel=true refuses the join; reason becomes the custom join-error text.
type JoinHook interface {
	OnJoin(conn *Connection, room *Room) (cancel bool, reason string)
}

// CreateHook runs before a room is created. It may veto the creation or
// substitute the settings the room is built with.
type CreateHook interface {
	OnCreate(conn *Connection, settings *protocol.GameSettings) (cancel bool, altered *protocol.GameSettings)
}

// JoinHookFunc adapts a function to JoinHook.
type JoinHookFunc func(conn *Connection, room *Room) (bool, string)

func (f JoinHookFunc) OnJoin(conn *Connection, room *Room) (bool, string) {
	return f(conn, room)
}

// CreateHookFunc adapts a function to CreateHook.
type CreateHookFunc func(conn *Connection, settings *protocol.GameSettings) (bool, *protocol.GameSettings)

func (f CreateHookFunc) OnCreate(conn *Connection, settings *protocol.GameSettings) (bool, *protocol.GameSettings) {
	return f(conn, settings)
}
