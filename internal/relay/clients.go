package relay

import "net"

// ConnectionManager owns all connections, keyed by "address:port".
// Mutated only from the event loop.
type ConnectionManager struct {
	byKey  map[string]*Connection
	nextID uint32
	sink   PacketSink
}

// NewConnectionManager creates an empty connection registry.
func NewConnectionManager(sink PacketSink) *ConnectionManager {
	return &ConnectionManager{
		byKey: make(map[string]*Connection, 256),
		sink:  sink,
	}
}

// Lookup returns the connection for the endpoint, or nil.
func (cm *ConnectionManager) Lookup(addr *net.UDPAddr) *Connection {
	return cm.byKey[addrKey(addr)]
}

// GetOrCreate returns the connection for the endpoint, allocating a fresh
// monotonically increasing client-id on first sight.
func (cm *ConnectionManager) GetOrCreate(addr *net.UDPAddr) (*Connection, bool) {
	key := addrKey(addr)
	if c, ok := cm.byKey[key]; ok {
		return c, false
	}
	cm.nextID++
	c := newConnection(addr, cm.nextID, cm.sink)
	cm.byKey[key] = c
	return c, true
}

// Remove deletes the connection by its endpoint key.
func (cm *ConnectionManager) Remove(c *Connection) {
	delete(cm.byKey, c.key)
}

// Count returns the number of known connections.
func (cm *ConnectionManager) Count() int {
	return len(cm.byKey)
}

// ForEach iterates over all connections. If fn returns false, iteration
// stops.
func (cm *ConnectionManager) ForEach(fn func(*Connection) bool) {
	for _, c := range cm.byKey {
		if !fn(c) {
			return
		}
	}
}
