// Package plugin holds the narrow interface to the plugin host. The on-disk
// loader is an external collaborator; the core only needs to enumerate
// loaded plugins (for the operator surface and the mod-handshake mirror
// list) and to forward load/unload requests.
package plugin

import (
	"fmt"
	"sync"

	"github.com/skeldgo/skeld/internal/protocol"
)

// Plugin describes one loaded server plugin.
type Plugin struct {
	ID      string
	Version string
	// Side mirrors the mod-framework network side. Plugins with a side
	// other than Clientside are announced to modded clients during the
	// handshake.
	Side protocol.ModSide
	Path string
}

// Host is the surface the core and the operator console use.
type Host interface {
	// Load loads a plugin from path and returns its descriptor.
	Load(path string) (*Plugin, error)
	// Unload removes a loaded plugin by id.
	Unload(id string) error
	// Plugins lists loaded plugins.
	Plugins() []*Plugin
	// Mirrored lists the mod declarations announced to modded clients.
	Mirrored() []*protocol.ModDeclaration
}

// LoadFunc is the injected on-disk loader.
type LoadFunc func(path string) (*Plugin, error)

// Registry is the in-memory Host implementation. Loading from disk is
// delegated to an injected LoadFunc; without one, Load fails cleanly.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]*Plugin
	loader  LoadFunc
}

// NewRegistry creates an empty plugin registry.
func NewRegistry(loader LoadFunc) *Registry {
	return &Registry{
		plugins: make(map[string]*Plugin, 8),
		loader:  loader,
	}
}

// Register adds a plugin descriptor directly. Used by the loader collaborator
// and by tests.
func (r *Registry) Register(p *Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plugins[p.ID]; ok {
		return fmt.Errorf("plugin %s already loaded", p.ID)
	}
	r.plugins[p.ID] = p
	return nil
}

// Load loads a plugin from path via the injected loader.
func (r *Registry) Load(path string) (*Plugin, error) {
	if r.loader == nil {
		return nil, fmt.Errorf("no plugin loader configured")
	}
	p, err := r.loader(path)
	if err != nil {
		return nil, fmt.Errorf("loading plugin %s: %w", path, err)
	}
	if err := r.Register(p); err != nil {
		return nil, err
	}
	return p, nil
}

// Unload removes a loaded plugin by id.
func (r *Registry) Unload(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plugins[id]; !ok {
		return fmt.Errorf("plugin %s not loaded", id)
	}
	delete(r.plugins, id)
	return nil
}

// Plugins lists loaded plugins.
func (r *Registry) Plugins() []*Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, p)
	}
	return out
}

// Mirrored lists mod declarations for plugins visible to modded clients.
func (r *Registry) Mirrored() []*protocol.ModDeclaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*protocol.ModDeclaration, 0, len(r.plugins))
	var netID uint32
	for _, p := range r.plugins {
		if p.Side == protocol.ModSideClientside {
			continue
		}
		out = append(out, &protocol.ModDeclaration{
			NetID:   netID,
			ModID:   p.ID,
			Version: p.Version,
			Side:    p.Side,
		})
		netID++
	}
	return out
}
