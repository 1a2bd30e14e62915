package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Reactor is the mod-framework policy. In YAML it is a tri-state: `false`
// (mod framework disabled), `true` (enabled with defaults), or an object
// with per-option overrides and a mod policy table.
type Reactor struct {
	Enabled bool `yaml:"-"`

	// AllowNormalClients admits clients without the mod framework.
	AllowNormalClients bool `yaml:"allow_normal_clients"`
	// RequireHostMods enforces host/joiner mod-set symmetry at join time.
	RequireHostMods bool `yaml:"require_host_mods"`
	// BlockClientSideOnly skips client-side-only mods during the host
	// symmetry check.
	BlockClientSideOnly bool `yaml:"block_client_side_only"`
	// AllowExtraMods admits client mods absent from the policy table.
	AllowExtraMods bool `yaml:"allow_extra_mods"`

	// Mods is the server-wide mod policy keyed by mod-id.
	Mods map[string]ModPolicy `yaml:"mods"`
}

// UnmarshalYAML accepts bool or object forms.
func (r *Reactor) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var enabled bool
		if err := node.Decode(&enabled); err != nil {
			return fmt.Errorf("reactor: expected bool or mapping: %w", err)
		}
		*r = Reactor{
			Enabled:            enabled,
			AllowNormalClients: true,
			AllowExtraMods:     true,
		}
		return nil
	}

	// Object form: enabled with explicit options.
	type plain Reactor
	p := plain{
		AllowNormalClients: true,
		AllowExtraMods:     true,
	}
	if err := node.Decode(&p); err != nil {
		return fmt.Errorf("reactor: %w", err)
	}
	*r = Reactor(p)
	r.Enabled = true
	return nil
}

// ModPolicy is one entry of the reactor mod table. In YAML it is `true`
// (required), `false` (banned), or an object with version/banned/optional.
type ModPolicy struct {
	// Version is a semver constraint the client's mod version must match.
	// Empty means any version.
	Version  string `yaml:"version"`
	Banned   bool   `yaml:"banned"`
	Optional bool   `yaml:"optional"`
}

// UnmarshalYAML accepts bool or object forms.
func (m *ModPolicy) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var allowed bool
		if err := node.Decode(&allowed); err != nil {
			return fmt.Errorf("mod policy: expected bool or mapping: %w", err)
		}
		*m = ModPolicy{Banned: !allowed}
		return nil
	}

	type plain ModPolicy
	var p plain
	if err := node.Decode(&p); err != nil {
		return fmt.Errorf("mod policy: %w", err)
	}
	*m = ModPolicy(p)
	return nil
}
