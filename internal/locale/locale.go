// Package locale resolves the client-facing message strings the relay sends
// with custom disconnects and chat replies. The full localization catalog is
// an external collaborator; this is the narrow interface the core needs,
// with a built-in English fallback.
package locale

import "fmt"

// Key names one translatable message.
type Key string

const (
	KeyModFrameworkRequired Key = "mod_framework_required"
	KeyModFrameworkDisabled Key = "mod_framework_disabled"
	KeyModsIncomplete       Key = "mods_incomplete"
	KeyModMissing           Key = "mod_missing"         // args: mod-id, version
	KeyModBanned            Key = "mod_banned"          // args: mod-id
	KeyModVersionMismatch   Key = "mod_version"         // args: mod-id, want, got
	KeyModNotAllowed        Key = "mod_not_allowed"     // args: mod-id
	KeyModHostMismatch      Key = "mod_host_mismatch"   // args: mod-id
	KeyUnknownCommand       Key = "unknown_command"     // args: name
	KeyServerBroadcast      Key = "server_broadcast"    // args: text
)

// Catalog resolves message templates by client-declared language.
type Catalog interface {
	Format(language uint32, key Key, args ...any) string
}

var english = map[Key]string{
	KeyModFrameworkRequired: "This server requires the mod framework (Reactor)",
	KeyModFrameworkDisabled: "This server does not support the mod framework",
	KeyModsIncomplete:       "Haven't received all mods declared in the handshake",
	KeyModMissing:           "Missing required mod: %s (%s)",
	KeyModBanned:            "Mod is banned on this server: %s",
	KeyModVersionMismatch:   "Mod %s requires version %s, you have %s",
	KeyModNotAllowed:        "Mod is not allowed on this server: %s",
	KeyModHostMismatch:      "Your mods don't match the host's: %s",
	KeyUnknownCommand:       "No command with name: %s",
	KeyServerBroadcast:      "[server] %s",
}

// Default is an English-only catalog. It ignores the language argument;
// a real catalog collaborator substitutes per-language tables.
type Default struct{}

// Format renders the message for the key, falling back to the key itself
// when no template exists.
func (Default) Format(_ uint32, key Key, args ...any) string {
	tmpl, ok := english[key]
	if !ok {
		return string(key)
	}
	if len(args) == 0 {
		return tmpl
	}
	return fmt.Sprintf(tmpl, args...)
}
