package protocol

// DisconnectReason is the structured reason code carried by Disconnect and
// clientbound JoinGame-error packets. The client renders these natively;
// ReasonCustom carries a free-form string instead.
type DisconnectReason byte

const (
	ReasonExitGame         DisconnectReason = 0
	ReasonGameFull         DisconnectReason = 1
	ReasonGameStarted      DisconnectReason = 2
	ReasonGameNotFound     DisconnectReason = 3
	ReasonIncorrectVersion DisconnectReason = 5
	ReasonBanned           DisconnectReason = 6
	ReasonKicked           DisconnectReason = 7
	ReasonCustom           DisconnectReason = 8
	ReasonDestroy          DisconnectReason = 9
	ReasonHacking          DisconnectReason = 10
	ReasonError            DisconnectReason = 208
)

// String returns the reason name for logging.
func (r DisconnectReason) String() string {
	switch r {
	case ReasonExitGame:
		return "ExitGame"
	case ReasonGameFull:
		return "GameFull"
	case ReasonGameStarted:
		return "GameStarted"
	case ReasonGameNotFound:
		return "GameNotFound"
	case ReasonIncorrectVersion:
		return "IncorrectVersion"
	case ReasonBanned:
		return "Banned"
	case ReasonKicked:
		return "Kicked"
	case ReasonCustom:
		return "Custom"
	case ReasonDestroy:
		return "Destroy"
	case ReasonHacking:
		return "Hacking"
	case ReasonError:
		return "Error"
	default:
		return "Unknown"
	}
}
