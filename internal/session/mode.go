package session

import "fmt"

// Mode is the current actor's identity mode. Exactly one is active at a time.
type Mode int

const (
	ModeUnauthenticated Mode = iota
	ModeAuthenticated
	ModeGhost
)

func (m Mode) String() string {
	switch m {
	case ModeUnauthenticated:
		return "unauthenticated"
	case ModeAuthenticated:
		return "authenticated"
	case ModeGhost:
		return "ghost"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	switch string(b) {
	case "unauthenticated":
		*m = ModeUnauthenticated
	case "authenticated":
		*m = ModeAuthenticated
	case "ghost":
		*m = ModeGhost
	default:
		return fmt.Errorf("unknown session mode %q", b)
	}
	return nil
}

// State is an immutable snapshot of the session.
type State struct {
	Mode        Mode   `json:"mode"`
	GhostID     string `json:"ghostId,omitempty"`
	DisplayName string `json:"displayName"`
}

// IsGuest reports whether the session is in ghost mode.
func (s State) IsGuest() bool { return s.Mode == ModeGhost }

// IsAuthenticated reports whether the session holds an authenticated identity.
func (s State) IsAuthenticated() bool { return s.Mode == ModeAuthenticated }
