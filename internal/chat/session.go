package chat

import (
	"github.com/infodancer/chatd/internal/protocol"
	"github.com/infodancer/chatd/internal/server"
)

// State is the position of a session in its lifecycle.
type State int

const (
	// StateAuthenticating is the initial state; the session is waiting for
	// the single credential frame.
	StateAuthenticating State = iota

	// StateServing is the active state; frames are read, checked against
	// policy, and dispatched.
	StateServing

	// StateRemoving is the teardown state; the registry entry is being
	// dropped and the socket closed.
	StateRemoving

	// StateGone is terminal.
	StateGone
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateAuthenticating:
		return "AUTHENTICATING"
	case StateServing:
		return "SERVING"
	case StateRemoving:
		return "REMOVING"
	case StateGone:
		return "GONE"
	default:
		return "UNKNOWN"
	}
}

// leaveReason says how a session is leaving, which decides what the rest of
// the chat is told about it.
type leaveReason int

const (
	// leaveNormal is a client quit or transport failure; the chat is told
	// the user left and the member list is refreshed.
	leaveNormal leaveReason = iota

	// leaveSilent is a removal something else already announced, such as a
	// kick or ban.
	leaveSilent

	// leaveShutdown is server shutdown; the client is sent the closing
	// notice and no departure is announced.
	leaveShutdown
)

// Session is the per-connection state: the transport handle, the stream
// decoder holding partial frames, and the bound username once the
// credential frame has been accepted.
type Session struct {
	conn     *server.Connection
	state    State
	username string
	decoder  protocol.StreamDecoder
}

// NewSession wraps conn in an unauthenticated session.
func NewSession(conn *server.Connection) *Session {
	return &Session{conn: conn, state: StateAuthenticating}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	return s.state
}

// Username returns the bound username, empty until authentication succeeds.
func (s *Session) Username() string {
	return s.username
}
