// Package protocol implements the newline-delimited JSON envelope framing
// spoken between the chat server and its clients.
package protocol

import "time"

// TimestampLayout is the human-readable layout stamped onto outgoing
// envelopes, for example "07 Mar 2025, 09:05".
const TimestampLayout = "02 Jan 2006, 15:04"

// Wire flags. A plain chat message carries an empty flag.
const (
	FlagAuthOK         = "AUTH_OK"
	FlagAuthInvalid    = "AUTH_INVALID"
	FlagAuthDenied     = "AUTH_DENIED"
	FlagAuthBan        = "AUTH_BAN"
	FlagUserListUpdate = "USER_LIST_UPDATE"
	FlagServerClosed   = "SYS_SERVER_CLOSED"
	FlagAdminMsg       = "ADMIN_MSG"
	FlagAdminKick      = "ADMIN_KICK"
	FlagAdminBan       = "ADMIN_BAN"
	FlagAdminMute      = "ADMIN_MUTE"
	FlagClientQuit     = "CLIENT_QUIT"
)

// Envelope is one protocol frame. Every field is always serialized so that
// clients can rely on the full shape being present.
type Envelope struct {
	Flag      string `json:"flag"`
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// IsChat reports whether the envelope is a user chat message. Only these are
// recorded in the message log; system notices carry an empty sender.
func (e Envelope) IsChat() bool {
	return e.Flag == "" && e.Sender != ""
}

// Stamped returns a copy of the envelope with the timestamp set from now.
// Timestamps are assigned by the server on the way out; whatever a client
// put in the field is overwritten.
func (e Envelope) Stamped(now time.Time) Envelope {
	e.Timestamp = now.Format(TimestampLayout)
	return e
}
