// Package auth verifies connection authorization and client credentials for
// the chat server.
package auth

import (
	"encoding/json"

	"github.com/infodancer/chatd/internal/protocol"
	"github.com/infodancer/chatd/internal/store"
)

// Credentials is the JSON payload a client sends as its first frame.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Denial describes a rejected authentication attempt: the flag to answer
// with and the payload text. A nil Denial means the attempt succeeded.
type Denial struct {
	Flag    string
	Message string
}

// Authenticator checks peers against the connection whitelist and credential
// frames against the user and ban stores.
type Authenticator struct {
	users     *store.UserStore
	bans      *store.BanSet
	whitelist map[string]struct{}
}

// New returns an Authenticator over the given stores. whitelist entries are
// matched against peer IPs exactly; no CIDR or wildcard expansion.
func New(users *store.UserStore, bans *store.BanSet, whitelist []string) *Authenticator {
	a := &Authenticator{
		users:     users,
		bans:      bans,
		whitelist: make(map[string]struct{}, len(whitelist)),
	}
	for _, ip := range whitelist {
		a.whitelist[ip] = struct{}{}
	}
	return a
}

// Whitelisted reports whether the peer IP may attempt authentication.
func (a *Authenticator) Whitelisted(ip string) bool {
	_, ok := a.whitelist[ip]
	return ok
}

// Authenticate verifies one raw credential frame. Order matters: a banned
// username is reported as banned even when the password is wrong, and an
// unknown username and a wrong password are indistinguishable to the client.
func (a *Authenticator) Authenticate(raw []byte) (string, *Denial) {
	var creds Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return "", &Denial{Flag: protocol.FlagAuthInvalid, Message: "Invalid Credential"}
	}
	if creds.Username == "" || creds.Password == "" {
		return "", &Denial{Flag: protocol.FlagAuthInvalid, Message: "Invalid Credential"}
	}
	if a.bans.Banned(creds.Username) {
		return "", &Denial{Flag: protocol.FlagAuthBan, Message: "You Are Banned"}
	}
	user, ok := a.users.Get(creds.Username)
	if !ok {
		return "", &Denial{Flag: protocol.FlagAuthDenied, Message: "User Not Found."}
	}
	if !VerifyPassword(creds.Password, user.Password) {
		return "", &Denial{Flag: protocol.FlagAuthDenied, Message: "User Not Found."}
	}
	return creds.Username, nil
}
