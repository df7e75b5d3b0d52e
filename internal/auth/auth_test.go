package auth

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/infodancer/chatd/internal/protocol"
	"github.com/infodancer/chatd/internal/store"
)

func newTestAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	dir := t.TempDir()

	users, err := store.OpenUsers(filepath.Join(dir, "users.json"))
	if err != nil {
		t.Fatal(err)
	}
	digest, err := HashPassword("correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if err := users.Add(store.User{Username: "alice", Password: digest, Role: store.RoleUser}); err != nil {
		t.Fatal(err)
	}

	bans, err := store.OpenBans(filepath.Join(dir, "bans.json"))
	if err != nil {
		t.Fatal(err)
	}
	bans.Ban("mallory")

	return New(users, bans, []string{"127.0.0.1", "::1"})
}

func credentialFrame(t *testing.T, username, password string) []byte {
	t.Helper()
	raw, err := json.Marshal(Credentials{Username: username, Password: password})
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestAuthenticate(t *testing.T) {
	a := newTestAuthenticator(t)

	tests := []struct {
		name        string
		raw         []byte
		wantUser    string
		wantFlag    string
		wantMessage string
	}{
		{
			name:     "valid credentials",
			raw:      credentialFrame(t, "alice", "correct horse"),
			wantUser: "alice",
		},
		{
			name:        "malformed json",
			raw:         []byte("{username: alice"),
			wantFlag:    protocol.FlagAuthInvalid,
			wantMessage: "Invalid Credential",
		},
		{
			name:        "missing password",
			raw:         credentialFrame(t, "alice", ""),
			wantFlag:    protocol.FlagAuthInvalid,
			wantMessage: "Invalid Credential",
		},
		{
			name:        "missing username",
			raw:         credentialFrame(t, "", "pw"),
			wantFlag:    protocol.FlagAuthInvalid,
			wantMessage: "Invalid Credential",
		},
		{
			name:        "banned user",
			raw:         credentialFrame(t, "mallory", "anything"),
			wantFlag:    protocol.FlagAuthBan,
			wantMessage: "You Are Banned",
		},
		{
			name:        "unknown user",
			raw:         credentialFrame(t, "nobody", "pw"),
			wantFlag:    protocol.FlagAuthDenied,
			wantMessage: "User Not Found.",
		},
		{
			name:        "wrong password",
			raw:         credentialFrame(t, "alice", "wrong"),
			wantFlag:    protocol.FlagAuthDenied,
			wantMessage: "User Not Found.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, denial := a.Authenticate(tt.raw)
			if tt.wantFlag == "" {
				if denial != nil {
					t.Fatalf("Authenticate denied: %+v", denial)
				}
				if user != tt.wantUser {
					t.Errorf("username = %q, want %q", user, tt.wantUser)
				}
				return
			}
			if denial == nil {
				t.Fatal("Authenticate succeeded, want denial")
			}
			if user != "" {
				t.Errorf("denied attempt returned username %q", user)
			}
			if denial.Flag != tt.wantFlag {
				t.Errorf("denial flag = %q, want %q", denial.Flag, tt.wantFlag)
			}
			if denial.Message != tt.wantMessage {
				t.Errorf("denial message = %q, want %q", denial.Message, tt.wantMessage)
			}
		})
	}
}

func TestBanOutranksWrongPassword(t *testing.T) {
	a := newTestAuthenticator(t)

	// mallory has no user record at all; the ban must answer first.
	_, denial := a.Authenticate(credentialFrame(t, "mallory", "pw"))
	if denial == nil || denial.Flag != protocol.FlagAuthBan {
		t.Errorf("banned user denial = %+v, want %s", denial, protocol.FlagAuthBan)
	}
}

func TestWhitelisted(t *testing.T) {
	a := newTestAuthenticator(t)

	tests := []struct {
		ip   string
		want bool
	}{
		{ip: "127.0.0.1", want: true},
		{ip: "::1", want: true},
		{ip: "127.0.0.2", want: false},
		{ip: "10.0.0.1", want: false},
		{ip: "", want: false},
	}

	for _, tt := range tests {
		if got := a.Whitelisted(tt.ip); got != tt.want {
			t.Errorf("Whitelisted(%q) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}

func TestHashPasswordRoundTrip(t *testing.T) {
	digest, err := HashPassword("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	if digest == "s3cret" {
		t.Fatal("digest equals the plain text")
	}
	if !VerifyPassword("s3cret", digest) {
		t.Error("VerifyPassword rejected the original password")
	}
	if VerifyPassword("other", digest) {
		t.Error("VerifyPassword accepted a different password")
	}
}
