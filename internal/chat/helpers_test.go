package chat

import (
	"bufio"
	"io"
	"net"
	"testing"
	"time"

	"github.com/infodancer/chatd/internal/logging"
	"github.com/infodancer/chatd/internal/metrics"
	"github.com/infodancer/chatd/internal/protocol"
	"github.com/infodancer/chatd/internal/server"
	"github.com/infodancer/chatd/internal/store"
)

// pipeConn returns a server-side Connection over an in-memory pipe plus the
// peer end a test reads from.
func pipeConn(t *testing.T) (*server.Connection, net.Conn) {
	t.Helper()
	peer, srv := net.Pipe()
	conn := server.NewConnection(srv, server.ConnectionConfig{
		ReadTimeout:  50 * time.Millisecond,
		WriteTimeout: time.Second,
	})
	t.Cleanup(func() {
		_ = conn.Close()
		_ = peer.Close()
	})
	return conn, peer
}

// readEnvelopes pumps frames from the peer end into a channel so writes to
// the unbuffered pipe never block the code under test.
func readEnvelopes(c net.Conn) <-chan protocol.Envelope {
	ch := make(chan protocol.Envelope, 32)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(c)
		for scanner.Scan() {
			e, err := protocol.ParseEnvelope(scanner.Bytes())
			if err != nil {
				continue
			}
			ch <- e
		}
	}()
	return ch
}

// nextEnvelope waits for the peer's next frame.
func nextEnvelope(t *testing.T, ch <-chan protocol.Envelope) protocol.Envelope {
	t.Helper()
	select {
	case e, ok := <-ch:
		if !ok {
			t.Fatal("peer stream closed while waiting for envelope")
		}
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
	}
	return protocol.Envelope{}
}

// noEnvelope asserts the peer receives nothing for a short grace period.
func noEnvelope(t *testing.T, ch <-chan protocol.Envelope) {
	t.Helper()
	select {
	case e, ok := <-ch:
		if ok {
			t.Fatalf("unexpected envelope %+v", e)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

// member is one admitted test client: its registry connection and the
// channel its peer end's frames arrive on.
type member struct {
	conn *server.Connection
	recv <-chan protocol.Envelope
	peer net.Conn
}

// admitMember wires a pipe connection into the registry under username.
func admitMember(t *testing.T, r *Registry, username string) member {
	t.Helper()
	conn, peer := pipeConn(t)
	if err := r.Admit(conn, username); err != nil {
		t.Fatalf("Admit(%q) = %v", username, err)
	}
	return member{conn: conn, recv: readEnvelopes(peer), peer: peer}
}

// testStores builds user and ban stores in a temp dir with one admin and
// the given plain users. Digests are not real bcrypt; nothing in these
// tests verifies passwords.
func testStores(t *testing.T, admin string, users ...string) (*store.UserStore, *store.BanSet) {
	t.Helper()
	dir := t.TempDir()

	us, err := store.OpenUsers(dir + "/users.json")
	if err != nil {
		t.Fatalf("OpenUsers() = %v", err)
	}
	if err := us.Add(store.User{Username: admin, Password: "x", Role: store.RoleAdmin}); err != nil {
		t.Fatalf("Add(%q) = %v", admin, err)
	}
	for _, name := range users {
		if err := us.Add(store.User{Username: name, Password: "x", Role: store.RoleUser}); err != nil {
			t.Fatalf("Add(%q) = %v", name, err)
		}
	}

	bans, err := store.OpenBans(dir + "/bans.json")
	if err != nil {
		t.Fatalf("OpenBans() = %v", err)
	}
	return us, bans
}

// testBroadcaster builds a Broadcaster over r with a fresh message log.
func testBroadcaster(t *testing.T, r *Registry) (*Broadcaster, *store.MessageLog) {
	t.Helper()
	log, err := store.OpenMessages(t.TempDir() + "/messages.json")
	if err != nil {
		t.Fatalf("OpenMessages() = %v", err)
	}
	b := NewBroadcaster(r, log, &metrics.NoopCollector{}, logging.NewLoggerTo(io.Discard, "error"))
	return b, log
}
