package chat

import (
	"log/slog"
	"strings"
	"time"

	"github.com/infodancer/chatd/internal/metrics"
	"github.com/infodancer/chatd/internal/protocol"
	"github.com/infodancer/chatd/internal/server"
	"github.com/infodancer/chatd/internal/store"
)

// Broadcaster fans envelopes out to the registry and records user chat in
// the message log. Fan-out iterates a registry snapshot with no lock held;
// each write is serialized only by the recipient's own connection mutex.
type Broadcaster struct {
	registry  *Registry
	log       *store.MessageLog
	collector metrics.Collector
	logger    *slog.Logger
	now       func() time.Time
}

// NewBroadcaster returns a Broadcaster over registry, persisting chat to log.
func NewBroadcaster(registry *Registry, log *store.MessageLog, collector metrics.Collector, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		registry:  registry,
		log:       log,
		collector: collector,
		logger:    logger,
		now:       time.Now,
	}
}

// Send stamps e and writes it to conn. A failed send is not an error for
// the caller: it is logged and the connection is asked to exit, which makes
// its own session remove it.
func (b *Broadcaster) Send(conn *server.Connection, e protocol.Envelope) {
	b.send(conn, e.Stamped(b.now()))
}

func (b *Broadcaster) send(conn *server.Connection, stamped protocol.Envelope) {
	if _, err := conn.Write(protocol.Encode(stamped)); err != nil {
		b.logger.Error("send failed, dropping recipient",
			slog.String("remote", conn.RemoteAddr().String()),
			slog.String("flag", stamped.Flag),
			slog.Any("error", err),
		)
		conn.SignalExit()
	}
}

// Broadcast stamps e once and sends it to every registry member except
// skip. A user chat envelope is appended to the message log before the
// fan-out begins, so the persisted order matches the send order.
func (b *Broadcaster) Broadcast(e protocol.Envelope, skip *server.Connection) {
	stamped := e.Stamped(b.now())
	if stamped.IsChat() {
		b.log.Append(stamped)
	}

	recipients := 0
	for _, conn := range b.registry.Snapshot() {
		if conn == skip {
			continue
		}
		b.send(conn, stamped)
		recipients++
	}

	if stamped.IsChat() {
		b.collector.ChatBroadcast(recipients)
	}
}

// System broadcasts a server notice to every member. Notices carry an empty
// sender, which keeps them out of the message log.
func (b *Broadcaster) System(message string) {
	b.Broadcast(protocol.Envelope{Message: message}, nil)
}

// AnnounceActiveUsers broadcasts the current membership to every member as
// a USER_LIST_UPDATE whose message is the comma-joined usernames.
func (b *Broadcaster) AnnounceActiveUsers() {
	b.Broadcast(protocol.Envelope{
		Flag:    protocol.FlagUserListUpdate,
		Message: strings.Join(b.registry.ActiveUsernames(), ","),
	}, nil)
}

// adminMessage wraps text in the ADMIN_MSG envelope sent for policy
// denials and command replies.
func adminMessage(text string) protocol.Envelope {
	return protocol.Envelope{Flag: protocol.FlagAdminMsg, Message: text}
}
