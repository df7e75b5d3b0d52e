package chat

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/infodancer/chatd/internal/metrics"
	"github.com/infodancer/chatd/internal/protocol"
	"github.com/infodancer/chatd/internal/server"
	"github.com/infodancer/chatd/internal/store"
)

// adminCommand describes one slash command for the help listing and the
// unknown-command reply. Dispatch itself is a switch: the vocabulary is
// fixed and the handlers share too much state for a registry indirection
// to pay off.
type adminCommand struct {
	name  string
	usage string
	desc  string
}

// Keep this in the order the help text presents.
var adminCommands = []adminCommand{
	{"/kick", "/kick <username>", "disconnect a user from the chat"},
	{"/ban", "/ban <username>", "ban a user and disconnect them if online"},
	{"/unban", "/unban <username>", "lift a user's ban"},
	{"/mute", "/mute <username> <duration>", "silence a user (e.g., 10s, 2m, 1h)"},
	{"/help", "/help", "show this help"},
}

// Engine parses and executes admin slash commands. The admin roster is a
// startup snapshot of the user store; role changes take effect on restart.
type Engine struct {
	registry    *Registry
	broadcaster *Broadcaster
	policy      *Policy
	users       *store.UserStore
	bans        *store.BanSet
	admins      map[string]struct{}
	collector   metrics.Collector
	logger      *slog.Logger
	now         func() time.Time
}

// NewEngine builds the command engine over the server's shared state.
func NewEngine(registry *Registry, broadcaster *Broadcaster, policy *Policy, users *store.UserStore, bans *store.BanSet, collector metrics.Collector, logger *slog.Logger) *Engine {
	admins := make(map[string]struct{})
	for _, name := range users.AdminNames() {
		admins[name] = struct{}{}
	}
	return &Engine{
		registry:    registry,
		broadcaster: broadcaster,
		policy:      policy,
		users:       users,
		bans:        bans,
		admins:      admins,
		collector:   collector,
		logger:      logger,
		now:         time.Now,
	}
}

// IsAdmin reports whether username held the admin role at startup.
func (e *Engine) IsAdmin(username string) bool {
	_, ok := e.admins[username]
	return ok
}

// Dispatch executes one slash-command line issued by caller. All failures
// are reported back to the caller as ADMIN_MSG envelopes; nothing is
// surfaced as an error because a bad command never ends the session.
func (e *Engine) Dispatch(caller *server.Connection, callerName, line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return
	}
	name := fields[0]
	args := fields[1:]

	e.collector.AdminCommand(strings.TrimPrefix(name, "/"))

	if name == "/help" {
		e.broadcaster.Send(caller, adminMessage(helpText()))
		return
	}

	var action string
	switch name {
	case "/kick", "/ban", "/unban", "/mute":
		action = name[1:]
	default:
		e.broadcaster.Send(caller, adminMessage("unknown command. use /help."))
		return
	}

	if len(args) < 1 {
		e.broadcaster.Send(caller, adminMessage("missing target username."))
		return
	}
	target := args[0]

	if target == callerName || e.IsAdmin(target) {
		e.broadcaster.Send(caller, adminMessage(
			fmt.Sprintf("you cannot %s yourself or another admin.", action)))
		return
	}

	switch name {
	case "/kick":
		e.kick(caller, callerName, target)
	case "/ban":
		e.ban(caller, callerName, target)
	case "/unban":
		e.unban(caller, callerName, target)
	case "/mute":
		e.mute(caller, callerName, target, args[1:])
	}
}

func (e *Engine) kick(caller *server.Connection, callerName, target string) {
	conn := e.registry.Find(target)
	if conn == nil {
		e.broadcaster.Send(caller, adminMessage(
			fmt.Sprintf("user '%s' is not online.", target)))
		return
	}

	e.disconnect(conn, target)

	e.logger.Warn("user kicked", slog.String("admin", callerName), slog.String("target", target))
	e.broadcaster.System(fmt.Sprintf("%s was kicked by [ADMIN] %s", target, callerName))
	e.broadcaster.AnnounceActiveUsers()
}

func (e *Engine) ban(caller *server.Connection, callerName, target string) {
	if _, ok := e.users.Get(target); !ok {
		e.broadcaster.Send(caller, adminMessage(
			fmt.Sprintf("cannot ban '%s': user does not exist.", target)))
		return
	}

	e.bans.Ban(target)
	if err := e.bans.Save(); err != nil {
		e.logger.Error("saving ban set", slog.Any("error", err))
	}

	if conn := e.registry.Find(target); conn != nil {
		e.disconnect(conn, target)
	}

	e.logger.Warn("user banned", slog.String("admin", callerName), slog.String("target", target))
	e.broadcaster.System(fmt.Sprintf("'%s' was banned by [ADMIN] %s", target, callerName))
	e.broadcaster.AnnounceActiveUsers()
}

func (e *Engine) unban(caller *server.Connection, callerName, target string) {
	if _, ok := e.users.Get(target); !ok {
		e.broadcaster.Send(caller, adminMessage(
			fmt.Sprintf("cannot unban '%s': user does not exist.", target)))
		return
	}
	if !e.bans.Banned(target) {
		e.broadcaster.Send(caller, adminMessage(
			fmt.Sprintf("cannot unban '%s': user is not banned.", target)))
		return
	}

	e.bans.Unban(target)
	if err := e.bans.Save(); err != nil {
		e.logger.Error("saving ban set", slog.Any("error", err))
	}

	e.logger.Warn("user unbanned", slog.String("admin", callerName), slog.String("target", target))
	e.broadcaster.System(fmt.Sprintf("'%s' has been unbanned by [ADMIN] %s.", target, callerName))
}

func (e *Engine) mute(caller *server.Connection, callerName, target string, rest []string) {
	if len(rest) < 1 {
		e.broadcaster.Send(caller, adminMessage(
			"invalid syntax. use: /mute <username> <duration> (e.g., 10s, 2m, 1h)"))
		return
	}

	conn := e.registry.Find(target)
	if conn == nil {
		e.broadcaster.Send(caller, adminMessage(
			fmt.Sprintf("cannot mute '%s': user not in the chat.", target)))
		return
	}

	d, amount, err := parseMuteDuration(rest[0])
	if err != nil {
		e.broadcaster.Send(caller, adminMessage("invalid duration"))
		return
	}

	e.policy.Mute(target, d, e.now())
	e.broadcaster.Send(conn, protocol.Envelope{
		Flag:    protocol.FlagAdminMute,
		Message: amount,
	})

	e.logger.Warn("user muted",
		slog.String("admin", callerName),
		slog.String("target", target),
		slog.Duration("duration", d),
	)
	e.broadcaster.System(fmt.Sprintf("'%s' has been muted by [ADMIN] %s for %s.", target, callerName, rest[0]))
}

// disconnect removes conn from the registry without a leave announcement
// or a farewell frame; the target's socket simply closes and the caller
// broadcasts its own notice. The session observes the exit signal or the
// closed socket and finishes silently because the registry entry is
// already gone.
func (e *Engine) disconnect(conn *server.Connection, username string) {
	e.registry.Remove(conn)
	e.policy.Forget(conn, username)
	conn.SignalExit()
	_ = conn.Close()
}

// parseMuteDuration parses the strict <digits><s|m|h> mute syntax and
// returns the duration plus the bare digits, which ADMIN_MUTE carries as
// its payload.
func parseMuteDuration(s string) (time.Duration, string, error) {
	if len(s) < 2 {
		return 0, "", ErrInvalidDuration
	}

	var unit time.Duration
	switch s[len(s)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	default:
		return 0, "", ErrInvalidDuration
	}

	digits := s[:len(s)-1]
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, "", ErrInvalidDuration
		}
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, "", ErrInvalidDuration
	}
	return time.Duration(n) * unit, digits, nil
}

func helpText() string {
	var b strings.Builder
	b.WriteString("Admin Commands:")
	for _, cmd := range adminCommands {
		b.WriteString("\n")
		b.WriteString(cmd.usage)
		b.WriteString(": ")
		b.WriteString(cmd.desc)
	}
	return b.String()
}
