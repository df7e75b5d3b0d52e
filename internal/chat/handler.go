package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/infodancer/chatd/internal/logging"
	"github.com/infodancer/chatd/internal/protocol"
	"github.com/infodancer/chatd/internal/server"
)

// readBufferSize is the per-recv read size.
const readBufferSize = 1024

// handleConnection manages one client from accept to teardown: whitelist
// check, the single credential exchange, then the serve loop.
func (s *Stack) handleConnection(ctx context.Context, conn *server.Connection) {
	logger := logging.FromContext(ctx)

	if !s.auth.Whitelisted(conn.RemoteIP()) {
		// Closed without a reply; the peer learns nothing.
		logger.Warn("unauthorized connection attempt", slog.String("ip", conn.RemoteIP()))
		return
	}

	s.collector.ConnectionOpened()
	defer s.collector.ConnectionClosed()

	// A panicking session must still vacate the registry, or its username
	// would stay bound to a dead socket.
	defer func() {
		if r := recover(); r != nil {
			s.collector.SessionPanic()
			logger.Error("session panic", slog.Any("panic", r))
			if username, ok := s.registry.Remove(conn); ok {
				s.policy.Forget(conn, username)
				_ = conn.Close()
				s.broadcaster.AnnounceActiveUsers()
			}
		}
	}()

	logger.Info("new connection")

	sess := NewSession(conn)
	if !s.authenticate(ctx, sess, logger) {
		return
	}

	sess.state = StateServing
	logger = logger.With(slog.String("username", sess.username))
	logger.Info("client joined", slog.Int("active", s.registry.Len()))

	s.broadcaster.System(sess.username + " has joined the chat!")
	s.broadcaster.AnnounceActiveUsers()

	s.serve(ctx, sess, logger)
}

// authenticate reads the credential frame, verifies it, and admits the
// session to the registry. It reports whether the session may start
// serving; on any failure the specific denial has already been sent and
// the caller just returns, closing the socket.
func (s *Stack) authenticate(ctx context.Context, sess *Session, logger *slog.Logger) bool {
	deadline := time.Now().Add(s.cfg.Timeouts.AuthTimeout())
	buf := make([]byte, readBufferSize)

	for {
		select {
		case <-ctx.Done():
			return false
		case <-sess.conn.Exit():
			return false
		default:
		}
		if time.Now().After(deadline) {
			logger.Warn("authentication timed out")
			return false
		}

		n, err := sess.conn.Read(buf)
		if err != nil {
			if server.IsTimeout(err) {
				continue
			}
			logger.Info("connection lost before authentication", slog.Any("error", err))
			return false
		}

		frames := sess.decoder.Feed(buf[:n])
		if len(frames) == 0 {
			continue
		}

		username, denial := s.auth.Authenticate(frames[0])
		if denial != nil {
			s.collector.AuthAttempt(denial.Flag)
			logger.Warn("authentication failed", slog.String("flag", denial.Flag))
			s.broadcaster.Send(sess.conn, protocol.Envelope{Flag: denial.Flag, Message: denial.Message})
			return false
		}

		if err := s.registry.Admit(sess.conn, username); err != nil {
			s.collector.AuthAttempt(protocol.FlagAuthDenied)
			logger.Warn("admission refused",
				slog.String("username", username),
				slog.Any("error", err),
			)
			s.broadcaster.Send(sess.conn, protocol.Envelope{
				Flag:    protocol.FlagAuthDenied,
				Message: "User Not Found.",
			})
			return false
		}

		sess.username = username
		s.collector.AuthAttempt(protocol.FlagAuthOK)
		s.broadcaster.Send(sess.conn, protocol.Envelope{Flag: protocol.FlagAuthOK})
		return true
	}
}

// serve is the SERVING loop. Reads are bounded by the 1-second socket
// deadline so the exit signal and context are observed promptly; the
// socket is always drained before policy runs on what it held.
func (s *Stack) serve(ctx context.Context, sess *Session, logger *slog.Logger) {
	buf := make([]byte, readBufferSize)

	for {
		select {
		case <-ctx.Done():
			// The context only dies when the whole server is coming down.
			s.finish(sess, leaveShutdown, logger)
			return
		case <-sess.conn.Exit():
			s.finish(sess, s.shutdownReason(), logger)
			return
		default:
		}

		n, err := sess.conn.Read(buf)
		if err != nil {
			if server.IsTimeout(err) {
				continue
			}
			// Peer close, reset, or broken pipe all end the session the
			// same way.
			logger.Info("connection lost", slog.Any("error", err))
			s.finish(sess, leaveNormal, logger)
			return
		}

		for _, raw := range sess.decoder.Feed(buf[:n]) {
			env, err := protocol.ParseEnvelope(raw)
			if err != nil {
				// A bad frame is the sender's problem, not a reason to
				// drop the session.
				logger.Warn("malformed frame dropped", slog.Any("error", err))
				continue
			}
			s.collector.FrameReceived(env.Flag)

			if env.Flag == protocol.FlagClientQuit {
				s.finish(sess, leaveNormal, logger)
				return
			}
			s.dispatch(sess, env, logger)
		}
	}
}

// dispatch runs the policy chain on one inbound frame: mute, then rate,
// then admin command, then broadcast.
func (s *Stack) dispatch(sess *Session, env protocol.Envelope, logger *slog.Logger) {
	now := time.Now()

	// The bound username is the authority on who is talking; whatever the
	// client wrote in the sender field is overwritten. Inbound flags other
	// than CLIENT_QUIT are not meaningful and are cleared.
	env.Sender = sess.username
	env.Flag = ""

	if allow, warn := s.policy.CheckMute(sess.username, now); !allow {
		s.collector.PolicyDenied("mute")
		logger.Debug("frame dropped, sender muted")
		if warn != "" {
			s.broadcaster.Send(sess.conn, adminMessage(warn))
		}
		return
	}

	if allow, deny := s.policy.CheckRate(sess.conn, now); !allow {
		s.collector.PolicyDenied("rate")
		logger.Debug("frame dropped, rate limited")
		s.broadcaster.Send(sess.conn, adminMessage(deny))
		return
	}

	if s.engine.IsAdmin(sess.username) && strings.HasPrefix(env.Message, "/") {
		s.engine.Dispatch(sess.conn, sess.username, env.Message)
		return
	}

	s.broadcaster.Broadcast(env, sess.conn)
}

// shutdownReason distinguishes server-wide shutdown from a targeted exit
// request such as a kick.
func (s *Stack) shutdownReason() leaveReason {
	if s.closing.Load() {
		return leaveShutdown
	}
	return leaveSilent
}

// finish is the REMOVING state: drop the registry entry, clear policy
// state, close the socket, and announce the departure when it was a
// normal leave. Removal is idempotent, so a session racing an admin
// disconnect does no harm.
func (s *Stack) finish(sess *Session, reason leaveReason, logger *slog.Logger) {
	sess.state = StateRemoving

	if reason == leaveShutdown {
		s.broadcaster.Send(sess.conn, protocol.Envelope{
			Flag:    protocol.FlagServerClosed,
			Message: "Server has been shutdown.",
		})
	}

	username, ok := s.registry.Remove(sess.conn)
	s.policy.Forget(sess.conn, username)
	_ = sess.conn.Close()

	if ok {
		logger.Info("client left", slog.Int("active", s.registry.Len()))
		if reason == leaveNormal {
			s.broadcaster.System(username + " has left the chat!")
			s.broadcaster.AnnounceActiveUsers()
		}
	}

	sess.state = StateGone
}
