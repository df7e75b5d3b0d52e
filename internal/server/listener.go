package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/infodancer/chatd/internal/logging"
)

// ConnectionHandler processes one accepted connection and returns when the
// session is finished. The connection is closed by the listener afterwards.
type ConnectionHandler func(ctx context.Context, conn *Connection)

// ListenerConfig holds configuration for creating a Listener.
type ListenerConfig struct {
	Address string

	// AcceptTimeout bounds each Accept so the loop can poll for shutdown.
	AcceptTimeout time.Duration
	// ReadTimeout and WriteTimeout are applied to every accepted connection.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxSessions caps concurrent sessions; connections beyond the cap are
	// closed immediately after accept.
	MaxSessions int

	Logger  *slog.Logger
	Handler ConnectionHandler
}

// Listener accepts TCP connections and dispatches each to the handler in its
// own goroutine.
type Listener struct {
	cfg     ListenerConfig
	limiter *SessionLimiter

	mu sync.Mutex
	ln net.Listener
}

// NewListener creates a Listener from cfg.
func NewListener(cfg ListenerConfig) *Listener {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger("info")
	}
	return &Listener{
		cfg:     cfg,
		limiter: NewSessionLimiter(cfg.MaxSessions),
	}
}

// Start binds the listen address and accepts connections until the context
// is canceled. It returns once every session goroutine has finished, so the
// caller can rely on all cleanup having run. A failure to bind is returned
// immediately.
func (l *Listener) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.cfg.Address)
	if err != nil {
		return fmt.Errorf("binding %s: %w", l.cfg.Address, err)
	}

	l.mu.Lock()
	l.ln = ln
	l.mu.Unlock()

	// Handlers run under a context the accept loop can cancel, so a fatal
	// accept error still brings every session down before Start returns.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	l.cfg.Logger.Info("listening",
		slog.String("address", ln.Addr().String()),
		slog.Int("max_sessions", l.cfg.MaxSessions),
	)

	var wg sync.WaitGroup
	var acceptErr error

	tcpLn, _ := ln.(*net.TCPListener)

	for {
		if runCtx.Err() != nil {
			break
		}

		if tcpLn != nil && l.cfg.AcceptTimeout > 0 {
			if err := tcpLn.SetDeadline(time.Now().Add(l.cfg.AcceptTimeout)); err != nil {
				acceptErr = fmt.Errorf("setting accept deadline: %w", err)
				break
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			if IsTimeout(err) {
				continue
			}
			if runCtx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			acceptErr = fmt.Errorf("accept: %w", err)
			break
		}

		if !l.limiter.TryAcquire() {
			l.cfg.Logger.Warn("session limit reached, rejecting connection",
				slog.String("remote", conn.RemoteAddr().String()),
				slog.Int("limit", l.cfg.MaxSessions),
			)
			_ = conn.Close()
			continue
		}

		c := NewConnection(conn, ConnectionConfig{
			ReadTimeout:  l.cfg.ReadTimeout,
			WriteTimeout: l.cfg.WriteTimeout,
		})

		connLogger := l.cfg.Logger.With(slog.String("remote", conn.RemoteAddr().String()))
		connCtx := logging.WithContext(runCtx, connLogger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer l.limiter.Release()
			defer c.Close()
			defer func() {
				if r := recover(); r != nil {
					connLogger.Error("connection handler panic", slog.Any("panic", r))
				}
			}()
			l.cfg.Handler(connCtx, c)
		}()
	}

	_ = ln.Close()
	cancel()

	l.cfg.Logger.Info("listener draining sessions", slog.Int64("active", l.limiter.Current()))
	wg.Wait()

	if acceptErr != nil {
		return acceptErr
	}
	return ctx.Err()
}

// Addr returns the bound address, or nil before Start has bound it.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Addr()
}

// Close closes the bound listener, unblocking Accept. Sessions already
// running are not interrupted; cancel the Start context to stop them.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ln == nil {
		return nil
	}
	return l.ln.Close()
}

// ActiveSessions returns the number of sessions currently running.
func (l *Listener) ActiveSessions() int64 {
	return l.limiter.Current()
}
