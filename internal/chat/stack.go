package chat

import (
	"context"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/infodancer/chatd/internal/auth"
	"github.com/infodancer/chatd/internal/config"
	"github.com/infodancer/chatd/internal/metrics"
	"github.com/infodancer/chatd/internal/server"
	"github.com/infodancer/chatd/internal/store"
)

// StackConfig groups the configuration needed to build a Stack.
type StackConfig struct {
	Config    config.Config
	Collector metrics.Collector // nil → NoopCollector
	Logger    *slog.Logger      // nil → slog.Default()
}

// Stack owns all components of a running chatd instance and manages their
// lifecycle: the three stores, the registry, moderation policy, the
// broadcaster, the admin engine, and the TCP listener.
type Stack struct {
	cfg       config.Config
	logger    *slog.Logger
	collector metrics.Collector

	users    *store.UserStore
	messages *store.MessageLog
	bans     *store.BanSet

	auth        *auth.Authenticator
	registry    *Registry
	policy      *Policy
	broadcaster *Broadcaster
	engine      *Engine
	listener    *server.Listener

	closing atomic.Bool
}

// NewStack creates a Stack from the given configuration, wiring up all
// components. A store that fails to load leaves the server running on an
// empty table; only wiring mistakes are returned as errors.
func NewStack(cfg StackConfig) (*Stack, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := cfg.Collector
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}

	s := &Stack{
		cfg:       cfg.Config,
		logger:    logger,
		collector: collector,
	}

	var err error
	if s.users, err = store.OpenUsers(cfg.Config.Stores.Users); err != nil {
		logger.Warn("loading user store, starting empty",
			slog.String("path", cfg.Config.Stores.Users),
			slog.Any("error", err),
		)
	}
	if s.messages, err = store.OpenMessages(cfg.Config.Stores.Messages); err != nil {
		logger.Warn("loading message log, starting empty",
			slog.String("path", cfg.Config.Stores.Messages),
			slog.Any("error", err),
		)
	}
	if s.bans, err = store.OpenBans(cfg.Config.Stores.Bans); err != nil {
		logger.Warn("loading ban set, starting empty",
			slog.String("path", cfg.Config.Stores.Bans),
			slog.Any("error", err),
		)
	}

	s.auth = auth.New(s.users, s.bans, cfg.Config.Whitelist)
	s.registry = NewRegistry()
	s.policy = NewPolicy(cfg.Config.Rate.WindowInterval(), cfg.Config.Rate.MaxMessages)
	s.broadcaster = NewBroadcaster(s.registry, s.messages, collector, logger)
	s.engine = NewEngine(s.registry, s.broadcaster, s.policy, s.users, s.bans, collector, logger)

	s.listener = server.NewListener(server.ListenerConfig{
		Address:       cfg.Config.Listen,
		AcceptTimeout: cfg.Config.Timeouts.AcceptTimeout(),
		ReadTimeout:   cfg.Config.Timeouts.ReadTimeout(),
		WriteTimeout:  cfg.Config.Timeouts.WriteTimeout(),
		MaxSessions:   cfg.Config.Limits.MaxSessions,
		Logger:        logger,
		Handler:       s.handleConnection,
	})

	logger.Info("chat stack assembled",
		slog.Int("users", s.users.Len()),
		slog.Int("bans", len(s.bans.Names())),
		slog.Int("admins", len(s.engine.admins)),
		slog.Int("history", s.messages.Len()),
	)
	return s, nil
}

// Run starts the listener and blocks until the context is cancelled and
// every session has finished, then flushes the message log. The worst-case
// latency from cancellation to return is about one read timeout.
func (s *Stack) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-runCtx.Done()
		s.beginShutdown()
	}()

	err := s.listener.Start(runCtx)

	if flushErr := s.messages.Flush(); flushErr != nil {
		s.logger.Error("flushing message log",
			slog.String("path", s.cfg.Stores.Messages),
			slog.Any("error", flushErr),
		)
	} else {
		s.collector.MessagesFlushed(s.messages.Len())
	}

	s.logger.Info("server shut down gracefully")
	return err
}

// beginShutdown closes the registry to new admissions and signals every
// live session to exit. Sessions send the closing notice and remove
// themselves; the listener's drain waits for them.
func (s *Stack) beginShutdown() {
	s.closing.Store(true)
	s.registry.Shutdown()
	for _, conn := range s.registry.Snapshot() {
		conn.SignalExit()
	}
}

// Addr returns the bound listen address, or nil before Run has bound it.
func (s *Stack) Addr() net.Addr {
	return s.listener.Addr()
}

// ActiveUsernames returns the online usernames in join order.
func (s *Stack) ActiveUsernames() []string {
	return s.registry.ActiveUsernames()
}
