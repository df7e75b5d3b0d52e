// Package metrics provides interfaces and implementations for collecting
// chat server metrics. This package defines the Collector interface for
// recording metrics and the Server interface for exposing them.
package metrics

import "context"

// Collector defines the interface for recording chat server metrics.
type Collector interface {
	// Connection metrics
	ConnectionOpened()
	ConnectionClosed()

	// Authentication metrics (result is the wire flag the attempt ended with)
	AuthAttempt(result string)

	// Inbound frame metrics
	FrameReceived(flag string)

	// Broadcast metrics
	ChatBroadcast(recipients int)

	// Moderation metrics
	PolicyDenied(kind string)
	AdminCommand(command string)

	// Persistence and lifecycle metrics
	MessagesFlushed(count int)
	SessionPanic()
}

// Server defines the interface for a metrics HTTP server.
type Server interface {
	// Start begins serving metrics. It blocks until the context is canceled
	// or an error occurs.
	Start(ctx context.Context) error

	// Shutdown gracefully stops the metrics server.
	Shutdown(ctx context.Context) error
}
