package metrics

// NoopCollector is a no-op implementation of the Collector interface.
// All methods are empty stubs that do nothing.
type NoopCollector struct{}

// ConnectionOpened is a no-op.
func (n *NoopCollector) ConnectionOpened() {}

// ConnectionClosed is a no-op.
func (n *NoopCollector) ConnectionClosed() {}

// AuthAttempt is a no-op.
func (n *NoopCollector) AuthAttempt(result string) {}

// FrameReceived is a no-op.
func (n *NoopCollector) FrameReceived(flag string) {}

// ChatBroadcast is a no-op.
func (n *NoopCollector) ChatBroadcast(recipients int) {}

// PolicyDenied is a no-op.
func (n *NoopCollector) PolicyDenied(kind string) {}

// AdminCommand is a no-op.
func (n *NoopCollector) AdminCommand(command string) {}

// MessagesFlushed is a no-op.
func (n *NoopCollector) MessagesFlushed(count int) {}

// SessionPanic is a no-op.
func (n *NoopCollector) SessionPanic() {}
