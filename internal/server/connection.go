// Package server provides the TCP acceptor and per-connection transport
// discipline for the chat server.
package server

import (
	"errors"
	"net"
	"sync"
	"time"
)

// ConnectionConfig holds the socket deadlines applied by a Connection.
type ConnectionConfig struct {
	// ReadTimeout bounds each Read so session loops can poll for exit and
	// shutdown signals between attempts. Zero disables the deadline.
	ReadTimeout time.Duration
	// WriteTimeout bounds each Write. Zero disables the deadline.
	WriteTimeout time.Duration
}

// Connection wraps an accepted socket with the discipline the chat protocol
// needs: deadline-bounded reads, mutex-serialized writes, an idempotent
// close, and a one-shot exit signal observed by the owning session.
type Connection struct {
	conn net.Conn
	cfg  ConnectionConfig

	writeMu sync.Mutex

	exitOnce sync.Once
	exit     chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewConnection wraps conn.
func NewConnection(conn net.Conn, cfg ConnectionConfig) *Connection {
	return &Connection{
		conn: conn,
		cfg:  cfg,
		exit: make(chan struct{}),
	}
}

// Read fills p with the next chunk from the peer, waiting at most the
// configured read timeout. Timeouts are reported via the usual net.Error
// and leave the connection usable.
func (c *Connection) Read(p []byte) (int, error) {
	if c.cfg.ReadTimeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
			return 0, err
		}
	}
	return c.conn.Read(p)
}

// Write sends p to the peer. Writes from concurrent broadcasts are
// serialized so frames never interleave on the wire.
func (c *Connection) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.cfg.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
			return 0, err
		}
	}
	return c.conn.Write(p)
}

// SignalExit asks the owning session to stop at its next poll. Safe to call
// from any goroutine, any number of times.
func (c *Connection) SignalExit() {
	c.exitOnce.Do(func() { close(c.exit) })
}

// Exit returns the channel closed by SignalExit.
func (c *Connection) Exit() <-chan struct{} {
	return c.exit
}

// Close closes the socket once. Later calls return the first result.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.conn.Close() })
	return c.closeErr
}

// RemoteAddr returns the peer's full address.
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// RemoteIP returns the peer's IP without the port, for whitelist checks.
func (c *Connection) RemoteIP() string {
	host, _, err := net.SplitHostPort(c.conn.RemoteAddr().String())
	if err != nil {
		return c.conn.RemoteAddr().String()
	}
	return host
}

// IsTimeout reports whether err is a read or write deadline expiry.
func IsTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
