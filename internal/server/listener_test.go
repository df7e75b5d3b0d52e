package server

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/infodancer/chatd/internal/logging"
)

func startTestListener(t *testing.T, maxSessions int, handler ConnectionHandler) (*Listener, string, context.CancelFunc) {
	t.Helper()

	l := NewListener(ListenerConfig{
		Address:       "127.0.0.1:0",
		AcceptTimeout: 20 * time.Millisecond,
		ReadTimeout:   50 * time.Millisecond,
		WriteTimeout:  time.Second,
		MaxSessions:   maxSessions,
		Logger:        logging.NewLoggerTo(io.Discard, "error"),
		Handler:       handler,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- l.Start(ctx)
	}()

	// Wait for the listener to bind.
	var addr string
	deadline := time.Now().Add(2 * time.Second)
	for addr == "" {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("listener did not bind in time")
		}
		if a := l.Addr(); a != nil {
			addr = a.String()
		} else {
			time.Sleep(5 * time.Millisecond)
		}
	}

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				t.Errorf("listener Start returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("listener did not stop after cancel")
		}
	})

	return l, addr, cancel
}

func TestListenerDispatchesConnections(t *testing.T) {
	var handled atomic.Int64
	_, addr, _ := startTestListener(t, 4, func(ctx context.Context, conn *Connection) {
		handled.Add(1)
		// Echo one chunk back so the client can synchronize.
		buf := make([]byte, 16)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				if IsTimeout(err) {
					continue
				}
				return
			}
			conn.Write(buf[:n])
			return
		}
	})

	client, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	if _, err := client.Write([]byte("ping")); err != nil {
		t.Fatal(err)
	}
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	n, err := client.Read(buf)
	if err != nil {
		t.Fatalf("reading echo: %v", err)
	}
	if string(buf[:n]) != "ping" {
		t.Errorf("echo = %q, want %q", buf[:n], "ping")
	}
	if handled.Load() != 1 {
		t.Errorf("handler ran %d times, want 1", handled.Load())
	}
}

func TestListenerRejectsBeyondSessionLimit(t *testing.T) {
	release := make(chan struct{})
	_, addr, _ := startTestListener(t, 1, func(ctx context.Context, conn *Connection) {
		<-release
	})
	defer close(release)

	first, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()

	// Give the accept loop time to hand the first connection off.
	time.Sleep(100 * time.Millisecond)

	second, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	// The second connection must be closed by the listener.
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := second.Read(make([]byte, 1)); err != io.EOF {
		t.Errorf("read on rejected connection = %v, want io.EOF", err)
	}
}

func TestListenerStartReturnsAfterCancel(t *testing.T) {
	var exited atomic.Bool
	_, addr, cancel := startTestListener(t, 2, func(ctx context.Context, conn *Connection) {
		<-ctx.Done()
		exited.Store(true)
	})

	client, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	time.Sleep(50 * time.Millisecond)
	cancel()

	// Cleanup asserts Start returns; verify the handler observed the cancel.
	deadline := time.Now().Add(2 * time.Second)
	for !exited.Load() {
		if time.Now().After(deadline) {
			t.Fatal("handler did not observe context cancellation")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestListenerBindFailure(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer occupied.Close()

	l := NewListener(ListenerConfig{
		Address: occupied.Addr().String(),
		Logger:  logging.NewLoggerTo(io.Discard, "error"),
		Handler: func(ctx context.Context, conn *Connection) {},
	})

	if err := l.Start(context.Background()); err == nil {
		t.Fatal("Start on an occupied address succeeded, want error")
	}
}

func TestListenerRecoversHandlerPanic(t *testing.T) {
	var calls atomic.Int64
	_, addr, _ := startTestListener(t, 2, func(ctx context.Context, conn *Connection) {
		calls.Add(1)
		panic("boom")
	})

	for i := 0; i < 2; i++ {
		client, err := net.Dial("tcp", addr)
		if err != nil {
			t.Fatal(err)
		}
		client.SetReadDeadline(time.Now().Add(2 * time.Second))
		// The listener closes the connection after the panic is recovered.
		if _, err := client.Read(make([]byte, 1)); err != io.EOF {
			t.Errorf("dial %d: read = %v, want io.EOF", i, err)
		}
		client.Close()
	}

	if calls.Load() != 2 {
		t.Errorf("handler ran %d times, want 2 (panic must not kill the acceptor)", calls.Load())
	}
}
