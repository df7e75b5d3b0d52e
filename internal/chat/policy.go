package chat

import (
	"fmt"
	"sync"
	"time"

	"github.com/infodancer/chatd/internal/server"
)

// muteEntry records one live mute. warned flips after the first denied send
// so the user hears about the mute exactly once per installation.
type muteEntry struct {
	until  time.Time
	warned bool
}

// Policy holds the server's moderation state: the mute table and the
// per-connection sliding-window rate limiter. Time is always passed in
// explicitly so the windows can be tested without sleeping.
type Policy struct {
	interval time.Duration
	max      int

	mu    sync.Mutex
	mutes map[string]*muteEntry
	rates map[*server.Connection][]time.Time
}

// NewPolicy returns a Policy allowing max chat messages per connection in
// any window of interval.
func NewPolicy(interval time.Duration, max int) *Policy {
	return &Policy{
		interval: interval,
		max:      max,
		mutes:    make(map[string]*muteEntry),
		rates:    make(map[*server.Connection][]time.Time),
	}
}

// Mute silences username until now+d, replacing any existing mute. The
// one-shot warning is re-armed so the user is told about the new mute.
func (p *Policy) Mute(username string, d time.Duration, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.mutes[username] = &muteEntry{until: now.Add(d)}
}

// Muted reports whether username is muted at now. An expired entry is
// purged on the way through.
func (p *Policy) Muted(username string, now time.Time) bool {
	allow, _ := p.checkMute(username, now, false)
	return !allow
}

// CheckMute decides whether username may broadcast at now. On the first
// denial of a mute it returns the warning text to send the user; later
// denials of the same mute return an empty warning and the frame is dropped
// silently.
func (p *Policy) CheckMute(username string, now time.Time) (bool, string) {
	return p.checkMute(username, now, true)
}

func (p *Policy) checkMute(username string, now time.Time, consumeWarn bool) (bool, string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.mutes[username]
	if !ok {
		return true, ""
	}
	if !now.Before(entry.until) {
		delete(p.mutes, username)
		return true, ""
	}

	warn := ""
	if consumeWarn && !entry.warned {
		entry.warned = true
		// Remaining time is floored to whole seconds.
		seconds := int64(entry.until.Sub(now) / time.Second)
		warn = fmt.Sprintf("you are muted for %d more second(s)", seconds)
	}
	return false, warn
}

// CheckRate decides whether conn may broadcast at now. An allowed send
// consumes one slot in the window; a denied send returns the denial text
// and consumes nothing.
func (p *Policy) CheckRate(conn *server.Connection, now time.Time) (bool, string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	window := p.rates[conn]
	cutoff := now.Add(-p.interval)
	for len(window) > 0 && !window[0].After(cutoff) {
		window = window[1:]
	}

	if len(window) >= p.max {
		p.rates[conn] = window
		return false, fmt.Sprintf("rate limit: max %d messages every %s", p.max, p.interval)
	}

	p.rates[conn] = append(window, now)
	return true, ""
}

// Forget drops conn's rate window and, when username is non-empty, its mute
// entry. Called when the connection leaves the registry so neither table
// outlives the membership.
func (p *Policy) Forget(conn *server.Connection, username string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.rates, conn)
	if username != "" {
		delete(p.mutes, username)
	}
}

// Tracked reports whether conn currently has a rate window.
func (p *Policy) Tracked(conn *server.Connection) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.rates[conn]
	return ok
}
