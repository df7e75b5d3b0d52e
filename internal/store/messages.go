package store

import (
	"sync"

	"github.com/infodancer/chatd/internal/protocol"
)

// MessageLog is the append-only history of user chat messages. Appends are
// in-memory; the log is written back to disk once, at shutdown.
type MessageLog struct {
	path string

	mu       sync.Mutex
	messages []protocol.Envelope
}

// OpenMessages loads the message log at path. A missing file yields an empty
// log and no error; any other failure yields an empty, usable log plus the
// error for the caller to log.
func OpenMessages(path string) (*MessageLog, error) {
	l := &MessageLog{path: path}

	var records []protocol.Envelope
	if err := loadJSON(path, &records); err != nil {
		if isNotExist(err) {
			return l, nil
		}
		return l, err
	}
	l.messages = records
	return l, nil
}

// Append records one chat envelope at the tail of the log.
func (l *MessageLog) Append(e protocol.Envelope) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, e)
}

// Len returns the number of recorded messages.
func (l *MessageLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

// Snapshot returns a copy of the recorded messages in append order.
func (l *MessageLog) Snapshot() []protocol.Envelope {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]protocol.Envelope, len(l.messages))
	copy(out, l.messages)
	return out
}

// Flush writes the log to disk. An empty log is written as an empty JSON
// array, not null.
func (l *MessageLog) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	records := l.messages
	if records == nil {
		records = []protocol.Envelope{}
	}
	return saveJSON(l.path, records)
}
