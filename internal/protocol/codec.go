package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MaxFrameBytes bounds how much unterminated input the decoder will buffer
// before discarding the line in progress.
const MaxFrameBytes = 64 * 1024

// Encode serializes one envelope followed by the newline terminator.
func Encode(e Envelope) []byte {
	b, err := json.Marshal(e)
	if err != nil {
		// Envelope contains only strings; Marshal cannot fail on it.
		panic(fmt.Sprintf("protocol: encoding envelope: %v", err))
	}
	return append(b, '\n')
}

// ParseEnvelope decodes a single frame, without its terminator.
func ParseEnvelope(line []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(line, &e); err != nil {
		return Envelope{}, fmt.Errorf("parsing envelope: %w", err)
	}
	return e, nil
}

// StreamDecoder reassembles newline-delimited frames from a byte stream.
// Frames may arrive several to a read or split across reads; the decoder
// keeps the unterminated tail until its newline shows up.
type StreamDecoder struct {
	buf        []byte
	discarding bool
}

// Feed appends p to the buffered input and returns every complete frame now
// available, in arrival order and without terminators. Returned slices do
// not alias the internal buffer. Blank lines are dropped. An unterminated
// line that outgrows MaxFrameBytes is discarded through its eventual
// newline.
func (d *StreamDecoder) Feed(p []byte) [][]byte {
	d.buf = append(d.buf, p...)

	var frames [][]byte
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := bytes.TrimSpace(d.buf[:i])
		d.buf = d.buf[i+1:]
		if d.discarding {
			d.discarding = false
			continue
		}
		if len(line) == 0 {
			continue
		}
		frames = append(frames, bytes.Clone(line))
	}

	if len(d.buf) > MaxFrameBytes {
		d.buf = nil
		d.discarding = true
	}
	return frames
}

// Pending reports how many bytes of unterminated input are buffered.
func (d *StreamDecoder) Pending() int {
	return len(d.buf)
}
