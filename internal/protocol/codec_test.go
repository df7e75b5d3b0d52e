package protocol

import (
	"bytes"
	"testing"
	"time"
)

func TestEncodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope
	}{
		{
			name: "plain chat",
			env:  Envelope{Sender: "alice", Message: "hello", Timestamp: "07 Mar 2025, 09:05"},
		},
		{
			name: "flagged frame",
			env:  Envelope{Flag: FlagAuthOK},
		},
		{
			name: "admin notice",
			env:  Envelope{Flag: FlagAdminMsg, Message: "rate limit: max 5 messages every 10s"},
		},
		{
			name: "unicode message",
			env:  Envelope{Sender: "böb", Message: "héllo wörld ✓"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := Encode(tt.env)
			if !bytes.HasSuffix(data, []byte("\n")) {
				t.Fatalf("Encode output missing newline terminator: %q", data)
			}
			got, err := ParseEnvelope(bytes.TrimSuffix(data, []byte("\n")))
			if err != nil {
				t.Fatalf("ParseEnvelope failed: %v", err)
			}
			if got != tt.env {
				t.Errorf("round trip = %+v, want %+v", got, tt.env)
			}
		})
	}
}

func TestEncodeFieldOrder(t *testing.T) {
	data := string(Encode(Envelope{Sender: "alice", Message: "hi"}))

	want := `{"flag":"","sender":"alice","message":"hi","timestamp":""}` + "\n"
	if data != want {
		t.Errorf("Encode = %q, want %q", data, want)
	}
}

func TestParseEnvelopeMalformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{name: "truncated object", line: `{"flag":"", "sender"`},
		{name: "not json", line: "hello there"},
		{name: "wrong type", line: `{"flag": 7}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseEnvelope([]byte(tt.line)); err == nil {
				t.Errorf("ParseEnvelope(%q) succeeded, want error", tt.line)
			}
		})
	}
}

func TestStampedFormat(t *testing.T) {
	now := time.Date(2025, time.March, 7, 9, 5, 42, 0, time.UTC)

	got := Envelope{Message: "hi"}.Stamped(now)
	if got.Timestamp != "07 Mar 2025, 09:05" {
		t.Errorf("Stamped timestamp = %q, want %q", got.Timestamp, "07 Mar 2025, 09:05")
	}
}

func TestStampedOverwritesClientTimestamp(t *testing.T) {
	now := time.Date(2025, time.March, 7, 9, 5, 0, 0, time.UTC)

	got := Envelope{Message: "hi", Timestamp: "01 Jan 1999, 00:00"}.Stamped(now)
	if got.Timestamp != "07 Mar 2025, 09:05" {
		t.Errorf("Stamped kept client timestamp: %q", got.Timestamp)
	}
}

func TestIsChat(t *testing.T) {
	tests := []struct {
		name string
		env  Envelope
		want bool
	}{
		{name: "user chat", env: Envelope{Sender: "alice", Message: "hi"}, want: true},
		{name: "system notice", env: Envelope{Message: "alice has joined the chat!"}, want: false},
		{name: "flagged frame", env: Envelope{Flag: FlagUserListUpdate, Message: "alice"}, want: false},
		{name: "flagged with sender", env: Envelope{Flag: FlagAdminMsg, Sender: "alice"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.env.IsChat(); got != tt.want {
				t.Errorf("IsChat(%+v) = %v, want %v", tt.env, got, tt.want)
			}
		})
	}
}

func TestStreamDecoderMultipleFramesPerRead(t *testing.T) {
	var dec StreamDecoder

	input := Encode(Envelope{Sender: "a", Message: "1"})
	input = append(input, Encode(Envelope{Sender: "b", Message: "2"})...)
	input = append(input, Encode(Envelope{Sender: "c", Message: "3"})...)

	frames := dec.Feed(input)
	if len(frames) != 3 {
		t.Fatalf("Feed returned %d frames, want 3", len(frames))
	}
	for i, sender := range []string{"a", "b", "c"} {
		env, err := ParseEnvelope(frames[i])
		if err != nil {
			t.Fatalf("frame %d unparseable: %v", i, err)
		}
		if env.Sender != sender {
			t.Errorf("frame %d sender = %q, want %q", i, env.Sender, sender)
		}
	}
	if dec.Pending() != 0 {
		t.Errorf("decoder holds %d residual bytes, want 0", dec.Pending())
	}
}

func TestStreamDecoderSplitFrame(t *testing.T) {
	var dec StreamDecoder

	full := Encode(Envelope{Sender: "alice", Message: "split across reads"})
	half := len(full) / 2

	if frames := dec.Feed(full[:half]); len(frames) != 0 {
		t.Fatalf("partial feed yielded %d frames, want 0", len(frames))
	}
	if dec.Pending() == 0 {
		t.Error("decoder buffered nothing after a partial frame")
	}

	frames := dec.Feed(full[half:])
	if len(frames) != 1 {
		t.Fatalf("completing feed yielded %d frames, want 1", len(frames))
	}
	env, err := ParseEnvelope(frames[0])
	if err != nil {
		t.Fatalf("reassembled frame unparseable: %v", err)
	}
	if env.Message != "split across reads" {
		t.Errorf("reassembled message = %q", env.Message)
	}
}

func TestStreamDecoderByteAtATime(t *testing.T) {
	var dec StreamDecoder

	full := Encode(Envelope{Sender: "alice", Message: "one byte at a time"})
	var frames [][]byte
	for i := range full {
		frames = append(frames, dec.Feed(full[i:i+1])...)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
}

func TestStreamDecoderDropsBlankLines(t *testing.T) {
	var dec StreamDecoder

	frames := dec.Feed([]byte("\n\r\n  \n"))
	if len(frames) != 0 {
		t.Errorf("blank lines produced %d frames, want 0", len(frames))
	}
}

func TestStreamDecoderTrimsCarriageReturn(t *testing.T) {
	var dec StreamDecoder

	frames := dec.Feed([]byte(`{"flag":"","sender":"a","message":"m","timestamp":""}` + "\r\n"))
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if _, err := ParseEnvelope(frames[0]); err != nil {
		t.Errorf("frame with CRLF terminator unparseable: %v", err)
	}
}

func TestStreamDecoderReturnedFramesDoNotAlias(t *testing.T) {
	var dec StreamDecoder

	frames := dec.Feed([]byte("{\"flag\":\"\",\"sender\":\"a\",\"message\":\"m\",\"timestamp\":\"\"}\n{\"flag\":"))
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	saved := string(frames[0])

	dec.Feed([]byte("\"AUTH_OK\",\"sender\":\"\",\"message\":\"\",\"timestamp\":\"\"}\n"))
	if string(frames[0]) != saved {
		t.Error("frame contents changed after a later Feed")
	}
}

func TestStreamDecoderDiscardsOversizedLine(t *testing.T) {
	var dec StreamDecoder

	if frames := dec.Feed(bytes.Repeat([]byte("x"), MaxFrameBytes+1)); len(frames) != 0 {
		t.Fatalf("oversized line yielded %d frames, want 0", len(frames))
	}
	if dec.Pending() != 0 {
		t.Errorf("oversized line left %d buffered bytes, want 0", dec.Pending())
	}

	// The tail of the oversized line must not surface as a frame.
	if frames := dec.Feed([]byte("yyy\n")); len(frames) != 0 {
		t.Fatalf("tail of discarded line yielded %d frames, want 0", len(frames))
	}

	// The next full line decodes normally.
	frames := dec.Feed([]byte(`{"flag":"","sender":"a","message":"m","timestamp":""}` + "\n"))
	if len(frames) != 1 {
		t.Errorf("frame after discarded line yielded %d frames, want 1", len(frames))
	}
}
