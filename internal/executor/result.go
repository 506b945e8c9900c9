package executor

import (
	"bytes"
	"unicode/utf8"
)

// TruncationMarker is appended to a stream cut at the output limit.
const TruncationMarker = "\n... (output truncated)"

// Assemble maps a runner outcome to the response contract. It performs no I/O.
//
// A timed-out run has no exit code, an empty stdout and the fixed timeout
// message on stderr; partial output is discarded.
func Assemble(out Outcome) ExecutionResult {
	if out.TimedOut {
		return ExecutionResult{
			Stdout:   "",
			Stderr:   TimeoutMessage,
			ExitCode: nil,
			TimedOut: true,
		}
	}

	code := out.ExitCode
	return ExecutionResult{
		Stdout:   out.Stdout,
		Stderr:   out.Stderr,
		ExitCode: &code,
		TimedOut: false,
	}
}

// LimitedBuffer is an io.Writer that keeps at most Limit bytes and silently
// drops the rest. A Limit of zero or less means unlimited.
type LimitedBuffer struct {
	Limit     int
	buf       bytes.Buffer
	truncated bool
}

func (b *LimitedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if b.Limit > 0 {
		room := b.Limit - b.buf.Len()
		if room <= 0 {
			b.truncated = b.truncated || n > 0
			return n, nil
		}
		if len(p) > room {
			p = p[:room]
			b.truncated = true
		}
	}
	b.buf.Write(p)
	// Report the full length so io.Copy-style callers keep draining the source.
	return n, nil
}

// Truncated reports whether any bytes were dropped.
func (b *LimitedBuffer) Truncated() bool {
	return b.truncated
}

// String returns the captured text, with TruncationMarker when bytes were
// dropped. A character split by the cut is dropped whole.
func (b *LimitedBuffer) String() string {
	if b.truncated {
		return string(trimPartialRune(b.buf.Bytes())) + TruncationMarker
	}
	return b.buf.String()
}

// trimPartialRune drops an incomplete UTF-8 sequence at the end of p.
func trimPartialRune(p []byte) []byte {
	for i := len(p) - 1; i >= 0 && i >= len(p)-utf8.UTFMax; i-- {
		if utf8.RuneStart(p[i]) {
			if !utf8.FullRune(p[i:]) {
				return p[:i]
			}
			break
		}
	}
	return p
}
