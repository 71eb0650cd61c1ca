package hue

import (
	"bytes"
	"fmt"
)

// jsonBufferSize is the fixed capacity for serialized command bodies. One
// byte is always kept free so a full buffer is reported as ErrBufferTooSmall
// rather than silently truncated.
const jsonBufferSize = 256

// jsonBuffer is a fixed-capacity append buffer. It never grows; every append
// is bounds-checked against the remaining capacity.
type jsonBuffer struct {
	buf [jsonBufferSize]byte
	n   int
}

func (b *jsonBuffer) reset() {
	b.n = 0
}

func (b *jsonBuffer) bytes() []byte {
	return b.buf[:b.n]
}

// appendf formats into the buffer. The formatted length is computed before
// anything is copied, so a failed append leaves the buffer unchanged.
func (b *jsonBuffer) appendf(format string, args ...any) error {
	out := fmt.Appendf(nil, format, args...)
	if bytes.Contains(out, []byte("%!")) {
		return fmt.Errorf("appending %q: %w", format, ErrEncoding)
	}
	if len(out) >= jsonBufferSize-b.n {
		return fmt.Errorf("%d bytes into %d remaining: %w", len(out), jsonBufferSize-b.n, ErrBufferTooSmall)
	}
	copy(b.buf[b.n:], out)
	b.n += len(out)
	return nil
}
