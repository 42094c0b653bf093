package logging

import (
	"bytes"
	"io"
	"sync"
)

// Tag is the fixed prefix of every status line.
const Tag = "devsync"

const (
	blue  = "\033[34m"
	reset = "\033[0m"
)

// PrefixWriter prefixes every line written to it with "[tag] ". Partial
// lines are buffered until their newline arrives or Flush is called.
// It is safe for concurrent use; lines from different writers never
// interleave mid-line.
type PrefixWriter struct {
	mu     sync.Mutex
	out    io.Writer
	prefix []byte
	buf    []byte
}

// NewPrefixWriter wraps w. When color is true the tag is printed in blue.
func NewPrefixWriter(w io.Writer, tag string, color bool) *PrefixWriter {
	prefix := "[" + tag + "] "
	if color {
		prefix = "[" + blue + tag + reset + "] "
	}

	return &PrefixWriter{out: w, prefix: []byte(prefix)}
}

// Write implements io.Writer.
func (p *PrefixWriter) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf = append(p.buf, b...)

	for {
		i := bytes.IndexByte(p.buf, '\n')
		if i < 0 {
			break
		}

		if err := p.writeLine(p.buf[:i+1]); err != nil {
			return len(b), err
		}

		p.buf = p.buf[i+1:]
	}

	return len(b), nil
}

// Flush writes any buffered partial line followed by a newline.
func (p *PrefixWriter) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.buf) == 0 {
		return nil
	}

	line := append(p.buf, '\n')
	p.buf = nil

	return p.writeLine(line)
}

func (p *PrefixWriter) writeLine(line []byte) error {
	out := make([]byte, 0, len(p.prefix)+len(line))
	out = append(out, p.prefix...)
	out = append(out, line...)

	_, err := p.out.Write(out)

	return err
}
