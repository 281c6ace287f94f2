package txt

import (
	"bufio"
	"bytes"
	"io"
)

// maxLineBytes caps the bytes held for one line. Longer lines are delivered in
// pieces; offsets stay exact but only the first piece is a line start.
const maxLineBytes = 1 << 20

// lineScanner splits a stream into lines terminated by "\n", "\r\n" or a lone
// "\r" and reports how many bytes each line occupied, terminator included.
type lineScanner struct {
	sc       *bufio.Scanner
	advance  int
	partial  bool
	prevPart bool
}

func newLineScanner(r io.Reader) *lineScanner {
	l := &lineScanner{}
	l.sc = bufio.NewScanner(r)
	l.sc.Buffer(make([]byte, 64*1024), 2*maxLineBytes)
	l.sc.Split(l.split)
	return l
}

// Scan advances to the next line.
func (l *lineScanner) Scan() bool {
	l.prevPart = l.partial
	return l.sc.Scan()
}

// Bytes returns the current line without its terminator.
func (l *lineScanner) Bytes() []byte { return l.sc.Bytes() }

// Advance returns the number of bytes the current line consumed.
func (l *lineScanner) Advance() int { return l.advance }

// Continuation reports whether the current line continues a line that was cut
// at maxLineBytes.
func (l *lineScanner) Continuation() bool { return l.prevPart }

func (l *lineScanner) Err() error { return l.sc.Err() }

func (l *lineScanner) split(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		if data[i] == '\n' {
			return l.emit(i+1, data[:i], false)
		}
		if i+1 < len(data) {
			if data[i+1] == '\n' {
				return l.emit(i+2, data[:i], false)
			}
			return l.emit(i+1, data[:i], false)
		}
		// A trailing '\r' may be the first half of "\r\n".
		if !atEOF && len(data) < maxLineBytes {
			return 0, nil, nil
		}
		return l.emit(i+1, data[:i], false)
	}
	if atEOF {
		return l.emit(len(data), data, false)
	}
	if len(data) >= maxLineBytes {
		return l.emit(len(data), data, true)
	}
	return 0, nil, nil
}

func (l *lineScanner) emit(advance int, token []byte, partial bool) (int, []byte, error) {
	l.advance = advance
	l.partial = partial
	return advance, token, nil
}
