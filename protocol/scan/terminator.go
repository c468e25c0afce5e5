package scan

// cursor is the header terminator scanner's parse position. States are a
// disjoint namespace from the chunk-header parser's states (see package
// chunk).
type cursor int

const (
	ground cursor = iota
	seenR
	seenRN
	seenRNR
	seenN
	finished
)

// restart computes the state as though b were being fed to a scanner freshly
// at ground: any byte that does not continue the terminator in progress may
// still begin a new one, so the automaton never discards a CR/LF it just
// consumed.
func restart(b byte) cursor {
	switch b {
	case '\r':
		return seenR
	case '\n':
		return seenN
	default:
		return ground
	}
}

// Terminator incrementally detects the CRLFCRLF end-of-headers sentinel
// (LFLF tolerated) across any number of Feed calls, without backtracking
// and without allocating. No other abbreviation (bare CR, mixed CR/LF
// shortcuts) is accepted as a terminator.
type Terminator struct {
	state cursor
}

// NewTerminator returns a scanner positioned at the start of a header block.
func NewTerminator() *Terminator {
	return &Terminator{state: ground}
}

// NewTerminatorAfterLine returns a scanner primed as though the CRLF (or,
// if crlf is false, bare LF) ending the previous line had just been fed to
// it. Used when a different parser already consumed that line's own
// terminator (e.g. a chunk-size line) and this scanner must still detect
// an immediately following blank line without re-observing those bytes.
func NewTerminatorAfterLine(crlf bool) *Terminator {
	if crlf {
		return &Terminator{state: seenRN}
	}
	return &Terminator{state: seenN}
}

// Reset returns the scanner to its initial state for reuse across messages.
func (t *Terminator) Reset() {
	t.state = ground
}

// Finished reports whether the terminator sentinel has been found.
func (t *Terminator) Finished() bool {
	return t.state == finished
}

// Feed advances the scanner over chunk and returns the number of leading
// bytes of chunk that belong to the header block, inclusive of the
// terminator once found. If the terminator is not found within chunk, the
// full length of chunk is consumed and the caller must Feed again with more
// bytes. Calling Feed after Finished is a caller error.
func (t *Terminator) Feed(chunk []byte) (consumed int) {
	i := 0
	for i < len(chunk) {
		if t.state == ground {
			rel := FirstCROrLF(chunk[i:])
			if rel < 0 {
				return len(chunk)
			}
			i += rel
		}

		b := chunk[i]
		i++

		switch t.state {
		case ground:
			t.state = restart(b)
		case seenR:
			if b == '\n' {
				t.state = seenRN
			} else {
				t.state = restart(b)
			}
		case seenRN:
			if b == '\r' {
				t.state = seenRNR
			} else {
				t.state = restart(b)
			}
		case seenRNR:
			if b == '\n' {
				t.state = finished
			} else {
				t.state = restart(b)
			}
		case seenN:
			if b == '\n' {
				t.state = finished
			} else {
				t.state = restart(b)
			}
		}

		if t.state == finished {
			return i
		}
	}
	return i
}
