// Package protocol ties the scanner, chunk, and headers primitives into the
// duplex message lifecycle: framing decisions, body codecs, and the
// Transport/CompressionAdapter boundary interfaces the core is built
// against.
package protocol

import "strings"

// FramingKind selects how a message body is delimited.
type FramingKind int

const (
	// FramingNone means no body: HEAD responses, 1xx/204/304 statuses, or a
	// response with neither Transfer-Encoding nor Content-Length (body runs
	// to connection close on read, and is simply disallowed on write).
	FramingNone FramingKind = iota
	// FramingFixed means exactly N bytes, per Content-Length or an explicit
	// request body length.
	FramingFixed
	// FramingChunked means Transfer-Encoding: chunked.
	FramingChunked
)

func (k FramingKind) String() string {
	switch k {
	case FramingNone:
		return "none"
	case FramingFixed:
		return "fixed"
	case FramingChunked:
		return "chunked"
	default:
		return "unknown"
	}
}

// Framing is the tagged framing value for one direction of a message. N is
// only meaningful when Kind is FramingFixed; it holds the declared length on
// read and the remaining-to-write count on write.
type Framing struct {
	Kind FramingKind
	N    int64
}

// None is the zero-body framing.
func None() Framing { return Framing{Kind: FramingNone} }

// Fixed is counted-length framing of n bytes.
func Fixed(n int64) Framing { return Framing{Kind: FramingFixed, N: n} }

// Chunked is transfer-encoding chunked framing.
func Chunked() Framing { return Framing{Kind: FramingChunked} }

// ContentCoding names a content coding applied to a message body,
// independent of its framing. The read side accepts identity, deflate,
// gzip, and zstd; the write side only ever produces identity or deflate.
type ContentCoding int

const (
	CodingIdentity ContentCoding = iota
	CodingDeflate
	CodingGzip
	CodingZstd
)

func (c ContentCoding) String() string {
	switch c {
	case CodingIdentity:
		return "identity"
	case CodingDeflate:
		return "deflate"
	case CodingGzip:
		return "gzip"
	case CodingZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// ParseContentCoding maps a single Content-Encoding or Transfer-Encoding
// token to a ContentCoding, ignoring surrounding whitespace and case.
// It reports false for any token it does not recognize, including
// "chunked" itself, which is not a content coding.
func ParseContentCoding(token string) (ContentCoding, bool) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "identity":
		return CodingIdentity, true
	case "deflate":
		return CodingDeflate, true
	case "gzip":
		return CodingGzip, true
	case "zstd":
		return CodingZstd, true
	default:
		return 0, false
	}
}

// WritableCoding reports whether c may be used to encode an outgoing
// request body; only identity and deflate are write-side codings.
func WritableCoding(c ContentCoding) bool {
	return c == CodingIdentity || c == CodingDeflate
}
