// Package body implements BodyCodec: the read-side and write-side adapters
// that apply a Framing decision to raw transport bytes, independent of any
// content coding layered on top.
package body

import (
	"errors"
	"io"
	"strconv"

	"github.com/corehttp/rawcore/protocol"
	"github.com/corehttp/rawcore/protocol/chunk"
	"github.com/corehttp/rawcore/protocol/scan"
	"github.com/corehttp/rawcore/rhttperr"
)

// Reader is the read-side BodyCodec adapter. It implements io.Reader so a
// compress.Decoder can be layered directly on top of it.
type Reader struct {
	t       protocol.Transport
	kind    protocol.FramingKind
	remaining int64 // Fixed

	hdr              *chunk.Header // Chunked
	chunkRemaining   uint64
	needsSuffixReset bool
	trailerTerm      *scan.Terminator
	trailer          []byte
	done             bool
}

// NewReader returns a body reader applying f against t.
func NewReader(t protocol.Transport, f protocol.Framing) *Reader {
	r := &Reader{t: t, kind: f.Kind, remaining: f.N}
	if f.Kind == protocol.FramingChunked {
		r.hdr = chunk.NewHeader()
	}
	return r
}

// Trailer returns the raw trailer header block consumed after the final
// chunk, including its terminating CRLF CRLF. Empty until the body is fully
// read.
func (r *Reader) Trailer() []byte { return r.trailer }

func (r *Reader) Read(dest []byte) (int, error) {
	switch r.kind {
	case protocol.FramingFixed:
		return r.readFixed(dest)
	case protocol.FramingChunked:
		return r.readChunked(dest)
	default:
		return r.t.Read(dest)
	}
}

func (r *Reader) readFixed(dest []byte) (int, error) {
	if r.remaining == 0 {
		return 0, io.EOF
	}
	n := int64(len(dest))
	if n > r.remaining {
		n = r.remaining
	}
	got, err := r.t.Read(dest[:n])
	r.remaining -= int64(got)
	if err != nil {
		if errors.Is(err, io.EOF) && r.remaining > 0 {
			return got, rhttperr.NewUnexpectedEOF("read")
		}
		return got, err
	}
	return got, nil
}

func (r *Reader) readChunked(dest []byte) (int, error) {
	for {
		if r.chunkRemaining > 0 {
			n := uint64(len(dest))
			if n > r.chunkRemaining {
				n = r.chunkRemaining
			}
			got, err := r.t.Read(dest[:n])
			r.chunkRemaining -= uint64(got)
			if err != nil {
				if errors.Is(err, io.EOF) {
					return got, rhttperr.NewUnexpectedEOF("read")
				}
				return got, err
			}
			if r.chunkRemaining == 0 {
				r.needsSuffixReset = true
			}
			return got, nil
		}
		if r.done {
			return 0, io.EOF
		}
		if r.needsSuffixReset {
			r.hdr.ResetForNext()
			r.needsSuffixReset = false
		}
		for !r.hdr.Finished() && !r.hdr.Invalid() {
			if err := r.t.Fill(); err != nil {
				if errors.Is(err, io.EOF) {
					return 0, rhttperr.NewUnexpectedEOF("read")
				}
				return 0, err
			}
			window := r.t.Peek()
			if len(window) == 0 {
				return 0, rhttperr.NewUnexpectedEOF("read")
			}
			consumed := r.hdr.Feed(window)
			r.t.Drop(consumed)
		}
		if r.hdr.Invalid() {
			return 0, rhttperr.NewInvalidChunkedEncoding("malformed chunk-size line")
		}
		length := r.hdr.TakeLength()
		if length == 0 {
			r.trailerTerm = scan.NewTerminatorAfterLine(r.hdr.CRLFTerminated())
			if err := r.readTrailer(); err != nil {
				return 0, err
			}
			r.done = true
			continue
		}
		r.chunkRemaining = length
	}
}

func (r *Reader) readTrailer() error {
	for !r.trailerTerm.Finished() {
		if err := r.t.Fill(); err != nil {
			if errors.Is(err, io.EOF) {
				return rhttperr.NewUnexpectedEOF("read")
			}
			return err
		}
		window := r.t.Peek()
		if len(window) == 0 {
			return rhttperr.NewUnexpectedEOF("read")
		}
		consumed := r.trailerTerm.Feed(window)
		r.trailer = append(r.trailer, window[:consumed]...)
		r.t.Drop(consumed)
	}
	return nil
}

// Writer is the write-side BodyCodec adapter.
type Writer struct {
	t         protocol.Transport
	kind      protocol.FramingKind
	declared  int64
	remaining int64
}

// NewWriter returns a body writer applying f against t.
func NewWriter(t protocol.Transport, f protocol.Framing) *Writer {
	return &Writer{t: t, kind: f.Kind, declared: f.N, remaining: f.N}
}

func (w *Writer) Write(p []byte) (int, error) {
	switch w.kind {
	case protocol.FramingNone:
		return 0, rhttperr.NewNotWritable()
	case protocol.FramingFixed:
		if int64(len(p)) > w.remaining {
			return 0, rhttperr.NewMessageTooLong(w.declared, w.declared-w.remaining+int64(len(p)))
		}
		n, err := w.t.Write(p)
		w.remaining -= int64(n)
		return n, err
	case protocol.FramingChunked:
		return w.writeChunk(p)
	default:
		return 0, rhttperr.NewNotWritable()
	}
}

func (w *Writer) writeChunk(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	head := strconv.FormatInt(int64(len(p)), 16) + "\r\n"
	if _, err := io.WriteString(w.t, head); err != nil {
		return 0, err
	}
	n, err := w.t.Write(p)
	if err != nil {
		return n, err
	}
	if _, err := io.WriteString(w.t, "\r\n"); err != nil {
		return n, err
	}
	return n, nil
}

// Finish terminates the body per framing: a zero-chunk for Chunked, nothing
// for None/Fixed(0), and MessageNotComplete for an under-written Fixed(n).
func (w *Writer) Finish() error {
	switch w.kind {
	case protocol.FramingChunked:
		_, err := io.WriteString(w.t, "0\r\n\r\n")
		return err
	case protocol.FramingFixed:
		if w.remaining > 0 {
			return rhttperr.NewMessageNotComplete(w.declared, w.declared-w.remaining)
		}
		return nil
	default:
		return nil
	}
}
