package body

import (
	"bytes"
	"io"
	"testing"

	"github.com/corehttp/rawcore/protocol"
	"github.com/corehttp/rawcore/rhttperr"
)

// fakeTransport is a minimal in-memory protocol.Transport backed by a fixed
// script of incoming bytes and a buffer capturing outgoing bytes.
type fakeTransport struct {
	in    []byte
	start int
	out   bytes.Buffer
}

func newFakeTransport(script string) *fakeTransport {
	return &fakeTransport{in: []byte(script)}
}

func (f *fakeTransport) Fill() error {
	if f.start >= len(f.in) {
		return io.EOF
	}
	return nil
}

func (f *fakeTransport) Peek() []byte { return f.in[f.start:] }

func (f *fakeTransport) Drop(n int) { f.start += n }

func (f *fakeTransport) Read(dest []byte) (int, error) {
	if f.start >= len(f.in) {
		return 0, io.EOF
	}
	n := copy(dest, f.in[f.start:])
	f.start += n
	return n, nil
}

func (f *fakeTransport) Write(p []byte) (int, error) { return f.out.Write(p) }
func (f *fakeTransport) Flush() error                { return nil }
func (f *fakeTransport) Close() error                { return nil }

func isErrType(err error, want rhttperr.ErrorType) bool {
	return rhttperr.GetErrorType(err) == want
}

func TestReadFixedBody(t *testing.T) {
	ft := newFakeTransport("hello")
	r := NewReader(ft, protocol.Fixed(5))
	buf := make([]byte, 16)
	n, err := r.Read(buf)
	if err != nil && err != io.EOF {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Errorf("body = %q, want hello", buf[:n])
	}
}

func TestReadFixedBodyTruncatedConnectionIsUnexpectedEOF(t *testing.T) {
	ft := newFakeTransport("hel") // declared 5, only 3 bytes arrive
	r := NewReader(ft, protocol.Fixed(5))
	buf := make([]byte, 16)
	// The bytes that did arrive are delivered first; the short body
	// surfaces on the following Read.
	n, err := r.Read(buf)
	if err != nil {
		t.Fatalf("first Read: %v", err)
	}
	if string(buf[:n]) != "hel" {
		t.Errorf("first Read = %q, want hel", buf[:n])
	}
	_, err = r.Read(buf)
	if !isErrType(err, rhttperr.ErrorTypeUnexpectedEOF) {
		t.Fatalf("err = %v, want UnexpectedEOF", err)
	}
}

func TestReadChunkedBody(t *testing.T) {
	ft := newFakeTransport("4\r\ngood\r\n0\r\n\r\n")
	r := NewReader(ft, protocol.Chunked())
	buf := make([]byte, 64)
	n, err := r.Read(buf)
	if err != nil && err != io.EOF {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "good" {
		t.Errorf("body = %q, want good", buf[:n])
	}
	n2, err := r.Read(buf)
	if n2 != 0 || err != io.EOF {
		t.Errorf("second Read = %d, %v; want 0, io.EOF", n2, err)
	}
}

func TestReadChunkedTrailer(t *testing.T) {
	ft := newFakeTransport("4\r\ngood\r\n0\r\nExpires: now\r\n\r\n")
	r := NewReader(ft, protocol.Chunked())
	buf := make([]byte, 64)
	if _, err := r.Read(buf); err != nil && err != io.EOF {
		t.Fatalf("Read: %v", err)
	}
	if _, err := r.Read(buf); err != io.EOF {
		t.Fatalf("Read: %v, want io.EOF", err)
	}
	if string(r.Trailer()) != "Expires: now\r\n\r\n" {
		t.Errorf("trailer = %q", r.Trailer())
	}
}

// TestReadChunkedConnectionClosedMidChunkHeaderIsUnexpectedEOF covers the
// connection-dropped-before-the-chunk-size-line-finishes case: the peer
// closes after the chunk data but before the next chunk's size line (here,
// the terminating "0\r\n\r\n" never arrives).
func TestReadChunkedConnectionClosedMidChunkHeaderIsUnexpectedEOF(t *testing.T) {
	ft := newFakeTransport("4\r\ngood\r\n") // closes before the next chunk-size line
	r := NewReader(ft, protocol.Chunked())
	buf := make([]byte, 64)
	if _, err := r.Read(buf); err != nil && err != io.EOF {
		t.Fatalf("first Read: %v", err)
	}
	_, err := r.Read(buf)
	if !isErrType(err, rhttperr.ErrorTypeUnexpectedEOF) {
		t.Fatalf("err = %v, want UnexpectedEOF", err)
	}
}

// TestReadChunkedConnectionClosedMidTrailerIsUnexpectedEOF covers a
// connection dropped after the zero-length chunk's size line but before its
// trailer block's terminating blank line arrives.
func TestReadChunkedConnectionClosedMidTrailerIsUnexpectedEOF(t *testing.T) {
	ft := newFakeTransport("4\r\ngood\r\n0\r\nExpires: now\r\n") // missing final \r\n
	r := NewReader(ft, protocol.Chunked())
	buf := make([]byte, 64)
	if _, err := r.Read(buf); err != nil && err != io.EOF {
		t.Fatalf("first Read: %v", err)
	}
	_, err := r.Read(buf)
	if !isErrType(err, rhttperr.ErrorTypeUnexpectedEOF) {
		t.Fatalf("err = %v, want UnexpectedEOF", err)
	}
}

func TestWriteChunkedBody(t *testing.T) {
	ft := newFakeTransport("")
	w := NewWriter(ft, protocol.Chunked())
	if _, err := w.Write([]byte("hi")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	want := "2\r\nhi\r\n0\r\n\r\n"
	if got := ft.out.String(); got != want {
		t.Errorf("wire bytes = %q, want %q", got, want)
	}
}

func TestWriteFixedBodyUnderWrittenFailsFinish(t *testing.T) {
	ft := newFakeTransport("")
	w := NewWriter(ft, protocol.Fixed(5))
	if _, err := w.Write([]byte("hi")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	err := w.Finish()
	if !isErrType(err, rhttperr.ErrorTypeMessageNotComplete) {
		t.Fatalf("err = %v, want MessageNotComplete", err)
	}
}

func TestWriteFixedBodyOverflowRejected(t *testing.T) {
	ft := newFakeTransport("")
	w := NewWriter(ft, protocol.Fixed(2))
	_, err := w.Write([]byte("too long"))
	if !isErrType(err, rhttperr.ErrorTypeMessageTooLong) {
		t.Fatalf("err = %v, want MessageTooLong", err)
	}
}
