package compress

import (
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/corehttp/rawcore/protocol"
)

func TestIdentityRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewEncoder(protocol.CodingIdentity, &buf)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	if _, err := enc.Write([]byte("hello identity")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	dec, err := NewDecoder(protocol.CodingIdentity, &buf)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	defer dec.Close()
	got, err := io.ReadAll(dec)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "hello identity" {
		t.Errorf("round trip = %q, want %q", got, "hello identity")
	}
}

func TestDeflateRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc, err := NewEncoder(protocol.CodingDeflate, &buf)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}
	want := "the quick brown fox jumps over the lazy dog, repeatedly, for good measure"
	if _, err := enc.Write([]byte(want)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected compressed deflate output, got none")
	}

	dec, err := NewDecoder(protocol.CodingDeflate, &buf)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	defer dec.Close()
	got, err := io.ReadAll(dec)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != want {
		t.Errorf("round trip = %q, want %q", got, want)
	}
}

// TestGzipDecodeRoundTrip exercises the read-side gzip decoder against a
// payload produced by the same klauspost/compress/gzip package a real
// server's Content-Encoding: gzip response would use. The client never
// writes gzip (NewEncoder rejects it), so this only tests the decode path.
func TestGzipDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	want := "gzip payload round trip"
	if _, err := gw.Write([]byte(want)); err != nil {
		t.Fatalf("gzip Write: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip Close: %v", err)
	}

	dec, err := NewDecoder(protocol.CodingGzip, &buf)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	defer dec.Close()
	got, err := io.ReadAll(dec)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != want {
		t.Errorf("round trip = %q, want %q", got, want)
	}
}

func TestGzipDecodeInvalidHeaderFails(t *testing.T) {
	_, err := NewDecoder(protocol.CodingGzip, bytes.NewReader([]byte("not a gzip stream")))
	if err == nil {
		t.Fatalf("expected an error for a malformed gzip header")
	}
}

// TestZstdDecodeRoundTrip exercises the read-side zstd decoder, the one
// coding this module added beyond identity/deflate/gzip.
func TestZstdDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf)
	if err != nil {
		t.Fatalf("zstd.NewWriter: %v", err)
	}
	want := "zstd payload round trip"
	if _, err := zw.Write([]byte(want)); err != nil {
		t.Fatalf("zstd Write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zstd Close: %v", err)
	}

	dec, err := NewDecoder(protocol.CodingZstd, &buf)
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	defer dec.Close()
	got, err := io.ReadAll(dec)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != want {
		t.Errorf("round trip = %q, want %q", got, want)
	}
}

func TestEncoderRejectsGzipAndZstd(t *testing.T) {
	var buf bytes.Buffer
	if _, err := NewEncoder(protocol.CodingGzip, &buf); err == nil {
		t.Errorf("expected NewEncoder to reject gzip (read-side only coding)")
	}
	if _, err := NewEncoder(protocol.CodingZstd, &buf); err == nil {
		t.Errorf("expected NewEncoder to reject zstd (read-side only coding)")
	}
}
