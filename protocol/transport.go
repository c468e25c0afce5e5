package protocol

// Transport is the I/O boundary the core is built against: a buffered byte
// channel with an explicit fill/peek/drop read protocol so the scanner and
// chunk parsers can work against a stable window without copying.
type Transport interface {
	// Fill ensures the readable window is non-empty, blocking on the
	// underlying stream if necessary. It returns io.EOF if the stream is
	// exhausted with nothing left to read.
	Fill() error
	// Peek returns the current readable window. It may be empty before the
	// first Fill.
	Peek() []byte
	// Drop advances the readable window's start by n bytes.
	Drop(n int)
	// Read is a buffered read of len(dest) bytes at most; it returns at
	// least one byte or an error.
	Read(dest []byte) (int, error)
	// Write buffers bytes for later Flush.
	Write(b []byte) (int, error)
	// Flush drains the write buffer to the underlying stream.
	Flush() error
	// Close irreversibly releases the transport.
	Close() error
}
