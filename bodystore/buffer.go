// Package bodystore buffers a message body in memory, spilling to a
// temporary file once the payload exceeds a configurable threshold.
package bodystore

import (
	"bytes"
	"io"
	"os"
	"sync"

	"github.com/corehttp/rawcore/rhttperr"
)

// DefaultMemoryLimit is the default in-memory threshold before a Buffer
// spills to disk.
const DefaultMemoryLimit = 4 * 1024 * 1024 // 4MiB

// Buffer accumulates written bytes in memory up to a limit, then spools
// the rest (and everything already buffered) to a temporary file. It is
// the storage behind a captured request or response body that the
// message lifecycle does not want to hold entirely in memory.
type Buffer struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	file   *os.File
	path   string
	size   int64
	limit  int64
	closed bool
}

// New returns a Buffer spilling to disk once more than limit bytes have
// been written. limit <= 0 selects DefaultMemoryLimit.
func New(limit int64) *Buffer {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return &Buffer{limit: limit}
}

// Write appends p, spilling to a temp file once the in-memory threshold
// is crossed.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, rhttperr.NewIOError("buffer_write", io.ErrClosedPipe)
	}

	b.size += int64(len(p))

	if b.file == nil && int64(b.buf.Len()+len(p)) <= b.limit {
		return b.buf.Write(p)
	}

	if b.file == nil {
		tmp, err := os.CreateTemp("", "rawcore-body-*.tmp")
		if err != nil {
			return 0, rhttperr.NewIOError("buffer_spill_create", err)
		}
		b.file = tmp
		b.path = tmp.Name()

		if b.buf.Len() > 0 {
			if _, err := tmp.Write(b.buf.Bytes()); err != nil {
				b.closeLocked()
				return 0, rhttperr.NewIOError("buffer_spill_write", err)
			}
		}
		b.buf.Reset()
	}

	n, err := b.file.Write(p)
	if err != nil {
		return n, rhttperr.NewIOError("buffer_spill_write", err)
	}
	return n, nil
}

// Bytes returns the in-memory payload. It is empty once the buffer has
// spilled to disk; use Reader in that case.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.file != nil {
		return nil
	}
	return b.buf.Bytes()
}

// Size reports the total number of bytes written so far.
func (b *Buffer) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Spilled reports whether the buffer has moved its data to disk.
func (b *Buffer) Spilled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file != nil
}

// Path returns the temp file backing a spilled buffer, or "" if not
// spilled.
func (b *Buffer) Path() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.path
}

// Reader opens a fresh, independent reader over everything written so
// far.
func (b *Buffer) Reader() (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, rhttperr.NewIOError("buffer_reader", io.ErrClosedPipe)
	}

	if b.file != nil {
		if err := b.file.Sync(); err != nil {
			return nil, rhttperr.NewIOError("buffer_sync", err)
		}
		f, err := os.Open(b.path)
		if err != nil {
			return nil, rhttperr.NewIOError("buffer_reopen", err)
		}
		return f, nil
	}
	return io.NopCloser(bytes.NewReader(b.buf.Bytes())), nil
}

// Close releases the buffer's temp file, if any. Idempotent and safe
// for concurrent use.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeLocked()
}

func (b *Buffer) closeLocked() error {
	if b.closed {
		return nil
	}
	b.closed = true

	if b.file != nil {
		err := b.file.Close()
		if removeErr := os.Remove(b.path); removeErr != nil && err == nil {
			err = removeErr
		}
		b.file = nil
		b.path = ""
		if err != nil {
			return rhttperr.NewIOError("buffer_close", err)
		}
	}
	return nil
}
