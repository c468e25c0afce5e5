// Package transportconn implements protocol.Transport over a net.Conn
// using fixed-size read and write ring buffers, per spec.md's 16 KiB
// per-direction buffering.
package transportconn

import (
	"io"
	"net"
)

// BufSize is the fixed size of each direction's buffer.
const BufSize = 16 * 1024

// Conn adapts a net.Conn to protocol.Transport.
type Conn struct {
	nc net.Conn

	rbuf         []byte
	rstart, rend int

	wbuf []byte
	wend int
}

// New wraps nc as a protocol.Transport with 16 KiB read/write buffers.
func New(nc net.Conn) *Conn {
	return &Conn{nc: nc, rbuf: make([]byte, BufSize), wbuf: make([]byte, BufSize)}
}

// Fill ensures the readable window is non-empty, blocking on the
// underlying connection if necessary.
func (c *Conn) Fill() error {
	if c.rstart < c.rend {
		return nil
	}
	c.rstart, c.rend = 0, 0
	n, err := c.nc.Read(c.rbuf)
	c.rend = n
	if n == 0 {
		if err == nil {
			err = io.EOF
		}
		return err
	}
	return nil
}

// Peek returns the current readable window.
func (c *Conn) Peek() []byte { return c.rbuf[c.rstart:c.rend] }

// Drop advances the readable window's start by n bytes.
func (c *Conn) Drop(n int) {
	c.rstart += n
	if c.rstart > c.rend {
		c.rstart = c.rend
	}
}

// Read is a buffered read of at most len(dest) bytes.
func (c *Conn) Read(dest []byte) (int, error) {
	if c.rstart >= c.rend {
		if err := c.Fill(); err != nil {
			return 0, err
		}
	}
	n := copy(dest, c.rbuf[c.rstart:c.rend])
	c.rstart += n
	return n, nil
}

// Write buffers p, flushing to the underlying connection as the write
// buffer fills.
func (c *Conn) Write(p []byte) (int, error) {
	total := 0
	for len(p) > 0 {
		if c.wend == len(c.wbuf) {
			if err := c.Flush(); err != nil {
				return total, err
			}
		}
		n := copy(c.wbuf[c.wend:], p)
		c.wend += n
		total += n
		p = p[n:]
	}
	return total, nil
}

// Flush drains the write buffer to the underlying connection.
func (c *Conn) Flush() error {
	if c.wend == 0 {
		return nil
	}
	_, err := c.nc.Write(c.wbuf[:c.wend])
	c.wend = 0
	return err
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.nc.Close()
}
