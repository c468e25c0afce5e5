// Package pool implements ConnectionPool: a keyed, bounded, thread-safe
// pool of reusable connections with FIFO eviction of the free list.
package pool

import (
	"strings"
	"sync"

	"github.com/corehttp/rawcore/protocol"
)

// Key identifies a pool bucket: ASCII case-insensitive host, port, and
// whether the connection is TLS.
type Key struct {
	Host string
	Port int
	TLS  bool
}

// NewKey builds a Key, normalizing host to lowercase so lookups are
// case-insensitive.
func NewKey(host string, port int, tls bool) Key {
	return Key{Host: strings.ToLower(host), Port: port, TLS: tls}
}

// DefaultFreeMax is the default per-key free-list capacity.
const DefaultFreeMax = 32

// Connection is one pooled connection: its key, its Transport handle, and
// the keep-alive disposition the last transaction on it determined.
type Connection struct {
	Key       Key
	Transport protocol.Transport
	KeepAlive bool
}

// Dialer opens a fresh Transport for key. Supplied by the caller (the dial
// package) so the pool itself stays I/O-agnostic.
type Dialer func(Key) (protocol.Transport, error)

type bucket struct {
	used []*Connection
	free []*Connection // FIFO: Release appends at tail; eviction pops the front (oldest).
}

// Pool is a keyed connection pool. All operations are safe for concurrent
// use; a given Connection is only ever borrowed by one caller between
// Connect and Release.
type Pool struct {
	mu      sync.Mutex
	buckets map[Key]*bucket
	freeMax int
	dial    Dialer
}

// New returns a pool with the given per-key free-list capacity. dial opens
// a new Transport when no free connection for a key is available.
func New(freeMax int, dial Dialer) *Pool {
	return &Pool{buckets: make(map[Key]*bucket), freeMax: freeMax, dial: dial}
}

func (p *Pool) bucketFor(key Key) *bucket {
	b, ok := p.buckets[key]
	if !ok {
		b = &bucket{}
		p.buckets[key] = b
	}
	return b
}

// Connect returns a Connection for key: a matching free connection if one
// exists (most recently released first, for warmth), or a freshly dialed
// one otherwise. The returned Connection is placed on the used list.
// reused reports which of those two happened.
func (p *Pool) Connect(key Key) (c *Connection, reused bool, err error) {
	p.mu.Lock()
	b := p.bucketFor(key)
	if n := len(b.free); n > 0 {
		c := b.free[n-1]
		b.free = b.free[:n-1]
		b.used = append(b.used, c)
		p.mu.Unlock()
		return c, true, nil
	}
	p.mu.Unlock()

	t, err := p.dial(key)
	if err != nil {
		return nil, false, err
	}
	c = &Connection{Key: key, Transport: t, KeepAlive: true}

	p.mu.Lock()
	b = p.bucketFor(key)
	b.used = append(b.used, c)
	p.mu.Unlock()
	return c, false, nil
}

// Release returns c to the pool. If c is not keep-alive or the pool
// accepts no free connections, c is closed and discarded. Otherwise it is
// appended to the free list, evicting the oldest free connection first if
// that would exceed freeMax.
func (p *Pool) Release(c *Connection) {
	p.mu.Lock()
	defer p.mu.Unlock()

	b := p.bucketFor(c.Key)
	removeUsed(b, c)

	if !c.KeepAlive || p.freeMax == 0 {
		_ = c.Transport.Close()
		return
	}

	for len(b.free) >= p.freeMax {
		evict := b.free[0]
		b.free = b.free[1:]
		_ = evict.Transport.Close()
	}
	b.free = append(b.free, c)
}

func removeUsed(b *bucket, c *Connection) {
	for i, u := range b.used {
		if u == c {
			b.used = append(b.used[:i], b.used[i+1:]...)
			return
		}
	}
}

// Resize changes the per-key free-list capacity, evicting oldest free
// connections across all buckets if the new capacity is smaller.
func (p *Pool) Resize(newMax int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.freeMax = newMax
	for _, b := range p.buckets {
		for len(b.free) > p.freeMax {
			evict := b.free[0]
			b.free = b.free[1:]
			_ = evict.Transport.Close()
		}
	}
}

// Stats reports free/used connection counts across every key.
type Stats struct {
	Used int
	Free int
}

// Stats returns a snapshot of pool occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	var s Stats
	for _, b := range p.buckets {
		s.Used += len(b.used)
		s.Free += len(b.free)
	}
	return s
}

// Close closes every connection in every bucket, used or free.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range p.buckets {
		for _, c := range b.used {
			_ = c.Transport.Close()
		}
		for _, c := range b.free {
			_ = c.Transport.Close()
		}
		b.used = nil
		b.free = nil
	}
	return nil
}
