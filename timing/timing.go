// Package timing measures per-phase connection and request latency: DNS
// lookup, TCP connect, TLS handshake, time to first byte, and total time.
package timing

import (
	"fmt"
	"time"
)

// Metrics is a completed timing measurement.
type Metrics struct {
	DNSLookup    time.Duration
	TCPConnect   time.Duration
	TLSHandshake time.Duration
	TTFB         time.Duration
	TotalTime    time.Duration
}

// ConnectionTime is the total time spent establishing the connection
// (DNS + TCP + TLS), before any bytes of the request were written.
func (m Metrics) ConnectionTime() time.Duration {
	return m.DNSLookup + m.TCPConnect + m.TLSHandshake
}

// ServerTime is the time spent waiting for the first response byte.
func (m Metrics) ServerTime() time.Duration { return m.TTFB }

func (m Metrics) String() string {
	return fmt.Sprintf("DNSLookup: %v, TCPConnect: %v, TLSHandshake: %v, TTFB: %v, TotalTime: %v",
		m.DNSLookup, m.TCPConnect, m.TLSHandshake, m.TTFB, m.TotalTime)
}

// Timer accumulates the phase boundaries of a single connection/request.
// A nil *Timer is safe to call Start/End on: every method no-ops, so
// callers that don't want timing overhead can pass a nil timer through.
type Timer struct {
	start                time.Time
	dnsStart, dnsEnd     time.Time
	tcpStart, tcpEnd     time.Time
	tlsStart, tlsEnd     time.Time
	ttfbStart, ttfbEnd   time.Time
}

// NewTimer starts a new timing session.
func NewTimer() *Timer { return &Timer{start: time.Now()} }

func (t *Timer) StartDNS() { if t != nil { t.dnsStart = time.Now() } }
func (t *Timer) EndDNS()   { if t != nil { t.dnsEnd = time.Now() } }

func (t *Timer) StartTCP() { if t != nil { t.tcpStart = time.Now() } }
func (t *Timer) EndTCP()   { if t != nil { t.tcpEnd = time.Now() } }

func (t *Timer) StartTLS() { if t != nil { t.tlsStart = time.Now() } }
func (t *Timer) EndTLS()   { if t != nil { t.tlsEnd = time.Now() } }

func (t *Timer) StartTTFB() { if t != nil { t.ttfbStart = time.Now() } }
func (t *Timer) EndTTFB()   { if t != nil { t.ttfbEnd = time.Now() } }

// Metrics computes the elapsed duration of every phase observed so far.
// A phase whose Start/End pair was never called reports a zero duration.
func (t *Timer) Metrics() Metrics {
	if t == nil {
		return Metrics{}
	}
	m := Metrics{TotalTime: time.Since(t.start)}
	if !t.dnsStart.IsZero() && !t.dnsEnd.IsZero() {
		m.DNSLookup = t.dnsEnd.Sub(t.dnsStart)
	}
	if !t.tcpStart.IsZero() && !t.tcpEnd.IsZero() {
		m.TCPConnect = t.tcpEnd.Sub(t.tcpStart)
	}
	if !t.tlsStart.IsZero() && !t.tlsEnd.IsZero() {
		m.TLSHandshake = t.tlsEnd.Sub(t.tlsStart)
	}
	if !t.ttfbStart.IsZero() && !t.ttfbEnd.IsZero() {
		m.TTFB = t.ttfbEnd.Sub(t.ttfbStart)
	}
	return m
}
