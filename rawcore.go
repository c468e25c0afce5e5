// Package rawcore is a low-level HTTP/1.1 client core built from raw
// sockets: wire parsing, request/response framing, compression, and a
// keyed connection pool, wired together behind a single Client.Do call.
package rawcore

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/corehttp/rawcore/bodystore"
	"github.com/corehttp/rawcore/dial"
	"github.com/corehttp/rawcore/pool"
	"github.com/corehttp/rawcore/protocol"
	"github.com/corehttp/rawcore/protocol/headers"
	"github.com/corehttp/rawcore/protocol/message"
	"github.com/corehttp/rawcore/rhttperr"
	"github.com/corehttp/rawcore/timing"
)

// Re-export the pieces callers need without reaching into subpackages.
type (
	// Headers is the ordered, case-insensitive header multimap.
	Headers = headers.Table

	// ProxyConfig describes an upstream proxy to tunnel through.
	ProxyConfig = dial.ProxyConfig

	// Metrics is a completed per-phase timing measurement.
	Metrics = timing.Metrics

	// Error is the core's structured error type.
	Error = rhttperr.Error

	// PoolStats reports connection pool occupancy.
	PoolStats = pool.Stats
)

// ParseProxyURL parses a proxy URL string into a ProxyConfig.
func ParseProxyURL(proxyURL string) (*ProxyConfig, error) { return dial.ParseProxyURL(proxyURL) }

// Options controls how Client.Do establishes a connection, frames the
// request, and disposes of the connection afterward.
type Options struct {
	Scheme string // "http" or "https"
	Host   string
	Port   int

	Method  string
	Target  string
	Headers *Headers

	// RequestBody, if non-nil, is read to completion and sent as the
	// request body. RequestBodyLength >= 0 selects Fixed(N) framing;
	// a negative length selects chunked framing instead.
	RequestBody       io.Reader
	RequestBodyLength int64
	RequestCoding     protocol.ContentCoding

	ConnectIP     string
	ConnTimeout   time.Duration
	DNSTimeout    time.Duration
	SNI           string
	DisableSNI    bool
	InsecureTLS   bool
	CustomCACerts [][]byte

	ClientCertPEM, ClientKeyPEM   []byte
	ClientCertFile, ClientKeyFile string

	MinTLSVersion, MaxTLSVersion uint16
	CipherSuites                 []uint16

	Proxy *ProxyConfig

	// ReuseConnection, when true, returns the connection to the pool
	// after the exchange instead of closing it.
	ReuseConnection bool

	// BodyMemLimit caps how much of the response body is buffered in
	// memory before spilling to disk. 0 selects bodystore's default.
	BodyMemLimit int64

	// MaxHeaderBytes overrides the response header block size cap.
	MaxHeaderBytes int
}

// Response is a completed exchange's status, headers, and captured body.
type Response struct {
	StatusCode int
	Headers    *Headers
	Body       *bodystore.Buffer
	Trailer    []byte

	ConnectionReused bool
	ResolvedIP       string
	TLSVersion       string
	TLSCipherSuite   string
	ProxyUsed        bool
	ProxyType        string
	ProxyAddr        string

	Timings Metrics
}

// Close releases the response body's backing storage.
func (r *Response) Close() error {
	if r.Body == nil {
		return nil
	}
	return r.Body.Close()
}

// Client sends requests over a pooled set of connections. The zero value
// is not usable; construct with New.
type Client struct {
	pool *pool.Pool

	// pending holds the dial.Config for a key's in-flight Connect call.
	// Do sets it immediately before calling Pool.Connect (which, on a
	// free-list miss, synchronously invokes c.dial within that same
	// call) and clears it once Connect returns. This lets the pool
	// remain ignorant of per-request TLS/proxy/cert options while still
	// using its own Dialer-driven miss path instead of dialing outside
	// the pool's bookkeeping.
	mu      sync.Mutex
	pending map[pool.Key]dialRequest
}

type dialRequest struct {
	ctx   context.Context
	cfg   dial.Config
	timer *timing.Timer
	meta  dial.Metadata
}

// New returns a Client with a connection pool of the given per-key free
// capacity. freeMax <= 0 selects pool.DefaultFreeMax.
func New(freeMax int) *Client {
	if freeMax <= 0 {
		freeMax = pool.DefaultFreeMax
	}
	c := &Client{pending: make(map[pool.Key]dialRequest)}
	c.pool = pool.New(freeMax, c.dial)
	return c
}

// PoolStats reports connection pool occupancy.
func (c *Client) PoolStats() PoolStats { return c.pool.Stats() }

// Close closes every pooled connection.
func (c *Client) Close() error { return c.pool.Close() }

func (c *Client) dial(key pool.Key) (protocol.Transport, error) {
	c.mu.Lock()
	req, ok := c.pending[key]
	c.mu.Unlock()
	if !ok {
		return nil, rhttperr.NewValidationError("pool dialer invoked without a pending request for key")
	}

	conn, meta, err := dial.Dial(req.ctx, req.cfg, req.timer)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	req.meta = meta
	c.pending[key] = req
	c.mu.Unlock()
	return conn, nil
}

// Do sends one request and returns its response. The caller must Close
// the returned Response (even on error, if non-nil) to release its
// backing storage.
func (c *Client) Do(ctx context.Context, opts Options) (*Response, error) {
	if opts.Host == "" {
		return nil, rhttperr.NewValidationError("host cannot be empty")
	}
	if opts.Method == "" {
		opts.Method = "GET"
	}
	if opts.Target == "" {
		opts.Target = "/"
	}

	key := pool.NewKey(opts.Host, opts.Port, opts.Scheme == "https")
	timer := timing.NewTimer()

	cfg := dial.Config{
		Host:           opts.Host,
		Port:           opts.Port,
		TLS:            opts.Scheme == "https",
		ConnectIP:      opts.ConnectIP,
		ConnTimeout:    opts.ConnTimeout,
		DNSTimeout:     opts.DNSTimeout,
		SNI:            opts.SNI,
		DisableSNI:     opts.DisableSNI,
		InsecureTLS:    opts.InsecureTLS,
		CustomCACerts:  opts.CustomCACerts,
		ClientCertPEM:  opts.ClientCertPEM,
		ClientKeyPEM:   opts.ClientKeyPEM,
		ClientCertFile: opts.ClientCertFile,
		ClientKeyFile:  opts.ClientKeyFile,
		MinTLSVersion:  opts.MinTLSVersion,
		MaxTLSVersion:  opts.MaxTLSVersion,
		CipherSuites:   opts.CipherSuites,
		Proxy:          opts.Proxy,
	}

	c.mu.Lock()
	c.pending[key] = dialRequest{ctx: ctx, cfg: cfg, timer: timer}
	c.mu.Unlock()

	conn, reused, err := c.pool.Connect(key)

	c.mu.Lock()
	meta := c.pending[key].meta
	delete(c.pending, key)
	c.mu.Unlock()

	if err != nil {
		return nil, err
	}

	shouldClose := !opts.ReuseConnection
	release := func(keepAlive bool) {
		conn.KeepAlive = keepAlive && !shouldClose
		c.pool.Release(conn)
	}

	msg := message.New(conn.Transport)
	if opts.MaxHeaderBytes > 0 {
		msg.SetMaxHeaderBytes(opts.MaxHeaderBytes)
	}

	framing := protocol.None()
	switch {
	case opts.RequestBody == nil:
	case opts.RequestBodyLength >= 0:
		framing = protocol.Fixed(opts.RequestBodyLength)
	default:
		framing = protocol.Chunked()
	}

	if err := msg.Send(message.RequestOptions{
		Method:  opts.Method,
		Target:  opts.Target,
		Host:    opts.Host,
		Headers: opts.Headers,
		Framing: framing,
		Coding:  opts.RequestCoding,
	}); err != nil {
		release(false)
		return nil, err
	}

	if opts.RequestBody != nil {
		if _, err := io.Copy(msg, opts.RequestBody); err != nil {
			release(false)
			return nil, rhttperr.NewIOError("write_request_body", err)
		}
	}
	if err := msg.Finish(); err != nil {
		release(false)
		return nil, err
	}

	timer.StartTTFB()
	waitErr := msg.Wait()
	timer.EndTTFB()
	if waitErr != nil {
		release(false)
		return nil, waitErr
	}

	body := bodystore.New(opts.BodyMemLimit)
	_, copyErr := io.Copy(body, readerFunc(msg.Read))
	msg.Close()

	resp := &Response{
		StatusCode:       msg.StatusCode(),
		Headers:          msg.ResponseHeaders(),
		Body:             body,
		Trailer:          msg.Trailer(),
		ConnectionReused: reused,
		ResolvedIP:       meta.ResolvedIP,
		TLSVersion:       meta.TLSVersion,
		TLSCipherSuite:   meta.TLSCipherSuite,
		ProxyUsed:        meta.ProxyUsed,
		ProxyType:        meta.ProxyType,
		ProxyAddr:        meta.ProxyAddr,
		Timings:          timer.Metrics(),
	}

	release(msg.KeepAlive() && copyErr == nil)

	if copyErr != nil {
		if rerr, ok := copyErr.(*rhttperr.Error); ok {
			return resp, rerr
		}
		return resp, rhttperr.NewIOError("read_response_body", copyErr)
	}
	return resp, nil
}

type readerFunc func([]byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }
