// Package message implements MessageLifecycle: the duplex state machine
// that drives one request/response transaction over a Transport, deciding
// framing and content coding and handing body bytes to BodyCodec.
package message

import (
	"strconv"
	"strings"

	"github.com/corehttp/rawcore/protocol"
	"github.com/corehttp/rawcore/protocol/body"
	"github.com/corehttp/rawcore/protocol/compress"
	"github.com/corehttp/rawcore/protocol/headers"
	"github.com/corehttp/rawcore/protocol/scan"
	"github.com/corehttp/rawcore/rhttperr"
)

const identImpl = "rawcore/1.0"

// State is the lifecycle's current position.
type State int

const (
	StateIdle State = iota
	StateRequestHead
	StateRequestBody
	StateRequestDone
	StateResponseHead
	StateResponseBody
	StateClosed
)

// defaultMaxHeaderBytes bounds the response header block; exceeding it
// without finding the terminator yields HeadersExceededLimit.
const defaultMaxHeaderBytes = 8 * 1024

// RequestOptions describes one outgoing request. A Host, User-Agent,
// Connection, Accept, Accept-Encoding, or TE entry in Headers replaces the
// core's default for that field. Transfer-Encoding and Content-Length are
// the core's to decide and are rejected outright if present. Coding applies
// only to Chunked framing; with Fixed framing the body is sent as written.
type RequestOptions struct {
	Method  string
	Target  string
	Host    string
	Headers *headers.Table
	Framing protocol.Framing
	Coding  protocol.ContentCoding
}

var noBodyMethods = map[string]bool{
	"GET":   true,
	"HEAD":  true,
	"TRACE": true,
}

// Message is one transaction's MessageLifecycle, bound to a borrowed
// Transport for its duration.
type Message struct {
	state State
	t     protocol.Transport

	method    string
	tunnel    bool
	keepAlive bool

	bodyWriter *body.Writer
	encoder    compress.Encoder

	statusCode  int
	httpVersion string
	respHeaders *headers.Table
	bodyReader  *body.Reader
	decoder     compress.Decoder

	maxHeaderBytes int
}

// New binds a fresh MessageLifecycle to t, which must already be
// connected. The caller owns t's disposition after Close.
func New(t protocol.Transport) *Message {
	return &Message{t: t, state: StateIdle, keepAlive: true, maxHeaderBytes: defaultMaxHeaderBytes}
}

// SetMaxHeaderBytes overrides the default 8 KiB response header cap.
func (m *Message) SetMaxHeaderBytes(n int) { m.maxHeaderBytes = n }

// State reports the current lifecycle state.
func (m *Message) State() State { return m.state }

// KeepAlive reports whether the connection should be returned to the pool
// after Close rather than discarded. Valid only once RESPONSE_HEAD has
// been reached.
func (m *Message) KeepAlive() bool { return m.keepAlive }

// StatusCode returns the parsed response status code. Valid only once
// RESPONSE_HEAD has been reached.
func (m *Message) StatusCode() int { return m.statusCode }

// ResponseHeaders returns the parsed response headers. Valid only once
// RESPONSE_HEAD has been reached.
func (m *Message) ResponseHeaders() *headers.Table { return m.respHeaders }

// Tunnel reports whether the response placed the connection in CONNECT
// tunnel mode, past which the core's framing involvement ends.
func (m *Message) Tunnel() bool { return m.tunnel }

// Send validates options, emits the request line and headers, and
// transitions to REQUEST_BODY.
func (m *Message) Send(opts RequestOptions) error {
	if m.state != StateIdle {
		return rhttperr.NewValidationError("send called outside IDLE state")
	}

	m.method = strings.ToUpper(opts.Method)

	if opts.Headers != nil {
		if opts.Headers.Contains("Transfer-Encoding") || opts.Headers.Contains("Content-Length") {
			return rhttperr.NewUnsupportedTransferEncoding("caller may not set Transfer-Encoding or Content-Length directly")
		}
	}
	if opts.Framing.Kind != protocol.FramingNone && noBodyMethods[m.method] {
		return rhttperr.NewUnsupportedTransferEncoding(m.method + " does not permit a request body")
	}

	if _, err := m.t.Write([]byte(opts.Method + " " + opts.Target + " HTTP/1.1\r\n")); err != nil {
		return rhttperr.NewIOError("write", err)
	}

	hasHeader := func(name string) bool {
		return opts.Headers != nil && opts.Headers.Contains(name)
	}
	if !hasHeader("Host") {
		if err := m.writeLine("Host: " + opts.Host); err != nil {
			return err
		}
	}
	if !hasHeader("User-Agent") {
		if err := m.writeLine("User-Agent: " + identImpl); err != nil {
			return err
		}
	}
	if !hasHeader("Connection") {
		if err := m.writeLine("Connection: keep-alive"); err != nil {
			return err
		}
	}
	if !hasHeader("Accept") {
		if err := m.writeLine("Accept: */*"); err != nil {
			return err
		}
	}
	if !hasHeader("Accept-Encoding") {
		if err := m.writeLine("Accept-Encoding: gzip, deflate, zstd"); err != nil {
			return err
		}
	}
	if !hasHeader("TE") {
		if err := m.writeLine("TE: gzip, deflate"); err != nil {
			return err
		}
	}

	switch opts.Framing.Kind {
	case protocol.FramingChunked:
		if opts.Coding != protocol.CodingIdentity {
			if err := m.writeLine("Transfer-Encoding: " + opts.Coding.String() + ", chunked"); err != nil {
				return err
			}
		} else if err := m.writeLine("Transfer-Encoding: chunked"); err != nil {
			return err
		}
	case protocol.FramingFixed:
		if err := m.writeLine("Content-Length: " + strconv.FormatInt(opts.Framing.N, 10)); err != nil {
			return err
		}
	}

	if opts.Headers != nil {
		for _, e := range opts.Headers.Entries() {
			if e.Value == "" {
				continue
			}
			if err := m.writeLine(e.Name + ": " + e.Value); err != nil {
				return err
			}
		}
	}

	if _, err := m.t.Write([]byte("\r\n")); err != nil {
		return rhttperr.NewIOError("write", err)
	}
	if err := m.t.Flush(); err != nil {
		return rhttperr.NewIOError("flush", err)
	}

	m.bodyWriter = body.NewWriter(m.t, opts.Framing)
	if opts.Framing.Kind == protocol.FramingChunked && opts.Coding != protocol.CodingIdentity {
		enc, err := compress.NewEncoder(opts.Coding, m.bodyWriter)
		if err != nil {
			return err
		}
		m.encoder = enc
	}

	m.state = StateRequestBody
	return nil
}

func (m *Message) writeLine(s string) error {
	if _, err := m.t.Write([]byte(s + "\r\n")); err != nil {
		return rhttperr.NewIOError("write", err)
	}
	return nil
}

// Write accepts request body bytes, routing through the installed
// compressor first if any.
func (m *Message) Write(p []byte) (int, error) {
	if m.state != StateRequestBody {
		return 0, rhttperr.NewValidationError("write called outside REQUEST_BODY state")
	}
	if m.encoder != nil {
		return m.encoder.Write(p)
	}
	return m.bodyWriter.Write(p)
}

// Finish flushes any compressor, terminates body framing, flushes the
// transport, and transitions to REQUEST_DONE.
func (m *Message) Finish() error {
	if m.state != StateRequestBody {
		return rhttperr.NewValidationError("finish called outside REQUEST_BODY state")
	}
	if m.encoder != nil {
		if err := m.encoder.Flush(); err != nil {
			return err
		}
		if err := m.encoder.Close(); err != nil {
			return err
		}
	}
	if err := m.bodyWriter.Finish(); err != nil {
		return err
	}
	if err := m.t.Flush(); err != nil {
		return rhttperr.NewIOError("flush", err)
	}
	m.state = StateRequestDone
	return nil
}

// Wait reads and parses the response status line and headers, decides
// response framing and content coding, applies the HEAD/1xx/204/304
// empty-body rule, and transitions to RESPONSE_BODY.
func (m *Message) Wait() error {
	if m.state != StateRequestDone {
		return rhttperr.NewValidationError("wait called outside REQUEST_DONE state")
	}

	block, err := m.scanHeaderBlock()
	if err != nil {
		return err
	}

	lines := splitLines(block)
	if len(lines) == 0 {
		return rhttperr.NewHeadersInvalid("empty response", nil)
	}

	version, code, err := parseStatusLine(lines[0])
	if err != nil {
		return err
	}
	m.httpVersion = version
	m.statusCode = code

	table := headers.New()
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			return rhttperr.NewHeadersInvalid("obsolete header-line folding is not supported", nil)
		}
		name, value, ok := splitHeaderLine(line)
		if !ok {
			return rhttperr.NewHeadersInvalid("malformed header field: "+line, nil)
		}
		table.Append(name, value)
	}
	m.respHeaders = table

	if m.method == "CONNECT" && code/100 == 2 {
		m.tunnel = true
		m.state = StateResponseBody
		m.bodyReader = body.NewReader(m.t, protocol.None())
		return nil
	}

	framing, coding, err := decideResponseFraming(table)
	if err != nil {
		return err
	}

	forcedEmpty := m.method == "HEAD" || code < 200 || code == 204 || code == 304
	if forcedEmpty {
		framing = protocol.None()
		coding = protocol.CodingIdentity
	}

	if connVal, ok := table.First("Connection"); ok && strings.EqualFold(strings.TrimSpace(connVal), "close") {
		m.keepAlive = false
	}
	if framing.Kind == protocol.FramingNone && !forcedEmpty {
		m.keepAlive = false
	}

	m.bodyReader = body.NewReader(m.t, framing)
	if coding != protocol.CodingIdentity {
		dec, err := compress.NewDecoder(coding, m.bodyReader)
		if err != nil {
			return err
		}
		m.decoder = dec
	}

	m.state = StateResponseBody
	return nil
}

// decideResponseFraming applies spec.md's framing-priority rule
// (Transfer-Encoding wins over Content-Length) and resolves the active
// content coding from Transfer-Encoding/Content-Encoding.
func decideResponseFraming(table *headers.Table) (protocol.Framing, protocol.ContentCoding, error) {
	coding := protocol.CodingIdentity

	if te, ok := table.First("Transfer-Encoding"); ok {
		parts := strings.Split(te, ",")
		last := strings.ToLower(strings.TrimSpace(parts[len(parts)-1]))
		if last != "chunked" {
			return protocol.Framing{}, coding, rhttperr.NewUnsupportedTransferEncoding("Transfer-Encoding must end in chunked")
		}
		for _, p := range parts[:len(parts)-1] {
			c, ok := protocol.ParseContentCoding(p)
			if !ok {
				return protocol.Framing{}, coding, rhttperr.NewUnsupportedTransferEncoding("unrecognized transfer coding: " + p)
			}
			coding = c
		}
		if ce, ok := table.First("Content-Encoding"); ok && coding != protocol.CodingIdentity {
			_ = ce
			return protocol.Framing{}, coding, rhttperr.NewUnsupportedTransferEncoding("Content-Encoding and a non-chunked Transfer-Encoding coding may not both be active")
		}
		if coding == protocol.CodingIdentity {
			if ce, ok := table.First("Content-Encoding"); ok {
				c, ok2 := protocol.ParseContentCoding(ce)
				if !ok2 {
					return protocol.Framing{}, coding, rhttperr.NewUnsupportedTransferEncoding("unrecognized content coding: " + ce)
				}
				coding = c
			}
		}
		return protocol.Chunked(), coding, nil
	}

	if ce, ok := table.First("Content-Encoding"); ok {
		c, ok2 := protocol.ParseContentCoding(ce)
		if !ok2 {
			return protocol.Framing{}, coding, rhttperr.NewUnsupportedTransferEncoding("unrecognized content coding: " + ce)
		}
		coding = c
	}

	if cl, ok := table.First("Content-Length"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if err != nil || n < 0 {
			return protocol.Framing{}, coding, rhttperr.NewHeadersInvalid("invalid Content-Length", err)
		}
		return protocol.Fixed(n), coding, nil
	}

	return protocol.None(), coding, nil
}

// Read reads response body bytes, routing through the installed
// decompressor first if any.
func (m *Message) Read(dest []byte) (int, error) {
	if m.state != StateResponseBody {
		return 0, rhttperr.NewValidationError("read called outside RESPONSE_BODY state")
	}
	if m.decoder != nil {
		return m.decoder.Read(dest)
	}
	return m.bodyReader.Read(dest)
}

// Trailer returns the raw trailer header block captured after a chunked
// body's zero-length chunk, if any.
func (m *Message) Trailer() []byte {
	if m.bodyReader == nil {
		return nil
	}
	return m.bodyReader.Trailer()
}

// Close transitions to CLOSED and releases the decompressor, if any. It
// does not close the underlying Transport; the connection pool decides
// that based on KeepAlive.
func (m *Message) Close() error {
	if m.decoder != nil {
		_ = m.decoder.Close()
	}
	m.state = StateClosed
	return nil
}

func (m *Message) scanHeaderBlock() ([]byte, error) {
	term := scan.NewTerminator()
	var block []byte
	for !term.Finished() {
		if err := m.t.Fill(); err != nil {
			return nil, rhttperr.NewIOError("read", err)
		}
		window := m.t.Peek()
		if len(window) == 0 {
			return nil, rhttperr.NewUnexpectedEOF("read")
		}
		consumed := term.Feed(window)
		block = append(block, window[:consumed]...)
		m.t.Drop(consumed)
		if len(block) > m.maxHeaderBytes && !term.Finished() {
			return nil, rhttperr.NewHeadersExceededLimit(m.maxHeaderBytes)
		}
	}
	return block, nil
}

func splitLines(block []byte) []string {
	s := strings.ReplaceAll(string(block), "\r\n", "\n")
	s = strings.TrimSuffix(s, "\n\n")
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func parseStatusLine(line string) (version string, code int, err error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 2 {
		return "", 0, rhttperr.NewHeadersInvalid("malformed status line: "+line, nil)
	}
	if parts[0] != "HTTP/1.1" {
		return "", 0, rhttperr.NewHeadersInvalid("unsupported HTTP version: "+parts[0], nil)
	}
	if len(parts[1]) != 3 {
		return "", 0, rhttperr.NewHeadersInvalid("malformed status code: "+parts[1], nil)
	}
	code, convErr := strconv.Atoi(parts[1])
	if convErr != nil {
		return "", 0, rhttperr.NewHeadersInvalid("non-integer status code: "+parts[1], convErr)
	}
	return parts[0], code, nil
}

func splitHeaderLine(line string) (name, value string, ok bool) {
	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return "", "", false
	}
	name = strings.TrimSpace(line[:idx])
	value = strings.Trim(line[idx+1:], " \t")
	if name == "" {
		return "", "", false
	}
	return name, value, true
}
