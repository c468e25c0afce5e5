// Package dial establishes the network connection underlying one
// protocol.Transport: DNS resolution, TCP connect, optional TLS upgrade
// (SNI, mTLS, custom CA, version/cipher control), and optional tunneling
// through an upstream HTTP CONNECT, SOCKS4, or SOCKS5 proxy.
package dial

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/corehttp/rawcore/rhttperr"
	"github.com/corehttp/rawcore/timing"
	"github.com/corehttp/rawcore/transportconn"
)

// Config describes the connection a single Dial call should establish.
type Config struct {
	Host string
	Port int
	TLS  bool

	ConnectIP   string // bypasses DNS when set
	ConnTimeout time.Duration
	DNSTimeout  time.Duration

	// TLS options, consulted only when TLS is true.
	SNI           string
	DisableSNI    bool
	InsecureTLS   bool
	CustomCACerts [][]byte

	ClientCertPEM, ClientKeyPEM    []byte
	ClientCertFile, ClientKeyFile  string

	MinTLSVersion, MaxTLSVersion uint16
	CipherSuites                 []uint16
	TLSConfig                    *tls.Config // full passthrough; InsecureTLS still overrides InsecureSkipVerify

	Proxy *ProxyConfig
}

// Metadata records what Dial actually did, for the caller to attach to a
// response or log.
type Metadata struct {
	ResolvedIP         string
	ProxyUsed          bool
	ProxyType          string
	ProxyAddr          string
	TLSVersion         string
	TLSCipherSuite     string
	NegotiatedProtocol string
}

func (c Config) validate() error {
	if c.Host == "" {
		return rhttperr.NewValidationError("host cannot be empty")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return rhttperr.NewValidationError("port must be between 1 and 65535")
	}
	if c.DisableSNI && c.SNI != "" {
		return rhttperr.NewValidationError("cannot set both DisableSNI and SNI")
	}
	return nil
}

// Dial establishes a connection per cfg and returns it wrapped as a
// protocol.Transport (via transportconn.Conn). timer may be nil.
func Dial(ctx context.Context, cfg Config, timer *timing.Timer) (*transportconn.Conn, Metadata, error) {
	var meta Metadata
	if err := cfg.validate(); err != nil {
		return nil, meta, err
	}

	connTimeout := cfg.ConnTimeout
	if connTimeout <= 0 {
		connTimeout = 30 * time.Second
	}

	var (
		conn net.Conn
		err  error
	)
	if cfg.Proxy != nil {
		targetAddr := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
		meta.ProxyUsed = true
		meta.ProxyType = cfg.Proxy.Type
		meta.ProxyAddr = cfg.Proxy.addr()
		timer.StartTCP()
		conn, err = connectViaProxy(cfg, targetAddr, connTimeout)
		timer.EndTCP()
		if err != nil {
			return nil, meta, err
		}
	} else {
		dialAddr, resolvedIP, err2 := resolveAddress(ctx, cfg, timer)
		if err2 != nil {
			return nil, meta, err2
		}
		meta.ResolvedIP = resolvedIP

		timer.StartTCP()
		conn, err = connectTCP(ctx, dialAddr, connTimeout)
		timer.EndTCP()
		if err != nil {
			return nil, meta, rhttperr.NewConnectionError(cfg.Host, cfg.Port, err)
		}
	}

	if cfg.TLS {
		conn, err = upgradeTLS(ctx, conn, cfg, connTimeout, timer, &meta)
		if err != nil {
			return nil, meta, rhttperr.NewTLSError(cfg.Host, cfg.Port, err)
		}
	}

	return transportconn.New(conn), meta, nil
}

func resolveAddress(ctx context.Context, cfg Config, timer *timing.Timer) (dialAddr, resolvedIP string, err error) {
	if cfg.ConnectIP != "" {
		return net.JoinHostPort(cfg.ConnectIP, strconv.Itoa(cfg.Port)), cfg.ConnectIP, nil
	}

	timer.StartDNS()
	defer timer.EndDNS()

	dnsTimeout := cfg.DNSTimeout
	if dnsTimeout <= 0 {
		dnsTimeout = 5 * time.Second
	}
	lookupCtx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	addrs, err := net.DefaultResolver.LookupIPAddr(lookupCtx, cfg.Host)
	if err != nil {
		return "", "", rhttperr.NewDNSError(cfg.Host, err)
	}
	if len(addrs) == 0 {
		return "", "", rhttperr.NewDNSError(cfg.Host, rhttperr.NewValidationError("no IP addresses found"))
	}
	ip := addrs[0].IP.String()
	return net.JoinHostPort(ip, strconv.Itoa(cfg.Port)), ip, nil
}

func connectTCP(ctx context.Context, dialAddr string, timeout time.Duration) (net.Conn, error) {
	d := &net.Dialer{Timeout: timeout}
	return d.DialContext(ctx, "tcp", dialAddr)
}

func upgradeTLS(ctx context.Context, conn net.Conn, cfg Config, timeout time.Duration, timer *timing.Timer, meta *Metadata) (net.Conn, error) {
	timer.StartTLS()
	defer timer.EndTLS()

	handshakeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var tlsConfig *tls.Config
	if cfg.TLSConfig != nil {
		tlsConfig = cfg.TLSConfig.Clone()
		if cfg.InsecureTLS {
			tlsConfig.InsecureSkipVerify = true
		}
		tlsConfig.NextProtos = []string{"http/1.1"}
	} else {
		tlsConfig = &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.InsecureTLS,
			NextProtos:         []string{"http/1.1"},
		}
		if cfg.MinTLSVersion > 0 {
			tlsConfig.MinVersion = cfg.MinTLSVersion
		}
		if len(cfg.CustomCACerts) > 0 {
			pool := x509.NewCertPool()
			for _, ca := range cfg.CustomCACerts {
				if !pool.AppendCertsFromPEM(ca) {
					return nil, rhttperr.NewValidationError("failed to parse custom CA certificate")
				}
			}
			tlsConfig.RootCAs = pool
		}
		ConfigureSNI(tlsConfig, cfg.SNI, cfg.DisableSNI, cfg.Host)
	}

	if cfg.MinTLSVersion > 0 && tlsConfig.MinVersion == 0 {
		tlsConfig.MinVersion = cfg.MinTLSVersion
	}
	if cfg.MaxTLSVersion > 0 && tlsConfig.MaxVersion == 0 {
		tlsConfig.MaxVersion = cfg.MaxTLSVersion
	}
	if len(cfg.CipherSuites) > 0 && len(tlsConfig.CipherSuites) == 0 {
		tlsConfig.CipherSuites = cfg.CipherSuites
	}

	clientCert, err := loadClientCertificate(cfg)
	if err != nil {
		return nil, err
	}
	if clientCert != nil {
		tlsConfig.Certificates = append(tlsConfig.Certificates, *clientCert)
	}

	if tlsConfig.ServerName != "" {
		meta.NegotiatedProtocol = "" // filled in below after handshake
	}

	tlsConn := tls.Client(conn, tlsConfig)
	if err := tlsConn.HandshakeContext(handshakeCtx); err != nil {
		conn.Close()
		return nil, err
	}

	state := tlsConn.ConnectionState()
	meta.TLSVersion = versionString(state.Version)
	meta.TLSCipherSuite = tls.CipherSuiteName(state.CipherSuite)
	meta.NegotiatedProtocol = state.NegotiatedProtocol
	if meta.NegotiatedProtocol == "" {
		meta.NegotiatedProtocol = "HTTP/1.1"
	}
	return tlsConn, nil
}

func loadClientCertificate(cfg Config) (*tls.Certificate, error) {
	hasPEM := len(cfg.ClientCertPEM) > 0 && len(cfg.ClientKeyPEM) > 0
	hasFile := cfg.ClientCertFile != "" && cfg.ClientKeyFile != ""
	if !hasPEM && !hasFile {
		return nil, nil
	}

	certPEM, keyPEM := cfg.ClientCertPEM, cfg.ClientKeyPEM
	if !hasPEM {
		var err error
		certPEM, err = os.ReadFile(cfg.ClientCertFile)
		if err != nil {
			return nil, rhttperr.NewIOError("load_client_cert", err)
		}
		keyPEM, err = os.ReadFile(cfg.ClientKeyFile)
		if err != nil {
			return nil, rhttperr.NewIOError("load_client_key", err)
		}
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, rhttperr.NewValidationError("failed to parse client certificate/key: " + err.Error())
	}
	return &cert, nil
}
