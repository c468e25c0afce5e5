package dial

import "crypto/tls"

// ConfigureSNI applies Server Name Indication policy to tlsConfig following
// this priority order:
//  1. tlsConfig.ServerName already set: left untouched.
//  2. disableSNI: ServerName left empty.
//  3. customSNI set: used.
//  4. otherwise: fallbackHost is used as ServerName.
func ConfigureSNI(tlsConfig *tls.Config, customSNI string, disableSNI bool, fallbackHost string) {
	if tlsConfig == nil {
		return
	}
	if tlsConfig.ServerName != "" {
		return
	}
	if disableSNI {
		return
	}
	if customSNI != "" {
		tlsConfig.ServerName = customSNI
		return
	}
	tlsConfig.ServerName = fallbackHost
}

// versionString renders a tls.VersionTLS* constant for connection metadata.
func versionString(v uint16) string {
	switch v {
	case tls.VersionTLS10:
		return "TLS1.0"
	case tls.VersionTLS11:
		return "TLS1.1"
	case tls.VersionTLS12:
		return "TLS1.2"
	case tls.VersionTLS13:
		return "TLS1.3"
	default:
		return "unknown"
	}
}
