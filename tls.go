package quicx

import (
	"crypto/tls"

	utls "github.com/refraction-networking/utls"
)

// Fingerprint selects a uTLS ClientHello fingerprint to shape the
// *tls.Config handed to the QUIC dialer, mirroring teacher's root
// client.go SetTLSFingerprint/createTlsVersion helpers: those build a
// full uTLS ClientHelloID and extension set for an HTTP/1.1 TCP+TLS
// dial; this core dials QUIC, whose handshake is driven by
// quic-go/crypto/tls rather than a raw uTLS connection, so only the
// version/cipher-suite preferences a fingerprint implies are carried
// over — not a full ClientHello byte-for-byte replay.
type Fingerprint int

const (
	// FingerprintNone leaves tls.Config at Go's default preferences.
	FingerprintNone Fingerprint = iota
	// FingerprintChrome mirrors Chrome's TLS 1.3 cipher-suite order,
	// per utls.HelloChrome_Auto.
	FingerprintChrome
	// FingerprintFirefox mirrors Firefox's preferences, per utls.HelloFirefox_Auto.
	FingerprintFirefox
)

// chromeCipherOrder is Chrome's TLS 1.3+1.2 cipher-suite preference
// order, as utls.HelloChrome_Auto specifies it.
var chromeCipherOrder = []uint16{
	utls.TLS_AES_128_GCM_SHA256,
	utls.TLS_AES_256_GCM_SHA384,
	utls.TLS_CHACHA20_POLY1305_SHA256,
	utls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	utls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
}

var firefoxCipherOrder = []uint16{
	utls.TLS_AES_128_GCM_SHA256,
	utls.TLS_CHACHA20_POLY1305_SHA256,
	utls.TLS_AES_256_GCM_SHA384,
	utls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	utls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
}

// NewTLSConfig builds the *tls.Config the client dialer uses, applying
// fp's cipher-suite order on top of serverName/insecureSkipVerify.
// NextProtos is left for transport.NewDialer to fill with "h3".
func NewTLSConfig(serverName string, insecureSkipVerify bool, fp Fingerprint) *tls.Config {
	cfg := &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: insecureSkipVerify,
		MinVersion:         tls.VersionTLS13,
	}
	switch fp {
	case FingerprintChrome:
		cfg.CipherSuites = chromeCipherOrder
	case FingerprintFirefox:
		cfg.CipherSuites = firefoxCipherOrder
	}
	return cfg
}
