package cert

import (
	"crypto/ecdsa"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"strings"
	"time"
)

// DefaultValidity is the lifetime of a generated bridge certificate.
const DefaultValidity = 2 * 365 * 24 * time.Hour

// RenewalWindow is how long before expiry LoadOrCreate replaces a
// certificate.
const RenewalWindow = 30 * 24 * time.Hour

// Certificate errors.
var (
	ErrInvalidPEM          = errors.New("invalid PEM data")
	ErrKeyMismatch         = errors.New("private key does not match certificate")
	ErrNoHosts             = errors.New("at least one host name or address is required")
	ErrFingerprintMismatch = errors.New("certificate fingerprint mismatch")
)

// Identity is the TLS identity of a bridge: a self-signed certificate and
// its P-256 key.
type Identity struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// TLSCertificate returns the identity as a tls.Certificate.
func (id *Identity) TLSCertificate() tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{id.Certificate.Raw},
		PrivateKey:  id.PrivateKey,
		Leaf:        id.Certificate,
	}
}

// ServerConfig returns a TLS 1.3 server configuration for the identity.
func (id *Identity) ServerConfig() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{id.TLSCertificate()},
		MinVersion:   tls.VersionTLS13,
	}
}

// NeedsRenewal reports whether the certificate expires within
// RenewalWindow of now.
func (id *Identity) NeedsRenewal(now time.Time) bool {
	return now.Add(RenewalWindow).After(id.Certificate.NotAfter)
}

// Fingerprint returns the SHA-256 fingerprint of the certificate as
// colon-separated hex.
func (id *Identity) Fingerprint() string {
	return fingerprint(id.Certificate.Raw)
}

// PinnedClientConfig returns a TLS 1.3 client configuration that accepts
// exactly the bridge certificate with the given fingerprint. An empty
// fingerprint accepts any certificate.
func PinnedClientConfig(fp string) *tls.Config {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: true,
	}
	if fp == "" {
		return cfg
	}
	want := strings.ToUpper(strings.ReplaceAll(fp, ":", ""))
	cfg.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return ErrFingerprintMismatch
		}
		if strings.ReplaceAll(fingerprint(rawCerts[0]), ":", "") != want {
			return ErrFingerprintMismatch
		}
		return nil
	}
	return cfg
}
