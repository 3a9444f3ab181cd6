package cert

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// File names used by LoadOrCreate.
const (
	CertFile = "bridge.crt"
	KeyFile  = "bridge.key"
)

// EncodeCertPEM encodes an X.509 certificate to PEM format.
func EncodeCertPEM(cert *x509.Certificate) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

// DecodeCertPEM decodes a PEM-encoded X.509 certificate.
func DecodeCertPEM(data []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, ErrInvalidPEM
	}
	return x509.ParseCertificate(block.Bytes)
}

// EncodeKeyPEM encodes an ECDSA private key to PEM format.
func EncodeKeyPEM(key *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
}

// DecodeKeyPEM decodes a PEM-encoded ECDSA private key.
func DecodeKeyPEM(data []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "EC PRIVATE KEY" {
		return nil, ErrInvalidPEM
	}
	return x509.ParseECPrivateKey(block.Bytes)
}

// Load reads an identity from a certificate and key file.
func Load(certPath, keyPath string) (*Identity, error) {
	certData, err := os.ReadFile(certPath)
	if err != nil {
		return nil, err
	}
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}

	c, err := DecodeCertPEM(certData)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", certPath, err)
	}
	key, err := DecodeKeyPEM(keyData)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", keyPath, err)
	}
	pub, ok := c.PublicKey.(*ecdsa.PublicKey)
	if !ok || !pub.Equal(&key.PublicKey) {
		return nil, ErrKeyMismatch
	}
	return &Identity{Certificate: c, PrivateKey: key}, nil
}

// Save writes the identity into dir. The key file is only readable by the
// owner.
func (id *Identity) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	keyData, err := EncodeKeyPEM(id.PrivateKey)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, CertFile), EncodeCertPEM(id.Certificate), 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, KeyFile), keyData, 0o600)
}

// LoadOrCreate loads the identity stored in dir. A missing or expiring
// identity is replaced by a new one for hosts. created reports whether a
// new identity was written.
func LoadOrCreate(dir string, hosts []string) (id *Identity, created bool, err error) {
	id, err = Load(filepath.Join(dir, CertFile), filepath.Join(dir, KeyFile))
	switch {
	case err == nil && !id.NeedsRenewal(time.Now()):
		return id, false, nil
	case err != nil && !errors.Is(err, os.ErrNotExist):
		return nil, false, err
	}

	id, err = Generate(hosts, DefaultValidity)
	if err != nil {
		return nil, false, err
	}
	if err := id.Save(dir); err != nil {
		return nil, false, err
	}
	return id, true, nil
}
