// Package certtest issues throwaway certificates and keys for tests.
package certtest

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// KeyFormat selects the PEM encoding used for issued private keys.
type KeyFormat int

const (
	// PKCS8 writes an ECDSA key as "PRIVATE KEY".
	PKCS8 KeyFormat = iota
	// PKCS1 writes an RSA key as "RSA PRIVATE KEY".
	PKCS1
	// SEC1 writes an ECDSA key as "EC PRIVATE KEY".
	SEC1
)

// Authority is a self-signed CA that issues leaf certificates.
type Authority struct {
	cert   *x509.Certificate
	key    *ecdsa.PrivateKey
	caPath string
}

// NewAuthority creates a CA and writes its certificate to dir/<cn>.crt.
func NewAuthority(t testing.TB, dir string, commonName string) *Authority {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate ca key: %v", err)
	}
	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          big.NewInt(now.UnixNano()),
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            1,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create ca cert: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse ca cert: %v", err)
	}

	caPath := filepath.Join(dir, sanitize(commonName)+".crt")
	if err := writePEM(caPath, "CERTIFICATE", der, 0o644); err != nil {
		t.Fatalf("write ca cert: %v", err)
	}

	return &Authority{cert: cert, key: key, caPath: caPath}
}

// Cert returns the CA certificate.
func (a *Authority) Cert() *x509.Certificate {
	return a.cert
}

// CAFile returns the path of the PEM encoded CA certificate.
func (a *Authority) CAFile() string {
	return a.caPath
}

// Issued is a leaf certificate with its key, both in memory and on disk.
type Issued struct {
	Cert     *x509.Certificate
	Key      crypto.Signer
	CertPath string
	KeyPath  string
}

// IssueClientCert signs a client certificate and writes it to dir.
func (a *Authority) IssueClientCert(t testing.TB, dir string, commonName string, format KeyFormat) Issued {
	t.Helper()

	key := generateKey(t, format)
	now := time.Now()
	template := &x509.Certificate{
		SerialNumber: big.NewInt(now.UnixNano()),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, template, a.cert, key.Public(), a.key)
	if err != nil {
		t.Fatalf("create signed cert: %v", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse signed cert: %v", err)
	}

	base := sanitize(commonName)
	certPath := filepath.Join(dir, base+".crt")
	keyPath := filepath.Join(dir, base+".key")

	if err := writePEM(certPath, "CERTIFICATE", der, 0o644); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	WriteKey(t, keyPath, key, format)

	return Issued{Cert: cert, Key: key, CertPath: certPath, KeyPath: keyPath}
}

// WriteKey writes key to path in the given format.
func WriteKey(t testing.TB, path string, key crypto.Signer, format KeyFormat) {
	t.Helper()

	var (
		blockType string
		der       []byte
		err       error
	)
	switch format {
	case PKCS1:
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			t.Fatalf("PKCS1 needs an RSA key, got %T", key)
		}
		blockType, der = "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(rsaKey)
	case SEC1:
		ecKey, ok := key.(*ecdsa.PrivateKey)
		if !ok {
			t.Fatalf("SEC1 needs an ECDSA key, got %T", key)
		}
		blockType = "EC PRIVATE KEY"
		der, err = x509.MarshalECPrivateKey(ecKey)
	default:
		blockType = "PRIVATE KEY"
		der, err = x509.MarshalPKCS8PrivateKey(key)
	}
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}
	if err := writePEM(path, blockType, der, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
}

// NewKey returns a fresh ECDSA P-256 key.
func NewKey(t testing.TB) crypto.Signer {
	t.Helper()
	return generateKey(t, PKCS8)
}

func generateKey(t testing.TB, format KeyFormat) crypto.Signer {
	t.Helper()

	if format == PKCS1 {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			t.Fatalf("generate rsa key: %v", err)
		}
		return key
	}
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate ecdsa key: %v", err)
	}
	return key
}

func writePEM(path string, blockType string, der []byte, perm os.FileMode) error {
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	return os.WriteFile(path, data, perm)
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "cert"
	}
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, ":", "_")
	return s
}
