// Package tlsconf builds *tls.Config values for TLS-wrapped transports and
// generates the self-signed certificates used when no certificate is
// configured.
package tlsconf

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"
)

// ServerOption configures a server-side tls.Config.
type ServerOption struct {
	CertPEM []byte
	KeyPEM  []byte
}

// ServerConfig builds a tls.Config suitable for tls.NewListener from a
// PEM-encoded certificate and key.
func ServerConfig(opt ServerOption) (*tls.Config, error) {
	cert, err := tls.X509KeyPair(opt.CertPEM, opt.KeyPEM)
	if err != nil {
		return nil, fmt.Errorf("tlsconf: load certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// ClientOption configures a client-side tls.Config.
type ClientOption struct {
	ServerName         string
	InsecureSkipVerify bool
}

// ClientConfig builds a tls.Config suitable for a dialer.
func ClientConfig(opt ClientOption) *tls.Config {
	return &tls.Config{
		ServerName:         opt.ServerName,
		InsecureSkipVerify: opt.InsecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}
}

// GenerateSelfSigned generates a self-signed ECDSA (P-256) certificate
// valid for the given domains (as DNS SANs), returning PEM-encoded
// certificate and key. validFor defaults to one year.
func GenerateSelfSigned(domains []string, validFor time.Duration) (certPEM, keyPEM []byte, err error) {
	if len(domains) == 0 {
		return nil, nil, fmt.Errorf("tlsconf: at least one domain is required")
	}
	if validFor <= 0 {
		validFor = 365 * 24 * time.Hour
	}

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("tlsconf: generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("tlsconf: generate serial: %w", err)
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: domains[0]},
		DNSNames:              domains,
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(validFor),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return nil, nil, fmt.Errorf("tlsconf: create certificate: %w", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return nil, nil, fmt.Errorf("tlsconf: marshal key: %w", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM, nil
}
