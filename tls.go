package main

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"fmt"
	"math/big"
	"net"
	"time"
)

// defaultCommonName is the Subject/DNS fallback used when the operator
// doesn't supply a hostname (spec.md §6: TLS is optional and self-signed by
// default, and should still identify itself as this broker rather than
// "localhost" alone).
const defaultCommonName = "hubbroker"

// certSubjectAltNames builds the DNS and IP SANs for a self-signed cert:
// always cover loopback access, plus hostname if the operator named one.
func certSubjectAltNames(hostname string) (dnsNames []string, ips []net.IP) {
	dnsNames = []string{"localhost"}
	ips = []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback}
	if hostname != "" && hostname != "localhost" {
		dnsNames = append(dnsNames, hostname)
	}
	return dnsNames, ips
}

// generateTLSConfig creates a self-signed ECDSA certificate for the broker's
// listener. Returns the resulting tls.Config, the certificate's SHA-256
// fingerprint (for operators to pin or display), and any error. validity
// controls how long the certificate remains valid; hostname, if set, becomes
// the Subject Common Name and an additional DNS SAN.
func generateTLSConfig(validity time.Duration, hostname string) (*tls.Config, string, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, "", fmt.Errorf("[tls] generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, "", fmt.Errorf("[tls] generate serial: %w", err)
	}

	commonName := defaultCommonName
	if hostname != "" {
		commonName = hostname
	}
	dnsNames, ips := certSubjectAltNames(hostname)

	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   commonName,
			Organization: []string{"hubbroker"},
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(validity),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              dnsNames,
		IPAddresses:           ips,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return nil, "", fmt.Errorf("[tls] create certificate: %w", err)
	}

	leaf, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, "", fmt.Errorf("[tls] parse certificate: %w", err)
	}

	fingerprint := fingerprintOf(certDER)

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{certDER},
			PrivateKey:  priv,
			Leaf:        leaf,
		}},
	}

	return tlsConfig, fingerprint, nil
}

// fingerprintOf returns the hex-encoded SHA-256 digest of a DER certificate.
func fingerprintOf(certDER []byte) string {
	sum := sha256.Sum256(certDER)
	return hex.EncodeToString(sum[:])
}

// loadOrGenerateTLS loads a certificate/key pair from flags.CertFile/KeyFile
// when both are set, otherwise falls back to a freshly generated self-signed
// certificate (spec.md §6: TLS is optional and self-signed by default).
func loadOrGenerateTLS(flags Flags, hostname string) (*tls.Config, string, error) {
	if flags.CertFile != "" && flags.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(flags.CertFile, flags.KeyFile)
		if err != nil {
			return nil, "", fmt.Errorf("[tls] load cert/key: %w", err)
		}
		fingerprint := ""
		if len(cert.Certificate) > 0 {
			fingerprint = fingerprintOf(cert.Certificate[0])
		}
		return &tls.Config{Certificates: []tls.Certificate{cert}}, fingerprint, nil
	}
	return generateTLSConfig(flags.CertValidity, hostname)
}
