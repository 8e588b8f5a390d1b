package network

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"time"

	"golang.org/x/crypto/pkcs12"
)

// Protocol names, in ascending order.
const (
	ProtocolTLS10 = "TLSv1"
	ProtocolTLS11 = "TLSv1.1"
	ProtocolTLS12 = "TLSv1.2"
	ProtocolTLS13 = "TLSv1.3"
)

var protocolVersions = map[string]uint16{
	ProtocolTLS10: tls.VersionTLS10,
	ProtocolTLS11: tls.VersionTLS11,
	ProtocolTLS12: tls.VersionTLS12,
	ProtocolTLS13: tls.VersionTLS13,
}

var (
	disabledProtocol = regexp.MustCompile(`^SSLv[23]`)

	// Matches a weak category as a whole "_"-separated token of the suite
	// name. 3DES is not DES.
	disabledCipher = regexp.MustCompile(`(^|_)(NULL|EXPORT\d*|DES\d*|RC4|MD5|PSK|SRP|CAMELLIA)(_|$)`)
)

// ErrNoTrustedCertificates is returned when a trust bundle holds no
// certificates.
var ErrNoTrustedCertificates = errors.New("no trusted certificates found")

// SupportedProtocols returns the protocol versions this runtime can
// negotiate.
func SupportedProtocols() []string {
	return []string{ProtocolTLS10, ProtocolTLS11, ProtocolTLS12, ProtocolTLS13}
}

// SupportedCipherSuites returns the names of every configurable cipher
// suite, secure and insecure. TLS 1.3 suites are not configurable and are
// always enabled.
func SupportedCipherSuites() []string {
	var names []string
	for _, list := range [][]*tls.CipherSuite{tls.CipherSuites(), tls.InsecureCipherSuites()} {
		for _, cs := range list {
			if slices.ContainsFunc(cs.SupportedVersions, func(v uint16) bool { return v <= tls.VersionTLS12 }) {
				names = append(names, cs.Name)
			}
		}
	}
	return names
}

// EnabledProtocols filters out SSLv2 and SSLv3 variants, keeping order.
func EnabledProtocols(supported []string) []string {
	enabled := make([]string, 0, len(supported))
	for _, p := range supported {
		if !disabledProtocol.MatchString(p) {
			enabled = append(enabled, p)
		}
	}
	return enabled
}

// EnabledCipherSuites filters out NULL, EXPORT, DES, RC4, MD5, PSK, SRP and
// CAMELLIA suites, keeping order.
func EnabledCipherSuites(supported []string) []string {
	enabled := make([]string, 0, len(supported))
	for _, cs := range supported {
		if !disabledCipher.MatchString(cs) {
			enabled = append(enabled, cs)
		}
	}
	return enabled
}

// LoadTrustPool reads trust material from path. The file is tried as a
// PKCS#12 keystore first, then as a PEM bundle. An empty path returns a nil
// pool, meaning the system trust store.
func LoadTrustPool(path, password string) (*x509.CertPool, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trust bundle: %w", err)
	}

	if pool, err := keystorePool(data, password); err == nil {
		return pool, nil
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(data) {
		return nil, fmt.Errorf("%s: %w", path, ErrNoTrustedCertificates)
	}
	return pool, nil
}

func keystorePool(data []byte, password string) (*x509.CertPool, error) {
	blocks, err := pkcs12.ToPEM(data, password)
	if err != nil {
		return nil, err
	}

	pool := x509.NewCertPool()
	found := false
	for _, b := range blocks {
		if b.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(b.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse keystore certificate: %w", err)
		}
		pool.AddCert(cert)
		found = true
	}
	if !found {
		return nil, ErrNoTrustedCertificates
	}
	return pool, nil
}

// PEMCertificates encodes certificates as a PEM bundle.
func PEMCertificates(certs ...*x509.Certificate) []byte {
	var out []byte
	for _, c := range certs {
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.Raw})...)
	}
	return out
}

// NewClientTLSConfig builds the hardened client TLS configuration for ep.
// roots nil means the system trust store.
func NewClientTLSConfig(ep Endpoint, roots *x509.CertPool) (*tls.Config, error) {
	minVersion, maxVersion, err := versionRange(EnabledProtocols(SupportedProtocols()))
	if err != nil {
		return nil, err
	}

	conf := &tls.Config{
		MinVersion:   minVersion,
		MaxVersion:   maxVersion,
		CipherSuites: cipherSuiteIDs(EnabledCipherSuites(SupportedCipherSuites())),
		RootCAs:      roots,
	}

	if ep.VerifyName {
		conf.ServerName = ep.Host
		return conf, nil
	}

	// Without name verification the chain is still verified against the
	// trust roots.
	conf.InsecureSkipVerify = true
	conf.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		return verifyChain(rawCerts, roots)
	}
	return conf, nil
}

func verifyChain(rawCerts [][]byte, roots *x509.CertPool) error {
	if len(rawCerts) == 0 {
		return errors.New("no certificates presented")
	}

	leaf, err := x509.ParseCertificate(rawCerts[0])
	if err != nil {
		return fmt.Errorf("failed to parse certificate: %w", err)
	}

	intermediates := x509.NewCertPool()
	for _, raw := range rawCerts[1:] {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			continue
		}
		intermediates.AddCert(cert)
	}

	_, err = leaf.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		CurrentTime:   time.Now(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})
	return err
}

func versionRange(protocols []string) (uint16, uint16, error) {
	var lo, hi uint16
	for _, p := range protocols {
		v, ok := protocolVersions[p]
		if !ok {
			continue
		}
		if lo == 0 || v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if lo == 0 {
		return 0, 0, errors.New("no TLS protocol enabled")
	}
	return lo, hi, nil
}

func cipherSuiteIDs(names []string) []uint16 {
	byName := make(map[string]uint16)
	for _, list := range [][]*tls.CipherSuite{tls.CipherSuites(), tls.InsecureCipherSuites()} {
		for _, cs := range list {
			byName[cs.Name] = cs.ID
		}
	}

	ids := make([]uint16, 0, len(names))
	for _, n := range names {
		if id, ok := byName[n]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}
