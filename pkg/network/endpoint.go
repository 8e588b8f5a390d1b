package network

import (
	"net"
	"net/url"
	"strconv"

	"github.com/mqlight/mqlight-go/pkg/clienterr"
)

// Default broker ports.
const (
	DefaultPort    = 5672
	DefaultTLSPort = 5671
)

// Endpoint describes a broker to connect to.
type Endpoint struct {
	// Host is the broker host name or IP address.
	Host string

	// Port is the broker TCP port.
	Port int

	// UseTLS enables TLS on the connection.
	UseTLS bool

	// CertificateFile is an optional trust bundle: a PKCS#12 keystore or a
	// PEM file of CA certificates. Empty uses the system trust store.
	CertificateFile string

	// VerifyName requires the broker certificate to match Host.
	VerifyName bool
}

// ParseEndpoint parses an amqp:// or amqps:// URI. A missing port defaults
// to 5672 (amqp) or 5671 (amqps); amqps endpoints verify the host name.
func ParseEndpoint(uri string) (Endpoint, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return Endpoint{}, clienterr.Validation("invalid endpoint %q: %v", uri, err)
	}

	var ep Endpoint
	switch u.Scheme {
	case "amqp":
		ep.Port = DefaultPort
	case "amqps":
		ep.UseTLS = true
		ep.VerifyName = true
		ep.Port = DefaultTLSPort
	default:
		return Endpoint{}, clienterr.Validation("unsupported endpoint scheme %q", u.Scheme)
	}

	ep.Host = u.Hostname()
	if p := u.Port(); p != "" {
		ep.Port, err = strconv.Atoi(p)
		if err != nil {
			return Endpoint{}, clienterr.Validation("invalid endpoint port %q", p)
		}
	}

	return ep, ep.Validate()
}

// Address returns host:port.
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// String returns the endpoint as a URI.
func (e Endpoint) String() string {
	if e.UseTLS {
		return "amqps://" + e.Address()
	}
	return "amqp://" + e.Address()
}

// Validate checks the endpoint fields.
func (e Endpoint) Validate() error {
	if e.Host == "" {
		return clienterr.Validation("endpoint host is required")
	}
	if e.Port < 1 || e.Port > 65535 {
		return clienterr.Validation("endpoint port %d out of range", e.Port)
	}
	if e.CertificateFile != "" && !e.UseTLS {
		return clienterr.Validation("certificate file %q given for a non-TLS endpoint", e.CertificateFile)
	}
	return nil
}
