package network

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mqlight/mqlight-go/pkg/promise"
)

const waitFor = 2 * time.Second

// recordingListener captures callbacks in order.
type recordingListener struct {
	mu     sync.Mutex
	events []string
	reads  [][]byte
	errs   []error
	closed chan struct{}
	onRead func(ch NetworkChannel, data []byte)
}

func newRecordingListener() *recordingListener {
	return &recordingListener{closed: make(chan struct{})}
}

func (l *recordingListener) OnRead(ch NetworkChannel, data []byte) {
	l.mu.Lock()
	l.events = append(l.events, "read")
	l.reads = append(l.reads, data)
	fn := l.onRead
	l.mu.Unlock()
	if fn != nil {
		fn(ch, data)
	}
}

func (l *recordingListener) OnError(_ NetworkChannel, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "error")
	l.errs = append(l.errs, err)
}

func (l *recordingListener) OnClose(NetworkChannel) {
	l.mu.Lock()
	l.events = append(l.events, "close")
	l.mu.Unlock()
	close(l.closed)
}

func (l *recordingListener) snapshot() ([]string, [][]byte, []error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...), append([][]byte(nil), l.reads...), append([]error(nil), l.errs...)
}

func (l *recordingListener) waitClosed(t *testing.T) {
	t.Helper()
	select {
	case <-l.closed:
	case <-time.After(waitFor):
		t.Fatal("listener not closed in time")
	}
}

// stubListener is a testify mock of Listener.
type stubListener struct{ mock.Mock }

func (s *stubListener) OnRead(ch NetworkChannel, data []byte) { s.Called(ch, data) }
func (s *stubListener) OnError(ch NetworkChannel, err error)  { s.Called(ch, err) }
func (s *stubListener) OnClose(ch NetworkChannel)             { s.Called(ch) }

// newPipeService returns a service whose dials produce in-memory pipes.
// The broker end of every pipe is sent on the returned channel.
func newPipeService(t *testing.T, cfg Config) (*Service, <-chan net.Conn) {
	t.Helper()
	svc := NewService(cfg)
	peers := make(chan net.Conn, 16)
	svc.dial = func(context.Context, string, string) (net.Conn, error) {
		client, server := net.Pipe()
		peers <- server
		return client, nil
	}
	return svc, peers
}

func testEndpoint() Endpoint {
	return Endpoint{Host: "broker.test", Port: DefaultPort}
}

func await[T any](t *testing.T, p *promise.Promise[T]) (T, error) {
	t.Helper()
	select {
	case <-p.Done():
		return p.Result()
	case <-time.After(waitFor):
		t.Fatal("promise not completed in time")
		var zero T
		return zero, nil
	}
}

// connectPipe connects through a pipe service and returns both ends.
func connectPipe(t *testing.T, svc *Service, peers <-chan net.Conn, l Listener) (*Channel, net.Conn) {
	t.Helper()
	p := promise.New[NetworkChannel](nil)
	svc.Connect(testEndpoint(), l, p)

	nc, err := await(t, p)
	require.NoError(t, err)

	var peer net.Conn
	select {
	case peer = <-peers:
	case <-time.After(waitFor):
		t.Fatal("no peer connection")
	}
	t.Cleanup(func() { peer.Close() })
	return nc.(*Channel), peer
}

func readN(t *testing.T, conn net.Conn, n int) []byte {
	t.Helper()
	buf := make([]byte, n)
	_ = conn.SetReadDeadline(time.Now().Add(waitFor))
	got := 0
	for got < n {
		m, err := conn.Read(buf[got:])
		require.NoError(t, err)
		got += m
	}
	return buf
}

// generateCert creates a self-signed server certificate for 127.0.0.1 and
// localhost.
func generateCert(t *testing.T, cn string) (tls.Certificate, *x509.Certificate) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key, Leaf: cert}, cert
}
