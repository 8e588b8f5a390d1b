package network

import (
	"context"
	"crypto/tls"
	"net"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mqlight/mqlight-go/pkg/clienterr"
	"github.com/mqlight/mqlight-go/pkg/log"
	"github.com/mqlight/mqlight-go/pkg/promise"
)

func TestWorkerGroupLifecycle(t *testing.T) {
	svc, peers := newPipeService(t, Config{ShutdownGrace: 50 * time.Millisecond})
	assert.Equal(t, WorkerStats{}, svc.Stats().Workers)

	const n = 12
	promises := make([]*promise.Promise[NetworkChannel], n)
	var wg sync.WaitGroup
	for i := range n {
		promises[i] = promise.New[NetworkChannel](nil)
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Connect(testEndpoint(), nil, promises[i])
		}()
	}
	wg.Wait()

	channels := make([]NetworkChannel, 0, n)
	for _, p := range promises {
		ch, err := await(t, p)
		require.NoError(t, err)
		channels = append(channels, ch)
	}
	for range n {
		peer := <-peers
		t.Cleanup(func() { peer.Close() })
	}

	st := svc.Stats().Workers
	assert.Equal(t, n, st.Refs)
	assert.True(t, st.Active)
	assert.Equal(t, uint64(1), st.Generation)

	// Closing twice must not release a reference twice.
	for _, ch := range channels {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ch.Close(nil)
		}()
		go func() {
			defer wg.Done()
			ch.Close(nil)
		}()
	}
	wg.Wait()

	assert.Eventually(t, func() bool {
		st := svc.Stats().Workers
		return st.Refs == 0 && !st.Active
	}, waitFor, time.Millisecond)
	assert.Equal(t, uint64(1), svc.Stats().Workers.Teardowns)

	// The next connect starts a fresh group.
	connectPipe(t, svc, peers, nil)
	st = svc.Stats().Workers
	assert.Equal(t, uint64(2), st.Generation)
	assert.Equal(t, 1, st.Refs)
}

func TestConnectRefusedReleasesWorkers(t *testing.T) {
	svc := NewService(Config{})
	svc.dial = func(context.Context, string, string) (net.Conn, error) {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}
	}

	p := promise.New[NetworkChannel](nil)
	svc.Connect(testEndpoint(), nil, p)
	_, err := await(t, p)

	require.Error(t, err)
	assert.Equal(t, clienterr.KindConnect, clienterr.KindOf(err))
	assert.ErrorIs(t, err, syscall.ECONNREFUSED)
	assert.Contains(t, err.Error(), "broker.test:5672")

	assert.Eventually(t, func() bool {
		return svc.Stats().Workers.Teardowns == 1
	}, waitFor, time.Millisecond)
	assert.Equal(t, uint64(1), svc.Stats().ConnectFailures)
}

func TestConnectUnresolvedHost(t *testing.T) {
	svc := NewService(Config{})
	svc.dial = func(context.Context, string, string) (net.Conn, error) {
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: &net.DNSError{
			Err:        "no such host",
			Name:       "nosuch.invalid",
			IsNotFound: true,
		}}
	}

	p := promise.New[NetworkChannel](nil)
	svc.Connect(Endpoint{Host: "nosuch.invalid", Port: 5672}, nil, p)
	_, err := await(t, p)

	var cerr *clienterr.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, clienterr.KindConnect, cerr.Kind)
	assert.Equal(t, "resolve", cerr.Op)
	assert.Contains(t, err.Error(), "nosuch.invalid")
}

func TestConnectInvalidEndpoint(t *testing.T) {
	svc := NewService(Config{})

	p := promise.New[NetworkChannel](nil)
	svc.Connect(Endpoint{Host: "broker.test"}, nil, p)
	_, err := await(t, p)

	assert.Equal(t, clienterr.KindValidation, clienterr.KindOf(err))
	assert.Equal(t, uint64(0), svc.Stats().Workers.Generation)
}

func TestConnectCallerGaveUp(t *testing.T) {
	svc, peers := newPipeService(t, Config{})

	gate := make(chan struct{})
	dial := svc.dial
	svc.dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		<-gate
		return dial(ctx, network, addr)
	}

	p := promise.New[NetworkChannel](nil)
	svc.Connect(testEndpoint(), nil, p)
	p.Fail(context.Canceled)
	close(gate)

	peer := <-peers
	defer peer.Close()

	assert.Eventually(t, func() bool {
		return svc.Stats().ChannelsClosed == 1 && svc.Stats().Workers.Refs == 0
	}, waitFor, time.Millisecond)
}

func TestServiceCollector(t *testing.T) {
	svc, peers := newPipeService(t, Config{})
	ch, peer := connectPipe(t, svc, peers, nil)

	ch.Write([]byte("abcd"), nil)
	readN(t, peer, 4)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(svc.Collector()))

	assert.Eventually(t, func() bool {
		return svc.Stats().BytesWritten == 4
	}, waitFor, time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)
	series := make(map[string]int)
	for _, mf := range families {
		series[mf.GetName()] = len(mf.GetMetric())
	}

	assert.Equal(t, 2, series["mqlight_network_bytes_total"])
	assert.Equal(t, 2, series["mqlight_network_connect_failures_total"])
	assert.Equal(t, 1, series["mqlight_network_open_channels"])
	assert.Len(t, series, 7)
	assert.Equal(t, uint64(1), svc.Stats().OpenChannels())
}

func TestServiceLogsStateChanges(t *testing.T) {
	var mu sync.Mutex
	var states []string
	svc, peers := newPipeService(t, Config{ProtocolLogger: log.LoggerFunc(func(e log.Event) {
		if e.StateChange == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		states = append(states, e.StateChange.Entity.String()+":"+e.StateChange.NewState)
	})})

	ch, _ := connectPipe(t, svc, peers, nil)
	ch.Close(nil)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) == 5
	}, waitFor, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"WORKER_GROUP:ACTIVE",
		"CHANNEL:OPEN",
		"CHANNEL:CLOSED",
		"WORKER_GROUP:DRAINING",
		"WORKER_GROUP:TERMINATED",
	}, states)
}

// startTLSBroker accepts TLS connections and echoes what it reads.
func startTLSBroker(t *testing.T, cert tls.Certificate) int {
	t.Helper()

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	})
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				buf := make([]byte, 1024)
				for {
					n, err := conn.Read(buf)
					if err != nil {
						return
					}
					if _, err := conn.Write(buf[:n]); err != nil {
						return
					}
				}
			}()
		}
	}()

	return ln.Addr().(*net.TCPAddr).Port
}

func writeTrustFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trust.pem")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestTLSConnect(t *testing.T) {
	cert, leaf := generateCert(t, "broker")
	port := startTLSBroker(t, cert)
	trust := writeTrustFile(t, PEMCertificates(leaf))

	tests := []struct {
		name string
		ep   Endpoint
	}{
		{"VerifyName", Endpoint{Host: "localhost", Port: port, UseTLS: true, CertificateFile: trust, VerifyName: true}},
		{"ChainOnly", Endpoint{Host: "127.0.0.1", Port: port, UseTLS: true, CertificateFile: trust}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(Config{})
			l := newRecordingListener()
			p := promise.New[NetworkChannel](nil)
			svc.Connect(tt.ep, l, p)

			nc, err := await(t, p)
			require.NoError(t, err)
			ch := nc.(*Channel)

			state, ok := ch.TLSConnectionState()
			require.True(t, ok)
			assert.True(t, state.HandshakeComplete)

			ch.Write([]byte("ping"), nil)
			assert.Eventually(t, func() bool {
				_, reads, _ := l.snapshot()
				total := 0
				for _, r := range reads {
					total += len(r)
				}
				return total == 4
			}, waitFor, time.Millisecond)

			ch.Close(nil)
			l.waitClosed(t)
		})
	}
}

func TestTLSConnectUntrusted(t *testing.T) {
	cert, _ := generateCert(t, "broker")
	_, other := generateCert(t, "other")
	port := startTLSBroker(t, cert)
	trust := writeTrustFile(t, PEMCertificates(other))

	for _, verifyName := range []bool{true, false} {
		svc := NewService(Config{})
		p := promise.New[NetworkChannel](nil)
		svc.Connect(Endpoint{Host: "localhost", Port: port, UseTLS: true, CertificateFile: trust, VerifyName: verifyName}, nil, p)

		_, err := await(t, p)
		require.Error(t, err)
		assert.Equal(t, clienterr.KindSecurity, clienterr.KindOf(err), "verifyName=%v: %v", verifyName, err)
		assert.Eventually(t, func() bool {
			return svc.Stats().SecurityFailures == 1
		}, waitFor, time.Millisecond)
	}
}

func TestTLSConnectBadTrustFile(t *testing.T) {
	svc := NewService(Config{})
	trust := writeTrustFile(t, []byte("not a certificate"))

	p := promise.New[NetworkChannel](nil)
	svc.Connect(Endpoint{Host: "localhost", Port: 5671, UseTLS: true, CertificateFile: trust}, nil, p)
	_, err := await(t, p)

	assert.Equal(t, clienterr.KindSecurity, clienterr.KindOf(err))
	assert.ErrorIs(t, err, ErrNoTrustedCertificates)
	assert.Equal(t, uint64(0), svc.Stats().Workers.Generation)
}
