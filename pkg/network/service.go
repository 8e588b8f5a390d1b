package network

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/mqlight/mqlight-go/pkg/clienterr"
	"github.com/mqlight/mqlight-go/pkg/log"
	"github.com/mqlight/mqlight-go/pkg/promise"
)

// DefaultConnectTimeout bounds dialing plus the TLS handshake.
const DefaultConnectTimeout = 30 * time.Second

// Config configures a Service.
type Config struct {
	// ConnectTimeout bounds dialing plus the TLS handshake (default: 30s).
	ConnectTimeout time.Duration

	// KeepAlive is the TCP keep-alive period. Zero uses the system default,
	// negative disables keep-alive.
	KeepAlive time.Duration

	// WriteTimeout bounds each socket write (0 = no timeout).
	WriteTimeout time.Duration

	// ReadBufferSize is the read chunk size (default: 64KB).
	ReadBufferSize int

	// WaterMarks control channel writability (default: 64KB/32KB).
	WaterMarks WaterMarks

	// ShutdownGrace bounds the drain of a released worker group
	// (default: 500ms).
	ShutdownGrace time.Duration

	// TrustStorePassword unlocks PKCS#12 trust bundles.
	TrustStorePassword string

	// Logger receives operational logs. Nil discards them.
	Logger *slog.Logger

	// ProtocolLogger receives transport events. Nil discards them.
	ProtocolLogger log.Logger
}

// DefaultConfig returns the default service configuration.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: DefaultConnectTimeout,
		ReadBufferSize: DefaultReadBufferSize,
		WaterMarks: WaterMarks{
			High: DefaultHighWaterMark,
			Low:  DefaultLowWaterMark,
		},
		ShutdownGrace: DefaultShutdownGrace,
	}
}

type dialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Service establishes channels. All channels of a Service share one worker
// group.
type Service struct {
	config   Config
	logger   *slog.Logger
	plog     log.Logger
	dial     dialFunc
	workers  groupManager
	counters counters
}

// NewService creates a Service. Zero config fields take their defaults.
func NewService(config Config) *Service {
	def := DefaultConfig()
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = def.ConnectTimeout
	}
	if config.ReadBufferSize <= 0 {
		config.ReadBufferSize = def.ReadBufferSize
	}
	if config.WaterMarks.High <= 0 {
		config.WaterMarks = def.WaterMarks
	}
	if config.WaterMarks.Low > config.WaterMarks.High {
		config.WaterMarks.Low = config.WaterMarks.High
	}
	if config.WaterMarks.Low < 0 {
		config.WaterMarks.Low = 0
	}
	if config.ShutdownGrace <= 0 {
		config.ShutdownGrace = def.ShutdownGrace
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	dialer := &net.Dialer{KeepAlive: config.KeepAlive}
	s := &Service{
		config: config,
		logger: logger,
		plog:   log.OrNoop(config.ProtocolLogger),
		dial:   dialer.DialContext,
	}
	s.workers = groupManager{
		grace:   config.ShutdownGrace,
		onEvent: s.logWorkerGroup,
	}
	return s
}

// Stats returns a snapshot of the service counters.
func (s *Service) Stats() Stats {
	return Stats{
		Workers:          s.workers.stats(),
		Connects:         s.counters.connects.Load(),
		ConnectFailures:  s.counters.connectFailures.Load(),
		SecurityFailures: s.counters.securityFailures.Load(),
		ChannelsClosed:   s.counters.channelsClosed.Load(),
		BytesWritten:     s.counters.bytesWritten.Load(),
		BytesRead:        s.counters.bytesRead.Load(),
		WritesFailed:     s.counters.writesFailed.Load(),
	}
}

// Connect dials ep in the background and completes p with the channel.
func (s *Service) Connect(ep Endpoint, listener Listener, p *promise.Promise[NetworkChannel]) {
	if p == nil {
		p = promise.New[NetworkChannel](nil)
	}
	if err := ep.Validate(); err != nil {
		p.Fail(err)
		return
	}

	var tlsConf *tls.Config
	if ep.UseTLS {
		roots, err := LoadTrustPool(ep.CertificateFile, s.config.TrustStorePassword)
		if err == nil {
			tlsConf, err = NewClientTLSConfig(ep, roots)
		}
		if err != nil {
			s.connectFailed(ep, p, clienterr.Security("connect", ep.Address(), err))
			return
		}
	}

	group, release := s.workers.acquire()
	group.Go(func(ctx context.Context) {
		conn, err := s.establish(ctx, ep, tlsConf)
		if err != nil {
			s.connectFailed(ep, p, err)
			release()
			return
		}

		ch := s.newChannel(uuid.NewString(), conn, ep, group, release)
		ch.attach(listener)
		s.counters.connects.Add(1)
		s.logger.Debug("channel open",
			slog.String("channel", ch.ID()),
			slog.String("endpoint", ep.Address()),
			slog.Bool("tls", ep.UseTLS))
		ch.logState("CONNECTING", ChannelOpen.String(), "connected")

		if !p.Succeed(ch) {
			// The caller gave up on this attempt.
			ch.Close(nil)
			return
		}
		group.Go(ch.readLoop)
	})
}

func (s *Service) connectFailed(ep Endpoint, p *promise.Promise[NetworkChannel], err error) {
	s.counters.connectFailed(err)
	s.logger.Warn("connect failed",
		slog.String("endpoint", ep.Address()),
		slog.Any("error", err))
	s.plog.Log(log.Event{
		Timestamp:  time.Now(),
		Layer:      log.LayerTransport,
		Category:   log.CategoryError,
		RemoteAddr: ep.Address(),
		Error: &log.ErrorEventData{
			Layer:   log.LayerTransport,
			Kind:    clienterr.KindOf(err).String(),
			Message: err.Error(),
			Context: "connect",
		},
	})
	p.Fail(err)
}

// establish dials ep and performs the TLS handshake when tlsConf is set.
func (s *Service) establish(ctx context.Context, ep Endpoint, tlsConf *tls.Config) (net.Conn, error) {
	addr := ep.Address()
	ctx, cancel := context.WithTimeout(ctx, s.config.ConnectTimeout)
	defer cancel()

	conn, err := s.dial(ctx, "tcp", addr)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return nil, clienterr.New(clienterr.KindConnect, "resolve", addr, err)
		}
		return nil, clienterr.Connect(addr, err)
	}

	if tlsConf == nil {
		return conn, nil
	}

	tlsConn := tls.Client(conn, tlsConf)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		_ = conn.Close()
		return nil, clienterr.Connect(addr, handshakeCause(err))
	}
	return tlsConn, nil
}

// handshakeCause marks handshake failures that are not plain I/O failures
// as security failures.
func handshakeCause(err error) error {
	// TLS alerts surface as *net.OpError with these ops.
	var opErr *net.OpError
	if errors.As(err, &opErr) && (opErr.Op == "remote error" || opErr.Op == "local error") {
		return clienterr.MarkSecurity(err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return clienterr.MarkSecurity(err)
}

func (s *Service) logWorkerGroup(generation uint64, oldState, newState, reason string) {
	s.logger.Debug("worker group "+newState,
		slog.Uint64("generation", generation),
		slog.String("reason", reason))
	s.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: "workers-" + strconv.FormatUint(generation, 10),
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityWorkerGroup,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}
