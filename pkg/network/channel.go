package network

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mqlight/mqlight-go/pkg/clienterr"
	"github.com/mqlight/mqlight-go/pkg/log"
	"github.com/mqlight/mqlight-go/pkg/promise"
)

// ChannelState is the lifecycle state of a channel.
type ChannelState int32

const (
	// ChannelOpen accepts writes and delivers reads.
	ChannelOpen ChannelState = iota

	// ChannelClosing has started closing; notifications are pending.
	ChannelClosing

	// ChannelClosed has delivered OnClose.
	ChannelClosed
)

// String returns the state name.
func (s ChannelState) String() string {
	switch s {
	case ChannelOpen:
		return "OPEN"
	case ChannelClosing:
		return "CLOSING"
	case ChannelClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// ErrChannelClosed fails writes issued to, or still queued on, a closed
// channel.
var ErrChannelClosed = errors.New("channel closed")

// Write buffer and read defaults.
const (
	DefaultHighWaterMark  = 64 * 1024
	DefaultLowWaterMark   = 32 * 1024
	DefaultReadBufferSize = 64 * 1024

	// MaxLoggedFrame bounds the payload copied into protocol log events.
	MaxLoggedFrame = 1024
)

// WaterMarks bound the bytes accepted by Write and not yet written to the
// transport, queued and in flight together. The channel turns unwritable
// above High and writable again at or below Low.
type WaterMarks struct {
	High int
	Low  int
}

type writeRequest struct {
	data    []byte
	promise *promise.Promise[bool]
}

type listenerRef struct {
	l Listener
}

// Channel is an established connection. It is created by Service.Connect.
type Channel struct {
	id       string
	conn     net.Conn
	endpoint Endpoint
	addr     string

	group   *workerGroup
	release func()

	marks        WaterMarks
	writeTimeout time.Duration
	readBufSize  int
	stats        *counters
	logger       *slog.Logger
	plog         log.Logger

	listener atomic.Pointer[listenerRef]
	state    atomic.Int32

	ctxMu   sync.RWMutex
	userCtx any

	// mu guards the write pipeline.
	mu              sync.Mutex
	pending         []*writeRequest
	writeInProgress bool
	writable        bool
	buffered        int
	closed          bool

	// notifyMu serializes listener callbacks.
	notifyMu sync.Mutex
}

func (s *Service) newChannel(id string, conn net.Conn, ep Endpoint, group *workerGroup, release func()) *Channel {
	return &Channel{
		id:           id,
		conn:         conn,
		endpoint:     ep,
		addr:         ep.Address(),
		group:        group,
		release:      release,
		marks:        s.config.WaterMarks,
		writeTimeout: s.config.WriteTimeout,
		readBufSize:  s.config.ReadBufferSize,
		stats:        &s.counters,
		logger:       s.logger.With(slog.String("channel", id), slog.String("endpoint", ep.Address())),
		plog:         s.plog,
		writable:     true,
	}
}

// ID returns the channel's unique identifier.
func (c *Channel) ID() string {
	return c.id
}

// Endpoint returns the endpoint the channel was connected to.
func (c *Channel) Endpoint() Endpoint {
	return c.endpoint
}

// State returns the lifecycle state.
func (c *Channel) State() ChannelState {
	return ChannelState(c.state.Load())
}

// LocalAddr returns the local network address.
func (c *Channel) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the remote network address.
func (c *Channel) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// TLSConnectionState returns the TLS connection state.
func (c *Channel) TLSConnectionState() (tls.ConnectionState, bool) {
	if tc, ok := c.conn.(*tls.Conn); ok {
		return tc.ConnectionState(), true
	}
	return tls.ConnectionState{}, false
}

// SetContext attaches caller state to the channel.
func (c *Channel) SetContext(v any) {
	c.ctxMu.Lock()
	c.userCtx = v
	c.ctxMu.Unlock()
}

// Context returns the state attached with SetContext.
func (c *Channel) Context() any {
	c.ctxMu.RLock()
	defer c.ctxMu.RUnlock()
	return c.userCtx
}

// Writable reports whether buffered writes are below the high water mark.
// Producers that see false should hold further writes until it returns to
// true; the queue itself keeps draining regardless.
func (c *Channel) Writable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writable
}

// Queued returns the number of writes waiting behind the one in flight.
func (c *Channel) Queued() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// attach sets the listener. Only the first call has an effect.
func (c *Channel) attach(l Listener) bool {
	if l == nil {
		return false
	}
	return c.listener.CompareAndSwap(nil, &listenerRef{l: l})
}

func (c *Channel) currentListener() Listener {
	if ref := c.listener.Load(); ref != nil {
		return ref.l
	}
	return nil
}

// Write queues a copy of data.
func (c *Channel) Write(data []byte, p *promise.Promise[bool]) {
	c.doWrite(&writeRequest{data: bytes.Clone(data), promise: p})
}

// doWrite enqueues req (if any) and starts the head of the queue when no
// write is in flight. Completion of the in-flight write is what resumes the
// queue.
func (c *Channel) doWrite(req *writeRequest) {
	c.mu.Lock()
	if req != nil {
		if c.closed {
			c.mu.Unlock()
			c.failWrite(req, ErrChannelClosed)
			return
		}
		c.pending = append(c.pending, req)
		c.buffered += len(req.data)
	}
	changed := c.updateWritability()
	writable := c.writable

	var next *writeRequest
	if !c.closed && !c.writeInProgress && len(c.pending) > 0 {
		next = c.pending[0]
		c.pending[0] = nil
		c.pending = c.pending[1:]
		c.writeInProgress = true
	}
	c.mu.Unlock()

	if changed {
		c.logger.Debug("writability changed", slog.Bool("writable", writable))
	}
	if next != nil {
		c.group.Go(func(context.Context) {
			c.writeComplete(next, c.transmit(next.data))
		})
	}
}

func (c *Channel) transmit(data []byte) error {
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	_, err := c.conn.Write(data)
	return err
}

func (c *Channel) writeComplete(req *writeRequest, err error) {
	c.mu.Lock()
	c.buffered -= len(req.data)
	changed := c.updateWritability()
	writable := c.writable
	queueEmpty := len(c.pending) == 0
	c.mu.Unlock()
	if changed {
		c.logger.Debug("writability changed", slog.Bool("writable", writable))
	}

	if err != nil {
		if c.State() != ChannelOpen {
			err = ErrChannelClosed
		}
		c.failWrite(req, err)
		c.fail(clienterr.Transport("write", c.addr, err))
		return
	}

	c.stats.bytesWritten.Add(uint64(len(req.data)))
	c.logFrame(log.DirectionOut, req.data, &queueEmpty)
	if req.promise != nil {
		req.promise.Succeed(queueEmpty)
	}

	c.mu.Lock()
	c.writeInProgress = false
	c.mu.Unlock()
	c.doWrite(nil)
}

// updateWritability applies the water marks to the buffered byte count and
// reports whether writability flipped. c.mu must be held.
func (c *Channel) updateWritability() bool {
	switch {
	case c.writable && c.buffered > c.marks.High:
		c.writable = false
		return true
	case !c.writable && c.buffered <= c.marks.Low:
		c.writable = true
		return true
	}
	return false
}

func (c *Channel) failWrite(req *writeRequest, err error) {
	c.stats.writesFailed.Add(1)
	if req.promise != nil {
		req.promise.Fail(clienterr.Transport("write", c.addr, err))
	}
}

// Close closes the channel. p always succeeds.
func (c *Channel) Close(p *promise.Promise[struct{}]) {
	if !c.shutdown(nil, p) && p != nil {
		p.Succeed(struct{}{})
	}
}

// fail closes the channel after a transport error.
func (c *Channel) fail(err error) {
	c.shutdown(err, nil)
}

// shutdown starts closing the channel; only the first call proceeds.
// Notifications run on the worker group so a listener may close the
// channel from inside a callback.
func (c *Channel) shutdown(cause error, p *promise.Promise[struct{}]) bool {
	if !c.state.CompareAndSwap(int32(ChannelOpen), int32(ChannelClosing)) {
		return false
	}

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.group.Go(func(context.Context) {
		c.finishClose(cause, p)
	})
	return true
}

func (c *Channel) finishClose(cause error, p *promise.Promise[struct{}]) {
	_ = c.conn.Close()

	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	for _, req := range pending {
		c.buffered -= len(req.data)
	}
	c.mu.Unlock()
	for _, req := range pending {
		c.failWrite(req, ErrChannelClosed)
	}

	c.notifyMu.Lock()
	l := c.currentListener()
	if cause != nil {
		c.logError(cause)
		if l != nil {
			l.OnError(c, cause)
		}
	}
	c.state.Store(int32(ChannelClosed))
	if l != nil {
		l.OnClose(c)
	}
	c.notifyMu.Unlock()

	reason := "closed"
	if cause != nil {
		reason = cause.Error()
	}
	c.stats.channelsClosed.Add(1)
	c.logState(ChannelOpen.String(), ChannelClosed.String(), reason)
	c.logger.Debug("channel closed", slog.Int("dropped_writes", len(pending)))

	if p != nil {
		p.Succeed(struct{}{})
	}
	c.release()
}

// readLoop delivers inbound bytes until the connection ends.
func (c *Channel) readLoop(context.Context) {
	buf := make([]byte, c.readBufSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			c.deliver(bytes.Clone(buf[:n]))
		}
		if err == nil {
			continue
		}

		if c.State() != ChannelOpen {
			return
		}
		if errors.Is(err, io.EOF) {
			c.shutdown(nil, nil)
		} else {
			c.fail(clienterr.Transport("read", c.addr, err))
		}
		return
	}
}

func (c *Channel) deliver(data []byte) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	if c.State() != ChannelOpen {
		return
	}

	c.stats.bytesRead.Add(uint64(len(data)))
	c.logFrame(log.DirectionIn, data, nil)

	l := c.currentListener()
	if l == nil {
		c.logger.Debug("dropping inbound data, no listener", slog.Int("size", len(data)))
		return
	}
	l.OnRead(c, data)
}

func (c *Channel) logFrame(dir log.Direction, data []byte, queueEmpty *bool) {
	frame := &log.FrameEvent{Size: len(data), QueueEmpty: queueEmpty}
	if len(data) > MaxLoggedFrame {
		frame.Data = data[:MaxLoggedFrame]
		frame.Truncated = true
	} else {
		frame.Data = data
	}

	c.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryData,
		RemoteAddr:   c.addr,
		Frame:        frame,
	})
}

func (c *Channel) logState(oldState, newState, reason string) {
	c.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Layer:        log.LayerTransport,
		Category:     log.CategoryState,
		RemoteAddr:   c.addr,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityChannel,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func (c *Channel) logError(err error) {
	c.logger.Warn("channel error", slog.Any("error", err))
	c.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Layer:        log.LayerTransport,
		Category:     log.CategoryError,
		RemoteAddr:   c.addr,
		Error: &log.ErrorEventData{
			Layer:   log.LayerTransport,
			Kind:    clienterr.KindOf(err).String(),
			Message: err.Error(),
			Context: "channel",
		},
	})
}
