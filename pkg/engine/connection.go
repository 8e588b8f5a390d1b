package engine

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mqlight/mqlight-go/pkg/clienterr"
	"github.com/mqlight/mqlight-go/pkg/log"
	"github.com/mqlight/mqlight-go/pkg/network"
	"github.com/mqlight/mqlight-go/pkg/promise"
	"github.com/mqlight/mqlight-go/pkg/wire"
)

// Connection errors.
var (
	ErrNotBound         = errors.New("connection not bound to a channel")
	ErrAlreadyBound     = errors.New("connection already bound to a channel")
	ErrConnectionClosed = errors.New("connection closed")
	ErrWrongConnection  = errors.New("message addressed to another connection")
)

// encodeFrame is replaced in tests.
var encodeFrame = wire.Encode

// Delivery is a message received on a subscription.
type Delivery struct {
	ID    uint32
	Topic string
	QOS   QOS
	Data  []byte
}

// Ack is the broker's outcome for a submitted message.
type Ack struct {
	ID     uint32
	Status wire.Status
	Reason string
}

// InboundHandler receives what arrives on a connection. Calls for one
// connection are never concurrent.
type InboundHandler interface {
	OnDeliver(c *Connection, d Delivery)
	OnAck(c *Connection, a Ack)
	OnError(c *Connection, err error)
	OnClose(c *Connection)
}

// HandlerFuncs adapts optional functions to an InboundHandler.
type HandlerFuncs struct {
	Deliver func(c *Connection, d Delivery)
	Ack     func(c *Connection, a Ack)
	Error   func(c *Connection, err error)
	Close   func(c *Connection)
}

func (h HandlerFuncs) OnDeliver(c *Connection, d Delivery) {
	if h.Deliver != nil {
		h.Deliver(c, d)
	}
}

func (h HandlerFuncs) OnAck(c *Connection, a Ack) {
	if h.Ack != nil {
		h.Ack(c, a)
	}
}

func (h HandlerFuncs) OnError(c *Connection, err error) {
	if h.Error != nil {
		h.Error(c, err)
	}
}

func (h HandlerFuncs) OnClose(c *Connection) {
	if h.Close != nil {
		h.Close(c)
	}
}

// Config configures a Connection.
type Config struct {
	// Handler receives inbound messages. Nil ignores them.
	Handler InboundHandler

	// MaxFrameSize bounds inbound frame bodies (default: wire.DefaultMaxFrameSize).
	MaxFrameSize int

	// Logger receives operational logs. Nil discards them.
	Logger *slog.Logger

	// ProtocolLogger receives submitted requests. Nil discards them.
	ProtocolLogger log.Logger
}

// Connection is the engine-side handle of one broker connection. It is
// bound to exactly one NetworkChannel, whose context slot points back to
// it, and acts as that channel's listener.
type Connection struct {
	id      string
	handler InboundHandler
	logger  *slog.Logger
	plog    log.Logger
	decoder *wire.FrameDecoder
	nextID  atomic.Uint32
	closed  atomic.Bool

	mu            sync.Mutex
	channel       network.NetworkChannel
	subscriptions map[string]Subscription
	links         map[string]struct{}
}

// NewConnection creates an unbound connection.
func NewConnection(cfg Config) *Connection {
	handler := cfg.Handler
	if handler == nil {
		handler = HandlerFuncs{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	id := uuid.NewString()
	return &Connection{
		id:            id,
		handler:       handler,
		logger:        logger.With(slog.String("connection", id)),
		plog:          log.OrNoop(cfg.ProtocolLogger),
		decoder:       wire.NewFrameDecoder(cfg.MaxFrameSize),
		subscriptions: make(map[string]Subscription),
		links:         make(map[string]struct{}),
	}
}

// Connect creates a connection, dials ep through svc with the connection
// as the channel listener, and completes p once the channel is bound. If p
// was already completed by the caller the new connection is closed.
func Connect(svc network.NetworkService, ep network.Endpoint, cfg Config, p *promise.Promise[*Connection]) {
	c := NewConnection(cfg)
	svc.Connect(ep, c, promise.New(func(ch network.NetworkChannel, err error) {
		if err != nil {
			p.Fail(err)
			return
		}
		if err := c.Bind(ch); err != nil {
			ch.Close(nil)
			p.Fail(err)
			return
		}
		if !p.Succeed(c) {
			c.Close(nil)
		}
	}))
}

// FromChannel returns the connection bound to ch.
func FromChannel(ch network.NetworkChannel) (*Connection, bool) {
	c, ok := ch.Context().(*Connection)
	return c, ok
}

// ID returns the connection's unique identifier.
func (c *Connection) ID() string {
	return c.id
}

// Channel returns the bound channel, or nil.
func (c *Connection) Channel() network.NetworkChannel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

// Bind associates the connection with ch and stores it in ch's context
// slot. A connection binds once.
func (c *Connection) Bind(ch network.NetworkChannel) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		return ErrAlreadyBound
	}
	c.channel = ch
	ch.SetContext(c)
	c.logState("", "BOUND", ch.ID())
	return nil
}

// Closed reports whether the bound channel has closed.
func (c *Connection) Closed() bool {
	return c.closed.Load()
}

// Submit encodes msg into a frame and writes it through the bound channel.
// p (may be nil) completes with the write outcome: true when the channel's
// write queue was empty as the frame went out.
func (c *Connection) Submit(msg Message, p *promise.Promise[bool]) {
	if p == nil {
		p = promise.New[bool](nil)
	}
	if msg == nil {
		p.Fail(clienterr.Validation("nil message"))
		return
	}
	if msg.Target() != c {
		p.Fail(clienterr.New(clienterr.KindValidation, "submit", "", ErrWrongConnection))
		return
	}

	ch := c.Channel()
	switch {
	case ch == nil:
		p.Fail(clienterr.New(clienterr.KindValidation, "submit", "", ErrNotBound))
		return
	case c.closed.Load():
		p.Fail(clienterr.Transport("submit", "", ErrConnectionClosed))
		return
	}

	data, err := encodeFrame(msg.frame(c.nextID.Add(1)))
	if err != nil {
		p.Fail(clienterr.New(clienterr.KindValidation, "submit", "", err))
		return
	}

	c.logRequest(msg.event())
	ch.Write(data, promise.New(func(queueEmpty bool, err error) {
		if err != nil {
			p.Fail(err)
			return
		}
		c.track(msg)
		p.Succeed(queueEmpty)
	}))
}

// Acknowledge confirms an at-least-once delivery.
func (c *Connection) Acknowledge(d Delivery, p *promise.Promise[bool]) {
	if p == nil {
		p = promise.New[bool](nil)
	}
	ch := c.Channel()
	if ch == nil {
		p.Fail(clienterr.New(clienterr.KindValidation, "acknowledge", "", ErrNotBound))
		return
	}
	data, err := encodeFrame(&wire.Frame{Type: wire.FrameAck, ID: d.ID, Topic: d.Topic})
	if err != nil {
		p.Fail(clienterr.New(clienterr.KindValidation, "acknowledge", "", err))
		return
	}
	ch.Write(data, p)
}

// Close announces the shutdown to the broker and closes the channel. p
// always succeeds.
func (c *Connection) Close(p *promise.Promise[struct{}]) {
	ch := c.Channel()
	if ch == nil || c.closed.Load() {
		if p != nil {
			p.Succeed(struct{}{})
		}
		return
	}

	data, err := encodeFrame(&wire.Frame{Type: wire.FrameClose})
	if err != nil {
		c.logger.Warn("failed to encode close frame", slog.Any("error", err))
		ch.Close(p)
		return
	}
	ch.Write(data, promise.New(func(bool, error) {
		ch.Close(p)
	}))
}

// Subscriptions returns the open subscriptions by topic.
func (c *Connection) Subscriptions() map[string]Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Subscription, len(c.subscriptions))
	for k, v := range c.subscriptions {
		out[k] = v
	}
	return out
}

// RetainsLink reports whether the link to topic is kept open.
func (c *Connection) RetainsLink(topic string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.links[topic]
	return ok
}

func (c *Connection) track(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch m := msg.(type) {
	case *SubscribeRequest:
		c.subscriptions[m.topic] = m.Subscription()
	case *UnsubscribeRequest:
		delete(c.subscriptions, m.topic)
	case *SendRequest:
		if m.options.retainLink {
			c.links[m.topic] = struct{}{}
		} else {
			delete(c.links, m.topic)
		}
	}
}

// OnRead decodes inbound frames and dispatches them.
func (c *Connection) OnRead(ch network.NetworkChannel, data []byte) {
	frames, err := c.decoder.Feed(data)
	for _, f := range frames {
		c.dispatch(ch, f)
	}
	if err != nil {
		cerr := clienterr.Transport("decode", "", err)
		c.logger.Warn("undecodable inbound data, closing", slog.Any("error", cerr))
		c.handler.OnError(c, cerr)
		ch.Close(nil)
	}
}

func (c *Connection) dispatch(ch network.NetworkChannel, f *wire.Frame) {
	switch f.Type {
	case wire.FrameDeliver:
		c.handler.OnDeliver(c, Delivery{ID: f.ID, Topic: f.Topic, QOS: QOS(f.QOS), Data: f.Payload})
	case wire.FrameAck:
		c.handler.OnAck(c, Ack{ID: f.ID, Status: f.Status, Reason: f.Reason})
	case wire.FrameClose:
		c.logger.Debug("broker closed the connection")
		ch.Close(nil)
	default:
		c.logger.Debug("ignoring frame", slog.String("type", f.Type.String()))
	}
}

// OnError forwards transport failures to the handler.
func (c *Connection) OnError(_ network.NetworkChannel, err error) {
	c.handler.OnError(c, err)
}

// OnClose marks the connection closed and notifies the handler.
func (c *Connection) OnClose(network.NetworkChannel) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.logState("BOUND", "CLOSED", "")
	c.handler.OnClose(c)
}

func (c *Connection) logRequest(req *log.RequestEvent) {
	c.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Direction:    log.DirectionOut,
		Layer:        log.LayerEngine,
		Category:     log.CategoryData,
		Request:      req,
	})
}

func (c *Connection) logState(oldState, newState, reason string) {
	c.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Layer:        log.LayerEngine,
		Category:     log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityConnection,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

var _ network.Listener = (*Connection)(nil)
