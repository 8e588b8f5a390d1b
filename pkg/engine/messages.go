package engine

import (
	"fmt"

	"github.com/mqlight/mqlight-go/pkg/clienterr"
	"github.com/mqlight/mqlight-go/pkg/log"
	"github.com/mqlight/mqlight-go/pkg/wire"
)

// MaxTTL is the largest time-to-live in milliseconds (0xFFFFFFFF).
const MaxTTL int64 = 4294967295

// Message is a control message accepted by Connection.Submit.
// Implemented by *SubscribeRequest, *UnsubscribeRequest and *SendRequest.
type Message interface {
	// Target returns the connection the message is addressed to.
	Target() *Connection

	frame(id uint32) *wire.Frame
	event() *log.RequestEvent
}

// Subscription describes an open subscription.
type Subscription struct {
	Topic         string
	QOS           QOS
	InitialCredit int
	TTL           int64
}

// SubscribeRequest opens a subscription. It is immutable once created.
type SubscribeRequest struct {
	connection    *Connection
	topic         string
	qos           QOS
	initialCredit int
	ttl           int64
}

// NewSubscribeRequest validates and creates a subscribe request. credit is
// the flow-control allowance; ttl is in milliseconds, 0 meaning none.
func NewSubscribeRequest(conn *Connection, topic string, qos QOS, credit int, ttl int64) (*SubscribeRequest, error) {
	if conn == nil {
		return nil, clienterr.Validation("subscribe requires a connection")
	}
	if topic == "" {
		return nil, clienterr.Validation("subscribe requires a topic pattern")
	}
	if !qos.IsValid() {
		return nil, clienterr.Validation("qos value '%d' is invalid", qos)
	}
	if credit < 0 || int64(credit) > MaxTTL {
		return nil, clienterr.Validation("credit value '%d' is invalid, must be a non-negative integer number", credit)
	}
	if ttl < 0 || ttl > MaxTTL {
		return nil, clienterr.Validation("ttl value '%d' is invalid, must be an unsigned integer number", ttl)
	}
	return &SubscribeRequest{
		connection:    conn,
		topic:         topic,
		qos:           qos,
		initialCredit: credit,
		ttl:           ttl,
	}, nil
}

// Target returns the connection the request is submitted on.
func (r *SubscribeRequest) Target() *Connection { return r.connection }

// Topic returns the topic pattern to subscribe to.
func (r *SubscribeRequest) Topic() string { return r.topic }

// QOS returns the delivery guarantee requested for the subscription.
func (r *SubscribeRequest) QOS() QOS { return r.qos }

// InitialCredit returns how many unacknowledged deliveries the broker may send.
func (r *SubscribeRequest) InitialCredit() int { return r.initialCredit }

// TTL returns how long, in milliseconds, the subscription outlives its link.
func (r *SubscribeRequest) TTL() int64 { return r.ttl }

// Subscription returns the subscription this request opens.
func (r *SubscribeRequest) Subscription() Subscription {
	return Subscription{Topic: r.topic, QOS: r.qos, InitialCredit: r.initialCredit, TTL: r.ttl}
}

func (r *SubscribeRequest) frame(id uint32) *wire.Frame {
	credit := uint32(r.initialCredit)
	return &wire.Frame{
		Type:   wire.FrameSubscribe,
		ID:     id,
		Topic:  r.topic,
		QOS:    uint8(r.qos),
		TTL:    optionalTTL(r.ttl),
		Credit: &credit,
	}
}

func (r *SubscribeRequest) event() *log.RequestEvent {
	credit := uint32(r.initialCredit)
	return &log.RequestEvent{
		Type:   wire.FrameSubscribe.String(),
		Topic:  r.topic,
		QOS:    r.qos.String(),
		TTL:    uint32(r.ttl),
		Credit: &credit,
	}
}

// UnsubscribeRequest closes a subscription. ttl 0 discards the
// subscription's queued messages at once; otherwise they are kept for ttl
// milliseconds.
type UnsubscribeRequest struct {
	connection *Connection
	topic      string
	ttl        int64
}

// NewUnsubscribeRequest validates and creates an unsubscribe request.
func NewUnsubscribeRequest(conn *Connection, topic string, ttl int64) (*UnsubscribeRequest, error) {
	if conn == nil {
		return nil, clienterr.Validation("unsubscribe requires a connection")
	}
	if topic == "" {
		return nil, clienterr.Validation("unsubscribe requires a topic pattern")
	}
	if ttl < 0 || ttl > MaxTTL {
		return nil, clienterr.Validation("ttl value '%d' is invalid, must be an unsigned integer number", ttl)
	}
	return &UnsubscribeRequest{connection: conn, topic: topic, ttl: ttl}, nil
}

// Target returns the connection the request is submitted on.
func (r *UnsubscribeRequest) Target() *Connection { return r.connection }

// Topic returns the topic pattern to unsubscribe from.
func (r *UnsubscribeRequest) Topic() string { return r.topic }

// TTL returns how long, in milliseconds, queued messages are kept.
func (r *UnsubscribeRequest) TTL() int64 { return r.ttl }

func (r *UnsubscribeRequest) frame(id uint32) *wire.Frame {
	ttl := uint32(r.ttl)
	return &wire.Frame{
		Type:  wire.FrameUnsubscribe,
		ID:    id,
		Topic: r.topic,
		TTL:   &ttl,
	}
}

func (r *UnsubscribeRequest) event() *log.RequestEvent {
	return &log.RequestEvent{
		Type:  wire.FrameUnsubscribe.String(),
		Topic: r.topic,
		TTL:   uint32(r.ttl),
	}
}

// SendOptions are the options of a send. The zero value is not valid; use
// DefaultSendOptions or a SendOptionsBuilder.
type SendOptions struct {
	qos        QOS
	ttl        int64
	retainLink bool
}

// DefaultSendOptions returns at-most-once delivery, no time-to-live and a
// retained link.
func DefaultSendOptions() SendOptions {
	return SendOptions{qos: AtMostOnce, retainLink: true}
}

// QOS returns the delivery guarantee.
func (o SendOptions) QOS() QOS { return o.qos }

// TTL returns the time-to-live in milliseconds, 0 when unset.
func (o SendOptions) TTL() int64 { return o.ttl }

// RetainLink reports whether the link to the destination stays open after
// the send.
func (o SendOptions) RetainLink() bool { return o.retainLink }

func (o SendOptions) String() string {
	return fmt.Sprintf("[qos=%s, ttl=%d, retainLink=%t]", o.qos, o.ttl, o.retainLink)
}

// SendOptionsBuilder builds SendOptions. Setters record the first invalid
// value, which Build reports.
type SendOptionsBuilder struct {
	opts SendOptions
	err  error
}

// NewSendOptionsBuilder returns a builder starting from DefaultSendOptions.
func NewSendOptionsBuilder() *SendOptionsBuilder {
	return &SendOptionsBuilder{opts: DefaultSendOptions()}
}

// SetQOS sets the delivery guarantee.
func (b *SendOptionsBuilder) SetQOS(qos QOS) *SendOptionsBuilder {
	if !qos.IsValid() {
		b.fail(clienterr.Validation("qos value '%d' is invalid", qos))
		return b
	}
	b.opts.qos = qos
	return b
}

// SetTTL sets the time-to-live in milliseconds. It must be in
// [1, 4294967295].
func (b *SendOptionsBuilder) SetTTL(ttl int64) *SendOptionsBuilder {
	if ttl < 1 || ttl > MaxTTL {
		b.fail(clienterr.Validation("ttl value '%d' is invalid, must be an unsigned non-zero integer number", ttl))
		return b
	}
	b.opts.ttl = ttl
	return b
}

// SetRetainLink sets whether the link to the destination stays open.
func (b *SendOptionsBuilder) SetRetainLink(retain bool) *SendOptionsBuilder {
	b.opts.retainLink = retain
	return b
}

// Build returns the options, or the first validation error.
func (b *SendOptionsBuilder) Build() (SendOptions, error) {
	if b.err != nil {
		return SendOptions{}, b.err
	}
	return b.opts, nil
}

func (b *SendOptionsBuilder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// SendRequest publishes data to a topic. It is immutable once created.
type SendRequest struct {
	connection *Connection
	topic      string
	data       []byte
	options    SendOptions
}

// NewSendRequest validates and creates a send request. data is copied.
func NewSendRequest(conn *Connection, topic string, data []byte, opts SendOptions) (*SendRequest, error) {
	if conn == nil {
		return nil, clienterr.Validation("send requires a connection")
	}
	if topic == "" {
		return nil, clienterr.Validation("send requires a topic")
	}
	if !opts.qos.IsValid() || opts.ttl < 0 || opts.ttl > MaxTTL {
		return nil, clienterr.Validation("invalid send options %s", opts)
	}
	return &SendRequest{
		connection: conn,
		topic:      topic,
		data:       append([]byte(nil), data...),
		options:    opts,
	}, nil
}

// Target returns the connection the request is submitted on.
func (r *SendRequest) Target() *Connection { return r.connection }

// Topic returns the destination topic.
func (r *SendRequest) Topic() string { return r.topic }

// Options returns the send options.
func (r *SendRequest) Options() SendOptions { return r.options }

// Data returns a copy of the payload.
func (r *SendRequest) Data() []byte {
	return append([]byte(nil), r.data...)
}

func (r *SendRequest) frame(id uint32) *wire.Frame {
	retain := r.options.retainLink
	return &wire.Frame{
		Type:       wire.FrameSend,
		ID:         id,
		Topic:      r.topic,
		QOS:        uint8(r.options.qos),
		TTL:        optionalTTL(r.options.ttl),
		RetainLink: &retain,
		Payload:    r.data,
	}
}

func (r *SendRequest) event() *log.RequestEvent {
	return &log.RequestEvent{
		Type:  wire.FrameSend.String(),
		Topic: r.topic,
		QOS:   r.options.qos.String(),
		TTL:   uint32(r.options.ttl),
		Size:  len(r.data),
	}
}

func optionalTTL(ttl int64) *uint32 {
	if ttl == 0 {
		return nil
	}
	v := uint32(ttl)
	return &v
}

// Compile-time interface satisfaction checks.
var (
	_ Message = (*SubscribeRequest)(nil)
	_ Message = (*UnsubscribeRequest)(nil)
	_ Message = (*SendRequest)(nil)
)
