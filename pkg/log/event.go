package log

import (
	"time"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the channel or engine connection (UUID).
	ConnectionID string `cbor:"2,keyasint,omitempty"`

	// Direction indicates data flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// RemoteAddr is the broker endpoint (host:port).
	RemoteAddr string `cbor:"6,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Request     *RequestEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Timer       *TimerEvent       `cbor:"13,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction indicates the direction of data flow.
type Direction uint8

const (
	// DirectionIn indicates inbound data.
	DirectionIn Direction = 0
	// DirectionOut indicates outbound data.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which component captured the event.
type Layer uint8

const (
	// LayerTransport is the network channel layer (raw bytes).
	LayerTransport Layer = 0
	// LayerEngine is the control message layer.
	LayerEngine Layer = 1
	// LayerTimer is the timer service.
	LayerTimer Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerEngine:
		return "ENGINE"
	case LayerTimer:
		return "TIMER"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryData indicates bytes or a control message moving on a connection.
	CategoryData Category = 0
	// CategoryState indicates a lifecycle state change.
	CategoryState Category = 1
	// CategoryError indicates an error event.
	CategoryError Category = 2
	// CategoryTimer indicates a timer event.
	CategoryTimer Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryData:
		return "DATA"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	case CategoryTimer:
		return "TIMER"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures bytes moved by a channel.
type FrameEvent struct {
	// Size is the payload size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the payload (may be truncated for large writes).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`

	// QueueEmpty is the backpressure result of an outbound write.
	QueueEmpty *bool `cbor:"4,keyasint,omitempty"`
}

// RequestEvent captures a control message submitted to an engine connection.
type RequestEvent struct {
	// Type is the control message type (SUBSCRIBE, SEND, ...).
	Type string `cbor:"1,keyasint"`

	// Topic is the topic or topic pattern.
	Topic string `cbor:"2,keyasint,omitempty"`

	// QOS is the delivery guarantee name.
	QOS string `cbor:"3,keyasint,omitempty"`

	// TTL is the time-to-live in milliseconds (0 = unset).
	TTL uint32 `cbor:"4,keyasint,omitempty"`

	// Credit is the initial credit of a subscription.
	Credit *uint32 `cbor:"5,keyasint,omitempty"`

	// Size is the payload size of a send.
	Size int `cbor:"6,keyasint,omitempty"`
}

// StateChangeEvent captures channel and worker group lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityChannel indicates a network channel state change.
	StateEntityChannel StateEntity = 0
	// StateEntityWorkerGroup indicates a shared worker group state change.
	StateEntityWorkerGroup StateEntity = 1
	// StateEntityConnection indicates an engine connection state change.
	StateEntityConnection StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityChannel:
		return "CHANNEL"
	case StateEntityWorkerGroup:
		return "WORKER_GROUP"
	case StateEntityConnection:
		return "CONNECTION"
	default:
		return "UNKNOWN"
	}
}

// TimerEvent captures a timer transition.
type TimerEvent struct {
	// Delay is the scheduled delay.
	Delay time.Duration `cbor:"1,keyasint"`

	// Outcome is SCHEDULED, FIRED or CANCELLED.
	Outcome string `cbor:"2,keyasint"`
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Kind is the error classification (CONNECT, SECURITY, ...).
	Kind string `cbor:"2,keyasint,omitempty"`

	// Message is the error message.
	Message string `cbor:"3,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}
