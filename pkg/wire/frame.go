package wire

import (
	"fmt"
)

// FrameType identifies the control message carried by a frame.
type FrameType uint8

const (
	// FrameSubscribe opens a subscription to a topic pattern.
	FrameSubscribe FrameType = 1

	// FrameUnsubscribe closes a subscription.
	FrameUnsubscribe FrameType = 2

	// FrameSend publishes a message to a topic.
	FrameSend FrameType = 3

	// FrameDeliver carries a message to a subscriber.
	FrameDeliver FrameType = 4

	// FrameAck reports the outcome of a request.
	FrameAck FrameType = 5

	// FrameClose announces an orderly shutdown.
	FrameClose FrameType = 6
)

// String returns the frame type name.
func (t FrameType) String() string {
	switch t {
	case FrameSubscribe:
		return "SUBSCRIBE"
	case FrameUnsubscribe:
		return "UNSUBSCRIBE"
	case FrameSend:
		return "SEND"
	case FrameDeliver:
		return "DELIVER"
	case FrameAck:
		return "ACK"
	case FrameClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// IsValid reports whether t is a known frame type.
func (t FrameType) IsValid() bool {
	return t >= FrameSubscribe && t <= FrameClose
}

// Status is the outcome carried by an ACK frame.
type Status uint8

const (
	// StatusSuccess indicates the request completed.
	StatusSuccess Status = 0

	// StatusInvalidTopic indicates the topic was rejected.
	StatusInvalidTopic Status = 1

	// StatusNotAuthorized indicates the client may not use the topic.
	StatusNotAuthorized Status = 2

	// StatusNoSubscription indicates an unsubscribe without a subscription.
	StatusNoSubscription Status = 3

	// StatusBusy indicates the broker cannot accept the request now.
	StatusBusy Status = 4
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusInvalidTopic:
		return "INVALID_TOPIC"
	case StatusNotAuthorized:
		return "NOT_AUTHORIZED"
	case StatusNoSubscription:
		return "NO_SUBSCRIPTION"
	case StatusBusy:
		return "BUSY"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}

// Frame is one control message.
//
// CBOR encoding:
//
//	{
//	  1: type,        // uint8
//	  2: id,          // uint32: correlates ACKs with requests
//	  3: topic,       // string
//	  4: qos,         // uint8: 0=at-most-once, 1=at-least-once
//	  5: ttl,         // uint32 milliseconds, absent = unset
//	  6: credit,      // uint32, subscriptions only
//	  7: retainLink,  // bool, sends only
//	  8: payload,     // bytes
//	  9: status,      // uint8, ACKs only
//	  10: reason      // string, failed ACKs only
//	}
type Frame struct {
	Type       FrameType `cbor:"1,keyasint"`
	ID         uint32    `cbor:"2,keyasint,omitempty"`
	Topic      string    `cbor:"3,keyasint,omitempty"`
	QOS        uint8     `cbor:"4,keyasint,omitempty"`
	TTL        *uint32   `cbor:"5,keyasint,omitempty"`
	Credit     *uint32   `cbor:"6,keyasint,omitempty"`
	RetainLink *bool     `cbor:"7,keyasint,omitempty"`
	Payload    []byte    `cbor:"8,keyasint,omitempty"`
	Status     Status    `cbor:"9,keyasint,omitempty"`
	Reason     string    `cbor:"10,keyasint,omitempty"`
}

// Validate checks the fields required by the frame type.
func (f *Frame) Validate() error {
	if !f.Type.IsValid() {
		return fmt.Errorf("invalid frame type: %d", f.Type)
	}
	switch f.Type {
	case FrameSubscribe, FrameUnsubscribe, FrameSend, FrameDeliver:
		if f.Topic == "" {
			return fmt.Errorf("%s frame requires a topic", f.Type)
		}
	}
	if f.QOS > 1 {
		return fmt.Errorf("invalid qos: %d", f.QOS)
	}
	return nil
}
