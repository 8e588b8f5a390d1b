package network

import (
	"github.com/mqlight/mqlight-go/pkg/promise"
)

// NetworkService establishes connections.
// Implemented by Service.
type NetworkService interface {
	// Connect dials ep and completes p with the established channel, or
	// fails it with a *clienterr.Error. listener is attached to the channel
	// before p completes. A channel has no way to attach a listener later,
	// so a nil listener discards every inbound byte for the channel's
	// lifetime.
	Connect(ep Endpoint, listener Listener, p *promise.Promise[NetworkChannel])
}

// NetworkChannel is one established connection.
// Implemented by Channel.
type NetworkChannel interface {
	// ID returns the channel's unique identifier.
	ID() string

	// Write queues a copy of data. p (may be nil) resolves to true when the
	// write queue was empty as this write completed, or fails if the
	// channel closes first.
	Write(data []byte, p *promise.Promise[bool])

	// Close closes the channel. p (may be nil) always succeeds, whether or
	// not this call performed the close.
	Close(p *promise.Promise[struct{}])

	// SetContext attaches caller state to the channel.
	SetContext(ctx any)

	// Context returns the state attached with SetContext.
	Context() any
}

// Listener receives inbound notifications for a channel. Callbacks for one
// channel are never invoked concurrently.
type Listener interface {
	// OnRead delivers inbound bytes verbatim, in arrival order. The slice
	// is owned by the listener.
	OnRead(ch NetworkChannel, data []byte)

	// OnError reports a transport failure. OnClose follows.
	OnError(ch NetworkChannel, err error)

	// OnClose reports that the channel closed. It is the last callback.
	OnClose(ch NetworkChannel)
}

// Compile-time interface satisfaction checks.
var (
	_ NetworkService = (*Service)(nil)
	_ NetworkChannel = (*Channel)(nil)
)
