// Package network provides the non-blocking TCP/TLS transport of the client
// runtime.
//
// A Service establishes connections; each established connection is a
// Channel. Every call returns immediately and reports its outcome through a
// promise or a Listener callback:
//
//	svc := network.NewService(network.DefaultConfig())
//	svc.Connect(ep, listener, promise.New(func(ch network.NetworkChannel, err error) {
//	    if err != nil { ... }
//	    ch.Write(frame, promise.New(func(queueEmpty bool, err error) { ... }))
//	}))
//
// # Write Pipeline
//
// A channel copies each buffer handed to Write and queues it in FIFO order.
// At most one write is in flight per channel. A socket write blocks until
// the transport accepts the bytes, so its completion is the writability
// edge that starts the next queued write. Channel.Writable applies
// write-buffer water marks to the bytes accepted by Write and not yet
// written, queued and in flight together. Each write promise resolves to
// whether the queue was empty when that write finished; both are
// backpressure signals for producers.
//
// # Lifecycle
//
// Closing is idempotent: the listener sees OnClose exactly once, whether
// the close was requested locally, the peer disconnected, or a transport
// error occurred (reported first through OnError). No OnRead or OnError
// follows OnClose. Writes still queued at close fail with ErrChannelClosed.
//
// # Shared Workers
//
// All goroutines serving connections belong to a worker group shared by
// every channel of a Service. The group is created on first use and
// reference counted: each connect attempt holds a reference, handed to the
// channel on success. When the last reference is released the group is
// drained within a grace period and the service returns to its initial
// state; the next connect creates a new group.
//
// # TLS
//
// TLS connections enable every supported protocol except SSLv2/SSLv3 and
// every supported cipher suite except those in the NULL, EXPORT, DES, RC4,
// MD5, PSK, SRP and CAMELLIA categories. Trust material is read from the
// endpoint's certificate file, as a PKCS#12 keystore first and a PEM bundle
// otherwise, or taken from the system pool when no file is given.
package network
