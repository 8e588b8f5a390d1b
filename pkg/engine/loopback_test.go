package engine

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mqlight/mqlight-go/pkg/network"
	"github.com/mqlight/mqlight-go/pkg/promise"
	"github.com/mqlight/mqlight-go/pkg/wire"
)

// startBroker runs a minimal broker on a loopback listener. It acks every
// subscribe, delivers every send back to the sender and hangs up on close.
func startBroker(t *testing.T) network.Endpoint {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		dec := wire.NewFrameDecoder(0)
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			frames, err := dec.Feed(buf[:n])
			if err != nil {
				return
			}
			for _, f := range frames {
				var reply *wire.Frame
				switch f.Type {
				case wire.FrameSubscribe:
					reply = &wire.Frame{Type: wire.FrameAck, ID: f.ID, Status: wire.StatusSuccess}
				case wire.FrameSend:
					reply = &wire.Frame{Type: wire.FrameDeliver, ID: f.ID, Topic: f.Topic, QOS: f.QOS, Payload: f.Payload}
				case wire.FrameClose:
					return
				default:
					continue
				}
				data, err := wire.Encode(reply)
				if err != nil {
					return
				}
				if _, err := conn.Write(data); err != nil {
					return
				}
			}
		}
	}()

	host, port, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)
	return network.Endpoint{Host: host, Port: p}
}

func TestLoopbackRoundTrip(t *testing.T) {
	ep := startBroker(t)
	svc := network.NewService(network.DefaultConfig())

	acks := make(chan Ack, 1)
	deliveries := make(chan Delivery, 1)
	closed := make(chan struct{})
	handler := HandlerFuncs{
		Ack:     func(_ *Connection, a Ack) { acks <- a },
		Deliver: func(_ *Connection, d Delivery) { deliveries <- d },
		Close:   func(*Connection) { close(closed) },
	}

	cp := promise.New[*Connection](nil)
	Connect(svc, ep, Config{Handler: handler}, cp)
	select {
	case <-cp.Done():
	case <-time.After(waitFor):
		t.Fatal("connect did not complete")
	}
	conn, err := cp.Result()
	require.NoError(t, err)

	sub, err := NewSubscribeRequest(conn, "loop/#", AtLeastOnce, 10, 0)
	require.NoError(t, err)
	conn.Submit(sub, nil)

	select {
	case a := <-acks:
		assert.True(t, a.Status.IsSuccess())
	case <-time.After(waitFor):
		t.Fatal("no ack")
	}

	send, err := NewSendRequest(conn, "loop/1", []byte("ping"), DefaultSendOptions())
	require.NoError(t, err)
	conn.Submit(send, nil)

	select {
	case d := <-deliveries:
		assert.Equal(t, "loop/1", d.Topic)
		assert.Equal(t, []byte("ping"), d.Data)
	case <-time.After(waitFor):
		t.Fatal("no delivery")
	}

	conn.Close(nil)
	select {
	case <-closed:
	case <-time.After(waitFor):
		t.Fatal("connection not closed")
	}
	assert.True(t, conn.Closed())
	assert.Contains(t, conn.Subscriptions(), "loop/#")
}
