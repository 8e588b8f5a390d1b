package network

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mqlight/mqlight-go/pkg/clienterr"
	"github.com/mqlight/mqlight-go/pkg/promise"
)

func TestWriteFIFOAndQueueEmpty(t *testing.T) {
	svc, peers := newPipeService(t, Config{})
	ch, peer := connectPipe(t, svc, peers, newRecordingListener())

	p1 := promise.New[bool](nil)
	p2 := promise.New[bool](nil)
	p3 := promise.New[bool](nil)
	ch.Write([]byte("aaa"), p1)
	ch.Write([]byte("bbb"), p2)
	ch.Write([]byte("ccc"), p3)

	// The first write is in flight, the other two wait behind it.
	assert.Equal(t, 2, ch.Queued())
	assert.Equal(t, promise.StatePending, p1.State())

	assert.Equal(t, "aaabbbccc", string(readN(t, peer, 9)))

	empty1, err := await(t, p1)
	require.NoError(t, err)
	empty2, err := await(t, p2)
	require.NoError(t, err)
	empty3, err := await(t, p3)
	require.NoError(t, err)

	assert.False(t, empty1)
	assert.False(t, empty2)
	assert.True(t, empty3)
}

func TestWriteCopiesBuffer(t *testing.T) {
	svc, peers := newPipeService(t, Config{})
	ch, peer := connectPipe(t, svc, peers, newRecordingListener())

	buf := []byte("abc")
	ch.Write(buf, nil)
	buf[0] = 'x'

	assert.Equal(t, "abc", string(readN(t, peer, 3)))
}

func TestWritabilityTracksBufferedBytes(t *testing.T) {
	svc, peers := newPipeService(t, Config{WaterMarks: WaterMarks{High: 4, Low: 2}})
	ch, peer := connectPipe(t, svc, peers, newRecordingListener())

	p1 := promise.New[bool](nil)
	p2 := promise.New[bool](nil)
	ch.Write([]byte("abc"), p1)
	assert.True(t, ch.Writable())
	ch.Write([]byte("def"), p2)
	assert.False(t, ch.Writable())

	// Three bytes are still buffered, above the low mark.
	assert.Equal(t, "abc", string(readN(t, peer, 3)))
	_, err := await(t, p1)
	require.NoError(t, err)
	assert.False(t, ch.Writable())

	assert.Equal(t, "def", string(readN(t, peer, 3)))
	_, err = await(t, p2)
	require.NoError(t, err)
	assert.True(t, ch.Writable())
}

func TestWaterMarks(t *testing.T) {
	svc, peers := newPipeService(t, Config{WaterMarks: WaterMarks{High: 4, Low: 2}})
	ch, peer := connectPipe(t, svc, peers, newRecordingListener())

	p := promise.New[bool](nil)
	ch.Write([]byte("12345678"), p)
	assert.False(t, ch.Writable())

	readN(t, peer, 8)
	_, err := await(t, p)
	require.NoError(t, err)
	assert.True(t, ch.Writable())
}

func TestNegativeLowWaterMarkDoesNotStall(t *testing.T) {
	svc, peers := newPipeService(t, Config{WaterMarks: WaterMarks{High: 4, Low: -1}})
	assert.Equal(t, WaterMarks{High: 4, Low: 0}, svc.config.WaterMarks)
	ch, peer := connectPipe(t, svc, peers, newRecordingListener())

	p1 := promise.New[bool](nil)
	ch.Write([]byte("12345678"), p1)
	readN(t, peer, 8)
	_, err := await(t, p1)
	require.NoError(t, err)
	assert.True(t, ch.Writable())

	p2 := promise.New[bool](nil)
	ch.Write([]byte("ab"), p2)
	assert.Equal(t, "ab", string(readN(t, peer, 2)))
	empty, err := await(t, p2)
	require.NoError(t, err)
	assert.True(t, empty)
	assert.Zero(t, ch.Queued())
}

func TestCloseIsIdempotent(t *testing.T) {
	svc, peers := newPipeService(t, Config{})
	l := &stubListener{}
	l.On("OnClose", mock.Anything).Return().Once()
	ch, _ := connectPipe(t, svc, peers, l)

	p1 := promise.New[struct{}](nil)
	p2 := promise.New[struct{}](nil)
	ch.Close(p1)
	ch.Close(p2)

	_, err := await(t, p1)
	require.NoError(t, err)
	_, err = await(t, p2)
	require.NoError(t, err)

	l.AssertExpectations(t)
	l.AssertNotCalled(t, "OnError", mock.Anything, mock.Anything)
	assert.Equal(t, ChannelClosed, ch.State())
}

func TestWriteAfterCloseFails(t *testing.T) {
	svc, peers := newPipeService(t, Config{})
	l := newRecordingListener()
	ch, _ := connectPipe(t, svc, peers, l)

	ch.Close(nil)
	l.waitClosed(t)

	p := promise.New[bool](nil)
	ch.Write([]byte("late"), p)
	_, err := await(t, p)
	assert.ErrorIs(t, err, ErrChannelClosed)
	assert.Equal(t, clienterr.KindTransport, clienterr.KindOf(err))
}

func TestCloseFailsQueuedWrites(t *testing.T) {
	svc, peers := newPipeService(t, Config{})
	l := newRecordingListener()
	ch, _ := connectPipe(t, svc, peers, l)

	// Nothing reads the peer, so "one" stays in flight and "two" queued.
	p1 := promise.New[bool](nil)
	p2 := promise.New[bool](nil)
	ch.Write([]byte("one"), p1)
	ch.Write([]byte("two"), p2)

	ch.Close(nil)

	_, err := await(t, p1)
	assert.ErrorIs(t, err, ErrChannelClosed)
	_, err = await(t, p2)
	assert.ErrorIs(t, err, ErrChannelClosed)
	assert.Equal(t, uint64(2), svc.Stats().WritesFailed)
}

func TestReadDelivered(t *testing.T) {
	svc, peers := newPipeService(t, Config{})
	l := newRecordingListener()
	_, peer := connectPipe(t, svc, peers, l)

	_, err := peer.Write([]byte("hello"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		_, reads, _ := l.snapshot()
		return len(reads) == 1
	}, waitFor, time.Millisecond)

	_, reads, _ := l.snapshot()
	assert.Equal(t, "hello", string(reads[0]))
}

func TestPeerCloseNotifiesOnce(t *testing.T) {
	svc, peers := newPipeService(t, Config{})
	l := newRecordingListener()
	ch, peer := connectPipe(t, svc, peers, l)

	require.NoError(t, peer.Close())
	l.waitClosed(t)

	// A local close afterwards is a no-op that still succeeds.
	p := promise.New[struct{}](nil)
	ch.Close(p)
	_, err := await(t, p)
	require.NoError(t, err)

	events, _, _ := l.snapshot()
	assert.Equal(t, []string{"close"}, events)
}

// faultyConn fails reads on demand.
type faultyConn struct {
	net.Conn
	fault  chan error
	done   chan struct{}
	closed sync.Once
}

func (c *faultyConn) Read([]byte) (int, error) {
	select {
	case err := <-c.fault:
		return 0, err
	case <-c.done:
		return 0, net.ErrClosed
	}
}

func (c *faultyConn) Close() error {
	c.closed.Do(func() { close(c.done) })
	return c.Conn.Close()
}

func TestTransportErrorNotifiesErrorThenClose(t *testing.T) {
	svc := NewService(Config{})
	fc := &faultyConn{fault: make(chan error, 1), done: make(chan struct{})}
	svc.dial = func(_ context.Context, _, _ string) (net.Conn, error) {
		client, server := net.Pipe()
		t.Cleanup(func() { server.Close() })
		fc.Conn = client
		return fc, nil
	}

	l := newRecordingListener()
	p := promise.New[NetworkChannel](nil)
	svc.Connect(testEndpoint(), l, p)
	_, err := await(t, p)
	require.NoError(t, err)

	reset := errors.New("connection reset by peer")
	fc.fault <- reset
	l.waitClosed(t)

	events, _, errs := l.snapshot()
	assert.Equal(t, []string{"error", "close"}, events)
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], reset)
	assert.Equal(t, clienterr.KindTransport, clienterr.KindOf(errs[0]))
}

func TestNilListenerDiscardsReads(t *testing.T) {
	svc, peers := newPipeService(t, Config{})
	ch, peer := connectPipe(t, svc, peers, nil)

	_, err := peer.Write([]byte("early"))
	require.NoError(t, err)
	_, err = peer.Write([]byte("later"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return svc.Stats().BytesRead == 10
	}, waitFor, time.Millisecond)
	assert.Equal(t, ChannelOpen, ch.State())

	// Writes and close still work without a listener.
	p := promise.New[bool](nil)
	ch.Write([]byte("out"), p)
	assert.Equal(t, "out", string(readN(t, peer, 3)))
	_, err = await(t, p)
	require.NoError(t, err)

	closed := promise.New[struct{}](nil)
	ch.Close(closed)
	_, err = await(t, closed)
	require.NoError(t, err)
	assert.Equal(t, ChannelClosed, ch.State())
}

func TestListenerMayCloseFromCallback(t *testing.T) {
	svc, peers := newPipeService(t, Config{})
	l := newRecordingListener()
	l.onRead = func(ch NetworkChannel, _ []byte) {
		ch.Close(nil)
	}
	_, peer := connectPipe(t, svc, peers, l)

	_, err := peer.Write([]byte("bye"))
	require.NoError(t, err)
	l.waitClosed(t)

	events, _, _ := l.snapshot()
	assert.Equal(t, []string{"read", "close"}, events)
}

func TestChannelContext(t *testing.T) {
	svc, peers := newPipeService(t, Config{})
	ch, _ := connectPipe(t, svc, peers, nil)

	assert.Nil(t, ch.Context())
	ch.SetContext("conn-1")
	assert.Equal(t, "conn-1", ch.Context())
	assert.NotEmpty(t, ch.ID())
	assert.Equal(t, testEndpoint(), ch.Endpoint())
}
