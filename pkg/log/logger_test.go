package log

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func sampleEvents() []Event {
	base := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
	empty := true
	credit := uint32(10)
	return []Event{
		{
			Timestamp:    base,
			ConnectionID: "chan-1",
			Direction:    DirectionOut,
			Layer:        LayerTransport,
			Category:     CategoryData,
			RemoteAddr:   "broker:5672",
			Frame:        &FrameEvent{Size: 3, Data: []byte{1, 2, 3}, QueueEmpty: &empty},
		},
		{
			Timestamp:    base.Add(time.Second),
			ConnectionID: "chan-1",
			Direction:    DirectionOut,
			Layer:        LayerEngine,
			Category:     CategoryData,
			Request:      &RequestEvent{Type: "SUBSCRIBE", Topic: "sports/#", QOS: "AT_LEAST_ONCE", Credit: &credit},
		},
		{
			Timestamp:    base.Add(2 * time.Second),
			ConnectionID: "chan-2",
			Layer:        LayerTimer,
			Category:     CategoryTimer,
			Timer:        &TimerEvent{Delay: 250 * time.Millisecond, Outcome: "FIRED"},
		},
	}
}

func TestEncodeDecodeEventPreservesNanoseconds(t *testing.T) {
	ev := sampleEvents()[0]

	data, err := EncodeEvent(ev)
	require.NoError(t, err)

	got, err := DecodeEvent(data)
	require.NoError(t, err)
	assert.True(t, ev.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, ev.Frame.Data, got.Frame.Data)
	require.NotNil(t, got.Frame.QueueEmpty)
	assert.True(t, *got.Frame.QueueEmpty)
}

func TestFileLoggerAndReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.mlog")

	logger, err := NewFileLogger(path)
	require.NoError(t, err)
	for _, ev := range sampleEvents() {
		logger.Log(ev)
	}
	require.NoError(t, logger.Close())
	require.NoError(t, logger.Close())

	// Dropped after close.
	logger.Log(sampleEvents()[0])

	t.Run("All", func(t *testing.T) {
		r, err := OpenReader(path, Filter{})
		require.NoError(t, err)
		defer r.Close()

		events, err := r.All()
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, "SUBSCRIBE", events[1].Request.Type)
	})

	t.Run("FilterByConnection", func(t *testing.T) {
		r, err := OpenReader(path, Filter{ConnectionID: "chan-2"})
		require.NoError(t, err)
		defer r.Close()

		ev, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, "FIRED", ev.Timer.Outcome)

		_, err = r.Next()
		assert.Equal(t, io.EOF, err)
	})

	t.Run("FilterByLayerAndTime", func(t *testing.T) {
		layer := LayerEngine
		since := sampleEvents()[0].Timestamp.Add(time.Millisecond)
		r, err := OpenReader(path, Filter{Layer: &layer, Since: &since})
		require.NoError(t, err)
		defer r.Close()

		events, err := r.All()
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, LayerEngine, events[0].Layer)
	})
}

func TestRotatingFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rotating.mlog")

	logger := NewRotatingFileLogger(RotationConfig{Path: path, MaxSizeMB: 1})
	for _, ev := range sampleEvents() {
		logger.Log(ev)
	}
	require.NoError(t, logger.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	events, err := NewReader(f, Filter{}).All()
	require.NoError(t, err)
	assert.Len(t, events, 3)
	require.NoError(t, f.Close())
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	slogger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	NewSlogAdapter(slogger).Log(sampleEvents()[1])

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "chan-1", entry["conn_id"])
	assert.Equal(t, "ENGINE", entry["layer"])
	assert.Equal(t, "SUBSCRIBE", entry["request"])
	assert.Equal(t, "sports/#", entry["topic"])
	assert.Equal(t, float64(10), entry["credit"])
}

func TestZapAdapter(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	adapter := NewZapAdapter(zap.New(core))

	adapter.Log(sampleEvents()[2])

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "TIMER", entries[0].Message)
	assert.Equal(t, "protocol", entries[0].LoggerName)
	fields := entries[0].ContextMap()
	assert.Equal(t, "FIRED", fields["outcome"])
	assert.Equal(t, "chan-2", fields["conn_id"])
}

func TestMultiLogger(t *testing.T) {
	var mu sync.Mutex
	var a, b []Event
	m := NewMultiLogger(
		LoggerFunc(func(e Event) { mu.Lock(); a = append(a, e); mu.Unlock() }),
		nil,
		LoggerFunc(func(e Event) { mu.Lock(); b = append(b, e); mu.Unlock() }),
	)

	for _, ev := range sampleEvents() {
		m.Log(ev)
	}

	assert.Len(t, a, 3)
	assert.Len(t, b, 3)
}

func TestOrNoop(t *testing.T) {
	assert.Equal(t, NoopLogger{}, OrNoop(nil))

	l := LoggerFunc(func(Event) {})
	assert.NotNil(t, OrNoop(l))
}
