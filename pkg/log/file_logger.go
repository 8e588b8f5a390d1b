package log

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	eventEncMode cbor.EncMode
	eventDecMode cbor.DecMode
)

func init() {
	var err error

	eventEncMode, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("log: cbor encoder mode: %v", err))
	}

	eventDecMode, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet,
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("log: cbor decoder mode: %v", err))
	}
}

// EncodeEvent encodes an Event to CBOR bytes.
func EncodeEvent(event Event) ([]byte, error) {
	return eventEncMode.Marshal(event)
}

// DecodeEvent decodes CBOR bytes into an Event.
func DecodeEvent(data []byte) (Event, error) {
	var event Event
	if err := eventDecMode.Unmarshal(data, &event); err != nil {
		return Event{}, err
	}
	return event, nil
}

// StreamLogger writes CBOR-encoded events to a writer.
// It is safe for concurrent use.
type StreamLogger struct {
	w       io.WriteCloser
	encoder *cbor.Encoder
	mu      sync.Mutex
	closed  bool
}

// NewStreamLogger creates a StreamLogger writing to w. Close closes w.
func NewStreamLogger(w io.WriteCloser) *StreamLogger {
	return &StreamLogger{
		w:       w,
		encoder: eventEncMode.NewEncoder(w),
	}
}

// NewFileLogger creates a StreamLogger appending to the file at path.
// The file is created with permissions 0644 if it doesn't exist.
func NewFileLogger(path string) (*StreamLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return NewStreamLogger(f), nil
}

// RotationConfig configures a size-rotated event log file.
type RotationConfig struct {
	// Path of the active log file.
	Path string

	// MaxSizeMB is the size in megabytes at which the file is rotated (default: 100).
	MaxSizeMB int

	// MaxBackups is the number of rotated files to keep (0 keeps all).
	MaxBackups int

	// MaxAgeDays is the age after which rotated files are removed (0 keeps all).
	MaxAgeDays int

	// Compress gzips rotated files.
	Compress bool
}

// NewRotatingFileLogger creates a StreamLogger over a lumberjack rotating
// file. The file is opened lazily on the first event.
func NewRotatingFileLogger(cfg RotationConfig) *StreamLogger {
	return NewStreamLogger(&lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})
}

// Log writes an event. After Close, events are silently dropped.
func (l *StreamLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}

	// Encoding errors are dropped; capture must not disrupt I/O.
	_ = l.encoder.Encode(event)
}

// Close closes the underlying writer. It is safe to call Close multiple times.
func (l *StreamLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}

	l.closed = true
	return l.w.Close()
}

var _ Logger = (*StreamLogger)(nil)
