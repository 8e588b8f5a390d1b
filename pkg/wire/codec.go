package wire

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Framing constants.
const (
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4

	// DefaultMaxFrameSize bounds the CBOR body of a frame (1 MB).
	DefaultMaxFrameSize = 1 << 20
)

// Framing errors.
var (
	// ErrFrameTooLarge indicates a frame body exceeds the maximum size.
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrFrameEmpty indicates a zero-length frame body.
	ErrFrameEmpty = errors.New("frame is empty")

	// ErrFrameTruncated indicates fewer bytes than the length prefix
	// announces.
	ErrFrameTruncated = errors.New("frame truncated")
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Unknown keys are ignored so newer peers can add fields.
	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
		MaxMapPairs: 64,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Marshal encodes a frame body without the length prefix.
func Marshal(f *Frame) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}
	return encMode.Marshal(f)
}

// Unmarshal decodes a frame body without the length prefix.
func Unmarshal(body []byte) (*Frame, error) {
	var f Frame
	if err := decMode.Unmarshal(body, &f); err != nil {
		return nil, fmt.Errorf("failed to decode frame: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid frame: %w", err)
	}
	return &f, nil
}

// Encode returns the length-prefixed encoding of f.
func Encode(f *Frame) ([]byte, error) {
	body, err := Marshal(f)
	if err != nil {
		return nil, err
	}
	if len(body) > DefaultMaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}

	out := make([]byte, LengthPrefixSize+len(body))
	binary.BigEndian.PutUint32(out, uint32(len(body)))
	copy(out[LengthPrefixSize:], body)
	return out, nil
}

// Decode decodes exactly one length-prefixed frame.
func Decode(data []byte) (*Frame, error) {
	if len(data) < LengthPrefixSize {
		return nil, ErrFrameTruncated
	}
	size := binary.BigEndian.Uint32(data)
	if err := checkSize(size, DefaultMaxFrameSize); err != nil {
		return nil, err
	}
	body := data[LengthPrefixSize:]
	if uint32(len(body)) < size {
		return nil, ErrFrameTruncated
	}
	if uint32(len(body)) > size {
		return nil, fmt.Errorf("%d trailing bytes after frame", uint32(len(body))-size)
	}
	return Unmarshal(body)
}

func checkSize(size uint32, limit int) error {
	if size == 0 {
		return ErrFrameEmpty
	}
	if int64(size) > int64(limit) {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}
	return nil
}

// FrameDecoder reassembles frames from arbitrary chunks of a byte stream.
// It is not safe for concurrent use.
type FrameDecoder struct {
	buf     []byte
	maxSize int
}

// NewFrameDecoder creates a decoder accepting frame bodies up to maxSize
// bytes. Zero uses DefaultMaxFrameSize.
func NewFrameDecoder(maxSize int) *FrameDecoder {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &FrameDecoder{maxSize: maxSize}
}

// Feed appends chunk and returns every frame it completes, in order.
// After an error the stream is unrecoverable and the decoder should be
// discarded.
func (d *FrameDecoder) Feed(chunk []byte) ([]*Frame, error) {
	d.buf = append(d.buf, chunk...)

	var frames []*Frame
	for len(d.buf) >= LengthPrefixSize {
		size := binary.BigEndian.Uint32(d.buf)
		if err := checkSize(size, d.maxSize); err != nil {
			return frames, err
		}
		end := LengthPrefixSize + int(size)
		if len(d.buf) < end {
			break
		}

		f, err := Unmarshal(d.buf[LengthPrefixSize:end])
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
		d.buf = d.buf[end:]
	}

	if len(d.buf) == 0 {
		d.buf = nil
	}
	return frames, nil
}

// Buffered returns the number of bytes held for an incomplete frame.
func (d *FrameDecoder) Buffered() int {
	return len(d.buf)
}
