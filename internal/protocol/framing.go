package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
)

// MaxFrameSize bounds a single payload. Guards against a corrupt length
// prefix committing the reader to gigabytes.
const MaxFrameSize = 64 << 20

// ErrChannelClosed reports that the peer closed the channel: either a clean
// EOF between frames or a short read inside one. Both end the worker loop.
var ErrChannelClosed = errors.New("channel closed")

// ReadFrame reads one length-prefixed payload. A zero-length payload is
// valid and returns an empty (non-nil) slice; a read returning fewer bytes
// than the prefix declares yields ErrChannelClosed.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrChannelClosed
		}
		return nil, fmt.Errorf("reading frame header: %w", err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if length == 0 {
		return []byte{}, nil
	}
	if length > MaxFrameSize {
		return nil, fmt.Errorf("frame length %d exceeds maximum %d", length, MaxFrameSize)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrChannelClosed
		}
		return nil, fmt.Errorf("reading frame payload: %w", err)
	}
	return payload, nil
}

// WriteFrame writes one length-prefixed payload.
func WriteFrame(w io.Writer, payload []byte) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("writing frame payload: %w", err)
		}
	}
	return nil
}

// FrameWriter serializes frame writes from multiple goroutines (the
// foreground loop and per-session pollers share one channel to the peer).
type FrameWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewFrameWriter wraps w with a write lock.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// Write sends one frame atomically with respect to other writers.
func (fw *FrameWriter) Write(payload []byte) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return WriteFrame(fw.w, payload)
}
