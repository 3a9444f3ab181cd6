package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/switches/sensorbridge/pkg/log"
	"github.com/switches/sensorbridge/pkg/wire"
)

// Framing constants.
const (
	// LengthPrefixSize is the size of the big-endian length prefix.
	LengthPrefixSize = 4

	// DefaultMaxMessageSize bounds a frame payload (64 KB). A sensor list
	// with extended descriptors is the largest regular payload.
	DefaultMaxMessageSize = 65536

	// MaxLogFrameDataSize caps the payload bytes copied into a frame log
	// event (4 KB).
	MaxLogFrameDataSize = 4096
)

// Framing errors.
var (
	ErrMessageTooLarge = errors.New("message too large")
	ErrMessageEmpty    = errors.New("message is empty")
	ErrFrameTruncated  = errors.New("frame truncated")
)

// frameLog records frames of one connection in the protocol log.
type frameLog struct {
	logger log.Logger
	connID string
}

func (l *frameLog) set(logger log.Logger, connID string) {
	l.logger = logger
	l.connID = connID
}

// record logs data with the channel and kind of the bridge message it
// carries. Undecodable payloads are logged without them.
func (l *frameLog) record(data []byte, dir log.Direction) {
	if l.logger == nil {
		return
	}
	l.logger.Log(frameEvent(l.connID, data, dir))
}

func frameEvent(connID string, data []byte, dir log.Direction) log.Event {
	frame := &log.FrameEvent{Size: FrameSize(len(data)), Data: data}
	if len(data) > MaxLogFrameDataSize {
		frame.Data = data[:MaxLogFrameDataSize]
		frame.Truncated = true
	}

	ev := log.Event{
		Timestamp:    time.Now(),
		ConnectionID: connID,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame:        frame,
	}
	if h, err := wire.PeekHeader(data); err == nil {
		frame.Kind = h.Kind
		ev.Channel = h.Channel
	}
	return ev
}

// checkSize validates a payload length against max.
func checkSize(n, max uint32) error {
	switch {
	case n == 0:
		return ErrMessageEmpty
	case n > max:
		return fmt.Errorf("%w: %d > %d", ErrMessageTooLarge, n, max)
	}
	return nil
}

// FrameWriter writes length-prefixed frames. Safe for concurrent use.
type FrameWriter struct {
	mu      sync.Mutex
	w       io.Writer
	maxSize uint32
	log     frameLog
}

// NewFrameWriter creates a frame writer with DefaultMaxMessageSize.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return NewFrameWriterWithMaxSize(w, DefaultMaxMessageSize)
}

// NewFrameWriterWithMaxSize creates a frame writer. A zero maxSize selects
// DefaultMaxMessageSize.
func NewFrameWriterWithMaxSize(w io.Writer, maxSize uint32) *FrameWriter {
	if maxSize == 0 {
		maxSize = DefaultMaxMessageSize
	}
	return &FrameWriter{w: w, maxSize: maxSize}
}

// SetLogger enables frame logging. Pass nil to disable it.
func (fw *FrameWriter) SetLogger(logger log.Logger, connID string) {
	fw.log.set(logger, connID)
}

// WriteFrame writes data as one frame in a single Write call, so frames of
// concurrent writers never interleave. An oversized event is rejected
// with the channel it was meant for.
func (fw *FrameWriter) WriteFrame(data []byte) error {
	if err := checkSize(uint32(len(data)), fw.maxSize); err != nil {
		if h, perr := wire.PeekHeader(data); perr == nil && h.Channel != "" {
			return fmt.Errorf("%s %s: %w", h.Kind, h.Channel, err)
		}
		return err
	}

	frame := make([]byte, LengthPrefixSize+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[LengthPrefixSize:], data)

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if _, err := fw.w.Write(frame); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	fw.log.record(data, log.DirectionOut)
	return nil
}

// FrameReader reads length-prefixed frames. Not safe for concurrent use.
type FrameReader struct {
	r       io.Reader
	maxSize uint32
	prefix  [LengthPrefixSize]byte
	log     frameLog
}

// NewFrameReader creates a frame reader with DefaultMaxMessageSize.
func NewFrameReader(r io.Reader) *FrameReader {
	return NewFrameReaderWithMaxSize(r, DefaultMaxMessageSize)
}

// NewFrameReaderWithMaxSize creates a frame reader. A zero maxSize selects
// DefaultMaxMessageSize.
func NewFrameReaderWithMaxSize(r io.Reader, maxSize uint32) *FrameReader {
	if maxSize == 0 {
		maxSize = DefaultMaxMessageSize
	}
	return &FrameReader{r: r, maxSize: maxSize}
}

// SetLogger enables frame logging. Pass nil to disable it.
func (fr *FrameReader) SetLogger(logger log.Logger, connID string) {
	fr.log.set(logger, connID)
}

// ReadFrame returns the next frame payload. A clean end of stream between
// frames is io.EOF; anything cut short is ErrFrameTruncated.
func (fr *FrameReader) ReadFrame() ([]byte, error) {
	if _, err := io.ReadFull(fr.r, fr.prefix[:]); err != nil {
		if err == io.EOF {
			return nil, err
		}
		return nil, readError("length prefix", err)
	}

	n := binary.BigEndian.Uint32(fr.prefix[:])
	if err := checkSize(n, fr.maxSize); err != nil {
		return nil, err
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(fr.r, payload); err != nil {
		return nil, readError("payload", err)
	}
	fr.log.record(payload, log.DirectionIn)
	return payload, nil
}

func readError(part string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrFrameTruncated
	}
	return fmt.Errorf("failed to read %s: %w", part, err)
}

// Framer reads and writes frames on one connection.
type Framer struct {
	*FrameReader
	*FrameWriter
}

// NewFramer creates a framer with DefaultMaxMessageSize.
func NewFramer(rw io.ReadWriter) *Framer {
	return NewFramerWithMaxSize(rw, DefaultMaxMessageSize)
}

// NewFramerWithMaxSize creates a framer with the same limit in both
// directions.
func NewFramerWithMaxSize(rw io.ReadWriter, maxSize uint32) *Framer {
	return &Framer{
		FrameReader: NewFrameReaderWithMaxSize(rw, maxSize),
		FrameWriter: NewFrameWriterWithMaxSize(rw, maxSize),
	}
}

// SetLogger enables frame logging in both directions.
func (f *Framer) SetLogger(logger log.Logger, connID string) {
	f.FrameReader.SetLogger(logger, connID)
	f.FrameWriter.SetLogger(logger, connID)
}

// FrameSize returns the size on the wire of a payload of payloadSize bytes.
func FrameSize(payloadSize int) int {
	return LengthPrefixSize + payloadSize
}
