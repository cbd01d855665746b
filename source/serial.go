package source

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"go.uber.org/zap"
)

// FrameSize is the wire size of one sample: a little-endian IEEE-754 float32.
const FrameSize = 4

// DefaultBaudRate matches the acquisition board firmware.
const DefaultBaudRate = 115200

// SerialSource decodes float32 frames from a byte stream. Frames split across
// reads are reassembled.
type SerialSource struct {
	r      io.Reader
	closer io.Closer
	logger *zap.Logger

	// idleRetry treats a zero-byte read as a device timeout rather than the
	// end of the stream.
	idleRetry bool

	buf    [FrameSize]byte
	filled int

	frames     int64
	rateFrames int64
	rateStart  time.Time
}

// SerialOption configures a SerialSource.
type SerialOption func(*SerialSource)

// WithSerialLogger sets the logger used for read diagnostics.
func WithSerialLogger(l *zap.Logger) SerialOption {
	return func(s *SerialSource) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithIdleRetry makes io.EOF from the reader mean "no data yet".
func WithIdleRetry(retry bool) SerialOption {
	return func(s *SerialSource) { s.idleRetry = retry }
}

// NewSerial decodes frames from r.
func NewSerial(r io.Reader, opts ...SerialOption) *SerialSource {
	s := &SerialSource{r: r, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// OpenSerial opens a serial device in raw 8N1 mode at baud and returns a
// source reading from it. A read timeout on the device is retried.
func OpenSerial(device string, baud int, opts ...SerialOption) (*SerialSource, error) {
	f, err := os.OpenFile(device, os.O_RDWR|noCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("open serial device: %w", err)
	}
	if err := configureTTY(f, baud); err != nil {
		f.Close()
		return nil, fmt.Errorf("configure %s: %w", device, err)
	}
	opts = append([]SerialOption{WithIdleRetry(true)}, opts...)
	return NewSerial(f, opts...), nil
}

// Next blocks until a full frame has been read.
func (s *SerialSource) Next(ctx context.Context) (float32, error) {
	for s.filled < FrameSize {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := s.r.Read(s.buf[s.filled:])
		s.filled += n
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			if s.idleRetry {
				continue
			}
			if s.filled > 0 {
				s.logger.Warn("serial stream ended mid-frame", zap.Int("bytes", s.filled))
			}
			return 0, io.EOF
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("serial read: %w", err)
	}

	s.filled = 0
	v := math.Float32frombits(binary.LittleEndian.Uint32(s.buf[:]))
	s.frames++
	s.trackRate()
	return v, nil
}

func (s *SerialSource) trackRate() {
	now := time.Now()
	if s.rateStart.IsZero() {
		s.rateStart = now
	}
	s.rateFrames++
	if elapsed := now.Sub(s.rateStart); elapsed >= time.Second {
		s.logger.Debug("serial rate",
			zap.Float64("frames_per_sec", float64(s.rateFrames)/elapsed.Seconds()))
		s.rateFrames = 0
		s.rateStart = now
	}
}

// Frames returns the number of complete frames decoded.
func (s *SerialSource) Frames() int64 { return s.frames }

// Close closes the device, unblocking a pending read where the platform
// allows it.
func (s *SerialSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// EncodeFrame appends the wire encoding of v to dst.
func EncodeFrame(dst []byte, v float32) []byte {
	return binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
}
