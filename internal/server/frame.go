package server

import (
	"bytes"
	"errors"
	"io"
	"os"
	"time"
)

// ErrFrameTooLarge is returned when a request exceeds the byte limit.
var ErrFrameTooLarge = errors.New("request frame too large")

// DefaultFrameIdle is how long a NUL-terminated request may sit without new
// data before it is taken as complete.
const DefaultFrameIdle = 100 * time.Millisecond

type deadlineReader interface {
	io.Reader
	SetReadDeadline(t time.Time) error
}

// frameReader collects one request. A frame ends when the peer closes or
// half-closes, when complete reports that every expected argument arrived,
// or when a NUL-terminated frame has been idle for idle. Data that stops
// mid-argument is never taken as a frame.
type frameReader struct {
	max      int
	idle     time.Duration
	deadline time.Time // zero means none
	complete func(args []string) bool
}

func (fr frameReader) read(r deadlineReader) ([]byte, error) {
	var frame []byte
	buf := make([]byte, 512)
	for {
		terminated := len(frame) > 0 && frame[len(frame)-1] == 0
		if terminated && fr.complete != nil && fr.complete(SplitArgs(frame)) {
			return frame, nil
		}

		deadline := fr.deadline
		if terminated && fr.idle > 0 {
			idleAt := time.Now().Add(fr.idle)
			if deadline.IsZero() || idleAt.Before(deadline) {
				deadline = idleAt
			}
		}
		if err := r.SetReadDeadline(deadline); err != nil {
			return nil, err
		}

		n, err := r.Read(buf)
		frame = append(frame, buf[:n]...)
		if len(frame) > fr.max {
			return nil, ErrFrameTooLarge
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			return frame, nil
		case errors.Is(err, os.ErrDeadlineExceeded) && n > 0:
		case errors.Is(err, os.ErrDeadlineExceeded) && terminated:
			return frame, nil
		default:
			return nil, err
		}
	}
}

// SplitArgs splits a frame of NUL-terminated strings. A missing final
// terminator is tolerated.
func SplitArgs(frame []byte) []string {
	frame = bytes.TrimSuffix(frame, []byte{0})
	if len(frame) == 0 {
		return nil
	}
	parts := bytes.Split(frame, []byte{0})
	args := make([]string, len(parts))
	for i, p := range parts {
		args[i] = string(p)
	}
	return args
}

// EncodeArgs is the inverse of SplitArgs.
func EncodeArgs(args []string) []byte {
	var buf bytes.Buffer
	for _, a := range args {
		buf.WriteString(a)
		buf.WriteByte(0)
	}
	return buf.Bytes()
}
