// Package server accepts connections from the Gemini server, reads one
// NUL-separated argument vector per connection and answers with a single
// status byte.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/slogemann1/gemini-tagesschau-mirror/internal/apperr"
	"github.com/slogemann1/gemini-tagesschau-mirror/internal/logging"
)

const (
	DefaultMaxConns        = 64
	DefaultMaxRequestBytes = 4096

	maxAcceptBackoff = time.Second
)

// Handler executes one argument vector and returns the status byte.
type Handler interface {
	Execute(ctx context.Context, args []string) byte
}

// Sweeper is poked once per accepted connection.
type Sweeper interface {
	AsyncSweep() bool
}

type Server struct {
	Addr    string
	Handler Handler
	Sweeper Sweeper // optional

	// MaxConns bounds the number of connections handled at once. Accepting
	// pauses while all workers are busy.
	MaxConns        int
	MaxRequestBytes int
	ReadTimeout     time.Duration // zero means no deadline

	// FrameComplete reports whether an argument vector holds everything the
	// handler reads, letting the frame end before the peer closes. Without
	// it a frame ends on close or after FrameIdle of silence.
	FrameComplete func(args []string) bool
	FrameIdle     time.Duration // zero means DefaultFrameIdle

	Logger *slog.Logger

	workers sync.WaitGroup
}

// ListenAndServe listens on s.Addr and serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done, then closes ln and waits
// for running workers. It returns nil on a context shutdown.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	logger := s.logger()
	sem := semaphore.NewWeighted(int64(s.maxConns()))

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		ln.Close()
	}()

	logger.Info("listening", "addr", ln.Addr().String(), "max_connections", s.maxConns())

	var backoff time.Duration
	for {
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}

		conn, err := ln.Accept()
		if err != nil {
			sem.Release(1)
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				s.workers.Wait()
				return err
			}

			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff *= 2
			}
			if backoff > maxAcceptBackoff {
				backoff = maxAcceptBackoff
			}
			logger.Warn("accept failed", "error", err, "retry_in", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
			continue
		}
		backoff = 0

		if s.Sweeper != nil {
			s.Sweeper.AsyncSweep()
		}

		s.workers.Add(1)
		go func() {
			defer s.workers.Done()
			defer sem.Release(1)
			s.serveConn(ctx, conn)
		}()
	}

	s.workers.Wait()
	logger.Info("listener stopped")
	return nil
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	logger := s.logger().With("conn", uuid.NewString(), "remote", conn.RemoteAddr().String())

	fr := frameReader{
		max:      s.maxRequestBytes(),
		idle:     s.FrameIdle,
		complete: s.FrameComplete,
	}
	if fr.idle <= 0 {
		fr.idle = DefaultFrameIdle
	}
	if s.ReadTimeout > 0 {
		fr.deadline = time.Now().Add(s.ReadTimeout)
	}

	frame, err := fr.read(conn)
	switch {
	case errors.Is(err, ErrFrameTooLarge):
		logger.Warn("request rejected", "error", err, "limit", s.maxRequestBytes())
		s.writeStatus(conn, logger, apperr.StatusCGIError)
		return
	case err != nil:
		logger.Warn("read failed", "error", err)
		s.writeStatus(conn, logger, apperr.StatusCGIError)
		return
	case len(frame) == 0:
		logger.Debug("empty request")
		return
	}

	args := SplitArgs(frame)
	start := time.Now()
	status := s.execute(ctx, args, logger)
	logger.Debug("request handled", "status", status, "duration", time.Since(start))
	s.writeStatus(conn, logger, status)
}

// execute runs the handler, turning a panic into a CGI error.
func (s *Server) execute(ctx context.Context, args []string, logger *slog.Logger) (status byte) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panic", "panic", r)
			status = apperr.StatusCGIError
		}
	}()
	return s.Handler.Execute(ctx, args)
}

func (s *Server) writeStatus(conn net.Conn, logger *slog.Logger, status byte) {
	if _, err := conn.Write([]byte{status}); err != nil {
		logger.Warn("write status failed", "error", err)
	}
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return logging.NewDiscardLogger()
	}
	return s.Logger
}

func (s *Server) maxConns() int {
	if s.MaxConns <= 0 {
		return DefaultMaxConns
	}
	return s.MaxConns
}

func (s *Server) maxRequestBytes() int {
	if s.MaxRequestBytes <= 0 {
		return DefaultMaxRequestBytes
	}
	return s.MaxRequestBytes
}
