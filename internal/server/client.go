package server

import (
	"context"
	"fmt"
	"io"
	"net"
)

// Send writes args to addr the way the Gemini server does and returns the
// status byte it gets back.
func Send(ctx context.Context, addr string, args []string) (byte, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return 0, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write(EncodeArgs(args)); err != nil {
		return 0, fmt.Errorf("send request: %w", err)
	}
	// half-close so the gateway sees the end of the frame right away
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		if err := cw.CloseWrite(); err != nil {
			return 0, fmt.Errorf("close request: %w", err)
		}
	}

	var status [1]byte
	if _, err := io.ReadFull(conn, status[:]); err != nil {
		return 0, fmt.Errorf("read status: %w", err)
	}
	return status[0], nil
}
