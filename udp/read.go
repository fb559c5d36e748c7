// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package udp

import (
	"context"
	"fmt"
	"net"
	"time"
)

const (
	durBreakDefault = 5 * time.Second
	bufferSize      = 4 << 10
)

// readLoop reads datagrams from conn until the context is done or fn returns an error.
// The read deadline is renewed every durBreak so that the context is checked even when
// nothing arrives. The data passed to fn is valid only until fn returns.
func readLoop(ctx context.Context, conn *net.UDPConn, durBreak time.Duration, fn func(data []byte, addr *net.UDPAddr, err error) error) error {
	var buffer [bufferSize]byte

	for {
		if err := conn.SetReadDeadline(time.Now().Add(durBreak)); err != nil {
			return fmt.Errorf("failed to set read deadline: %w", err)
		}

		n, addr, err := conn.ReadFromUDP(buffer[:])

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if isTimeout(err) {
			continue
		}

		if err := fn(buffer[:n], addr, err); err != nil {
			return err
		}
	}
}
