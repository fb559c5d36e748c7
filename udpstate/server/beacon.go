// Copyright (c) 2024, 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package server

import (
	"context"
	"fmt"
	"time"

	"github.com/marko-gacesa/udpstate/udp"
	"github.com/marko-gacesa/udpstate/udpstate"
	"github.com/marko-gacesa/udpstate/udpstate/message"
)

// beacon multicasts the server's name and port so clients on the local network can find it.
func (s *Server) beacon(ctx context.Context) error {
	sender, err := udp.NewSender(s.beaconAddr)
	if err != nil {
		return fmt.Errorf("server beacon: %w", err)
	}

	defer func() {
		if err := sender.Close(); err != nil {
			s.log.Warn("failed to close beacon sender", "err", err)
		}
	}()

	msg := message.Beacon{
		Server: udpstate.RandomToken(),
		Port:   s.beaconPort,
		Name:   s.beaconName,
	}

	var buffer []byte

	ticker := time.NewTicker(s.beaconInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case n := <-s.clientCount:
			msg.Clients = uint8(min(n, 255))

		case <-ticker.C:
			buffer = msg.Put(buffer[:0])
			if err := sender.Send(buffer); err != nil {
				s.log.Warn("failed to multicast beacon",
					"addr", s.beaconAddr.String(),
					"err", err)
			}
		}
	}
}
