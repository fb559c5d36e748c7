// Copyright (c) 2024, 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package client

import (
	"context"
	"net"

	"github.com/marko-gacesa/udpstate/udp"
	"github.com/marko-gacesa/udpstate/udpstate"
	"github.com/marko-gacesa/udpstate/udpstate/message"
)

// Found is a server announced on the local network.
type Found struct {
	Token   udpstate.Token
	Name    string
	Addr    net.UDPAddr
	Clients int
}

// Discover listens to server beacons on the multicast group until the context is done.
// The function is called for every beacon received.
func Discover(ctx context.Context, group net.UDPAddr, fn func(Found)) error {
	return udp.ListenMulticast(ctx, group, func(data []byte, addr net.UDPAddr) {
		beacon := message.ParseBeacon(data)
		if beacon == nil {
			return
		}

		fn(foundFrom(beacon, addr))
	})
}

func foundFrom(beacon *message.Beacon, addr net.UDPAddr) Found {
	return Found{
		Token: beacon.Server,
		Name:  beacon.Name,
		Addr: net.UDPAddr{
			IP:   addr.IP,
			Port: int(beacon.Port),
			Zone: addr.Zone,
		},
		Clients: int(beacon.Clients),
	}
}
