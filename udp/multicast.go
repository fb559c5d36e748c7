// Copyright (c) 2024, 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package udp

import (
	"context"
	"fmt"
	"net"
	"slices"
	"strings"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

type multicastGroup interface {
	JoinGroup(*net.Interface, net.Addr) error
	LeaveGroup(*net.Interface, net.Addr) error
}

// ListenMulticast joins the multicast group and receives datagrams until the context is done.
// Without the interface option the group is joined on the default network interface.
func ListenMulticast(
	ctx context.Context,
	groupAddr net.UDPAddr,
	processFn func(data []byte, addr net.UDPAddr),
	opts ...func(*MulticastOptions),
) (err error) {
	if groupAddr.IP == nil || !groupAddr.IP.IsMulticast() {
		return ErrNotMulticast
	}

	o := MulticastOptions{durBreak: durBreakDefault}
	for _, opt := range opts {
		opt(&o)
	}

	iface := o.iface
	if iface == nil {
		iface, err = defaultInterface()
		if err != nil {
			return fmt.Errorf("udp multicast: failed to get network interface: %w", err)
		}
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: groupAddr.IP, Port: groupAddr.Port, Zone: iface.Name})
	if err != nil {
		return fmt.Errorf("udp multicast: failed to listen: %w", err)
	}

	defer func() {
		if errClose := conn.Close(); errClose != nil && err == nil {
			err = fmt.Errorf("udp multicast: failed to close udp listener: %w", errClose)
		}
	}()

	group := &net.UDPAddr{IP: groupAddr.IP, Zone: iface.Name}

	var p multicastGroup
	if group.IP.To4() != nil {
		p = ipv4.NewPacketConn(conn)
	} else {
		p = ipv6.NewPacketConn(conn)
	}

	if err = p.JoinGroup(iface, group); err != nil {
		return fmt.Errorf("udp multicast: failed to join group: %w", err)
	}

	defer func() {
		if errLeave := p.LeaveGroup(iface, group); errLeave != nil && err == nil {
			err = fmt.Errorf("udp multicast: failed to leave group: %w", errLeave)
		}
	}()

	err = readLoop(ctx, conn, o.durBreak, func(data []byte, addr *net.UDPAddr, err error) error {
		if err != nil {
			return fmt.Errorf("udp multicast: failed to read udp message: %w", err)
		}
		processFn(data, *addr)
		return nil
	})

	return err
}

type MulticastOptions struct {
	iface    *net.Interface
	durBreak time.Duration
}

// WithInterface joins the group on the given network interface.
func WithInterface(iface *net.Interface) func(*MulticastOptions) {
	return func(o *MulticastOptions) {
		o.iface = iface
	}
}

// WithMulticastBreakPeriod sets how often the context is checked while no datagrams arrive.
func WithMulticastBreakPeriod(d time.Duration) func(*MulticastOptions) {
	return func(o *MulticastOptions) {
		if d > 0 {
			o.durBreak = d
		}
	}
}

// defaultInterface picks an active multicast capable interface that is not a loopback
// or a point to point link. Wired interfaces are preferred.
func defaultInterface() (*net.Interface, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to get network interfaces: %w", err)
	}

	var candidates []*net.Interface
	for i := range interfaces {
		iface := &interfaces[i]

		const required = net.FlagUp | net.FlagRunning | net.FlagMulticast
		const excluded = net.FlagLoopback | net.FlagPointToPoint
		if iface.Flags&required != required || iface.Flags&excluded != 0 {
			continue
		}

		if addrs, err := iface.Addrs(); err != nil || len(addrs) == 0 {
			continue
		}

		if addrs, err := iface.MulticastAddrs(); err != nil || len(addrs) == 0 {
			continue
		}

		candidates = append(candidates, iface)
	}

	if len(candidates) == 0 {
		return nil, ErrNoInterface
	}

	slices.SortFunc(candidates, func(a, b *net.Interface) int {
		return strings.Compare(a.Name, b.Name)
	})

	for _, prefix := range []string{"en", "eth"} {
		idx := slices.IndexFunc(candidates, func(iface *net.Interface) bool {
			return strings.HasPrefix(iface.Name, prefix)
		})
		if idx >= 0 {
			return candidates[idx], nil
		}
	}

	return candidates[0], nil
}
