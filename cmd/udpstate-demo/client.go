// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marko-gacesa/udpstate/component"
	"github.com/marko-gacesa/udpstate/metrics"
	"github.com/marko-gacesa/udpstate/predict"
	"github.com/marko-gacesa/udpstate/replication"
	"github.com/marko-gacesa/udpstate/store"
	"github.com/marko-gacesa/udpstate/udpstate"
	"github.com/marko-gacesa/udpstate/udpstate/client"
)

var errNoServer = errors.New("no server found")

func runClient(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("client", flag.ExitOnError)
	kind := fs.String("transport", "udp", "transport: udp, kcp or ws")
	addr := fs.String("addr", "", "server address, for example 127.0.0.1:4000; empty to discover")
	tickRate := fs.Int("tick-rate", 60, "client ticks per second")
	delay := fs.Duration("delay", 100*time.Millisecond, "interpolation delay")
	metricsAddr := fs.String("metrics", "", "address of the Prometheus metrics endpoint, for example :9101")
	debug := fs.Bool("debug", false, "log debug messages")
	_ = fs.Parse(args)

	log := newLogger(*debug)
	reg := newRegistry()

	if *addr == "" {
		found, err := discoverFirst(ctx, 5*time.Second)
		if err != nil {
			return err
		}
		*addr = net.JoinHostPort(found.Addr.IP.String(), fmt.Sprint(found.Addr.Port))
		log.Info("server discovered", "name", found.Name, "addr", *addr, "clients", found.Clients)
	}

	conn, err := dial(ctx, *kind, *addr)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	simulate := func(_ udpstate.NetworkID, state predict.State, cmd predict.InputCommand) predict.State {
		state.Position = applyInput(state.Position, cmd.Payload)
		return state
	}

	s := store.NewMemStore()
	c := client.New(conn, udpstate.RandomToken(), s, component.DefaultRegistry(),
		client.WithLogger(log),
		client.WithMetrics(metrics.New(reg, "client")),
		client.WithSimulator(simulate),
		client.WithInterpolationDelay(*delay))

	log.Info("client started", "transport", *kind, "addr", *addr, "token", c.Token())

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.Start(ctx)
	})

	g.Go(func() error {
		return serveMetrics(ctx, *metricsAddr, reg, log)
	})

	g.Go(func() error {
		defer func() { _ = c.Leave() }()

		ticker := time.NewTicker(time.Second / time.Duration(max(*tickRate, 1)))
		defer ticker.Stop()

		report := time.NewTicker(2 * time.Second)
		defer report.Stop()

		var dx, dz int8

		for {
			select {
			case <-ctx.Done():
				return ctx.Err()

			case event := <-c.Events():
				log.Info("event", "kind", event.Kind, "id", event.ID, "owner", event.Owner, "err", event.Err)

			case <-ticker.C:
				if c.Connected() {
					if rand.IntN(30) == 0 {
						dx, dz = int8(rand.IntN(3)-1), int8(rand.IntN(3)-1)
					}
					c.Input([]byte{byte(dx), byte(dz)})
				}
				c.Tick()

			case <-report.C:
				var interpolated, predicted int
				for _, id := range c.Manager().IDs() {
					r, _ := c.Manager().Get(id)
					if r.Mode == replication.ModePredicted {
						if state, ok := c.Predicted(id, 0); ok {
							log.Info("avatar", "id", id, "position", state.Position)
						}
						predicted++
					} else {
						interpolated++
					}
				}
				log.Info("replicated", "interpolated", interpolated, "predicted", predicted)
			}
		}
	})

	return g.Wait()
}

func runDiscover(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	timeout := fs.Duration("timeout", 10*time.Second, "how long to listen for beacons")
	_ = fs.Parse(args)

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	seen := make(map[udpstate.Token]struct{})

	err := client.Discover(ctx, multicastAddr, func(found client.Found) {
		if _, ok := seen[found.Token]; ok {
			return
		}
		seen[found.Token] = struct{}{}
		fmt.Printf("%s\t%s\tclients=%d\n", found.Name, found.Addr.String(), found.Clients)
	})
	if errors.Is(err, context.DeadlineExceeded) {
		return nil
	}

	return err
}

func discoverFirst(ctx context.Context, timeout time.Duration) (client.Found, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var result client.Found
	var found bool

	err := client.Discover(ctx, multicastAddr, func(f client.Found) {
		if !found {
			result, found = f, true
			cancel()
		}
	})
	if found {
		return result, nil
	}
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return client.Found{}, fmt.Errorf("failed to discover: %w", err)
	}

	return client.Found{}, errNoServer
}
