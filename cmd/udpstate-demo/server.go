// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marko-gacesa/udpstate/component"
	"github.com/marko-gacesa/udpstate/geom"
	"github.com/marko-gacesa/udpstate/metrics"
	"github.com/marko-gacesa/udpstate/store"
	"github.com/marko-gacesa/udpstate/udpstate"
	"github.com/marko-gacesa/udpstate/udpstate/server"
)

// arena is the demo world: a number of bots circling the origin and one avatar per client.
type arena struct {
	srv     *server.Server
	store   *store.MemStore
	bots    []store.Entity
	avatars map[udpstate.Token]udpstate.NetworkID
	log     *slog.Logger
}

func runServer(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	kind := fs.String("transport", "udp", "transport: udp, kcp or ws")
	port := fs.Int("port", 4000, "port to listen on")
	name := fs.String("name", "udpstate", "server name announced in beacons")
	beacon := fs.Bool("beacon", true, "announce the server on the local network")
	bots := fs.Int("bots", 32, "number of server controlled entities")
	tickRate := fs.Int("tick-rate", 30, "simulation ticks per second")
	budget := fs.Int("budget", 1200, "snapshot budget per client in bytes")
	metricsAddr := fs.String("metrics", "", "address of the Prometheus metrics endpoint, for example :9100")
	debug := fs.Bool("debug", false, "log debug messages")
	_ = fs.Parse(args)

	log := newLogger(*debug)
	reg := newRegistry()

	listener, err := newListener(*kind, *port, log)
	if err != nil {
		return err
	}

	a := &arena{
		store:   store.NewMemStore(),
		avatars: make(map[udpstate.Token]udpstate.NetworkID),
		log:     log,
	}

	opts := []func(*server.Server){
		server.WithLogger(log),
		server.WithMetrics(metrics.New(reg, "server")),
		server.WithTickInterval(time.Second / time.Duration(max(*tickRate, 1))),
		server.WithBudget(*budget),
		server.WithInputHandler(a.input),
	}
	if *beacon {
		opts = append(opts, server.WithBeacon(multicastAddr, *name, uint16(*port)))
	}

	a.srv = server.NewServer(listener, a.store, component.DefaultRegistry(), opts...)

	for i := range *bots {
		e := a.store.Spawn()
		a.bots = append(a.bots, e)
		if _, err := a.srv.Register(e, udpstate.TokenServer, 1+float64(i%4)); err != nil {
			return fmt.Errorf("failed to register bot: %w", err)
		}
	}

	log.Info("server started", "transport", *kind, "port", *port, "bots", *bots)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.srv.Start(ctx)
	})

	g.Go(func() error {
		return serveMetrics(ctx, *metricsAddr, reg, log)
	})

	g.Go(func() error {
		return a.run(ctx, time.Second/time.Duration(max(*tickRate, 1)))
	})

	return g.Wait()
}

// run drives the simulation and the server from a single goroutine.
func (a *arena) run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var tick int

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event := <-a.srv.Events():
			a.handleEvent(event)

		case <-ticker.C:
			tick++
			a.moveBots(float64(tick) * interval.Seconds())
			a.srv.Tick()
		}
	}
}

func (a *arena) handleEvent(event udpstate.Event) {
	switch event.Kind {
	case udpstate.EventConnected:
		e := a.store.Spawn()
		a.store.Set(e, component.KindPosition, component.Vec(geom.V(0, 0, 0)))
		a.store.Set(e, component.KindHealth, component.Int(100))

		id, err := a.srv.Register(e, event.Token, 10)
		if err != nil {
			a.log.Error("failed to register avatar", "token", event.Token, "err", err)
			return
		}

		a.avatars[event.Token] = id
		a.log.Info("client joined", "token", event.Token, "avatar", id)

	case udpstate.EventConnectionLost:
		if id, ok := a.avatars[event.Token]; ok {
			a.srv.Unregister(id)
			delete(a.avatars, event.Token)
		}
		a.log.Info("client left", "token", event.Token, "err", event.Err)

	case udpstate.EventResync:
		a.log.Debug("client resync", "token", event.Token)
	}
}

func (a *arena) moveBots(t float64) {
	for i, e := range a.bots {
		phase := 2 * math.Pi * float64(i) / float64(len(a.bots))
		radius := 20 + float64(i%5)*10
		angle := phase + t*0.2

		pos := geom.V(radius*math.Cos(angle), 0, radius*math.Sin(angle))
		rot := geom.FromAxisAngle(geom.V(0, 1, 0), -angle)

		a.store.Set(e, component.KindPosition, component.Vec(pos))
		a.store.Set(e, component.KindRotation, component.Rot(rot))
	}
}

// input moves the avatar of the client along X and Z by the two signed bytes of the payload.
func (a *arena) input(in server.Input) {
	id, ok := a.avatars[in.Token]
	if !ok {
		return
	}

	entry, ok := a.srv.Entry(id)
	if !ok {
		return
	}

	v, _ := a.store.Get(entry.Entity, component.KindPosition)
	a.store.Set(entry.Entity, component.KindPosition, component.Vec(applyInput(v.Vec, in.Payload)))
}

// applyInput is the movement rule shared by the server and the client prediction.
func applyInput(pos geom.Vec3, payload []byte) geom.Vec3 {
	const speed = 0.25
	if len(payload) < 2 {
		return pos
	}
	return pos.Add(geom.V(float64(int8(payload[0]))*speed, 0, float64(int8(payload[1]))*speed))
}
