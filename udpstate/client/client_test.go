// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package client

import (
	"context"
	"io"
	"log/slog"
	"math"
	"net"
	"reflect"
	"testing"
	"time"

	"github.com/marko-gacesa/channel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/marko-gacesa/udpstate/component"
	"github.com/marko-gacesa/udpstate/geom"
	"github.com/marko-gacesa/udpstate/metrics"
	"github.com/marko-gacesa/udpstate/predict"
	"github.com/marko-gacesa/udpstate/replication"
	"github.com/marko-gacesa/udpstate/store"
	"github.com/marko-gacesa/udpstate/transport"
	"github.com/marko-gacesa/udpstate/udpstate"
	"github.com/marko-gacesa/udpstate/udpstate/message"
	"github.com/marko-gacesa/udpstate/udpstate/server"
)

const token udpstate.Token = 0xC0FFEE

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// step moves the entity along X by the signed byte in the payload.
func step(_ udpstate.NetworkID, state predict.State, cmd predict.InputCommand) predict.State {
	if len(cmd.Payload) > 0 {
		state.Position.X += float64(int8(cmd.Payload[0]))
	}
	return state
}

type world struct {
	t        *testing.T
	ctx      context.Context
	cancel   context.CancelFunc
	network  *transport.MemNetwork
	registry *component.Registry

	srvStore *store.MemStore
	srv      *server.Server

	cliStore *store.MemStore
	cli      *Client
}

func newWorld(t *testing.T, srvOpts []func(*server.Server), cliOpts ...func(*Client)) *world {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	t.Cleanup(cancel)

	w := &world{
		t:        t,
		ctx:      ctx,
		cancel:   cancel,
		network:  transport.NewMemNetwork(7, 0),
		registry: component.DefaultRegistry(),
		srvStore: store.NewMemStore(),
		cliStore: store.NewMemStore(),
	}

	srvOpts = append([]func(*server.Server){
		server.WithLogger(discard),
		server.WithInputHandler(w.applyInput),
	}, srvOpts...)
	w.srv = server.NewServer(w.network, w.srvStore, w.registry, srvOpts...)

	cliOpts = append([]func(*Client){WithLogger(discard)}, cliOpts...)
	w.cli = New(w.network.Dial(), token, w.cliStore, w.registry, cliOpts...)

	go func() { _ = w.srv.Start(ctx) }()
	go func() { _ = w.cli.Start(ctx) }()

	return w
}

// applyInput is the server side simulation of client input.
func (w *world) applyInput(in server.Input) {
	for _, id := range w.ownedBy(in.Token) {
		entry, _ := w.srv.Entry(id)
		v, _ := w.srvStore.Get(entry.Entity, component.KindPosition)
		state := step(id, predict.State{Position: v.Vec}, predict.InputCommand{Payload: in.Payload})
		w.srvStore.Set(entry.Entity, component.KindPosition, component.Vec(state.Position))
	}
}

func (w *world) ownedBy(owner udpstate.Token) []udpstate.NetworkID {
	var ids []udpstate.NetworkID
	for id := udpstate.NetworkID(1); id < 100; id++ {
		if entry, ok := w.srv.Entry(id); ok && entry.Owner == owner {
			ids = append(ids, id)
		}
	}
	return ids
}

func (w *world) spawn(pos geom.Vec3, owner udpstate.Token) (store.Entity, udpstate.NetworkID) {
	e := w.srvStore.Spawn()
	w.srvStore.Set(e, component.KindPosition, component.Vec(pos))
	id, err := w.srv.Register(e, owner, 1)
	if err != nil {
		w.t.Fatalf("failed to register: %s", err.Error())
	}
	return e, id
}

func (w *world) move(e store.Entity, pos geom.Vec3) {
	w.srvStore.Set(e, component.KindPosition, component.Vec(pos))
}

// step runs one server and one client tick. Server packets reach the client asynchronously.
func (w *world) step() {
	w.srv.Tick()
	time.Sleep(2 * time.Millisecond)
	w.cli.Tick()
}

func (w *world) until(what string, cond func() bool) {
	w.t.Helper()
	for range 1000 {
		if cond() {
			return
		}
		w.step()
	}
	w.t.Fatalf("timeout waiting for %s", what)
}

func (w *world) position(id udpstate.NetworkID) (geom.Vec3, bool) {
	r, ok := w.cli.Manager().Get(id)
	if !ok {
		return geom.Vec3{}, false
	}
	v, ok := w.cliStore.Get(r.Entity, component.KindPosition)
	return v.Vec, ok
}

func (w *world) hasPosition(id udpstate.NetworkID, want geom.Vec3) bool {
	got, ok := w.position(id)
	return ok && got.Dist(want) < 1e-6
}

func record(ctx context.Context, events <-chan udpstate.Event) *channel.Recorder[udpstate.Event] {
	rec := channel.NewRecorder[udpstate.Event]()
	in := rec.Record(ctx)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case e := <-events:
				e.Err = nil
				select {
				case in <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return &rec
}

func TestClient_Replication(t *testing.T) {
	w := newWorld(t, nil)

	e1, id1 := w.spawn(geom.V(1, 2, 3), udpstate.TokenServer)
	_, id2 := w.spawn(geom.V(-4, 5, 6), udpstate.TokenServer)
	_, id3 := w.spawn(geom.V(7, -8, 9), udpstate.TokenServer)

	w.until("spawn", func() bool { return w.cli.Manager().Len() == 3 })

	if !w.cli.Connected() {
		t.Errorf("client must be connected")
	}

	if want, got := []udpstate.NetworkID{id1, id2, id3}, w.cli.Manager().IDs(); !reflect.DeepEqual(want, got) {
		t.Errorf("ids: want=%v got=%v", want, got)
	}

	for id, want := range map[udpstate.NetworkID]geom.Vec3{id1: geom.V(1, 2, 3), id2: geom.V(-4, 5, 6), id3: geom.V(7, -8, 9)} {
		if !w.hasPosition(id, want) {
			got, _ := w.position(id)
			t.Errorf("position of %s: want=%v got=%v", id, want, got)
		}
	}

	r, _ := w.cli.Manager().Get(id1)
	if want, got := replication.ModeInterpolated, r.Mode; want != got {
		t.Errorf("mode: want=%v got=%v", want, got)
	}

	if sample, ok := w.cli.Interpolated(id1); !ok {
		t.Errorf("no interpolated sample")
	} else if pos, ok := sample.Get(component.KindPosition); !ok || pos.Vec.Dist(geom.V(1, 2, 3)) > 1e-6 {
		t.Errorf("interpolated position: %v", pos.Vec)
	}

	w.move(e1, geom.V(10, 20, 30))
	w.until("move", func() bool { return w.hasPosition(id1, geom.V(10, 20, 30)) })

	w.srv.Unregister(id2)
	w.until("despawn", func() bool { return w.cli.Manager().Len() == 2 })

	if _, ok := w.cli.Interpolated(id2); ok {
		t.Errorf("despawned entity must not have interpolation buffer")
	}
	if want, got := 2, w.cliStore.Len(); want != got {
		t.Errorf("store size: want=%d got=%d", want, got)
	}
}

func TestClient_Prediction(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, "client")

	w := newWorld(t, nil, WithSimulator(step), WithMetrics(m))

	_, id := w.spawn(geom.V(0, 0, 0), token)

	w.until("predicted spawn", func() bool {
		r, ok := w.cli.Manager().Get(id)
		return ok && r.Mode == replication.ModePredicted
	})

	for range 10 {
		w.cli.Input([]byte{1})
		w.step()
	}

	state, ok := w.cli.Predicted(id, 0)
	if !ok {
		t.Fatalf("entity is not predicted")
	}
	if want, got := 10.0, state.Position.X; math.Abs(want-got) > 1e-6 {
		t.Errorf("predicted position ahead of server: want=%v got=%v", want, got)
	}

	w.until("server catches up", func() bool { return w.hasPosition(id, geom.V(10, 0, 0)) })
	w.until("inputs confirmed", func() bool { return w.cli.predictor.Confirmed() == w.cli.predictor.LastSeq() })

	state, _ = w.cli.Predicted(id, time.Second)
	if want, got := 10.0, state.Position.X; math.Abs(want-got) > 1e-6 {
		t.Errorf("reconciled position: want=%v got=%v", want, got)
	}

	if n, err := testutil.GatherAndCount(reg, "udpstate_client_reconciliations_total"); err != nil || n == 0 {
		t.Errorf("reconciliations must be recorded: n=%d err=%v", n, err)
	}
}

// reconciliations returns the number of reconciliations that ended with the outcome.
func reconciliations(t *testing.T, reg *prometheus.Registry, outcome predict.Outcome) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %s", err.Error())
	}

	for _, family := range families {
		if family.GetName() != "udpstate_client_reconciliations_total" {
			continue
		}
		for _, m := range family.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "outcome" && label.GetValue() == outcome.String() {
					return m.GetCounter().GetValue()
				}
			}
		}
	}

	return 0
}

func TestClient_PredictionBudgetLoss(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg, "client")

	w := newWorld(t,
		[]func(*server.Server){server.WithBudget(10)},
		WithSimulator(step), WithMetrics(m), WithGapTimeout(5*time.Millisecond))

	other, _ := w.spawn(geom.V(0, 5, 0), udpstate.TokenServer)
	_, id := w.spawn(geom.V(0, 0, 0), token)

	w.until("predicted spawn", func() bool {
		_, ok := w.cli.Predicted(id, 0)
		return ok
	})

	w.network.SetLoss(0.3)

	var x float64
	for i := range 200 {
		d := int8(i%3 - 1)
		x += float64(d)
		w.cli.Input([]byte{byte(d)})
		w.move(other, geom.V(float64(i), 5, 0))
		w.step()
	}

	w.network.SetLoss(0)

	w.until("inputs confirmed", func() bool { return w.cli.predictor.Confirmed() == w.cli.predictor.LastSeq() })
	w.until("server state", func() bool { return w.hasPosition(id, geom.V(x, 0, 0)) })

	if got := reconciliations(t, reg, predict.OutcomeMatch); got == 0 {
		t.Errorf("no matching reconciliations")
	}
	if want, got := 0.0, reconciliations(t, reg, predict.OutcomeCorrected); want != got {
		t.Errorf("corrections with an exact simulator: want=%v got=%v", want, got)
	}

	state, _ := w.cli.Predicted(id, 0)
	if want, got := x, state.Position.X; math.Abs(want-got) > 1e-6 {
		t.Errorf("predicted position: want=%v got=%v", want, got)
	}
}

func TestClient_InterpolationSettles(t *testing.T) {
	w := newWorld(t, nil)

	e, id := w.spawn(geom.V(1, 0, 0), udpstate.TokenServer)

	w.until("spawn", func() bool { return w.cli.Manager().Len() == 1 })

	for x := 2; x <= 10; x++ {
		w.move(e, geom.V(float64(x), 0, 0))
		w.step()
	}

	w.until("arrival", func() bool { return w.hasPosition(id, geom.V(10, 0, 0)) })

	for range 50 {
		w.step()
	}

	sample, ok := w.cli.Interpolated(id)
	if !ok {
		t.Fatalf("no interpolated sample")
	}

	pos, _ := sample.Get(component.KindPosition)
	if want, got := geom.V(10, 0, 0), pos.Vec; want.Dist(got) > 1e-6 {
		t.Errorf("rendered position of a stopped entity: want=%v got=%v", want, got)
	}
}

func TestClient_Misprediction(t *testing.T) {
	// the client thinks every input moves it by 2, the server moves it by 1
	double := func(id udpstate.NetworkID, state predict.State, cmd predict.InputCommand) predict.State {
		state = step(id, state, cmd)
		return step(id, state, cmd)
	}

	w := newWorld(t, nil, WithSimulator(double, predict.WithSmoothing(0)))

	_, id := w.spawn(geom.V(0, 0, 0), token)

	w.until("predicted spawn", func() bool {
		_, ok := w.cli.Predicted(id, 0)
		return ok
	})

	for range 5 {
		w.cli.Input([]byte{1})
	}
	w.step()

	w.until("reconciled", func() bool {
		state, _ := w.cli.Predicted(id, 0)
		return math.Abs(state.Position.X-5) < 1e-6
	})
}

func TestClient_OwnershipTransfer(t *testing.T) {
	w := newWorld(t, nil, WithSimulator(step))

	rec := record(w.ctx, w.cli.Events())

	_, id := w.spawn(geom.V(1, 1, 1), udpstate.TokenServer)

	w.until("spawn", func() bool { return w.cli.Manager().Len() == 1 })

	w.srv.SetOwner(id, token)
	w.until("predicted", func() bool {
		_, ok := w.cli.Predicted(id, 0)
		return ok
	})
	if _, ok := w.cli.Interpolated(id); ok {
		t.Errorf("predicted entity must not be interpolated")
	}

	w.srv.SetOwner(id, udpstate.TokenServer)
	w.until("interpolated", func() bool {
		_, ok := w.cli.Interpolated(id)
		return ok
	})
	if _, ok := w.cli.Predicted(id, 0); ok {
		t.Errorf("prediction must be discarded")
	}

	for range 10 {
		w.step()
	}

	w.cancel()

	want := []udpstate.Event{
		{Kind: udpstate.EventConnected, Token: token},
		{Kind: udpstate.EventOwnershipChanged, Token: token, ID: id, Owner: token},
		{Kind: udpstate.EventOwnershipChanged, Token: token, ID: id, Owner: udpstate.TokenServer},
	}
	if got := rec.Recording(); !reflect.DeepEqual(want, got) {
		t.Errorf("events: want=%+v got=%+v", want, got)
	}
}

func TestClient_Lossy(t *testing.T) {
	w := newWorld(t, []func(*server.Server){server.WithResyncThreshold(16)}, WithGapTimeout(5*time.Millisecond))

	const count = 8

	entities := make([]store.Entity, count)
	ids := make([]udpstate.NetworkID, count)
	for i := range count {
		entities[i], ids[i] = w.spawn(geom.V(float64(i), 0, 0), udpstate.TokenServer)
	}

	w.until("spawn", func() bool { return w.cli.Manager().Len() == count })

	w.network.SetLoss(0.4)

	for tick := range 100 {
		i := tick % count
		w.move(entities[i], geom.V(float64(i), float64(tick)/10, 0))
		w.step()
	}

	w.network.SetLoss(0)

	w.until("convergence", func() bool {
		for _, id := range ids {
			entry, _ := w.srv.Entry(id)
			want, _ := w.srvStore.Get(entry.Entity, component.KindPosition)
			if !w.hasPosition(id, want.Vec) {
				return false
			}
		}
		return true
	})
}

func TestClient_ConnectionLost(t *testing.T) {
	w := newWorld(t, nil, WithTimeout(200*time.Millisecond))

	w.spawn(geom.V(1, 1, 1), udpstate.TokenServer)
	w.spawn(geom.V(2, 2, 2), udpstate.TokenServer)

	w.until("spawn", func() bool { return w.cli.Manager().Len() == 2 })

	// the server stops ticking
	var lost bool
	for range 100 {
		time.Sleep(5 * time.Millisecond)
		w.cli.Tick()
		if !w.cli.Connected() {
			lost = true
			break
		}
	}

	if !lost {
		t.Fatalf("connection must be lost")
	}

	if want, got := 0, w.cli.Manager().Len(); want != got {
		t.Errorf("remotes: want=%d got=%d", want, got)
	}
	if want, got := 0, w.cliStore.Len(); want != got {
		t.Errorf("store size: want=%d got=%d", want, got)
	}

	var event udpstate.Event
	for e := range w.cli.Events() {
		if e.Kind == udpstate.EventConnectionLost {
			event = e
			break
		}
	}
	if want, got := udpstate.ErrConnectionLost, event.Err; want != got {
		t.Errorf("err: want=%v got=%v", want, got)
	}

	// the server resumes, the client reconnects and gets everything again
	w.until("reconnect", func() bool { return w.cli.Manager().Len() == 2 })
}

func TestFoundFrom(t *testing.T) {
	beacon := &message.Beacon{Server: 7, Port: 4000, Clients: 3, Name: "arena"}
	addr := net.UDPAddr{IP: net.IPv4(192, 168, 1, 20), Port: 50000}

	want := Found{
		Token:   7,
		Name:    "arena",
		Addr:    net.UDPAddr{IP: net.IPv4(192, 168, 1, 20), Port: 4000},
		Clients: 3,
	}

	if got := foundFrom(beacon, addr); !reflect.DeepEqual(want, got) {
		t.Errorf("want=%+v got=%+v", want, got)
	}
}
