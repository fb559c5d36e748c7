// Copyright (c) 2023, 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

// Package server replicates the state of an entity store to connected clients.
//
// The network is served by Start, which only parses incoming packets and queues them.
// All replication work is done by Tick, which must be called from the simulation
// goroutine once per simulation tick, after the simulation has updated the store.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marko-gacesa/udpstate/component"
	"github.com/marko-gacesa/udpstate/delta"
	"github.com/marko-gacesa/udpstate/geom"
	"github.com/marko-gacesa/udpstate/metrics"
	"github.com/marko-gacesa/udpstate/replication"
	"github.com/marko-gacesa/udpstate/sequence"
	"github.com/marko-gacesa/udpstate/snapshot"
	"github.com/marko-gacesa/udpstate/store"
	"github.com/marko-gacesa/udpstate/transport"
	"github.com/marko-gacesa/udpstate/udpstate"
	"github.com/marko-gacesa/udpstate/udpstate/message"
	"github.com/marko-gacesa/udpstate/udpstate/util"
)

const (
	DefaultTickInterval   = time.Second / 30
	DefaultBudget         = 1200
	DefaultTimeout        = 5 * time.Second
	DefaultMaxClients     = 64
	DefaultBeaconInterval = 2 * time.Second

	inboundQueueSize = 1024
	eventQueueSize   = 256
)

var _ interface {
	// Start serves the network until the context is done. It's a blocking call.
	Start(ctx context.Context) error

	// Tick runs one replication step. It must be called from the simulation goroutine.
	Tick()

	// Events returns the channel of connection events.
	Events() <-chan udpstate.Event
} = (*Server)(nil)

// Input is an input command received from a client, delivered in order of sequence.
type Input struct {
	Token   udpstate.Token
	Seq     sequence.Sequence
	Tick    uint32
	Payload []byte
}

// Visibility decides whether an entity is replicated to a client.
type Visibility func(token udpstate.Token, id udpstate.NetworkID, e store.Entity) bool

// Interest returns the distance of an entity from the client's point of interest.
// Closer entities are sent more often.
type Interest func(token udpstate.Token, id udpstate.NetworkID, e store.Entity) float64

type Server struct {
	listener transport.Listener
	store    store.Store
	registry *component.Registry

	table   *replication.Table
	tracker *snapshot.Tracker
	builder *snapshot.Builder

	inbound chan inbound
	events  chan udpstate.Event

	// accessed only from Tick and the entity methods
	conns map[udpstate.Token]*connection
	tick  uint32

	tickInterval   time.Duration
	budget         int
	timeout        time.Duration
	maxClients     int
	historyDepth   int
	resyncThresh   int
	visibility     Visibility
	interest       Interest
	inputFn        func(Input)
	beaconAddr     net.UDPAddr
	beaconName     string
	beaconPort     uint16
	beaconInterval time.Duration
	clientCount    chan int

	metrics *metrics.Metrics
	log     *slog.Logger
	now     func() time.Time
}

type inbound struct {
	msg  message.ClientMessage
	peer transport.Peer
}

func NewServer(
	listener transport.Listener,
	s store.Store,
	registry *component.Registry,
	opts ...func(*Server),
) *Server {
	srv := &Server{
		listener:       listener,
		store:          s,
		registry:       registry,
		table:          replication.NewTable(),
		tracker:        snapshot.NewTracker(s, registry),
		inbound:        make(chan inbound, inboundQueueSize),
		events:         make(chan udpstate.Event, eventQueueSize),
		conns:          make(map[udpstate.Token]*connection),
		tickInterval:   DefaultTickInterval,
		budget:         DefaultBudget,
		timeout:        DefaultTimeout,
		maxClients:     DefaultMaxClients,
		historyDepth:   delta.DefaultHistoryDepth,
		beaconInterval: DefaultBeaconInterval,
		clientCount:    make(chan int, 1),
		log:            slog.Default(),
		now:            time.Now,
	}

	for _, opt := range opts {
		opt(srv)
	}

	srv.builder = snapshot.NewBuilder(s, registry, srv.tracker, srv.table,
		snapshot.WithLogger(srv.log),
		snapshot.WithClampHook(func(udpstate.NetworkID, component.Kind) {
			srv.metrics.Clamped(1)
		}))

	return srv
}

func WithLogger(log *slog.Logger) func(*Server) {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) func(*Server) {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithTickInterval sets the simulation tick interval announced to clients.
func WithTickInterval(d time.Duration) func(*Server) {
	return func(s *Server) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

// WithBudget sets the number of bytes of entity data sent to each client per tick.
func WithBudget(bytes int) func(*Server) {
	return func(s *Server) {
		if bytes > 0 {
			s.budget = bytes
		}
	}
}

// WithTimeout sets how long a client may be silent before it's considered lost.
func WithTimeout(d time.Duration) func(*Server) {
	return func(s *Server) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithMaxClients(n int) func(*Server) {
	return func(s *Server) {
		if n > 0 {
			s.maxClients = n
		}
	}
}

// WithHistoryDepth sets how many unacknowledged snapshots are kept per client.
func WithHistoryDepth(n int) func(*Server) {
	return func(s *Server) {
		s.historyDepth = n
	}
}

// WithResyncThreshold sets how many snapshots a client's baseline may lag
// before it gets a full snapshot.
func WithResyncThreshold(n int) func(*Server) {
	return func(s *Server) {
		s.resyncThresh = n
	}
}

func WithVisibility(fn Visibility) func(*Server) {
	return func(s *Server) {
		s.visibility = fn
	}
}

// WithInterest sets the distance function used for prioritization. By default the distance
// is measured from the position of the first entity the client owns.
func WithInterest(fn Interest) func(*Server) {
	return func(s *Server) {
		s.interest = fn
	}
}

// WithInputHandler sets the function that receives client inputs. It's called from Tick.
func WithInputHandler(fn func(Input)) func(*Server) {
	return func(s *Server) {
		s.inputFn = fn
	}
}

// WithBeacon makes the server periodically announce itself to a multicast group.
// Port is the port clients should connect to.
func WithBeacon(addr net.UDPAddr, name string, port uint16) func(*Server) {
	return func(s *Server) {
		s.beaconAddr = addr
		s.beaconName = name
		s.beaconPort = port
	}
}

func WithBeaconInterval(d time.Duration) func(*Server) {
	return func(s *Server) {
		if d > 0 {
			s.beaconInterval = d
		}
	}
}

func withClock(now func() time.Time) func(*Server) {
	return func(s *Server) {
		s.now = now
	}
}

// Start serves the network until the context is done. Received packets are queued for Tick.
func (s *Server) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.listener.Listen(ctx, s.handleIncoming)
	})

	if s.beaconAddr.IP != nil && !s.beaconAddr.IP.IsUnspecified() {
		g.Go(func() error {
			return s.beacon(ctx)
		})
	}

	err := g.Wait()

	s.log.Info("server stopped")

	return err
}

func (s *Server) handleIncoming(data []byte, peer transport.Peer) {
	defer util.Recover(s.log)

	msg := message.ParseClient(data)
	if msg == nil {
		s.log.Debug("received unrecognized message",
			"peer", peer.String(),
			"size", len(data))
		return
	}

	select {
	case s.inbound <- inbound{msg: msg, peer: peer}:
	default:
		s.log.Warn("inbound queue full, message dropped",
			"peer", peer.String(),
			"type", msg.Type())
	}
}

func (s *Server) Events() <-chan udpstate.Event {
	return s.events
}

func (s *Server) emit(event udpstate.Event) {
	select {
	case s.events <- event:
	default:
		s.log.Warn("event queue full, event dropped",
			"kind", event.Kind,
			"client", event.Token)
	}
}

// Tick processes the received packets, drops silent clients and sends a snapshot to every client.
func (s *Server) Tick() {
	now := s.now()

	s.receive(now)
	s.expire(now)

	s.tick++
	s.tracker.Collect(s.tick)

	// events go first, a client starts accepting snapshots after the welcome event
	for _, c := range s.connections() {
		s.sendEvents(c)
		s.sendSnapshot(c)
	}
}

// CurrentTick returns the number of the last tick.
func (s *Server) CurrentTick() uint32 {
	return s.tick
}

func (s *Server) receive(now time.Time) {
	for {
		select {
		case in := <-s.inbound:
			s.handleMessage(in, now)
		default:
			return
		}
	}
}

func (s *Server) handleMessage(in inbound, now time.Time) {
	token := in.msg.GetToken()

	switch msg := in.msg.(type) {
	case *message.Hello:
		if err := s.connect(token, in.peer, now); err != nil {
			s.log.Warn("client rejected",
				"client", token,
				"peer", in.peer.String(),
				"err", err)
		}

	case *message.Update:
		c, ok := s.conns[token]
		if !ok {
			s.log.Debug("update from unknown client",
				"client", token,
				"peer", in.peer.String(),
				"err", ErrUnknownClient)
			return
		}

		c.peer = in.peer
		c.lastSeen = now
		c.established = true

		if c.handleUpdate(msg, s.inputFn) {
			s.metrics.Resync()
			s.emit(udpstate.Event{Kind: udpstate.EventResync, Token: token})
		}

	case *message.Bye:
		if _, ok := s.conns[token]; !ok {
			return
		}
		s.disconnect(token, nil)
	}
}

func (s *Server) connect(token udpstate.Token, peer transport.Peer, now time.Time) error {
	if token == udpstate.TokenServer {
		return ErrInvalidToken
	}

	if c, ok := s.conns[token]; ok {
		if !c.established {
			// repeated hello while the welcome is on its way
			c.peer = peer
			c.lastSeen = now
			return nil
		}

		// the client has lost the connection and starts over
		s.disconnect(token, fmt.Errorf("client reconnected: %w", udpstate.ErrConnectionLost))
	}

	if len(s.conns) >= s.maxClients {
		return ErrTooManyClients
	}

	c := newConnection(token, peer, now, s.historyDepth, s.resyncThresh, s.log)
	s.conns[token] = c

	c.pushEvent(message.Event{
		Kind:  message.EventWelcome,
		Value: uint32(time.Second / s.tickInterval),
	})

	s.table.Iterate(func(id udpstate.NetworkID, _ store.Entity) bool {
		if entry, _ := s.table.Get(id); entry.Owner != udpstate.TokenServer {
			c.pushEvent(message.Event{Kind: message.EventOwnership, ID: id, Owner: entry.Owner})
		}
		return true
	})

	s.updateClientCount()

	c.log.Info("client connected", "peer", peer.String())

	s.emit(udpstate.Event{Kind: udpstate.EventConnected, Token: token})

	return nil
}

// disconnect discards all state of the connection. Entities owned by the client return to the server.
func (s *Server) disconnect(token udpstate.Token, err error) {
	c, ok := s.conns[token]
	if !ok {
		return
	}

	delete(s.conns, token)

	for _, id := range s.table.ReleaseOwner(token) {
		s.broadcastOwner(id, udpstate.TokenServer)
	}

	s.updateClientCount()

	c.log.Info("client disconnected", "err", err)

	s.emit(udpstate.Event{Kind: udpstate.EventConnectionLost, Token: token, Err: err})
}

func (s *Server) expire(now time.Time) {
	for token, c := range s.conns {
		if now.Sub(c.lastSeen) > s.timeout {
			s.disconnect(token, fmt.Errorf("client silent for %s: %w", now.Sub(c.lastSeen), udpstate.ErrConnectionLost))
		}
	}
}

func (s *Server) updateClientCount() {
	s.metrics.SetConnections(len(s.conns))

	// only the latest value matters to the beacon
	select {
	case <-s.clientCount:
	default:
	}
	s.clientCount <- len(s.conns)
}

func (s *Server) connections() []*connection {
	conns := make([]*connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	slices.SortFunc(conns, func(a, b *connection) int {
		switch {
		case a.token < b.token:
			return -1
		case a.token > b.token:
			return 1
		}
		return 0
	})
	return conns
}

func (s *Server) sendSnapshot(c *connection) {
	var visible snapshot.Visibility
	if s.visibility != nil {
		visible = func(id udpstate.NetworkID, e store.Entity) bool {
			return s.visibility(c.token, id, e)
		}
	}

	prev := c.session.Latest()
	if prev == nil {
		prev = c.session.Baseline()
	}

	plan := s.builder.Plan(prev, visible)

	for _, id := range plan.Destroyed {
		c.priority.Forget(id)
	}

	distance := s.distanceFn(c.token)

	candidates := c.candidates[:0]
	for _, items := range [][]snapshot.Item{plan.Created, plan.Changed} {
		for _, item := range items {
			entry, _ := s.table.Get(item.ID)
			cand := priorityCandidate(item, entry.Priority, distance(item), s.builder.Cost(item))
			// the state of owned entities must match the input ack sent with it
			cand.Required = entry.Owner == c.token
			candidates = append(candidates, cand)
		}
	}
	c.candidates = candidates

	c.priority.Accumulate(candidates)

	budgetBits := s.budget*8 - len(plan.Destroyed)*destroyCostBits
	selected := c.priority.Select(candidates, budgetBits)

	chosen := make(map[udpstate.NetworkID]struct{}, len(selected))
	for _, cand := range selected {
		chosen[cand.ID] = struct{}{}
	}

	snap := s.builder.Build(prev, plan, func(id udpstate.NetworkID) bool {
		_, ok := chosen[id]
		return ok
	}, s.tick)

	d := c.session.Encode(snap)
	if d.Resync {
		s.metrics.Resync()
	}

	data, err := c.snapshotMessage(d, s.registry)
	if err != nil {
		c.log.Error("failed to encode snapshot",
			"seq", d.Seq,
			"err", err)
		return
	}

	if len(data) > message.MaxMessageSize {
		c.log.Warn("sending large snapshot",
			"seq", d.Seq,
			"size", len(data),
			"resync", d.Resync)
	}

	if err := c.peer.Send(data, transport.ModeUnreliableSequenced); err != nil {
		c.log.Debug("failed to send snapshot", "err", err)
		return
	}

	s.metrics.SnapshotSent(len(data))
}

func (s *Server) sendEvents(c *connection) {
	data := c.eventsMessage()
	if data == nil {
		return
	}

	if err := c.peer.Send(data, transport.ModeReliableOrdered); err != nil {
		c.log.Debug("failed to send events", "err", err)
		return
	}

	s.metrics.BytesSent(len(data))
}

func (s *Server) distanceFn(token udpstate.Token) func(snapshot.Item) float64 {
	if s.interest != nil {
		return func(item snapshot.Item) float64 {
			return s.interest(token, item.ID, item.Entity)
		}
	}

	owned := s.table.Owned(token)
	if len(owned) == 0 {
		return func(snapshot.Item) float64 { return 0 }
	}

	focus, ok := s.position(owned[0])
	if !ok {
		return func(snapshot.Item) float64 { return 0 }
	}

	return func(item snapshot.Item) float64 {
		pos, ok := s.position(item.ID)
		if !ok {
			return 0
		}
		return pos.Dist(focus)
	}
}

func (s *Server) position(id udpstate.NetworkID) (geom.Vec3, bool) {
	entry, ok := s.table.Get(id)
	if !ok {
		return geom.Vec3{}, false
	}
	v, ok := s.store.Get(entry.Entity, component.KindPosition)
	return v.Vec, ok
}
