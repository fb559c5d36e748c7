// Copyright (c) 2023-2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

// Package client mirrors the server's replicated entities into a local entity store.
//
// Remote entities are rendered with interpolation between received snapshots.
// Entities owned by the client are predicted from local input and reconciled
// with the server state. Start serves the network, Tick must be called from the
// simulation goroutine once per simulation tick.
package client

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/marko-gacesa/udpstate/component"
	"github.com/marko-gacesa/udpstate/delta"
	"github.com/marko-gacesa/udpstate/interp"
	"github.com/marko-gacesa/udpstate/metrics"
	"github.com/marko-gacesa/udpstate/predict"
	"github.com/marko-gacesa/udpstate/reliable"
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
	DefaultTimeout         = 5 * time.Second
	DefaultGapTimeout      = 3 * time.Second / 30
	DefaultInputRedundancy = 16
	DefaultHelloInterval   = 250 * time.Millisecond

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
} = (*Client)(nil)

type Client struct {
	conn     transport.Conn
	token    udpstate.Token
	store    store.Store
	registry *component.Registry

	manager   *replication.Manager
	predictor *predict.Engine
	buffers   map[udpstate.NetworkID]*interp.Buffer

	inbound chan message.ServerMessage
	events  chan udpstate.Event

	// snapshot stream
	stream   *sequence.Stream
	pending  map[sequence.Sequence]*message.Snapshot
	history  *sequence.Recent[*snapshot.Snapshot]
	current  *snapshot.Snapshot
	acks     sequence.AckWindow
	inputAck sequence.Sequence
	resync   bool

	eventsRx *reliable.Receiver

	connected bool
	lastHeard time.Time
	lastHello time.Time
	updateSeq sequence.Sequence
	tick      uint32
	buffer    []byte

	// server clock, used to render interpolated entities
	serverTick   uint32
	serverTickAt time.Time
	interval     time.Duration

	simulator       predict.Simulator
	predictOpts     []func(*predict.Engine)
	interpDelay     time.Duration
	gapTimeout      time.Duration
	timeout         time.Duration
	helloInterval   time.Duration
	inputRedundancy int
	historyDepth    int

	metrics *metrics.Metrics
	log     *slog.Logger
}

func New(
	conn transport.Conn,
	token udpstate.Token,
	s store.Store,
	registry *component.Registry,
	opts ...func(*Client),
) *Client {
	c := &Client{
		conn:            conn,
		token:           token,
		store:           s,
		registry:        registry,
		buffers:         make(map[udpstate.NetworkID]*interp.Buffer),
		inbound:         make(chan message.ServerMessage, inboundQueueSize),
		events:          make(chan udpstate.Event, eventQueueSize),
		pending:         make(map[sequence.Sequence]*message.Snapshot),
		interval:        interp.DefaultTickInterval,
		interpDelay:     interp.DefaultDelay,
		gapTimeout:      DefaultGapTimeout,
		timeout:         DefaultTimeout,
		helloInterval:   DefaultHelloInterval,
		inputRedundancy: DefaultInputRedundancy,
		historyDepth:    delta.DefaultHistoryDepth,
		log:             slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.log = c.log.With("client", token)

	if c.simulator == nil {
		c.simulator = func(_ udpstate.NetworkID, state predict.State, _ predict.InputCommand) predict.State {
			return state
		}
	}

	c.predictor = predict.NewEngine(c.simulator,
		append([]func(*predict.Engine){predict.WithLogger(c.log)}, c.predictOpts...)...)

	c.manager = replication.NewManager(s, registry, token,
		replication.WithLogger(c.log),
		replication.WithSpawnHook(c.onSpawn),
		replication.WithDespawnHook(c.onDespawn),
		replication.WithOwnerHook(c.onOwner))

	c.reset()

	return c
}

func WithLogger(log *slog.Logger) func(*Client) {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) func(*Client) {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithSimulator sets the deterministic simulation used to predict entities owned by the client.
// Without it owned entities keep the last state received from the server.
func WithSimulator(sim predict.Simulator, opts ...func(*predict.Engine)) func(*Client) {
	return func(c *Client) {
		c.simulator = sim
		c.predictOpts = opts
	}
}

// WithInterpolationDelay sets how far in the past remote entities are rendered.
func WithInterpolationDelay(d time.Duration) func(*Client) {
	return func(c *Client) {
		if d >= 0 {
			c.interpDelay = d
		}
	}
}

// WithGapTimeout sets how long a snapshot arriving out of order waits for the missing ones.
func WithGapTimeout(d time.Duration) func(*Client) {
	return func(c *Client) {
		if d > 0 {
			c.gapTimeout = d
		}
	}
}

// WithTimeout sets how long the server may be silent before the connection is considered lost.
func WithTimeout(d time.Duration) func(*Client) {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithInputRedundancy sets how many of the newest unconfirmed inputs each update carries.
func WithInputRedundancy(n int) func(*Client) {
	return func(c *Client) {
		c.inputRedundancy = min(max(n, 1), message.LenInputs)
	}
}

// WithHistoryDepth sets how many received snapshots are kept as possible baselines.
// It should match the server's history depth.
func WithHistoryDepth(n int) func(*Client) {
	return func(c *Client) {
		if n > 0 {
			c.historyDepth = n
		}
	}
}

// Start serves the network until the context is done. Received packets are queued for Tick.
func (c *Client) Start(ctx context.Context) error {
	err := c.conn.Listen(ctx, c.handleIncoming)

	c.log.Info("client stopped")

	return err
}

func (c *Client) handleIncoming(data []byte) {
	defer util.Recover(c.log)

	if len(data) == 0 {
		c.log.Warn("received empty message")
		return
	}

	msg := message.ParseServer(bytes.Clone(data))
	if msg == nil {
		c.log.Warn("received unrecognized message", "size", len(data))
		return
	}

	if msg.GetToken() != c.token {
		c.log.Warn("received message for another client",
			"other", msg.GetToken(),
			"type", msg.Type())
		return
	}

	select {
	case c.inbound <- msg:
	default:
		c.log.Warn("inbound queue full, message dropped", "type", msg.Type())
	}
}

func (c *Client) Events() <-chan udpstate.Event {
	return c.events
}

func (c *Client) emit(event udpstate.Event) {
	select {
	case c.events <- event:
	default:
		c.log.Warn("event queue full, event dropped", "kind", event.Kind)
	}
}

// Tick applies the received snapshots and events and sends an update to the server.
func (c *Client) Tick() {
	now := time.Now()

	c.tick++

	c.receive(now)
	c.deliver(c.stream.SkipExpired(now), now)
	c.expire(now)
	c.send(now)
}

// Input predicts the input locally and queues it for the server. It returns the input sequence.
func (c *Client) Input(payload []byte) sequence.Sequence {
	return c.predictor.Predict(c.tick, payload).Seq
}

// Leave tells the server the client is leaving.
func (c *Client) Leave() error {
	msg := message.Bye{Token: c.token}
	return c.conn.Send(msg.Put(nil), transport.ModeReliableOrdered)
}

func (c *Client) Token() udpstate.Token {
	return c.token
}

func (c *Client) Connected() bool {
	return c.connected
}

// Manager returns the replication manager holding the local shadow entities.
func (c *Client) Manager() *replication.Manager {
	return c.manager
}

// Interpolated returns the interpolated values of a remote entity at the current render time.
func (c *Client) Interpolated(id udpstate.NetworkID) (interp.Sample, bool) {
	b, ok := c.buffers[id]
	if !ok {
		return interp.Sample{}, false
	}
	return b.SampleAt(c.serverTime(time.Now()))
}

// Predicted returns the predicted state of an entity owned by the client,
// with the visual correction offset decayed by dt.
func (c *Client) Predicted(id udpstate.NetworkID, dt time.Duration) (predict.State, bool) {
	return c.predictor.Render(id, dt)
}

// serverTime estimates the current time of the server's simulation.
func (c *Client) serverTime(now time.Time) time.Duration {
	if c.serverTickAt.IsZero() {
		return 0
	}
	return time.Duration(c.serverTick)*c.interval + now.Sub(c.serverTickAt)
}

// reset discards all connection state.
func (c *Client) reset() {
	c.stream = sequence.NewStream(sequence.WithMaxWait(c.gapTimeout))
	clear(c.pending)
	c.history = sequence.NewRecent[*snapshot.Snapshot](c.historyDepth)
	c.current = nil
	c.acks.Reset()
	c.inputAck = sequence.SequenceNone
	c.resync = false
	c.eventsRx = reliable.NewReceiver(reliable.WithMaxMissing(message.LenMissing))
	c.connected = false
	c.serverTick = 0
	c.serverTickAt = time.Time{}
}

func (c *Client) expire(now time.Time) {
	if !c.connected || now.Sub(c.lastHeard) <= c.timeout {
		return
	}

	n := c.manager.DespawnAll()

	c.log.Warn("connection lost",
		"silent", now.Sub(c.lastHeard),
		"despawned", n,
		"err", udpstate.ErrConnectionLost)

	c.reset()

	c.emit(udpstate.Event{Kind: udpstate.EventConnectionLost, Token: c.token, Err: udpstate.ErrConnectionLost})
}

func (c *Client) send(now time.Time) {
	if !c.connected {
		if now.Sub(c.lastHello) < c.helloInterval {
			return
		}
		c.lastHello = now

		msg := message.Hello{Token: c.token}
		c.buffer = msg.Put(c.buffer[:0])
		if err := c.conn.Send(c.buffer, transport.ModeReliableOrdered); err != nil {
			c.log.Debug("failed to send hello", "err", err)
		}
		return
	}

	c.updateSeq = c.updateSeq.Next()

	var flags message.Flags
	if c.resync {
		flags |= message.FlagResyncRequest
	}

	pending := c.predictor.Pending(c.inputRedundancy)
	inputs := make([]message.Input, len(pending))
	for i, cmd := range pending {
		inputs[i] = message.Input{Seq: cmd.Seq, Tick: cmd.Tick, Payload: cmd.Payload}
	}

	msg := message.Update{
		Token: c.token,
		Header: message.Header{
			Seq:     c.updateSeq,
			Ack:     c.acks.Ack(),
			AckBits: c.acks.Bits(),
			Flags:   flags,
		},
		EventsLast:    c.eventsRx.Last(),
		EventsMissing: c.eventsRx.Missing(),
		Inputs:        inputs,
	}

	c.buffer = msg.Put(c.buffer[:0])

	if err := c.conn.Send(c.buffer, transport.ModeUnreliableSequenced); err != nil {
		c.log.Debug("failed to send update", "err", err)
		return
	}

	c.metrics.BytesSent(len(c.buffer))
}
