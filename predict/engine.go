// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

// Package predict runs locally controlled entities ahead of the server and
// reconciles them when authoritative state arrives.
package predict

import (
	"log/slog"
	"slices"
	"time"

	"github.com/marko-gacesa/udpstate/sequence"
	"github.com/marko-gacesa/udpstate/udpstate"
)

const (
	DefaultInputCapacity     = 128
	DefaultPositionTolerance = 0.01
	DefaultRotationTolerance = 0.01
	DefaultSmoothing         = 100 * time.Millisecond

	offsetEpsilon = 1e-4
)

type InputCommand struct {
	Seq     sequence.Sequence
	Tick    uint32
	Payload []byte
}

// Simulator advances the state of an entity by one input. It must be deterministic.
type Simulator func(id udpstate.NetworkID, state State, cmd InputCommand) State

type Outcome byte

const (
	OutcomeUnknown Outcome = iota
	OutcomeStale
	OutcomeMatch
	OutcomeCorrected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUnknown:
		return "unknown"
	case OutcomeStale:
		return "stale"
	case OutcomeMatch:
		return "match"
	case OutcomeCorrected:
		return "corrected"
	default:
		return "invalid"
	}
}

// Engine owns the input buffer shared by all predicted entities of a client.
// It is not safe for concurrent use.
type Engine struct {
	sim Simulator
	log *slog.Logger

	capacity int
	inputs   *sequence.Recent[InputCommand]

	lastSeq   sequence.Sequence
	confirmed sequence.Sequence

	predictors map[udpstate.NetworkID]*Predictor

	posTolerance float64
	rotTolerance float64
	smoothing    time.Duration
}

func NewEngine(sim Simulator, opts ...func(*Engine)) *Engine {
	e := &Engine{
		sim:          sim,
		log:          slog.Default(),
		capacity:     DefaultInputCapacity,
		predictors:   make(map[udpstate.NetworkID]*Predictor),
		posTolerance: DefaultPositionTolerance,
		rotTolerance: DefaultRotationTolerance,
		smoothing:    DefaultSmoothing,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.inputs = sequence.NewRecent[InputCommand](e.capacity)

	return e
}

func WithLogger(log *slog.Logger) func(*Engine) {
	return func(e *Engine) {
		e.log = log
	}
}

// WithInputCapacity sets the size of the input buffer. It should cover the longest
// tolerated round trip time at the input rate.
func WithInputCapacity(n int) func(*Engine) {
	return func(e *Engine) {
		e.capacity = max(n, 1)
	}
}

// WithTolerance sets the largest position distance and rotation angle (in radians)
// between predicted and server state that is still considered a match.
func WithTolerance(position, rotation float64) func(*Engine) {
	return func(e *Engine) {
		e.posTolerance = position
		e.rotTolerance = rotation
	}
}

// WithSmoothing sets the time constant of the visual error offset decay.
// Zero disables smoothing.
func WithSmoothing(d time.Duration) func(*Engine) {
	return func(e *Engine) {
		e.smoothing = d
	}
}

// Add starts predicting the entity from the state.
func (e *Engine) Add(id udpstate.NetworkID, state State) *Predictor {
	p := newPredictor(id, state, e.inputs.Cap())
	e.predictors[id] = p
	return p
}

// Cancel abandons all buffered state of the entity without replay.
// It is used when the ownership of the entity is lost.
func (e *Engine) Cancel(id udpstate.NetworkID) bool {
	p, ok := e.predictors[id]
	if !ok {
		return false
	}

	p.clear()
	delete(e.predictors, id)

	e.log.Debug("prediction canceled", "id", id)

	return true
}

func (e *Engine) Predictor(id udpstate.NetworkID) (*Predictor, bool) {
	p, ok := e.predictors[id]
	return p, ok
}

func (e *Engine) Len() int {
	return len(e.predictors)
}

// LastSeq returns the sequence of the last produced input.
func (e *Engine) LastSeq() sequence.Sequence {
	return e.lastSeq
}

// Confirmed returns the sequence of the last input the server confirmed.
func (e *Engine) Confirmed() sequence.Sequence {
	return e.confirmed
}

// Predict buffers a new input command and advances all predicted entities with it.
func (e *Engine) Predict(tick uint32, payload []byte) InputCommand {
	e.lastSeq = e.lastSeq.Next()

	cmd := InputCommand{
		Seq:     e.lastSeq,
		Tick:    tick,
		Payload: payload,
	}

	e.inputs.Put(cmd.Seq, cmd)

	for _, p := range e.predictors {
		p.advance(e.sim, cmd)
	}

	return cmd
}

// Reconcile compares the server state of the entity after the input seq with the prediction.
// On a mismatch the state is replaced with the server state and all buffered inputs newer
// than seq are replayed. The returned count is the number of replayed inputs.
func (e *Engine) Reconcile(id udpstate.NetworkID, seq sequence.Sequence, server State) (Outcome, int) {
	p, ok := e.predictors[id]
	if !ok {
		return OutcomeUnknown, 0
	}

	if p.reconciled != sequence.SequenceNone && !p.reconciled.Less(seq) {
		return OutcomeStale, 0
	}

	p.phase = PhaseReconciling
	p.reconciled = seq

	predicted, ok := p.states.Get(seq)
	if ok && e.matches(predicted, server) {
		p.states.RemoveBefore(seq)
		p.phase = PhasePredicting
		return OutcomeMatch, 0
	}

	state := server
	replayed := 0

	p.states.RemoveBefore(seq)
	p.states.Put(seq, state)

	e.inputs.IterateAfter(seq, func(s sequence.Sequence, cmd InputCommand) bool {
		state = e.sim(id, state, cmd)
		p.states.Put(s, state)
		replayed++
		return true
	})

	p.correct(state)
	p.phase = PhasePredicting

	e.log.Debug("prediction corrected",
		"id", id,
		"seq", seq,
		"replayed", replayed,
		"error", predicted.Position.Dist(server.Position))

	return OutcomeCorrected, replayed
}

// Confirm discards inputs up to and including seq. Predicted states older than seq are discarded.
// Predictors become idle when no unconfirmed input remains.
func (e *Engine) Confirm(seq sequence.Sequence) {
	if seq == sequence.SequenceNone || seq.Less(e.confirmed) || e.lastSeq.Less(seq) {
		return
	}

	e.confirmed = seq
	e.inputs.RemoveBefore(seq.Next())

	idle := seq == e.lastSeq

	for _, p := range e.predictors {
		p.states.RemoveBefore(seq)
		if idle {
			p.phase = PhaseIdle
		}
	}
}

// Pending returns at most limit of the newest unconfirmed inputs in increasing sequence order.
func (e *Engine) Pending(limit int) []InputCommand {
	if limit <= 0 {
		return nil
	}

	var cmds []InputCommand
	e.inputs.IterateAfter(e.confirmed, func(_ sequence.Sequence, cmd InputCommand) bool {
		cmds = append(cmds, cmd)
		return true
	})

	if len(cmds) > limit {
		cmds = slices.Clip(cmds[len(cmds)-limit:])
	}

	return cmds
}

// Render returns the state of the entity with the visual error offset applied,
// decaying the offset by the elapsed time dt.
func (e *Engine) Render(id udpstate.NetworkID, dt time.Duration) (State, bool) {
	p, ok := e.predictors[id]
	if !ok {
		return State{}, false
	}

	return p.render(dt, e.smoothing), true
}

func (e *Engine) matches(predicted, server State) bool {
	return predicted.Position.Dist(server.Position) <= e.posTolerance &&
		predicted.Velocity.Dist(server.Velocity) <= e.posTolerance &&
		predicted.Rotation.Angle(server.Rotation) <= e.rotTolerance
}
