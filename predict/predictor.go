// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package predict

import (
	"math"
	"time"

	"github.com/marko-gacesa/udpstate/geom"
	"github.com/marko-gacesa/udpstate/sequence"
	"github.com/marko-gacesa/udpstate/udpstate"
)

type Phase byte

const (
	PhaseIdle Phase = iota
	PhasePredicting
	PhaseReconciling
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePredicting:
		return "predicting"
	case PhaseReconciling:
		return "reconciling"
	default:
		return "unknown"
	}
}

type State struct {
	Position geom.Vec3
	Rotation geom.Quat
	Velocity geom.Vec3
}

// Predictor holds the prediction state of one locally controlled entity.
type Predictor struct {
	id    udpstate.NetworkID
	phase Phase

	current State
	states  *sequence.Recent[State] // state after applying the input with the sequence

	reconciled sequence.Sequence

	offsetPos geom.Vec3
	offsetRot geom.Quat
}

func newPredictor(id udpstate.NetworkID, state State, capacity int) *Predictor {
	return &Predictor{
		id:        id,
		phase:     PhaseIdle,
		current:   state,
		states:    sequence.NewRecent[State](capacity),
		offsetRot: geom.Identity(),
	}
}

func (p *Predictor) ID() udpstate.NetworkID { return p.id }
func (p *Predictor) Phase() Phase            { return p.phase }
func (p *Predictor) State() State            { return p.current }

// Reconciled returns the sequence of the last input confirmed by the server for this entity.
func (p *Predictor) Reconciled() sequence.Sequence { return p.reconciled }

// Offset returns the current visual error offset.
func (p *Predictor) Offset() (geom.Vec3, geom.Quat) {
	return p.offsetPos, p.offsetRot
}

// Predicted returns the predicted state after the input with the sequence.
func (p *Predictor) Predicted(seq sequence.Sequence) (State, bool) {
	return p.states.Get(seq)
}

func (p *Predictor) advance(sim Simulator, cmd InputCommand) {
	p.current = sim(p.id, p.current, cmd)
	p.states.Put(cmd.Seq, p.current)
	p.phase = PhasePredicting
}

// correct replaces the current state keeping the rendered state where it was.
func (p *Predictor) correct(state State) {
	renderedPos := p.current.Position.Add(p.offsetPos)
	renderedRot := p.offsetRot.Mul(p.current.Rotation)

	p.current = state
	p.offsetPos = renderedPos.Sub(state.Position)
	p.offsetRot = renderedRot.Mul(state.Rotation.Conjugate()).Normalize()
}

func (p *Predictor) render(dt, smoothing time.Duration) State {
	if smoothing <= 0 {
		p.offsetPos = geom.Vec3{}
		p.offsetRot = geom.Identity()
	} else if dt > 0 {
		f := math.Exp(-float64(dt) / float64(smoothing))
		p.offsetPos = p.offsetPos.Scale(f)
		p.offsetRot = geom.Nlerp(geom.Identity(), p.offsetRot, f)

		if p.offsetPos.Len() < offsetEpsilon {
			p.offsetPos = geom.Vec3{}
		}
		if p.offsetRot.Angle(geom.Identity()) < offsetEpsilon {
			p.offsetRot = geom.Identity()
		}
	}

	return State{
		Position: p.current.Position.Add(p.offsetPos),
		Rotation: p.offsetRot.Mul(p.current.Rotation).Normalize(),
		Velocity: p.current.Velocity,
	}
}

func (p *Predictor) clear() {
	p.states.Clear()
	p.phase = PhaseIdle
	p.offsetPos = geom.Vec3{}
	p.offsetRot = geom.Identity()
}
