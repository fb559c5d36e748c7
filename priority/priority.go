// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

// Package priority decides which entities fit into a connection's per-tick bandwidth budget.
// Each entity accumulates score every tick it waits, so no entity starves.
package priority

import (
	"slices"

	"github.com/marko-gacesa/udpstate/udpstate"
)

const (
	DefaultDistanceFactor = 0.01
	minBase               = 1e-6
)

type Candidate struct {
	ID       udpstate.NetworkID
	Base     float64 // base priority of the entity
	Distance float64 // distance from the connection's point of interest
	Cost     int     // estimated size in bits
	Required bool    // selected every tick regardless of score and budget
}

// Accumulator keeps priority scores of one connection.
type Accumulator struct {
	scores map[udpstate.NetworkID]float64
	k      float64
	order  []int
}

func NewAccumulator(opts ...func(*Accumulator)) *Accumulator {
	a := &Accumulator{
		scores: make(map[udpstate.NetworkID]float64),
		k:      DefaultDistanceFactor,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// WithDistanceFactor sets how fast priority falls off with distance.
func WithDistanceFactor(k float64) func(*Accumulator) {
	return func(a *Accumulator) {
		if k >= 0 {
			a.k = k
		}
	}
}

// Accumulate increases the score of every candidate by base/(1+k*distance).
func (a *Accumulator) Accumulate(candidates []Candidate) {
	for i := range candidates {
		c := &candidates[i]
		base := max(c.Base, minBase)
		a.scores[c.ID] += base / (1 + a.k*max(c.Distance, 0))
	}
}

// Select picks the candidates with the highest score that fit into the budget.
// Required candidates are picked first and their cost is taken from the budget.
// The first of the other candidates is always picked even if it alone exceeds the budget.
// Scores of the selected candidates are reset to zero.
// The returned slice holds the selected candidates in order of selection.
func (a *Accumulator) Select(candidates []Candidate, budgetBits int) []Candidate {
	if len(candidates) == 0 {
		return nil
	}

	a.order = a.order[:0]
	for i := range candidates {
		a.order = append(a.order, i)
	}

	slices.SortFunc(a.order, func(i, j int) int {
		si, sj := a.scores[candidates[i].ID], a.scores[candidates[j].ID]
		switch {
		case candidates[i].Required && !candidates[j].Required:
			return -1
		case !candidates[i].Required && candidates[j].Required:
			return 1
		case si > sj:
			return -1
		case si < sj:
			return 1
		case candidates[i].ID < candidates[j].ID:
			return -1
		case candidates[i].ID > candidates[j].ID:
			return 1
		}
		return 0
	})

	var selected []Candidate
	remaining := budgetBits
	optional := false

	for _, i := range a.order {
		c := candidates[i]
		if !c.Required {
			if optional && c.Cost > remaining {
				continue
			}
			optional = true
		}

		remaining -= c.Cost
		selected = append(selected, c)
		a.scores[c.ID] = 0
	}

	return selected
}

func (a *Accumulator) Score(id udpstate.NetworkID) float64 {
	return a.scores[id]
}

// Forget removes the score of an entity that is no longer replicated to the connection.
func (a *Accumulator) Forget(id udpstate.NetworkID) {
	delete(a.scores, id)
}

func (a *Accumulator) Len() int {
	return len(a.scores)
}
