// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package delta

import (
	"fmt"

	"github.com/marko-gacesa/udpstate/bitpack"
	"github.com/marko-gacesa/udpstate/component"
	"github.com/marko-gacesa/udpstate/udpstate"
)

// maxChanges limits the number of entity changes a single body may declare.
const maxChanges = 1 << 16

// minChangeBits is the size of the smallest change: a one byte id varint and the opcode.
const minChangeBits = 8 + opBits

// Write encodes the changes into a bit packed body:
//
//	count:varint
//	per change: idDelta:varint op:2
//	  create: mask:maskBits values...
//	  update: mask:maskBits values... removed:1 [removedMask:maskBits]
//
// Network IDs are written as a difference from the previous change's ID.
func Write(w *bitpack.Writer, registry *component.Registry, changes []Change) error {
	maskBits := registry.MaskBits()

	w.WriteVarint(uint64(len(changes)))

	var prevID udpstate.NetworkID
	for n := range changes {
		ch := &changes[n]

		w.WriteVarint(uint64(ch.ID - prevID))
		w.WriteBits(uint64(ch.Op), opBits)
		prevID = ch.ID

		if ch.Op == OpDestroy {
			continue
		}

		var mask component.Mask
		for _, r := range ch.Records {
			mask = mask.With(r.Kind)
		}
		if mask&^registry.Mask() != 0 {
			return fmt.Errorf("delta: entity %v has unregistered components %b", ch.ID, mask&^registry.Mask())
		}

		w.WriteBits(uint64(mask), maskBits)

		var err error
		mask.Iterate(func(k component.Kind) bool {
			codec, _ := registry.Codec(k)
			for _, r := range ch.Records {
				if r.Kind == k {
					codec.Write(w, r.New)
					return true
				}
			}
			err = fmt.Errorf("delta: entity %v missing record for component %d", ch.ID, k)
			return false
		})
		if err != nil {
			return err
		}

		if ch.Op == OpUpdate {
			w.WriteBool(ch.Removed != 0)
			if ch.Removed != 0 {
				w.WriteBits(uint64(ch.Removed), maskBits)
			}
		}
	}

	return nil
}

// Read decodes a body written with Write. Records returned do not carry old values.
func Read(r *bitpack.Reader, registry *component.Registry) ([]Change, error) {
	maskBits := registry.MaskBits()

	count, err := r.ReadVarint()
	if err != nil {
		return nil, err
	}
	if count > maxChanges {
		return nil, fmt.Errorf("%w: too many changes: %d", udpstate.ErrProtocolDesync, count)
	}
	if count > uint64(r.Remaining()/minChangeBits) {
		return nil, fmt.Errorf("%w: %d changes in %d bits", udpstate.ErrProtocolDesync, count, r.Remaining())
	}

	changes := make([]Change, count)

	var prevID udpstate.NetworkID
	for n := range changes {
		ch := &changes[n]

		idDelta, err := r.ReadVarint()
		if err != nil {
			return nil, err
		}
		if idDelta == 0 || idDelta > 1<<32-1 {
			return nil, fmt.Errorf("%w: invalid entity id delta %d", udpstate.ErrProtocolDesync, idDelta)
		}
		ch.ID = prevID + udpstate.NetworkID(idDelta)
		prevID = ch.ID

		op, err := r.ReadBits(opBits)
		if err != nil {
			return nil, err
		}
		ch.Op = Op(op)

		switch ch.Op {
		case OpDestroy:
			continue
		case OpCreate, OpUpdate:
		default:
			return nil, fmt.Errorf("%w: invalid op %d", udpstate.ErrProtocolDesync, op)
		}

		m, err := r.ReadBits(maskBits)
		if err != nil {
			return nil, err
		}

		mask := component.Mask(m)
		if mask&^registry.Mask() != 0 {
			return nil, fmt.Errorf("%w: unknown components %b", udpstate.ErrProtocolDesync, mask&^registry.Mask())
		}

		ch.Records = make([]Record, 0, mask.Count())
		mask.Iterate(func(k component.Kind) bool {
			codec, _ := registry.Codec(k)
			var v component.Quantized
			v, err = codec.Read(r)
			if err != nil {
				return false
			}
			ch.Records = append(ch.Records, Record{ID: ch.ID, Kind: k, New: v})
			return true
		})
		if err != nil {
			return nil, err
		}

		if ch.Op == OpUpdate {
			hasRemoved, err := r.ReadBool()
			if err != nil {
				return nil, err
			}
			if hasRemoved {
				m, err := r.ReadBits(maskBits)
				if err != nil {
					return nil, err
				}
				ch.Removed = component.Mask(m)
			}
		}
	}

	return changes, nil
}
