// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package reliable

import (
	"math/rand"
	"reflect"
	"testing"

	"github.com/marko-gacesa/udpstate/sequence"
)

func payloads(entries []sequence.Entry) []string {
	var r []string
	for _, e := range entries {
		r = append(r, string(e.Payload))
	}
	return r
}

func TestSenderReceiver(t *testing.T) {
	s := NewSender()
	r := NewReceiver()

	e1 := s.Push([]byte("a"))
	e2 := s.Push([]byte("b"))
	e3 := s.Push([]byte("c"))

	if want, got := 3, s.Pending(); want != got {
		t.Errorf("pending: want=%d got=%d", want, got)
	}

	// entry 2 is lost
	got := r.Receive([]sequence.Entry{e1, e3})
	if want := []string{"a"}; !reflect.DeepEqual(want, payloads(got)) {
		t.Errorf("delivered: want=%v got=%v", want, payloads(got))
	}

	if want, got := sequence.Sequence(1), r.Last(); want != got {
		t.Errorf("last: want=%d got=%d", want, got)
	}
	if want, got := []sequence.Range{sequence.RangeLen(2, 1)}, r.Missing(); !reflect.DeepEqual(want, got) {
		t.Errorf("missing: want=%v got=%v", want, got)
	}

	resend := s.Confirm(r.Last(), r.Missing())
	if want := []string{"b"}; !reflect.DeepEqual(want, payloads(resend)) {
		t.Errorf("resend: want=%v got=%v", want, payloads(resend))
	}
	if want, got := 2, s.Pending(); want != got {
		t.Errorf("pending after confirm: want=%d got=%d", want, got)
	}

	got = r.Receive([]sequence.Entry{e2, e3})
	if want := []string{"b", "c"}; !reflect.DeepEqual(want, payloads(got)) {
		t.Errorf("delivered: want=%v got=%v", want, payloads(got))
	}

	if got := r.Receive([]sequence.Entry{e1, e2}); len(got) != 0 {
		t.Errorf("duplicates delivered: %v", payloads(got))
	}

	s.Confirm(r.Last(), r.Missing())
	if want, got := 0, s.Pending(); want != got {
		t.Errorf("pending at end: want=%d got=%d", want, got)
	}
	if len(r.Missing()) != 0 {
		t.Errorf("missing at end: %v", r.Missing())
	}
}

func TestSender_Pack(t *testing.T) {
	s := NewSender(WithMaxPackSize(5))

	s.Push([]byte("123"))
	s.Push([]byte("45"))
	s.Push([]byte("6"))

	if want, got := []string{"123", "45"}, payloads(s.Pack()); !reflect.DeepEqual(want, got) {
		t.Errorf("pack: want=%v got=%v", want, got)
	}

	s.Confirm(2, nil)

	if want, got := []string{"6"}, payloads(s.Pack()); !reflect.DeepEqual(want, got) {
		t.Errorf("pack: want=%v got=%v", want, got)
	}

	big := NewSender(WithMaxPackSize(1))
	big.Push([]byte("too large"))
	if want, got := 1, len(big.Pack()); want != got {
		t.Errorf("pack with a large entry: want=%d got=%d", want, got)
	}
}

// TestLossy sends entries over a channel that loses and reorders packs
// and checks that all are delivered exactly once and in order.
func TestLossy(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))

	s := NewSender(WithMaxPackSize(20))
	r := NewReceiver()

	const n = 200

	var sent, delivered []string
	var inFlight [][]sequence.Entry

	for round := 0; len(delivered) < n && round < 10000; round++ {
		if len(sent) < n {
			p := string(rune('a'+len(sent)%26)) + string(rune('0'+len(sent)%10))
			sent = append(sent, p)
			s.Push([]byte(p))
		}

		inFlight = append(inFlight, s.Pack())
		rnd.Shuffle(len(inFlight), func(i, j int) { inFlight[i], inFlight[j] = inFlight[j], inFlight[i] })

		pack := inFlight[0]
		inFlight = inFlight[1:]

		if rnd.Intn(3) == 0 {
			continue // lost
		}

		delivered = append(delivered, payloads(r.Receive(pack))...)

		if rnd.Intn(2) == 0 {
			s.Confirm(r.Last(), r.Missing())
		}
	}

	if !reflect.DeepEqual(sent, delivered) {
		t.Errorf("delivered entries differ: sent=%d delivered=%d", len(sent), len(delivered))
	}
}
