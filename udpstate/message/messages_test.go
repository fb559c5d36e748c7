// Copyright (c) 2023, 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package message

import (
	"errors"
	"io"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/marko-gacesa/udpstate/sequence"
	"github.com/marko-gacesa/udpstate/udpstate"
)

var r = rand.New(rand.NewSource(time.Now().UnixNano()))

func getToken() udpstate.Token {
	return udpstate.Token(r.Uint32())
}

func getSeq() sequence.Sequence {
	return sequence.Sequence(r.Uint32())
}

func getHeader() Header {
	return Header{
		Seq:     getSeq(),
		Ack:     getSeq(),
		AckBits: r.Uint32(),
		Flags:   Flags(r.Intn(4)),
	}
}

func getPayload() []byte {
	l := r.Intn(10) + 5
	a := make([]byte, l)
	r.Read(a)
	return a
}

func TestClientSerialize(t *testing.T) {
	tests := []ClientMessage{
		&Hello{Token: getToken()},
		&Bye{Token: getToken()},
		&Update{
			Token:      getToken(),
			Header:     getHeader(),
			EventsLast: getSeq(),
		},
		&Update{
			Token:      getToken(),
			Header:     getHeader(),
			EventsLast: getSeq(),
			EventsMissing: []sequence.Range{
				sequence.RangeLen(3, 2),
				sequence.RangeLen(10, 1),
			},
			Inputs: []Input{
				{Seq: getSeq(), Tick: r.Uint32(), Payload: getPayload()},
				{Seq: getSeq(), Tick: r.Uint32(), Payload: getPayload()},
			},
		},
	}

	var buf [MaxMessageSize]byte
	for _, msg := range tests {
		t.Run(msg.Type().String(), func(t *testing.T) {
			data := msg.Put(buf[:0])

			if msg.Size() != len(data) {
				t.Errorf("size mismatch: msg=%d buf=%d", msg.Size(), len(data))
			}

			msgClone := ParseClient(data)

			if !reflect.DeepEqual(msg, msgClone) {
				t.Errorf("not equal: orig=%+v clone=%+v", msg, msgClone)
			}

			if ParseServer(data) != nil {
				t.Errorf("parsed as a server message")
			}
		})
	}
}

func TestServerSerialize(t *testing.T) {
	tests := []ServerMessage{
		&Snapshot{
			Token:    getToken(),
			Header:   getHeader(),
			Baseline: getSeq(),
			Tick:     r.Uint32(),
			InputAck: getSeq(),
			Body:     make([]byte, 1000),
		},
		&Events{
			Token: getToken(),
			Entries: []sequence.Entry{
				{Seq: getSeq(), Payload: getPayload()},
				{Seq: getSeq(), Payload: getPayload()},
			},
		},
	}

	var buf [MaxMessageSize]byte
	for _, msg := range tests {
		t.Run(msg.Type().String(), func(t *testing.T) {
			data := msg.Put(buf[:0])

			if msg.Size() != len(data) {
				t.Errorf("size mismatch: msg=%d buf=%d", msg.Size(), len(data))
			}

			msgClone := ParseServer(data)

			if !reflect.DeepEqual(msg, msgClone) {
				t.Errorf("not equal: orig=%+v clone=%+v", msg, msgClone)
			}

			token, ok := ParseToken(data)
			if !ok || token != msg.GetToken() {
				t.Errorf("token: want=%v got=%v", msg.GetToken(), token)
			}
		})
	}
}

func TestBeacon(t *testing.T) {
	msg := &Beacon{
		Server:  getToken(),
		Port:    uint16(r.Uint32()),
		Clients: 3,
		Name:    "arena",
	}

	data := msg.Put(nil)

	if msg.Size() != len(data) {
		t.Errorf("size mismatch: msg=%d buf=%d", msg.Size(), len(data))
	}

	if clone := ParseBeacon(data); !reflect.DeepEqual(msg, clone) {
		t.Errorf("not equal: orig=%+v clone=%+v", msg, clone)
	}

	if ParseClient(data) != nil || ParseServer(data) != nil {
		t.Errorf("beacon parsed as a replication message")
	}
}

func TestEvent(t *testing.T) {
	e := Event{Kind: EventOwnership, ID: 7, Owner: getToken(), Value: r.Uint32()}

	data := e.Put(nil)
	if want, got := SizeOfEvent, len(data); want != got {
		t.Errorf("size: want=%d got=%d", want, got)
	}

	var clone Event
	rest, err := clone.Get(data)
	if err != nil || len(rest) != 0 {
		t.Fatalf("get: rest=%d err=%v", len(rest), err)
	}
	if e != clone {
		t.Errorf("not equal: orig=%+v clone=%+v", e, clone)
	}

	if _, err := clone.Get(data[:SizeOfEvent-1]); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("truncated: want=%v got=%v", io.ErrUnexpectedEOF, err)
	}
}

func TestTruncated(t *testing.T) {
	msg := &Update{
		Token:         getToken(),
		Header:        getHeader(),
		EventsLast:    getSeq(),
		EventsMissing: []sequence.Range{sequence.RangeLen(5, 3)},
		Inputs:        []Input{{Seq: 1, Tick: 2, Payload: getPayload()}},
	}

	data := msg.Put(nil)

	for n := range len(data) {
		var clone Update
		if _, err := clone.Get(data[:n]); err == nil {
			t.Errorf("no error for truncated message of size %d", n)
		}
		if ParseClient(data[:n]) != nil {
			t.Errorf("parsed truncated message of size %d", n)
		}
	}
}

func TestInvalid(t *testing.T) {
	valid := (&Hello{Token: getToken()}).Put(nil)

	tests := []struct {
		name   string
		modify func([]byte)
	}{
		{name: "prefix", modify: func(b []byte) { b[0]++ }},
		{name: "category", modify: func(b []byte) { b[4] = byte(CategoryBeacon) }},
		{name: "type", modify: func(b []byte) { b[5] = 200 }},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			data := append([]byte(nil), valid...)
			test.modify(data)
			if ParseClient(data) != nil {
				t.Errorf("invalid message parsed")
			}
		})
	}

	var msg Hello
	if _, err := msg.Get(valid[:3]); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("short: want=%v got=%v", io.ErrUnexpectedEOF, err)
	}

	bad := append([]byte(nil), valid...)
	bad[5] = byte(TypeBye)
	if _, err := msg.Get(bad); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("wrong type: want=%v got=%v", ErrInvalidMessage, err)
	}
}

func TestLenUpdate(t *testing.T) {
	msg := &Update{
		EventsMissing: make([]sequence.Range, LenMissing),
		Inputs:        make([]Input, LenInputs),
	}
	for i := range msg.EventsMissing {
		msg.EventsMissing[i] = sequence.RangeLen(sequence.Sequence(i*10+1), 2)
	}
	for i := range msg.Inputs {
		msg.Inputs[i].Payload = make([]byte, 16)
	}

	size := msg.Size()

	t.Logf("maximum size of Update: %d", size)
	if size > MaxMessageSize {
		t.Errorf("too large: %d", size)
	}
}
