// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package server

import (
	"github.com/marko-gacesa/udpstate/replication"
	"github.com/marko-gacesa/udpstate/store"
	"github.com/marko-gacesa/udpstate/udpstate"
	"github.com/marko-gacesa/udpstate/udpstate/message"
)

// The methods below must be called from the simulation goroutine, the same one that calls Tick.

// Register starts replicating the entity. Owner is the client controlling the entity,
// or udpstate.TokenServer. Registering an already registered entity returns its existing ID.
func (s *Server) Register(e store.Entity, owner udpstate.Token, priority float64) (udpstate.NetworkID, error) {
	id, err := s.table.Register(e, owner, priority)
	if err != nil {
		return udpstate.NetworkIDNone, err
	}

	if owner != udpstate.TokenServer {
		s.broadcastOwner(id, owner)
	}

	return id, nil
}

// Unregister stops replicating the entity. Clients despawn it with the next snapshot.
func (s *Server) Unregister(id udpstate.NetworkID) bool {
	entry, ok := s.table.Unregister(id)
	if !ok {
		return false
	}

	s.tracker.Forget(entry.Entity)

	return true
}

// SetOwner transfers control of the entity to another client or back to the server.
func (s *Server) SetOwner(id udpstate.NetworkID, owner udpstate.Token) bool {
	entry, ok := s.table.Get(id)
	if !ok {
		return false
	}

	if entry.Owner == owner {
		return true
	}

	s.table.SetOwner(id, owner)
	s.broadcastOwner(id, owner)

	return true
}

func (s *Server) SetPriority(id udpstate.NetworkID, priority float64) bool {
	return s.table.SetPriority(id, priority)
}

// Lookup returns the network ID of a registered entity.
func (s *Server) Lookup(e store.Entity) (udpstate.NetworkID, bool) {
	return s.table.Lookup(e)
}

func (s *Server) Entry(id udpstate.NetworkID) (replication.Entry, bool) {
	return s.table.Get(id)
}

// Clients returns tokens of the connected clients.
func (s *Server) Clients() []udpstate.Token {
	conns := s.connections()
	tokens := make([]udpstate.Token, len(conns))
	for i, c := range conns {
		tokens[i] = c.token
	}
	return tokens
}

// Disconnect drops the client. Its entities return to the server.
func (s *Server) Disconnect(token udpstate.Token) error {
	if _, ok := s.conns[token]; !ok {
		return ErrUnknownClient
	}
	s.disconnect(token, nil)
	return nil
}

func (s *Server) broadcastOwner(id udpstate.NetworkID, owner udpstate.Token) {
	event := message.Event{Kind: message.EventOwnership, ID: id, Owner: owner}
	for _, c := range s.conns {
		c.pushEvent(event)
	}

	s.emit(udpstate.Event{Kind: udpstate.EventOwnershipChanged, ID: id, Owner: owner})
}

// Stats returns the replication state of every connected client.
func (s *Server) Stats() []Stats {
	conns := s.connections()
	stats := make([]Stats, len(conns))
	for i, c := range conns {
		stats[i] = c.stats()
	}
	return stats
}
