// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package query

import (
	"sort"

	"github.com/meshwire/meshd/addrbook"
	"github.com/meshwire/meshd/hub"
	"github.com/meshwire/meshd/staging"
)

// Origin selects which pool a connectable-peers projection draws from.
type Origin string

// The pools a projection can draw from.
const (
	// OriginDB draws candidates from the durable address book.
	OriginDB = Origin("db")

	// OriginStaging draws candidates from the ephemeral staging pool.
	OriginStaging = Origin("staging")
)

// Query is a read-only facade joining the address book, the hub, and the
// staging pool into filterable views.  It holds no state of its own; every
// projection is computed from fresh pool snapshots.
type Query struct {
	book    *addrbook.Book
	hub     *hub.Hub
	staging *staging.Pool
}

// New returns a query facade over the three pools.
func New(book *addrbook.Book, h *hub.Hub, pool *staging.Pool) *Query {
	return &Query{book: book, hub: h, staging: pool}
}

// PeersInConnection returns the hub entries that are connecting or connected.
func (q *Query) PeersInConnection() View {
	entries := q.hub.Entries()
	v := make(View, 0, len(entries))
	for _, e := range entries {
		v = append(v, Peer{
			Addr:     e.Addr,
			Record:   e.Record,
			State:    e.State,
			HasState: true,
		})
	}
	return v
}

// PeersConnected returns only the hub entries whose transport handshake has
// completed.
func (q *Query) PeersConnected() View {
	return q.PeersInConnection().FilterPeers(func(p Peer) bool {
		return p.State == hub.StateConnected
	})
}

// PeersConnectable returns the entries of the chosen pool whose address is
// not currently in flight in the hub.
func (q *Query) PeersConnectable(origin Origin) View {
	var v View
	switch origin {
	case OriginStaging:
		entries := q.staging.Entries()
		v = make(View, 0, len(entries))
		for _, e := range entries {
			v = append(v, Peer{Addr: e.Addr, Record: e.Record})
		}
	default:
		entries := q.book.Entries()
		v = make(View, 0, len(entries))
		for addr, rec := range entries {
			v = append(v, Peer{Addr: addr, Record: rec})
		}
		sort.Slice(v, func(i, j int) bool { return v[i].Addr < v[j].Addr })
	}

	return v.FilterPeers(func(p Peer) bool {
		_, live := q.hub.GetState(p.Addr)
		return !live
	})
}
