// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package query

import (
	"sort"
	"time"

	"github.com/meshwire/meshd/hub"
	"github.com/meshwire/meshd/msaddr"
)

// Peer is one row of a query view: an address joined with its record and,
// when the address is live, its hub state.
type Peer struct {
	// Addr is the multiserver address.
	Addr string

	// Record is the peer record from whichever pool produced the row.
	Record *msaddr.PeerRecord

	// State is the hub state of the address.  It is only meaningful when
	// HasState is true.
	State    hub.ConnState
	HasState bool
}

// View is an ordered collection of peers supporting chainable filtering.
// Views are values; combinators return new views and never mutate their
// input.
type View []Peer

// Filter returns the peers whose record satisfies the predicate.
func (v View) Filter(pred RecordPredicate) View {
	filtered := make(View, 0, len(v))
	for _, p := range v {
		if pred(p.Record) {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// FilterPeers returns the peers satisfying a predicate over the whole row,
// for filters that need the address or hub state rather than the record
// alone.
func (v View) FilterPeers(pred func(Peer) bool) View {
	filtered := make(View, 0, len(v))
	for _, p := range v {
		if pred(p) {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// SortByStateChange returns the view stably sorted ascending by the record's
// last state transition time.
func (v View) SortByStateChange() View {
	sorted := make(View, len(v))
	copy(sorted, v)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Record.StateChange.Before(sorted[j].Record.StateChange)
	})
	return sorted
}

// Take returns at most the first n peers of the view.
func (v View) Take(n int) View {
	if n < 0 {
		n = 0
	}
	if n > len(v) {
		n = len(v)
	}
	taken := make(View, n)
	copy(taken, v[:n])
	return taken
}

// Addrs returns the addresses of the view in order.
func (v View) Addrs() []string {
	addrs := make([]string, len(v))
	for i, p := range v {
		addrs[i] = p.Addr
	}
	return addrs
}

// debounceGroupKey groups candidates by host so repeated dials do not hammer
// one machine.  Records without a host fall back to the peer identity.
func debounceGroupKey(p Peer) string {
	if p.Record.Host != "" {
		return p.Record.Host
	}
	return p.Record.Key.String()
}

// DebounceGroups partitions the view into debounce groups keyed by host (or
// key when the host is absent) and admits at most one peer per group: groups
// with any member touched within the min window are suppressed entirely, and
// a quiet group is represented by its member with the oldest state change.
func (v View) DebounceGroups(now time.Time, min time.Duration) View {
	type groupState struct {
		newest time.Time
		pick   int
	}
	groups := make(map[string]*groupState)
	order := make([]string, 0, len(v))

	for i, p := range v {
		key := debounceGroupKey(p)
		g, ok := groups[key]
		if !ok {
			groups[key] = &groupState{newest: p.Record.StateChange, pick: i}
			order = append(order, key)
			continue
		}
		if p.Record.StateChange.After(g.newest) {
			g.newest = p.Record.StateChange
		}
		if p.Record.StateChange.Before(v[g.pick].Record.StateChange) {
			g.pick = i
		}
	}

	passed := make(View, 0, len(groups))
	for _, key := range order {
		g := groups[key]
		if now.Sub(g.newest) < min {
			continue
		}
		passed = append(passed, v[g.pick])
	}
	return passed
}
