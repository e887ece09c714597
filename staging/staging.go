// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package staging

import (
	"sort"
	"sync"
	"time"

	"github.com/meshwire/meshd/msaddr"
)

// Entry is a point-in-time view of one staged candidate.
type Entry struct {
	// Addr is the multiserver address of the candidate.
	Addr string

	// Record is a copy of the candidate's peer record.
	Record *msaddr.PeerRecord
}

// Config holds the configuration options related to the staging pool.
type Config struct {
	// IsLive reports whether the address currently has an active hub
	// entry.  Staging refuses such addresses since they are already in
	// flight.
	IsLive func(addr string) bool

	// Now returns the current wall-clock time.  It defaults to time.Now
	// and exists so tests can drive deterministic timestamps.
	Now func() time.Time
}

// Pool is the ephemeral set of candidate addresses discovered out of band but
// not yet promoted into the hub.  Every staged record carries the time it was
// last refreshed, which the scheduler uses to age candidates out.
type Pool struct {
	// mtx protects all fields below.
	mtx sync.Mutex

	cfg     Config
	entries map[string]*msaddr.PeerRecord

	nextSub uint64
	subs    map[uint64]*entryQueue
	closed  bool
}

// New returns an empty staging pool.
func New(cfg *Config) *Pool {
	p := Pool{
		cfg:     *cfg, // Copy so caller can't mutate
		entries: make(map[string]*msaddr.PeerRecord),
		subs:    make(map[uint64]*entryQueue),
	}
	if p.cfg.Now == nil {
		p.cfg.Now = time.Now
	}
	if p.cfg.IsLive == nil {
		p.cfg.IsLive = func(string) bool { return false }
	}
	return &p
}

// notifyLocked publishes the current candidate set to every watcher.
//
// This function MUST be called with the pool mutex held.
func (p *Pool) notifyLocked() {
	if len(p.subs) == 0 {
		return
	}
	snapshot := p.snapshotLocked()
	for _, q := range p.subs {
		q.set(snapshot)
	}
}

// snapshotLocked copies the current candidate set, sorted by address.
//
// This function MUST be called with the pool mutex held.
func (p *Pool) snapshotLocked() []Entry {
	snapshot := make([]Entry, 0, len(p.entries))
	for addr, rec := range p.entries {
		snapshot = append(snapshot, Entry{Addr: addr, Record: rec.Clone()})
	}
	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].Addr < snapshot[j].Addr
	})
	return snapshot
}

// Stage inserts or refreshes a candidate and stamps its staging time.  It
// returns false when the address is already live in the hub or the pool is
// closed.
func (p *Pool) Stage(addr string, data *msaddr.PeerRecord) bool {
	if p.cfg.IsLive(addr) {
		log.Tracef("Refusing to stage live address %s", addr)
		return false
	}

	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.closed {
		return false
	}

	now := p.cfg.Now()
	if existing, ok := p.entries[addr]; ok {
		existing.Merge(data)
		existing.StagingUpdated = now
	} else {
		rec := data.Clone()
		if rec == nil {
			rec = new(msaddr.PeerRecord)
		}
		rec.StagingUpdated = now
		p.entries[addr] = rec
		log.Debugf("Staged %s", addr)
	}
	p.notifyLocked()
	return true
}

// Unstage removes a candidate.  Absent addresses are ignored.
func (p *Pool) Unstage(addr string) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	if _, ok := p.entries[addr]; !ok {
		return
	}
	delete(p.entries, addr)
	log.Debugf("Unstaged %s", addr)
	p.notifyLocked()
}

// Get returns a copy of the staged record for the address.
func (p *Pool) Get(addr string) (*msaddr.PeerRecord, bool) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	rec, ok := p.entries[addr]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Entries returns a snapshot of all staged candidates sorted by address.
func (p *Pool) Entries() []Entry {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	return p.snapshotLocked()
}

// LiveEntries subscribes to candidate-set snapshots.  The current set is
// delivered immediately, then again after every change.  Intermediate
// snapshots a slow consumer missed are replaced by newer ones.
func (p *Pool) LiveEntries() (<-chan []Entry, func()) {
	p.mtx.Lock()
	defer p.mtx.Unlock()

	q := newEntryQueue()
	if p.closed {
		q.stop()
		return q.out, func() {}
	}

	id := p.nextSub
	p.nextSub++
	p.subs[id] = q
	q.set(p.snapshotLocked())

	cancel := func() {
		p.mtx.Lock()
		delete(p.subs, id)
		p.mtx.Unlock()
		q.stop()
	}
	return q.out, cancel
}

// Close permanently shuts the pool down, dropping all candidates and closing
// watcher channels.
func (p *Pool) Close() error {
	p.mtx.Lock()
	if p.closed {
		p.mtx.Unlock()
		return nil
	}
	p.closed = true
	p.entries = make(map[string]*msaddr.PeerRecord)
	subs := p.subs
	p.subs = make(map[uint64]*entryQueue)
	p.mtx.Unlock()

	for _, q := range subs {
		q.stop()
	}
	return nil
}
