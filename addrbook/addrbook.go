// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package addrbook

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/meshwire/meshd/msaddr"
)

// flushInterval is the maximum amount of time mutations are allowed to sit in
// memory before they are written to persistent storage.  It is a variable so
// tests can shorten it.
var flushInterval = 10 * time.Second

// Book provides a concurrency safe durable mapping from multiserver addresses
// to peer records.  Reads are always served from the in-memory image, so they
// reflect every write made in this process immediately.  Mutations mark the
// book dirty and arm a delayed flush, so they survive a process crash once the
// flush interval has elapsed.
type Book struct {
	// mtx protects all fields below.
	mtx sync.Mutex

	// db is the underlying persistent store.
	db *leveldb.DB

	// entries is the authoritative in-memory image of the book.
	entries map[string]*msaddr.PeerRecord

	// dirty and deleted track addresses whose persistent state is stale.
	// An address is in at most one of the two sets.
	dirty   map[string]struct{}
	deleted map[string]struct{}

	// flushTimer is armed while a delayed flush is pending.
	flushTimer *time.Timer

	// loaded is closed once the initial scan of persistent storage has
	// completed.
	loaded chan struct{}

	// closed is set once Close has been called.
	closed bool
}

// Open loads the address book stored at the provided directory, creating it
// when it does not yet exist.
func Open(path string) (*Book, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}

	b := &Book{
		db:      db,
		entries: make(map[string]*msaddr.PeerRecord),
		dirty:   make(map[string]struct{}),
		deleted: make(map[string]struct{}),
		loaded:  make(chan struct{}),
	}

	iter := db.NewIterator(nil, nil)
	for iter.Next() {
		addr := string(iter.Key())
		var rec msaddr.PeerRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			log.Warnf("Dropping undecodable record for %s: %v", addr, err)
			continue
		}
		b.entries[addr] = &rec
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		db.Close()
		return nil, err
	}
	close(b.loaded)

	log.Infof("Loaded %d peer addresses", len(b.entries))
	return b, nil
}

// Loaded returns a channel that is closed once the initial load from
// persistent storage has finished.
func (b *Book) Loaded() <-chan struct{} {
	return b.loaded
}

// markDirtyLocked records that the persistent state of the address is stale
// and arms the delayed flush.
//
// This function MUST be called with the book mutex held.
func (b *Book) markDirtyLocked(addr string, isDelete bool) {
	if isDelete {
		delete(b.dirty, addr)
		b.deleted[addr] = struct{}{}
	} else {
		delete(b.deleted, addr)
		b.dirty[addr] = struct{}{}
	}
	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(flushInterval, b.flush)
	}
}

// flush writes all pending mutations to persistent storage in one batch.
func (b *Book) flush() {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if b.closed {
		return
	}
	b.flushLocked()
}

// flushLocked writes all pending mutations to persistent storage in one
// batch.
//
// This function MUST be called with the book mutex held.
func (b *Book) flushLocked() {
	if b.flushTimer != nil {
		b.flushTimer.Stop()
		b.flushTimer = nil
	}
	if len(b.dirty) == 0 && len(b.deleted) == 0 {
		return
	}

	batch := new(leveldb.Batch)
	for addr := range b.dirty {
		rec, ok := b.entries[addr]
		if !ok {
			continue
		}
		serialized, err := json.Marshal(rec)
		if err != nil {
			log.Errorf("Failed to serialize record for %s: %v", addr, err)
			continue
		}
		batch.Put([]byte(addr), serialized)
	}
	for addr := range b.deleted {
		batch.Delete([]byte(addr))
	}

	if err := b.db.Write(batch, nil); err != nil {
		log.Errorf("Failed to flush address book: %v", err)
		return
	}

	log.Debugf("Flushed %d updates and %d deletions", len(b.dirty),
		len(b.deleted))
	b.dirty = make(map[string]struct{})
	b.deleted = make(map[string]struct{})
}

// Set upserts a record for the address.  When a record already exists, the
// set fields of data are merged over it.  The mutation is persisted within
// the flush interval.
func (b *Book) Set(addr string, data *msaddr.PeerRecord) error {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if b.closed {
		return makeError(ErrShutdown, "set on closed address book")
	}

	if existing, ok := b.entries[addr]; ok {
		existing.Merge(data)
	} else {
		b.entries[addr] = data.Clone()
	}
	b.markDirtyLocked(addr, false)
	return nil
}

// Delete removes the entry for the address.  Deleting an absent address is
// not an error.  The mutation is persisted within the flush interval.
func (b *Book) Delete(addr string) error {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if b.closed {
		return makeError(ErrShutdown, "delete on closed address book")
	}

	if _, ok := b.entries[addr]; !ok {
		return nil
	}
	delete(b.entries, addr)
	b.markDirtyLocked(addr, true)
	return nil
}

// Get returns a copy of the record stored for the address.
func (b *Book) Get(addr string) (*msaddr.PeerRecord, bool) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	rec, ok := b.entries[addr]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Has returns whether a record is stored for the address.
func (b *Book) Has(addr string) bool {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	_, ok := b.entries[addr]
	return ok
}

// Entries returns a copy of every stored address and record.
func (b *Book) Entries() map[string]*msaddr.PeerRecord {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	snapshot := make(map[string]*msaddr.PeerRecord, len(b.entries))
	for addr, rec := range b.entries {
		snapshot[addr] = rec.Clone()
	}
	return snapshot
}

// AddressForID scans the book and returns the first stored address whose
// record is keyed by the provided identity.
func (b *Book) AddressForID(id msaddr.FeedID) (string, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	for addr, rec := range b.entries {
		if rec.Key.Equal(id) {
			return addr, nil
		}
	}
	str := fmt.Sprintf("no stored address for %s", id)
	return "", makeError(ErrUnknownPeer, str)
}

// Attempt records a dial attempt against the stored record for the address,
// if any.
func (b *Book) Attempt(addr string, now time.Time) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if b.closed {
		return
	}

	rec, ok := b.entries[addr]
	if !ok {
		return
	}
	rec.LastAttempt = now
	rec.StateChange = now
	b.markDirtyLocked(addr, false)
}

// Good records a successful connection against the stored record for the
// address, if any.  It resets the failure count.
func (b *Book) Good(addr string, now time.Time) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if b.closed {
		return
	}

	rec, ok := b.entries[addr]
	if !ok {
		return
	}
	rec.LastSuccess = now
	rec.StateChange = now
	rec.Failure = 0
	b.markDirtyLocked(addr, false)
}

// Failed records a failed dial attempt against the stored record for the
// address, if any.
func (b *Book) Failed(addr string, now time.Time) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if b.closed {
		return
	}

	rec, ok := b.entries[addr]
	if !ok {
		return
	}
	rec.Failure++
	rec.StateChange = now
	b.markDirtyLocked(addr, false)
}

// ObserveDuration folds a finished connection lifetime into the stored record
// for the address, if any.
func (b *Book) ObserveDuration(addr string, d time.Duration, now time.Time) {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if b.closed {
		return
	}

	rec, ok := b.entries[addr]
	if !ok {
		return
	}
	if rec.Duration == nil {
		rec.Duration = new(msaddr.Stats)
	}
	rec.Duration.Observe(float64(d / time.Millisecond))
	rec.StateChange = now
	b.markDirtyLocked(addr, false)
}

// Close flushes all pending mutations and releases the persistent store.
// Mutations after Close fail with ErrShutdown.
func (b *Book) Close() error {
	b.mtx.Lock()
	defer b.mtx.Unlock()
	if b.closed {
		return nil
	}

	b.flushLocked()
	b.closed = true
	return b.db.Close()
}
