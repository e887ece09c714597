// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package hub

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/meshwire/meshd/msaddr"
)

// ConnState represents the state of a hub entry.  Addresses without an entry
// are idle; an entry exists only while its address is connecting or
// connected.
type ConnState int

// The states a hub entry moves through.
const (
	// StateConnecting indicates a dial is in flight.
	StateConnecting ConnState = iota

	// StateConnected indicates the transport handshake completed.
	StateConnected
)

// String returns the ConnState in the wire form used across the overlay.
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	}
	return "unknown"
}

// Conn is the handle the transport dialer returns for an established
// connection.  The hub only ever closes it.
type Conn interface {
	Close() error
}

// Dialer is the transport collaborator that turns a parsed multiserver
// address into an established transport connection.  Implementations must honor
// context cancellation.
type Dialer interface {
	Dial(ctx context.Context, addr msaddr.Address) (Conn, error)
}

// Entry is a point-in-time view of one hub entry.
type Entry struct {
	// Addr is the multiserver address of the entry.
	Addr string

	// State is the connection state at snapshot time.
	State ConnState

	// Record is a copy of the peer record carried by the entry.
	Record *msaddr.PeerRecord
}

// entry is the internal representation of a live address.
type entry struct {
	// gen distinguishes an entry from a later entry for the same address,
	// so a dial resolving after its entry was torn down can detect it.
	gen uint64

	state  ConnState
	rec    *msaddr.PeerRecord
	conn   Conn
	cancel context.CancelFunc
}

// Config holds the configuration options related to the hub.
type Config struct {
	// Dialer is the transport collaborator used to establish connections.
	Dialer Dialer

	// Timeout bounds the amount of time a single dial may take before it
	// is abandoned.  Zero means no bound beyond the caller's context.
	Timeout time.Duration

	// Now returns the current wall-clock time.  It defaults to time.Now
	// and exists so tests can drive deterministic timestamps.
	Now func() time.Time
}

// Hub is the live registry of connections keyed by multiserver address.  It
// tracks at most one entry per address, emits a totally ordered lifecycle
// event stream, and owns the underlying transport connections.
type Hub struct {
	// mtx protects all fields below.  Every state transition is applied
	// and published to listeners while the mutex is held, which is what
	// makes the event stream totally ordered.
	mtx sync.Mutex

	cfg     Config
	entries map[string]*entry
	gen     uint64

	nextSub   uint64
	eventSubs map[uint64]*eventQueue
	entrySubs map[uint64]*entryQueue
	closed    bool
}

// New returns a hub that dials through the provided configuration.
func New(cfg *Config) (*Hub, error) {
	if cfg.Dialer == nil {
		return nil, makeError(ErrDialerNil, "hub requires a transport dialer")
	}
	h := Hub{
		cfg:       *cfg, // Copy so caller can't mutate
		entries:   make(map[string]*entry),
		eventSubs: make(map[uint64]*eventQueue),
		entrySubs: make(map[uint64]*entryQueue),
	}
	if h.cfg.Now == nil {
		h.cfg.Now = time.Now
	}
	return &h, nil
}

// emitLocked publishes an event to every listener.
//
// This function MUST be called with the hub mutex held.
func (h *Hub) emitLocked(ev Event) {
	for _, q := range h.eventSubs {
		q.append(ev)
	}
}

// notifyEntriesLocked publishes the current entry set to every live-entries
// watcher.
//
// This function MUST be called with the hub mutex held.
func (h *Hub) notifyEntriesLocked() {
	if len(h.entrySubs) == 0 {
		return
	}
	snapshot := h.snapshotLocked()
	for _, q := range h.entrySubs {
		q.set(snapshot)
	}
}

// snapshotLocked copies the current entry set, sorted by address.
//
// This function MUST be called with the hub mutex held.
func (h *Hub) snapshotLocked() []Entry {
	snapshot := make([]Entry, 0, len(h.entries))
	for addr, e := range h.entries {
		snapshot = append(snapshot, Entry{
			Addr:   addr,
			State:  e.state,
			Record: e.rec.Clone(),
		})
	}
	sort.Slice(snapshot, func(i, j int) bool {
		return snapshot[i].Addr < snapshot[j].Addr
	})
	return snapshot
}

// Connect initiates a dial to the address, carrying the provided record
// alongside the entry.  Registration errors such as a malformed address, an
// already-active entry, or a closed hub are returned immediately; otherwise
// Connect blocks until the dial resolves and returns the transport error, if
// any.  Transport errors are also surfaced as connecting-failed events.
func (h *Hub) Connect(ctx context.Context, addr string, data *msaddr.PeerRecord) error {
	parsed, err := msaddr.Parse(addr)
	if err != nil {
		return err
	}

	h.mtx.Lock()
	if h.closed {
		h.mtx.Unlock()
		return makeError(ErrShutdown, "connect on closed hub")
	}
	if _, ok := h.entries[addr]; ok {
		h.mtx.Unlock()
		str := fmt.Sprintf("already connected to %s", addr)
		return makeError(ErrAlreadyConnected, str)
	}

	rec := data.Clone()
	if rec == nil {
		rec = new(msaddr.PeerRecord)
	}
	if rec.Key.IsZero() {
		rec.Key = parsed.Key
	}
	if rec.Host == "" {
		rec.Host = parsed.Host
		rec.Port = parsed.Port
	}
	now := h.cfg.Now()
	rec.StateChange = now
	rec.LastAttempt = now

	dialCtx, cancel := context.WithCancel(ctx)
	h.gen++
	e := &entry{
		gen:    h.gen,
		state:  StateConnecting,
		rec:    rec,
		cancel: cancel,
	}
	h.entries[addr] = e
	log.Debugf("Connecting to %s", addr)
	h.emitLocked(Event{Type: EventConnecting, Addr: addr, Key: rec.Key})
	h.notifyEntriesLocked()
	h.mtx.Unlock()

	if h.cfg.Timeout != 0 {
		var cancelTimeout context.CancelFunc
		dialCtx, cancelTimeout = context.WithTimeout(dialCtx, h.cfg.Timeout)
		defer cancelTimeout()
	}
	conn, dialErr := h.cfg.Dialer.Dial(dialCtx, parsed)

	h.mtx.Lock()
	cur, ok := h.entries[addr]
	if !ok || cur.gen != e.gen {
		// The entry was torn down while the dial was in flight.
		h.mtx.Unlock()
		if conn != nil {
			conn.Close()
		}
		log.Debugf("Ignoring resolved dial for removed entry %s", addr)
		return dialCtx.Err()
	}

	if dialErr != nil {
		delete(h.entries, addr)
		rec.Failure++
		rec.StateChange = h.cfg.Now()
		log.Debugf("Failed to connect to %s: %v", addr, dialErr)
		h.emitLocked(Event{
			Type:    EventConnectingFailed,
			Addr:    addr,
			Key:     rec.Key,
			Details: dialErr,
		})
		h.notifyEntriesLocked()
		h.mtx.Unlock()
		return dialErr
	}

	cur.state = StateConnected
	cur.conn = conn
	cur.cancel = nil
	rec.Failure = 0
	now = h.cfg.Now()
	rec.LastSuccess = now
	rec.StateChange = now
	log.Debugf("Connected to %s", addr)
	h.emitLocked(Event{Type: EventConnected, Addr: addr, Key: rec.Key})
	h.notifyEntriesLocked()
	h.mtx.Unlock()
	return nil
}

// Disconnect tears down the entry for the address, closing its transport and
// emitting a disconnected event.  Addresses without an entry are ignored.
func (h *Hub) Disconnect(addr string) error {
	h.mtx.Lock()
	if h.closed {
		h.mtx.Unlock()
		return makeError(ErrShutdown, "disconnect on closed hub")
	}
	conn, err := h.removeLocked(addr)
	h.mtx.Unlock()

	if conn != nil {
		conn.Close()
	}
	return err
}

// removeLocked tears down the entry for the address and returns the transport
// connection that the caller must close outside the mutex.
//
// This function MUST be called with the hub mutex held.
func (h *Hub) removeLocked(addr string) (Conn, error) {
	e, ok := h.entries[addr]
	if !ok {
		return nil, nil
	}

	delete(h.entries, addr)
	if e.cancel != nil {
		e.cancel()
	}
	if e.state == StateConnected && e.rec.Duration == nil {
		e.rec.Duration = new(msaddr.Stats)
	}
	now := h.cfg.Now()
	if e.state == StateConnected {
		session := now.Sub(e.rec.StateChange)
		e.rec.Duration.Observe(float64(session / time.Millisecond))
	}
	e.rec.StateChange = now
	log.Debugf("Disconnected from %s", addr)
	h.emitLocked(Event{Type: EventDisconnected, Addr: addr, Key: e.rec.Key})
	h.notifyEntriesLocked()
	return e.conn, nil
}

// GetState returns the connection state of the address.  The second return is
// false when the address has no entry, meaning it is idle.
func (h *Hub) GetState(addr string) (ConnState, bool) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	e, ok := h.entries[addr]
	if !ok {
		return 0, false
	}
	return e.state, true
}

// Entries returns a snapshot of all hub entries sorted by address.
func (h *Hub) Entries() []Entry {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	return h.snapshotLocked()
}

// Listen subscribes to the hub lifecycle event stream.  The returned channel
// observes every transition in the order the hub applied it and is closed
// when the subscription is cancelled or the hub shuts down.
func (h *Hub) Listen() (<-chan Event, func()) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	q := newEventQueue()
	if h.closed {
		q.stop()
		return q.out, func() {}
	}

	id := h.nextSub
	h.nextSub++
	h.eventSubs[id] = q

	cancel := func() {
		h.mtx.Lock()
		delete(h.eventSubs, id)
		h.mtx.Unlock()
		q.stop()
	}
	return q.out, cancel
}

// LiveEntries subscribes to entry-set snapshots.  The current set is
// delivered immediately, then again after every change.  Intermediate
// snapshots a slow consumer missed are replaced by newer ones.
func (h *Hub) LiveEntries() (<-chan []Entry, func()) {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	q := newEntryQueue()
	if h.closed {
		q.stop()
		return q.out, func() {}
	}

	id := h.nextSub
	h.nextSub++
	h.entrySubs[id] = q
	q.set(h.snapshotLocked())

	cancel := func() {
		h.mtx.Lock()
		delete(h.entrySubs, id)
		h.mtx.Unlock()
		q.stop()
	}
	return q.out, cancel
}

// Reset forcibly disconnects every entry.  It is used when the process wakes
// from sleep or the network changes, since all transports are then suspect.
func (h *Hub) Reset() {
	h.mtx.Lock()
	if h.closed {
		h.mtx.Unlock()
		return
	}
	var conns []Conn
	for addr := range h.entries {
		conn, _ := h.removeLocked(addr)
		if conn != nil {
			conns = append(conns, conn)
		}
	}
	h.mtx.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}

// Close permanently shuts the hub down: all entries are torn down, in-flight
// dials are cancelled, and listener channels are closed.  Operations on a
// closed hub fail with ErrShutdown.
func (h *Hub) Close() error {
	h.mtx.Lock()
	if h.closed {
		h.mtx.Unlock()
		return nil
	}
	var conns []Conn
	for addr := range h.entries {
		conn, _ := h.removeLocked(addr)
		if conn != nil {
			conns = append(conns, conn)
		}
	}
	h.closed = true
	eventSubs := h.eventSubs
	entrySubs := h.entrySubs
	h.eventSubs = make(map[uint64]*eventQueue)
	h.entrySubs = make(map[uint64]*entryQueue)
	h.mtx.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
	for _, q := range eventSubs {
		q.stop()
	}
	for _, q := range entrySubs {
		q.stop()
	}
	return nil
}
