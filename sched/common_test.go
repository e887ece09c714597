// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sched

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/meshwire/meshd/addrbook"
	"github.com/meshwire/meshd/hub"
	"github.com/meshwire/meshd/msaddr"
	"github.com/meshwire/meshd/query"
	"github.com/meshwire/meshd/staging"
)

// fakeTimer is a pending delayed call on a fakeClock.
type fakeTimer struct {
	clk     *fakeClock
	when    time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.clk.mu.Lock()
	defer t.clk.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// fakeClock is a manually advanced clock.  Timer callbacks run synchronously
// inside Advance, in fire-time order.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clk: c, when: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward, firing due timers in order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	for {
		var next *fakeTimer
		for _, t := range c.timers {
			if t.fired || t.stopped || t.when.After(target) {
				continue
			}
			if next == nil || t.when.Before(next.when) {
				next = t
			}
		}
		if next == nil {
			break
		}
		if next.when.After(c.now) {
			c.now = next.when
		}
		next.fired = true
		f := next.f
		c.mu.Unlock()
		f()
		c.mu.Lock()
	}
	c.now = target
	c.mu.Unlock()
}

// fakeRand is deterministic randomness: no fuzz and a fixed shuffle choice.
type fakeRand struct {
	shuffle bool
}

func (r *fakeRand) IntN(n int) int {
	if r.shuffle {
		return 0
	}
	return n - 1
}

func (r *fakeRand) Duration(time.Duration) time.Duration { return 0 }

func (r *fakeRand) Shuffle(n int, swap func(i, j int)) {}

// fakeGraph is a social graph with settable readiness and hop counts.
type fakeGraph struct {
	mu    sync.Mutex
	ready bool
	hops  map[string]int
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{ready: true, hops: make(map[string]int)}
}

func (g *fakeGraph) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ready
}

func (g *fakeGraph) Hops() map[string]int {
	g.mu.Lock()
	defer g.mu.Unlock()
	hops := make(map[string]int, len(g.hops))
	for k, v := range g.hops {
		hops[k] = v
	}
	return hops
}

func (g *fakeGraph) setHops(key msaddr.FeedID, hops int) {
	g.mu.Lock()
	g.hops[key.String()] = hops
	g.mu.Unlock()
}

// fakeLog is a message log with settable readiness and activity.
type fakeLog struct {
	mu    sync.Mutex
	ready bool
	last  time.Time
	pubs  chan PubMessage
}

func newFakeLog() *fakeLog {
	return &fakeLog{ready: true, pubs: make(chan PubMessage, 16)}
}

func (l *fakeLog) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ready
}

func (l *fakeLog) LastActivity() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

func (l *fakeLog) PubMessages() <-chan PubMessage { return l.pubs }

// fakeLAN is a LAN discovery source backed by a channel.
type fakeLAN struct {
	mu      sync.Mutex
	ch      chan LANAnnouncement
	stopped bool
}

func newFakeLAN() *fakeLAN {
	return &fakeLAN{ch: make(chan LANAnnouncement, 16)}
}

func (l *fakeLAN) Discoveries() <-chan LANAnnouncement { return l.ch }

func (l *fakeLAN) Stop() {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()
}

// fakeWake delivers wakeup signals through a channel.
type fakeWake struct {
	ch chan struct{}
}

func newFakeWake() *fakeWake { return &fakeWake{ch: make(chan struct{}, 1)} }

func (w *fakeWake) Wakeups() <-chan struct{} { return w.ch }

// fakeNetwork reports settable connectivity.
type fakeNetwork struct {
	mu sync.Mutex
	ok bool
	ch chan struct{}
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{ok: true, ch: make(chan struct{}, 1)}
}

func (n *fakeNetwork) HasNetwork() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ok
}

func (n *fakeNetwork) Changes() <-chan struct{} { return n.ch }

// testDialer records dials and resolves them with a configurable error.
type testDialer struct {
	mu    sync.Mutex
	err   error
	dials []string
}

type testConn struct{}

func (testConn) Close() error { return nil }

func (d *testDialer) Dial(ctx context.Context, addr msaddr.Address) (hub.Conn, error) {
	d.mu.Lock()
	d.dials = append(d.dials, addr.String())
	err := d.err
	d.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return testConn{}, nil
}

func (d *testDialer) setErr(err error) {
	d.mu.Lock()
	d.err = err
	d.mu.Unlock()
}

func (d *testDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

func (d *testDialer) dialedAddrs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	addrs := make([]string, len(d.dials))
	copy(addrs, d.dials)
	sort.Strings(addrs)
	return addrs
}

// harness bundles a scheduler over real pools and fake collaborators, all
// driven by one fake clock.
type harness struct {
	t       *testing.T
	clk     *fakeClock
	dialer  *testDialer
	book    *addrbook.Book
	hub     *hub.Hub
	staging *staging.Pool
	query   *query.Query
	graph   *fakeGraph
	msglog  *fakeLog
	lan     *fakeLAN
	wake    *fakeWake
	network *fakeNetwork
	sched   *Scheduler
}

// newHarness builds the full subsystem with the provided config overrides
// applied before the scheduler is created.  The caller still has to call
// start.
func newHarness(t *testing.T, tweak func(*Config)) *harness {
	t.Helper()

	h := &harness{
		t:       t,
		clk:     newFakeClock(),
		dialer:  &testDialer{},
		graph:   newFakeGraph(),
		msglog:  newFakeLog(),
		lan:     newFakeLAN(),
		wake:    newFakeWake(),
		network: newFakeNetwork(),
	}

	var err error
	h.book, err = addrbook.Open(t.TempDir())
	if err != nil {
		t.Fatalf("addrbook.Open: %v", err)
	}

	h.hub, err = hub.New(&hub.Config{Dialer: h.dialer, Now: h.clk.Now})
	if err != nil {
		t.Fatalf("hub.New: %v", err)
	}

	h.staging = staging.New(&staging.Config{
		Now: h.clk.Now,
		IsLive: func(addr string) bool {
			_, live := h.hub.GetState(addr)
			return live
		},
	})

	h.query = query.New(h.book, h.hub, h.staging)

	cfg := Config{
		Book:       h.book,
		Hub:        h.hub,
		Staging:    h.staging,
		Query:      h.query,
		Graph:      h.graph,
		MessageLog: h.msglog,
		LAN:        h.lan,
		Bluetooth:  nil,
		Network:    h.network,
		Wake:       h.wake,
		Rand:       &fakeRand{},
	}
	if tweak != nil {
		tweak(&cfg)
	}

	h.sched, err = New(&cfg)
	if err != nil {
		t.Fatalf("sched.New: %v", err)
	}
	h.sched.clk = h.clk

	t.Cleanup(func() {
		h.sched.Stop()
		h.hub.Close()
		h.staging.Close()
		h.book.Close()
	})
	return h
}

// start starts the scheduler.
func (h *harness) start() {
	h.t.Helper()
	if err := h.sched.Start(); err != nil {
		h.t.Fatalf("Start: %v", err)
	}
}

// runTick runs one scheduling pass synchronously.
func (h *harness) runTick() {
	h.sched.mu.Lock()
	h.sched.updateNowLocked()
	h.sched.mu.Unlock()
}

// remember stores a record in the address book.
func (h *harness) remember(addr string, rec *msaddr.PeerRecord) {
	h.t.Helper()
	if err := h.book.Set(addr, rec); err != nil {
		h.t.Fatalf("Set(%s): %v", addr, err)
	}
}

// connect establishes a hub entry synchronously.
func (h *harness) connect(addr string, rec *msaddr.PeerRecord) {
	h.t.Helper()
	if err := h.hub.Connect(context.Background(), addr, rec); err != nil {
		h.t.Fatalf("Connect(%s): %v", addr, err)
	}
}

// waitFor polls until the condition holds, failing the test on timeout.
// Polling uses real time because dials and event pumps resolve on their own
// goroutines.
func (h *harness) waitFor(what string, cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			h.t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// waitForWithClock polls like waitFor while also nudging the fake clock
// forward, for conditions gated on scheduler sleeps such as the discovery
// throttles.
func (h *harness) waitForWithClock(what string, cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			h.t.Fatalf("timeout waiting for %s", what)
		}
		h.clk.Advance(100 * time.Millisecond)
		time.Sleep(time.Millisecond)
	}
}

// keyOf extracts the identity of an address.
func (h *harness) keyOf(addr string) msaddr.FeedID {
	h.t.Helper()
	key, err := msaddr.KeyOf(addr)
	if err != nil {
		h.t.Fatalf("KeyOf(%s): %v", addr, err)
	}
	return key
}

// record returns a minimal record for an address with the given source and
// type.
func (h *harness) record(addr string, source msaddr.Source, peerType msaddr.PeerType) *msaddr.PeerRecord {
	h.t.Helper()
	parsed, err := msaddr.Parse(addr)
	if err != nil {
		h.t.Fatalf("Parse(%s): %v", addr, err)
	}
	return &msaddr.PeerRecord{
		Key:    parsed.Key,
		Host:   parsed.Host,
		Port:   parsed.Port,
		Source: source,
		Type:   peerType,
	}
}
