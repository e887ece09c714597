// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sched

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/meshwire/meshd/msaddr"
)

// Addresses used across the scheduler tests.  Every address carries a
// distinct valid key.
const (
	seedAddr    = "net:seed.example.com:8008~shs:AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8="
	pubAddr     = "net:pub.example.com:8008~shs:AQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQE="
	lanAddr     = "net:192.168.1.5:8008~shs:qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqo="
	pingedAddr  = "net:pinged.example.com:8008~shs:u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7s="
	idleAddr    = "net:idle.example.com:8008~shs:zMzMzMzMzMzMzMzMzMzMzMzMzMzMzMzMzMzMzMzMzMw="
	blockedAddr = "net:blocked.example.com:8008~shs:3d3d3d3d3d3d3d3d3d3d3d3d3d3d3d3d3d3d3d3d3d0="
	otherAddr   = "net:other.example.com:8008~shs:7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u4="
)

// pingedRecord returns a record that has answered heartbeats.
func pingedRecord(rec *msaddr.PeerRecord) *msaddr.PeerRecord {
	rec.Ping = &msaddr.PingStats{}
	rec.Ping.RTT.Observe(120)
	return rec
}

// TestStartPopulatesAndPurges ensures the first start remembers configured
// seeds and forgets records that must be rediscovered.
func TestStartPopulatesAndPurges(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.Seeds = []string{seedAddr, "garbage-address"}
	})

	// Pre-populate records that must not survive the first start.
	h.remember(lanAddr, h.record(lanAddr, msaddr.SourceLocal, msaddr.TypeLAN))
	btStored := "bt:a1b2c3d4e5f6~shs:7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u4="
	h.remember(btStored, h.record(btStored, msaddr.SourceBT, msaddr.TypeBT))
	h.remember(idleAddr, h.record(idleAddr, msaddr.SourceManual, msaddr.TypeInternet))

	h.start()

	if !h.book.Has(seedAddr) {
		t.Fatal("seed was not remembered at start")
	}
	rec, _ := h.book.Get(seedAddr)
	if rec.Source != msaddr.SourceSeed {
		t.Fatalf("seed source: got %q, want %q", rec.Source, msaddr.SourceSeed)
	}
	if h.book.Has(lanAddr) || h.book.Has(btStored) {
		t.Fatal("volatile records survived the first start")
	}
	if !h.book.Has(idleAddr) {
		t.Fatal("durable record was purged")
	}
}

// TestSeedBootstrap is the bootstrap scenario: a fresh node with one seed
// dials it within the first tick.
func TestSeedBootstrap(t *testing.T) {
	h := newHarness(t, func(cfg *Config) {
		cfg.Seeds = []string{seedAddr}
	})
	h.start()

	// The first tick was scheduled with the default fuzzed period, which
	// the deterministic test randomness pins to 500ms.
	h.clk.Advance(time.Second)

	h.waitFor("seed dial", func() bool { return h.dialer.dialCount() == 1 })
	h.waitFor("seed connected", func() bool {
		_, live := h.hub.GetState(seedAddr)
		return live
	})
}

// TestBackoffAfterFailure verifies the dial gaps after repeated failures:
// one full step after the first failure, twice that after the second.
func TestBackoffAfterFailure(t *testing.T) {
	h := newHarness(t, nil)

	// A connected peer keeps the any-peer fallback class quiet so the
	// seed class backoff is what governs the seed.
	h.connect(pingedAddr, pingedRecord(h.record(pingedAddr,
		msaddr.SourceManual, msaddr.TypeInternet)))

	// The harness connect above went through the same dialer; count the
	// scheduler's dials from here.
	base := h.dialer.dialCount()

	h.remember(seedAddr, h.record(seedAddr, msaddr.SourceSeed,
		msaddr.TypeInternet))
	h.dialer.setErr(errors.New("connection refused"))

	h.start()

	h.runTick()
	h.waitFor("first failed dial", func() bool {
		rec, _ := h.book.Get(seedAddr)
		return rec != nil && rec.Failure == 1
	})
	if got := h.dialer.dialCount() - base; got != 1 {
		t.Fatalf("dials after first tick: got %d, want 1", got)
	}

	// Within one backoff step of the failure no redial may happen.
	h.clk.Advance(time.Second)
	h.runTick()
	time.Sleep(50 * time.Millisecond)
	if got := h.dialer.dialCount() - base; got != 1 {
		t.Fatalf("redial within backoff step: got %d dials", got)
	}

	// Past the step the redial is permitted.
	h.clk.Advance(1200 * time.Millisecond)
	h.runTick()
	h.waitFor("second failed dial", func() bool {
		rec, _ := h.book.Get(seedAddr)
		return rec != nil && rec.Failure == 2
	})

	// After the second failure the gap doubles.
	h.clk.Advance(2 * time.Second)
	h.runTick()
	time.Sleep(50 * time.Millisecond)
	if got := h.dialer.dialCount() - base; got != 2 {
		t.Fatalf("redial within doubled backoff: got %d dials", got)
	}

	h.clk.Advance(2400 * time.Millisecond)
	h.runTick()
	h.waitFor("third dial", func() bool { return h.dialer.dialCount()-base == 3 })
}

// TestBlockPurge ensures a peer whose key becomes blocked is disconnected,
// unstaged, and never redialed.
func TestBlockPurge(t *testing.T) {
	h := newHarness(t, nil)

	rec := h.record(blockedAddr, msaddr.SourceManual, msaddr.TypeInternet)
	h.remember(blockedAddr, rec.Clone())
	h.connect(blockedAddr, rec.Clone())

	// A second address for the same key sits in staging.
	stagedTwin := "net:twin.example.com:8009~shs:" + rec.Key.Base64()
	if !h.staging.Stage(stagedTwin, rec.Clone()) {
		t.Fatal("Stage refused the twin candidate")
	}

	h.start()
	h.graph.setHops(rec.Key, -1)

	h.runTick()

	h.waitFor("blocked peer disconnected", func() bool {
		_, live := h.hub.GetState(blockedAddr)
		return !live
	})
	if _, staged := h.staging.Get(stagedTwin); staged {
		t.Fatal("blocked candidate survived in staging")
	}

	// Later ticks must never redial the blocked peer.
	before := h.dialer.dialCount()
	h.clk.Advance(time.Hour)
	h.runTick()
	time.Sleep(50 * time.Millisecond)
	if got := h.dialer.dialCount(); got != before {
		t.Fatalf("blocked peer was redialed: %d -> %d dials", before, got)
	}
}

// TestLANDiscovery covers both discovery outcomes: a followed peer is dialed
// immediately, an unknown one is staged.
func TestLANDiscovery(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	followedKey := h.keyOf(lanAddr)
	h.graph.setHops(followedKey, 1)

	h.lan.ch <- LANAnnouncement{Address: lanAddr, Verified: true}

	h.waitFor("followed LAN peer dialed", func() bool {
		_, live := h.hub.GetState(lanAddr)
		return live
	})
	if _, staged := h.staging.Get(lanAddr); staged {
		t.Fatal("followed LAN peer was staged instead of promoted")
	}

	// An announcement for an unknown key is staged, not dialed.
	unknown := "net:192.168.1.9:8008~shs:" + h.keyOf(otherAddr).Base64()
	h.lan.ch <- LANAnnouncement{Address: unknown, Verified: false}

	h.waitFor("unknown LAN peer staged", func() bool {
		_, staged := h.staging.Get(unknown)
		return staged
	})
	if _, live := h.hub.GetState(unknown); live {
		t.Fatal("unknown LAN peer was dialed")
	}
}

// TestStagedLANAging is the staged-candidate aging scenario: a LAN candidate
// survives 9.9s and is gone after 10.1s.
func TestStagedLANAging(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	if !h.staging.Stage(lanAddr, h.record(lanAddr, msaddr.SourceLocal,
		msaddr.TypeLAN)) {

		t.Fatal("Stage refused the candidate")
	}

	h.clk.Advance(9900 * time.Millisecond)
	h.runTick()
	if _, staged := h.staging.Get(lanAddr); !staged {
		t.Fatal("LAN candidate aged out too early")
	}

	h.clk.Advance(200 * time.Millisecond)
	h.runTick()
	if _, staged := h.staging.Get(lanAddr); staged {
		t.Fatal("LAN candidate survived past its maximum age")
	}
}

// TestStagedBTAging ensures bluetooth candidates get the longer 30s window.
func TestStagedBTAging(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	btAddr := "bt:a1b2c3d4e5f6~shs:" + h.keyOf(otherAddr).Base64()
	rec := &msaddr.PeerRecord{
		Key:    h.keyOf(otherAddr),
		Host:   "a1b2c3d4e5f6",
		Source: msaddr.SourceBT,
		Type:   msaddr.TypeBT,
	}
	if !h.staging.Stage(btAddr, rec) {
		t.Fatal("Stage refused the candidate")
	}

	h.clk.Advance(29 * time.Second)
	h.runTick()
	if _, staged := h.staging.Get(btAddr); !staged {
		t.Fatal("BT candidate aged out too early")
	}

	h.clk.Advance(2 * time.Second)
	h.runTick()
	if _, staged := h.staging.Get(btAddr); staged {
		t.Fatal("BT candidate survived past its maximum age")
	}
}

// TestWakeup is the wakeup scenario: every connection is reset and a prompt
// tick is scheduled.
func TestWakeup(t *testing.T) {
	h := newHarness(t, nil)

	addrs := []string{pingedAddr, idleAddr, otherAddr}
	for _, addr := range addrs {
		h.connect(addr, pingedRecord(h.record(addr, msaddr.SourceManual,
			msaddr.TypeInternet)))
	}

	h.start()
	h.wake.ch <- struct{}{}

	h.waitFor("all peers disconnected", func() bool {
		return len(h.hub.Entries()) == 0
	})

	// The disconnections must have scheduled a prompt tick.
	h.waitFor("prompt tick scheduled", func() bool {
		h.sched.mu.Lock()
		defer h.sched.mu.Unlock()
		return h.sched.tickTimer != nil
	})
}

// TestNetworkChangeResetsHub ensures connectivity changes reset the hub just
// like wakeups.
func TestNetworkChangeResetsHub(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(pingedAddr, pingedRecord(h.record(pingedAddr,
		msaddr.SourceManual, msaddr.TypeInternet)))

	h.start()
	h.network.ch <- struct{}{}

	h.waitFor("peer disconnected", func() bool {
		return len(h.hub.Entries()) == 0
	})
}

// TestNeverJustOne ensures a class with a single free slot dials two
// candidates instead of one.
func TestNeverJustOne(t *testing.T) {
	h := newHarness(t, nil)

	// Two connected seed-class peers leave one nominal free slot.
	up := []string{pingedAddr, idleAddr}
	for _, addr := range up {
		h.connect(addr, h.record(addr, msaddr.SourceSeed,
			msaddr.TypeInternet))
	}
	// Those harness connects went through the same dialer.
	base := h.dialer.dialCount()

	// Three dialable seed candidates.  They carry an old success so the
	// untried-peers class does not also want them; the two connected
	// legacy-looking entries keep the legacy class saturated.
	candidates := []string{seedAddr, pubAddr, otherAddr}
	past := h.clk.Now().Add(-time.Hour)
	for _, addr := range candidates {
		rec := h.record(addr, msaddr.SourceSeed, msaddr.TypeInternet)
		rec.LastSuccess = past
		h.remember(addr, rec)
	}

	h.start()
	h.runTick()

	h.waitFor("two dials", func() bool { return h.dialer.dialCount()-base >= 2 })
	time.Sleep(50 * time.Millisecond)
	if got := h.dialer.dialCount() - base; got != 2 {
		t.Fatalf("free slot promotion: got %d dials, want 2", got)
	}
}

// TestClassExcessDisconnect ensures a class holding more than twice its quota
// is cut back down to the quota, oldest transitions first.
func TestClassExcessDisconnect(t *testing.T) {
	h := newHarness(t, nil)

	// Seven connected seed peers against a quota of three.  The ping
	// stats keep the frustrating-connection cleanup off their back.
	var addrs []string
	for i := 0; i < 7; i++ {
		addr := fmt.Sprintf("net:seed%d.example.com:8008~shs:%s", i,
			h.keyOf(seedAddr).Base64())
		rec := pingedRecord(h.record(addr, msaddr.SourceSeed,
			msaddr.TypeInternet))
		h.connect(addr, rec)
		addrs = append(addrs, addr)
		h.clk.Advance(time.Second)
	}

	h.start()
	h.runTick()

	h.waitFor("excess disconnected", func() bool {
		return len(h.hub.Entries()) == 3
	})

	// The three newest connections must be the survivors.
	for _, addr := range addrs[4:] {
		if _, live := h.hub.GetState(addr); !live {
			t.Fatalf("newer connection %s was torn down", addr)
		}
	}
}

// TestPromoteFollowedStaged ensures at most five directly followed staged
// candidates are promoted per tick and unfollowed ones stay staged.
func TestPromoteFollowedStaged(t *testing.T) {
	h := newHarness(t, nil)

	keys := []string{
		"AAECAwQFBgcICQoLDA0ODxAREhMUFRYXGBkaGxwdHh8=",
		"AQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQEBAQE=",
		"qqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqqo=",
		"u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7s=",
		"zMzMzMzMzMzMzMzMzMzMzMzMzMzMzMzMzMzMzMzMzMw=",
		"3d3d3d3d3d3d3d3d3d3d3d3d3d3d3d3d3d3d3d3d3d0=",
	}
	for i, b64 := range keys {
		addr := fmt.Sprintf("net:192.168.1.%d:8008~shs:%s", 10+i, b64)
		rec := h.record(addr, msaddr.SourceLocal, msaddr.TypeLAN)
		if !h.staging.Stage(addr, rec) {
			t.Fatalf("Stage refused candidate %d", i)
		}
		h.graph.setHops(rec.Key, 1)
	}

	// One staged stranger must not be promoted.
	stranger := "net:192.168.1.99:8008~shs:7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u7u4="
	if !h.staging.Stage(stranger, h.record(stranger, msaddr.SourceLocal,
		msaddr.TypeLAN)) {

		t.Fatal("Stage refused the stranger")
	}

	h.start()
	h.runTick()

	h.waitFor("five promotions", func() bool {
		return h.dialer.dialCount() >= 5
	})
	time.Sleep(50 * time.Millisecond)
	if got := h.dialer.dialCount(); got != 5 {
		t.Fatalf("promotions: got %d dials, want 5", got)
	}
	if _, live := h.hub.GetState(stranger); live {
		t.Fatal("stranger was promoted")
	}
	if _, staged := h.staging.Get(stranger); !staged {
		t.Fatal("stranger fell out of staging")
	}
}

// TestFrustratingDisconnect ensures a non-permanent connection is torn down
// once it has held its slot for ten seconds while a pinging one survives.
func TestFrustratingDisconnect(t *testing.T) {
	h := newHarness(t, nil)

	h.connect(idleAddr, h.record(idleAddr, msaddr.SourceManual,
		msaddr.TypeInternet))
	h.connect(pingedAddr, pingedRecord(h.record(pingedAddr,
		msaddr.SourceManual, msaddr.TypeInternet)))

	h.start()
	h.clk.Advance(11 * time.Second)
	h.runTick()

	h.waitFor("frustrating peer disconnected", func() bool {
		_, live := h.hub.GetState(idleAddr)
		return !live
	})
	if _, live := h.hub.GetState(pingedAddr); !live {
		t.Fatal("pinging peer was torn down")
	}
}

// TestOldInternetDisconnect ensures hour-old internet connections are
// recycled.
func TestOldInternetDisconnect(t *testing.T) {
	h := newHarness(t, nil)

	h.connect(pingedAddr, pingedRecord(h.record(pingedAddr,
		msaddr.SourceManual, msaddr.TypeInternet)))

	h.start()
	h.clk.Advance(61 * time.Minute)
	h.runTick()

	h.waitFor("old connection recycled", func() bool {
		_, live := h.hub.GetState(pingedAddr)
		return !live
	})
}

// TestUpdateStagingManualRecords ensures records the owner opted out of
// autoconnecting stay visible as staged candidates unless blocked.
func TestUpdateStagingManualRecords(t *testing.T) {
	h := newHarness(t, nil)

	manual := h.record(idleAddr, msaddr.SourceManual, msaddr.TypeInternet)
	manual.SetAutoconnect(false)
	h.remember(idleAddr, manual)

	blocked := h.record(blockedAddr, msaddr.SourceManual, msaddr.TypeInternet)
	blocked.SetAutoconnect(false)
	h.remember(blockedAddr, blocked)
	h.graph.setHops(blocked.Key, -1)

	h.start()
	h.runTick()

	if _, staged := h.staging.Get(idleAddr); !staged {
		t.Fatal("manual record was not staged")
	}
	if _, staged := h.staging.Get(blockedAddr); staged {
		t.Fatal("blocked manual record was staged")
	}

	// The staged manual record must not be auto-dialed.
	time.Sleep(50 * time.Millisecond)
	if got := h.dialer.dialCount(); got != 0 {
		t.Fatalf("manual record was dialed: %d dials", got)
	}
}

// TestTickSuppression ensures ticks are skipped while the message log is
// unready, a download is running, or the hops table is loading.
func TestTickSuppression(t *testing.T) {
	h := newHarness(t, nil)
	h.remember(seedAddr, h.record(seedAddr, msaddr.SourceSeed,
		msaddr.TypeInternet))
	h.start()

	h.msglog.mu.Lock()
	h.msglog.ready = false
	h.msglog.mu.Unlock()
	h.runTick()
	time.Sleep(20 * time.Millisecond)
	if h.dialer.dialCount() != 0 {
		t.Fatal("tick ran while the message log was unready")
	}

	h.msglog.mu.Lock()
	h.msglog.ready = true
	h.msglog.last = h.clk.Now().Add(-100 * time.Millisecond)
	h.msglog.mu.Unlock()
	h.runTick()
	time.Sleep(20 * time.Millisecond)
	if h.dialer.dialCount() != 0 {
		t.Fatal("tick ran while a download was in progress")
	}

	h.msglog.mu.Lock()
	h.msglog.last = h.clk.Now().Add(-time.Minute)
	h.msglog.mu.Unlock()
	h.graph.mu.Lock()
	h.graph.ready = false
	h.graph.mu.Unlock()
	h.runTick()
	time.Sleep(20 * time.Millisecond)
	if h.dialer.dialCount() != 0 {
		t.Fatal("tick ran while the hops table was loading")
	}

	h.graph.mu.Lock()
	h.graph.ready = true
	h.graph.mu.Unlock()
	h.runTick()
	h.waitFor("dial after suppression cleared", func() bool {
		return h.dialer.dialCount() == 1
	})
}

// TestUpdateSoonCollapse ensures redundant tick requests collapse into the
// earliest pending deadline.
func TestUpdateSoonCollapse(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	h.sched.UpdateSoon(10 * time.Second)
	h.sched.mu.Lock()
	first := h.sched.tickDeadline
	h.sched.mu.Unlock()

	// A later deadline must not displace the pending one.
	h.sched.UpdateSoon(20 * time.Second)
	h.sched.mu.Lock()
	second := h.sched.tickDeadline
	h.sched.mu.Unlock()
	if !second.Equal(first) {
		t.Fatalf("later request displaced pending tick: %v -> %v", first,
			second)
	}

	// An earlier deadline must.
	h.sched.UpdateSoon(200 * time.Millisecond)
	h.sched.mu.Lock()
	third := h.sched.tickDeadline
	h.sched.mu.Unlock()
	if !third.Before(first) {
		t.Fatalf("earlier request did not displace pending tick: %v -> %v",
			first, third)
	}
}

// TestStartStop covers idempotent start, stop semantics, and the closed
// scheduler dropping work.
func TestStartStop(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	// Starting again is a no-op.
	if err := h.sched.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}

	h.sched.Stop()

	h.lan.mu.Lock()
	stopped := h.lan.stopped
	h.lan.mu.Unlock()
	if !stopped {
		t.Fatal("Stop did not halt LAN discovery")
	}

	// A stopped scheduler drops tick requests silently.
	h.sched.UpdateSoon(0)
	h.sched.mu.Lock()
	armed := h.sched.tickTimer != nil
	h.sched.mu.Unlock()
	if armed {
		t.Fatal("stopped scheduler armed a tick")
	}

	if err := h.sched.Start(); !errors.Is(err, ErrShutdown) {
		t.Fatalf("Start after Stop: got %v, want %v", err, ErrShutdown)
	}

	// Stopping again is a no-op.
	h.sched.Stop()
}

// TestUnstageOnConnect ensures the interpool glue unstages an address the
// moment it enters the hub.
func TestUnstageOnConnect(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	if !h.staging.Stage(idleAddr, h.record(idleAddr, msaddr.SourceManual,
		msaddr.TypeInternet)) {

		t.Fatal("Stage refused the candidate")
	}
	h.connect(idleAddr, nil)

	h.waitFor("address unstaged", func() bool {
		_, staged := h.staging.Get(idleAddr)
		return !staged
	})
}

// TestPubIntake covers pub discovery: announcements are throttled, staged,
// and remembered without autoconnect, and the valve pauses intake while
// enough pubs are staged.
func TestPubIntake(t *testing.T) {
	h := newHarness(t, nil)
	h.start()

	announced := "net:announced.example.com:8008~shs:" +
		h.keyOf(pubAddr).Base64()
	h.msglog.pubs <- PubMessage{Address: announced}

	// The intake sleeps a throttle interval on the scheduler clock before
	// processing, so keep nudging the clock until it lands.
	h.waitForWithClock("pub remembered", func() bool {
		return h.book.Has(announced)
	})

	rec, _ := h.book.Get(announced)
	if rec.AutoconnectEnabled() {
		t.Fatal("pub was remembered with autoconnect enabled")
	}
	if rec.Source != msaddr.SourcePub || rec.Type != msaddr.TypePub {
		t.Fatalf("pub record: source %q type %q", rec.Source, rec.Type)
	}
	if _, staged := h.staging.Get(announced); !staged {
		t.Fatal("pub was not staged")
	}

	// Fill staging with pubs to close the valve, then announce another.
	for i := 0; i < maxStagedPubs; i++ {
		addr := fmt.Sprintf("net:pub%d.example.com:8008~shs:%s", i,
			h.keyOf(otherAddr).Base64())
		rec := h.record(addr, msaddr.SourcePub, msaddr.TypePub)
		if !h.staging.Stage(addr, rec) {
			t.Fatalf("Stage refused pub %d", i)
		}
	}

	valved := "net:valved.example.com:8008~shs:" + h.keyOf(idleAddr).Base64()
	h.msglog.pubs <- PubMessage{Address: valved}

	for i := 0; i < 20; i++ {
		h.clk.Advance(time.Second)
		time.Sleep(time.Millisecond)
	}
	if h.book.Has(valved) {
		t.Fatal("valve did not pause pub intake")
	}

	// Draining the staged pubs reopens the valve.
	for _, e := range h.staging.Entries() {
		if e.Record.Type == msaddr.TypePub {
			h.staging.Unstage(e.Addr)
		}
	}
	h.waitForWithClock("valved pub remembered", func() bool {
		return h.book.Has(valved)
	})
}

// TestPubIntakeSkipsKnown ensures announcements already in the book are not
// re-staged.
func TestPubIntakeSkipsKnown(t *testing.T) {
	h := newHarness(t, nil)

	known := "net:known.example.com:8008~shs:" + h.keyOf(pubAddr).Base64()
	h.remember(known, h.record(known, msaddr.SourceManual,
		msaddr.TypeInternet))

	h.start()
	h.msglog.pubs <- PubMessage{Address: known}
	// Push a second announcement through so the first is provably done.
	follower := "net:follower.example.com:8008~shs:" +
		h.keyOf(idleAddr).Base64()
	h.msglog.pubs <- PubMessage{Address: follower}

	h.waitForWithClock("follower remembered", func() bool {
		return h.book.Has(follower)
	})
	if _, staged := h.staging.Get(known); staged {
		t.Fatal("known address was staged by pub discovery")
	}
	rec, _ := h.book.Get(known)
	if rec.Source != msaddr.SourceManual {
		t.Fatal("pub discovery clobbered the existing record")
	}
}
