// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sched

import (
	"sync"
	"time"

	"github.com/meshwire/meshd/addrbook"
	"github.com/meshwire/meshd/hub"
	"github.com/meshwire/meshd/msaddr"
	"github.com/meshwire/meshd/query"
	"github.com/meshwire/meshd/staging"
)

const (
	// defaultTickPeriod is the nominal delay of a scheduled tick before
	// fuzzing.
	defaultTickPeriod = time.Second

	// disconnectTickPeriod is the nominal delay of the tick scheduled in
	// reaction to a disconnection.
	disconnectTickPeriod = 200 * time.Millisecond

	// steadyInterval is how often a tick is requested regardless of
	// events.
	steadyInterval = 2 * time.Second

	// downloadQuiet is how long the message log must have been silent
	// before a tick may run.  A chattier log means a download is in
	// progress and dialing more peers would compete with it.
	downloadQuiet = 500 * time.Millisecond

	// lanStagingMaxAge and btStagingMaxAge bound how long a staged
	// candidate of the respective type survives without a discovery
	// refresh.
	lanStagingMaxAge = 10 * time.Second
	btStagingMaxAge  = 30 * time.Second

	// networkCacheAge bounds how long a connectivity probe answer is
	// reused.
	networkCacheAge = time.Second

	// maxStagedPromotions bounds how many followed staged peers one tick
	// may promote into the hub.
	maxStagedPromotions = 5

	// maxStagedPubs pauses pub discovery intake while at least this many
	// pub candidates sit in staging.
	maxStagedPubs = 3

	// frustratingAge is how long a non-permanent or stuck entry may hold a
	// hub slot before it is torn down.
	frustratingAge = 10 * time.Second

	// maxInternetConnAge bounds the lifetime of internet connections so
	// the mesh keeps churning toward new peers.
	maxInternetConnAge = time.Hour

	// blockedHops is the hop count the social graph assigns to blocked
	// identities.
	blockedHops = -1
)

// Config holds the configuration options related to the scheduler.
type Config struct {
	// Book, Hub, Staging, and Query are the pools the scheduler drives.
	// All four are required.
	Book    *addrbook.Book
	Hub     *hub.Hub
	Staging *staging.Pool
	Query   *query.Query

	// The optional collaborators.  Nil values are replaced by null
	// implementations, so the scheduler never feature-detects at runtime.
	Graph      SocialGraph
	MessageLog MessageLog
	LAN        LANDiscovery
	Bluetooth  BluetoothNearby
	Network    NetworkState
	Wake       WakeSource

	// Seeds are multiserver addresses remembered at startup so a fresh
	// node has somewhere to begin.
	Seeds []string

	// NoSeedClass disables the dedicated dial class for seed records.
	NoSeedClass bool

	// NoPubDiscovery disables staging of pub announcements from the
	// message log.
	NoPubDiscovery bool

	// NoAutoPopulate disables remembering the configured seeds at
	// startup.
	NoAutoPopulate bool

	// Rand supplies the scheduler's random choices.  It defaults to a
	// cryptographically seeded source.
	Rand Rand
}

// Scheduler drives the system toward its target connection profile.  It
// periodically partitions dial candidates into classes, enforces per-class
// quotas with exponential backoff and group debouncing, and reacts to
// network, wakeup, discovery, and disconnect events, all while respecting the
// social follow/block graph.
//
// All policy mutations are serialized: a tick runs to completion before any
// other scheduler action is applied.
type Scheduler struct {
	cfg Config
	clk clock

	// mu serializes ticks and protects all fields below.
	mu sync.Mutex

	started bool
	closed  bool

	// tickTimer is the pending fuzzed tick, if any.  tickDeadline is its
	// nominal fire time and is used to collapse redundant requests.
	tickTimer    timer
	tickDeadline time.Time

	// netOK and netCheckedAt cache the last connectivity probe.
	netOK        bool
	netCheckedAt time.Time

	// connectedAt tracks when each live address completed its handshake so
	// session durations can be folded into the address book.
	connectedAt map[string]time.Time

	// quit is closed on Stop to release every helper goroutine.
	quit chan struct{}
	wg   sync.WaitGroup

	// cancelers tear down pool subscriptions on Stop.
	cancelers []func()
}

// New returns a scheduler over the provided pools and collaborators.  Use
// Start to begin scheduling.
func New(cfg *Config) (*Scheduler, error) {
	if cfg.Book == nil || cfg.Hub == nil || cfg.Staging == nil ||
		cfg.Query == nil {

		return nil, makeError(ErrMissingPools,
			"scheduler requires the address book, hub, staging, and query")
	}

	s := Scheduler{
		cfg:         *cfg, // Copy so caller can't mutate
		clk:         sysClock{},
		connectedAt: make(map[string]time.Time),
		quit:        make(chan struct{}),
	}
	if s.cfg.Graph == nil {
		s.cfg.Graph = nullSocialGraph{}
	}
	if s.cfg.MessageLog == nil {
		s.cfg.MessageLog = nullMessageLog{}
	}
	if s.cfg.LAN == nil {
		s.cfg.LAN = nullLANDiscovery{}
	}
	if s.cfg.Bluetooth == nil {
		s.cfg.Bluetooth = nullBluetooth{}
	}
	if s.cfg.Network == nil {
		s.cfg.Network = nullNetworkState{}
	}
	if s.cfg.Wake == nil {
		s.cfg.Wake = nullWakeSource{}
	}
	if s.cfg.Rand == nil {
		s.cfg.Rand = cryptoRand{}
	}
	return &s, nil
}

// Start begins scheduling.  The first start purges address book records that
// must be rediscovered, remembers the configured seeds, and wires discovery
// and reaction triggers.  Starting an already-running scheduler is a no-op.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return makeError(ErrShutdown, "start on stopped scheduler")
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true

	s.purgeVolatileRecordsLocked()
	if !s.cfg.NoAutoPopulate {
		s.rememberSeedsLocked()
	}
	s.mu.Unlock()

	s.startGlue()
	s.startDiscovery()
	s.startTriggers()

	log.Info("Scheduler started")
	s.UpdateSoon(0)
	return nil
}

// purgeVolatileRecordsLocked forgets records whose coordinates do not
// survive a restart, so they must be rediscovered.
//
// This function MUST be called with the scheduler mutex held.
func (s *Scheduler) purgeVolatileRecordsLocked() {
	purged := 0
	for addr, rec := range s.cfg.Book.Entries() {
		volatileSource := rec.Source == msaddr.SourceLocal ||
			rec.Source == msaddr.SourceBT
		volatileType := rec.Type == msaddr.TypeLAN || rec.Type == msaddr.TypeBT
		if volatileSource || volatileType {
			s.cfg.Book.Delete(addr)
			purged++
		}
	}
	if purged > 0 {
		log.Debugf("Purged %d volatile address book records", purged)
	}
}

// rememberSeedsLocked populates the address book with the configured seed
// addresses.
//
// This function MUST be called with the scheduler mutex held.
func (s *Scheduler) rememberSeedsLocked() {
	for _, seed := range s.cfg.Seeds {
		parsed, err := msaddr.Parse(seed)
		if err != nil {
			log.Warnf("Ignoring malformed seed %q: %v", seed, err)
			continue
		}
		if s.cfg.Book.Has(seed) {
			continue
		}
		rec := &msaddr.PeerRecord{
			Key:    parsed.Key,
			Host:   parsed.Host,
			Port:   parsed.Port,
			Source: msaddr.SourceSeed,
			Type:   msaddr.TypeInternet,
		}
		if err := s.cfg.Book.Set(seed, rec); err != nil {
			log.Warnf("Failed to remember seed %s: %v", seed, err)
			continue
		}
		log.Debugf("Remembered seed %s", seed)
	}
}

// Stop halts scheduling: discovery is stopped, the hub is reset, and the
// closed flag is set.  A stopped scheduler silently drops later UpdateSoon
// calls and cannot be restarted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.tickTimer != nil {
		s.tickTimer.Stop()
		s.tickTimer = nil
	}
	wasStarted := s.started
	cancelers := s.cancelers
	s.cancelers = nil
	s.mu.Unlock()

	close(s.quit)
	for _, cancel := range cancelers {
		cancel()
	}
	if wasStarted {
		s.cfg.LAN.Stop()
		s.cfg.Hub.Reset()
	}
	s.wg.Wait()
	log.Info("Scheduler stopped")
}

// UpdateSoon schedules a single upcoming tick after roughly the provided
// period; zero means the default period.  The actual delay is fuzzed to
// period*(0.5+U[0,1)) so meshes of nodes running the same policy do not dial
// each other in lockstep.  Redundant calls collapse into the earliest pending
// tick, and calls on a stopped scheduler are dropped silently.
func (s *Scheduler) UpdateSoon(period time.Duration) {
	if period <= 0 {
		period = defaultTickPeriod
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.started {
		return
	}

	fuzzed := period/2 + s.cfg.Rand.Duration(period)
	deadline := s.clk.Now().Add(fuzzed)
	if s.tickTimer != nil {
		if !deadline.Before(s.tickDeadline) {
			return
		}
		s.tickTimer.Stop()
	}
	s.tickDeadline = deadline
	s.tickTimer = s.clk.AfterFunc(fuzzed, s.tick)
}

// tick runs one scheduling pass.  It is the timer callback armed by
// UpdateSoon.
func (s *Scheduler) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.tickTimer = nil
	s.tickDeadline = time.Time{}
	s.updateNowLocked()
}

// updateNowLocked runs one scheduling pass unless the ambient state asks for
// suppression: an unready message log, a download in progress, or a hops
// table still loading.
//
// This function MUST be called with the scheduler mutex held.
func (s *Scheduler) updateNowLocked() {
	if !s.cfg.MessageLog.Ready() {
		log.Trace("Skipping tick: message log not ready")
		return
	}
	now := s.clk.Now()
	if last := s.cfg.MessageLog.LastActivity(); !last.IsZero() &&
		now.Sub(last) < downloadQuiet {

		log.Trace("Skipping tick: download in progress")
		return
	}
	if !s.cfg.Graph.Ready() {
		log.Trace("Skipping tick: hops table still loading")
		return
	}

	hops := s.cfg.Graph.Hops()
	s.updateStagingLocked(now, hops)
	s.updateHubLocked(now, hops)
}

// updateStagingLocked performs staging maintenance: it stages manual-only
// records so they stay visible, purges blocked candidates, and ages out
// stale LAN and Bluetooth candidates.
//
// This function MUST be called with the scheduler mutex held.
func (s *Scheduler) updateStagingLocked(now time.Time, hops map[string]int) {
	// Records the owner opted out of autoconnecting stay visible as staged
	// candidates so a client can still promote them by hand.
	for addr, rec := range s.cfg.Book.Entries() {
		if rec.AutoconnectEnabled() {
			continue
		}
		if hops[rec.Key.String()] == blockedHops {
			continue
		}
		s.cfg.Staging.Stage(addr, rec)
	}

	for _, e := range s.cfg.Staging.Entries() {
		if hops[e.Record.Key.String()] == blockedHops {
			s.cfg.Staging.Unstage(e.Addr)
			continue
		}
		var maxAge time.Duration
		switch e.Record.Type {
		case msaddr.TypeLAN:
			maxAge = lanStagingMaxAge
		case msaddr.TypeBT:
			maxAge = btStagingMaxAge
		default:
			continue
		}
		if e.Record.StagingUpdated.Add(maxAge).Before(now) {
			log.Debugf("Aging out staged %s candidate %s", e.Record.Type,
				e.Addr)
			s.cfg.Staging.Unstage(e.Addr)
		}
	}
}

// canBeConnected reports whether a candidate host is reachable right now.
// Loopback hosts always are; anything else needs the network to be up, with
// the probe answer cached briefly.
func (s *Scheduler) canBeConnected(now time.Time, host string) bool {
	if msaddr.IsLoopbackHost(host) {
		return true
	}
	if now.Sub(s.netCheckedAt) >= networkCacheAge {
		s.netOK = s.cfg.Network.HasNetwork()
		s.netCheckedAt = now
	}
	return s.netOK
}

// isLocalPeer reports whether the record describes a peer on the local
// network: a privately routable non-loopback host that arrived through local
// discovery.
func isLocalPeer(rec *msaddr.PeerRecord) bool {
	if msaddr.IsLoopbackHost(rec.Host) || !msaddr.IsPrivateHost(rec.Host) {
		return false
	}
	return rec.Source == msaddr.SourceLocal || rec.Type == msaddr.TypeLAN
}
