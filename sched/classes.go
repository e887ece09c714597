// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sched

import (
	"context"
	"time"

	"github.com/meshwire/meshd/hub"
	"github.com/meshwire/meshd/msaddr"
	"github.com/meshwire/meshd/query"
)

// classOpts parameterizes one dial class: how many slots it may hold, the
// exponential backoff applied to its candidates, and the per-host debounce
// window.
type classOpts struct {
	quota       int
	backoffStep time.Duration
	backoffMax  time.Duration
	groupMin    time.Duration
}

// shuffleChancePct is the percent chance a class pass dials candidates in
// random order instead of oldest first, which keeps a large mesh from
// converging on the same dial order everywhere.
const shuffleChancePct = 30

// updateHubLocked runs the quota engine: one pass per dial class in priority
// order, then the cross-class cleanup actions.
//
// This function MUST be called with the scheduler mutex held.
func (s *Scheduler) updateHubLocked(now time.Time, hops map[string]int) {
	// dialed tracks the addresses already dialed by this tick so no two
	// class passes pick the same candidate before the hub registers it.
	dialed := make(map[string]struct{})

	if !s.cfg.NoSeedClass {
		s.updateClassLocked(now, hops, dialed,
			func(rec *msaddr.PeerRecord) bool {
				return rec.Source == msaddr.SourceSeed
			},
			classOpts{
				quota:       3,
				backoffStep: 2 * time.Second,
				backoffMax:  10 * time.Minute,
				groupMin:    time.Second,
			})
	}

	// With nothing in flight at all, any candidate is better than silence.
	if len(s.cfg.Query.PeersInConnection()) == 0 && len(dialed) == 0 {
		s.updateClassLocked(now, hops, dialed,
			func(*msaddr.PeerRecord) bool { return true },
			classOpts{
				quota:       1,
				backoffStep: time.Second,
				backoffMax:  6 * time.Second,
				groupMin:    0,
			})
	}

	s.updateClassLocked(now, hops, dialed,
		func(rec *msaddr.PeerRecord) bool {
			return rec.Type == msaddr.TypeRoom
		},
		classOpts{
			quota:       10,
			backoffStep: 5 * time.Second,
			backoffMax:  5 * time.Minute,
			groupMin:    5 * time.Second,
		})

	s.updateClassLocked(now, hops, dialed, query.HasPinged,
		classOpts{
			quota:       2,
			backoffStep: 10 * time.Second,
			backoffMax:  10 * time.Minute,
			groupMin:    5 * time.Second,
		})

	s.updateClassLocked(now, hops, dialed, query.HasNoAttempts,
		classOpts{
			quota:       2,
			backoffStep: 30 * time.Second,
			backoffMax:  30 * time.Minute,
			groupMin:    15 * time.Second,
		})

	s.updateClassLocked(now, hops, dialed, query.HasOnlyFailedAttempts,
		classOpts{
			quota:       3,
			backoffStep: time.Minute,
			backoffMax:  3 * time.Hour,
			groupMin:    5 * time.Minute,
		})

	s.updateClassLocked(now, hops, dialed, query.IsLegacy,
		classOpts{
			quota:       1,
			backoffStep: 4 * time.Minute,
			backoffMax:  3 * time.Hour,
			groupMin:    5 * time.Minute,
		})

	s.promoteStagedLocked(now, hops, dialed)
	s.disconnectBlockedLocked(hops)
	s.disconnectFrustratingLocked(now)
	s.disconnectOldInternetLocked(now)
}

// updateClassLocked applies one class pass: tear down excess entries, then
// fill the class's free slots from the connectable candidates that survive
// the policy filters.
//
// This function MUST be called with the scheduler mutex held.
func (s *Scheduler) updateClassLocked(now time.Time, hops map[string]int,
	dialed map[string]struct{}, pred query.RecordPredicate, opts classOpts) {

	up := s.cfg.Query.PeersInConnection().Filter(pred)

	// Tolerate up to twice the quota before tearing anything down, then
	// come back down to the quota itself, oldest transitions first.
	if len(up) > 2*opts.quota {
		excess := up.SortByStateChange().Take(len(up) - opts.quota)
		for _, p := range excess {
			log.Debugf("Disconnecting %s: class over quota", p.Addr)
			s.cfg.Hub.Disconnect(p.Addr)
		}
	}

	free := opts.quota - len(up)
	if free < 0 {
		free = 0
	}
	// A single free slot is never filled alone: one failing peer would
	// then monopolize the class with reconnect churn, so dial in pairs.
	if free == 1 {
		free = 2
	}
	if free == 0 {
		return
	}

	down := s.cfg.Query.PeersConnectable(query.OriginDB).
		Filter(pred).
		FilterPeers(func(p query.Peer) bool {
			if _, ok := dialed[p.Addr]; ok {
				return false
			}
			if hops[p.Record.Key.String()] == blockedHops {
				return false
			}
			if !p.Record.AutoconnectEnabled() {
				return false
			}
			return s.canBeConnected(now, p.Record.Host)
		}).
		DebounceGroups(now, opts.groupMin).
		Filter(query.PassesExpBackoff(now, opts.backoffStep, opts.backoffMax))

	if s.cfg.Rand.IntN(100) < shuffleChancePct {
		s.cfg.Rand.Shuffle(len(down), func(i, j int) {
			down[i], down[j] = down[j], down[i]
		})
	} else {
		down = down.SortByStateChange()
	}

	for _, p := range down.Take(free) {
		dialed[p.Addr] = struct{}{}
		s.dial(p.Addr, p.Record)
	}
}

// dial starts a hub connection in the background.  Dial outcomes come back
// through the hub event stream, so errors here only matter for logging.
func (s *Scheduler) dial(addr string, rec *msaddr.PeerRecord) {
	log.Debugf("Dialing %s", addr)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := s.cfg.Hub.Connect(context.Background(), addr, rec)
		if err != nil {
			log.Debugf("Dial of %s did not complete: %v", addr, err)
		}
	}()
}

// promoteStagedLocked dials up to maxStagedPromotions staged candidates whose
// key the local identity follows directly.
//
// This function MUST be called with the scheduler mutex held.
func (s *Scheduler) promoteStagedLocked(now time.Time, hops map[string]int,
	dialed map[string]struct{}) {

	promoted := 0
	for _, e := range s.cfg.Staging.Entries() {
		if promoted >= maxStagedPromotions {
			break
		}
		if _, ok := dialed[e.Addr]; ok {
			continue
		}
		h, known := hops[e.Record.Key.String()]
		if !known || h <= 0 || h > 1 {
			continue
		}
		if _, live := s.cfg.Hub.GetState(e.Addr); live {
			continue
		}
		if !s.canBeConnected(now, e.Record.Host) {
			continue
		}
		dialed[e.Addr] = struct{}{}
		log.Debugf("Promoting followed staged peer %s", e.Addr)
		s.dial(e.Addr, e.Record)
		promoted++
	}
}

// disconnectBlockedLocked tears down in-connection peers whose key has become
// blocked.
//
// This function MUST be called with the scheduler mutex held.
func (s *Scheduler) disconnectBlockedLocked(hops map[string]int) {
	for _, p := range s.cfg.Query.PeersInConnection() {
		if hops[p.Record.Key.String()] == blockedHops {
			log.Debugf("Disconnecting %s: key is blocked", p.Addr)
			s.cfg.Hub.Disconnect(p.Addr)
		}
	}
}

// disconnectFrustratingLocked tears down entries that are going nowhere:
// peers that are neither permanent (pinging or local) nor progressing past
// the connecting state, once they have held their slot for a while.
//
// This function MUST be called with the scheduler mutex held.
func (s *Scheduler) disconnectFrustratingLocked(now time.Time) {
	for _, p := range s.cfg.Query.PeersInConnection() {
		permanent := query.HasPinged(p.Record) || isLocalPeer(p.Record)
		stuck := p.State == hub.StateConnecting
		if !permanent || stuck {
			if p.Record.StateChange.Add(frustratingAge).Before(now) {
				log.Debugf("Disconnecting %s: frustrating connection", p.Addr)
				s.cfg.Hub.Disconnect(p.Addr)
			}
		}
	}
}

// disconnectOldInternetLocked bounds the lifetime of internet connections.
// Local transports are exempt: they cost nothing and churn on their own.
//
// This function MUST be called with the scheduler mutex held.
func (s *Scheduler) disconnectOldInternetLocked(now time.Time) {
	for _, p := range s.cfg.Query.PeersInConnection() {
		if p.Record.Type == msaddr.TypeBT || p.Record.Type == msaddr.TypeLAN {
			continue
		}
		if p.Record.StateChange.Add(maxInternetConnAge).Before(now) {
			log.Debugf("Disconnecting %s: connection is over an hour old",
				p.Addr)
			s.cfg.Hub.Disconnect(p.Addr)
		}
	}
}
