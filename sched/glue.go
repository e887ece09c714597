// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sched

import (
	"github.com/meshwire/meshd/hub"
	"github.com/meshwire/meshd/staging"
)

// startGlue wires the cross-pool invariant enforcement and the hub event
// reactions: an address entering the hub leaves staging, a staged address
// that turns out to be live leaves staging, dial outcomes are folded into the
// address book, and disconnections request a prompt tick.
func (s *Scheduler) startGlue() {
	events, cancelEvents := s.cfg.Hub.Listen()
	stagedCh, cancelStaged := s.cfg.Staging.LiveEntries()

	s.mu.Lock()
	s.cancelers = append(s.cancelers, cancelEvents, cancelStaged)
	s.mu.Unlock()

	s.wg.Add(2)
	go s.hubEventPump(events)
	go s.stagingWatch(stagedCh)
}

// hubEventPump consumes the hub lifecycle stream.  It must be run as a
// goroutine.
func (s *Scheduler) hubEventPump(events <-chan hub.Event) {
	defer s.wg.Done()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.handleHubEvent(ev)
		case <-s.quit:
			return
		}
	}
}

// handleHubEvent applies one hub transition to the other pools.
func (s *Scheduler) handleHubEvent(ev hub.Event) {
	now := s.clk.Now()

	switch ev.Type {
	case hub.EventConnecting:
		// An address in flight must not remain a staged candidate.
		s.cfg.Staging.Unstage(ev.Addr)
		s.cfg.Book.Attempt(ev.Addr, now)

	case hub.EventConnected:
		s.cfg.Staging.Unstage(ev.Addr)
		s.cfg.Book.Good(ev.Addr, now)
		s.mu.Lock()
		s.connectedAt[ev.Addr] = now
		s.mu.Unlock()

	case hub.EventConnectingFailed:
		s.cfg.Book.Failed(ev.Addr, now)

	case hub.EventDisconnected:
		s.mu.Lock()
		connectedAt, wasConnected := s.connectedAt[ev.Addr]
		delete(s.connectedAt, ev.Addr)
		s.mu.Unlock()
		if wasConnected {
			s.cfg.Book.ObserveDuration(ev.Addr, now.Sub(connectedAt), now)
		}
		s.UpdateSoon(disconnectTickPeriod)
	}
}

// stagingWatch double-checks every staging change against the hub, unstaging
// any candidate that is already live.  The staging pool refuses live
// addresses on insert, but a dial racing the insert can slip through; this
// watcher restores the invariant.
func (s *Scheduler) stagingWatch(stagedCh <-chan []staging.Entry) {
	defer s.wg.Done()

	for {
		select {
		case snapshot, ok := <-stagedCh:
			if !ok {
				return
			}
			for _, e := range snapshot {
				if _, live := s.cfg.Hub.GetState(e.Addr); live {
					log.Debugf("Unstaging live address %s", e.Addr)
					s.cfg.Staging.Unstage(e.Addr)
				}
			}
		case <-s.quit:
			return
		}
	}
}
