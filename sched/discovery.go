// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sched

import (
	"fmt"
	"time"

	"github.com/decred/dcrd/container/lru"

	"github.com/meshwire/meshd/msaddr"
)

const (
	// pubThrottle spaces out processing of pub announcements so a burst in
	// the message log does not stampede the staging pool.
	pubThrottle = 250 * time.Millisecond

	// pubValvePoll is how often the pub intake re-checks the staged pub
	// count while the valve is closed.
	pubValvePoll = time.Second

	// btPollInterval is how often the Bluetooth collaborator is asked for
	// nearby devices.
	btPollInterval = time.Second

	// recentPubLimit bounds the dedupe cache of recently processed pub
	// announcements.
	recentPubLimit = 1000
)

// startDiscovery wires the discovery intakes that are available.
func (s *Scheduler) startDiscovery() {
	if !s.cfg.NoPubDiscovery {
		if pubCh := s.cfg.MessageLog.PubMessages(); pubCh != nil {
			s.wg.Add(1)
			go s.pubIntake(pubCh)
		}
	}
	if lanCh := s.cfg.LAN.Discoveries(); lanCh != nil {
		s.wg.Add(1)
		go s.lanIntake(lanCh)
	}
	if _, isNull := s.cfg.Bluetooth.(nullBluetooth); !isNull {
		s.wg.Add(1)
		go s.btPoll()
	}
}

// startTriggers wires the external reaction triggers: wakeups and network
// changes reset the hub, and a steady interval keeps ticks coming even when
// nothing else does.
func (s *Scheduler) startTriggers() {
	if wakeCh := s.cfg.Wake.Wakeups(); wakeCh != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case _, ok := <-wakeCh:
					if !ok {
						return
					}
					log.Debug("Wakeup: resetting the hub")
					s.cfg.Hub.Reset()
				case <-s.quit:
					return
				}
			}
		}()
	}

	if netCh := s.cfg.Network.Changes(); netCh != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for {
				select {
				case _, ok := <-netCh:
					if !ok {
						return
					}
					log.Debug("Network change: resetting the hub")
					s.cfg.Hub.Reset()
				case <-s.quit:
					return
				}
			}
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			if !s.sleep(steadyInterval) {
				return
			}
			s.UpdateSoon(0)
		}
	}()
}

// sleep blocks for the duration on the scheduler clock.  It returns false
// when the scheduler stopped while sleeping.
func (s *Scheduler) sleep(d time.Duration) bool {
	fired := make(chan struct{})
	t := s.clk.AfterFunc(d, func() { close(fired) })
	select {
	case <-fired:
		return true
	case <-s.quit:
		t.Stop()
		return false
	}
}

// stagedPubCount returns how many pub candidates currently sit in staging.
func (s *Scheduler) stagedPubCount() int {
	count := 0
	for _, e := range s.cfg.Staging.Entries() {
		if e.Record.Type == msaddr.TypePub {
			count++
		}
	}
	return count
}

// pubIntake consumes pub announcements from the message log.  Intake pauses
// while enough pub candidates are already staged, which pushes back on the
// announcement stream instead of dropping messages.  It must be run as a
// goroutine.
func (s *Scheduler) pubIntake(pubCh <-chan PubMessage) {
	defer s.wg.Done()

	recent := lru.NewSet[string](recentPubLimit)
	for {
		var msg PubMessage
		var ok bool
		select {
		case msg, ok = <-pubCh:
			if !ok {
				return
			}
		case <-s.quit:
			return
		}

		// Valve: hold intake while the staging pool has its fill of
		// pubs.  Not receiving further messages pushes back on the
		// announcement stream instead of dropping it.
		for s.stagedPubCount() >= maxStagedPubs {
			if !s.sleep(pubValvePoll) {
				return
			}
		}

		if !s.sleep(pubThrottle) {
			return
		}

		parsed, err := msaddr.Parse(msg.Address)
		if err != nil {
			log.Debugf("Ignoring malformed pub announcement %q: %v",
				msg.Address, err)
			continue
		}
		addr := parsed.String()
		if recent.Contains(addr) {
			continue
		}
		recent.Put(addr)

		if s.cfg.Book.Has(addr) {
			continue
		}

		rec := &msaddr.PeerRecord{
			Key:    parsed.Key,
			Host:   parsed.Host,
			Port:   parsed.Port,
			Source: msaddr.SourcePub,
			Type:   msaddr.TypePub,
		}
		staged := rec.Clone()
		s.cfg.Staging.Stage(addr, staged)

		remembered := rec.Clone()
		remembered.SetAutoconnect(false)
		if err := s.cfg.Book.Set(addr, remembered); err != nil {
			log.Debugf("Failed to remember pub %s: %v", addr, err)
		}
	}
}

// lanIntake consumes local-network discovery beacons.  Directly followed
// peers are dialed immediately; everyone else is staged for the scheduler to
// consider.  It must be run as a goroutine.
func (s *Scheduler) lanIntake(lanCh <-chan LANAnnouncement) {
	defer s.wg.Done()

	for {
		var ann LANAnnouncement
		var ok bool
		select {
		case ann, ok = <-lanCh:
			if !ok {
				return
			}
		case <-s.quit:
			return
		}

		parsed, err := msaddr.Parse(ann.Address)
		if err != nil {
			log.Debugf("Ignoring malformed LAN beacon %q: %v", ann.Address,
				err)
			continue
		}

		rec := &msaddr.PeerRecord{
			Key:      parsed.Key,
			Host:     parsed.Host,
			Port:     parsed.Port,
			Source:   msaddr.SourceLocal,
			Type:     msaddr.TypeLAN,
			Verified: ann.Verified,
		}

		hops := s.cfg.Graph.Hops()
		if h, known := hops[parsed.Key.String()]; known && h > 0 && h <= 1 {
			s.dial(ann.Address, rec)
			continue
		}
		s.cfg.Staging.Stage(ann.Address, rec)
	}
}

// btPoll polls the Bluetooth collaborator for nearby devices, synthesizing a
// bluetooth multiserver address per device.  Directly followed peers are
// dialed immediately; everyone else is staged.  It must be run as a
// goroutine.
func (s *Scheduler) btPoll() {
	defer s.wg.Done()

	for {
		if !s.sleep(btPollInterval) {
			return
		}

		hops := s.cfg.Graph.Hops()
		for _, dev := range s.cfg.Bluetooth.Nearby() {
			if dev.MAC == "" || dev.Key.IsZero() {
				continue
			}
			addr := fmt.Sprintf("bt:%s~shs:%s", dev.MAC, dev.Key.Base64())

			rec := &msaddr.PeerRecord{
				Key:    dev.Key,
				Host:   dev.MAC,
				Source: msaddr.SourceBT,
				Type:   msaddr.TypeBT,
			}

			if h, known := hops[dev.Key.String()]; known && h > 0 && h <= 1 {
				if _, live := s.cfg.Hub.GetState(addr); !live {
					s.dial(addr, rec)
				}
				continue
			}
			s.cfg.Staging.Stage(addr, rec)
		}
	}
}
