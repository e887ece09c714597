// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package sched implements the connection scheduler of the overlay.

The scheduler is a periodic, fuzzed control loop over the three peer pools.
Each tick first performs staging maintenance, then partitions the dialable
candidates into classes (seeds, rooms, pinging peers, untried peers, failing
peers, legacy peers) and fills each class's connection quota under
exponential backoff and per-host debouncing.  Between ticks it reacts to hub
disconnections, discovery beacons, pub announcements, process wakeups, and
network changes, and it enforces the cross-pool invariants: an address in
flight is never simultaneously staged, and blocked identities are expelled
from every pool.

Ambient collaborators (social graph, message log, LAN discovery, Bluetooth,
network state, wakeup detection) are modeled as optional interfaces with
null-object defaults, so an absent capability simply disables the behavior
that needs it.
*/
package sched
