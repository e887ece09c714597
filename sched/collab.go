// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sched

import (
	"time"

	"github.com/meshwire/meshd/msaddr"
)

// SocialGraph supplies the follow/block graph as hop counts per identity.
// Hop counts follow the overlay convention: -1 is blocked, 0 is self, 1 is a
// direct follow, and larger values are friends of friends.
type SocialGraph interface {
	// Ready reports whether the hops table has finished loading.  Ticks
	// are suppressed until it has.
	Ready() bool

	// Hops returns the current hop count per canonical feed identity.
	// Identities absent from the map are simply unknown.
	Hops() map[string]int
}

// PubMessage is one pub announcement lifted from the message log.
type PubMessage struct {
	// Address is the announced multiserver address.
	Address string
}

// MessageLog supplies readiness and activity signals from the local message
// log plus the stream of pub announcements used for discovery.
type MessageLog interface {
	// Ready reports whether the log has finished its initial indexing.
	// Ticks are suppressed until it has.
	Ready() bool

	// LastActivity returns the arrival time of the most recent log
	// message.  A very recent arrival suggests a download is in progress,
	// which also suppresses ticks.
	LastActivity() time.Time

	// PubMessages returns the pub announcement stream, or nil when the
	// log cannot supply one.
	PubMessages() <-chan PubMessage
}

// LANAnnouncement is one beacon received from local-network discovery.
type LANAnnouncement struct {
	// Address is the announced multiserver address.
	Address string

	// Verified reports whether the beacon carried a verifiable signature.
	Verified bool
}

// LANDiscovery supplies the local-network discovery beacon stream.
type LANDiscovery interface {
	// Discoveries returns the beacon stream, or nil when LAN discovery is
	// unavailable.
	Discoveries() <-chan LANAnnouncement

	// Stop halts discovery.  It is called when the scheduler stops.
	Stop()
}

// BluetoothDevice is one nearby device reported by a Bluetooth scan.
type BluetoothDevice struct {
	// MAC is the remote device MAC with the colons stripped.
	MAC string

	// Key is the identity the device advertises.
	Key msaddr.FeedID
}

// BluetoothNearby supplies Bluetooth proximity scans.  The scheduler polls it
// once per second while running.
type BluetoothNearby interface {
	// Nearby returns the devices currently in radio range.
	Nearby() []BluetoothDevice
}

// NetworkState reports whether the machine currently has network
// connectivity and signals connectivity changes.
type NetworkState interface {
	// HasNetwork reports whether a usable network is up.  The scheduler
	// caches the answer briefly since implementations may probe the OS.
	HasNetwork() bool

	// Changes returns a stream that yields whenever connectivity changes,
	// or nil when change detection is unavailable.
	Changes() <-chan struct{}
}

// WakeSource signals that the process resumed from sleep.
type WakeSource interface {
	// Wakeups returns the wakeup stream, or nil when wakeup detection is
	// unavailable.
	Wakeups() <-chan struct{}
}

// The null collaborators below stand in for absent optional collaborators so
// the scheduler never has to feature-detect at runtime.

type nullSocialGraph struct{}

func (nullSocialGraph) Ready() bool          { return true }
func (nullSocialGraph) Hops() map[string]int { return nil }

type nullMessageLog struct{}

func (nullMessageLog) Ready() bool                    { return true }
func (nullMessageLog) LastActivity() time.Time        { return time.Time{} }
func (nullMessageLog) PubMessages() <-chan PubMessage { return nil }

type nullLANDiscovery struct{}

func (nullLANDiscovery) Discoveries() <-chan LANAnnouncement { return nil }
func (nullLANDiscovery) Stop()                               {}

type nullBluetooth struct{}

func (nullBluetooth) Nearby() []BluetoothDevice { return nil }

type nullNetworkState struct{}

func (nullNetworkState) HasNetwork() bool        { return true }
func (nullNetworkState) Changes() <-chan struct{} { return nil }

type nullWakeSource struct{}

func (nullWakeSource) Wakeups() <-chan struct{} { return nil }
