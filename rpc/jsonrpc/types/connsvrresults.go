// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package types

// PeerInfo models one peer row returned by the peer listing commands.  Times
// are unix milliseconds; zero means never.
type PeerInfo struct {
	Address     string  `json:"address"`
	Key         string  `json:"key,omitempty"`
	Source      string  `json:"source,omitempty"`
	Type        string  `json:"type,omitempty"`
	State       string  `json:"state,omitempty"`
	Autoconnect bool    `json:"autoconnect"`
	Failure     int     `json:"failure,omitempty"`
	StateChange int64   `json:"statechange,omitempty"`
	LastAttempt int64   `json:"lastattempt,omitempty"`
	LastSuccess int64   `json:"lastsuccess,omitempty"`
	PingMean    float64 `json:"pingmean,omitempty"`
	Verified    bool    `json:"verified,omitempty"`
	Note        string  `json:"note,omitempty"`
}

// VersionResult models the data returned by the version command.
type VersionResult struct {
	VersionString string `json:"versionstring"`
	Major         uint32 `json:"major"`
	Minor         uint32 `json:"minor"`
	Patch         uint32 `json:"patch"`
}
