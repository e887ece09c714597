// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// NOTE: This file is intended to house the JSON-RPC websocket notifications
// that are supported by the connection server.

package types

import "github.com/decred/dcrd/dcrjson/v4"

const (
	// PeersNtfnMethod is the method used for notifications carrying the
	// full live entry set after a change.
	PeersNtfnMethod Method = "peerstate"

	// ChangeNtfnMethod is the method used for notifications carrying one
	// hub lifecycle transition.  It also backs the deprecated changes
	// command.
	ChangeNtfnMethod Method = "change"
)

// PeersNtfn defines the peerstate JSON-RPC notification.
type PeersNtfn struct {
	Peers []PeerInfo `json:"peers"`
}

// NewPeersNtfn returns a new instance which can be used to issue a peerstate
// JSON-RPC notification.
func NewPeersNtfn(peers []PeerInfo) *PeersNtfn {
	return &PeersNtfn{Peers: peers}
}

// ChangeNtfn defines the change JSON-RPC notification.
type ChangeNtfn struct {
	Type    string `json:"type"`
	Address string `json:"address"`
	Key     string `json:"key,omitempty"`
	Details string `json:"details,omitempty"`
}

// NewChangeNtfn returns a new instance which can be used to issue a change
// JSON-RPC notification.
func NewChangeNtfn(changeType, address, key, details string) *ChangeNtfn {
	return &ChangeNtfn{
		Type:    changeType,
		Address: address,
		Key:     key,
		Details: details,
	}
}

func init() {
	// The commands in this file are only usable by websockets and are
	// notifications.
	flags := dcrjson.UFWebsocketOnly | dcrjson.UFNotification

	dcrjson.MustRegister(PeersNtfnMethod, (*PeersNtfn)(nil), flags)
	dcrjson.MustRegister(ChangeNtfnMethod, (*ChangeNtfn)(nil), flags)
}
