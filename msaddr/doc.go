// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package msaddr implements parsing and formatting of multiserver addresses and
the peer record value shared by the connection pools.

A multiserver address is a transport-qualified dialable string of the
canonical form

	transport:host:port~shs:base64key

with recognized transports net, onion, bt, dht, and lan.  Bluetooth addresses
carry the remote MAC with the colons stripped and no port
(bt:<machex>~shs:<key>), and DHT tunnel addresses take the form
dht:<seed>:<remoteId>~noauth.

Peers are identified by long-lived ed25519 public keys.  The canonical
rendering of an identity is "@<base64>.ed25519" and is represented here by the
FeedID type.
*/
package msaddr
