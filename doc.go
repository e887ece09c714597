// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
meshd is the connection-management daemon of a peer-to-peer gossip overlay.

It maintains a durable book of peer addresses, a live hub of in-flight
connections, and an ephemeral staging area of discovered candidates, and
drives the churn between the three with a policy scheduler: per-class
connection quotas, exponential backoff, per-host debouncing, and reactions to
discovery, disconnections, wakeups, and network changes, all under the social
follow/block graph.

Usage:

	meshd [OPTIONS]

Use meshd -h to show the available options.
*/
package main
