// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package hub implements the live connection registry of the overlay.

The hub tracks at most one entry per multiserver address while that address is
connecting or connected, owns the transport connections behind the entries,
and publishes a totally ordered stream of lifecycle events.  It does not
decide which peers to dial; that policy lives in the scheduler.
*/
package hub
