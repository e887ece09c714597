// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package staging implements the ephemeral candidate pool of the overlay.

Candidates arrive from out-of-band discovery (LAN beacons, Bluetooth scans,
pub announcements) and sit here until the scheduler promotes them into the
hub, discovery stops refreshing them and they age out, or their key becomes
blocked.  The pool refuses addresses that already have an active hub entry.
*/
package staging
