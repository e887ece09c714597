// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package addrbook implements the durable address book of the overlay.

The book maps multiserver addresses to peer records.  The in-memory image is
authoritative for reads, while mutations are batched and written to a leveldb
store within a bounded flush interval, so the book survives process restarts
without paying a disk write per mutation.
*/
package addrbook
