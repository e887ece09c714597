// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package query implements a read-only facade over the address book, the hub,
and the staging pool.

Projections produce views of peers joined with their hub state, and pure
record predicates compose through chainable view combinators.  The scheduler
builds every policy decision out of these pieces, which keeps the policy
logic testable without any pool machinery behind it.
*/
package query
