// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package query

import (
	"time"

	"github.com/meshwire/meshd/msaddr"
)

// RecordPredicate is a pure function over a peer record.  Predicates compose
// through View.Filter.
type RecordPredicate func(*msaddr.PeerRecord) bool

// HasNoAttempts reports whether no dial has ever been recorded against the
// record.
func HasNoAttempts(rec *msaddr.PeerRecord) bool {
	return rec.LastAttempt.IsZero() && rec.LastSuccess.IsZero() &&
		rec.Failure == 0
}

// HasOnlyFailedAttempts reports whether at least one dial was recorded and
// none ever completed.
func HasOnlyFailedAttempts(rec *msaddr.PeerRecord) bool {
	return rec.Failure >= 1 && rec.LastSuccess.IsZero()
}

// HasSuccessfulAttempts reports whether at least one connection ever
// completed.
func HasSuccessfulAttempts(rec *msaddr.PeerRecord) bool {
	return !rec.LastSuccess.IsZero()
}

// HasPinged reports whether the peer has ever answered a heartbeat, meaning a
// round-trip mean is defined.
func HasPinged(rec *msaddr.PeerRecord) bool {
	return rec.Ping != nil && rec.Ping.RTT.Count > 0
}

// IsLegacy reports whether the peer has completed connections but never
// answered a heartbeat, which marks peers speaking only the old protocol.
func IsLegacy(rec *msaddr.PeerRecord) bool {
	return HasSuccessfulAttempts(rec) && !HasPinged(rec)
}

// backoffDelay returns the exponential delay owed after the given failure
// count, clamped to max.  The first failure owes one full step; every
// further failure doubles the wait.
func backoffDelay(step, max time.Duration, failures int) time.Duration {
	d := step
	for i := 1; i < failures && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return d
}

// PassesExpBackoff returns a predicate that admits a record once enough time
// has passed since its last attempt: one step after the first failure,
// doubling with each further failure, clamped to max.  Records with no
// recorded attempt always pass.
func PassesExpBackoff(now time.Time, step, max time.Duration) RecordPredicate {
	return func(rec *msaddr.PeerRecord) bool {
		if rec.LastAttempt.IsZero() {
			return true
		}
		return now.Sub(rec.LastAttempt) >= backoffDelay(step, max, rec.Failure)
	}
}
