// Copyright (c) 2025-2026 The Meshwire developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sched

import (
	"time"

	"github.com/decred/dcrd/crypto/rand"
)

// Rand supplies the random choices the scheduler makes: tick fuzz and
// candidate shuffling.  It is injectable so tests can seed determinism.
type Rand interface {
	// IntN returns a uniform value in [0, n).
	IntN(n int) int

	// Duration returns a uniform duration in [0, n).
	Duration(n time.Duration) time.Duration

	// Shuffle randomizes the order of n elements through swap.
	Shuffle(n int, swap func(i, j int))
}

// cryptoRand is the production randomness source.
type cryptoRand struct{}

func (cryptoRand) IntN(n int) int { return rand.IntN(n) }

func (cryptoRand) Duration(n time.Duration) time.Duration {
	return rand.Duration(n)
}

func (cryptoRand) Shuffle(n int, swap func(i, j int)) {
	rand.Shuffle(n, swap)
}
