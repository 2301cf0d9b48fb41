// Copyright © by Jeff Foley 2023-2024. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.
// SPDX-License-Identifier: Apache-2.0

// Package streams defines the random-number-stream collaborator the
// Simulation pulls uniform draws from, plus a default implementation
// supporting antithetic pairing and sub-stream advancement.
package streams

import "math/rand/v2"

// Stream is the minimal contract a Simulation needs from its
// underlying generator: a reproducible, antithetic-pairable,
// sub-stream-advanceable source of uniform draws. Concrete model
// elements are expected to layer their own distributions on top of
// Float64.
type Stream interface {
	// Float64 returns a draw in [0,1).
	Float64() float64
	// Reset rewinds the stream to its original seed.
	Reset()
	// Advance skips n draws ahead, establishing a new sub-stream
	// without disturbing reproducibility of the ones already taken.
	Advance(n int)
	// Antithetic returns a paired stream whose draws are 1-x of this
	// stream's draws at every position, for variance reduction across
	// antithetic replication pairs.
	Antithetic() Stream
}

// pcgStream is the default Stream, backed by math/rand/v2's PCG
// source: seedable and explicit about its internal state, unlike the
// package-level global generator.
type pcgStream struct {
	seed1, seed2 uint64
	src          *rand.PCG
	rng          *rand.Rand
	antithetic   bool
	drawn        int
}

// New returns a Stream seeded deterministically from seed.
func New(seed uint64) Stream {
	return newPCGStream(seed, seed^0x9e3779b97f4a7c15, false)
}

func newPCGStream(s1, s2 uint64, anti bool) *pcgStream {
	src := rand.NewPCG(s1, s2)
	return &pcgStream{
		seed1:      s1,
		seed2:      s2,
		src:        src,
		rng:        rand.New(src),
		antithetic: anti,
	}
}

func (s *pcgStream) Float64() float64 {
	s.drawn++
	x := s.rng.Float64()
	if s.antithetic {
		return 1 - x
	}
	return x
}

func (s *pcgStream) Reset() {
	s.src = rand.NewPCG(s.seed1, s.seed2)
	s.rng = rand.New(s.src)
	s.drawn = 0
}

func (s *pcgStream) Advance(n int) {
	for i := 0; i < n; i++ {
		s.rng.Float64()
		s.drawn++
	}
}

// Antithetic clones the receiver's current PCG state rather than
// reseeding from seed1/seed2, so a pairing built mid-run (after
// Advance or prior draws) pairs with where the receiver actually is,
// not with its original seed.
func (s *pcgStream) Antithetic() Stream {
	state, err := s.src.MarshalBinary()
	if err != nil {
		return newPCGStream(s.seed1, s.seed2, !s.antithetic)
	}
	clone := &rand.PCG{}
	if err := clone.UnmarshalBinary(state); err != nil {
		return newPCGStream(s.seed1, s.seed2, !s.antithetic)
	}
	return &pcgStream{
		seed1:      s.seed1,
		seed2:      s.seed2,
		src:        clone,
		rng:        rand.New(clone),
		antithetic: !s.antithetic,
		drawn:      s.drawn,
	}
}

// Drawn reports how many values have been pulled from the stream since
// the last Reset, counting draws skipped by Advance. It is not part of
// the Stream interface.
func (s *pcgStream) Drawn() int { return s.drawn }
