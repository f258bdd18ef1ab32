/*
 * Copyright (c) 2026, FleetMesh Authors.
 * All rights reserved.
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package prng

import "testing"

func TestSameSeedProducesSameStream(t *testing.T) {
	seed := new(Seed)
	a := NewPRNGWithSeed(seed)
	b := NewPRNGWithSeed(seed)

	for i := 0; i < 8; i++ {
		x, y := a.Uint64(), b.Uint64()
		if x != y {
			t.Fatalf("expected identical streams from identical seeds, got %d != %d at index %d", x, y, i)
		}
	}
}

func TestDistinctSeedsDiverge(t *testing.T) {
	a, err := NewPRNG()
	if err != nil {
		t.Fatalf("NewPRNG: %v", err)
	}
	b, err := NewPRNG()
	if err != nil {
		t.Fatalf("NewPRNG: %v", err)
	}
	if a.Uint64() == b.Uint64() {
		t.Fatalf("expected two freshly seeded PRNGs to produce distinct streams")
	}
}

func TestJitterStaysWithinFactor(t *testing.T) {
	p, err := NewPRNG()
	if err != nil {
		t.Fatalf("NewPRNG: %v", err)
	}
	const n, factor = int64(1000), 0.1
	for i := 0; i < 1000; i++ {
		v := p.Jitter(n, factor)
		if v < 900 || v > 1100 {
			t.Fatalf("Jitter(%d, %v) returned out-of-bounds value %d", n, factor, v)
		}
	}
}

func TestJitterZeroFactorIsExact(t *testing.T) {
	p, err := NewPRNG()
	if err != nil {
		t.Fatalf("NewPRNG: %v", err)
	}
	if v := p.Jitter(1000, 0); v != 1000 {
		t.Fatalf("Jitter(1000, 0) = %d, want 1000", v)
	}
}
