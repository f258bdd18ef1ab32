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

package transport

import "testing"

func TestBitsetSetGetClear(t *testing.T) {
	b := newBitset(10)
	if b.allSet(10) {
		t.Fatalf("empty bitset should not be allSet")
	}
	for i := 0; i < 10; i++ {
		b.set(i)
	}
	if !b.allSet(10) {
		t.Fatalf("expected allSet after setting every bit")
	}
	b.clear(5)
	if b.allSet(10) {
		t.Fatalf("expected allSet false after clearing a bit")
	}
	if b.get(5) {
		t.Fatalf("expected bit 5 cleared")
	}
	if !b.get(4) {
		t.Fatalf("expected bit 4 still set")
	}
}

func TestBitsetGrow(t *testing.T) {
	b := newBitset(0)
	b.set(130)
	if !b.get(130) {
		t.Fatalf("expected bit 130 set after growth")
	}
	if b.get(129) {
		t.Fatalf("expected bit 129 unset")
	}
}

func TestBitsetFirstSetAndAnySet(t *testing.T) {
	b := newBitset(8)
	if b.anySet(8) {
		t.Fatalf("expected anySet false on empty bitset")
	}
	b.set(3)
	if !b.anySet(8) {
		t.Fatalf("expected anySet true")
	}
	if idx := b.firstSet(8); idx != 3 {
		t.Fatalf("expected firstSet 3, got %d", idx)
	}
}

func TestBitsetCountSet(t *testing.T) {
	b := newBitset(16)
	b.set(0)
	b.set(15)
	b.set(7)
	if c := b.countSet(16); c != 3 {
		t.Fatalf("expected countSet 3, got %d", c)
	}
}
