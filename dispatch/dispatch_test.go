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

package dispatch

import (
	"testing"

	"golang.org/x/time/rate"
)

func TestRegisterAndInvoke(t *testing.T) {
	tbl := NewTable()
	called := false
	err := tbl.Register(5, func(slot interface{}) {
		called = true
		if slot != "payload" {
			t.Fatalf("expected slot to be passed through, got %v", slot)
		}
	}, nil)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if !tbl.Has(5) {
		t.Fatalf("expected Has(5) true after Register")
	}
	if tbl.Has(6) {
		t.Fatalf("expected Has(6) false, nothing registered")
	}

	if !tbl.Invoke(5, "payload") {
		t.Fatalf("expected Invoke(5, ...) true")
	}
	if !called {
		t.Fatalf("expected handler to be called")
	}
	if tbl.Invoke(6, "payload") {
		t.Fatalf("expected Invoke(6, ...) false, no handler registered")
	}
}

func TestRegisterTwiceFails(t *testing.T) {
	tbl := NewTable()
	if err := tbl.Register(1, func(interface{}) {}, nil); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := tbl.Register(1, func(interface{}) {}, nil); err == nil {
		t.Fatalf("expected second Register for the same msgType to fail")
	}
}

func TestAdmitRespectsLimiter(t *testing.T) {
	tbl := NewTable()
	limiter := rate.NewLimiter(0, 1) // allow exactly one token, never refill
	if err := tbl.Register(2, func(interface{}) {}, limiter); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if !tbl.Admit(2) {
		t.Fatalf("expected first Admit to succeed")
	}
	if tbl.Admit(2) {
		t.Fatalf("expected second Admit to be refused by the exhausted limiter")
	}
}

func TestInWaitingTracksAdmitRelease(t *testing.T) {
	tbl := NewTable()
	if err := tbl.Register(3, func(interface{}) {}, nil); err != nil {
		t.Fatalf("Register: %v", err)
	}

	tbl.Admit(3)
	tbl.Admit(3)
	if n := tbl.InWaiting(3); n != 2 {
		t.Fatalf("expected InWaiting 2, got %d", n)
	}

	tbl.Release(3)
	if n := tbl.InWaiting(3); n != 1 {
		t.Fatalf("expected InWaiting 1 after Release, got %d", n)
	}
}
