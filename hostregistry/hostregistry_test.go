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

package hostregistry

import "testing"

func TestLookupUnknownHost(t *testing.T) {
	r := NewLRURegistry(10)
	if _, _, ok := r.Lookup(42); ok {
		t.Fatalf("expected unknown host id to miss")
	}
}

func TestPutAndLookup(t *testing.T) {
	r := NewLRURegistry(10)
	r.Put(Host{ID: 1, IP: 0x0a000001, Port: 9090})

	ip, port, ok := r.Lookup(1)
	if !ok {
		t.Fatalf("expected lookup to hit after Put")
	}
	if ip != 0x0a000001 || port != 9090 {
		t.Fatalf("unexpected address: %x:%d", ip, port)
	}
}

func TestUpdateFiresChangeListeners(t *testing.T) {
	r := NewLRURegistry(10)
	r.Put(Host{ID: 1, IP: 1, Port: 100})

	var gotOld, gotNew Host
	fired := false
	r.OnHostChanged(func(old, new Host) {
		fired = true
		gotOld, gotNew = old, new
	})

	r.Update(1, 2, 200)

	if !fired {
		t.Fatalf("expected OnHostChanged listener to fire")
	}
	if gotOld.IP != 1 || gotOld.Port != 100 {
		t.Fatalf("unexpected old record: %+v", gotOld)
	}
	if gotNew.IP != 2 || gotNew.Port != 200 {
		t.Fatalf("unexpected new record: %+v", gotNew)
	}

	ip, port, ok := r.Lookup(1)
	if !ok || ip != 2 || port != 200 {
		t.Fatalf("expected lookup to reflect the update, got %x:%d ok=%v", ip, port, ok)
	}
}

func TestUpdateOnUnknownHostStillPuts(t *testing.T) {
	r := NewLRURegistry(10)
	r.Update(5, 9, 90)

	ip, port, ok := r.Lookup(5)
	if !ok || ip != 9 || port != 90 {
		t.Fatalf("expected Update on unknown host to still register it")
	}
}
