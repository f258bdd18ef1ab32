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

// Package hostregistry provides the host registry interface the
// transport consumes when a caller supplies a host id instead of an
// explicit ip/port (spec.md §6 "Host registry interface (consumed)"),
// plus a bounded in-memory implementation grounded on the same LRU cache
// package (github.com/cognusion/go-cache-lru) the teacher's DNS resolver
// uses to bound its own cache of resolved names.
package hostregistry

import (
	"strconv"
	"sync"
	"time"

	lru "github.com/cognusion/go-cache-lru"
)

// Host is one entry: a logical host id mapped to its current address.
type Host struct {
	ID   int32
	IP   uint32
	Port uint16
}

// ChangeFunc is notified when a host's address changes, matching
// spec.md §6's on_host_changed(old, new) hook.
type ChangeFunc func(old, new Host)

// Registry is the interface the transport consumes. Implementations
// need not be this package's LRURegistry; any type satisfying this
// interface may be supplied via transport.Config.HostRegistry.
type Registry interface {
	// Lookup resolves a host id to its current address. ok is false if
	// the host id is unknown.
	Lookup(hostID int32) (ip uint32, port uint16, ok bool)

	// OnHostChanged registers a callback invoked whenever a known host's
	// address is updated via Update. Multiple callbacks may be
	// registered; all are invoked.
	OnHostChanged(fn ChangeFunc)
}

const defaultTTL = 30 * time.Minute
const defaultReap = 5 * time.Minute

// LRURegistry is a bounded in-memory Registry. Entries expire after TTL
// unless refreshed by Update, and the cache evicts least-recently-used
// entries once it grows past its configured capacity.
type LRURegistry struct {
	mu        sync.Mutex
	cache     *lru.Cache
	listeners []ChangeFunc
}

// NewLRURegistry constructs a Registry backed by an LRU cache with the
// given maximum entry count.
func NewLRURegistry(maxEntries int) *LRURegistry {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	c := lru.NewWithLRU(defaultTTL, defaultReap, maxEntries)
	return &LRURegistry{cache: c}
}

func (r *LRURegistry) key(hostID int32) string {
	return strconv.FormatInt(int64(hostID), 10)
}

// Put registers or overwrites a host's address, without treating it as a
// change notification. Use Update to signal a mid-transaction address
// change.
func (r *LRURegistry) Put(h Host) {
	r.cache.Set(r.key(h.ID), h, lru.DefaultExpiration)
}

// Lookup implements Registry.
func (r *LRURegistry) Lookup(hostID int32) (uint32, uint16, bool) {
	v, ok := r.cache.Get(r.key(hostID))
	if !ok {
		return 0, 0, false
	}
	h := v.(Host)
	return h.IP, h.Port, true
}

// OnHostChanged implements Registry.
func (r *LRURegistry) OnHostChanged(fn ChangeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Update replaces a host's address and fires every registered
// ChangeFunc with the old and new records. If the host id was previously
// unknown, the listeners still fire, with an old record that carries only
// the host id (IP and Port are zero).
func (r *LRURegistry) Update(hostID int32, newIP uint32, newPort uint16) {
	old := Host{ID: hostID}
	if ip, port, ok := r.Lookup(hostID); ok {
		old.IP, old.Port = ip, port
	}
	newHost := Host{ID: hostID, IP: newIP, Port: newPort}
	r.Put(newHost)

	r.mu.Lock()
	listeners := append([]ChangeFunc(nil), r.listeners...)
	r.mu.Unlock()

	for _, fn := range listeners {
		fn(old, newHost)
	}
}
