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

// Package dispatch is the registration table of per-message-type inbound
// handlers (spec.md §4.5). It is deliberately independent of the
// transport package's Slot type: handlers are registered as function
// values that receive the slot as an interface{}, keyed by message type,
// and the transport package supplies the invocation.
package dispatch

import (
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/fleetmesh/dgramtransport/common/errors"
	"github.com/fleetmesh/dgramtransport/protocol"
)

// HandlerFunc is the signature registered per message type. The
// transport package wraps its Handler (which takes a *Slot) in a
// HandlerFunc that asserts the argument back to *Slot, so this package
// has no import dependency on transport.
type HandlerFunc func(slot interface{})

// entry bundles a handler with its observability counters and optional
// admission limiter.
type entry struct {
	handler HandlerFunc
	limiter *rate.Limiter

	nsInWaiting int64 // observability only, per spec.md §9's Open Question
}

// Table is a fixed-size registration table indexed by message type.
type Table struct {
	mu      sync.Mutex
	entries [protocol.MaxMsgTypes]*entry
}

// NewTable constructs an empty dispatch table.
func NewTable() *Table {
	return &Table{}
}

// Register installs a handler for msgType. Registering twice for the
// same type is a programming error (spec.md §4.5), reported as
// bad-call-flavored error rather than silently overwriting.
//
// limiter, if non-nil, is a token bucket consulted by Admit: each
// admission of this message type takes one token, and admissions are
// refused while the bucket is empty (spec.md §9's Open Question on
// per-message-type admission control). It caps the admission rate, not
// the number in flight: Release does not return a token.
func (t *Table) Register(msgType uint8, handler HandlerFunc, limiter *rate.Limiter) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.entries[msgType] != nil {
		return errors.TraceNew(fmt.Sprintf("handler already registered for msgType %d", msgType))
	}
	t.entries[msgType] = &entry{handler: handler, limiter: limiter}
	return nil
}

// Has reports whether a handler is registered for msgType.
func (t *Table) Has(msgType uint8) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries[msgType] != nil
}

// Admit reports whether a new inbound transaction of this type may be
// accepted right now, consulting the optional rate limiter, and if
// admitted increments the observability counter.
func (t *Table) Admit(msgType uint8) bool {
	t.mu.Lock()
	e := t.entries[msgType]
	t.mu.Unlock()
	if e == nil {
		return false
	}
	if e.limiter != nil && !e.limiter.Allow() {
		return false
	}
	t.mu.Lock()
	e.nsInWaiting++
	t.mu.Unlock()
	return true
}

// Release decrements the in-waiting observability counter once a
// message of this type has been fully handled.
func (t *Table) Release(msgType uint8) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entries[msgType]
	if e != nil && e.nsInWaiting > 0 {
		e.nsInWaiting--
	}
}

// InWaiting returns the current observability counter for msgType,
// corresponding to the source's m_msgNNsInWaiting counters (spec.md §9).
func (t *Table) InWaiting(msgType uint8) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	e := t.entries[msgType]
	if e == nil {
		return 0
	}
	return e.nsInWaiting
}

// Invoke calls the handler registered for msgType, if any, returning
// false if none is registered.
func (t *Table) Invoke(msgType uint8, slot interface{}) bool {
	t.mu.Lock()
	e := t.entries[msgType]
	t.mu.Unlock()
	if e == nil {
		return false
	}
	e.handler(slot)
	return true
}
