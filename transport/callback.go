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

import (
	"time"
)

// finishOutgoing resolves an outgoing slot's transaction (spec.md §3
// invariant 4: exactly-once transition to callback-ready) and queues it
// for callback invocation on the next runCallbacks pass.
func (tr *Transport) finishOutgoing(s *Slot, code Code, now time.Time) {
	if s.state != stateActive {
		return
	}
	s.code = code
	tr.slots.moveToReady(s)
}

// finishIncoming resolves an incoming slot. If the request has just
// finished reassembling (code == CodeNone and no reply has been posted
// yet), it is queued so the handler runs on the next runCallbacks pass.
// Otherwise the transaction is ending for some other reason -- a
// reassembly timeout, cancellation, or shutdown before a reply was ever
// posted, or the reply phase concluding (acked or given up on) after one
// was. In the former case the peer sent (or is waiting on) a request it
// will otherwise time out on with no explanation, so an error reply
// carrying code is sent before the slot is freed; in the latter case a
// reply was already sent and there is nothing left to tell the peer.
func (tr *Transport) finishIncoming(s *Slot, code Code, now time.Time) {
	s.code = code
	if code == CodeNone && !s.replyPosted {
		tr.slots.moveToReady(s)
		return
	}
	if s.state != stateActive {
		return
	}
	if code != CodeNone && !s.replyPosted {
		if tr.sendErrorReplyLocked(s, int32(code), now) == nil {
			return
		}
	}
	tr.slots.free(s)
}

// finishIncomingRequestComplete is the spec.md §4.3 step 5 name for the
// "request reassembly complete" event; it is finishIncoming's CodeNone
// path spelled out for readability at call sites.
func (tr *Transport) finishIncomingRequestComplete(s *Slot, now time.Time) {
	tr.finishIncoming(s, CodeNone, now)
}

// runCallbacks drains the callback-ready list, invoking each outgoing
// slot's user callback or each incoming slot's registered handler
// exactly once (spec.md §3 invariant 4), per spec.md §5's ordering
// guarantee (b): a slot's callback never overlaps another operation on
// that same slot, since the slot is detached from every list before its
// callback runs (invariant 6).
//
// tr.mu is held only around the slot-table bookkeeping on either side
// of a call into user code, never around the call itself (spec.md §5:
// "the mutex held only around slot lookups, never around user code").
// The handler contract (spec.md §4.5) requires calling
// SendReply/SendErrorReply, which take tr.mu themselves; holding it
// across the call would deadlock the first time a handler obeyed that
// contract.
func (tr *Transport) runCallbacks() {
	for {
		s := tr.popNextReady()
		if s == nil {
			return
		}

		if s.key.Incoming {
			tr.invokeHandler(s)
			tr.mu.Lock()
			if s.state == stateInCallback {
				// The handler contract requires calling
				// SendReply/SendErrorReply before returning; a handler
				// that doesn't gets its slot freed rather than leaked.
				tr.slots.free(s)
			}
			tr.mu.Unlock()
			continue
		}

		tr.invokeCallback(s)
		tr.mu.Lock()
		tr.slots.free(s)
		tr.mu.Unlock()
	}
}

// popNextReady detaches and returns the next callback-ready slot under
// tr.mu, or nil once the ready list is empty for this pass.
func (tr *Transport) popNextReady() *Slot {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	var s *Slot
	tr.slots.forEachReady(func(x *Slot) {
		if s == nil {
			s = x
		}
	})
	if s == nil {
		return nil
	}
	tr.slots.removeReady(s)
	s.state = stateInCallback
	return s
}

func (tr *Transport) invokeCallback(s *Slot) {
	if s.callback == nil {
		return
	}
	tr.stats.addCallbacksInvoked(1)
	s.callback(s)
}

// invokeHandler runs with tr.mu unheld (see runCallbacks), so its
// no-handler-registered fallback goes through the public, lock-taking
// SendErrorReply rather than the *Locked helper other call sites use
// while already holding tr.mu.
func (tr *Transport) invokeHandler(s *Slot) {
	if !tr.dispatchTable.Invoke(s.msgType, s) {
		// No handler registered for this message type: reply with
		// bad-call so the requester isn't left hanging.
		tr.SendErrorReply(s, int32(CodeBadCall))
		return
	}
	tr.dispatchTable.Release(s.msgType)
}

// Cancel implements spec.md §4.7: every active outgoing slot matching
// both state and msgType is failed with cancelled and moved to
// callback-ready. Incoming slots have no caller-supplied state and are
// not affected.
func (tr *Transport) Cancel(state interface{}, msgType uint8) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	now := time.Now()
	var matches []*Slot
	tr.slots.forEachActive(func(s *Slot) {
		if s.key.Incoming {
			return
		}
		if s.msgType != msgType {
			return
		}
		if s.callerState != state {
			return
		}
		matches = append(matches, s)
	})
	for _, s := range matches {
		tr.finishOutgoing(s, CodeCancelled, now)
	}
}

// ReplaceHost implements spec.md §4.7: every slot currently addressed to
// oldIP/oldPort is rekeyed to point at newIP/newPort. In-flight
// datagrams already on the wire targeting the old address are lost, but
// subsequent retransmissions (and the slot's hash index entry) target
// the new address.
func (tr *Transport) ReplaceHost(oldIP uint32, oldPort uint16, newIP uint32, newPort uint16) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	var matches []*Slot
	tr.slots.forEachActive(func(s *Slot) {
		if s.peerIP == oldIP && s.peerPort == oldPort {
			matches = append(matches, s)
		}
	})
	for _, s := range matches {
		newKey := s.key
		newKey.PeerIP = newIP
		newKey.PeerPort = newPort
		tr.slots.rekey(s, newKey)
		s.peerIP = newIP
		s.peerPort = newPort
	}
}
