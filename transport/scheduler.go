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

	"github.com/fleetmesh/dgramtransport/protocol"
)

// eligibility classifies why a slot is a sendPoll candidate, in the
// priority order spec.md §4.2 requires.
type eligibility int

const (
	notEligible eligibility = iota
	eligibleRetransmit
	eligibleFreshData
	eligibleStandaloneAck
)

// classify returns the highest-priority reason s is eligible to send
// right now, per the selection rule in spec.md §4.2.
func classify(s *Slot, now time.Time) eligibility {
	if s.sendResend != nil && s.sendResend.anySet(s.sendTotal) && !s.nextResendTime.After(now) {
		return eligibleRetransmit
	}
	if s.sendNextIdx < s.sendTotal && s.outstanding < ackWindowSize {
		return eligibleFreshData
	}
	if s.pendingStandaloneAck {
		return eligibleStandaloneAck
	}
	return notEligible
}

// pickNext walks the active list and returns the best slot to send from
// next, applying spec.md §4.2's selection rule and tie-break, and
// advancing t.rrCursor for round-robin fairness among equally-eligible
// slots so niceness-1 slots are not starved indefinitely.
func (tr *Transport) pickNext(now time.Time) *Slot {
	var best *Slot
	var bestClass eligibility

	// Two-pass scan starting at the round-robin cursor so that, among
	// slots tied on class/niceness/outstanding, we rotate which one wins
	// across calls instead of always favoring the lowest handle.
	n := tr.slots.size()
	if n == 0 {
		return nil
	}

	start := int(tr.rrCursor) % n
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		s := &tr.slots.slots[idx]
		if s.state != stateActive {
			continue
		}
		class := classify(s, now)
		if class == notEligible {
			continue
		}
		if best == nil || better(s, class, best, bestClass) {
			best = s
			bestClass = class
		}
	}

	if best != nil {
		tr.rrCursor = handle((int(best.handle) + 1) % n)
	}
	return best
}

// better reports whether (s, class) should be preferred over
// (cur, curClass) under spec.md §4.2's ordering: class first (retransmit
// beats fresh data beats standalone ack), then niceness (0 beats 1),
// then smallest outstanding-unacked.
func better(s *Slot, class eligibility, cur *Slot, curClass eligibility) bool {
	if class != curClass {
		// eligibleRetransmit < eligibleFreshData < eligibleStandaloneAck, so
		// the numerically smaller class is the higher priority.
		return class < curClass
	}
	if s.niceness != cur.niceness {
		return s.niceness < cur.niceness
	}
	return s.outstanding < cur.outstanding
}

// sendResult reports the outcome of one attempted datagram transmission.
type sendResult int

const (
	sendOK sendResult = iota
	sendWouldBlock
	sendNothingEligible
)

// sendOneDatagram emits exactly one datagram from the given slot,
// following the same priority that made it eligible, and updates the
// slot's bookkeeping. It returns sendWouldBlock if the underlying socket
// signalled it cannot accept more writes right now.
func (tr *Transport) sendOneDatagram(s *Slot, now time.Time) sendResult {
	class := classify(s, now)

	switch class {
	case eligibleRetransmit:
		idx := s.sendResend.firstSet(s.sendTotal)
		if idx < 0 {
			return sendNothingEligible
		}
		if !tr.writeDataDatagram(s, idx, now) {
			return sendWouldBlock
		}
		s.sendResend.clear(idx)
		tr.stats.addRetransmits(1)
		return sendOK

	case eligibleFreshData:
		idx := s.sendNextIdx
		if !tr.writeDataDatagram(s, idx, now) {
			return sendWouldBlock
		}
		s.sendNextIdx++
		s.outstanding++
		return sendOK

	case eligibleStandaloneAck:
		if !tr.writeStandaloneAck(s, now) {
			return sendWouldBlock
		}
		s.pendingStandaloneAck = false
		return sendOK

	default:
		return sendNothingEligible
	}
}

// writeDataDatagram serializes and writes datagram idx of s's send
// buffer. It returns false if the write would block.
func (tr *Transport) writeDataDatagram(s *Slot, idx int, now time.Time) bool {
	start := idx * s.sendDgramSize
	end := start + s.sendDgramSize
	if end > len(s.sendBuf) {
		end = len(s.sendBuf)
	}
	payload := s.sendBuf[start:end]

	h := protocol.Header{
		TransactionID: s.key.TransactionID,
		MsgType:       s.msgType,
		DgramNum:      uint16(idx),
		TotalDgrams:   uint16(s.sendTotal),
		IsReply:       s.key.Incoming,
		Niceness:      s.niceness,
	}

	ok := tr.writeDatagram(h, payload, s.peerIP, s.peerPort)
	if !ok {
		return false
	}

	s.lastSendTime = now
	if s.resendCount == 0 && idx == 0 {
		s.currentBackoffMs = tr.cfg.initialBackoffMs(s.niceness)
	}
	return true
}

// writeStandaloneAck emits a zero-payload ACK datagram for
// s.lastAckedDgram, the most recently received data datagram on s. A slot
// has at most one pending standalone ack, so when several data datagrams
// arrive before it is sent, only the last of them is acked; the earlier
// ones are acked when the sender retransmits them. The ack carries the
// slot's own direction bit, like its data datagrams, so the peer's
// receive path keys it to the slot that sent the data.
func (tr *Transport) writeStandaloneAck(s *Slot, now time.Time) bool {
	h := protocol.Header{
		TransactionID: s.key.TransactionID,
		MsgType:       s.msgType,
		DgramNum:      uint16(s.lastAckedDgram),
		TotalDgrams:   uint16(s.recvTotal),
		IsAck:         true,
		IsReply:       s.key.Incoming,
		Niceness:      s.niceness,
	}
	return tr.writeDatagram(h, nil, s.peerIP, s.peerPort)
}

// runSendScheduler emits datagrams until the socket would block or no
// active slot is eligible, per spec.md §4.2's contract.
func (tr *Transport) runSendScheduler(now time.Time) {
	for {
		s := tr.pickNext(now)
		if s == nil {
			tr.writeBlocked = false
			return
		}
		switch tr.sendOneDatagram(s, now) {
		case sendOK:
			continue
		case sendWouldBlock:
			tr.writeBlocked = true
			return
		default:
			// Eligible slot picked but had nothing to send by the time we
			// got to it (concurrent state changed under the lock in a
			// single-threaded loop can't happen, but be defensive).
			continue
		}
	}
}
