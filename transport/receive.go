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

// readOneDatagram implements spec.md §4.3: reads exactly one datagram
// from the socket (via tr.conn.readFrom, itself capped to one syscall's
// worth of data) and demultiplexes it. It returns false when the socket
// had nothing to read.
func (tr *Transport) readOneDatagram(now time.Time) bool {
	n, ip, port, ok, err := tr.conn.readFrom(tr.readScratch)
	if err != nil {
		tr.cfg.Logger.WithTrace().Warning("read error: ", err)
		return false
	}
	if !ok {
		return false
	}

	tr.stats.addPacketsIn(1)
	tr.stats.addBytesIn(int64(n))

	dgram := tr.readScratch[:n]
	h, payload, err := tr.cfg.Codec.ParseHeader(dgram)
	if err != nil {
		tr.stats.addDrops(1)
		return true
	}

	key := Key{
		TransactionID: h.TransactionID,
		PeerIP:        ip,
		PeerPort:      port,
		Incoming:      !h.IsReply,
	}

	s := tr.slots.lookup(key)
	if s == nil {
		if h.IsReply || h.IsAck {
			// Reply or ack for a slot we no longer have (already freed,
			// or a spoofed/late duplicate): silently drop per spec.md
			// §4.3.
			tr.stats.addDrops(1)
			return true
		}
		// New inbound request, but the transport is no longer admitting
		// work (spec.md §4.8): answer with shutting-down instead of
		// silently going quiet, so the peer doesn't have to wait out a
		// full timeout to learn nothing is coming.
		if tr.shuttingDown {
			tr.rejectIncomingForShutdown(key, h, now)
			return true
		}
		// If a handler is registered but its admission limiter is
		// currently exhausted, drop rather than allocate a slot (spec.md
		// §9's Open Question on per-message-type admission control).
		if tr.dispatchTable.Has(h.MsgType) && !tr.dispatchTable.Admit(h.MsgType) {
			tr.stats.addDrops(1)
			return true
		}
		s = tr.createIncomingSlot(key, h, now)
		if s == nil {
			// Pool exhausted; nothing we can do but drop, since there is
			// no slot on which to hang an error reply.
			tr.stats.addDrops(1)
			return true
		}
	}

	if s.state == stateInCallback || s.state == stateCallbackReady {
		// A late duplicate arriving after the slot already resolved but
		// before it was freed; drop.
		tr.stats.addDrops(1)
		return true
	}

	s.lastRecvTime = now

	if h.IsAck {
		tr.applyAck(s, h, now)
		return true
	}

	tr.applyData(s, h, payload, now)
	return true
}

// rejectIncomingForShutdown allocates just enough of a slot to answer a
// brand new request with a shutting-down error reply, then lets
// finishIncoming's normal reply-then-free path take it from there.
func (tr *Transport) rejectIncomingForShutdown(key Key, h protocol.Header, now time.Time) {
	s := tr.createIncomingSlot(key, h, now)
	if s == nil {
		tr.stats.addDrops(1)
		return
	}
	tr.finishIncoming(s, CodeShuttingDown, now)
}

func (tr *Transport) createIncomingSlot(key Key, h protocol.Header, now time.Time) *Slot {
	s := tr.slots.allocate()
	if s == nil {
		return nil
	}
	s.key = key
	s.msgType = h.MsgType
	s.niceness = h.Niceness
	s.peerIP = key.PeerIP
	s.peerPort = key.PeerPort
	s.hostID = -1
	s.maxResends = -1
	s.currentBackoffMs = tr.cfg.initialBackoffMs(h.Niceness)
	s.recvTotal = -1
	s.recvLen = -1
	s.recvBitmap = newBitset(0)
	s.lastAckedDgram = -1
	s.deadline = now.Add(tr.incomingReplyTimeout())
	tr.slots.insertActive(s)
	return s
}

// applyAck implements spec.md §4.3 step 3.
func (tr *Transport) applyAck(s *Slot, h protocol.Header, now time.Time) {
	idx := int(h.DgramNum)
	if s.sendAcked == nil || idx >= s.sendTotal {
		return
	}
	if s.sendAcked.get(idx) {
		// Duplicate ack: idempotent, per spec.md §8.
		return
	}
	s.sendAcked.set(idx)
	s.sendResend.clear(idx)
	if s.outstanding > 0 {
		s.outstanding--
	}
	s.currentBackoffMs = tr.cfg.initialBackoffMs(s.niceness)
	s.everAcked = true

	if s.sendTotal > 0 && s.sendAcked.allSet(s.sendTotal) && s.key.Incoming {
		// The reply we sent has been fully acked; the incoming slot's
		// life is over (spec.md §2 lifecycle).
		s.replyDone = true
		tr.finishIncoming(s, CodeNone, now)
	}
}

// applyData implements spec.md §4.3 steps 4-5.
func (tr *Transport) applyData(s *Slot, h protocol.Header, payload []byte, now time.Time) {
	dgramSize := tr.cfg.Codec.MaxPayload()
	idx := int(h.DgramNum)

	if h.TotalKnown() {
		if s.recvTotal < 0 {
			s.recvTotal = int(h.TotalDgrams)
			s.recvBitmap.grow(s.recvTotal)
			if s.recvBuf == nil {
				s.recvBuf = make([]byte, s.recvTotal*dgramSize)
			}
		} else if int(h.TotalDgrams) != s.recvTotal || idx >= s.recvTotal {
			// The peer changed its story about how many datagrams make up
			// this transaction, or numbered one past the end of what it
			// originally declared: a protocol violation attributable to
			// this slot, not a malformed-datagram drop (protocol.ParseError
			// covers those, before a slot is even known).
			tr.stats.addDrops(1)
			if s.key.Incoming {
				tr.finishIncoming(s, CodeProtocolError, now)
			} else {
				tr.finishOutgoing(s, CodeProtocolError, now)
			}
			return
		}
	}

	already := s.recvBitmap.get(idx)
	if !already {
		s.recvBitmap.set(idx)
		s.recvCount++
		start := idx * dgramSize
		if s.recvTotal < 0 {
			// Total not yet known: grow the buffer to fit this datagram.
			need := start + len(payload)
			if need > len(s.recvBuf) {
				grown := make([]byte, need)
				copy(grown, s.recvBuf)
				s.recvBuf = grown
			}
		}
		end := start + len(payload)
		if end <= len(s.recvBuf) {
			copy(s.recvBuf[start:end], payload)
		}
		if s.recvTotal >= 0 && idx == s.recvTotal-1 {
			// recvBuf is sized in whole dgramSize multiples; the last
			// datagram's actual payload length is the only way to know
			// where the real message ends, independent of delivery order.
			s.recvLen = end
		}
	}

	// Remember the most recently received datagram (new or duplicate) so
	// the next standalone ack carries its number; an earlier datagram whose
	// ack was still pending is not acked by it. Data-piggybacked acks are
	// not implemented.
	s.lastAckedDgram = idx
	s.pendingStandaloneAck = true

	if s.recvTotal >= 0 && s.recvBitmap.allSet(s.recvTotal) {
		if s.key.Incoming {
			tr.finishIncomingRequestComplete(s, now)
		} else {
			tr.finishOutgoing(s, CodeNone, now)
		}
	}
}
