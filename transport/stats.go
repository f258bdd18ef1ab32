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
	"fmt"
	"io"
	"sync/atomic"
)

// stats holds the running interface counters spec.md §6 requires be
// observable ("packets/bytes in/out, drops, retransmits"), each a plain
// atomic counter since they are updated from the single event-loop
// goroutine but may be read concurrently from a status-reporting
// goroutine.
type stats struct {
	packetsIn  int64
	packetsOut int64
	bytesIn    int64
	bytesOut   int64
	drops      int64
	retransmits int64
	callbacksInvoked int64
}

func (s *stats) addPacketsIn(n int64)       { atomic.AddInt64(&s.packetsIn, n) }
func (s *stats) addPacketsOut(n int64)      { atomic.AddInt64(&s.packetsOut, n) }
func (s *stats) addBytesIn(n int64)         { atomic.AddInt64(&s.bytesIn, n) }
func (s *stats) addBytesOut(n int64)        { atomic.AddInt64(&s.bytesOut, n) }
func (s *stats) addDrops(n int64)           { atomic.AddInt64(&s.drops, n) }
func (s *stats) addRetransmits(n int64)     { atomic.AddInt64(&s.retransmits, n) }
func (s *stats) addCallbacksInvoked(n int64) { atomic.AddInt64(&s.callbacksInvoked, n) }

// StatsSnapshot is a point-in-time copy of the interface counters.
type StatsSnapshot struct {
	PacketsIn        int64
	PacketsOut       int64
	BytesIn          int64
	BytesOut         int64
	Drops            int64
	Retransmits      int64
	CallbacksInvoked int64
	ActiveSlots      int
	ReadySlots       int
	FreeSlots        int
}

// Stats returns a snapshot of the transport's running counters, per
// spec.md §6.
func (tr *Transport) Stats() StatsSnapshot {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return StatsSnapshot{
		PacketsIn:        atomic.LoadInt64(&tr.stats.packetsIn),
		PacketsOut:       atomic.LoadInt64(&tr.stats.packetsOut),
		BytesIn:          atomic.LoadInt64(&tr.stats.bytesIn),
		BytesOut:         atomic.LoadInt64(&tr.stats.bytesOut),
		Drops:            atomic.LoadInt64(&tr.stats.drops),
		Retransmits:      atomic.LoadInt64(&tr.stats.retransmits),
		CallbacksInvoked: atomic.LoadInt64(&tr.stats.callbacksInvoked),
		ActiveSlots:      tr.slots.activeCount,
		ReadySlots:       tr.slots.readyCount,
		FreeSlots:        tr.slots.freeCount(),
	}
}

// SlotSummary describes one live transaction for diagnostics
// (SPEC_FULL.md §6, supplemented from original_source/'s msg dump
// facility).
type SlotSummary struct {
	TransactionID uint32
	MsgType       uint8
	Incoming      bool
	PeerIP        uint32
	PeerPort      uint16
	State         string
	Outstanding   int
	ResendCount   int
	ExtraInfo     string
}

func stateName(s slotState) string {
	switch s {
	case stateFree:
		return "free"
	case stateActive:
		return "active"
	case stateCallbackReady:
		return "callback-ready"
	case stateInCallback:
		return "in-callback"
	default:
		return "unknown"
	}
}

// Snapshot returns a SlotSummary for every currently live (active or
// callback-ready) slot.
func (tr *Transport) Snapshot() []SlotSummary {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	var out []SlotSummary
	collect := func(s *Slot) {
		out = append(out, SlotSummary{
			TransactionID: s.key.TransactionID,
			MsgType:       s.msgType,
			Incoming:      s.key.Incoming,
			PeerIP:        s.peerIP,
			PeerPort:      s.peerPort,
			State:         stateName(s.state),
			Outstanding:   s.outstanding,
			ResendCount:   s.resendCount,
			ExtraInfo:     s.extraInfo,
		})
	}
	tr.slots.forEachActive(collect)
	tr.slots.forEachReady(collect)
	return out
}

// DumpActiveSlots writes a one-line-per-slot text summary of every live
// slot matching msgType to w (SPEC_FULL.md §6, supplemented feature,
// mirroring the original's saveActiveSlots(fd, msgType) dumping one
// message type's in-flight transactions at a time).
func (tr *Transport) DumpActiveSlots(w io.Writer, msgType uint8) error {
	for _, s := range tr.Snapshot() {
		if s.MsgType != msgType {
			continue
		}
		_, err := fmt.Fprintf(w, "txn=%d type=%d incoming=%v peer=%d:%d state=%s outstanding=%d resends=%d extra=%q\n",
			s.TransactionID, s.MsgType, s.Incoming, s.PeerIP, s.PeerPort, s.State, s.Outstanding, s.ResendCount, s.ExtraInfo)
		if err != nil {
			return err
		}
	}
	return nil
}
