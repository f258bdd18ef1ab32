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

// handle is a small integer identifying a slot's position in the slab.
// Per the Design Notes, this replaces the source's raw pointer threading:
// the slab is a []Slot and handles are indices into it, so "list
// pointers" are just handle-valued fields with no aliasing hazard.
type handle int32

const nilHandle handle = -1

// Key uniquely identifies a live slot (spec.md §3, invariant 1 and 5).
type Key struct {
	TransactionID uint32
	PeerIP        uint32
	PeerPort      uint16
	Incoming      bool
}

// slotState tracks where a slot sits in its lifecycle, mostly for
// assertions and diagnostics; the authoritative state is "which list is
// this handle in", tracked by slotTable.
type slotState int32

const (
	stateFree slotState = iota
	stateActive
	stateCallbackReady
	stateInCallback
)

// Callback is invoked exactly once when an outgoing slot resolves
// (spec.md §3 invariant 4).
type Callback func(s *Slot)

// Handler is invoked exactly once when an incoming slot finishes
// reassembling its request. The handler must eventually call
// Transport.SendReply or Transport.SendErrorReply on the slot.
type Handler func(s *Slot)

// Slot is the in-memory record of one transaction, per spec.md §3.
type Slot struct {
	handle handle
	key    Key
	state  slotState

	// intrusive list linkage within the slab
	prev, next handle // active / callback-ready doubly linked list
	freeNext   handle // free singly linked list

	msgType  uint8
	niceness uint8

	// send side
	sendBuf        []byte
	sendDgramSize  int // max payload per datagram for this slot's codec
	sendTotal      int // total datagrams to send
	sendAcked      *bitset
	sendResend     *bitset
	sendNextIdx    int
	outstanding    int
	sendBufOwned   bool // false once a callback steals the buffer
	pendingStandaloneAck bool
	lastAckedDgram int // dgram number carried on the next standalone ack

	// receive side
	recvBuf    []byte
	recvBitmap *bitset
	recvTotal  int // -1 until known
	recvCount  int
	recvLen    int // -1 until known; true message length once the last dgram arrives

	// timers and backoff (spec.md §3 Timers)
	lastSendTime     time.Time
	lastRecvTime     time.Time
	nextResendTime   time.Time
	deadline         time.Time
	currentBackoffMs int64
	resendCount      int
	maxResends       int
	everAcked        bool

	// outcome
	code        Code
	peerErrCode int32

	// peer
	peerIP   uint32
	peerPort uint16
	hostID   int32

	// outgoing-only
	callback      Callback
	callerState   interface{}
	extraInfo     string

	// incoming-only
	replyPosted bool
	replyDone   bool
}

// Key returns the slot's table key.
func (s *Slot) Key() Key { return s.key }

// IsIncoming reports whether this slot represents a request the peer
// sent to us (true) or a request we sent to the peer (false).
func (s *Slot) IsIncoming() bool { return s.key.Incoming }

// MsgType returns the transaction's message type.
func (s *Slot) MsgType() uint8 { return s.msgType }

// Code returns the terminal outcome, or CodeNone if not yet resolved.
func (s *Slot) Code() Code { return s.code }

// PeerErrCode returns the peer-supplied error code when Code is
// CodePeerError.
func (s *Slot) PeerErrCode() int32 { return s.peerErrCode }

// ReadBuffer returns the reassembled message bytes: the reply, for an
// outgoing slot, or the request, for an incoming slot. It is only valid
// once reassembly is complete. recvBuf is sized in whole-datagram
// multiples, so once the true message length is known (recvLen), the
// trailing padding after the last datagram's actual payload is trimmed.
func (s *Slot) ReadBuffer() []byte {
	if s.recvLen >= 0 && s.recvLen <= len(s.recvBuf) {
		return s.recvBuf[:s.recvLen]
	}
	return s.recvBuf
}

// State returns the caller-supplied opaque state passed to SendRequest.
func (s *Slot) State() interface{} { return s.callerState }

// PeerAddress returns the ip/port this slot is (or was) communicating
// with.
func (s *Slot) PeerAddress() (ip uint32, port uint16) { return s.peerIP, s.peerPort }

// ExtraInfo returns the free-text diagnostic string supplied at request
// time, if any (SPEC_FULL.md §6, supplemented feature).
func (s *Slot) ExtraInfo() string { return s.extraInfo }

// StealBuffers clears the slot's buffer-ownership flag, per spec.md
// §4.5. Nothing in this package reads that flag: freeing a slot drops its
// references to its buffers without zeroing or reusing them, so a slice
// obtained from ReadBuffer stays valid after the callback returns whether
// or not StealBuffers was called. It exists to preserve the documented
// contract for callers who reason about buffer ownership explicitly.
func (s *Slot) StealBuffers() {
	s.sendBufOwned = false
}

func (s *Slot) resetForReuse() {
	*s = Slot{
		handle: s.handle,
	}
}
