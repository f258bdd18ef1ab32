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

// Package protocol defines the wire framing for the reliable datagram
// transport: transaction id, message type, sequence number, total-datagram
// count, ACK bit, request/reply bit and niceness. The framing is exposed
// behind the Codec interface so an overlay -- for example one that shapes
// datagrams to look like DNS traffic -- can reuse the rest of the
// transport unmodified.
package protocol

import (
	"github.com/fleetmesh/dgramtransport/common/errors"
)

// MaxMsgTypes bounds the message type routing space (spec: small integer
// in [0, MAX_MSG_TYPES)).
const MaxMsgTypes = 256

// ErrMalformed is wrapped by ParseError values produced when a datagram
// fails to parse.
var ErrMalformed = errors.TraceNew("malformed datagram")

// ParseError is returned by Codec.ParseHeader when a datagram cannot be
// parsed. Callers drop the datagram and increment a counter; a ParseError
// is never itself the terminal error on a slot (that is protocol-error,
// applied only once the datagram is otherwise attributable to a slot).
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "protocol: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	return ErrMalformed
}

// Header is the parsed, codec-independent representation of one datagram's
// framing fields.
type Header struct {
	TransactionID uint32
	MsgType       uint8
	DgramNum      uint16
	TotalDgrams   uint16 // 0 means "unknown, more may follow"
	IsAck         bool
	IsReply       bool
	Niceness      uint8 // 0 or 1
	PayloadLen    uint16
}

// TotalKnown reports whether the sender has told us how many datagrams
// make up this transaction's message.
func (h Header) TotalKnown() bool {
	return h.TotalDgrams > 0
}

// Codec parses and emits datagram headers, and frames payload bytes into
// individual datagrams. Implementations must be substitutable: the
// transport core only calls through this interface.
type Codec interface {
	// MaxPayload is the maximum payload size, in bytes, that WriteDatagram
	// will accept for a single datagram under this codec's framing.
	MaxPayload() int

	// ParseHeader extracts the header and payload from a received
	// datagram. The returned payload slice is only valid until the next
	// call into the codec and must be copied by the caller if retained.
	ParseHeader(dgram []byte) (h Header, payload []byte, err error)

	// WriteDatagram serializes one datagram (header plus payload slice)
	// into buf, returning the number of bytes written, or an error if buf
	// is too small for the encoded datagram. For DefaultCodec that is
	// HeaderSize()+len(payload) bytes; an overlay codec's encoding may be
	// larger than HeaderSize()+MaxPayload().
	WriteDatagram(buf []byte, h Header, payload []byte) (int, error)

	// HeaderSize is the fixed size, in bytes, of this codec's header.
	HeaderSize() int
}
