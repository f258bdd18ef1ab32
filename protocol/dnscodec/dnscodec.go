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

// Package dnscodec is an overlay protocol.Codec that shapes transport
// datagrams as DNS messages, so that the reliable-datagram transport can
// be run over links that only tolerate DNS-looking UDP traffic. Only the
// framing changes; the slot table, scheduler, receive path and
// retransmit engine are unmodified.
//
// Each datagram becomes a single-question DNS message. The question name
// encodes the transaction id and message type as hex labels under a
// fixed suffix; a synthetic TXT answer record (present even on what is
// logically a "query", since real DNS servers never see this traffic)
// carries the sequence/total/flags fields and the payload, base32-encoded
// and chunked into <= 255 byte TXT strings per the DNS wire format.
package dnscodec

import (
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/fleetmesh/dgramtransport/protocol"
	"github.com/miekg/dns"
)

// Suffix is the DNS zone under which transaction/message-type labels are
// synthesized. It need not resolve to anything; the codec never performs
// real DNS resolution.
const Suffix = "t.dgram.internal."

// txtChunkSize is the length of each TXT string the base32-encoded blob
// is split into, keeping every string within the 255-byte DNS limit.
const txtChunkSize = 150

// Codec implements protocol.Codec by framing datagrams as dns.Msg wire
// bytes.
type Codec struct {
	maxPayload int
}

// NewCodec constructs a DNS-overlay codec. maxPayload bounds the raw
// (pre base32) payload size per datagram.
func NewCodec(maxPayload int) *Codec {
	if maxPayload <= 0 {
		maxPayload = 900
	}
	return &Codec{maxPayload: maxPayload}
}

func (c *Codec) MaxPayload() int {
	return c.maxPayload
}

// HeaderSize has no fixed meaning for a self-describing DNS message; it
// is reported as 0 so callers size buffers off MaxPayload alone, with
// generous headroom added by the caller for DNS/base32 expansion.
func (c *Codec) HeaderSize() int {
	return 0
}

func (c *Codec) WriteDatagram(buf []byte, h protocol.Header, payload []byte) (int, error) {
	if len(payload) > c.maxPayload {
		return 0, &protocol.ParseError{Reason: "payload exceeds MaxPayload"}
	}

	msg := new(dns.Msg)
	msg.Id = uint16(h.TransactionID)
	msg.Response = h.IsReply
	msg.Question = []dns.Question{{
		Name:   questionName(h),
		Qtype:  dns.TypeTXT,
		Qclass: dns.ClassINET,
	}}

	meta := make([]byte, 8)
	binary.BigEndian.PutUint32(meta[0:4], h.TransactionID)
	binary.BigEndian.PutUint16(meta[4:6], h.DgramNum)
	binary.BigEndian.PutUint16(meta[6:8], h.TotalDgrams)

	flagByte := byte(0)
	if h.IsAck {
		flagByte |= 1
	}
	if h.Niceness != 0 {
		flagByte |= 2
	}

	blob := append([]byte{flagByte}, meta...)
	blob = append(blob, payload...)

	encoded := base32.StdEncoding.EncodeToString(blob)
	msg.Answer = []dns.RR{&dns.TXT{
		Hdr: dns.RR_Header{
			Name:   questionName(h),
			Rrtype: dns.TypeTXT,
			Class:  dns.ClassINET,
			Ttl:    0,
		},
		Txt: chunk(encoded, txtChunkSize),
	}}

	packed, err := msg.Pack()
	if err != nil {
		return 0, &protocol.ParseError{Reason: "dns pack: " + err.Error()}
	}
	if len(buf) < len(packed) {
		return 0, &protocol.ParseError{Reason: "buffer too small"}
	}
	copy(buf, packed)
	return len(packed), nil
}

func (c *Codec) ParseHeader(dgram []byte) (protocol.Header, []byte, error) {
	var h protocol.Header

	msg := new(dns.Msg)
	if err := msg.Unpack(dgram); err != nil {
		return h, nil, &protocol.ParseError{Reason: "dns unpack: " + err.Error()}
	}
	if len(msg.Answer) != 1 {
		return h, nil, &protocol.ParseError{Reason: "missing TXT answer"}
	}
	txt, ok := msg.Answer[0].(*dns.TXT)
	if !ok {
		return h, nil, &protocol.ParseError{Reason: "answer is not TXT"}
	}

	encoded := strings.Join(txt.Txt, "")
	blob, err := base32.StdEncoding.DecodeString(encoded)
	if err != nil || len(blob) < 9 {
		return h, nil, &protocol.ParseError{Reason: "malformed TXT payload"}
	}

	flagByte := blob[0]
	h.TransactionID = binary.BigEndian.Uint32(blob[1:5])
	h.DgramNum = binary.BigEndian.Uint16(blob[5:7])
	h.TotalDgrams = binary.BigEndian.Uint16(blob[7:9])
	h.IsAck = flagByte&1 != 0
	h.Niceness = (flagByte >> 1) & 1
	h.IsReply = msg.Response
	h.MsgType = msgTypeFromName(msg.Question)
	h.PayloadLen = uint16(len(blob) - 9)

	return h, blob[9:], nil
}

func questionName(h protocol.Header) string {
	return fmt.Sprintf("%08x.%02x.%s", h.TransactionID, h.MsgType, Suffix)
}

func msgTypeFromName(qs []dns.Question) uint8 {
	if len(qs) != 1 {
		return 0
	}
	labels := strings.SplitN(qs[0].Name, ".", 3)
	if len(labels) < 2 {
		return 0
	}
	v, err := strconv.ParseUint(labels[1], 16, 8)
	if err != nil {
		return 0
	}
	return uint8(v)
}

func chunk(s string, size int) []string {
	if len(s) <= size {
		return []string{s}
	}
	var out []string
	for len(s) > size {
		out = append(out, s[:size])
		s = s[size:]
	}
	if len(s) > 0 {
		out = append(out, s)
	}
	return out
}
