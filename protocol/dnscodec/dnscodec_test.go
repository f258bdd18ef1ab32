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

package dnscodec

import (
	"testing"

	"github.com/fleetmesh/dgramtransport/protocol"
)

func TestCodecRoundTrip(t *testing.T) {
	c := NewCodec(200)
	buf := make([]byte, 4096)

	h := protocol.Header{
		TransactionID: 0x1234abcd,
		MsgType:       0x42,
		DgramNum:      2,
		TotalDgrams:   5,
		IsAck:         false,
		IsReply:       false,
		Niceness:      1,
	}
	payload := []byte("dns overlay payload bytes")

	n, err := c.WriteDatagram(buf, h, payload)
	if err != nil {
		t.Fatalf("WriteDatagram: %v", err)
	}

	got, gotPayload, err := c.ParseHeader(buf[:n])
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}

	if got.TransactionID != h.TransactionID {
		t.Fatalf("transaction id mismatch: got %x want %x", got.TransactionID, h.TransactionID)
	}
	if got.MsgType != h.MsgType {
		t.Fatalf("msg type mismatch: got %d want %d", got.MsgType, h.MsgType)
	}
	if got.DgramNum != h.DgramNum || got.TotalDgrams != h.TotalDgrams {
		t.Fatalf("dgram numbering mismatch: got %+v", got)
	}
	if got.Niceness != h.Niceness {
		t.Fatalf("niceness mismatch: got %d want %d", got.Niceness, h.Niceness)
	}
	if string(gotPayload) != string(payload) {
		t.Fatalf("payload mismatch: got %q want %q", gotPayload, payload)
	}
}

func TestChunkSplitsLongStrings(t *testing.T) {
	s := make([]byte, 400)
	for i := range s {
		s[i] = 'a'
	}
	chunks := chunk(string(s), 150)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	joined := chunks[0] + chunks[1] + chunks[2]
	if joined != string(s) {
		t.Fatalf("chunking lost data")
	}
}
