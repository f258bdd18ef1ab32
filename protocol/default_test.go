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

package protocol

import "testing"

func TestDefaultCodecRoundTrip(t *testing.T) {
	c := NewDefaultCodec(1400)
	buf := make([]byte, c.HeaderSize()+c.MaxPayload())

	h := Header{
		TransactionID: 0xdeadbeef,
		MsgType:       7,
		DgramNum:      3,
		TotalDgrams:   10,
		IsAck:         false,
		IsReply:       true,
		Niceness:      1,
	}
	payload := []byte("hello, transaction")

	n, err := c.WriteDatagram(buf, h, payload)
	if err != nil {
		t.Fatalf("WriteDatagram: %v", err)
	}

	got, gotPayload, err := c.ParseHeader(buf[:n])
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}

	if got.TransactionID != h.TransactionID || got.MsgType != h.MsgType ||
		got.DgramNum != h.DgramNum || got.TotalDgrams != h.TotalDgrams ||
		got.IsAck != h.IsAck || got.IsReply != h.IsReply || got.Niceness != h.Niceness {
		t.Fatalf("header mismatch: got %+v, want %+v", got, h)
	}
	if string(gotPayload) != string(payload) {
		t.Fatalf("payload mismatch: got %q, want %q", gotPayload, payload)
	}
	if !got.TotalKnown() {
		t.Fatalf("expected TotalKnown() true")
	}
}

func TestDefaultCodecRejectsCorruption(t *testing.T) {
	c := NewDefaultCodec(0)
	buf := make([]byte, c.HeaderSize()+c.MaxPayload())

	h := Header{TransactionID: 1, MsgType: 2}
	n, err := c.WriteDatagram(buf, h, []byte("payload"))
	if err != nil {
		t.Fatalf("WriteDatagram: %v", err)
	}

	corrupted := append([]byte(nil), buf[:n]...)
	corrupted[0] ^= 0xff

	if _, _, err := c.ParseHeader(corrupted); err == nil {
		t.Fatalf("expected checksum mismatch error")
	}
}

func TestDefaultCodecShortDatagram(t *testing.T) {
	c := NewDefaultCodec(0)
	if _, _, err := c.ParseHeader([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected short-datagram error")
	}
}

func TestDefaultCodecUnknownTotal(t *testing.T) {
	c := NewDefaultCodec(0)
	buf := make([]byte, c.HeaderSize()+c.MaxPayload())
	h := Header{TransactionID: 5, TotalDgrams: 0}
	n, err := c.WriteDatagram(buf, h, nil)
	if err != nil {
		t.Fatalf("WriteDatagram: %v", err)
	}
	got, _, err := c.ParseHeader(buf[:n])
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if got.TotalKnown() {
		t.Fatalf("expected TotalKnown() false for TotalDgrams=0")
	}
}
