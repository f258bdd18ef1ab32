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

	"github.com/fleetmesh/dgramtransport/common"
	"github.com/fleetmesh/dgramtransport/hostregistry"
	"github.com/fleetmesh/dgramtransport/protocol"
)

// ackWindowSize is the protocol constant from spec.md §6: the maximum
// number of datagrams a sender may have outstanding, per transaction,
// before it must wait for the first's ACK.
const ackWindowSize = 8

// niceness0BackoffMs is the approximately-constant backoff niceness-0
// slots use to minimize tail latency (spec.md §4.4).
const niceness0BackoffMs = 30

// Config configures a Transport at construction time. Unlike the
// teacher's process-wide UdpServer, this is a plain value passed to New,
// per the Design Notes' "process constructed explicitly at program
// start" guidance.
type Config struct {
	// Port is the local UDP port New binds.
	Port uint16

	// ReadBufferSize, WriteBufferSize size the socket's OS buffers.
	ReadBufferSize  int
	WriteBufferSize int

	// PollTime is how often the retransmit/timeout engine runs. It must
	// be <= the minimum slot timeout any caller will configure.
	PollTime time.Duration

	// MaxSlots bounds the number of concurrently in-flight transactions.
	MaxSlots int

	// Codec selects the wire framing. Defaults to protocol.NewDefaultCodec
	// if nil.
	Codec protocol.Codec

	// Logger receives structured events. Defaults to a no-op logger if
	// nil.
	Logger common.Logger

	// HostRegistry resolves host_id to ip/port for requests that specify
	// a host id instead of an explicit address. Optional.
	HostRegistry hostregistry.Registry

	// InitialBackoffMs0, InitialBackoffMs1 are the starting retransmit
	// backoffs for niceness 0 and niceness 1 slots respectively.
	InitialBackoffMs0 int64
	InitialBackoffMs1 int64

	// MaxBackoffMs caps exponential growth of niceness-1 backoff.
	MaxBackoffMs int64

	// CounterPath, if non-empty, is where the transaction-id counter is
	// persisted across restarts (SPEC_FULL.md §6 / spec.md §6).
	CounterPath string
}

func (c *Config) setDefaults() {
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = 256 * 1024
	}
	if c.WriteBufferSize <= 0 {
		c.WriteBufferSize = 256 * 1024
	}
	if c.PollTime <= 0 {
		c.PollTime = 20 * time.Millisecond
	}
	if c.MaxSlots <= 0 {
		c.MaxSlots = 4096
	}
	if c.Codec == nil {
		c.Codec = protocol.NewDefaultCodec(0)
	}
	if c.Logger == nil {
		c.Logger = common.NopLogger{}
	}
	if c.InitialBackoffMs0 <= 0 {
		c.InitialBackoffMs0 = niceness0BackoffMs
	}
	if c.InitialBackoffMs1 <= 0 {
		c.InitialBackoffMs1 = 30
	}
	if c.MaxBackoffMs <= 0 {
		c.MaxBackoffMs = 4000
	}
}

// initialBackoffMs returns the starting backoff for the given niceness.
func (c *Config) initialBackoffMs(niceness uint8) int64 {
	if niceness == 0 {
		return c.InitialBackoffMs0
	}
	return c.InitialBackoffMs1
}

// RequestOptions carries the per-request parameters to SendRequest,
// grouped into a struct (rather than the teacher's long positional
// parameter list) since Go idiom favors options structs for this many
// fields.
type RequestOptions struct {
	MsgType    uint8
	IP         uint32
	Port       uint16
	HostID     int32 // -1 for "no host id"
	State      interface{}
	Callback   Callback
	TimeoutMs  int64
	Niceness   uint8
	MaxResends int // -1 means unlimited

	// ExtraInfo is an optional free-text diagnostic string logged with
	// this request (SPEC_FULL.md §6, supplemented feature).
	ExtraInfo string
}
