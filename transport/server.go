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

// Package transport is a reliable request/reply datagram transport built
// on top of an unreliable, possibly-lossy packet substrate (spec.md §1).
// A Transport multiplexes many concurrent transactions over a single
// socket, retransmitting unacknowledged data with exponential backoff
// and invoking a caller-supplied callback or handler exactly once per
// transaction when it resolves.
package transport

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/fleetmesh/dgramtransport/common"
	"github.com/fleetmesh/dgramtransport/common/errors"
	"github.com/fleetmesh/dgramtransport/common/prng"
	"github.com/fleetmesh/dgramtransport/dispatch"
	"github.com/fleetmesh/dgramtransport/persist"
	"github.com/fleetmesh/dgramtransport/protocol"
)

// Transport is a single reliable-datagram endpoint bound to one UDP
// socket, per spec.md §2. All exported methods are safe for concurrent
// use; the send/receive/retransmit/callback event loop itself runs
// single-threaded inside Run, matching the source's single-poll-loop
// design (Design Notes).
type Transport struct {
	cfg  Config
	mu   sync.Mutex
	rand *prng.PRNG

	conn        packetConn
	readScratch []byte

	slots         *slotTable
	dispatchTable *dispatch.Table
	stats         stats

	rrCursor    handle
	writeBlocked bool

	nextTransactionID uint32

	shuttingDown bool
	urgentShutdown bool
	shutdownDone chan struct{}
}

// New constructs a Transport bound to a UDP socket on cfg.Port. setDefaults fills
// in every zero-valued Config field with the same defaults the source's
// UdpServer::init applies.
func New(cfg Config) (*Transport, error) {
	cfg.setDefaults()

	conn, err := newUDPPacketConn(cfg.Port, cfg.ReadBufferSize, cfg.WriteBufferSize)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return newTransport(cfg, conn)
}

// newTransport builds a Transport around an already-constructed
// packetConn, applying the same defaults New does. Exercised directly by
// tests that substitute an in-memory packetConn for a real socket.
func newTransport(cfg Config, conn packetConn) (*Transport, error) {
	cfg.setDefaults()

	r, err := prng.NewPRNG()
	if err != nil {
		return nil, errors.Trace(err)
	}

	startCounter, err := persist.LoadCounter(cfg.CounterPath)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if startCounter == 0 {
		startCounter = uint32(r.Uint64())
	}

	// See writeDatagram's comment: an overlay codec's wire size can exceed
	// HeaderSize()+MaxPayload(), so the read scratch buffer is sized with
	// the same headroom used when writing.
	dgramSize := cfg.Codec.HeaderSize() + 2*cfg.Codec.MaxPayload() + 512

	tr := &Transport{
		cfg:               cfg,
		rand:              r,
		conn:              conn,
		readScratch:       make([]byte, dgramSize),
		slots:             newSlotTable(cfg.MaxSlots),
		dispatchTable:     dispatch.NewTable(),
		nextTransactionID: startCounter,
		shutdownDone:      make(chan struct{}),
	}
	return tr, nil
}

// RegisterHandler installs h to be invoked, exactly once per transaction,
// whenever a request of msgType arrives (spec.md §4.5). Registering the
// same msgType twice is an error.
func (tr *Transport) RegisterHandler(msgType uint8, h Handler) error {
	return tr.RegisterHandlerWithLimiter(msgType, h, nil)
}

// RegisterHandlerWithLimiter is RegisterHandler with an admission limiter
// attached (spec.md §9's Open Question on per-message-type admission
// control): once limiter's tokens are exhausted, new inbound requests of
// this msgType are dropped in readOneDatagram before a slot is ever
// allocated for them, rather than being admitted and only rejected later.
// A nil limiter behaves exactly like RegisterHandler.
func (tr *Transport) RegisterHandlerWithLimiter(msgType uint8, h Handler, limiter *rate.Limiter) error {
	return tr.dispatchTable.Register(msgType, func(slot interface{}) {
		h(slot.(*Slot))
	}, limiter)
}

// nextTxnID returns the next transaction id and advances the counter,
// wrapping at uint32 range per spec.md §3.
func (tr *Transport) nextTxnID() uint32 {
	id := tr.nextTransactionID
	tr.nextTransactionID++
	return id
}

// SendRequest starts a new outgoing transaction (spec.md §4.6). The
// caller's callback is invoked exactly once, from inside Run's goroutine
// (or, for an urgent Shutdown, from the goroutine that called Shutdown),
// once the transaction resolves (reply fully received, timeout,
// no-ack, cancellation, or shutdown).
func (tr *Transport) SendRequest(opts RequestOptions, msg []byte) (*Slot, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()

	if tr.shuttingDown {
		return nil, CodeShuttingDown
	}

	ip, port := opts.IP, opts.Port
	if opts.HostID >= 0 && tr.cfg.HostRegistry != nil {
		if resolvedIP, resolvedPort, ok := tr.cfg.HostRegistry.Lookup(opts.HostID); ok {
			ip, port = resolvedIP, resolvedPort
		}
	}

	s := tr.slots.allocate()
	if s == nil {
		return nil, CodeNoSlots
	}

	dgramSize := tr.cfg.Codec.MaxPayload()
	total := (len(msg) + dgramSize - 1) / dgramSize
	if total == 0 {
		total = 1
	}

	s.key = Key{
		TransactionID: tr.nextTxnID(),
		PeerIP:        ip,
		PeerPort:      port,
		Incoming:      false,
	}
	s.msgType = opts.MsgType
	s.niceness = opts.Niceness
	s.peerIP = ip
	s.peerPort = port
	s.hostID = opts.HostID
	s.callback = opts.Callback
	s.callerState = opts.State
	s.extraInfo = opts.ExtraInfo
	s.maxResends = opts.MaxResends
	if s.maxResends == 0 {
		s.maxResends = -1
	}

	s.sendBuf = msg
	s.sendBufOwned = true
	s.sendDgramSize = dgramSize
	s.sendTotal = total
	s.sendAcked = newBitset(total)
	s.sendResend = newBitset(total)
	s.recvTotal = -1
	s.recvLen = -1
	s.recvBitmap = newBitset(0)
	s.lastAckedDgram = -1
	s.currentBackoffMs = tr.cfg.initialBackoffMs(opts.Niceness)

	timeout := time.Duration(opts.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s.deadline = time.Now().Add(timeout)

	tr.slots.insertActive(s)

	tr.cfg.Logger.WithTraceFields(common.LogFields{
		"request_id": uuid.NewString(),
		"msg_type":   opts.MsgType,
		"txn_id":     s.key.TransactionID,
	}).Debug("request sent")

	return s, nil
}

// SendReply implements spec.md §4.5: an incoming slot's handler calls
// this exactly once to send the response, which reinserts the slot into
// the active list so the scheduler transmits it and its acked completion
// is tracked like any outgoing data.
func (tr *Transport) SendReply(s *Slot, msg []byte) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.sendReplyLocked(s, msg)
}

func (tr *Transport) sendReplyLocked(s *Slot, msg []byte) error {
	if !s.key.Incoming || s.replyPosted {
		return errors.TraceNew("SendReply called on a non-incoming or already-replied slot")
	}
	dgramSize := tr.cfg.Codec.MaxPayload()
	total := (len(msg) + dgramSize - 1) / dgramSize
	if total == 0 {
		total = 1
	}

	s.sendBuf = msg
	s.sendBufOwned = true
	s.sendDgramSize = dgramSize
	s.sendTotal = total
	s.sendAcked = newBitset(total)
	s.sendResend = newBitset(total)
	s.replyPosted = true
	s.deadline = time.Now().Add(tr.incomingReplyTimeout())

	// Called from a handler, s is detached from every list (mid-callback)
	// and needs inserting. Called from finishIncoming's terminal-error
	// path, s is still sitting in the active list and only needs its
	// send fields refreshed in place.
	if s.state != stateActive {
		tr.slots.insertActive(s)
	}
	return nil
}

// SendErrorReply implements spec.md §4.5's error-reply path: instead of
// application payload, a single datagram carrying peerErrCode is sent
// and the transaction concludes once it is acked.
func (tr *Transport) SendErrorReply(s *Slot, peerErrCode int32) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.sendErrorReplyLocked(s, peerErrCode, time.Now())
}

func (tr *Transport) sendErrorReplyLocked(s *Slot, peerErrCode int32, now time.Time) error {
	if !s.key.Incoming || s.replyPosted {
		return errors.TraceNew("SendErrorReply called on a non-incoming or already-replied slot")
	}
	s.peerErrCode = peerErrCode
	s.code = CodePeerError
	return tr.sendReplyLocked(s, nil)
}

// incomingReplyTimeout bounds how long an incoming slot waits, after its
// handler posts a reply, for that reply to be fully acked before the
// transaction is abandoned.
func (tr *Transport) incomingReplyTimeout() time.Duration {
	return 30 * time.Second
}

// writeDatagram serializes h/payload through the configured codec and
// writes it to the socket, updating byte/packet-out counters on success.
// It returns false if the underlying write would block.
func (tr *Transport) writeDatagram(h protocol.Header, payload []byte, ip uint32, port uint16) bool {
	// Sized generously rather than exactly HeaderSize()+len(payload): an
	// overlay codec (dnscodec) reports HeaderSize as 0 since its framing
	// is self-describing, but its wire encoding (DNS message plus base32
	// expansion) is substantially larger than the raw payload.
	buf := make([]byte, tr.cfg.Codec.HeaderSize()+2*len(payload)+512)
	n, err := tr.cfg.Codec.WriteDatagram(buf, h, payload)
	if err != nil {
		tr.cfg.Logger.WithTrace().Error("encode error: ", err)
		return true // don't treat encode failure as a blocked-write retry
	}
	ok, err := tr.conn.writeTo(buf[:n], ip, port)
	if err != nil {
		tr.cfg.Logger.WithTrace().Warning("write error: ", err)
		return true
	}
	if !ok {
		return false
	}
	tr.stats.addPacketsOut(1)
	tr.stats.addBytesOut(int64(n))
	return true
}

// Run drives the event loop: read, retransmit sweep, send scheduler,
// callback dispatch, on every PollTime tick, until ctx is cancelled or
// Shutdown completes (spec.md §5's single-threaded execution model).
// tr.mu is taken and released twice per tick rather than held
// throughout, because runCallbacks calls into user handlers/callbacks
// that are contractually required to call back into the Transport
// (spec.md §5: "the mutex held only around slot lookups, never around
// user code").
func (tr *Transport) Run(ctx context.Context) error {
	ticker := time.NewTicker(tr.cfg.PollTime)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			tr.conn.close()
			close(tr.shutdownDone)
			return ctx.Err()
		case <-ticker.C:
		}

		tr.mu.Lock()
		now := time.Now()

		for tr.readOneDatagram(now) {
		}
		tr.runRetransmitSweep(now)
		tr.runSendScheduler(now)
		tr.mu.Unlock()

		tr.runCallbacks()

		tr.mu.Lock()
		done := tr.shuttingDown && tr.slots.usedCount() == 0
		tr.mu.Unlock()
		if done {
			tr.conn.close()
			if tr.cfg.CounterPath != "" {
				persist.SaveCounter(tr.cfg.CounterPath, tr.nextTransactionID)
			}
			close(tr.shutdownDone)
			return nil
		}
	}
}

// Shutdown implements spec.md §4.8. Graceful shutdown (urgent=false)
// stops admitting new requests and waits for in-flight transactions to
// drain naturally; urgent shutdown fails every in-flight slot immediately
// with shutting-down. In both modes Run closes the socket on the first
// tick at which no slot is live; an incoming slot answered with an error
// reply stays live until that reply is acked or its deadline passes. The slot
// bookkeeping runs under tr.mu, but runCallbacks -- which invokes user
// callbacks -- runs after it is released, for the same reason Run drops
// it before calling runCallbacks.
func (tr *Transport) Shutdown(urgent bool) {
	tr.mu.Lock()
	tr.shuttingDown = true
	tr.urgentShutdown = urgent

	if urgent {
		now := time.Now()
		var toResolve []*Slot
		tr.slots.forEachActive(func(s *Slot) {
			s.code = CodeShuttingDown
			toResolve = append(toResolve, s)
		})
		for _, s := range toResolve {
			if s.key.Incoming {
				tr.finishIncoming(s, CodeShuttingDown, now)
			} else {
				tr.finishOutgoing(s, CodeShuttingDown, now)
			}
		}
	}
	tr.mu.Unlock()

	if urgent {
		tr.runCallbacks()
	}
}

// Done returns a channel closed once Run has fully exited, whether from
// context cancellation or a completed graceful/urgent shutdown.
func (tr *Transport) Done() <-chan struct{} {
	return tr.shutdownDone
}
