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

// Command dgramtransportd runs a standalone echo endpoint over the
// reliable datagram transport, useful for interop testing against a peer
// process without embedding the library in a larger service.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/fleetmesh/dgramtransport/common"
	"github.com/fleetmesh/dgramtransport/common/logging"
	"github.com/fleetmesh/dgramtransport/protocol/dnscodec"
	"github.com/fleetmesh/dgramtransport/transport"
)

const echoMsgType = 1

func main() {
	port := flag.Int("port", 9090, "UDP port to bind")
	logPath := flag.String("log", "", "path to a JSON-lines log file; empty disables file logging")
	counterPath := flag.String("counter", "", "path to persist the transaction id counter across restarts")
	useDNS := flag.Bool("dns-codec", false, "shape datagrams as DNS TXT queries/responses")
	echoRPS := flag.Float64("echo-rps", 0, "cap admission of new echo requests to this many per second; 0 disables the limiter")
	flag.Parse()

	cfg := transport.Config{
		Port:        uint16(*port),
		CounterPath: *counterPath,
	}

	if *logPath != "" {
		fileLogger, err := logging.NewFileLogger(*logPath)
		if err != nil {
			os.Stderr.WriteString("failed to open log file: " + err.Error() + "\n")
			os.Exit(1)
		}
		defer fileLogger.Close()
		cfg.Logger = fileLogger
	} else {
		cfg.Logger = common.NopLogger{}
	}

	if *useDNS {
		cfg.Codec = dnscodec.NewCodec(0)
	}

	tr, err := transport.New(cfg)
	if err != nil {
		os.Stderr.WriteString("failed to start transport: " + err.Error() + "\n")
		os.Exit(1)
	}

	echoHandler := func(s *transport.Slot) {
		reply := append([]byte(nil), s.ReadBuffer()...)
		if err := tr.SendReply(s, reply); err != nil {
			cfg.Logger.WithTrace().Error("send reply failed: ", err)
		}
	}

	var limiter *rate.Limiter
	if *echoRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(*echoRPS), int(*echoRPS)+1)
	}
	err = tr.RegisterHandlerWithLimiter(echoMsgType, echoHandler, limiter)
	if err != nil {
		os.Stderr.WriteString("failed to register handler: " + err.Error() + "\n")
		os.Exit(1)
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	go func() {
		<-sigCtx.Done()
		tr.Shutdown(false)
		select {
		case <-tr.Done():
		case <-time.After(10 * time.Second):
			cancelRun()
		}
	}()

	_ = tr.Run(runCtx)
}
