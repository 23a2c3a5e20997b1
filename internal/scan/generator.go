/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2025 The pktizr Authors. All Rights Reserved.
 */

package scan

import (
	"time"

	"github.com/pktizr/pktizr/internal/status"
	"github.com/pktizr/pktizr/pkg/pkt"
	"github.com/pktizr/pktizr/script"
)

// idleSpin is how long the generator sleeps when it has nothing to do
// (every probe minted, queue empty) but done has not yet been set —
// avoids a hot busy-loop during the wait period.
const idleSpin = 5 * time.Millisecond

// Generator runs the fused loop+sender worker (spec §4.2): on each
// iteration it takes one rate-bucket token, then either drains a
// script-enqueued packet from the queue or mints the next probe via the
// script's loop(daddr, dport), packs it, and injects it.
//
// Grounded on the teacher's RoutineSequentialSender/RoutineReadFromTUN
// shape: a logDebug/logError pair bound to the worker, the starting/
// stopping handshake, and a defer'd shutdown log line.
func Generator(s *State, scriptPath string, log *status.Logger) {
	defer s.WorkerDone()

	bridge, err := script.New(scriptPath, script.Config{
		LocalAddr:  s.LocalAddr,
		LocalMAC:   s.LocalMAC,
		GatewayMAC: s.GatewayMAC,
		Seed:       s.Seed,
		Queue:      s.Queue,
		Start:      s.Start,
	})
	if err != nil {
		log.Error("generator: script load failed", "err", err)
		s.Stop.Store(true)
		s.Ready()
		return
	}
	defer bridge.Close()

	log.Debug("generator: started")
	s.Ready()

	buf := make([]byte, 2048)
	for !s.Done.Load() {
		s.Bucket.Take()

		if stack, ok := s.Queue.Dequeue(); ok {
			s.transmit(stack, buf, log)
			continue
		}

		i, ok := s.NextIndex()
		if !ok {
			// Every probe has been minted; idle until the printer sets
			// done once the wait period elapses.
			time.Sleep(idleSpin)
			continue
		}

		if s.Stop.Load() {
			continue
		}

		daddr, dport, ok := s.Next(i)
		if !ok {
			continue
		}

		stack, err := bridge.Loop(daddr, dport)
		if err != nil {
			log.Error("generator: script runtime error", "err", err)
			continue
		}
		s.Counters.PktProbe.Add(1)
		s.transmit(stack, buf, log)
	}

	log.Debug("generator: stopped")
}

// transmit packs stack into buf and injects it through the driver,
// swallowing PackError/DriverError per spec §7 (drop the packet,
// continue).
func (s *State) transmit(stack *pkt.Stack, buf []byte, log *status.Logger) {
	n, err := stack.Pack(buf)
	if err != nil {
		log.Debug("generator: pack failed", "err", err)
		return
	}
	frame, err := s.Driver.GetBuf()
	if err != nil {
		log.Debug("generator: driver buffer unavailable", "err", err)
		return
	}
	copy(frame, buf[:n])
	if err := s.Driver.Inject(frame[:n]); err != nil {
		log.Debug("generator: inject failed", "err", err)
		return
	}
	s.Counters.PktSent.Add(1)
	s.Counters.PktCount.Add(1)
}
