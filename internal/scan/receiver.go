/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2025 The pktizr Authors. All Rights Reserved.
 */

package scan

import (
	"errors"
	"time"

	"github.com/pktizr/pktizr/internal/driver"
	"github.com/pktizr/pktizr/internal/status"
	"github.com/pktizr/pktizr/pkg/pkt"
	"github.com/pktizr/pktizr/script"
)

// capturePoll is the driver-defined short poll recommended by spec §5
// ("10ms recommended") so that done is observed within O(100ms).
const capturePoll = 10 * time.Millisecond

// Receiver runs the capture worker (spec §4.2): it blocks on the
// driver's Capture, decodes each frame into a Stack, and hands it to the
// script's optional recv(pkts) to decide whether it counts as a reply.
func Receiver(s *State, scriptPath string, log *status.Logger) {
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
		log.Error("receiver: script load failed", "err", err)
		s.Stop.Store(true)
		s.Ready()
		return
	}
	defer bridge.Close()

	log.Debug("receiver: started")
	s.Ready()

	for !s.Done.Load() {
		frame, err := s.Driver.Capture(capturePoll)
		if err != nil {
			if errors.Is(err, driver.ErrTimeout) {
				continue
			}
			log.Debug("receiver: capture error", "err", err)
			continue
		}
		s.Driver.Release()

		stack, err := pkt.Unpack(frame)
		if err != nil {
			continue // UnpackError: drop silently, per spec §7
		}
		s.Counters.PktCount.Add(1)

		if !bridge.HasRecv() {
			continue
		}
		counted, err := bridge.Recv(stack)
		if err != nil {
			log.Error("receiver: script runtime error", "err", err)
			continue
		}
		if counted {
			s.Counters.PktRecv.Add(1)
		}
	}

	log.Debug("receiver: stopped")
}
