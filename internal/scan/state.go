/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2025 The pktizr Authors. All Rights Reserved.
 */

// Package scan implements the concurrency core: the fused generator/
// sender worker and the receiver worker, bound to a shared State, plus
// the startup handshake and termination sequence that coordinate them.
//
// It is grounded on the teacher's device.Device worker shape
// (RoutineSequentialSender / RoutineReceiveIncoming): a sync.WaitGroup
// startup handshake, panic-safe per-worker shutdown, and structured
// logging via internal/status on every state transition.
package scan

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pktizr/pktizr/internal/cookie"
	"github.com/pktizr/pktizr/internal/driver"
	"github.com/pktizr/pktizr/internal/ranges"
	"github.com/pktizr/pktizr/internal/ratelimit"
	"github.com/pktizr/pktizr/internal/shuffle"
	"github.com/pktizr/pktizr/internal/squeue"
	"github.com/pktizr/pktizr/internal/status"
)

// State is the process-wide scan state shared by the generator and
// receiver workers: counters, flags, the target/port space, and the
// resources (queue, bucket, driver) they coordinate through.
type State struct {
	Counters status.Counters
	Done     atomic.Bool
	Stop     atomic.Bool
	Quiet    bool

	// Start is the scan's monotonic clock origin, anchoring the script
	// bridge's get_time() (spec §4.6) to scan start rather than the
	// zero time.
	Start time.Time

	LocalAddr   net.IP
	GatewayAddr net.IP
	LocalMAC    net.HardwareAddr
	GatewayMAC  net.HardwareAddr

	Targets *ranges.List
	Ports   *ranges.List
	Seed    uint64
	Count   uint64
	Shuffle bool

	shuffleState *shuffle.State
	nTargets     uint64
	nPorts       uint64
	total        uint64
	cursor       atomic.Uint64

	Bucket *ratelimit.Bucket
	Queue  *squeue.Queue
	Driver driver.Driver

	// starting is released once by each worker after it finishes
	// per-goroutine initialization (its script state, in particular),
	// so the status printer never starts before every worker is ready.
	starting sync.WaitGroup
	stopping sync.WaitGroup
}

// New builds a State ready to drive a scan, deriving the target cursor's
// total space N = |targets| * |ports| * count and, if shuffle is
// enabled, the Feistel permutation over [0, N).
func New(targets, ports *ranges.List, seed uint64, count uint64, shuffleEnabled bool, rate float64) *State {
	nT := targets.Count()
	nP := ports.Count()
	total := nT * nP * count

	s := &State{
		Start:   time.Now(),
		Targets: targets,
		Ports:   ports,
		Seed:    seed,
		Count:   count,
		Shuffle: shuffleEnabled,
		nTargets: nT,
		nPorts:   nP,
		total:    total,
		Bucket:   ratelimit.New(rate),
		Queue:    squeue.New(),
	}
	if shuffleEnabled {
		s.shuffleState = shuffle.New(total, seed)
	}
	return s
}

// Total returns N, the size of the target cursor's space.
func (s *State) Total() uint64 { return s.total }

// Next decodes target cursor index i into (daddr, dport), per the
// peculiar but pinned arithmetic: targets change fastest, and for
// count > 1 the same (target, port) pair repeats count times in a row.
func (s *State) Next(i uint64) (daddr uint32, dport uint32, ok bool) {
	slot := i
	if s.Shuffle {
		slot = s.shuffleState.Shuffle(i)
	}
	tgtSpan := s.nTargets * s.Count
	if tgtSpan == 0 {
		return 0, 0, false
	}
	tIdx := (slot % tgtSpan) / s.Count
	pIdx := (slot / tgtSpan) / s.Count

	daddrPick, ok1 := s.Targets.Pick(tIdx)
	dportPick, ok2 := s.Ports.Pick(pIdx)
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	return daddrPick, dportPick, true
}

// NextIndex atomically claims and returns the next cursor index, and
// whether it still falls within [0, Total).
func (s *State) NextIndex() (i uint64, ok bool) {
	i = s.cursor.Add(1) - 1
	return i, i < s.total
}

// Cookie32 exposes the scan's seed-bound 32-bit cookie function to
// callers that need it outside the script bridge (tests, in particular).
func (s *State) Cookie32(saddr, daddr uint32, sport, dport uint16) uint32 {
	return cookie.Cookie32(saddr, daddr, sport, dport, s.Seed)
}

// StartWorker registers one worker with the startup handshake; call
// Ready once its per-goroutine initialization (script state, etc.) is
// complete, and call WorkerDone via defer when it exits.
func (s *State) StartWorker() {
	s.starting.Add(1)
	s.stopping.Add(1)
}

// Ready signals that the calling worker has finished initializing.
func (s *State) Ready() { s.starting.Done() }

// WaitReady blocks until every registered worker has called Ready.
func (s *State) WaitReady() { s.starting.Wait() }

// WorkerDone signals that the calling worker has exited.
func (s *State) WorkerDone() { s.stopping.Done() }

// WaitStopped blocks until every registered worker has exited.
func (s *State) WaitStopped() { s.stopping.Wait() }
