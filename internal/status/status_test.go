/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2025 The pktizr Authors. All Rights Reserved.
 */

package status

import (
	"bytes"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestFinalSummaryIncludesCount(t *testing.T) {
	var c Counters
	c.PktCount.Store(42)
	var buf bytes.Buffer
	FinalSummary(&buf, &c, time.Second)
	if !strings.Contains(buf.String(), "42 packets") {
		t.Errorf("summary = %q, want it to mention 42 packets", buf.String())
	}
}

func TestPrinterStopsOnStopFlag(t *testing.T) {
	var c Counters
	var stop, done atomic.Bool
	p := &Printer{
		Out:      &bytes.Buffer{},
		Quiet:    true,
		Refresh:  5 * time.Millisecond,
		Wait:     10 * time.Millisecond,
		Total:    1000,
		Counters: &c,
		Stop:     &stop,
		Done:     &done,
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		stop.Store(true)
	}()

	finished := make(chan struct{})
	go func() {
		p.Run()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("printer did not finish after stop was set")
	}
	if !done.Load() {
		t.Error("printer exited without setting done")
	}
}

func TestPrinterStopsOnProbeCompletion(t *testing.T) {
	var c Counters
	var stop, done atomic.Bool
	c.PktProbe.Store(10)
	p := &Printer{
		Out:      &bytes.Buffer{},
		Quiet:    true,
		Refresh:  5 * time.Millisecond,
		Wait:     5 * time.Millisecond,
		Total:    10,
		Counters: &c,
		Stop:     &stop,
		Done:     &done,
	}

	finished := make(chan struct{})
	go func() {
		p.Run()
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("printer did not finish after reaching total probes")
	}
	if !done.Load() {
		t.Error("printer exited without setting done")
	}
}
