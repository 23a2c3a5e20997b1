/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2025 The pktizr Authors. All Rights Reserved.
 */

// Package status provides the scan engine's structured logger and
// terminal status line — both out-of-core-scope collaborators named in
// §6, given real default implementations so the CLI runs end-to-end.
//
// The logger mirrors the teacher's device.Logger interface shape
// (Debug/Info/Error methods gated by level) but is backed by log/slog
// with github.com/lmittmann/tint as the handler, the colorized,
// leveled, timestamped console format malbeclabs-doublezero's cmd/server
// binaries wire up.
package status

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/lmittmann/tint"
)

// Logger is the scan engine's logging surface.
type Logger struct {
	slog *slog.Logger
}

// NewLogger builds a tint-backed Logger writing to w. quiet raises the
// minimum level to Warn so routine progress is suppressed but startup
// failures still surface.
func NewLogger(w io.Writer, quiet bool) *Logger {
	level := slog.LevelInfo
	if quiet {
		level = slog.LevelWarn
	}
	h := tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	})
	return &Logger{slog: slog.New(h)}
}

func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.slog.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.slog.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// Counters is the subset of scan.State's atomic counters the status line
// and FinalSummary need to read. Kept as plain fields of atomic types so
// this package has no import-cycle dependency on internal/scan.
type Counters struct {
	PktCount atomic.Uint64
	PktProbe atomic.Uint64
	PktSent  atomic.Uint64
	PktRecv  atomic.Uint64
}

// Line renders one status-line refresh (spec: 250ms cadence), tolerating
// torn/stale reads by construction (plain atomic loads, no snapshotting
// lock).
func Line(c *Counters, elapsed time.Duration, total uint64) string {
	pps := float64(0)
	if s := elapsed.Seconds(); s > 0 {
		pps = float64(c.PktSent.Load()) / s
	}
	return fmt.Sprintf("probed %d/%d sent %d recv %d (%.0f pps) %s",
		c.PktProbe.Load(), total, c.PktSent.Load(), c.PktRecv.Load(), pps, elapsed.Round(time.Second))
}

// FinalSummary prints the one-line pkt_count/elapsed/pps summary on exit,
// even under --quiet — matching the original C implementation's
// unconditional final report (original_source/src/pktizr.c).
func FinalSummary(w io.Writer, c *Counters, elapsed time.Duration) {
	pps := float64(0)
	if s := elapsed.Seconds(); s > 0 {
		pps = float64(c.PktSent.Load()) / s
	}
	fmt.Fprintf(w, "%d packets in %s (%.1f pps)\n", c.PktCount.Load(), elapsed.Round(time.Millisecond), pps)
}

// Printer drives the periodic status line and the termination sequence
// (spec §4.2 steps 1-3): it exits once probing has completed or stop has
// been requested, then counts down the wait period before signalling
// done.
type Printer struct {
	Out     io.Writer
	Quiet   bool
	Refresh time.Duration
	Wait    time.Duration
	Total   uint64

	Counters *Counters
	Stop     *atomic.Bool
	Done     *atomic.Bool
}

// Run blocks until the termination sequence completes, then returns.
func (p *Printer) Run() {
	if p.Refresh <= 0 {
		p.Refresh = 250 * time.Millisecond
	}
	start := time.Now()
	ticker := time.NewTicker(p.Refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !p.Quiet {
				fmt.Fprintf(p.Out, "\r%s", Line(p.Counters, time.Since(start), p.Total))
			}
		default:
		}
		if p.Counters.PktProbe.Load() >= p.Total || p.Stop.Load() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if !p.Quiet {
		fmt.Fprintln(p.Out)
	}

	deadline := time.Now().Add(p.Wait)
	for time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
	}

	p.Done.Store(true)
}
