/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2025 The pktizr Authors. All Rights Reserved.
 */

// Package mock implements an in-memory driver.Driver used by the ARP and
// end-to-end tests: Inject appends to a TX log an external test can
// inspect, and a test can push frames into the RX queue for Capture to
// return, optionally wiring Inject straight to an auto-responder.
package mock

import (
	"sync"
	"time"

	"github.com/pktizr/pktizr/internal/driver"
)

// Driver is a programmable, in-memory driver.Driver.
type Driver struct {
	mu     sync.Mutex
	rx     [][]byte
	tx     [][]byte
	closed bool

	// Responder, if set, is invoked synchronously for every injected
	// frame; any frames it returns are queued onto rx, simulating a
	// peer that replies to probes.
	Responder func(frame []byte) [][]byte
}

// New returns an empty mock driver.
func New() *Driver {
	return &Driver{}
}

func (d *Driver) GetBuf() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, driver.ErrClosed
	}
	return make([]byte, 2048), nil
}

func (d *Driver) Inject(frame []byte) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return driver.ErrClosed
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	d.tx = append(d.tx, cp)
	responder := d.Responder
	d.mu.Unlock()

	if responder != nil {
		for _, reply := range responder(cp) {
			d.Push(reply)
		}
	}
	return nil
}

// Push queues a frame for the next Capture call, simulating an inbound
// frame from the wire.
func (d *Driver) Push(frame []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	d.rx = append(d.rx, cp)
}

func (d *Driver) Capture(timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		d.mu.Lock()
		if d.closed {
			d.mu.Unlock()
			return nil, driver.ErrClosed
		}
		if len(d.rx) > 0 {
			frame := d.rx[0]
			d.rx = d.rx[1:]
			d.mu.Unlock()
			return frame, nil
		}
		d.mu.Unlock()
		if time.Now().After(deadline) {
			return nil, driver.ErrTimeout
		}
		time.Sleep(time.Millisecond)
	}
}

func (d *Driver) Release() {}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// TX returns a snapshot of all frames injected so far.
func (d *Driver) TX() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.tx))
	copy(out, d.tx)
	return out
}
