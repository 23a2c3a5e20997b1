/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2025 The pktizr Authors. All Rights Reserved.
 */

// Package pcapdrv implements driver.Driver over libpcap, the second
// legitimate backend named in the driver trait: it trades the
// AF_PACKET ring's raw throughput for portability via
// github.com/google/gopacket/pcap. No BPF filter is installed; every
// frame the interface sees is captured.
package pcapdrv

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/gopacket/pcap"

	"github.com/pktizr/pktizr/internal/driver"
)

const snaplen = 65535

// Driver wraps a live pcap.Handle opened on one interface.
type Driver struct {
	mu     sync.Mutex
	handle *pcap.Handle
	txbuf  []byte
	closed bool
}

// Open starts a live capture on ifaceName with a short read timeout so
// Capture's blocking window stays within the scan engine's cancellation
// budget.
func Open(ifaceName string) (*Driver, error) {
	handle, err := pcap.OpenLive(ifaceName, snaplen, true, 10*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("pcapdrv: open %q: %w", ifaceName, err)
	}
	return &Driver{handle: handle}, nil
}

func (d *Driver) GetBuf() ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, driver.ErrClosed
	}
	if cap(d.txbuf) < snaplen {
		d.txbuf = make([]byte, snaplen)
	}
	return d.txbuf[:snaplen], nil
}

func (d *Driver) Inject(frame []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return driver.ErrClosed
	}
	if err := d.handle.WritePacketData(frame); err != nil {
		return fmt.Errorf("pcapdrv: write: %w", err)
	}
	return nil
}

func (d *Driver) Capture(timeout time.Duration) ([]byte, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, driver.ErrClosed
	}
	handle := d.handle
	d.mu.Unlock()

	deadline := time.Now().Add(timeout)
	for {
		data, _, err := handle.ZeroCopyReadPacketData()
		if err == nil {
			out := make([]byte, len(data))
			copy(out, data)
			return out, nil
		}
		if err == pcap.NextErrorTimeoutExpired {
			if time.Now().After(deadline) {
				return nil, driver.ErrTimeout
			}
			continue
		}
		return nil, fmt.Errorf("pcapdrv: read: %w", err)
	}
}

func (d *Driver) Release() {}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.handle.Close()
	return nil
}
