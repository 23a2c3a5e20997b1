/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2025 The pktizr Authors. All Rights Reserved.
 */

// Package driver declares the capability set the scan engine needs from
// a raw-frame I/O backend. The core never assumes a concrete transport —
// AF_PACKET rings (internal/driver/afpacket) and libpcap
// (internal/driver/pcapdrv) are both legitimate, swappable
// implementations, alongside the in-memory internal/driver/mock used by
// tests.
package driver

import (
	"errors"
	"time"
)

// ErrClosed is returned by any Driver method called after Close.
var ErrClosed = errors.New("driver: closed")

// ErrTimeout is returned by Capture when no frame arrived within the
// requested timeout. It is not a fatal error; callers should continue
// their capture loop.
var ErrTimeout = errors.New("driver: capture timeout")

// Driver is the raw-frame injection/capture trait the scan engine is
// built against. Implementations MUST NOT be called from more than one
// goroutine at a time without their own internal synchronization — the
// engine serializes TX through a single sender and RX through a single
// receiver by construction.
type Driver interface {
	// GetBuf rents a transmit-sized scratch buffer the caller may
	// pack a frame into before passing it to Inject.
	GetBuf() ([]byte, error)
	// Inject enqueues frame for transmission.
	Inject(frame []byte) error
	// Capture returns the next captured frame, blocking up to timeout.
	// Returns ErrTimeout if none arrived in that window.
	Capture(timeout time.Duration) ([]byte, error)
	// Release marks the most recently captured frame's buffer as
	// consumed and reusable.
	Release()
	// Close releases all driver resources. Idempotent.
	Close() error
}
