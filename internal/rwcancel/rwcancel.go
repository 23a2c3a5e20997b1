/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2025 The pktizr Authors. All Rights Reserved.
 */

// Package rwcancel provides a cancelable, short-timeout poll over a raw
// file descriptor. It is adapted from wireguard-go's rwcancel package
// (itself built on a self-pipe plus ppoll), generalized from "cancel a
// blocked netlink route-listener" to "honor the scan engine's done flag
// within O(100ms) while blocked in a capture poll."
package rwcancel

import (
	"errors"

	"golang.org/x/sys/unix"
)

// RWCancel wraps a file descriptor with a cancellation pipe so that a
// blocked Poll can be woken up from another goroutine.
type RWCancel struct {
	fd         int
	closeSignal [2]int
}

// New wraps fd (owned by the caller) for cancelable polling.
func New(fd int) (*RWCancel, error) {
	r := &RWCancel{fd: fd}
	if err := unix.Pipe2(r.closeSignal[:], unix.O_CLOEXEC); err != nil {
		return nil, err
	}
	return r, nil
}

// Cancel wakes up any goroutine currently blocked in Poll.
func (r *RWCancel) Cancel() error {
	var b [1]byte
	_, err := unix.Write(r.closeSignal[1], b[:])
	return err
}

// Close releases the cancellation pipe. It does not close fd.
func (r *RWCancel) Close() error {
	unix.Close(r.closeSignal[0])
	unix.Close(r.closeSignal[1])
	return nil
}

// ErrCancelled is returned by Poll when Cancel is called while polling.
var ErrCancelled = errors.New("rwcancel: cancelled")

// Poll blocks until fd is readable, timeoutMillis elapses (returning
// false, nil on a plain timeout), or Cancel is called (returning
// ErrCancelled).
func (r *RWCancel) Poll(timeoutMillis int) (bool, error) {
	fds := []unix.PollFd{
		{Fd: int32(r.fd), Events: unix.POLLIN},
		{Fd: int32(r.closeSignal[0]), Events: unix.POLLIN},
	}
	for {
		n, err := unix.Poll(fds, timeoutMillis)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, err
		}
		if n == 0 {
			return false, nil
		}
		if fds[1].Revents&unix.POLLIN != 0 {
			return false, ErrCancelled
		}
		return fds[0].Revents&unix.POLLIN != 0, nil
	}
}
