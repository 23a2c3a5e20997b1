/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2025 The pktizr Authors. All Rights Reserved.
 */

// Package arp implements the L2 discovery step: before any probe can be
// sent, the engine must learn the gateway's hardware address.
package arp

import (
	"errors"
	"net"
	"time"

	"github.com/pktizr/pktizr/internal/driver"
	"github.com/pktizr/pktizr/pkg/pkt"
)

// ErrNoReply is returned when no matching ARP reply arrives within the
// retry budget.
var ErrNoReply = errors.New("arp: no reply from gateway")

const (
	maxRetries   = 5
	captureWait  = 1 * time.Second
	broadcastMAC = "ff:ff:ff:ff:ff:ff"
)

// Resolve sends up to maxRetries broadcast ARP requests for gatewayIP
// over d, and returns the first hardware address that replies with
// psrc == gatewayIP and pdst == localIP. All other captured frames are
// silently released.
func Resolve(d driver.Driver, localMAC net.HardwareAddr, localIP, gatewayIP net.IP) (net.HardwareAddr, error) {
	req, err := buildRequest(localMAC, localIP, gatewayIP)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := inject(d, req); err != nil {
			return nil, err
		}

		deadline := time.Now().Add(captureWait)
		for time.Now().Before(deadline) {
			remaining := time.Until(deadline)
			frame, err := d.Capture(remaining)
			if err != nil {
				break // timeout or transient capture error: move to next retry
			}
			d.Release()

			mac, ok := matchReply(frame, localIP, gatewayIP)
			if ok {
				return mac, nil
			}
		}
	}
	return nil, ErrNoReply
}

func buildRequest(localMAC net.HardwareAddr, localIP, gatewayIP net.IP) ([]byte, error) {
	bcast, _ := net.ParseMAC(broadcastMAC)

	eth := pkt.BuildEthernet()
	if err := eth.Set("src", localMAC.String()); err != nil {
		return nil, err
	}
	if err := eth.Set("dst", bcast.String()); err != nil {
		return nil, err
	}

	a := pkt.BuildARP()
	if err := a.Set("opcode", uint16(1)); err != nil {
		return nil, err
	}
	if err := a.Set("hwsrc", localMAC.String()); err != nil {
		return nil, err
	}
	if err := a.Set("hwdst", broadcastMAC); err != nil {
		return nil, err
	}
	if err := a.Set("psrc", localIP.String()); err != nil {
		return nil, err
	}
	if err := a.Set("pdst", gatewayIP.String()); err != nil {
		return nil, err
	}

	s := pkt.NewStack(a, eth)
	buf := make([]byte, 128)
	n, err := s.Pack(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func inject(d driver.Driver, frame []byte) error {
	buf, err := d.GetBuf()
	if err != nil {
		return err
	}
	n := copy(buf, frame)
	return d.Inject(buf[:n])
}

func matchReply(frame []byte, localIP, gatewayIP net.IP) (net.HardwareAddr, bool) {
	s, err := pkt.Unpack(frame)
	if err != nil {
		return nil, false
	}
	var a *pkt.ARP
	for _, h := range s.Headers {
		if v, ok := h.(*pkt.ARP); ok {
			a = v
		}
	}
	if a == nil {
		return nil, false
	}
	if opcode, _ := a.Get("opcode"); opcode != uint16(2) {
		return nil, false
	}
	psrc, _ := a.Get("psrc")
	pdst, _ := a.Get("pdst")
	if psrc != gatewayIP.String() || pdst != localIP.String() {
		return nil, false
	}
	hwsrc, _ := a.Get("hwsrc")
	mac, err := net.ParseMAC(hwsrc.(string))
	if err != nil {
		return nil, false
	}
	return mac, true
}
