/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2025 The pktizr Authors. All Rights Reserved.
 */

package arp

import (
	"net"
	"testing"

	"github.com/pktizr/pktizr/internal/driver/mock"
	"github.com/pktizr/pktizr/pkg/pkt"
)

func TestResolveSucceedsOnFirstReply(t *testing.T) {
	localMAC, _ := net.ParseMAC("02:00:00:00:00:01")
	localIP := net.ParseIP("10.0.0.1")
	gatewayIP := net.ParseIP("10.0.0.254")
	gatewayMAC, _ := net.ParseMAC("11:22:33:44:55:66")

	d := mock.New()
	d.Responder = func(reqFrame []byte) [][]byte {
		reply, err := buildReply(localMAC, localIP, gatewayMAC, gatewayIP)
		if err != nil {
			t.Fatal(err)
		}
		return [][]byte{reply}
	}

	mac, err := Resolve(d, localMAC, localIP, gatewayIP)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if mac.String() != gatewayMAC.String() {
		t.Errorf("resolved mac = %s, want %s", mac, gatewayMAC)
	}
	if len(d.TX()) != 1 {
		t.Errorf("expected exactly 1 retry (a reply on the first request), got %d requests sent", len(d.TX()))
	}
}

func TestResolveFailsAfterRetries(t *testing.T) {
	localMAC, _ := net.ParseMAC("02:00:00:00:00:01")
	localIP := net.ParseIP("10.0.0.1")
	gatewayIP := net.ParseIP("10.0.0.254")

	d := mock.New()
	_, err := Resolve(d, localMAC, localIP, gatewayIP)
	if err != ErrNoReply {
		t.Fatalf("expected ErrNoReply, got %v", err)
	}
	if len(d.TX()) != maxRetries {
		t.Errorf("expected %d retries, got %d", maxRetries, len(d.TX()))
	}
}

func buildReply(dstMAC net.HardwareAddr, dstIP net.IP, srcMAC net.HardwareAddr, srcIP net.IP) ([]byte, error) {
	eth := pkt.BuildEthernet()
	if err := eth.Set("src", srcMAC.String()); err != nil {
		return nil, err
	}
	if err := eth.Set("dst", dstMAC.String()); err != nil {
		return nil, err
	}
	a := pkt.BuildARP()
	if err := a.Set("opcode", uint16(2)); err != nil {
		return nil, err
	}
	if err := a.Set("hwsrc", srcMAC.String()); err != nil {
		return nil, err
	}
	if err := a.Set("hwdst", dstMAC.String()); err != nil {
		return nil, err
	}
	if err := a.Set("psrc", srcIP.String()); err != nil {
		return nil, err
	}
	if err := a.Set("pdst", dstIP.String()); err != nil {
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
