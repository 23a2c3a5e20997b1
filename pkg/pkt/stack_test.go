/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2025 The pktizr Authors. All Rights Reserved.
 */

package pkt

import (
	"bytes"
	"testing"
)

func buildTCPOverIP(t *testing.T) *Stack {
	t.Helper()
	eth := BuildEthernet()
	if err := eth.Set("src", "02:00:00:00:00:01"); err != nil {
		t.Fatal(err)
	}
	if err := eth.Set("dst", "02:00:00:00:00:02"); err != nil {
		t.Fatal(err)
	}

	ip := BuildIPv4()
	if err := ip.Set("src", "192.0.2.1"); err != nil {
		t.Fatal(err)
	}
	if err := ip.Set("dst", "192.0.2.2"); err != nil {
		t.Fatal(err)
	}
	if err := ip.Set("id", uint16(1234)); err != nil {
		t.Fatal(err)
	}

	tcp := BuildTCP()
	if err := tcp.Set("sport", uint16(40000)); err != nil {
		t.Fatal(err)
	}
	if err := tcp.Set("dport", uint16(443)); err != nil {
		t.Fatal(err)
	}
	if err := tcp.Set("syn", true); err != nil {
		t.Fatal(err)
	}
	if err := tcp.Set("seq", uint32(1)); err != nil {
		t.Fatal(err)
	}

	return NewStack(tcp, ip, eth)
}

func TestPackUnpackRoundTrip(t *testing.T) {
	s := buildTCPOverIP(t)

	buf := make([]byte, 1500)
	n, err := s.Pack(buf)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	if n == 0 {
		t.Fatal("Pack wrote zero bytes")
	}

	got, err := Unpack(buf[:n])
	if err != nil {
		t.Fatalf("Unpack: %v", err)
	}
	if got.Len() < 3 {
		t.Fatalf("expected at least 3 headers, got %d", got.Len())
	}

	ip := got.IPv4()
	if ip == nil {
		t.Fatal("missing ipv4 header after round trip")
	}
	if got, want := ip.L.SrcIP.String(), "192.0.2.1"; got != want {
		t.Errorf("src ip = %s, want %s", got, want)
	}
	if got, want := ip.L.DstIP.String(), "192.0.2.2"; got != want {
		t.Errorf("dst ip = %s, want %s", got, want)
	}

	var tcp *TCP
	for _, h := range got.Headers {
		if t2, ok := h.(*TCP); ok {
			tcp = t2
		}
	}
	if tcp == nil {
		t.Fatal("missing tcp header after round trip")
	}
	if tcp.L.DstPort != 443 {
		t.Errorf("dport = %d, want 443", tcp.L.DstPort)
	}
	if !tcp.L.SYN {
		t.Error("SYN flag lost across round trip")
	}
}

func TestPackTooSmallBuffer(t *testing.T) {
	s := buildTCPOverIP(t)
	buf := make([]byte, 4)
	if _, err := s.Pack(buf); err != ErrTooSmall {
		t.Fatalf("expected ErrTooSmall, got %v", err)
	}
}

func TestPackInfersProtoAndEthertype(t *testing.T) {
	s := buildTCPOverIP(t)
	buf := make([]byte, 1500)
	if _, err := s.Pack(buf); err != nil {
		t.Fatal(err)
	}
	ip := s.IPv4()
	if ip.L.Protocol != 6 {
		t.Errorf("ip protocol = %d, want 6 (tcp)", ip.L.Protocol)
	}
	var eth *Ethernet
	for _, h := range s.Headers {
		if e, ok := h.(*Ethernet); ok {
			eth = e
		}
	}
	if eth.L.EthernetType != 0x0800 {
		t.Errorf("ethertype = %#x, want 0x0800", uint16(eth.L.EthernetType))
	}
}

func TestChecksumZeroesOnWireSegment(t *testing.T) {
	s := buildTCPOverIP(t)
	buf := make([]byte, 1500)
	n, err := s.Pack(buf)
	if err != nil {
		t.Fatal(err)
	}

	// The 20-byte IPv4 header (no options) starts right after the
	// 14-byte Ethernet header; its own checksum, independently summed,
	// must zero out.
	ipStart := 14
	ihl := int(buf[ipStart]&0x0f) * 4
	sum := Checksum(buf[ipStart : ipStart+ihl])
	if sum != 0 {
		t.Errorf("ip header checksum does not self-zero: got %#x", sum)
	}

	// The TCP segment follows the IPv4 header (the frame may carry
	// Ethernet padding past the IPv4 total length); summed together with
	// its pseudo-header it must zero out as well.
	totalLen := int(buf[ipStart+2])<<8 | int(buf[ipStart+3])
	if ipStart+totalLen > n {
		t.Fatalf("ipv4 total length %d overruns the %d-byte frame", totalLen, n)
	}
	seg := buf[ipStart+ihl : ipStart+totalLen]
	var src, dst [4]byte
	copy(src[:], buf[ipStart+12:ipStart+16])
	copy(dst[:], buf[ipStart+16:ipStart+20])
	pseudo := IPv4PseudoHeader(src, dst, buf[ipStart+9], uint16(len(seg)))
	if sum := Checksum(append(pseudo, seg...)); sum != 0 {
		t.Errorf("tcp segment checksum does not self-zero: got %#x", sum)
	}
}

func TestUnpackTruncatedFrame(t *testing.T) {
	s := buildTCPOverIP(t)
	buf := make([]byte, 1500)
	n, err := s.Pack(buf)
	if err != nil {
		t.Fatal(err)
	}
	// Truncate mid-Ethernet-header: too short to hold even the link layer.
	_, err = Unpack(buf[:3])
	if err == nil {
		t.Fatal("expected an error unpacking a 3-byte frame")
	}
	_ = n
}

func TestRawPayloadRoundTrip(t *testing.T) {
	eth := BuildEthernet()
	eth.Set("src", "02:00:00:00:00:01")
	eth.Set("dst", "02:00:00:00:00:02")
	ip := BuildIPv4()
	ip.Set("src", "192.0.2.1")
	ip.Set("dst", "192.0.2.2")
	udp := BuildUDP()
	udp.Set("sport", uint16(5000))
	udp.Set("dport", uint16(5001))
	raw := BuildRaw()
	raw.Set("payload", []byte("hello probe"))

	s := NewStack(raw, udp, ip, eth)
	buf := make([]byte, 1500)
	n, err := s.Pack(buf)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Unpack(buf[:n])
	if err != nil {
		t.Fatal(err)
	}
	var payload *Raw
	for _, h := range got.Headers {
		if r, ok := h.(*Raw); ok {
			payload = r
		}
	}
	if payload == nil {
		t.Fatal("missing payload after round trip")
	}
	if !bytes.Equal([]byte(payload.L), []byte("hello probe")) {
		t.Errorf("payload = %q, want %q", payload.L, "hello probe")
	}
}
