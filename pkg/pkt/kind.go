/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2025 The pktizr Authors. All Rights Reserved.
 */

// Package pkt implements the typed protocol header stack described by the
// probe engine: ordered Header nodes (innermost first), Build defaults,
// and a Pack/Unpack contract with Internet-checksum and length fix-ups.
//
// Rather than hand-rolling byte-order field encoding, each Header wraps a
// github.com/google/gopacket/layers type and delegates wire (de)serialization
// to gopacket.SerializeLayers / gopacket.NewPacket — the library the wider
// Go networking ecosystem already reaches for (see DESIGN.md). pkt adds the
// ordered-stack model, the innermost-first construction order, ICMP-in-IP
// nesting, and the named-field access the script bridge needs.
package pkt

// Kind tags the variant a Header holds.
type Kind int

const (
	KindEthernet Kind = iota
	KindARP
	KindIPv4
	KindICMP
	KindUDP
	KindTCP
	KindRaw
)

func (k Kind) String() string {
	switch k {
	case KindEthernet:
		return "eth"
	case KindARP:
		return "arp"
	case KindIPv4:
		return "ip4"
	case KindICMP:
		return "icmp"
	case KindUDP:
		return "udp"
	case KindTCP:
		return "tcp"
	case KindRaw:
		return "raw"
	default:
		return "unknown"
	}
}
