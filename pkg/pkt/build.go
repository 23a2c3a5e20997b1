/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2025 The pktizr Authors. All Rights Reserved.
 */

package pkt

// Build constructs a default Header for kind, ready for field overrides
// via Set and assembly into a Stack. It is the entry point the script
// bridge's IP()/ICMP()/UDP()/TCP()/Raw() constructors call.
func Build(k Kind) (Header, error) {
	switch k {
	case KindEthernet:
		return BuildEthernet(), nil
	case KindARP:
		return BuildARP(), nil
	case KindIPv4:
		return BuildIPv4(), nil
	case KindICMP:
		return BuildICMP(), nil
	case KindUDP:
		return BuildUDP(), nil
	case KindTCP:
		return BuildTCP(), nil
	case KindRaw:
		return BuildRaw(), nil
	default:
		return nil, &ErrUnknownField{Kind: k, Field: "<kind>"}
	}
}

// ParseKind maps the script-facing header names to a Kind.
func ParseKind(name string) (Kind, bool) {
	switch name {
	case "eth", "ethernet":
		return KindEthernet, true
	case "arp":
		return KindARP, true
	case "ip", "ip4", "ipv4":
		return KindIPv4, true
	case "icmp":
		return KindICMP, true
	case "udp":
		return KindUDP, true
	case "tcp":
		return KindTCP, true
	case "raw":
		return KindRaw, true
	default:
		return 0, false
	}
}
