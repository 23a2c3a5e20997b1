/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2025 The pktizr Authors. All Rights Reserved.
 */

package pkt

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Stack is a non-empty ordered sequence of Header nodes, innermost first
// (payload-to-wire) — the construction order is [TCP, IPv4, Ethernet] for
// a TCP-over-IP probe. Wire order is the reverse.
type Stack struct {
	Headers []Header
}

// NewStack builds a Stack from headers given innermost first.
func NewStack(h ...Header) *Stack {
	return &Stack{Headers: h}
}

// Push appends a header as the new outermost node (called in construction
// order: TCP, then IPv4, then Ethernet).
func (s *Stack) Push(h Header) *Stack {
	s.Headers = append(s.Headers, h)
	return s
}

// Len reports the number of header nodes.
func (s *Stack) Len() int { return len(s.Headers) }

// IPv4 returns the stack's IPv4 header, if any.
func (s *Stack) IPv4() *IPv4 {
	for _, h := range s.Headers {
		if ip, ok := h.(*IPv4); ok {
			return ip
		}
	}
	return nil
}

func protoOf(h Header) layers.IPProtocol {
	switch h.(type) {
	case *ICMP:
		return layers.IPProtocolICMPv4
	case *TCP:
		return layers.IPProtocolTCP
	case *UDP:
		return layers.IPProtocolUDP
	default:
		return 0
	}
}

func etherTypeOf(h Header) layers.EthernetType {
	switch h.(type) {
	case *ARP:
		return layers.EthernetTypeARP
	case *IPv4:
		return layers.EthernetTypeIPv4
	default:
		return 0
	}
}

// Pack runs the fix-up pass (proto/ethertype inference, length
// propagation, pseudo-header wiring) and the emit pass (wire-order
// serialization with checksums computed last), and copies the result
// into buf. It returns ErrTooSmall if buf cannot hold the frame.
func (s *Stack) Pack(buf []byte) (int, error) {
	if len(s.Headers) == 0 {
		return 0, ErrTooSmall
	}

	// Fix-up pass, innermost -> outermost: proto/ethertype inferred from
	// the header immediately before (closer to payload).
	ip4 := s.IPv4()
	for i := 1; i < len(s.Headers); i++ {
		switch h := s.Headers[i].(type) {
		case *IPv4:
			h.L.Protocol = protoOf(s.Headers[i-1])
		case *Ethernet:
			h.L.EthernetType = etherTypeOf(s.Headers[i-1])
		}
	}

	if ip4 != nil {
		for _, h := range s.Headers {
			switch t := h.(type) {
			case *TCP:
				if err := t.L.SetNetworkLayerForChecksum(&ip4.L); err != nil {
					return 0, err
				}
			case *UDP:
				if err := t.L.SetNetworkLayerForChecksum(&ip4.L); err != nil {
					return 0, err
				}
			}
		}
	}

	wire := make([]gopacket.SerializableLayer, len(s.Headers))
	for i, h := range s.Headers {
		wire[len(s.Headers)-1-i] = h.serializable()
	}

	out := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(out, opts, wire...); err != nil {
		return 0, err
	}

	written := out.Bytes()
	if len(written) > len(buf) {
		return 0, ErrTooSmall
	}
	n := copy(buf, written)
	return n, nil
}

// Unpack decodes a wire frame starting at Ethernet into a Stack ordered
// innermost-first, matching Build's construction order. ICMP
// destination-unreachable/source-quench/redirect/time-exceeded payloads
// (types 3/4/5/11) are decoded again as a nested IPv4 Stack.
func Unpack(data []byte) (*Stack, error) {
	return unpackFrom(data, layers.LayerTypeEthernet)
}

func unpackFrom(data []byte, first gopacket.LayerType) (*Stack, error) {
	packet := gopacket.NewPacket(data, first, gopacket.NoCopy)

	var outer []Header
	offset := 0
	for _, l := range packet.Layers() {
		switch v := l.(type) {
		case *layers.Ethernet:
			h := &Ethernet{L: *v}
			outer = append(outer, h)
		case *layers.ARP:
			h := &ARP{L: *v}
			outer = append(outer, h)
		case *layers.IPv4:
			h := &IPv4{L: *v}
			outer = append(outer, h)
		case *layers.ICMPv4:
			h := &ICMP{L: *v}
			if isICMPErrorType(v.TypeCode.Type()) {
				if nested, err := unpackFrom(v.LayerPayload(), layers.LayerTypeIPv4); err == nil {
					h.Inner = nested
				}
			}
			outer = append(outer, h)
		case *layers.UDP:
			h := &UDP{L: *v}
			outer = append(outer, h)
		case *layers.TCP:
			h := &TCP{L: *v}
			outer = append(outer, h)
		case *gopacket.Payload:
			h := &Raw{L: *v}
			outer = append(outer, h)
		default:
			// Unknown next-protocol: terminate the walk benignly.
		}
		offset += len(l.LayerContents())
	}

	if errLayer := packet.ErrorLayer(); errLayer != nil {
		if len(outer) == 0 {
			return nil, &MalformedError{Offset: offset, Reason: errLayer.Error()}
		}
		// Partial decode: keep what we got, matching "unknown
		// next-protocols terminate the walk benignly."
	}

	if len(outer) == 0 {
		return nil, &MalformedError{Offset: 0, Reason: "no headers decoded"}
	}

	// outer is wire-order (outermost first); Stack convention is
	// innermost-first.
	inner := make([]Header, len(outer))
	for i, h := range outer {
		inner[len(outer)-1-i] = h
	}
	return &Stack{Headers: inner}, nil
}

func isICMPErrorType(t uint8) bool {
	switch t {
	case 3, 4, 5, 11:
		return true
	default:
		return false
	}
}
