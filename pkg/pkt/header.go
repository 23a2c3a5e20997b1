/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2025 The pktizr Authors. All Rights Reserved.
 */

package pkt

import (
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Header is one node of a Stack. Field access by name mirrors the script
// bridge's field table (spec §4.6) so the same Get/Set machinery backs
// both Go callers and the embedded-Lua callers in package script.
type Header interface {
	Kind() Kind
	// Length reports the header's own octet length as it would appear on
	// the wire, excluding any inner headers or payload.
	Length() int
	Get(field string) (any, error)
	Set(field string, v any) error

	serializable() gopacket.SerializableLayer
}

// ErrUnknownField is returned by Get/Set for a field name the header
// variant does not recognize — the "invalid field names raise a script
// error" case of spec §4.6.
type ErrUnknownField struct {
	Kind  Kind
	Field string
}

func (e *ErrUnknownField) Error() string {
	return fmt.Sprintf("pkt: %s has no field %q", e.Kind, e.Field)
}

// ---- Ethernet --------------------------------------------------------

type Ethernet struct{ L layers.Ethernet }

func BuildEthernet() *Ethernet {
	return &Ethernet{layers.Ethernet{EthernetType: layers.EthernetTypeIPv4}}
}

func (h *Ethernet) Kind() Kind    { return KindEthernet }
func (h *Ethernet) Length() int   { return 14 }
func (h *Ethernet) serializable() gopacket.SerializableLayer { return &h.L }

func (h *Ethernet) Get(field string) (any, error) {
	switch field {
	case "src":
		return h.L.SrcMAC.String(), nil
	case "dst":
		return h.L.DstMAC.String(), nil
	case "type":
		return uint16(h.L.EthernetType), nil
	}
	return nil, &ErrUnknownField{KindEthernet, field}
}

func (h *Ethernet) Set(field string, v any) error {
	switch field {
	case "src":
		mac, err := parseMAC(v)
		if err != nil {
			return err
		}
		h.L.SrcMAC = mac
		return nil
	case "dst":
		mac, err := parseMAC(v)
		if err != nil {
			return err
		}
		h.L.DstMAC = mac
		return nil
	case "type":
		h.L.EthernetType = layers.EthernetType(toUint16(v))
		return nil
	}
	return &ErrUnknownField{KindEthernet, field}
}

func parseMAC(v any) (net.HardwareAddr, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("pkt: mac field expects a string")
	}
	mac, err := net.ParseMAC(s)
	if err != nil {
		return nil, fmt.Errorf("pkt: invalid mac %q: %w", s, err)
	}
	return mac, nil
}

// ---- ARP ---------------------------------------------------------------

type ARP struct{ L layers.ARP }

func BuildARP() *ARP {
	return &ARP{layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   make([]byte, 6),
		SourceProtAddress: make([]byte, 4),
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    make([]byte, 4),
	}}
}

func (h *ARP) Kind() Kind  { return KindARP }
func (h *ARP) Length() int { return 8 + 2*int(h.L.HwAddressSize) + 2*int(h.L.ProtAddressSize) }
func (h *ARP) serializable() gopacket.SerializableLayer { return &h.L }

func (h *ARP) Get(field string) (any, error) {
	switch field {
	case "opcode":
		return uint16(h.L.Operation), nil
	case "hwtype":
		return uint16(h.L.AddrType), nil
	case "ptype":
		return uint16(h.L.Protocol), nil
	case "hwsrc":
		return net.HardwareAddr(h.L.SourceHwAddress).String(), nil
	case "hwdst":
		return net.HardwareAddr(h.L.DstHwAddress).String(), nil
	case "psrc":
		return net.IP(h.L.SourceProtAddress).String(), nil
	case "pdst":
		return net.IP(h.L.DstProtAddress).String(), nil
	}
	return nil, &ErrUnknownField{KindARP, field}
}

func (h *ARP) Set(field string, v any) error {
	switch field {
	case "opcode":
		h.L.Operation = uint16(toUint16(v))
		return nil
	case "hwsrc":
		mac, err := parseMAC(v)
		if err != nil {
			return err
		}
		h.L.SourceHwAddress = mac
		return nil
	case "hwdst":
		mac, err := parseMAC(v)
		if err != nil {
			return err
		}
		h.L.DstHwAddress = mac
		return nil
	case "psrc":
		ip, err := parseIPv4(v)
		if err != nil {
			return err
		}
		h.L.SourceProtAddress = ip
		return nil
	case "pdst":
		ip, err := parseIPv4(v)
		if err != nil {
			return err
		}
		h.L.DstProtAddress = ip
		return nil
	}
	return &ErrUnknownField{KindARP, field}
}

func parseIPv4(v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("pkt: ip field expects a string")
	}
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, fmt.Errorf("pkt: invalid ipv4 address %q", s)
	}
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("pkt: %q is not an ipv4 address", s)
	}
	return []byte(ip4), nil
}

// ---- IPv4 ----------------------------------------------------------------

type IPv4 struct{ L layers.IPv4 }

func BuildIPv4() *IPv4 {
	return &IPv4{layers.IPv4{
		Version: 4,
		IHL:     5,
		TTL:     64,
	}}
}

func (h *IPv4) Kind() Kind  { return KindIPv4 }
func (h *IPv4) Length() int { return int(h.L.IHL) * 4 }
func (h *IPv4) serializable() gopacket.SerializableLayer { return &h.L }

func (h *IPv4) Get(field string) (any, error) {
	switch field {
	case "version":
		return uint8(h.L.Version), nil
	case "ihl":
		return uint8(h.L.IHL), nil
	case "tos":
		return uint8(h.L.TOS), nil
	case "len":
		return uint16(h.L.Length), nil
	case "id":
		return uint16(h.L.Id), nil
	case "frag":
		return fragField(h.L.Flags, h.L.FragOffset), nil
	case "ttl":
		return uint8(h.L.TTL), nil
	case "proto":
		return uint8(h.L.Protocol), nil
	case "chksum":
		return uint16(h.L.Checksum), nil
	case "src":
		return h.L.SrcIP.String(), nil
	case "dst":
		return h.L.DstIP.String(), nil
	}
	return nil, &ErrUnknownField{KindIPv4, field}
}

func fragField(flags layers.IPv4Flag, off uint16) uint16 {
	return uint16(flags)<<13 | (off & 0x1fff)
}

func (h *IPv4) Set(field string, v any) error {
	switch field {
	case "version":
		h.L.Version = uint8(toUint16(v))
	case "ihl":
		h.L.IHL = uint8(toUint16(v))
	case "tos":
		h.L.TOS = uint8(toUint16(v))
	case "len":
		h.L.Length = toUint16(v)
	case "id":
		h.L.Id = toUint16(v)
	case "frag":
		f := toUint16(v)
		h.L.Flags = layers.IPv4Flag(f >> 13)
		h.L.FragOffset = f & 0x1fff
	case "ttl":
		h.L.TTL = uint8(toUint16(v))
	case "proto":
		h.L.Protocol = layers.IPProtocol(toUint16(v))
	case "chksum":
		h.L.Checksum = toUint16(v)
	case "src":
		ip, err := parseIPv4(v)
		if err != nil {
			return err
		}
		h.L.SrcIP = net.IP(ip)
	case "dst":
		ip, err := parseIPv4(v)
		if err != nil {
			return err
		}
		h.L.DstIP = net.IP(ip)
	default:
		return &ErrUnknownField{KindIPv4, field}
	}
	return nil
}

// ---- ICMP ------------------------------------------------------------------

type ICMP struct {
	L layers.ICMPv4
	// Inner carries the nested IPv4-in-ICMP stack produced when
	// unpacking an ICMP type in {3,4,5,11} per spec §4.1.
	Inner *Stack
}

func BuildICMP() *ICMP {
	return &ICMP{L: layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0)}}
}

func (h *ICMP) Kind() Kind  { return KindICMP }
func (h *ICMP) Length() int { return 8 }
func (h *ICMP) serializable() gopacket.SerializableLayer { return &h.L }

func (h *ICMP) Get(field string) (any, error) {
	switch field {
	case "type":
		return uint8(h.L.TypeCode.Type()), nil
	case "code":
		return uint8(h.L.TypeCode.Code()), nil
	case "chksum":
		return uint16(h.L.Checksum), nil
	case "id":
		return uint16(h.L.Id), nil
	case "seq":
		return uint16(h.L.Seq), nil
	}
	return nil, &ErrUnknownField{KindICMP, field}
}

func (h *ICMP) Set(field string, v any) error {
	switch field {
	case "type":
		h.L.TypeCode = layers.CreateICMPv4TypeCode(uint8(toUint16(v)), h.L.TypeCode.Code())
	case "code":
		h.L.TypeCode = layers.CreateICMPv4TypeCode(h.L.TypeCode.Type(), uint8(toUint16(v)))
	case "chksum":
		h.L.Checksum = toUint16(v)
	case "id":
		h.L.Id = toUint16(v)
	case "seq":
		h.L.Seq = toUint16(v)
	default:
		return &ErrUnknownField{KindICMP, field}
	}
	return nil
}

// ---- UDP -------------------------------------------------------------------

type UDP struct{ L layers.UDP }

func BuildUDP() *UDP { return &UDP{layers.UDP{}} }

func (h *UDP) Kind() Kind  { return KindUDP }
func (h *UDP) Length() int { return 8 }
func (h *UDP) serializable() gopacket.SerializableLayer { return &h.L }

func (h *UDP) Get(field string) (any, error) {
	switch field {
	case "sport":
		return uint16(h.L.SrcPort), nil
	case "dport":
		return uint16(h.L.DstPort), nil
	case "len":
		return uint16(h.L.Length), nil
	case "chksum":
		return uint16(h.L.Checksum), nil
	}
	return nil, &ErrUnknownField{KindUDP, field}
}

func (h *UDP) Set(field string, v any) error {
	switch field {
	case "sport":
		h.L.SrcPort = layers.UDPPort(toUint16(v))
	case "dport":
		h.L.DstPort = layers.UDPPort(toUint16(v))
	case "len":
		h.L.Length = toUint16(v)
	case "chksum":
		h.L.Checksum = toUint16(v)
	default:
		return &ErrUnknownField{KindUDP, field}
	}
	return nil
}

// ---- TCP -------------------------------------------------------------------

type TCP struct{ L layers.TCP }

func BuildTCP() *TCP {
	return &TCP{layers.TCP{DataOffset: 5, Window: 5840}}
}

func (h *TCP) Kind() Kind  { return KindTCP }
func (h *TCP) Length() int { return int(h.L.DataOffset) * 4 }
func (h *TCP) serializable() gopacket.SerializableLayer { return &h.L }

func (h *TCP) Get(field string) (any, error) {
	switch field {
	case "sport":
		return uint16(h.L.SrcPort), nil
	case "dport":
		return uint16(h.L.DstPort), nil
	case "seq":
		return h.L.Seq, nil
	case "ack_seq":
		return h.L.Ack, nil
	case "doff":
		return uint8(h.L.DataOffset), nil
	case "fin":
		return h.L.FIN, nil
	case "syn":
		return h.L.SYN, nil
	case "rst":
		return h.L.RST, nil
	case "psh":
		return h.L.PSH, nil
	case "ack":
		return h.L.ACK, nil
	case "urg":
		return h.L.URG, nil
	case "ece":
		return h.L.ECE, nil
	case "cwr":
		return h.L.CWR, nil
	case "ns":
		return h.L.NS, nil
	case "window":
		return uint16(h.L.Window), nil
	case "chksum":
		return uint16(h.L.Checksum), nil
	case "urg_ptr":
		return uint16(h.L.Urgent), nil
	}
	return nil, &ErrUnknownField{KindTCP, field}
}

func (h *TCP) Set(field string, v any) error {
	switch field {
	case "sport":
		h.L.SrcPort = layers.TCPPort(toUint16(v))
	case "dport":
		h.L.DstPort = layers.TCPPort(toUint16(v))
	case "seq":
		h.L.Seq = toUint32(v)
	case "ack_seq":
		h.L.Ack = toUint32(v)
	case "doff":
		h.L.DataOffset = uint8(toUint16(v))
	case "fin":
		h.L.FIN = toBool(v)
	case "syn":
		h.L.SYN = toBool(v)
	case "rst":
		h.L.RST = toBool(v)
	case "psh":
		h.L.PSH = toBool(v)
	case "ack":
		h.L.ACK = toBool(v)
	case "urg":
		h.L.URG = toBool(v)
	case "ece":
		h.L.ECE = toBool(v)
	case "cwr":
		h.L.CWR = toBool(v)
	case "ns":
		h.L.NS = toBool(v)
	case "window":
		h.L.Window = toUint16(v)
	case "chksum":
		h.L.Checksum = toUint16(v)
	case "urg_ptr":
		h.L.Urgent = toUint16(v)
	default:
		return &ErrUnknownField{KindTCP, field}
	}
	return nil
}

// ---- Raw -------------------------------------------------------------------

type Raw struct{ L gopacket.Payload }

func BuildRaw() *Raw { return &Raw{} }

func (h *Raw) Kind() Kind  { return KindRaw }
func (h *Raw) Length() int { return len(h.L) }
func (h *Raw) serializable() gopacket.SerializableLayer { return h.L }

func (h *Raw) Get(field string) (any, error) {
	if field == "payload" {
		return string(h.L), nil
	}
	return nil, &ErrUnknownField{KindRaw, field}
}

func (h *Raw) Set(field string, v any) error {
	if field != "payload" {
		return &ErrUnknownField{KindRaw, field}
	}
	switch p := v.(type) {
	case string:
		h.L = gopacket.Payload(p)
	case []byte:
		h.L = gopacket.Payload(p)
	default:
		return fmt.Errorf("pkt: payload field expects a string or []byte")
	}
	return nil
}

// ---- small conversion helpers, shared by the Lua bridge in package script --

func toUint16(v any) uint16 {
	switch n := v.(type) {
	case uint16:
		return n
	case uint32:
		return uint16(n)
	case uint64:
		return uint16(n)
	case int:
		return uint16(n)
	case int64:
		return uint16(n)
	case float64:
		return uint16(n)
	case uint8:
		return uint16(n)
	case bool:
		if n {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func toUint32(v any) uint32 {
	switch n := v.(type) {
	case uint32:
		return n
	case uint64:
		return uint32(n)
	case int:
		return uint32(n)
	case int64:
		return uint32(n)
	case float64:
		return uint32(n)
	default:
		return 0
	}
}

func toBool(v any) bool {
	switch n := v.(type) {
	case bool:
		return n
	case float64:
		return n != 0
	case int:
		return n != 0
	default:
		return false
	}
}
