/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2025 The pktizr Authors. All Rights Reserved.
 */

// Package route picks the egress interface, local address, and gateway
// address for a scan by parsing /proc/net/route the way `ip route get`
// would — a minimal, dependency-free default implementation of the
// out-of-core-scope routing-table collaborator named in §6.
package route

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
)

// ErrNoRoute is returned when no usable default route is found.
var ErrNoRoute = errors.New("route: no default route")

// Info describes the chosen egress path for a scan.
type Info struct {
	Interface string
	LocalAddr net.IP
	LocalMAC  net.HardwareAddr
	Gateway   net.IP
}

// Default inspects /proc/net/route for the lowest-metric default route
// (destination 0.0.0.0) and resolves the corresponding interface's first
// IPv4 address and hardware address.
func Default() (*Info, error) {
	f, err := os.Open("/proc/net/route")
	if err != nil {
		return nil, fmt.Errorf("route: %w", err)
	}
	defer f.Close()

	iface, gateway, err := bestDefaultRoute(f)
	if err != nil {
		return nil, err
	}

	return resolve(iface, gateway)
}

func bestDefaultRoute(f *os.File) (iface string, gateway uint32, err error) {
	sc := bufio.NewScanner(f)
	sc.Scan() // header line

	bestMetric := -1
	found := false
	for sc.Scan() {
		var name, destHex, gwHex, flagsHex, metricDec, maskHex string
		fields := splitFields(sc.Text())
		if len(fields) < 8 {
			continue
		}
		name, destHex, gwHex, flagsHex = fields[0], fields[1], fields[2], fields[3]
		metricDec, maskHex = fields[6], fields[7]

		dest, perr := strconv.ParseUint(destHex, 16, 32)
		if perr != nil || dest != 0 {
			continue // only the default route (destination 0.0.0.0)
		}
		mask, perr := strconv.ParseUint(maskHex, 16, 32)
		if perr != nil || mask != 0 {
			continue
		}
		flags, perr := strconv.ParseUint(flagsHex, 16, 32)
		if perr != nil || flags&0x2 == 0 { // RTF_GATEWAY
			continue
		}
		metric, _ := strconv.Atoi(metricDec)
		gw, perr := strconv.ParseUint(gwHex, 16, 32)
		if perr != nil {
			continue
		}

		if !found || metric < bestMetric {
			found = true
			bestMetric = metric
			iface = name
			gateway = uint32(gw)
		}
	}
	if !found {
		return "", 0, ErrNoRoute
	}
	return iface, gateway, nil
}

func splitFields(line string) []string {
	var fields []string
	start := -1
	for i, r := range line {
		if r == '\t' || r == ' ' {
			if start >= 0 {
				fields = append(fields, line[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		fields = append(fields, line[start:])
	}
	return fields
}

func resolve(ifaceName string, gatewayLE uint32) (*Info, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, fmt.Errorf("route: %w", err)
	}
	addrs, err := iface.Addrs()
	if err != nil {
		return nil, fmt.Errorf("route: %w", err)
	}
	var local net.IP
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if v4 := ipnet.IP.To4(); v4 != nil {
			local = v4
			break
		}
	}
	if local == nil {
		return nil, fmt.Errorf("route: interface %s has no IPv4 address", ifaceName)
	}

	// /proc/net/route stores the gateway in host byte order on
	// little-endian kernels (the field is a raw in_addr): byte-swap
	// back to network order for a conventional dotted-quad.
	gw := net.IPv4(byte(gatewayLE), byte(gatewayLE>>8), byte(gatewayLE>>16), byte(gatewayLE>>24))

	return &Info{
		Interface: ifaceName,
		LocalAddr: local,
		LocalMAC:  iface.HardwareAddr,
		Gateway:   gw,
	}, nil
}
