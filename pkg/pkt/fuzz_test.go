/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2025 The pktizr Authors. All Rights Reserved.
 */

package pkt

import "testing"

// FuzzUnpack mirrors the upstream project's pkt fuzzer: Unpack must never
// panic on arbitrary byte slices, decoding truncated or garbage frames
// into either a partial Stack or a MalformedError.
func FuzzUnpack(f *testing.F) {
	seed := buildSeedFrame(f)
	f.Add(seed)
	f.Add([]byte{})
	f.Add([]byte{0x00})
	f.Add(make([]byte, 14))

	f.Fuzz(func(t *testing.T, data []byte) {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("Unpack panicked on %d bytes: %v", len(data), r)
			}
		}()
		_, _ = Unpack(data)
	})
}

func buildSeedFrame(f *testing.F) []byte {
	f.Helper()
	eth := BuildEthernet()
	eth.Set("src", "02:00:00:00:00:01")
	eth.Set("dst", "02:00:00:00:00:02")
	ip := BuildIPv4()
	ip.Set("src", "192.0.2.1")
	ip.Set("dst", "192.0.2.2")
	icmp := BuildICMP()
	s := NewStack(icmp, ip, eth)
	buf := make([]byte, 256)
	n, err := s.Pack(buf)
	if err != nil {
		f.Fatal(err)
	}
	return buf[:n]
}
