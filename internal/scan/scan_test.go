/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2025 The pktizr Authors. All Rights Reserved.
 */

package scan

import (
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pktizr/pktizr/internal/driver/mock"
	"github.com/pktizr/pktizr/internal/ranges"
	"github.com/pktizr/pktizr/internal/status"
	"github.com/pktizr/pktizr/pkg/pkt"
)

const e2eScript = `
function loop(daddr, dport)
  local tcp = TCP()
  tcp.dport = dport
  tcp.sport = cookie16(get_addr(), daddr, 0, dport)
  tcp.syn = true
  tcp.seq = cookie32(get_addr(), daddr, 0, dport)

  local ip = IP()
  ip.src = get_addr()
  ip.dst = daddr

  return tcp, ip
end

function recv(pkts)
  local tcp = pkts[1]
  local ip = pkts[2]
  if tcp.ack ~= true then
    return false
  end
  return tcp.dport == cookie16(ip.dst, ip.src, 0, tcp.sport)
end
`

func writeTestScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "probe.lua")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func echoReply(localMAC, gatewayMAC net.HardwareAddr) func([]byte) [][]byte {
	return func(frame []byte) [][]byte {
		stack, err := pkt.Unpack(frame)
		if err != nil {
			return nil
		}
		var tcp *pkt.TCP
		var ip4 *pkt.IPv4
		for _, h := range stack.Headers {
			switch v := h.(type) {
			case *pkt.TCP:
				tcp = v
			case *pkt.IPv4:
				ip4 = v
			}
		}
		if tcp == nil || ip4 == nil {
			return nil
		}
		srcIP, _ := ip4.Get("src")
		dstIP, _ := ip4.Get("dst")
		srcPort, _ := tcp.Get("sport")
		dstPort, _ := tcp.Get("dport")

		replyTCP := pkt.BuildTCP()
		replyTCP.Set("sport", dstPort)
		replyTCP.Set("dport", srcPort)
		replyTCP.Set("syn", true)
		replyTCP.Set("ack", true)

		replyIP := pkt.BuildIPv4()
		replyIP.Set("src", dstIP)
		replyIP.Set("dst", srcIP)

		replyEth := pkt.BuildEthernet()
		replyEth.Set("src", gatewayMAC.String())
		replyEth.Set("dst", localMAC.String())

		s := pkt.NewStack(replyTCP, replyIP, replyEth)
		buf := make([]byte, 128)
		n, err := s.Pack(buf)
		if err != nil {
			return nil
		}
		return [][]byte{buf[:n]}
	}
}

// TestEndToEndCookieMatchedReplies mirrors spec scenario T-E1 at a
// smaller scale: every probe's SYN is echoed back as a SYN+ACK by a
// mocked driver, and recv() counts it as a reply iff the cookie round-
// trips, so every probe should be counted exactly once.
func TestEndToEndCookieMatchedReplies(t *testing.T) {
	scriptPath := writeTestScript(t, e2eScript)

	targets, err := ranges.ParseTargets("10.0.0.0/30", nil)
	if err != nil {
		t.Fatal(err)
	}
	ports, err := ranges.ParsePorts("80")
	if err != nil {
		t.Fatal(err)
	}

	localMAC, _ := net.ParseMAC("02:00:00:00:00:01")
	gatewayMAC, _ := net.ParseMAC("02:00:00:00:00:02")

	d := mock.New()
	d.Responder = echoReply(localMAC, gatewayMAC)

	s := New(targets, ports, 0xDEADBEEF, 1, false, 0)
	s.LocalAddr = net.ParseIP("10.0.0.100")
	s.LocalMAC = localMAC
	s.GatewayMAC = gatewayMAC
	s.Driver = d

	log := status.NewLogger(io.Discard, true)

	s.StartWorker() // generator
	s.StartWorker() // receiver
	go Generator(s, scriptPath, log)
	go Receiver(s, scriptPath, log)
	s.WaitReady()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if s.Counters.PktProbe.Load() == s.Total() && s.Counters.PktRecv.Load() == s.Total() {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	s.Stop.Store(true)
	s.Done.Store(true)
	s.WaitStopped()

	if got := s.Counters.PktProbe.Load(); got != s.Total() {
		t.Errorf("pkt_probe = %d, want %d", got, s.Total())
	}
	if got := len(d.TX()); uint64(got) != s.Total() {
		t.Errorf("frames transmitted = %d, want %d", got, s.Total())
	}
	if got := s.Counters.PktRecv.Load(); got != s.Total() {
		t.Errorf("pkt_recv = %d, want %d (every echoed reply should match its cookie)", got, s.Total())
	}
}
