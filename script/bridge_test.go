/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2025 The pktizr Authors. All Rights Reserved.
 */

package script

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pktizr/pktizr/internal/squeue"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "probe.lua")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func ipToU32(t *testing.T, s string) uint32 {
	t.Helper()
	v4 := net.ParseIP(s).To4()
	if v4 == nil {
		t.Fatalf("not an ipv4 address: %s", s)
	}
	return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3])
}

func TestLoopBuildsProbeWithCookie(t *testing.T) {
	path := writeScript(t, `
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
`)

	b, err := New(path, Config{
		LocalAddr: net.ParseIP("10.0.0.1"),
		Seed:      0xDEADBEEFCAFEBABE,
		Queue:     squeue.New(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	stack, err := b.Loop(ipToU32(t, "10.0.0.2"), 80)
	if err != nil {
		t.Fatalf("Loop: %v", err)
	}
	if stack.Len() != 3 {
		t.Fatalf("expected [TCP, IPv4, Ethernet], got %d headers", stack.Len())
	}
	if stack.Headers[0].Kind().String() != "tcp" {
		t.Errorf("headers[0] = %s, want tcp", stack.Headers[0].Kind())
	}
	if stack.Headers[1].Kind().String() != "ip4" {
		t.Errorf("headers[1] = %s, want ip4", stack.Headers[1].Kind())
	}
	if stack.Headers[2].Kind().String() != "eth" {
		t.Errorf("headers[2] = %s, want eth", stack.Headers[2].Kind())
	}

	dport, _ := stack.Headers[0].Get("dport")
	if dport != uint16(80) {
		t.Errorf("tcp.dport = %v, want 80", dport)
	}
}

func TestRecvCountsAckAsReply(t *testing.T) {
	path := writeScript(t, `
function loop(daddr, dport)
  return TCP()
end

function recv(pkts)
  for i = 1, #pkts do
    if pkts[i].ack == true then
      return true
    end
  end
  return false
end
`)

	b, err := New(path, Config{LocalAddr: net.ParseIP("10.0.0.1"), Queue: squeue.New()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()

	if !b.HasRecv() {
		t.Fatal("HasRecv() = false, want true")
	}

	stack, err := b.Loop(ipToU32(t, "10.0.0.2"), 80)
	if err != nil {
		t.Fatalf("Loop: %v", err)
	}
	stack.Headers[0].Set("ack", true)

	ok, err := b.Recv(stack)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if !ok {
		t.Error("Recv returned false, want true for an ACK packet")
	}
}

func TestMissingLoopIsLoadError(t *testing.T) {
	path := writeScript(t, `function recv(pkts) return false end`)
	if _, err := New(path, Config{LocalAddr: net.ParseIP("10.0.0.1")}); err == nil {
		t.Fatal("expected an error for a script with no loop()")
	}
}

func TestGetTimeCallableFromLoop(t *testing.T) {
	path := writeScript(t, `
function loop(daddr, dport)
  local r = Raw()
  r.payload = tostring(get_time())
  return r
end
`)
	b, err := New(path, Config{LocalAddr: net.ParseIP("10.0.0.1"), Start: time.Now(), Queue: squeue.New()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer b.Close()
	if _, err := b.Loop(ipToU32(t, "10.0.0.2"), 1); err != nil {
		t.Fatalf("Loop: %v", err)
	}
}
