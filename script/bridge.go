/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2025 The pktizr Authors. All Rights Reserved.
 */

package script

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/pktizr/pktizr/internal/ranges"
	"github.com/pktizr/pktizr/internal/squeue"
	"github.com/pktizr/pktizr/pkg/pkt"
)

// ErrNoLoop is a ScriptLoadError: every script must define
// loop(daddr, dport).
var ErrNoLoop = errors.New("script: does not define loop(daddr, dport)")

// Config carries the per-worker context a Bridge needs that isn't part
// of the script itself: addressing for the Ethernet header send()
// appends, the cookie seed, the outbound queue replies are enqueued on,
// and the scan's monotonic clock origin.
type Config struct {
	LocalAddr  net.IP
	LocalMAC   net.HardwareAddr
	GatewayMAC net.HardwareAddr
	Seed       uint64
	Queue      *squeue.Queue
	Start      time.Time
	Out        io.Writer
}

// Bridge owns one *lua.LState and the script loaded into it. Bridges are
// not safe for concurrent use — each worker goroutine (generator,
// receiver) constructs its own.
type Bridge struct {
	L   *lua.LState
	cfg Config
}

// New loads path into a fresh Lua state, registers the bridge surface
// (spec §4.6), and verifies the script defines loop. Returns a
// ScriptLoadError-shaped error on any failure, per spec §7.
func New(path string, cfg Config) (*Bridge, error) {
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	L := lua.NewState()
	b := &Bridge{L: L, cfg: cfg}

	registerHeaderType(L)
	registerConstructors(L)
	b.registerBuiltins()

	if err := L.DoFile(path); err != nil {
		L.Close()
		return nil, fmt.Errorf("script: load %s: %w", path, err)
	}
	if _, ok := L.GetGlobal("loop").(*lua.LFunction); !ok {
		L.Close()
		return nil, fmt.Errorf("%w: %s", ErrNoLoop, path)
	}
	return b, nil
}

// Close releases the Lua state. Idempotent is not required: callers
// call it exactly once via defer.
func (b *Bridge) Close() {
	b.L.Close()
}

// HasRecv reports whether the script defines the optional recv(pkts).
func (b *Bridge) HasRecv() bool {
	_, ok := b.L.GetGlobal("recv").(*lua.LFunction)
	return ok
}

// Loop invokes the script's loop(daddr, dport) and assembles its
// returned headers (innermost first, matching Stack convention) plus an
// appended Ethernet header into the probe to transmit.
func (b *Bridge) Loop(daddr, dport uint32) (*pkt.Stack, error) {
	fn := b.L.GetGlobal("loop")
	rets, err := b.call(fn, lua.LString(ranges.Uint32ToIP(daddr).String()), lua.LNumber(dport))
	if err != nil {
		return nil, fmt.Errorf("script: loop: %w", err)
	}
	return b.assembleStack(rets)
}

// Recv invokes the script's recv(pkts) with the captured stack's headers
// as a 1-indexed Lua array, and reports whether it counted as a reply.
func (b *Bridge) Recv(stack *pkt.Stack) (bool, error) {
	fn := b.L.GetGlobal("recv")
	if _, ok := fn.(*lua.LFunction); !ok {
		return false, nil
	}

	tbl := b.L.NewTable()
	for i, h := range stack.Headers {
		tbl.RawSetInt(i+1, wrapHeader(b.L, h))
	}

	rets, err := b.call(fn, tbl)
	if err != nil {
		return false, fmt.Errorf("script: recv: %w", err)
	}
	if len(rets) == 0 {
		return false, nil
	}
	return lua.LVAsBool(rets[0]), nil
}

// assembleStack converts loop's Lua return values into a Stack and
// appends the Ethernet header send() would, per spec §4.2's "send the
// returned packet."
func (b *Bridge) assembleStack(rets []lua.LValue) (*pkt.Stack, error) {
	headers := make([]pkt.Header, 0, len(rets)+1)
	for i, v := range rets {
		ud, ok := v.(*lua.LUserData)
		if !ok {
			return nil, fmt.Errorf("script: loop return #%d is not a packet header", i+1)
		}
		h, ok := ud.Value.(pkt.Header)
		if !ok {
			return nil, fmt.Errorf("script: loop return #%d is not a packet header", i+1)
		}
		headers = append(headers, h)
	}
	if len(headers) == 0 {
		return nil, fmt.Errorf("script: loop returned no headers")
	}

	eth := pkt.BuildEthernet()
	if b.cfg.LocalMAC != nil {
		_ = eth.Set("src", b.cfg.LocalMAC.String())
	}
	if b.cfg.GatewayMAC != nil {
		_ = eth.Set("dst", b.cfg.GatewayMAC.String())
	}
	headers = append(headers, eth)

	return pkt.NewStack(headers...), nil
}

// call invokes fn with args, collecting every returned value (MultRet)
// regardless of arity.
func (b *Bridge) call(fn lua.LValue, args ...lua.LValue) ([]lua.LValue, error) {
	L := b.L
	base := L.GetTop()
	if err := L.CallByParam(lua.P{Fn: fn, NRet: lua.MultRet, Protect: true}, args...); err != nil {
		return nil, err
	}
	n := L.GetTop() - base
	rets := make([]lua.LValue, n)
	for i := 0; i < n; i++ {
		rets[i] = L.Get(base + i + 1)
	}
	L.Pop(n)
	return rets, nil
}
