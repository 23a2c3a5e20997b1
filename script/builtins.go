/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2025 The pktizr Authors. All Rights Reserved.
 */

package script

import (
	"fmt"
	"net"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/pktizr/pktizr/internal/cookie"
)

// registerBuiltins installs the non-constructor half of the bridge
// surface (spec §4.6): the cookie function, send(), and the small
// environment callables (get_time, get_addr, print).
func (b *Bridge) registerBuiltins() {
	L := b.L

	L.SetGlobal("cookie16", L.NewFunction(b.luaCookie16))
	L.SetGlobal("cookie32", L.NewFunction(b.luaCookie32))
	L.SetGlobal("send", L.NewFunction(b.luaSend))
	L.SetGlobal("get_time", L.NewFunction(b.luaGetTime))
	L.SetGlobal("get_addr", L.NewFunction(b.luaGetAddr))
	L.SetGlobal("print", L.NewFunction(b.luaPrint))
}

func parseCookieArgs(L *lua.LState) (saddr, daddr uint32, sport, dport uint16) {
	saddr = ip4ToUint32(L.CheckString(1))
	daddr = ip4ToUint32(L.CheckString(2))
	sport = uint16(L.CheckNumber(3))
	dport = uint16(L.CheckNumber(4))
	return
}

func (b *Bridge) luaCookie16(L *lua.LState) int {
	saddr, daddr, sport, dport := parseCookieArgs(L)
	L.Push(lua.LNumber(cookie.Cookie16(saddr, daddr, sport, dport, b.cfg.Seed)))
	return 1
}

func (b *Bridge) luaCookie32(L *lua.LState) int {
	saddr, daddr, sport, dport := parseCookieArgs(L)
	L.Push(lua.LNumber(cookie.Cookie32(saddr, daddr, sport, dport, b.cfg.Seed)))
	return 1
}

// luaSend implements the script-callable send(pkt...): it appends an
// Ethernet header (src=local_mac, dst=gateway_mac) to the given headers
// and enqueues the stack for transmission. Unlike loop's return value,
// which the generator sends directly, send() goes through the MP-SC
// queue since it may be called from the receiver goroutine's recv().
func (b *Bridge) luaSend(L *lua.LState) int {
	n := L.GetTop()
	rets := make([]lua.LValue, n)
	for i := 1; i <= n; i++ {
		rets[i-1] = L.Get(i)
	}
	stack, err := b.assembleStack(rets)
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	if b.cfg.Queue != nil {
		b.cfg.Queue.Enqueue(stack)
	}
	return 0
}

func (b *Bridge) luaGetTime(L *lua.LState) int {
	L.Push(lua.LNumber(time.Since(b.cfg.Start).Seconds()))
	return 1
}

func (b *Bridge) luaGetAddr(L *lua.LState) int {
	L.Push(lua.LString(b.cfg.LocalAddr.String()))
	return 1
}

// luaPrint implements print(fmt, ...): the format string is passed
// through Lua's own string.format (so %d/%s/%x directives behave exactly
// as the script author expects) and the result is written to stdout.
func (b *Bridge) luaPrint(L *lua.LState) int {
	n := L.GetTop()
	if n == 0 {
		fmt.Fprintln(b.cfg.Out)
		return 0
	}

	formatFn := L.GetGlobal("string").(*lua.LTable).RawGetString("format")
	args := make([]lua.LValue, n)
	for i := 1; i <= n; i++ {
		args[i-1] = L.Get(i)
	}
	rets, err := b.call(formatFn, args...)
	if err != nil || len(rets) == 0 {
		fmt.Fprintln(b.cfg.Out, lua.LVAsString(args[0]))
		return 0
	}
	fmt.Fprintln(b.cfg.Out, lua.LVAsString(rets[0]))
	return 0
}

func ip4ToUint32(s string) uint32 {
	ip := net.ParseIP(s)
	if ip == nil {
		return 0
	}
	v4 := ip.To4()
	if v4 == nil {
		return 0
	}
	return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3])
}
