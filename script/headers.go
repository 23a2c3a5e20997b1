/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2025 The pktizr Authors. All Rights Reserved.
 */

// Package script is the bridge between the scan engine and a
// user-authored probe/reply script: an embedded Lua 5.1 VM
// (github.com/yuin/gopher-lua) constructing packets via IP()/TCP()/…
// constructors, matching replies against a cookie, and enqueuing
// outbound traffic.
//
// One Bridge — and its *lua.LState — is constructed per worker
// goroutine; script state is never shared between the generator and
// receiver, since the interpreter is not designed to be re-entrant
// (spec §9).
package script

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"

	"github.com/pktizr/pktizr/pkg/pkt"
)

const headerTypeName = "pktizr.header"

// wrapHeader boxes h as Lua userdata with the shared header metatable,
// so every Kind gets named-field access through the same
// __index/__newindex pair, delegating to pkt.Header.Get/Set.
func wrapHeader(L *lua.LState, h pkt.Header) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = h
	ud.Metatable = L.GetTypeMetatable(headerTypeName)
	return ud
}

func checkHeader(L *lua.LState, n int) pkt.Header {
	ud := L.CheckUserData(n)
	h, ok := ud.Value.(pkt.Header)
	if !ok {
		L.ArgError(n, "expected a pktizr header")
	}
	return h
}

// registerHeaderType installs the shared metatable used by every header
// constructor: __index/__newindex route through Header.Get/Set, raising
// a Lua error (ScriptRuntimeError) for an unknown field name.
func registerHeaderType(L *lua.LState) {
	mt := L.NewTypeMetatable(headerTypeName)
	L.SetField(mt, "__index", L.NewFunction(func(L *lua.LState) int {
		h := checkHeader(L, 1)
		field := L.CheckString(2)
		v, err := h.Get(field)
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		L.Push(goToLua(v))
		return 1
	}))
	L.SetField(mt, "__newindex", L.NewFunction(func(L *lua.LState) int {
		h := checkHeader(L, 1)
		field := L.CheckString(2)
		if err := h.Set(field, luaToGo(L.Get(3))); err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		return 0
	}))
	L.SetField(mt, "__tostring", L.NewFunction(func(L *lua.LState) int {
		h := checkHeader(L, 1)
		L.Push(lua.LString(fmt.Sprintf("pkt.%s", h.Kind())))
		return 1
	}))
}

// registerConstructors installs the IP/ICMP/UDP/TCP/Raw globals, each
// returning a fresh protocol-default header (spec §4.6).
func registerConstructors(L *lua.LState) {
	ctor := func(k pkt.Kind) lua.LGFunction {
		return func(L *lua.LState) int {
			h, err := pkt.Build(k)
			if err != nil {
				L.RaiseError("%s", err.Error())
				return 0
			}
			L.Push(wrapHeader(L, h))
			return 1
		}
	}
	L.SetGlobal("IP", L.NewFunction(ctor(pkt.KindIPv4)))
	L.SetGlobal("ICMP", L.NewFunction(ctor(pkt.KindICMP)))
	L.SetGlobal("UDP", L.NewFunction(ctor(pkt.KindUDP)))
	L.SetGlobal("TCP", L.NewFunction(ctor(pkt.KindTCP)))
	L.SetGlobal("Raw", L.NewFunction(ctor(pkt.KindRaw)))
}

// goToLua converts a pkt.Header.Get result (string, boolean, or one of
// the unsigned integer widths) to its Lua representation.
func goToLua(v any) lua.LValue {
	switch n := v.(type) {
	case string:
		return lua.LString(n)
	case bool:
		return lua.LBool(n)
	case uint8:
		return lua.LNumber(n)
	case uint16:
		return lua.LNumber(n)
	case uint32:
		return lua.LNumber(n)
	case uint64:
		return lua.LNumber(n)
	case int:
		return lua.LNumber(n)
	default:
		return lua.LNil
	}
}

// luaToGo widens a Lua value into the any Header.Set accepts (string,
// bool, or float64 — pkg/pkt's toUint16/toUint32/toBool helpers narrow
// from there).
func luaToGo(lv lua.LValue) any {
	switch v := lv.(type) {
	case lua.LString:
		return string(v)
	case lua.LBool:
		return bool(v)
	case lua.LNumber:
		return float64(v)
	default:
		return nil
	}
}
