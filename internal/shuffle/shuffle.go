/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2025 The pktizr Authors. All Rights Reserved.
 */

// Package shuffle implements a seeded bijective permutation of [0, range)
// used to randomize probe order without materializing a shuffled index
// table. It is a 4-round generalized Feistel cipher over Z_a x Z_b (a*b >=
// range) with an S-box round function, restricted to [0, range) by
// cycle-walking.
package shuffle

// sbox is a fixed 256-entry substitution table; values are a permutation
// of 0..255 so the round function stays well-mixed.
var sbox = [256]byte{
	0x63, 0x7c, 0x77, 0x7b, 0xf2, 0x6b, 0x6f, 0xc5, 0x30, 0x01, 0x67, 0x2b, 0xfe, 0xd7, 0xab, 0x76,
	0xca, 0x82, 0xc9, 0x7d, 0xfa, 0x59, 0x47, 0xf0, 0xad, 0xd4, 0xa2, 0xaf, 0x9c, 0xa4, 0x72, 0xc0,
	0xb7, 0xfd, 0x93, 0x26, 0x36, 0x3f, 0xf7, 0xcc, 0x34, 0xa5, 0xe5, 0xf1, 0x71, 0xd8, 0x31, 0x15,
	0x04, 0xc7, 0x23, 0xc3, 0x18, 0x96, 0x05, 0x9a, 0x07, 0x12, 0x80, 0xe2, 0xeb, 0x27, 0xb2, 0x75,
	0x09, 0x83, 0x2c, 0x1a, 0x1b, 0x6e, 0x5a, 0xa0, 0x52, 0x3b, 0xd6, 0xb3, 0x29, 0xe3, 0x2f, 0x84,
	0x53, 0xd1, 0x00, 0xed, 0x20, 0xfc, 0xb1, 0x5b, 0x6a, 0xcb, 0xbe, 0x39, 0x4a, 0x4c, 0x58, 0xcf,
	0xd0, 0xef, 0xaa, 0xfb, 0x43, 0x4d, 0x33, 0x85, 0x45, 0xf9, 0x02, 0x7f, 0x50, 0x3c, 0x9f, 0xa8,
	0x51, 0xa3, 0x40, 0x8f, 0x92, 0x9d, 0x38, 0xf5, 0xbc, 0xb6, 0xda, 0x21, 0x10, 0xff, 0xf3, 0xd2,
	0xcd, 0x0c, 0x13, 0xec, 0x5f, 0x97, 0x44, 0x17, 0xc4, 0xa7, 0x7e, 0x3d, 0x64, 0x5d, 0x19, 0x73,
	0x60, 0x81, 0x4f, 0xdc, 0x22, 0x2a, 0x90, 0x88, 0x46, 0xee, 0xb8, 0x14, 0xde, 0x5e, 0x0b, 0xdb,
	0xe0, 0x32, 0x3a, 0x0a, 0x49, 0x06, 0x24, 0x5c, 0xc2, 0xd3, 0xac, 0x62, 0x91, 0x95, 0xe4, 0x79,
	0xe7, 0xc8, 0x37, 0x6d, 0x8d, 0xd5, 0x4e, 0xa9, 0x6c, 0x56, 0xf4, 0xea, 0x65, 0x7a, 0xae, 0x08,
	0xba, 0x78, 0x25, 0x2e, 0x1c, 0xa6, 0xb4, 0xc6, 0xe8, 0xdd, 0x74, 0x1f, 0x4b, 0xbd, 0x8b, 0x8a,
	0x70, 0x3e, 0xb5, 0x66, 0x48, 0x03, 0xf6, 0x0e, 0x61, 0x35, 0x57, 0xb9, 0x86, 0xc1, 0x1d, 0x9e,
	0xe1, 0xf8, 0x98, 0x11, 0x69, 0xd9, 0x8e, 0x94, 0x9b, 0x1e, 0x87, 0xe9, 0xce, 0x55, 0x28, 0xdf,
	0x8c, 0xa1, 0x89, 0x0d, 0xbf, 0xe6, 0x42, 0x68, 0x41, 0x99, 0x2d, 0x0f, 0xb0, 0x54, 0xbb, 0x16,
}

const rounds = 4

// State holds the two-factor rectangle decomposition of a range, keyed
// by seed, that Shuffle/Unshuffle operate over.
type State struct {
	A, B  uint64
	Range uint64
	Seed  uint64
}

// New picks a,b such that a <= sqrt(rng) <= b and a*b >= rng, and returns
// a State ready for Shuffle/Unshuffle.
func New(rng uint64, seed uint64) *State {
	if rng == 0 {
		return &State{A: 1, B: 1, Range: 0, Seed: seed}
	}
	a := isqrt(rng)
	if a == 0 {
		a = 1
	}
	b := a
	for a*b < rng {
		b++
	}
	return &State{A: a, B: b, Range: rng, Seed: seed}
}

func isqrt(n uint64) uint64 {
	if n == 0 {
		return 0
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}

// roundF mixes the round index, the seed, and the fixed half x (a
// uint64 in [0, modulus)) through the S-box, folding the result into
// [0, mod).
func roundF(j int, x uint64, seed uint64, mod uint64) uint64 {
	mix := x ^ seed ^ (uint64(j+1) * 0x9e3779b97f4a7c15)
	rot := byte(seed>>(8*uint(j%8))) ^ byte(j*0x2f)
	var acc uint64
	for i := 0; i < 8; i++ {
		b := byte(mix >> (8 * i))
		s := sbox[b]
		s = rotl8(s, rot)
		acc = acc<<8 | uint64(s)
	}
	return acc % mod
}

func rotl8(v, n byte) byte {
	n &= 7
	return (v << n) | (v >> (8 - n))
}

// encrypt runs the 4-round alternating Feistel network (without
// cycle-walking) over the Z_a x Z_b rectangle, representing i as
// (l, r) = (i % A, i / A). Even rounds update r using l as the key
// material; odd rounds update l using r. Because each round only
// modifies one side by an addition modulo that side's size — holding the
// other side fixed as key material — every round is individually
// invertible, and so is their composition.
func (s *State) encrypt(i uint64) uint64 {
	l := i % s.A
	r := i / s.A
	for j := 0; j < rounds; j++ {
		if j%2 == 0 {
			r = (r + roundF(j, l, s.Seed, s.B)) % s.B
		} else {
			l = (l + roundF(j, r, s.Seed, s.A)) % s.A
		}
	}
	return r*s.A + l
}

// decrypt is encrypt's exact inverse: same rounds, run in reverse order,
// subtracting instead of adding.
func (s *State) decrypt(v uint64) uint64 {
	l := v % s.A
	r := v / s.A
	for j := rounds - 1; j >= 0; j-- {
		if j%2 == 0 {
			r = (r - roundF(j, l, s.Seed, s.B) + s.B) % s.B
		} else {
			l = (l - roundF(j, r, s.Seed, s.A) + s.A) % s.A
		}
	}
	return r*s.A + l
}

// Shuffle maps i in [0, Range) to its permuted slot, also in [0, Range),
// via cycle-walking over the (A*B)-sized rectangle.
func (s *State) Shuffle(i uint64) uint64 {
	if s.Range <= 1 {
		return i
	}
	v := i
	for {
		v = s.encrypt(v)
		if v < s.Range {
			return v
		}
	}
}

// Unshuffle is Shuffle's inverse: Unshuffle(Shuffle(i)) == i.
func (s *State) Unshuffle(v uint64) uint64 {
	if s.Range <= 1 {
		return v
	}
	i := v
	for {
		i = s.decrypt(i)
		if i < s.Range {
			return i
		}
	}
}
