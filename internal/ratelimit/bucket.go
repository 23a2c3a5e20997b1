/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2025 The pktizr Authors. All Rights Reserved.
 */

// Package ratelimit implements the token-bucket rate limiter that paces
// probe transmission.
//
// It is a direct generalization of wireguard-go's per-peer handshake
// ratelimiter (ratelimiter.Ratelimiter.Allow): same token accrual math —
// tokens accumulate over elapsed time, capped at the bucket's rate, and
// are debited one at a time — but collapsed from a per-IP map into a
// single global bucket consumed by one caller (the fused generator/sender
// worker), and changed from a non-blocking Allow() into a blocking Take()
// since the engine has nothing else useful to do while waiting for a token.
package ratelimit

import (
	"sync"
	"time"
)

// Bucket holds {rate, tokens, timestamp} as described by the packet
// generator's rate-limiting contract: Take blocks until one token has
// accrued, then debits it. A zero rate disables the limiter entirely.
type Bucket struct {
	mu        sync.Mutex
	rate      float64 // tokens per second; 0 == unlimited
	tokens    float64
	timestamp time.Time
}

// New returns a Bucket configured for the given rate, in tokens
// (packets) per second. A rate of 0 disables limiting: Take never blocks.
func New(rate float64) *Bucket {
	return &Bucket{
		rate:      rate,
		tokens:    rate,
		timestamp: time.Now(),
	}
}

// Unlimited reports whether the bucket has no configured rate.
func (b *Bucket) Unlimited() bool {
	return b.rate <= 0
}

// Take consumes a single token, sleeping for the remaining deficit until
// the bucket has accrued a whole token. It is safe to call
// concurrently, though the generator is the only caller in practice.
func (b *Bucket) Take() {
	if b.Unlimited() {
		return
	}

	for {
		b.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(b.timestamp).Seconds()
		b.tokens += elapsed * b.rate
		if b.tokens > b.rate {
			b.tokens = b.rate
		}
		b.timestamp = now

		if b.tokens >= 1 {
			b.tokens--
			b.mu.Unlock()
			return
		}

		deficit := 1 - b.tokens
		b.mu.Unlock()

		wait := time.Duration(deficit / b.rate * float64(time.Second))
		if wait <= 0 {
			wait = time.Microsecond
		}
		time.Sleep(wait)
	}
}
