/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2025 The pktizr Authors. All Rights Reserved.
 */

// Package squeue implements a wait-free multi-producer/single-consumer
// FIFO of packet stacks: the queue script-enqueued replies and
// retransmissions flow through on their way to the sender.
package squeue

import (
	"runtime"
	"sync/atomic"

	"github.com/pktizr/pktizr/pkg/pkt"
)

type node struct {
	next  atomic.Pointer[node]
	value *pkt.Stack
}

// Queue is an intrusive MP-SC linked list headed by a stub node, in the
// style of the classic Michael & Scott lock-free queue. Producers never
// block each other (the enqueue linearization point is a single
// atomic swap of the tail); the single consumer may briefly spin if it
// observes a tail that has already advanced but whose link has not yet
// been published.
type Queue struct {
	head atomic.Pointer[node]
	tail atomic.Pointer[node]
}

// New returns an empty Queue.
func New() *Queue {
	q := &Queue{}
	stub := &node{}
	q.head.Store(stub)
	q.tail.Store(stub)
	return q
}

// Enqueue appends v to the tail. Safe to call from any number of
// goroutines concurrently.
func (q *Queue) Enqueue(v *pkt.Stack) {
	n := &node{value: v}
	prev := q.tail.Swap(n)
	prev.next.Store(n)
}

// Dequeue removes and returns the head value. Only ONE goroutine may
// call Dequeue at a time. Returns ok=false if the queue is empty.
func (q *Queue) Dequeue() (v *pkt.Stack, ok bool) {
	head := q.head.Load()
	next := head.next.Load()
	if next == nil {
		if q.tail.Load() == head {
			return nil, false
		}
		// A producer has claimed the tail slot but has not yet
		// published the link; it will momentarily. Spin rather than
		// report an empty queue that isn't.
		for next == nil {
			runtime.Gosched()
			next = head.next.Load()
		}
	}
	q.head.Store(next)
	v, next.value = next.value, nil
	return v, true
}

// Empty reports whether the queue currently has no dequeueable element.
// Racy by construction — useful only as an advisory hint.
func (q *Queue) Empty() bool {
	head := q.head.Load()
	return head.next.Load() == nil && q.tail.Load() == head
}
