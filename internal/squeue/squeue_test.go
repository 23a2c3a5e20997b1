/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2025 The pktizr Authors. All Rights Reserved.
 */

package squeue

import (
	"sync"
	"testing"

	"github.com/pktizr/pktizr/pkg/pkt"
)

func TestEnqueueDequeueFIFO(t *testing.T) {
	q := New()
	if _, ok := q.Dequeue(); ok {
		t.Fatal("dequeue on empty queue returned ok=true")
	}

	stacks := make([]*pkt.Stack, 5)
	for i := range stacks {
		stacks[i] = pkt.NewStack(pkt.BuildRaw())
		q.Enqueue(stacks[i])
	}
	for i := range stacks {
		got, ok := q.Dequeue()
		if !ok {
			t.Fatalf("dequeue %d: expected ok", i)
		}
		if got != stacks[i] {
			t.Fatalf("dequeue %d out of order", i)
		}
	}
	if _, ok := q.Dequeue(); ok {
		t.Fatal("queue should be drained")
	}
}

func TestConcurrentProducersSingleConsumer(t *testing.T) {
	q := New()
	const producers = 8
	const perProducer = 500
	total := producers * perProducer

	var wg sync.WaitGroup
	wg.Add(producers)
	for p := 0; p < producers; p++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(pkt.NewStack(pkt.BuildRaw()))
			}
		}()
	}

	got := 0
	done := make(chan struct{})
	go func() {
		for got < total {
			if _, ok := q.Dequeue(); ok {
				got++
			}
		}
		close(done)
	}()

	wg.Wait()
	<-done
	if got != total {
		t.Fatalf("consumed %d items, want %d", got, total)
	}
}
