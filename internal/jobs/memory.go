package jobs

import (
	"context"
	"time"
)

const memoryQueueSize = 1024

// MemoryBroker is a process-local queue. Jobs pending at shutdown are lost.
type MemoryBroker struct {
	ch   chan Envelope
	poll time.Duration
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{ch: make(chan Envelope, memoryQueueSize), poll: time.Second}
}

func (b *MemoryBroker) Push(ctx context.Context, env Envelope) error {
	select {
	case b.ch <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MemoryBroker) Pop(ctx context.Context) (*Delivery, error) {
	timer := time.NewTimer(b.poll)
	defer timer.Stop()

	select {
	case env := <-b.ch:
		return &Delivery{Envelope: env}, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *MemoryBroker) Ack(context.Context, *Delivery) error { return nil }

func (b *MemoryBroker) Recover(context.Context) (int, error) { return 0, nil }

func (b *MemoryBroker) Len(context.Context) (int64, error) {
	return int64(len(b.ch)), nil
}
