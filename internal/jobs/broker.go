package jobs

import "context"

// Delivery is an envelope popped from a broker and not yet acknowledged.
type Delivery struct {
	Envelope Envelope
	raw      string
}

// Broker moves envelopes between submitters and workers.
type Broker interface {
	Push(ctx context.Context, env Envelope) error
	// Pop blocks for a short poll window. A nil delivery with a nil error
	// means the window elapsed with nothing queued.
	Pop(ctx context.Context) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	// Recover requeues deliveries that were popped but never acknowledged.
	Recover(ctx context.Context) (int, error)
	Len(ctx context.Context) (int64, error)
}
