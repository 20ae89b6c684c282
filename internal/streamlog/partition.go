// Package streamlog narrows the stream partition spec.md treats as an
// external collaborator down to the three operations pg-source/pg-sink
// actually need: produce, tail-read the last offset, and read forward
// from an offset. Nothing above this package imports sarama directly.
package streamlog

import "context"

// Record is one consumed entry: its partition offset and raw value.
type Record struct {
	Offset int64
	Value  []byte
}

// Partition is an append-only, single-partition, offset-addressed log
// with at-least-once produce semantics.
type Partition interface {
	// Produce appends value with a null key and returns its offset.
	Produce(ctx context.Context, value []byte) (offset int64, err error)
	// ReadFrom streams records starting at offset (inclusive). The
	// returned channel closes when ctx is done or the underlying
	// consumer errors; callers select on ctx.Done() themselves too.
	ReadFrom(ctx context.Context, offset int64) (<-chan Record, error)
	// LastOffset returns the offset of the most recently produced
	// record, or exists=false if the partition is empty.
	LastOffset(ctx context.Context) (offset int64, exists bool, err error)
	Close() error
}
