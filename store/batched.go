package store

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Batched defaults.
const (
	DefaultBatchTick      = 5 * time.Millisecond
	DefaultBatchQueueSize = 1024
)

// ErrBatchedClosed is returned for operations submitted after Close.
var ErrBatchedClosed = errors.New("batched store is closed")

// Batched wraps a Store and coalesces operations arriving concurrently
// into a single backend Batch call per tick, reducing round-trips without
// changing observable semantics. Each caller receives its own results by
// index.
type Batched struct {
	inner Store
	tick  time.Duration
	queue chan pendingOp

	closeOnce sync.Once
	closed    chan struct{}
	drained   chan struct{}
}

type pendingOp struct {
	op     Op
	result chan opResult
}

type opResult struct {
	value any
	err   error
}

// BatchedOption configures a Batched store.
type BatchedOption func(*Batched)

// WithTick sets how often the queue drains into a backend call.
func WithTick(d time.Duration) BatchedOption {
	return func(b *Batched) {
		if d > 0 {
			b.tick = d
		}
	}
}

// WithQueueSize sets the submission queue capacity.
func WithQueueSize(n int) BatchedOption {
	return func(b *Batched) {
		if n > 0 {
			b.queue = make(chan pendingOp, n)
		}
	}
}

// NewBatched wraps the inner store and starts the drain loop.
func NewBatched(inner Store, opts ...BatchedOption) *Batched {
	b := &Batched{
		inner:   inner,
		tick:    DefaultBatchTick,
		queue:   make(chan pendingOp, DefaultBatchQueueSize),
		closed:  make(chan struct{}),
		drained: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.loop()
	return b
}

// Batch submits the operations and waits for their results. Operations
// from concurrent callers may share a backend call.
func (b *Batched) Batch(ctx context.Context, ops []Op) ([]any, error) {
	select {
	case <-b.closed:
		return nil, ErrBatchedClosed
	default:
	}
	pending := make([]pendingOp, len(ops))
	for i, op := range ops {
		pending[i] = pendingOp{op: op, result: make(chan opResult, 1)}
		select {
		case b.queue <- pending[i]:
		case <-b.closed:
			return nil, ErrBatchedClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	results := make([]any, len(ops))
	for i, p := range pending {
		select {
		case res := <-p.result:
			if res.err != nil {
				return nil, res.err
			}
			results[i] = res.value
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return results, nil
}

// Close stops the drain loop after flushing queued operations.
func (b *Batched) Close() error {
	b.closeOnce.Do(func() {
		close(b.closed)
		<-b.drained
	})
	return nil
}

// loop drains the queue once per tick, grouping everything pending into a
// single backend Batch call.
func (b *Batched) loop() {
	defer close(b.drained)
	ticker := time.NewTicker(b.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.flush()
		case <-b.closed:
			b.flush()
			return
		}
	}
}

func (b *Batched) flush() {
	var batch []pendingOp
	for {
		select {
		case p := <-b.queue:
			batch = append(batch, p)
			continue
		default:
		}
		break
	}
	if len(batch) == 0 {
		return
	}
	ops := make([]Op, len(batch))
	for i, p := range batch {
		ops[i] = p.op
	}
	results, err := b.inner.Batch(context.Background(), ops)
	for i, p := range batch {
		if err != nil {
			p.result <- opResult{err: err}
			continue
		}
		p.result <- opResult{value: results[i]}
	}
}
