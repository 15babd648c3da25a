package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore records how many Batch calls it received and echoes each
// get op's key back as an Item.
type countingStore struct {
	mu      sync.Mutex
	batches atomic.Int32
	sizes   []int
}

func (c *countingStore) Batch(ctx context.Context, ops []Op) ([]any, error) {
	c.batches.Add(1)
	c.mu.Lock()
	c.sizes = append(c.sizes, len(ops))
	c.mu.Unlock()

	results := make([]any, len(ops))
	for i, op := range ops {
		if g, ok := op.(GetOp); ok {
			results[i] = &Item{Key: g.Key}
		}
	}
	return results, nil
}

func TestBatchedRoutesResultsByIndex(t *testing.T) {
	inner := &countingStore{}
	b := NewBatched(inner, WithTick(time.Millisecond))
	defer b.Close()

	results, err := b.Batch(context.Background(), []Op{
		GetOp{Namespace: []string{"ns"}, Key: "k1"},
		GetOp{Namespace: []string{"ns"}, Key: "k2"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "k1", results[0].(*Item).Key)
	assert.Equal(t, "k2", results[1].(*Item).Key)
}

func TestBatchedCoalescesConcurrentCallers(t *testing.T) {
	inner := &countingStore{}
	b := NewBatched(inner, WithTick(20*time.Millisecond))
	defer b.Close()

	const callers = 16
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := b.Batch(context.Background(), []Op{
				GetOp{Namespace: []string{"ns"}, Key: "k"},
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Less(t, int(inner.batches.Load()), callers,
		"concurrent submissions share backend calls")
}

func TestBatchedCloseFlushesAndRejects(t *testing.T) {
	inner := &countingStore{}
	b := NewBatched(inner, WithTick(time.Hour), WithQueueSize(8))

	done := make(chan error, 1)
	go func() {
		_, err := b.Batch(context.Background(), []Op{
			GetOp{Namespace: []string{"ns"}, Key: "k"},
		})
		done <- err
	}()

	// Give the submission time to land in the queue, then close; the
	// close flush must deliver the pending result.
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, b.Close())
	require.NoError(t, <-done)

	_, err := b.Batch(context.Background(), []Op{
		GetOp{Namespace: []string{"ns"}, Key: "k"},
	})
	assert.ErrorIs(t, err, ErrBatchedClosed)
}

func TestBatchedContextCancellation(t *testing.T) {
	inner := &countingStore{}
	b := NewBatched(inner, WithTick(time.Hour))
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := b.Batch(ctx, []Op{GetOp{Namespace: []string{"ns"}, Key: "k"}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
