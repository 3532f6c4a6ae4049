package batch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/deepresearch/core"
)

func TestRun_OrderPreserved(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6, 7}

	// Earlier items sleep longer so completion order is the reverse of input
	// order; output order must still match input order.
	results, err := Run(context.Background(), items, 4, func(_ context.Context, n int) (string, error) {
		time.Sleep(time.Duration(len(items)-n) * 5 * time.Millisecond)
		return fmt.Sprintf("item-%d", n), nil
	})
	require.NoError(t, err)
	require.Len(t, results, len(items))

	for i, r := range results {
		assert.NoError(t, r.Err)
		assert.Equal(t, fmt.Sprintf("item-%d", i), r.Value)
	}
}

func TestRun_ConcurrencyCeiling(t *testing.T) {
	const limit = 3

	var active, peak int64
	items := make([]int, 20)

	_, err := Run(context.Background(), items, limit, func(_ context.Context, _ int) (struct{}, error) {
		n := atomic.AddInt64(&active, 1)
		for {
			p := atomic.LoadInt64(&peak)
			if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		atomic.AddInt64(&active, -1)
		return struct{}{}, nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(limit))
	assert.Positive(t, atomic.LoadInt64(&peak))
}

func TestRun_ErrorIsolation(t *testing.T) {
	sentinel := errors.New("boom")
	items := []int{0, 1, 2, 3}

	results, err := Run(context.Background(), items, 2, func(_ context.Context, n int) (int, error) {
		if n == 1 {
			return 0, sentinel
		}
		return n * 10, nil
	})
	require.NoError(t, err)

	assert.ErrorIs(t, results[1].Err, sentinel)
	for _, i := range []int{0, 2, 3} {
		assert.NoError(t, results[i].Err)
		assert.Equal(t, i*10, results[i].Value)
	}

	assert.Equal(t, []int{0, 20, 30}, Values(results))
	assert.Len(t, Errors(results), 1)
}

func TestRun_InvalidLimit(t *testing.T) {
	_, err := Run(context.Background(), []int{1}, 0, func(_ context.Context, n int) (int, error) { return n, nil })
	assert.ErrorIs(t, err, core.ErrInvalidConfiguration)
}

func TestRun_EmptyItems(t *testing.T) {
	results, err := Run(context.Background(), nil, 1, func(_ context.Context, n int) (int, error) { return n, nil })
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestRun_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	items := make([]int, 10)
	started := make(chan struct{}, 1)

	results, err := Run(ctx, items, 1, func(ctx context.Context, _ int) (int, error) {
		select {
		case started <- struct{}{}:
			cancel()
		default:
		}
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.NoError(t, err)
	require.Len(t, results, len(items))

	// Every slot reports an outcome even though admission stopped early.
	for _, r := range results {
		assert.Error(t, r.Err)
	}
}
