package workerpool

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMapPreservesOrderAndIsolatesFailures(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8}
	res := Map(context.Background(), 3, items, func(_ context.Context, v int) (int, error) {
		if v == 4 {
			return 0, errors.New("boom")
		}
		if v == 6 {
			panic("bad item")
		}
		return v * 10, nil
	})
	assert.Len(t, res, len(items))
	for i, r := range res {
		switch items[i] {
		case 4, 6:
			assert.Error(t, r.Err)
		default:
			assert.NoError(t, r.Err)
			assert.Equal(t, items[i]*10, r.Value)
		}
	}
}

func TestMapBoundsConcurrency(t *testing.T) {
	var cur, peak atomic.Int32
	items := make([]int, 20)
	ForEach(context.Background(), 4, items, func(context.Context, int) error {
		n := cur.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		cur.Add(-1)
		return nil
	})
	assert.LessOrEqual(t, peak.Load(), int32(4))
}

func TestMapCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	errs := ForEach(ctx, 2, []int{1, 2, 3}, func(context.Context, int) error { return nil })
	for _, err := range errs {
		assert.ErrorIs(t, err, context.Canceled)
	}
}
