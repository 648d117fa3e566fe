package workerpool

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

var poolLog = logrus.WithField("component", "workerpool")

// DefaultWorkers 默认并发度
const DefaultWorkers = 4

// Result 单个任务的结果，与输入下标一一对应
type Result[R any] struct {
	Value R
	Err   error
}

// Map 用固定数量的 worker 执行 fn，返回与 items 同序的结果。
//
// 单个任务的 error/panic 只影响自己的结果；ctx 取消后未开始的任务直接返回 ctx.Err()，
// 已开始的任务允许执行完。
func Map[T, R any](ctx context.Context, workers int, items []T, fn func(ctx context.Context, item T) (R, error)) []Result[R] {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > len(items) {
		workers = len(items)
	}
	results := make([]Result[R], len(items))
	if len(items) == 0 {
		return results
	}

	idxC := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for i := range idxC {
				results[i] = runOne(ctx, workerID, items[i], fn)
			}
		}(w)
	}

	for i := range items {
		if err := ctx.Err(); err != nil {
			results[i] = Result[R]{Err: err}
			continue
		}
		idxC <- i
	}
	close(idxC)
	wg.Wait()
	return results
}

func runOne[T, R any](ctx context.Context, workerID int, item T, fn func(context.Context, T) (R, error)) (res Result[R]) {
	defer func() {
		if r := recover(); r != nil {
			poolLog.Errorf("任务 panic: worker=%d panic=%v", workerID, r)
			res = Result[R]{Err: fmt.Errorf("task panic: %v", r)}
		}
	}()
	v, err := fn(ctx, item)
	return Result[R]{Value: v, Err: err}
}

// ForEach Map 的无返回值版本，返回每个任务的 error（nil 表示成功）
func ForEach[T any](ctx context.Context, workers int, items []T, fn func(ctx context.Context, item T) error) []error {
	res := Map(ctx, workers, items, func(ctx context.Context, item T) (struct{}, error) {
		return struct{}{}, fn(ctx, item)
	})
	errs := make([]error, len(res))
	for i, r := range res {
		errs[i] = r.Err
	}
	return errs
}
