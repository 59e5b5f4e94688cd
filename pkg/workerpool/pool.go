// Package workerpool runs independent jobs with bounded parallelism.
package workerpool

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

// Pool limits how many jobs run at once.
type Pool struct {
	size   int
	logger *zap.Logger
}

// New creates a pool running at most size jobs concurrently. Sizes below 1 are treated as 1.
func New(size int, logger *zap.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		size:   size,
		logger: logger.Named("worker-pool"),
	}
}

// Size returns the concurrency limit.
func (p *Pool) Size() int {
	return p.size
}

// Job is a unit of work identified by Key.
type Job[T any] struct {
	Key string
	Run func(ctx context.Context) (T, error)
}

// Result is the outcome of one job.
type Result[T any] struct {
	Key   string
	Value T
	Err   error
}

// Process runs every job and returns results in submission order. A failing
// or panicking job never stops the others; a panic becomes that job's error.
// Jobs not yet started when ctx is done report ctx.Err().
func Process[T any](ctx context.Context, pool *Pool, jobs []Job[T], onDone func(Result[T])) []Result[T] {
	if len(jobs) == 0 {
		return nil
	}

	results := make([]Result[T], len(jobs))
	sem := make(chan struct{}, pool.size)
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for i, job := range jobs {
		wg.Add(1)
		go func() {
			defer wg.Done()

			var res Result[T]
			select {
			case sem <- struct{}{}:
				res = runJob(ctx, pool.logger, job)
				<-sem
			case <-ctx.Done():
				res = Result[T]{Key: job.Key, Err: ctx.Err()}
			}

			results[i] = res
			if onDone != nil {
				mu.Lock()
				onDone(res)
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	return results
}

func runJob[T any](ctx context.Context, logger *zap.Logger, job Job[T]) (res Result[T]) {
	res.Key = job.Key
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Job panicked",
				zap.String("key", job.Key),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			res.Err = fmt.Errorf("job %s panicked: %v", job.Key, r)
		}
	}()
	res.Value, res.Err = job.Run(ctx)
	return res
}
