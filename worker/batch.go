package worker

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// Batch runs a fixed set of jobs and returns their results in job order.
type Batch struct {
	fn      Func
	workers int
}

// NewBatch creates a new batch runner.
// If workers <= 0, it defaults to runtime.NumCPU().
func NewBatch(fn Func, workers int) *Batch {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Batch{
		fn:      fn,
		workers: workers,
	}
}

// Run executes every job. Jobs that never started because ctx was cancelled
// report ctx.Err().
func (b *Batch) Run(ctx context.Context, jobs []Job) *BatchResult {
	start := time.Now()
	if len(jobs) == 0 {
		return &BatchResult{Results: make([]*JobResult, 0)}
	}

	jobs = append([]Job(nil), jobs...)
	for i := range jobs {
		jobs[i].Seq = i
	}

	var results []*JobResult
	// For small batches, don't use parallelism
	if len(jobs) <= 1 || b.workers == 1 {
		results = b.runSequential(ctx, jobs)
	} else {
		results = b.runParallel(ctx, jobs)
	}

	br := &BatchResult{
		Results:       results,
		TotalJobs:     len(jobs),
		TotalDuration: time.Since(start).Nanoseconds(),
	}
	for _, r := range results {
		br.CompletedJobs++
		if r.Error != nil {
			br.FailedJobs++
		}
	}
	return br
}

func (b *Batch) runSequential(ctx context.Context, jobs []Job) []*JobResult {
	results := make([]*JobResult, 0, len(jobs))
	for _, job := range jobs {
		results = append(results, runJob(ctx, b.fn, job))
	}
	return results
}

func (b *Batch) runParallel(ctx context.Context, jobs []Job) []*JobResult {
	numWorkers := b.workers
	if numWorkers > len(jobs) {
		numWorkers = len(jobs)
	}

	indexes := make(chan int, len(jobs))
	for i := range jobs {
		indexes <- i
	}
	close(indexes)

	results := make([]*JobResult, len(jobs))

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for idx := range indexes {
				results[idx] = runJob(ctx, b.fn, jobs[idx])
			}
		}()
	}
	wg.Wait()

	return results
}

// runJob runs one job, converting a panic into an error so that one
// codelist cannot take down the batch.
func runJob(ctx context.Context, fn Func, job Job) (result *JobResult) {
	start := time.Now()
	result = &JobResult{ID: job.ID, Seq: job.Seq}

	defer func() {
		if r := recover(); r != nil {
			result.Error = &PanicError{ID: job.ID, Value: r}
		}
		result.Duration = time.Since(start).Nanoseconds()
	}()

	if err := ctx.Err(); err != nil {
		result.Error = err
		return result
	}
	if fn == nil {
		result.Error = ErrNoFunc
		return result
	}

	result.Result, result.Error = fn(ctx, job)
	return result
}
