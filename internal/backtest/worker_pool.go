package backtest

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ducminhle1904/tradecore/internal/errors"
)

// WorkerPool manages parallel backtest execution
type WorkerPool struct {
	workerCount int
	jobQueue    chan Job
	resultQueue chan JobResult
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
}

// Job is one replay in a comparison. Build must return a fresh engine; jobs
// never share portfolios, series or risk managers.
type Job struct {
	ID    string
	Build func() (*Engine, error)
}

// JobResult represents the result of a job
type JobResult struct {
	ID       string
	Index    int
	Results  *Results
	Duration time.Duration
	Error    error
}

type indexedJob struct {
	Job
	index int
}

// NewWorkerPool creates a new worker pool for parallel backtesting
func NewWorkerPool(ctx context.Context, workerCount int, jobBufferSize int) *WorkerPool {
	if workerCount <= 0 {
		workerCount = runtime.NumCPU()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &WorkerPool{
		workerCount: workerCount,
		jobQueue:    make(chan Job, jobBufferSize),
		resultQueue: make(chan JobResult, jobBufferSize),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start starts the worker pool
func (wp *WorkerPool) Start() {
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}
}

// Stop stops the worker pool gracefully
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()
}

// SubmitJob submits a job to the pool
func (wp *WorkerPool) SubmitJob(job Job) error {
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return wp.ctx.Err()
	}
}

// GetResults returns the result channel for collecting completed jobs
func (wp *WorkerPool) GetResults() <-chan JobResult {
	return wp.resultQueue
}

func (wp *WorkerPool) worker() {
	defer wp.wg.Done()
	for {
		select {
		case job, ok := <-wp.jobQueue:
			if !ok {
				return
			}
			result := wp.processJob(job)
			select {
			case wp.resultQueue <- result:
			case <-wp.ctx.Done():
				return
			}
		case <-wp.ctx.Done():
			return
		}
	}
}

// processJob builds and runs one engine
func (wp *WorkerPool) processJob(job Job) JobResult {
	start := time.Now()
	result := JobResult{ID: job.ID}

	engine, err := job.Build()
	if err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}
	result.Results, result.Error = engine.Run(wp.ctx)
	result.Duration = time.Since(start)
	return result
}

// RunComparison replays every job on a pool of workers. Results are
// returned in job order; a failing job does not stop the others.
func RunComparison(ctx context.Context, jobs []Job, workers int, logger *zap.Logger) ([]JobResult, error) {
	if len(jobs) == 0 {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ids := make(map[string]int, len(jobs))
	for i, j := range jobs {
		if j.Build == nil {
			return nil, errors.NewConfigError("backtest", "RunComparison", fmt.Sprintf("job %q has no builder", j.ID))
		}
		if _, dup := ids[j.ID]; dup {
			return nil, errors.NewConfigError("backtest", "RunComparison", fmt.Sprintf("duplicate job id %q", j.ID))
		}
		ids[j.ID] = i
	}

	pool := NewWorkerPool(ctx, workers, len(jobs))
	pool.Start()
	defer pool.Stop()

	submitted := 0
	for _, j := range jobs {
		if err := pool.SubmitJob(j); err != nil {
			break
		}
		submitted++
	}

	out := make([]JobResult, len(jobs))
	done := make([]bool, len(jobs))
	tracker := NewProgressTracker(submitted)
collect:
	for i := 0; i < submitted; i++ {
		select {
		case res := <-pool.GetResults():
			res.Index = ids[res.ID]
			out[res.Index] = res
			done[res.Index] = true
			tracker.Increment()
			completed, total, pct, elapsed := tracker.GetProgress()
			logger.Info("comparison job finished",
				zap.String("job", res.ID),
				zap.Int("completed", completed),
				zap.Int("total", total),
				zap.Float64("progress_pct", pct),
				zap.Duration("elapsed", elapsed),
				zap.Duration("remaining", tracker.EstimateTimeRemaining()),
				zap.Error(res.Error))
		case <-ctx.Done():
			break collect
		}
	}
	for i := range out {
		if !done[i] {
			out[i] = JobResult{ID: jobs[i].ID, Index: i, Error: ctx.Err()}
		}
	}
	return out, ctx.Err()
}

// parallel runs fn(0..n-1) on up to workers goroutines and waits for all
func parallel(n, workers int, fn func(i int)) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > n {
		workers = n
	}
	next := make(chan int, n)
	for i := 0; i < n; i++ {
		next <- i
	}
	close(next)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				fn(i)
			}
		}()
	}
	wg.Wait()
}

// ProgressTracker tracks the progress of batch processing
type ProgressTracker struct {
	total     int
	completed int
	startTime time.Time
	mutex     sync.RWMutex
}

// NewProgressTracker creates a new progress tracker
func NewProgressTracker(total int) *ProgressTracker {
	return &ProgressTracker{total: total, startTime: time.Now()}
}

// Increment increments the completion count
func (pt *ProgressTracker) Increment() {
	pt.mutex.Lock()
	defer pt.mutex.Unlock()
	pt.completed++
}

// GetProgress returns completed, total, percent and elapsed time
func (pt *ProgressTracker) GetProgress() (int, int, float64, time.Duration) {
	pt.mutex.RLock()
	defer pt.mutex.RUnlock()
	progress := 0.0
	if pt.total > 0 {
		progress = float64(pt.completed) / float64(pt.total) * 100
	}
	return pt.completed, pt.total, progress, time.Since(pt.startTime)
}

// EstimateTimeRemaining estimates the remaining time based on current progress
func (pt *ProgressTracker) EstimateTimeRemaining() time.Duration {
	pt.mutex.RLock()
	defer pt.mutex.RUnlock()
	if pt.completed == 0 {
		return 0
	}
	avg := time.Since(pt.startTime) / time.Duration(pt.completed)
	return avg * time.Duration(pt.total-pt.completed)
}
