package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Common errors for worker pool operations
var (
	ErrPoolShutdown  = errors.New("worker pool is shut down")
	ErrPoolQueueFull = errors.New("task queue is full")
)

// Job is the unit of work run by a worker. It must honour ctx, which is
// cancelled when the submitter gives up or the pool shuts down.
type Job func(ctx context.Context) (interface{}, error)

// Task represents a processing task for the worker pool.
type Task struct {
	ID        string
	Run       Job
	CreatedAt time.Time
	Ctx       context.Context

	result chan *Result
}

// NewTask creates a new task with default values.
func NewTask(id string, fn Job) *Task {
	return &Task{
		ID:        id,
		Run:       fn,
		CreatedAt: time.Now(),
		Ctx:       context.Background(),
		result:    make(chan *Result, 1),
	}
}

// Wait blocks until the task has a result or ctx is done.
func (t *Task) Wait(ctx context.Context) (*Result, error) {
	select {
	case r := <-t.result:
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Result represents the result of task processing.
type Result struct {
	TaskID   string
	Success  bool
	Data     interface{}
	Error    error
	Duration time.Duration
	WorkerID int
}

// PoolStats contains worker pool statistics.
type PoolStats struct {
	Name        string  `json:"name"`
	Workers     int     `json:"workers"`
	Active      int64   `json:"active"`
	Completed   int64   `json:"completed"`
	Failed      int64   `json:"failed"`
	Pending     int     `json:"pending"`
	SuccessRate float64 `json:"success_rate"`
}

// WorkerPool runs CPU-bound jobs (puzzle solving) on a fixed set of
// goroutines so they never occupy a forwarding goroutine.
type WorkerPool struct {
	name     string
	workers  int
	taskChan chan *Task
	wg       sync.WaitGroup

	// Atomic counters for thread-safe statistics
	active    int64
	completed int64
	failed    int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	mu      sync.RWMutex
}

// NewWorkerPool creates a new worker pool with the specified number of workers.
func NewWorkerPool(name string, workers int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	pool := &WorkerPool{
		name:     name,
		workers:  workers,
		taskChan: make(chan *Task, workers*100),
		ctx:      ctx,
		cancel:   cancel,
		running:  true,
	}

	for i := 0; i < workers; i++ {
		pool.wg.Add(1)
		go pool.worker(i)
	}

	return pool
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	for task := range p.taskChan {
		p.processTask(id, task)
	}
}

// processTask executes a single task and delivers its result.
func (p *WorkerPool) processTask(workerID int, task *Task) {
	atomic.AddInt64(&p.active, 1)
	defer atomic.AddInt64(&p.active, -1)

	start := time.Now()
	result := &Result{
		TaskID:   task.ID,
		WorkerID: workerID,
	}

	// Panic recovery to prevent one task from crashing the entire pool
	defer func() {
		if r := recover(); r != nil {
			result.Success = false
			result.Error = fmt.Errorf("panic in task %s: %v", task.ID, r)
			result.Duration = time.Since(start)
			atomic.AddInt64(&p.failed, 1)
			task.result <- result
		}
	}()

	parent := task.Ctx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	stop := context.AfterFunc(p.ctx, cancel)
	defer stop()

	switch {
	case p.ctx.Err() != nil:
		result.Error = ErrPoolShutdown
	case ctx.Err() != nil:
		result.Error = ctx.Err()
	case task.Run == nil:
		result.Error = errors.New("no job defined")
	default:
		result.Data, result.Error = task.Run(ctx)
	}
	result.Success = result.Error == nil
	result.Duration = time.Since(start)

	if result.Success {
		atomic.AddInt64(&p.completed, 1)
	} else {
		atomic.AddInt64(&p.failed, 1)
	}

	task.result <- result
}

// Submit adds a task to the worker pool for processing.
func (p *WorkerPool) Submit(task *Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.running {
		return ErrPoolShutdown
	}
	if task.result == nil {
		task.result = make(chan *Result, 1)
	}

	select {
	case p.taskChan <- task:
		return nil
	default:
		return ErrPoolQueueFull
	}
}

// Do submits fn and waits for its outcome.
func (p *WorkerPool) Do(ctx context.Context, id string, fn Job) (interface{}, error) {
	task := NewTask(id, fn)
	task.Ctx = ctx
	if err := p.Submit(task); err != nil {
		return nil, err
	}

	result, err := task.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return result.Data, result.Error
}

// GetStats returns current worker pool statistics.
func (p *WorkerPool) GetStats() PoolStats {
	completed := atomic.LoadInt64(&p.completed)
	failed := atomic.LoadInt64(&p.failed)
	total := completed + failed

	var successRate float64
	if total > 0 {
		successRate = float64(completed) / float64(total) * 100
	}

	return PoolStats{
		Name:        p.name,
		Workers:     p.workers,
		Active:      atomic.LoadInt64(&p.active),
		Completed:   completed,
		Failed:      failed,
		Pending:     len(p.taskChan),
		SuccessRate: successRate,
	}
}

// Shutdown cancels running jobs, fails queued ones and waits for the workers
// to exit.
func (p *WorkerPool) Shutdown() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	close(p.taskChan)
	p.mu.Unlock()

	p.wg.Wait()
}

// IsRunning returns true if the pool is still accepting tasks.
func (p *WorkerPool) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}
