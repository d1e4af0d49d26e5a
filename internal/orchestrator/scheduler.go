package orchestrator

import (
	"context"
	"log"
	"sync"
	"time"
)

type WorkerSnapshot struct {
	Running           bool       `json:"running"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	LastTickAt        *time.Time `json:"last_tick_at,omitempty"`
	LastCycleAt       *time.Time `json:"last_cycle_at,omitempty"`
	LastErrorAt       *time.Time `json:"last_error_at,omitempty"`
	LastError         string     `json:"last_error,omitempty"`
	ConsecutiveErrors int        `json:"consecutive_errors"`
	TotalCycles       int64      `json:"total_cycles"`
	SkippedTicks      int64      `json:"skipped_ticks"`
	ProjectsProcessed int64      `json:"projects_processed"`
	ProjectsFailed    int64      `json:"projects_failed"`
}

// Worker fires the orchestration pass on an interval. A single-slot
// execution token guarantees passes never overlap: a tick that cannot take
// the token logs and returns.
type Worker struct {
	service  *Service
	interval time.Duration
	logger   *log.Logger

	token    chan struct{}
	kickChan chan struct{}

	mu       sync.RWMutex
	running  bool
	doneChan chan struct{}
	snapshot WorkerSnapshot
}

func NewWorker(service *Service, interval time.Duration, logger *log.Logger) *Worker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = log.Default()
	}
	w := &Worker{
		service:  service,
		interval: interval,
		logger:   logger,
		token:    make(chan struct{}, 1),
		kickChan: make(chan struct{}, 1),
	}
	w.token <- struct{}{}
	service.SetKick(w.Kick)
	return w
}

func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	now := time.Now().UTC()
	w.snapshot.Running = true
	w.snapshot.StartedAt = timePtr(now)
	w.doneChan = make(chan struct{})
	done := w.doneChan
	w.mu.Unlock()

	go func() {
		defer close(done)
		w.loop(ctx)
		w.mu.Lock()
		w.running = false
		w.snapshot.Running = false
		w.mu.Unlock()
	}()
}

func (w *Worker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// First pass immediately rather than waiting a full interval.
	w.runIteration(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runIteration(ctx)
		case <-w.kickChan:
			w.runIteration(ctx)
		}
	}
}

func (w *Worker) runIteration(ctx context.Context) {
	select {
	case <-w.token:
	default:
		w.logger.Printf("scheduler: cycle already in flight; skipping tick")
		w.mu.Lock()
		w.snapshot.SkippedTicks++
		w.mu.Unlock()
		return
	}
	defer func() { w.token <- struct{}{} }()

	now := time.Now().UTC()
	w.mu.Lock()
	w.snapshot.LastTickAt = timePtr(now)
	w.mu.Unlock()

	result, err := w.service.Cycle(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.snapshot.TotalCycles++
	w.snapshot.ProjectsProcessed += int64(len(result.Processed))
	w.snapshot.ProjectsFailed += int64(len(result.Failed))
	if err != nil {
		errAt := time.Now().UTC()
		w.snapshot.LastErrorAt = timePtr(errAt)
		w.snapshot.LastError = compactErrorText(err)
		w.snapshot.ConsecutiveErrors++
		w.logger.Printf("scheduler: cycle failed: %v", err)
		return
	}
	w.snapshot.LastCycleAt = timePtr(time.Now().UTC())
	w.snapshot.ConsecutiveErrors = 0
	w.snapshot.LastError = ""
}

// Kick requests an immediate pass. Coalesces with an already-pending kick.
func (w *Worker) Kick() {
	select {
	case w.kickChan <- struct{}{}:
	default:
	}
}

func (w *Worker) Wait(timeout time.Duration) bool {
	w.mu.RLock()
	done := w.doneChan
	w.mu.RUnlock()
	if done == nil {
		return true
	}
	if timeout <= 0 {
		<-done
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

func (w *Worker) Snapshot() WorkerSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	copySnapshot := w.snapshot
	copySnapshot.StartedAt = cloneTimePtr(w.snapshot.StartedAt)
	copySnapshot.LastTickAt = cloneTimePtr(w.snapshot.LastTickAt)
	copySnapshot.LastCycleAt = cloneTimePtr(w.snapshot.LastCycleAt)
	copySnapshot.LastErrorAt = cloneTimePtr(w.snapshot.LastErrorAt)
	return copySnapshot
}

func timePtr(t time.Time) *time.Time {
	return &t
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}
