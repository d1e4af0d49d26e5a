// Package server hosts the admin HTTP API and the scheduler worker for the
// serve command.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"time"

	"steward/internal/orchestrator"
	"steward/internal/serviceapi"
)

type Options struct {
	Addr            string
	DBPath          string
	PolicyPath      string
	ShutdownTimeout time.Duration
}

type Runtime struct {
	opts      Options
	core      *serviceapi.LocalCore
	worker    *orchestrator.Worker
	server    *http.Server
	startedAt time.Time
	logger    *log.Logger
}

type HealthResponse struct {
	Status    string                      `json:"status"`
	StartedAt time.Time                   `json:"started_at"`
	Now       time.Time                   `json:"now"`
	Worker    orchestrator.WorkerSnapshot `json:"worker"`
}

func NewRuntime(options Options) (*Runtime, error) {
	options = normalizeOptions(options)
	core, err := serviceapi.NewLocalCore(options.DBPath, options.PolicyPath)
	if err != nil {
		return nil, err
	}
	logger := log.New(os.Stdout, "steward ", log.LstdFlags)
	interval := time.Duration(core.Service().Config().Scheduler.IntervalSeconds) * time.Second
	runtime := &Runtime{
		opts:      options,
		core:      core,
		worker:    orchestrator.NewWorker(core.Service(), interval, logger),
		startedAt: time.Now().UTC(),
		logger:    logger,
	}
	mux := http.NewServeMux()
	runtime.registerRoutes(mux)
	runtime.server = &http.Server{
		Addr:    options.Addr,
		Handler: mux,
	}
	return runtime, nil
}

func normalizeOptions(options Options) Options {
	if options.Addr == "" {
		options.Addr = "127.0.0.1:8674"
	}
	if options.ShutdownTimeout <= 0 {
		options.ShutdownTimeout = 10 * time.Second
	}
	return options
}

func (r *Runtime) Handler() http.Handler {
	return r.server.Handler
}

// Run starts the reply dispatcher, the scheduler worker and the HTTP
// server, then blocks until ctx is cancelled. Shutdown happens between
// cycles: the worker finishes its in-flight pass before Run returns.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.core.Bus().Start(ctx); err != nil {
		r.core.Shutdown()
		return err
	}
	r.worker.Start(ctx)

	errChan := make(chan error, 1)
	go func() {
		if err := r.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
			return
		}
		errChan <- nil
	}()
	r.logger.Printf("admin api listening on %s", r.opts.Addr)

	select {
	case <-ctx.Done():
	case err := <-errChan:
		r.core.Shutdown()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), r.opts.ShutdownTimeout)
	defer cancel()
	_ = r.server.Shutdown(shutdownCtx)
	r.worker.Wait(r.opts.ShutdownTimeout)
	r.core.Shutdown()
	return nil
}
