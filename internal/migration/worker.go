package migration

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"go_hostpanel/internal/errs"
	"go_hostpanel/internal/model"
)

// Locker is a cross-process lease, implemented by cache.Lease
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
}

// WorkerConfig holds the configuration for the background worker
type WorkerConfig struct {
	Runner      *Runner
	Locker      Locker
	Logger      *logrus.Entry
	IntervalSec int
	BatchSize   int
	LeaseSec    int
}

// Worker drives pending and running jobs to completion on a ticker
type Worker struct {
	ctx       context.Context
	cancel    context.CancelFunc
	runner    *Runner
	locker    Locker
	logger    *logrus.Entry
	interval  time.Duration
	batchSize int
	leaseTTL  time.Duration
	done      chan struct{}
}

// NewWorker creates a worker. A nil Locker runs without cross-process
// exclusion.
func NewWorker(cfg *WorkerConfig) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	interval := time.Duration(cfg.IntervalSec) * time.Second
	if interval <= 0 {
		interval = 10 * time.Second
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 5
	}
	lease := time.Duration(cfg.LeaseSec) * time.Second
	if lease <= 0 {
		lease = 10 * time.Minute
	}
	return &Worker{
		ctx:       ctx,
		cancel:    cancel,
		runner:    cfg.Runner,
		locker:    cfg.Locker,
		logger:    cfg.Logger.WithField("component", "migration-worker"),
		interval:  interval,
		batchSize: batch,
		leaseTTL:  lease,
		done:      make(chan struct{}),
	}
}

// Start begins polling for jobs
func (w *Worker) Start() {
	w.logger.Info("Starting migration worker...")
	ticker := time.NewTicker(w.interval)
	go func() {
		defer close(w.done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.Tick(w.ctx)
			case <-w.ctx.Done():
				w.logger.Info("Stopping migration worker...")
				return
			}
		}
	}()
}

// Stop cancels the loop and waits for the current tick to finish
func (w *Worker) Stop() {
	w.cancel()
	<-w.done
}

// Tick drives one batch of jobs
func (w *Worker) Tick(ctx context.Context) {
	jobs, err := w.runner.store.ListJobsByStatus(ctx,
		[]string{model.MigrationJobPending, model.MigrationJobRunning}, w.batchSize)
	if err != nil {
		w.logger.Errorf("Failed to list migration jobs: %v", err)
		return
	}
	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		w.drive(ctx, job.ID)
	}
}

func (w *Worker) drive(ctx context.Context, jobID string) {
	logger := w.logger.WithField("jobId", jobID)
	lease := "migration:" + jobID
	if w.locker != nil {
		ok, err := w.locker.Acquire(ctx, lease, w.leaseTTL)
		if err != nil {
			logger.Errorf("Failed to acquire lease: %v", err)
			return
		}
		if !ok {
			logger.Debug("job is driven by another process")
			return
		}
		defer func() {
			if err := w.locker.Release(context.WithoutCancel(ctx), lease); err != nil {
				logger.Warnf("Failed to release lease: %v", err)
			}
		}()
	}

	status, err := w.runner.RunToCompletion(ctx, jobID)
	if errs.IsKind(err, errs.KindInvalidState) {
		logger.Warnf("Migration job not advanced: %v", err)
		return
	}
	if err != nil {
		logger.Errorf("Migration job stopped: %v", err)
		return
	}
	logger.WithField("status", status).Info("migration job finished")
}
