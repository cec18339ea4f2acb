package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var jobsProcessedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "queue_jobs_processed_total",
		Help: "Total number of queue jobs processed by outcome",
	},
	[]string{"queue", "result"},
)

// Handler processes one claimed job. A returned error reschedules the job
// until its attempts are exhausted, so handlers must be idempotent.
type Handler func(ctx context.Context, job *Job) error

// DeadLetterFunc is invoked exactly once when a job exhausts its attempts.
type DeadLetterFunc func(ctx context.Context, job *Job, cause error)

// WorkerConfig configures a polling worker pool for one named queue.
type WorkerConfig struct {
	Queue        string
	Concurrency  int
	PollInterval time.Duration
	// JobTimeout bounds a single handler invocation. Zero means no bound.
	JobTimeout time.Duration
}

// Worker polls a named queue and runs claimed jobs through its handler.
type Worker struct {
	store      *Store
	cfg        WorkerConfig
	handler    Handler
	deadLetter DeadLetterFunc
	logger     *slog.Logger
}

// NewWorker creates a worker pool for the configured queue. deadLetter may be
// nil when exhausted jobs need no side effect beyond the dead status.
func NewWorker(store *Store, cfg WorkerConfig, handler Handler, deadLetter DeadLetterFunc, logger *slog.Logger) *Worker {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	return &Worker{
		store:      store,
		cfg:        cfg,
		handler:    handler,
		deadLetter: deadLetter,
		logger:     logger,
	}
}

// Run starts the worker goroutines and blocks until the context is canceled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("queue worker starting",
		slog.String("queue", w.cfg.Queue),
		slog.Int("concurrency", w.cfg.Concurrency),
		slog.Duration("poll_interval", w.cfg.PollInterval),
	)

	var wg sync.WaitGroup
	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()

	w.logger.Info("queue worker stopped", slog.String("queue", w.cfg.Queue))
}

func (w *Worker) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := w.store.Claim(ctx, w.cfg.Queue)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("claim failed",
				slog.String("queue", w.cfg.Queue),
				slog.String("error", err.Error()),
			)
			w.sleep(ctx)
			continue
		}

		if job == nil {
			w.sleep(ctx)
			continue
		}

		w.process(ctx, job)
	}
}

// process runs the handler and settles the job. Settlement uses a background
// context so a shutdown mid-job still records the outcome.
func (w *Worker) process(ctx context.Context, job *Job) {
	jobCtx := ctx
	var cancel context.CancelFunc
	if w.cfg.JobTimeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, w.cfg.JobTimeout)
		defer cancel()
	}

	err := w.handler(jobCtx, job)

	settleCtx, settleCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer settleCancel()

	if err == nil {
		if cerr := w.store.Complete(settleCtx, job.ID); cerr != nil {
			// The job stays processing and is not retried automatically;
			// operators recover it from the jobs table.
			w.logger.Error("complete failed",
				slog.String("queue", w.cfg.Queue),
				slog.Int64("job_id", job.ID),
				slog.String("error", cerr.Error()),
			)
			return
		}
		jobsProcessedTotal.WithLabelValues(w.cfg.Queue, "ok").Inc()
		return
	}

	dead, ferr := w.store.Fail(settleCtx, job, err)
	if ferr != nil {
		w.logger.Error("fail settlement failed",
			slog.String("queue", w.cfg.Queue),
			slog.Int64("job_id", job.ID),
			slog.String("error", ferr.Error()),
		)
		return
	}

	if dead {
		jobsProcessedTotal.WithLabelValues(w.cfg.Queue, "dead").Inc()
		if w.deadLetter != nil {
			w.deadLetter(settleCtx, job, err)
		}
		return
	}
	jobsProcessedTotal.WithLabelValues(w.cfg.Queue, "retry").Inc()
}

func (w *Worker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.cfg.PollInterval):
	}
}
