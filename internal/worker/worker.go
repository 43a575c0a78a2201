// Package worker runs background jobs from the SQLite job queue: sheet
// imports, company profile extraction and due follow-ups.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/kalambet/outreach/internal/storage"
)

// JobStore is the slice of the job queue the worker drives.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id, errMsg string) error
	DiscardJob(id, errMsg string) error
	RequeueRunning() (int, error)
}

// Handler processes one claimed job. A returned error fails the attempt and
// the queue retries it with backoff, unless it is wrapped with Permanent.
type Handler func(ctx context.Context, job *storage.Job) error

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying, e.g. an undecodable payload.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err was wrapped with Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

// Option configures a Worker.
type Option func(*Worker)

// WithJobTimeout bounds a single handler call. Zero means no limit.
func WithJobTimeout(d time.Duration) Option {
	return func(w *Worker) { w.jobTimeout = d }
}

// Worker claims jobs of the registered types and dispatches them to their
// handlers, one at a time.
type Worker struct {
	store      JobStore
	handlers   map[string]Handler
	poll       time.Duration
	jobTimeout time.Duration
	logger     *slog.Logger
}

// New creates a Worker polling every pollInterval (500ms when <= 0).
func New(store JobStore, pollInterval time.Duration, opts ...Option) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	w := &Worker{
		store:    store,
		handlers: make(map[string]Handler),
		poll:     pollInterval,
		logger:   slog.Default().With("component", "worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Handle registers h for jobType. It must be called before Run.
func (w *Worker) Handle(jobType string, h Handler) {
	w.handlers[jobType] = h
}

func (w *Worker) types() []string {
	types := make([]string, 0, len(w.handlers))
	for t := range w.handlers {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Run requeues jobs interrupted by a previous shutdown, then polls until ctx
// is cancelled. It drains due jobs back to back and sleeps only when the
// queue is idle.
func (w *Worker) Run(ctx context.Context) {
	if n, err := w.store.RequeueRunning(); err != nil {
		w.logger.Error("requeueing interrupted jobs", "error", err)
	} else if n > 0 {
		w.logger.Info("requeued interrupted jobs", "count", n)
	}

	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		worked, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if worked {
			t.Reset(0)
		} else {
			t.Reset(w.poll)
		}
	}
}

// RunOnce claims and processes a single job. It reports whether a job was
// claimed, whatever its outcome.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(w.types())
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}
	log := w.logger.With("job_id", job.ID, "type", job.Type, "attempt", job.Attempts+1)

	start := time.Now()
	herr := w.process(ctx, job)
	switch {
	case herr == nil:
		if err := w.store.CompleteJob(job.ID); err != nil {
			return true, fmt.Errorf("completing job %s: %w", job.ID, err)
		}
		log.Debug("job completed", "took", time.Since(start))
	case IsPermanent(herr):
		log.Warn("job discarded", "error", herr)
		if err := w.store.DiscardJob(job.ID, herr.Error()); err != nil {
			return true, fmt.Errorf("discarding job %s: %w", job.ID, err)
		}
	default:
		log.Warn("job failed", "error", herr)
		if err := w.store.FailJob(job.ID, herr.Error()); err != nil {
			return true, fmt.Errorf("failing job %s: %w", job.ID, err)
		}
	}
	return true, nil
}

func (w *Worker) process(ctx context.Context, job *storage.Job) (err error) {
	h, ok := w.handlers[job.Type]
	if !ok {
		return Permanent(fmt.Errorf("no handler for job type %q", job.Type))
	}
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic in %s handler: %v", job.Type, p)
		}
	}()
	return h(ctx, job)
}
