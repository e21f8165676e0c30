package notify

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arnavshah/shift-offer-api/pkg/models"
	"github.com/arnavshah/shift-offer-api/pkg/store"
)

// RetryPolicy shapes the delivery backoff schedule.
type RetryPolicy struct {
	Base        time.Duration
	Factor      float64
	MaxAttempts int
}

// DefaultRetryPolicy matches the product defaults: 30s base, doubling, ten
// attempts before a job is abandoned.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Base: 30 * time.Second, Factor: 2, MaxAttempts: 10}
}

// Delay returns the wait before the next attempt, given how many attempts
// have already failed.
func (p RetryPolicy) Delay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return time.Duration(float64(p.Base) * math.Pow(p.Factor, float64(attempts-1)))
}

// WorkerPool drains the notification job queue. Workers claim each job
// before sending, so a retry race never double-delivers.
type WorkerPool struct {
	jobs         store.JobStore
	senders      map[models.Channel]Sender
	policy       RetryPolicy
	workers      int
	pollInterval time.Duration
	logger       *zap.Logger
	Now          func() time.Time
}

// NewWorkerPool builds a pool of the given size.
func NewWorkerPool(jobs store.JobStore, senders map[models.Channel]Sender,
	policy RetryPolicy, workers int, pollInterval time.Duration, logger *zap.Logger) *WorkerPool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers < 1 {
		workers = 1
	}
	return &WorkerPool{
		jobs:         jobs,
		senders:      senders,
		policy:       policy,
		workers:      workers,
		pollInterval: pollInterval,
		logger:       logger,
		Now:          time.Now,
	}
}

// Run blocks until ctx is cancelled. Each worker polls for due jobs and
// processes what it claims; a jobless poll just sleeps until the next tick.
func (p *WorkerPool) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.loop(ctx, id)
		}(i)
	}
	wg.Wait()
}

func (p *WorkerPool) loop(ctx context.Context, id int) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	p.logger.Info("notification worker started", zap.Int("worker", id))
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("notification worker stopped", zap.Int("worker", id))
			return
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

// drain claims and processes due jobs until none remain.
func (p *WorkerPool) drain(ctx context.Context) {
	for {
		claimed, err := p.jobs.ClaimDue(ctx, p.Now(), 10)
		if err != nil {
			p.logger.Error("failed to claim notification jobs", zap.Error(err))
			return
		}
		if len(claimed) == 0 {
			return
		}
		for i := range claimed {
			p.Process(ctx, &claimed[i])
		}
	}
}

// Process performs one delivery attempt for a claimed job and writes the
// outcome back: delivered, requeued with backoff, or failed for good.
func (p *WorkerPool) Process(ctx context.Context, job *models.NotificationJob) {
	sender, ok := p.senders[job.Channel]
	if !ok {
		job.Status = models.JobFailed
		job.LastError = "no sender configured for channel " + string(job.Channel)
		p.finish(ctx, job)
		return
	}

	job.Attempts++
	err := sender.Send(ctx, job)
	if err == nil {
		job.Status = models.JobDelivered
		job.LastError = ""
		p.finish(ctx, job)
		p.logger.Debug("notification delivered",
			zap.String("job_id", job.ID),
			zap.String("channel", string(job.Channel)),
			zap.Int("attempts", job.Attempts))
		return
	}

	job.LastError = err.Error()
	if job.Attempts >= p.policy.MaxAttempts {
		// Terminal. Reported, never propagated to the queue.
		job.Status = models.JobFailed
		p.finish(ctx, job)
		p.logger.Error("notification delivery abandoned",
			zap.String("job_id", job.ID),
			zap.String("channel", string(job.Channel)),
			zap.String("recipient", job.Recipient),
			zap.Int("attempts", job.Attempts),
			zap.Error(err))
		return
	}

	job.Status = models.JobQueued
	job.NextRetryAt = p.Now().Add(p.policy.Delay(job.Attempts))
	p.finish(ctx, job)
	p.logger.Warn("notification delivery failed, will retry",
		zap.String("job_id", job.ID),
		zap.Int("attempts", job.Attempts),
		zap.Time("next_retry_at", job.NextRetryAt),
		zap.Error(err))
}

func (p *WorkerPool) finish(ctx context.Context, job *models.NotificationJob) {
	if err := p.jobs.UpdateJob(ctx, job); err != nil {
		p.logger.Error("failed to persist notification job state",
			zap.String("job_id", job.ID), zap.Error(err))
	}
}
