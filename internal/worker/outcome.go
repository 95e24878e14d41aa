package worker

import (
	"context"
	"time"

	"github.com/muaviaUsmani/papaya/internal/job"
	"github.com/muaviaUsmani/papaya/internal/logger"
	"github.com/muaviaUsmani/papaya/internal/metrics"
	"github.com/muaviaUsmani/papaya/internal/queue"
	"github.com/muaviaUsmani/papaya/internal/store"
)

// OutcomeProcessor applies the state machine to finished attempts and
// persists the transition in strict order: state index, then record, then
// re-enqueue for transient states.
type OutcomeProcessor struct {
	store *store.Store
	queue *queue.Queue
	log   logger.Logger
}

// NewOutcomeProcessor creates an OutcomeProcessor over the shared store and queue.
func NewOutcomeProcessor(s *store.Store, q *queue.Queue) *OutcomeProcessor {
	return &OutcomeProcessor{
		store: s,
		queue: q,
		log:   logger.Default().WithComponent(logger.ComponentWorker),
	}
}

// Process records the outcome on the job's current run, computes the next
// state and persists the transition. Terminal jobs enqueue nothing.
//
// Transition rules, first match wins:
//  1. success: terminal success
//  2. timeout: terminal fail unless ghost retry has probes left, else ghost
//  3. error: terminal fail unless retry has attempts left, else retry
func (p *OutcomeProcessor) Process(ctx context.Context, j *job.Job, o job.Outcome) (job.State, error) {
	now := time.Now()
	run := j.CurrentRun()

	j.FinishRun(o, now)
	next := j.NextState(o)

	if next.Terminal() {
		j.Finish(next == job.StateSuccess, now)
	}

	// Ordered persistence: a job must never be visible in a queue before
	// its state index says where it belongs.
	if err := p.store.UpdateStateIndex(ctx, j, next); err != nil {
		return next, err
	}
	if err := p.store.Save(ctx, j); err != nil {
		return next, err
	}
	if !next.Terminal() {
		if err := p.queue.Enqueue(ctx, j); err != nil {
			return next, err
		}
	}

	p.record(next, run)
	p.log.InfoContext(ctx, "Job outcome processed",
		"job_id", j.ID,
		"job_name", j.Name,
		"state", next,
		"attempts", len(j.Runs))

	return next, nil
}

func (p *OutcomeProcessor) record(next job.State, run *job.ProcessItem) {
	var duration time.Duration
	if run != nil {
		duration = run.ProcessTime
	}
	switch next {
	case job.StateSuccess:
		metrics.Default().RecordJobSucceeded(duration)
	case job.StateFail:
		metrics.Default().RecordJobFailed(duration)
	case job.StateRetry:
		metrics.Default().RecordJobRetried()
	case job.StateGhost:
		metrics.Default().RecordJobGhosted()
	}
}
