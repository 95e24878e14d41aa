// Package queue implements the router that places runnable job ids on their
// per-name FIFO lists (or the scheduled set, for delayed work) and the
// blocking pop model workers drain them with.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	qerrors "github.com/muaviaUsmani/papaya/internal/errors"
	"github.com/muaviaUsmani/papaya/internal/job"
	"github.com/muaviaUsmani/papaya/internal/keys"
	"github.com/muaviaUsmani/papaya/internal/logger"
	"github.com/muaviaUsmani/papaya/internal/metrics"
	"github.com/muaviaUsmani/papaya/internal/store"
)

// Queue routes job ids onto Redis lists and pops them back off.
type Queue struct {
	client *redis.Client
	keys   *keys.Namer
	store  *store.Store
	log    logger.Logger
}

// New creates a Queue sharing the store's client and namespace.
func New(s *store.Store) *Queue {
	return &Queue{
		client: s.Client(),
		keys:   s.Keys(),
		store:  s,
		log:    logger.Default().WithComponent(logger.ComponentQueue),
	}
}

// Enqueue places the job where its current state says it belongs:
//
//   - runnable states (new, queued, retry and ghost with no pending delay)
//     go to the tail of the per-name list, keeping push order strictly FIFO
//   - delayed states (delayed, retry/ghost with a positive interval) go to
//     the scheduled sorted set with the due timestamp as score
//   - terminal states enqueue nothing
func (q *Queue) Enqueue(ctx context.Context, j *job.Job) error {
	state := j.State

	switch {
	case state.Terminal():
		return nil

	case state == job.StateDelayed,
		state == job.StateRetry && j.RetryInterval > 0,
		state == job.StateGhost && j.GhostInterval > 0:
		due := j.DueTime(state)
		err := q.client.ZAdd(ctx, q.keys.Scheduled(), redis.Z{
			Score:  float64(due.UnixMilli()),
			Member: j.ID,
		}).Err()
		if err != nil {
			return qerrors.NewStorage("enqueue scheduled", err)
		}
		q.log.Debug("Scheduled job", "job_id", j.ID, "job_name", j.Name, "due", due.Format(time.RFC3339Nano))

	case state.Runnable():
		if err := q.client.RPush(ctx, q.keys.Queue(j.Name), j.ID).Err(); err != nil {
			return qerrors.NewStorage("enqueue", err)
		}
		q.log.Debug("Enqueued job", "job_id", j.ID, "job_name", j.Name, "state", state)
		q.updateQueueMetrics(ctx, j.Name)

	default:
		return fmt.Errorf("%w: cannot enqueue job in state %q", qerrors.ErrBadArgument, state)
	}

	return nil
}

// Pop issues a blocking multi-list pop across the queues for the given job
// names, hydrates the record, takes the lease by transitioning it to
// processing and appending a fresh process item, and returns it. A pop that
// returns nothing within the timeout fails with Empty. A popped id whose
// record is missing or corrupt is discarded and the pop is re-attempted
// once.
func (q *Queue) Pop(ctx context.Context, names []string, timeout time.Duration) (*job.Job, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no job names to pop", qerrors.ErrBadArgument)
	}

	queueKeys := q.keys.Queues(names)

	for attempt := 0; attempt < 2; attempt++ {
		res, err := q.client.BLPop(ctx, timeout, queueKeys...).Result()
		if err == redis.Nil {
			return nil, qerrors.ErrEmpty
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, qerrors.NewStorage("pop", err)
		}

		jobID := res[1]

		j, err := q.store.Fetch(ctx, jobID)
		if err != nil {
			if qerrors.IsNotFound(err) || qerrors.IsCorrupt(err) {
				// Dangling or unreadable reference; drop it and try again
				q.log.Error("Discarding popped job with unreadable record",
					"job_id", jobID, "error", err)
				continue
			}
			return nil, err
		}

		// Take the lease: state index first, then the record with its new
		// process item. The state write must precede the save so a crash
		// between the two leaves the job visibly processing.
		if err := q.store.UpdateStateIndex(ctx, j, job.StateProcessing); err != nil {
			return nil, err
		}
		j.BeginRun(time.Now())
		if err := q.store.Save(ctx, j); err != nil {
			return nil, err
		}

		q.log.Debug("Popped job", "job_id", j.ID, "job_name", j.Name, "attempt", len(j.Runs))
		return j, nil
	}

	return nil, qerrors.ErrEmpty
}

// Depth returns the number of runnable ids queued for a job name.
func (q *Queue) Depth(ctx context.Context, name string) (int64, error) {
	depth, err := q.client.LLen(ctx, q.keys.Queue(name)).Result()
	if err != nil {
		return 0, qerrors.NewStorage("queue depth", err)
	}
	return depth, nil
}

// ScheduledCount returns the number of ids waiting in the scheduled set.
func (q *Queue) ScheduledCount(ctx context.Context) (int64, error) {
	count, err := q.client.ZCard(ctx, q.keys.Scheduled()).Result()
	if err != nil {
		return 0, qerrors.NewStorage("scheduled count", err)
	}
	return count, nil
}

// updateQueueMetrics refreshes the depth gauge for a queue, best-effort.
func (q *Queue) updateQueueMetrics(ctx context.Context, name string) {
	depth, err := q.client.LLen(ctx, q.keys.Queue(name)).Result()
	if err != nil {
		q.log.Debug("Failed to read queue depth", "queue", name, "error", err)
		return
	}
	metrics.Default().RecordQueueDepth(name, depth)
}
