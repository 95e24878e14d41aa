// Package scheduler promotes delayed, retried and ghosted jobs from the
// scheduled sorted set into their active queues once their due time arrives.
package scheduler

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	qerrors "github.com/muaviaUsmani/papaya/internal/errors"
	"github.com/muaviaUsmani/papaya/internal/job"
	"github.com/muaviaUsmani/papaya/internal/keys"
	"github.com/muaviaUsmani/papaya/internal/logger"
	"github.com/muaviaUsmani/papaya/internal/queue"
	"github.com/muaviaUsmani/papaya/internal/store"
)

// DefaultInterval is the tick interval used when none is configured.
const DefaultInterval = 1 * time.Second

// Scheduler periodically moves due job ids from the scheduled set onto
// their queue lists. A distributed lock keeps promotion single-writer even
// when several scheduler processes run.
type Scheduler struct {
	store    *store.Store
	queue    *queue.Queue
	client   *redis.Client
	keys     *keys.Namer
	interval time.Duration
	lockTTL  time.Duration
	log      logger.Logger
}

// New creates a Scheduler over the shared store and queue.
func New(s *store.Store, q *queue.Queue, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Scheduler{
		store:    s,
		queue:    q,
		client:   s.Client(),
		keys:     s.Keys(),
		interval: interval,
		lockTTL:  60 * time.Second,
		log:      logger.Default().WithComponent(logger.ComponentScheduler),
	}
}

// SetLockTTL sets the distributed lock TTL (for testing or tuning)
func (s *Scheduler) SetLockTTL(ttl time.Duration) {
	s.lockTTL = ttl
}

// Start runs the tick loop until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("Scheduler started", "interval", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Scheduler stopping")
			return
		case <-ticker.C:
			if _, err := s.Tick(ctx); err != nil {
				s.log.Error("Scheduler tick failed", "error", err)
			}
		}
	}
}

// Tick promotes every id in the scheduled set whose due time has arrived.
// Failures on individual ids are logged and do not abort the tick. Returns
// the number of jobs promoted.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	lock, err := AcquireLock(ctx, s.client, s.keys.LockKey("scheduler"), s.lockTTL)
	if err != nil {
		return 0, qerrors.NewStorage("scheduler lock", err)
	}
	if lock == nil {
		// Another instance holds this tick
		s.log.Debug("Scheduler tick already locked by another instance")
		return 0, nil
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			s.log.Error("Failed to release scheduler lock", "error", err)
		}
	}()

	now := time.Now().UnixMilli()
	jobIDs, err := s.client.ZRangeByScore(ctx, s.keys.Scheduled(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now, 10),
	}).Result()
	if err != nil {
		return 0, qerrors.NewStorage("scheduler: read scheduled set", err)
	}

	if len(jobIDs) == 0 {
		return 0, nil
	}

	moved := 0
	for _, jobID := range jobIDs {
		promoted, err := s.promote(ctx, jobID)
		if err != nil {
			s.log.Error("Failed to promote scheduled job", "job_id", jobID, "error", err)
			continue
		}
		if promoted {
			moved++
		}
	}

	if moved > 0 {
		s.log.Info("Promoted scheduled jobs", "count", moved)
	}
	return moved, nil
}

// promote moves a single due id into its active queue: fetch, clear the
// delay marker, write queued, push, then drop the scheduled entry. Returns
// false when the entry was cleaned up rather than promoted.
func (s *Scheduler) promote(ctx context.Context, jobID string) (bool, error) {
	j, err := s.store.Fetch(ctx, jobID)
	if err != nil {
		if qerrors.IsNotFound(err) || qerrors.IsCorrupt(err) {
			// Entry points at nothing usable; clean it out of the set
			s.log.Warn("Removing scheduled entry with unreadable record", "job_id", jobID)
			if remErr := s.client.ZRem(ctx, s.keys.Scheduled(), jobID).Err(); remErr != nil {
				return false, qerrors.NewStorage("scheduler: remove dangling entry", remErr)
			}
			return false, nil
		}
		return false, err
	}

	j.ClearDelay()
	if err := s.store.UpdateStateIndex(ctx, j, job.StateQueued); err != nil {
		return false, err
	}
	if err := s.store.Save(ctx, j); err != nil {
		return false, err
	}
	if err := s.queue.Enqueue(ctx, j); err != nil {
		return false, err
	}
	if err := s.client.ZRem(ctx, s.keys.Scheduled(), jobID).Err(); err != nil {
		return false, qerrors.NewStorage("scheduler: remove promoted entry", err)
	}

	s.log.Debug("Promoted job", "job_id", j.ID, "job_name", j.Name)
	return true, nil
}
