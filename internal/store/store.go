// Package store implements CRUD over job records in Redis: id allocation,
// the canonical per-job hash, the per-state index sets and the creation-time
// index.
package store

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	qerrors "github.com/muaviaUsmani/papaya/internal/errors"
	"github.com/muaviaUsmani/papaya/internal/job"
	"github.com/muaviaUsmani/papaya/internal/keys"
	"github.com/muaviaUsmani/papaya/internal/logger"
	"github.com/muaviaUsmani/papaya/internal/metrics"
)

// Hash field names of the per-job record.
const (
	fieldItemData = "itemData"
	fieldState    = "state"
)

// Store persists job records. Redis holds the only canonical state; an
// in-memory Job is a working copy owned by whoever fetched it.
type Store struct {
	client *redis.Client
	keys   *keys.Namer
	log    logger.Logger
}

// New creates a Store over an established Redis client.
func New(client *redis.Client, namer *keys.Namer) *Store {
	return &Store{
		client: client,
		keys:   namer,
		log:    logger.Default().WithComponent(logger.ComponentStore),
	}
}

// Keys exposes the key namer so collaborators share one namespace.
func (s *Store) Keys() *keys.Namer {
	return s.keys
}

// Client exposes the underlying Redis client for collaborators that issue
// their own commands (queue lists, scheduler lock).
func (s *Store) Client() *redis.Client {
	return s.client
}

// Create allocates the next job id, assigns it to the record and persists
// the record, its state index membership and its creation-time index entry.
// Write steps are issued in order; the first failure surfaces as a
// StorageError and is not retried.
func (s *Store) Create(ctx context.Context, j *job.Job) (string, error) {
	seq, err := s.client.Incr(ctx, s.keys.ID()).Result()
	if err != nil {
		return "", qerrors.NewStorage("create: allocate id", err)
	}
	j.ID = strconv.FormatInt(seq, 10)

	itemData, err := j.Marshal()
	if err != nil {
		return "", err
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, s.keys.Job(j.ID), fieldItemData, itemData, fieldState, string(j.State))
	pipe.SAdd(ctx, s.keys.State(string(j.State)), j.ID)
	pipe.ZAdd(ctx, s.keys.TimeIndex(), redis.Z{
		Score:  float64(j.CreateTime.UnixMilli()),
		Member: j.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", qerrors.NewStorage("create: persist record", err)
	}

	metrics.Default().RecordJobCreated(j.State)
	s.log.Debug("Created job", "job_id", j.ID, "job_name", j.Name, "state", j.State)

	return j.ID, nil
}

// Fetch reads the canonical record for a job id. The hash's separate state
// field is authoritative: it overrides whatever state the serialized record
// carries, so single-key state transitions are never lost to a stale save.
func (s *Store) Fetch(ctx context.Context, jobID string) (*job.Job, error) {
	vals, err := s.client.HMGet(ctx, s.keys.Job(jobID), fieldItemData, fieldState).Result()
	if err != nil {
		return nil, qerrors.NewStorage("fetch", err)
	}

	rawData, ok := vals[0].(string)
	if !ok || rawData == "" {
		return nil, qerrors.ErrNotFound
	}

	j, err := job.Unmarshal([]byte(rawData))
	if err != nil {
		return nil, qerrors.ErrCorrupt
	}

	// An id mismatch means the hash holds another job's data; treat as skew
	if j.ID != jobID {
		return nil, qerrors.ErrNotFound
	}

	if rawState, ok := vals[1].(string); ok && rawState != "" {
		j.State = job.State(rawState)
	}

	return j, nil
}

// Save writes the serialized record only. Callers changing state must also
// call UpdateStateIndex; Save deliberately leaves the state field alone.
func (s *Store) Save(ctx context.Context, j *job.Job) error {
	itemData, err := j.Marshal()
	if err != nil {
		return err
	}
	if err := s.client.HSet(ctx, s.keys.Job(j.ID), fieldItemData, itemData).Err(); err != nil {
		return qerrors.NewStorage("save", err)
	}
	return nil
}

// UpdateStateIndex records a state transition: the old state's set
// membership is removed, the new one added and the authoritative hash field
// rewritten, all in one pipeline. The in-memory record is moved to newState
// on success.
func (s *Store) UpdateStateIndex(ctx context.Context, j *job.Job, newState job.State) error {
	oldState := j.State

	pipe := s.client.Pipeline()
	if oldState != "" && oldState != newState {
		pipe.SRem(ctx, s.keys.State(string(oldState)), j.ID)
	}
	pipe.SAdd(ctx, s.keys.State(string(newState)), j.ID)
	pipe.HSet(ctx, s.keys.Job(j.ID), fieldState, string(newState))
	if _, err := pipe.Exec(ctx); err != nil {
		return qerrors.NewStorage("update state index", err)
	}

	j.UpdateState(newState)
	metrics.Default().RecordTransition(oldState, newState)
	return nil
}

// IndexTime writes the job's creation timestamp into the time index.
func (s *Store) IndexTime(ctx context.Context, j *job.Job) error {
	err := s.client.ZAdd(ctx, s.keys.TimeIndex(), redis.Z{
		Score:  float64(j.CreateTime.UnixMilli()),
		Member: j.ID,
	}).Err()
	if err != nil {
		return qerrors.NewStorage("index time", err)
	}
	return nil
}
