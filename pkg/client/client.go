// Package client provides the producer API for submitting jobs and reading
// them back.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/muaviaUsmani/papaya/internal/job"
	"github.com/muaviaUsmani/papaya/internal/keys"
	"github.com/muaviaUsmani/papaya/internal/queue"
	"github.com/muaviaUsmani/papaya/internal/serialization"
	"github.com/muaviaUsmani/papaya/internal/store"
)

// JobOption adjusts the policy of a job before it is created.
type JobOption func(*job.Job)

// WithRetry enables retrying consumer errors up to times attempts after the
// first, waiting interval between attempts. A times of zero or less keeps
// the default retry count, and a negative interval keeps the default
// interval.
func WithRetry(times int, interval time.Duration) JobOption {
	return func(j *job.Job) {
		j.Retry = true
		if times > 0 {
			j.RetryTimes = times
		}
		if interval >= 0 {
			j.RetryInterval = interval
		}
	}
}

// WithoutRetry disables retrying; the first consumer error is terminal.
func WithoutRetry() JobOption {
	return func(j *job.Job) {
		j.Retry = false
	}
}

// WithGhostRetry configures how timed-out attempts are retried.
func WithGhostRetry(times int, interval time.Duration) JobOption {
	return func(j *job.Job) {
		j.GhostRetry = true
		if times > 0 {
			j.GhostTimes = times
		}
		if interval >= 0 {
			j.GhostInterval = interval
		}
	}
}

// WithoutGhostRetry makes the first timeout terminal.
func WithoutGhostRetry() JobOption {
	return func(j *job.Job) {
		j.GhostRetry = false
	}
}

// WithProcessTimeout sets the wall-clock limit for one attempt.
func WithProcessTimeout(d time.Duration) JobOption {
	return func(j *job.Job) {
		if d > 0 {
			j.ProcessTimeout = d
		}
	}
}

// WithScheduleAt delays the job's first run to an absolute time. Times in
// the past leave the job immediately runnable.
func WithScheduleAt(t time.Time) JobOption {
	return func(j *job.Job) {
		j.ScheduleAt(t)
	}
}

// Client submits jobs and fetches their records.
type Client struct {
	client     *redis.Client
	store      *store.Store
	queue      *queue.Queue
	serializer *serialization.Serializer
}

// New creates a client connected to Redis under the default namespace.
func New(redisURL string) (*Client, error) {
	return NewWithNamespace(redisURL, keys.DefaultNamespace)
}

// NewWithNamespace creates a client using an explicit key namespace. All
// processes sharing a queue must agree on the namespace.
func NewWithNamespace(redisURL, namespace string) (*Client, error) {
	rc, err := store.Connect(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	s := store.New(rc, keys.NewNamer(namespace))
	return &Client{
		client:     rc,
		store:      s,
		queue:      queue.New(s),
		serializer: serialization.NewJSONSerializer(),
	}, nil
}

// Create submits a new job and returns its allocated id. The payload is
// passed through untouched when it is already []byte; anything else goes
// through the payload codec.
func (c *Client) Create(ctx context.Context, name string, payload interface{}, opts ...JobOption) (string, error) {
	if name == "" {
		return "", fmt.Errorf("job name is required")
	}

	var data []byte
	switch p := payload.(type) {
	case nil:
	case []byte:
		data = p
	default:
		encoded, err := c.serializer.Marshal(p)
		if err != nil {
			return "", fmt.Errorf("failed to marshal payload: %w", err)
		}
		data = encoded
	}

	j := job.New(name, data)
	for _, opt := range opts {
		opt(j)
	}

	id, err := c.store.Create(ctx, j)
	if err != nil {
		return "", err
	}
	if err := c.queue.Enqueue(ctx, j); err != nil {
		return "", err
	}

	return id, nil
}

// Job fetches the canonical record for a job id.
func (c *Client) Job(ctx context.Context, id string) (*job.Job, error) {
	return c.store.Fetch(ctx, id)
}

// Close closes the underlying Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}
