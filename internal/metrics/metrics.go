// Package metrics tracks in-memory counters and gauges for the queue.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/muaviaUsmani/papaya/internal/job"
)

var (
	globalCollector *Collector
	once            sync.Once
)

// Collector tracks system-wide metrics in memory
type Collector struct {
	// Counters (atomic for thread-safety)
	totalJobsCreated   atomic.Int64
	totalJobsSucceeded atomic.Int64
	totalJobsFailed    atomic.Int64
	totalJobsRetried   atomic.Int64
	totalJobsGhosted   atomic.Int64
	throttleEngaged    atomic.Int64

	// Gauges and histograms (protected by mutex)
	mu            sync.RWMutex
	jobsByState   map[job.State]int64
	queueDepths   map[string]int64
	totalDuration time.Duration
	durationCount int64
	startTime     time.Time
	inflightJobs  int64
	targetJobs    int64
}

// Metrics represents a snapshot of current system metrics
type Metrics struct {
	TotalJobsCreated   int64               `json:"total_jobs_created"`
	TotalJobsSucceeded int64               `json:"total_jobs_succeeded"`
	TotalJobsFailed    int64               `json:"total_jobs_failed"`
	TotalJobsRetried   int64               `json:"total_jobs_retried"`
	TotalJobsGhosted   int64               `json:"total_jobs_ghosted"`
	ThrottleEngaged    int64               `json:"throttle_engaged"`
	JobsByState        map[job.State]int64 `json:"jobs_by_state"`
	QueueDepths        map[string]int64    `json:"queue_depths"`
	AvgJobDuration     time.Duration       `json:"avg_job_duration"`
	WorkerUtilization  float64             `json:"worker_utilization"`
	Uptime             time.Duration       `json:"uptime"`
}

// Default returns the global metrics collector instance
func Default() *Collector {
	once.Do(func() {
		globalCollector = NewCollector()
	})
	return globalCollector
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	return &Collector{
		jobsByState: make(map[job.State]int64),
		queueDepths: make(map[string]int64),
		startTime:   time.Now(),
	}
}

// RecordJobCreated increments the created counter and the state gauge
func (c *Collector) RecordJobCreated(state job.State) {
	c.totalJobsCreated.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobsByState[state]++
}

// RecordTransition moves a job between state gauges
func (c *Collector) RecordTransition(from, to job.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.jobsByState[from] > 0 {
		c.jobsByState[from]--
	}
	c.jobsByState[to]++
}

// RecordJobSucceeded records a terminal success and the attempt duration
func (c *Collector) RecordJobSucceeded(duration time.Duration) {
	c.totalJobsSucceeded.Add(1)
	c.recordDuration(duration)
}

// RecordJobFailed records a terminal failure and the attempt duration
func (c *Collector) RecordJobFailed(duration time.Duration) {
	c.totalJobsFailed.Add(1)
	c.recordDuration(duration)
}

// RecordJobRetried counts a retry transition
func (c *Collector) RecordJobRetried() {
	c.totalJobsRetried.Add(1)
}

// RecordJobGhosted counts a ghost transition
func (c *Collector) RecordJobGhosted() {
	c.totalJobsGhosted.Add(1)
}

// RecordThrottleEngaged counts a throttle engagement in the worker loop
func (c *Collector) RecordThrottleEngaged() {
	c.throttleEngaged.Add(1)
}

// RecordQueueDepth sets the current depth gauge for a queue name
func (c *Collector) RecordQueueDepth(name string, depth int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queueDepths[name] = depth
}

// RecordWorkerActivity sets the in-flight and target job gauges
func (c *Collector) RecordWorkerActivity(inflight, target int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inflightJobs = inflight
	c.targetJobs = target
}

func (c *Collector) recordDuration(duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalDuration += duration
	c.durationCount++
}

// Snapshot returns a copy of all current metrics
func (c *Collector) Snapshot() *Metrics {
	c.mu.RLock()
	defer c.mu.RUnlock()

	byState := make(map[job.State]int64, len(c.jobsByState))
	for k, v := range c.jobsByState {
		byState[k] = v
	}
	depths := make(map[string]int64, len(c.queueDepths))
	for k, v := range c.queueDepths {
		depths[k] = v
	}

	var avg time.Duration
	if c.durationCount > 0 {
		avg = c.totalDuration / time.Duration(c.durationCount)
	}

	var utilization float64
	if c.targetJobs > 0 {
		utilization = float64(c.inflightJobs) / float64(c.targetJobs)
	}

	return &Metrics{
		TotalJobsCreated:   c.totalJobsCreated.Load(),
		TotalJobsSucceeded: c.totalJobsSucceeded.Load(),
		TotalJobsFailed:    c.totalJobsFailed.Load(),
		TotalJobsRetried:   c.totalJobsRetried.Load(),
		TotalJobsGhosted:   c.totalJobsGhosted.Load(),
		ThrottleEngaged:    c.throttleEngaged.Load(),
		JobsByState:        byState,
		QueueDepths:        depths,
		AvgJobDuration:     avg,
		WorkerUtilization:  utilization,
		Uptime:             time.Since(c.startTime),
	}
}

// Reset clears all metrics (for testing)
func (c *Collector) Reset() {
	c.totalJobsCreated.Store(0)
	c.totalJobsSucceeded.Store(0)
	c.totalJobsFailed.Store(0)
	c.totalJobsRetried.Store(0)
	c.totalJobsGhosted.Store(0)
	c.throttleEngaged.Store(0)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobsByState = make(map[job.State]int64)
	c.queueDepths = make(map[string]int64)
	c.totalDuration = 0
	c.durationCount = 0
	c.inflightJobs = 0
	c.targetJobs = 0
	c.startTime = time.Now()
}
