package metrics

import (
	"testing"
	"time"

	"github.com/muaviaUsmani/papaya/internal/job"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector()

	c.RecordJobCreated(job.StateNew)
	c.RecordJobCreated(job.StateDelayed)
	c.RecordJobSucceeded(2 * time.Second)
	c.RecordJobFailed(4 * time.Second)
	c.RecordJobRetried()
	c.RecordJobGhosted()
	c.RecordThrottleEngaged()

	m := c.Snapshot()

	if m.TotalJobsCreated != 2 {
		t.Errorf("expected 2 created, got %d", m.TotalJobsCreated)
	}
	if m.TotalJobsSucceeded != 1 || m.TotalJobsFailed != 1 {
		t.Errorf("expected 1 success and 1 failure, got %d/%d", m.TotalJobsSucceeded, m.TotalJobsFailed)
	}
	if m.TotalJobsRetried != 1 || m.TotalJobsGhosted != 1 {
		t.Errorf("expected 1 retry and 1 ghost, got %d/%d", m.TotalJobsRetried, m.TotalJobsGhosted)
	}
	if m.ThrottleEngaged != 1 {
		t.Errorf("expected 1 throttle engagement, got %d", m.ThrottleEngaged)
	}
	if m.AvgJobDuration != 3*time.Second {
		t.Errorf("expected avg 3s, got %v", m.AvgJobDuration)
	}
	if m.JobsByState[job.StateNew] != 1 || m.JobsByState[job.StateDelayed] != 1 {
		t.Errorf("unexpected state gauges: %v", m.JobsByState)
	}
}

func TestCollector_Transitions(t *testing.T) {
	c := NewCollector()

	c.RecordJobCreated(job.StateNew)
	c.RecordTransition(job.StateNew, job.StateProcessing)
	c.RecordTransition(job.StateProcessing, job.StateSuccess)

	m := c.Snapshot()
	if m.JobsByState[job.StateNew] != 0 {
		t.Errorf("expected new gauge drained, got %d", m.JobsByState[job.StateNew])
	}
	if m.JobsByState[job.StateSuccess] != 1 {
		t.Errorf("expected success gauge 1, got %d", m.JobsByState[job.StateSuccess])
	}
}

func TestCollector_WorkerUtilization(t *testing.T) {
	c := NewCollector()

	c.RecordWorkerActivity(2, 4)
	m := c.Snapshot()
	if m.WorkerUtilization != 0.5 {
		t.Errorf("expected utilization 0.5, got %f", m.WorkerUtilization)
	}
}

func TestCollector_QueueDepths(t *testing.T) {
	c := NewCollector()

	c.RecordQueueDepth("mail", 7)
	c.RecordQueueDepth("push", 0)

	m := c.Snapshot()
	if m.QueueDepths["mail"] != 7 {
		t.Errorf("expected depth 7, got %d", m.QueueDepths["mail"])
	}
}

func TestCollector_Reset(t *testing.T) {
	c := NewCollector()
	c.RecordJobCreated(job.StateNew)
	c.Reset()

	m := c.Snapshot()
	if m.TotalJobsCreated != 0 || len(m.JobsByState) != 0 {
		t.Errorf("expected clean collector after reset, got %+v", m)
	}
}
