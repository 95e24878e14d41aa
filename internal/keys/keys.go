// Package keys derives the Redis key names used by the queue from a single
// configurable namespace prefix.
package keys

import "strings"

// DefaultNamespace is the key prefix used when none is configured.
const DefaultNamespace = "papaya"

// Namer builds namespaced Redis key names. The zero value is not usable;
// construct with NewNamer.
type Namer struct {
	prefix string
	// Pre-computed keys for better performance (avoid string allocations)
	idKey        string
	scheduledKey string
	timeIndexKey string
}

// NewNamer creates a Namer for the given namespace. An empty namespace falls
// back to DefaultNamespace. The namespace must not contain ':'.
func NewNamer(namespace string) *Namer {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	prefix := namespace + ":"
	return &Namer{
		prefix:       prefix,
		idKey:        prefix + "id",
		scheduledKey: prefix + "scheduled",
		timeIndexKey: prefix + "time-index",
	}
}

// Namespace returns the configured namespace without the trailing colon.
func (n *Namer) Namespace() string {
	return strings.TrimSuffix(n.prefix, ":")
}

// ID returns the key of the monotonic job id allocator counter.
func (n *Namer) ID() string {
	return n.idKey
}

// Job returns the key of the canonical per-job hash.
func (n *Namer) Job(jobID string) string {
	var b strings.Builder
	b.Grow(len(n.prefix) + 4 + len(jobID)) // "job:" = 4 chars
	b.WriteString(n.prefix)
	b.WriteString("job:")
	b.WriteString(jobID)
	return b.String()
}

// Queue returns the key of the FIFO list of runnable ids for a job name.
func (n *Namer) Queue(name string) string {
	var b strings.Builder
	b.Grow(len(n.prefix) + 6 + len(name)) // "queue:" = 6 chars
	b.WriteString(n.prefix)
	b.WriteString("queue:")
	b.WriteString(name)
	return b.String()
}

// Queues returns the queue keys for a list of job names, in order.
func (n *Namer) Queues(names []string) []string {
	ks := make([]string, len(names))
	for i, name := range names {
		ks[i] = n.Queue(name)
	}
	return ks
}

// Scheduled returns the key of the delayed/retry/ghost-delay sorted set.
func (n *Namer) Scheduled() string {
	return n.scheduledKey
}

// State returns the key of the id set for a given job state.
func (n *Namer) State(state string) string {
	var b strings.Builder
	b.Grow(len(n.prefix) + 6 + len(state)) // "state:" = 6 chars
	b.WriteString(n.prefix)
	b.WriteString("state:")
	b.WriteString(state)
	return b.String()
}

// TimeIndex returns the key of the creation-time sorted set.
func (n *Namer) TimeIndex() string {
	return n.timeIndexKey
}

// LockKey returns the key used for the scheduler's distributed lock.
func (n *Namer) LockKey(name string) string {
	return n.prefix + "lock:" + name
}
