package worker

import (
	"context"
	"fmt"

	qerrors "github.com/muaviaUsmani/papaya/internal/errors"
	"github.com/muaviaUsmani/papaya/internal/job"
)

// Handler processes one attempt of a job. It receives the read-only job
// view and the payload attached at creation. A nil return reports success;
// any error reports a failed attempt and feeds the retry policy. The
// context carries the attempt's process timeout as its deadline.
type Handler func(ctx context.Context, j job.View, data []byte) error

// Registry maps job names to their handlers.
type Registry struct {
	handlers map[string]Handler
	names    []string
}

// NewRegistry creates an empty handler registry
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler for a job name. Registering an empty name or a
// nil handler is a caller bug and fails with BadArgument.
func (r *Registry) Register(name string, handler Handler) error {
	if name == "" {
		return fmt.Errorf("%w: job name is required", qerrors.ErrBadArgument)
	}
	if handler == nil {
		return fmt.Errorf("%w: handler is required", qerrors.ErrBadArgument)
	}
	if _, exists := r.handlers[name]; !exists {
		r.names = append(r.names, name)
	}
	r.handlers[name] = handler
	return nil
}

// Get retrieves a handler by job name
func (r *Registry) Get(name string) (Handler, bool) {
	handler, exists := r.handlers[name]
	return handler, exists
}

// Names returns the registered job names in registration order.
func (r *Registry) Names() []string {
	return r.names
}

// Count returns the number of registered handlers
func (r *Registry) Count() int {
	return len(r.handlers)
}
