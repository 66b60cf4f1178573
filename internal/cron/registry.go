package cron

import (
	"context"
	"errors"
	"fmt"
)

// Job is one unit of periodic work, such as expiring stale checkout sessions.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds the jobs a cron service runs each cycle. Jobs run in
// registration order and names are unique.
type Registry struct {
	order []Job
	names map[string]struct{}
}

// NewRegistry builds a registry from jobs, skipping nils.
func NewRegistry(jobs ...Job) (*Registry, error) {
	r := &Registry{names: make(map[string]struct{}, len(jobs))}
	for _, job := range jobs {
		if job == nil {
			continue
		}
		if err := r.Register(job); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends job. Registering a second job under the same name fails.
func (r *Registry) Register(job Job) error {
	if job == nil {
		return errors.New("cron registry: nil job")
	}
	name := job.Name()
	if name == "" {
		return errors.New("cron registry: job name required")
	}
	if r.names == nil {
		r.names = make(map[string]struct{})
	}
	if _, taken := r.names[name]; taken {
		return fmt.Errorf("cron registry: duplicate job %q", name)
	}
	r.names[name] = struct{}{}
	r.order = append(r.order, job)
	return nil
}

// Jobs returns a copy of the registered jobs.
func (r *Registry) Jobs() []Job {
	return append([]Job(nil), r.order...)
}

// Names lists job names in run order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.order))
	for _, job := range r.order {
		names = append(names, job.Name())
	}
	return names
}
