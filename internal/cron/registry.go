package cron

import "context"

// Job is a unit of scheduled work. Each tick runs every registered job in
// order under the worker lock.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds the ordered set of jobs the worker executes per tick.
type Registry struct {
	jobs []Job
}

func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{}
	for _, job := range jobs {
		r.Register(job)
	}
	return r
}

// Register appends a job; nil jobs are ignored.
func (r *Registry) Register(job Job) {
	if job == nil {
		return
	}
	r.jobs = append(r.jobs, job)
}

// Jobs returns a copy of the registration order.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, len(r.jobs))
	copy(jobs, r.jobs)
	return jobs
}
