package cron

import (
	"context"
	"sync"
	"time"
)

// Job is one maintenance task run by the cron worker.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type entry struct {
	job     Job
	every   time.Duration
	lastRun time.Time
}

// Registry tracks jobs with their own cadence. A job registered with a zero
// period runs on every cycle.
type Registry struct {
	mu      sync.Mutex
	entries []*entry
}

func NewRegistry(jobs ...Job) *Registry {
	r := &Registry{}
	for _, job := range jobs {
		r.Schedule(job, 0)
	}
	return r
}

// Schedule adds job so that it runs at most once per period. Nil jobs are ignored.
func (r *Registry) Schedule(job Job, every time.Duration) {
	if job == nil {
		return
	}
	if every < 0 {
		every = 0
	}
	r.mu.Lock()
	r.entries = append(r.entries, &entry{job: job, every: every})
	r.mu.Unlock()
}

// Due returns the jobs whose period has elapsed at now, in registration
// order, and stamps them as run. Last-run times are per process: a replica
// that takes over the lock starts every job fresh.
func (r *Registry) Due(now time.Time) []Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []Job
	for _, e := range r.entries {
		if !e.lastRun.IsZero() && now.Sub(e.lastRun) < e.every {
			continue
		}
		e.lastRun = now
		due = append(due, e.job)
	}
	return due
}

// Names lists the registered jobs.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		names = append(names, e.job.Name())
	}
	return names
}
