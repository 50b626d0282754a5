// Package scheduler runs background maintenance jobs on cron schedules.
package scheduler

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ErrJobRunning is returned when a job is triggered while its previous run is still in progress
var ErrJobRunning = errors.New("job already running")

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// Scheduler manages background jobs
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New creates a new scheduler using standard five-field cron specs and @every descriptors
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a job with a cron schedule, e.g. "@every 1m" or "0 4 * * *"
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		started := time.Now()
		err := job.Run()
		switch {
		case errors.Is(err, ErrJobRunning):
			s.log.Warn().Str("job", job.Name()).Msg("Skipped run, previous run still in progress")
		case err != nil:
			s.log.Error().
				Err(err).
				Str("job", job.Name()).
				Dur("took", time.Since(started)).
				Msg("Job failed")
		default:
			s.log.Debug().Str("job", job.Name()).Dur("took", time.Since(started)).Msg("Job completed")
		}
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// RunNow executes a job immediately (outside schedule)
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return job.Run()
}

// JobFunc adapts a function to the Job interface
type JobFunc struct {
	JobName string
	Fn      func() error
}

// Run implements Job
func (f JobFunc) Run() error { return f.Fn() }

// Name implements Job
func (f JobFunc) Name() string { return f.JobName }

// Exclusive wraps job so that overlapping runs, scheduled or manual, fail with ErrJobRunning.
// Nil stays nil.
func Exclusive(job Job) Job {
	if job == nil {
		return nil
	}
	if _, ok := job.(*exclusiveJob); ok {
		return job
	}
	return &exclusiveJob{job: job}
}

type exclusiveJob struct {
	job     Job
	running atomic.Bool
}

func (j *exclusiveJob) Name() string { return j.job.Name() }

func (j *exclusiveJob) Run() error {
	if !j.running.CompareAndSwap(false, true) {
		return fmt.Errorf("%s: %w", j.job.Name(), ErrJobRunning)
	}
	defer j.running.Store(false)
	return j.job.Run()
}
