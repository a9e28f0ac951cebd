package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/marba/synapse/internal/logger"
)

// ErrStarted is returned by Add after Start.
var ErrStarted = errors.New("scheduler: already started")

// Job is one periodic unit of work.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs each job once at start and then every interval. A job's runs
// never overlap: a tick that arrives while the job is still running is dropped.
type Scheduler struct {
	mu      sync.Mutex
	jobs    []Job
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	log     zerolog.Logger
}

func New() *Scheduler {
	return &Scheduler{log: logger.With("scheduler")}
}

// Add registers a job. Jobs with a non-positive interval are rejected.
func (s *Scheduler) Add(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrStarted
	}
	if job.Run == nil || job.Interval <= 0 {
		return errors.New("scheduler: job needs a run function and a positive interval")
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// Start launches one goroutine per job. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
}

// Stop cancels running jobs and waits for their goroutines to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	s.run(ctx, job)
	for {
		select {
		case <-ticker.C:
			s.run(ctx, job)
		case <-ctx.Done():
			return
		}
	}
}

// run executes job synchronously on the job's own goroutine, which is what
// keeps runs from overlapping.
func (s *Scheduler) run(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("job", job.Name).Interface("panic", r).Msg("Scheduled job panicked")
		}
	}()

	if err := job.Run(ctx); err != nil {
		s.log.Error().Err(err).Str("job", job.Name).Dur("duration", time.Since(start)).Msg("Scheduled job failed")
		return
	}
	s.log.Debug().Str("job", job.Name).Dur("duration", time.Since(start)).Msg("Scheduled job finished")
}
