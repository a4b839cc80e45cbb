// Package scheduler runs background console jobs, such as token refresh and
// flow history reloads, on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a named unit of background work.
type Job struct {
	Name string
	// Schedule is a five-field cron expression or a descriptor such as "@every 4m".
	Schedule string
	Run      func(ctx context.Context) error
}

type entry struct {
	job      Job
	schedule cron.Schedule
	next     time.Time
}

// Scheduler runs jobs when their schedules come due. A job never overlaps itself:
// a run that is due while the previous one is still going is skipped.
type Scheduler struct {
	parser cron.Parser
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries []*entry
	cancel  context.CancelFunc
	done    chan struct{}
	wake    chan struct{}
	running sync.WaitGroup

	inflightMu sync.Mutex
	inflight   map[string]struct{}
}

// NewScheduler creates a Scheduler.
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		logger:   logger,
		now:      time.Now,
		wake:     make(chan struct{}, 1),
		inflight: make(map[string]struct{}),
	}
}

// Add registers a job. Jobs may be added before or after Start.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job needs a name and a run function")
	}
	sched, err := s.parser.Parse(job.Schedule)
	if err != nil {
		return fmt.Errorf("parse cron expression %q for job %q: %w", job.Schedule, job.Name, err)
	}

	s.mu.Lock()
	for _, e := range s.entries {
		if e.job.Name == job.Name {
			s.mu.Unlock()
			return fmt.Errorf("job %q already registered", job.Name)
		}
	}
	s.entries = append(s.entries, &entry{job: job, schedule: sched, next: sched.Next(s.now())})
	s.mu.Unlock()

	s.poke()
	return nil
}

// Start launches the scheduling loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.done != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}
	schedCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(schedCtx)
	s.logger.Debug("scheduler started")
	return nil
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	for {
		wait := s.untilNext()
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-s.wake:
			timer.Stop()
		case <-timer.C:
			s.tick(ctx)
		}
	}
}

// untilNext returns the time to the earliest due job, or an hour when there are none.
func (s *Scheduler) untilNext() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	wait := time.Hour
	now := s.now()
	for _, e := range s.entries {
		if d := e.next.Sub(now); d < wait {
			wait = d
		}
	}
	if wait < 0 {
		wait = 0
	}
	return wait
}

// tick starts every job that is due and advances its next run.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []Job
	for _, e := range s.entries {
		if !e.next.After(now) {
			due = append(due, e.job)
			e.next = e.schedule.Next(now)
		}
	}
	s.mu.Unlock()

	for _, job := range due {
		s.dispatch(ctx, job)
	}
}

func (s *Scheduler) dispatch(ctx context.Context, job Job) bool {
	if !s.tryAcquire(job.Name) {
		s.logger.Debug("skipping job still in flight", slog.String("job", job.Name))
		return false
	}
	s.running.Add(1)
	go func() {
		defer s.running.Done()
		defer s.releaseJob(job.Name)
		if err := job.Run(ctx); err != nil {
			s.logger.Warn("scheduled job failed",
				slog.String("job", job.Name),
				slog.String("error", err.Error()),
			)
		}
	}()
	return true
}

// Trigger runs the named job now, outside its schedule. It reports false when the
// job is unknown or already running.
func (s *Scheduler) Trigger(ctx context.Context, name string) bool {
	s.mu.Lock()
	var job *Job
	for _, e := range s.entries {
		if e.job.Name == name {
			j := e.job
			job = &j
			break
		}
	}
	s.mu.Unlock()
	if job == nil {
		return false
	}
	return s.dispatch(ctx, *job)
}

func (s *Scheduler) tryAcquire(name string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[name]; ok {
		return false
	}
	s.inflight[name] = struct{}{}
	return true
}

func (s *Scheduler) releaseJob(name string) {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	delete(s.inflight, name)
}

// CalculateNextRun computes the next run time for a cron expression.
func (s *Scheduler) CalculateNextRun(cronExpr string, from time.Time) (time.Time, error) {
	schedule, err := s.parser.Parse(cronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", cronExpr, err)
	}
	return schedule.Next(from), nil
}

// Stop ends the loop and waits for running jobs to return. Jobs see their
// context cancelled.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return nil
	}
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	cancel()
	<-done
	s.running.Wait()

	s.logger.Debug("scheduler stopped")
	return nil
}
