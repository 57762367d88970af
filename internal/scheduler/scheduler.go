package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/robfig/cron/v3"

	"github.com/himanishpuri/EKGSync/pkg/logger"
)

// Job is one scheduled pass, e.g. a batch alignment over new references.
type Job func(ctx context.Context) error

// Scheduler runs a Job on a cron schedule with seconds precision. A tick that
// fires while the previous pass is still running is skipped.
type Scheduler struct {
	Cron *cron.Cron
	Ctx  context.Context

	job     Job
	running atomic.Bool
	wg      sync.WaitGroup
	log     *logger.Logger

	mu      sync.Mutex
	runs    int
	skipped int
	lastErr error
}

// NewScheduler creates a Scheduler bound to ctx; the job sees ctx on every run.
func NewScheduler(ctx context.Context, job Job) *Scheduler {
	return &Scheduler{
		Cron: cron.New(cron.WithSeconds()),
		Ctx:  ctx,
		job:  job,
		log:  logger.GetLogger().With("scheduler"),
	}
}

// Register adds the job under spec (six fields, seconds first).
func (s *Scheduler) Register(spec string) error {
	if _, err := s.Cron.AddFunc(spec, s.tick); err != nil {
		return fmt.Errorf("register job %q: %w", spec, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Infof("Scheduler started")
}

// Stop halts the cron and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.wg.Wait()
	s.log.Infof("Scheduler stopped")
}

// RunNow executes one pass immediately, subject to the same overlap rule.
func (s *Scheduler) RunNow() error {
	return s.run()
}

// Stats returns how many passes ran, how many ticks were skipped, and the
// error of the latest pass.
func (s *Scheduler) Stats() (runs, skipped int, lastErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, s.skipped, s.lastErr
}

func (s *Scheduler) tick() {
	if err := s.run(); err != nil {
		s.log.Errorf("Scheduled pass failed: %v", err)
	}
}

var errBusy = errors.New("previous pass still running")

func (s *Scheduler) run() error {
	if s.Ctx.Err() != nil {
		return s.Ctx.Err()
	}
	if !s.running.CompareAndSwap(false, true) {
		s.mu.Lock()
		s.skipped++
		s.mu.Unlock()
		s.log.Warnf("Skipping tick: %v", errBusy)
		return nil
	}
	s.wg.Add(1)
	defer func() {
		s.running.Store(false)
		s.wg.Done()
	}()

	err := s.job(s.Ctx)

	s.mu.Lock()
	s.runs++
	s.lastErr = err
	s.mu.Unlock()
	return err
}
