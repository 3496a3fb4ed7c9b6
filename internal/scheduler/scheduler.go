// Package scheduler triggers scrape runs on a cron cadence. An overlapping
// trigger is skipped rather than queued: if a run is still active when the
// next tick fires, the tick is a no-op.
package scheduler

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/signalharvest/harvester/internal/scrape"
)

// Runner starts scrape runs. Satisfied by the orchestrator.
type Runner interface {
	StartRun() (string, error)
}

// Scheduler wraps a cron instance with a single scrape-run entry.
type Scheduler struct {
	cron   *cron.Cron
	runner Runner
	logger *zap.Logger
}

// New builds a Scheduler for the given cron spec (standard five-field
// syntax, plus the @every extensions).
func New(spec string, runner Runner, logger *zap.Logger) (*Scheduler, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		cron:   cron.New(),
		runner: runner,
		logger: logger.Named("scheduler"),
	}
	if _, err := s.cron.AddFunc(spec, s.trigger); err != nil {
		return nil, fmt.Errorf("parse cron spec %q: %w", spec, err)
	}
	return s, nil
}

// Start begins firing ticks. Returns immediately.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts future ticks. A run already started keeps going; stopping the
// run itself is the orchestrator's job.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) trigger() {
	jobID, err := s.runner.StartRun()
	switch {
	case errors.Is(err, scrape.ErrAlreadyRunning):
		s.logger.Info("scheduled run skipped, previous run still active")
	case err != nil:
		s.logger.Error("scheduled run failed to start", zap.Error(err))
	default:
		s.logger.Info("scheduled run started", zap.String("jobId", jobID))
	}
}
