package retention

import (
	"context"
	"log"
	"time"
)

// Scheduler fires the pipeline on a fixed interval. It owns its ticker
// state, runs one invocation at a time, and treats invocation errors as
// non-fatal: the next tick retries from current row state.
type Scheduler struct {
	pipeline *Pipeline
	interval time.Duration
	logger   *log.Logger
}

// NewScheduler creates a scheduler firing every interval.
func NewScheduler(pipeline *Pipeline, interval time.Duration, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{pipeline: pipeline, interval: interval, logger: logger}
}

// Run invokes the pipeline immediately and then on every tick until the
// context is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Printf("[retention] checking every %v", s.interval)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.pipeline.Run(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Printf("[retention] invocation failed: %v", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
