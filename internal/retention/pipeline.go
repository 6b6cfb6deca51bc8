// Package retention ages stale market orders out of the live table
// through a bounded soft-delete, archive and purge sequence.
package retention

import (
	"context"
	"fmt"
	"log"
	"time"

	"market-data-sql/internal/observability"
	"market-data-sql/internal/storage"
)

// Config controls one retention pipeline.
type Config struct {
	// BatchSize bounds the rows each phase touches per statement.
	BatchSize int
	// MaxAge is how long an order may go unseen before it is retired.
	MaxAge time.Duration
	// CheckInterval is the scheduling period between invocations.
	CheckInterval time.Duration
	// TimeBudgetFraction of CheckInterval an invocation may spend before
	// it is cut off so the next tick is not starved.
	TimeBudgetFraction float64
	// PhasePause is slept between phases to bound load on the store.
	PhasePause time.Duration
	// HistoryMaxAge is how long hourly history buckets are kept. Zero
	// disables history trimming.
	HistoryMaxAge time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize == 0 {
		c.BatchSize = 1000
	}
	if c.MaxAge == 0 {
		c.MaxAge = 24 * time.Hour
	}
	if c.CheckInterval == 0 {
		c.CheckInterval = time.Hour
	}
	if c.TimeBudgetFraction == 0 {
		c.TimeBudgetFraction = 0.75
	}
	if c.PhasePause == 0 {
		c.PhasePause = 10 * time.Second
	}
	return c
}

// Result summarizes one pipeline invocation.
type Result struct {
	SoftDeleted    int64
	Archived       int64
	Purged         int64
	HistoryTrimmed int64
	BudgetExceeded bool
	Elapsed        time.Duration
}

// Total returns the number of rows all phases affected.
func (r Result) Total() int64 {
	return r.SoftDeleted + r.Archived + r.Purged + r.HistoryTrimmed
}

// Pipeline runs the retention phases against the store. Phases select
// rows by predicate, never by cursor, so an invocation interrupted by an
// error or the time budget resumes from current row state on the next
// tick.
type Pipeline struct {
	store     storage.RetentionStore
	history   storage.HistoryStore // optional, for hourly trim
	heartbeat *Heartbeat           // optional
	cfg       Config
	logger    *log.Logger
	now       func() time.Time
}

// Options configures a Pipeline.
type Options struct {
	Store     storage.RetentionStore
	History   storage.HistoryStore
	Heartbeat *Heartbeat
	Config    Config
	Logger    *log.Logger
	Now       func() time.Time
}

// NewPipeline creates a new retention pipeline.
func NewPipeline(opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Pipeline{
		store:     opts.Store,
		history:   opts.History,
		heartbeat: opts.Heartbeat,
		cfg:       opts.Config.withDefaults(),
		logger:    logger,
		now:       now,
	}
}

// Run executes one invocation. The heartbeat records the start before
// any work and any error after it; the error is also returned so the
// caller can log and carry on.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	start := p.now()

	if p.heartbeat != nil {
		if err := p.heartbeat.Started(start); err != nil {
			p.logger.Printf("[retention] heartbeat write failed: %v", err)
		}
	}

	res, err := p.run(ctx, start)
	res.Elapsed = p.now().Sub(start)

	if err != nil {
		observability.RecordRetentionRun("error", res.Elapsed.Seconds())
		if p.heartbeat != nil {
			if hbErr := p.heartbeat.Failed(p.now(), err); hbErr != nil {
				p.logger.Printf("[retention] heartbeat write failed: %v", hbErr)
			}
		}
		return res, err
	}

	status := "success"
	if res.BudgetExceeded {
		status = "cutoff"
	}
	observability.RecordRetentionRun(status, res.Elapsed.Seconds())
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, start time.Time) (Result, error) {
	var res Result

	budget := time.Duration(p.cfg.TimeBudgetFraction * float64(p.cfg.CheckInterval))
	limit := p.cfg.BatchSize
	trimEnabled := p.cfg.HistoryMaxAge > 0 && p.history != nil

	// Seeding the per-phase counts at a full batch makes every phase run
	// at least once; a phase keeps running only while its previous batch
	// came back full.
	lastSoft, lastArchive, lastPurge := int64(limit), int64(limit), int64(limit)
	lastTrim := int64(0)
	if trimEnabled {
		lastTrim = int64(limit)
	}

	for {
		now := p.now().UTC()

		if lastSoft >= int64(limit) {
			n, err := p.runPhase(ctx, "soft_delete", func() (int64, error) {
				return p.store.SoftDeleteStale(ctx, now, now.Add(-p.cfg.MaxAge), limit)
			})
			if err != nil {
				return res, err
			}
			lastSoft = n
			res.SoftDeleted += n
		}

		if lastArchive >= int64(limit) {
			n, err := p.runPhase(ctx, "archive", func() (int64, error) {
				return p.store.ArchiveRetired(ctx, limit)
			})
			if err != nil {
				return res, err
			}
			lastArchive = n
			res.Archived += n
		}

		if lastPurge >= int64(limit) {
			n, err := p.runPhase(ctx, "purge", func() (int64, error) {
				return p.store.PurgeArchived(ctx, limit)
			})
			if err != nil {
				return res, err
			}
			lastPurge = n
			res.Purged += n
		}

		if lastTrim >= int64(limit) {
			n, err := p.runPhase(ctx, "history_trim", func() (int64, error) {
				return p.history.TrimHourlyBefore(ctx, now.Add(-p.cfg.HistoryMaxAge), limit)
			})
			if err != nil {
				return res, err
			}
			lastTrim = n
			res.HistoryTrimmed += n
		}

		full := int64(limit)
		if lastSoft < full && lastArchive < full && lastPurge < full && lastTrim < full {
			break
		}

		if p.now().Sub(start) > budget {
			p.logger.Printf("[retention] time budget %v exceeded, cutting invocation short", budget)
			res.BudgetExceeded = true
			break
		}
	}

	p.logger.Printf("[retention] soft-deleted %d, archived %d, purged %d, trimmed %d in %v",
		res.SoftDeleted, res.Archived, res.Purged, res.HistoryTrimmed, p.now().Sub(start))
	return res, nil
}

// runPhase executes one bounded phase operation, records its metrics and
// sleeps the configured pause afterwards.
func (p *Pipeline) runPhase(ctx context.Context, name string, fn func() (int64, error)) (int64, error) {
	phaseStart := p.now()
	n, err := fn()
	observability.RecordRetentionPhase(name, n, p.now().Sub(phaseStart).Seconds())
	if err != nil {
		return 0, fmt.Errorf("%s phase: %w", name, err)
	}
	if n > 0 {
		p.logger.Printf("[retention] %s affected %d rows", name, n)
	}
	if err := p.pause(ctx); err != nil {
		return n, err
	}
	return n, nil
}

// pause sleeps between phases to throttle store load.
func (p *Pipeline) pause(ctx context.Context) error {
	if p.cfg.PhasePause <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.cfg.PhasePause):
		return nil
	}
}
