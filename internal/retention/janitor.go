// Package retention runs the scheduled purge of expired execution records.
//
// Every cycle computes one cutoff (now minus the retention window) and then:
//   - without an archiver: purges every record older than the cutoff
//   - with an archiver:    writes the expired records to the archive in
//     batches, then purges them
//
// Archive failures are fail-safe: nothing is deleted in a cycle whose archive
// step failed. The janitor runs once on startup and then on every tick until
// its context is cancelled.
package retention

import (
	"context"
	"time"

	"github.com/agentoven/aigateway/internal/executions"
	"github.com/agentoven/aigateway/internal/store"
	"github.com/agentoven/aigateway/pkg/models"
	"github.com/rs/zerolog/log"
)

// DefaultInterval is the time between cycles.
const DefaultInterval = 24 * time.Hour

// MinInterval is the shortest accepted interval.
const MinInterval = time.Hour

// DefaultArchiveBatchSize is the max records per archive write.
const DefaultArchiveBatchSize = 5000

// Archiver writes expired records to durable storage before they are purged.
type Archiver interface {
	Kind() string
	ArchiveExecutions(ctx context.Context, records []models.ExecutionRecord) (string, error)
	HealthCheck(ctx context.Context) error
}

// CycleStats tracks what happened in a single retention cycle.
type CycleStats struct {
	Cutoff      time.Time
	Archived    int
	Purged      int64
	ArchiveURIs []string
	Errors      []error
}

// Janitor periodically archives and purges expired execution records.
type Janitor struct {
	store    store.ExecutionStore
	logger   *executions.Logger
	interval time.Duration
	days     int
	archiver Archiver
}

// NewJanitor creates a janitor enforcing a window of days (non-positive uses
// executions.DefaultRetentionDays) on the given interval.
func NewJanitor(s store.ExecutionStore, l *executions.Logger, interval time.Duration, days int) *Janitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if interval < MinInterval {
		interval = MinInterval
	}
	return &Janitor{
		store:    s,
		logger:   l,
		interval: interval,
		days:     executions.RetentionDays(days),
	}
}

// SetArchiver enables archive-then-purge.
func (j *Janitor) SetArchiver(a Archiver) {
	j.archiver = a
	log.Info().Str("kind", a.Kind()).Msg("Archive driver registered")
}

// Interval returns the effective cycle interval.
func (j *Janitor) Interval() time.Duration { return j.interval }

// Start runs the janitor. It blocks until ctx is canceled.
func (j *Janitor) Start(ctx context.Context) {
	archiver := "none"
	if j.archiver != nil {
		archiver = j.archiver.Kind()
	}
	log.Info().
		Dur("interval", j.interval).
		Int("retention_days", j.days).
		Str("archiver", archiver).
		Msg("Retention janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	// Run once immediately on startup
	j.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Retention janitor stopped")
			return
		case <-ticker.C:
			j.RunCycle(ctx)
		}
	}
}

// RunCycle performs one retention sweep.
func (j *Janitor) RunCycle(ctx context.Context) CycleStats {
	start := time.Now()
	stats := CycleStats{Cutoff: executions.Cutoff(j.logger.Now(), j.days)}

	if j.archiver != nil {
		if !j.archive(ctx, &stats) {
			log.Warn().Time("cutoff", stats.Cutoff).Msg("Archive failed, skipping purge")
			j.report(stats, start)
			return stats
		}
	}

	n, err := j.logger.SweepBefore(ctx, stats.Cutoff)
	if err != nil {
		stats.Errors = append(stats.Errors, err)
	}
	stats.Purged = n

	j.report(stats, start)
	return stats
}

func (j *Janitor) report(stats CycleStats, start time.Time) {
	for _, e := range stats.Errors {
		log.Warn().Err(e).Msg("Retention cycle error")
	}
	if stats.Purged > 0 || stats.Archived > 0 {
		log.Info().
			Int64("purged", stats.Purged).
			Int("archived", stats.Archived).
			Dur("elapsed", time.Since(start)).
			Msg("Retention cycle complete")
	}
}

// archive writes every expired record to the archiver in batches and reports
// whether all batches succeeded.
func (j *Janitor) archive(ctx context.Context, stats *CycleStats) bool {
	expired, err := j.store.ListExecutionsBefore(ctx, stats.Cutoff)
	if err != nil {
		stats.Errors = append(stats.Errors, err)
		return false
	}

	allOK := true
	for i := 0; i < len(expired); i += DefaultArchiveBatchSize {
		end := min(i+DefaultArchiveBatchSize, len(expired))
		batch := expired[i:end]

		uri, err := j.archiver.ArchiveExecutions(ctx, batch)
		if err != nil {
			log.Warn().Err(err).
				Str("backend", j.archiver.Kind()).
				Int("batch_size", len(batch)).
				Msg("Failed to archive executions")
			stats.Errors = append(stats.Errors, err)
			allOK = false
			continue
		}
		stats.Archived += len(batch)
		stats.ArchiveURIs = append(stats.ArchiveURIs, uri)
	}
	return allOK
}
