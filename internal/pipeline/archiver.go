// Package pipeline holds background jobs that run alongside the API server.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openharvest/harvestd/internal/domain"
)

// archiveLockKey serializes archive runs across service instances.
const archiveLockKey = "archive:operations"

// archiveLockTTL bounds how long a crashed instance can hold the lock.
const archiveLockTTL = 10 * time.Minute

// ArchiveJob periodically moves expired operation audit records from the
// database to S3 cold storage. A distributed lock ensures only one instance
// exports at a time.
type ArchiveJob struct {
	archiver domain.Archiver
	locks    domain.LockManager
	interval time.Duration
	logger   *slog.Logger
}

// NewArchiveJob creates an ArchiveJob running once per interval.
func NewArchiveJob(archiver domain.Archiver, locks domain.LockManager, interval time.Duration, logger *slog.Logger) *ArchiveJob {
	return &ArchiveJob{
		archiver: archiver,
		locks:    locks,
		interval: interval,
		logger:   logger.With(slog.String("component", "archive_job")),
	}
}

// Run executes a single archive run, looping batches until the store has no
// more expired records.
func (j *ArchiveJob) Run(ctx context.Context) error {
	unlock, err := j.locks.Acquire(ctx, archiveLockKey, archiveLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			j.logger.Info("archive run skipped, another instance holds the lock")
			return nil
		}
		return fmt.Errorf("pipeline: acquire archive lock: %w", err)
	}
	defer unlock()

	total := 0
	for {
		n, err := j.archiver.ArchiveOperations(ctx)
		if err != nil {
			return fmt.Errorf("pipeline: archive run after %d records: %w", total, err)
		}
		if n == 0 {
			break
		}
		total += n
	}

	j.logger.Info("archive run complete", slog.Int("archived", total))
	return nil
}

// RunPeriodic runs archive runs on the configured interval until the context
// is cancelled. The first run happens after one full interval, not at
// startup, so a crash-looping deploy cannot hammer the store.
func (j *ArchiveJob) RunPeriodic(ctx context.Context) error {
	j.logger.Info("archive job started", slog.Duration("interval", j.interval))

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("archive job stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := j.Run(ctx); err != nil {
				j.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
