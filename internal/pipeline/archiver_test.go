package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/openharvest/harvestd/internal/domain"
)

// batchArchiver drains a fixed sequence of batch sizes.
type batchArchiver struct {
	batches []int
	err     error
	runs    int
}

func (a *batchArchiver) ArchiveOperations(context.Context) (int, error) {
	a.runs++
	if a.err != nil {
		return 0, a.err
	}
	if len(a.batches) == 0 {
		return 0, nil
	}
	n := a.batches[0]
	a.batches = a.batches[1:]
	return n, nil
}

type fakeLocks struct {
	err      error
	acquired int
	released int
}

func (l *fakeLocks) Acquire(context.Context, string, time.Duration) (func(), error) {
	if l.err != nil {
		return nil, l.err
	}
	l.acquired++
	return func() { l.released++ }, nil
}

func TestRunDrainsAllBatches(t *testing.T) {
	archiver := &batchArchiver{batches: []int{500, 500, 120}}
	locks := &fakeLocks{}
	job := NewArchiveJob(archiver, locks, time.Hour, slog.Default())

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, 4, archiver.runs, "loops until a batch comes back empty")
	require.Equal(t, 1, locks.acquired)
	require.Equal(t, 1, locks.released, "lock released after the run")
}

// Another instance holding the lock is a skip, not a failure.
func TestRunSkipsWhenLockHeld(t *testing.T) {
	archiver := &batchArchiver{batches: []int{10}}
	job := NewArchiveJob(archiver, &fakeLocks{err: domain.ErrLockHeld}, time.Hour, slog.Default())

	require.NoError(t, job.Run(context.Background()))
	require.Zero(t, archiver.runs)
}

func TestRunLockErrorFails(t *testing.T) {
	job := NewArchiveJob(&batchArchiver{}, &fakeLocks{err: errors.New("redis down")}, time.Hour, slog.Default())
	require.Error(t, job.Run(context.Background()))
}

func TestRunArchiverErrorReleasesLock(t *testing.T) {
	locks := &fakeLocks{}
	job := NewArchiveJob(&batchArchiver{err: errors.New("bucket gone")}, locks, time.Hour, slog.Default())

	require.Error(t, job.Run(context.Background()))
	require.Equal(t, 1, locks.released)
}

func TestRunPeriodicStopsOnCancel(t *testing.T) {
	job := NewArchiveJob(&batchArchiver{}, &fakeLocks{}, time.Hour, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, job.RunPeriodic(ctx), context.Canceled)
}
