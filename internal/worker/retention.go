package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jmehdipour/sms-bridge/internal/logger"
	"github.com/jmehdipour/sms-bridge/internal/model"
	"github.com/jmehdipour/sms-bridge/internal/repository"
)

// StatusSweeper is the tracker's retention hook.
type StatusSweeper interface {
	Sweep(before time.Time) []model.StatusRecord
}

// Pruner drops finished bookkeeping older than before.
type Pruner interface {
	Prune(before time.Time) int
}

// Retention drops status records older than the window, once per
// interval. Swept records go to the archive first when one is configured.
type Retention struct {
	tracker  StatusSweeper
	pruner   Pruner
	archive  repository.StatusArchive // optional
	window   time.Duration
	interval time.Duration
	log      *logger.Events
	now      func() time.Time
}

func NewRetention(tracker StatusSweeper, pruner Pruner, archive repository.StatusArchive, window, interval time.Duration, log *logger.Events) *Retention {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if window <= 0 {
		window = 30 * 24 * time.Hour
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Retention{
		tracker:  tracker,
		pruner:   pruner,
		archive:  archive,
		window:   window,
		interval: interval,
		log:      log,
		now:      time.Now,
	}
}

func (r *Retention) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			r.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs one cleanup pass and returns how many status records it
// removed.
func (r *Retention) SweepOnce(ctx context.Context) int {
	cutoff := r.now().Add(-r.window)
	swept := r.tracker.Sweep(cutoff)

	if r.archive != nil && len(swept) > 0 {
		if err := r.archive.InsertBatch(ctx, swept); err != nil {
			r.log.Error("ArchiveFailed", logger.Fields{}, fmt.Sprintf("%d records lost: %v", len(swept), err))
		}
	}

	pruned := 0
	if r.pruner != nil {
		pruned = r.pruner.Prune(cutoff)
	}

	r.log.Info("MessageCleanup", logger.Fields{},
		fmt.Sprintf("removed %d status records and %d queue entries older than %s", len(swept), pruned, cutoff.Format(time.RFC3339)))
	return len(swept)
}
