package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/lessonforge/internal/domain/generation"
	"github.com/yungbote/lessonforge/internal/jobs/runtime"
	"github.com/yungbote/lessonforge/internal/platform/logger"
)

// Lister finds outline requests that have not reached a terminal status.
type Lister interface {
	ListUnfinishedOutlines(ctx context.Context, limit int) ([]*types.OutlineRequest, error)
}

// Dispatcher starts (or joins) a run for one outline request.
type Dispatcher interface {
	Dispatch(ctx context.Context, id uuid.UUID) error
}

type Options struct {
	Interval  time.Duration
	BatchSize int
	// MinAge skips requests created too recently to have been orphaned.
	MinAge time.Duration
}

// Sweeper re-dispatches unfinished outline requests so runs interrupted by a
// restart resume from their latest status record.
type Sweeper struct {
	log      *logger.Logger
	lister   Lister
	dispatch Dispatcher
	opts     Options
	now      func() time.Time
}

func NewSweeper(baseLog *logger.Logger, lister Lister, dispatch Dispatcher, opts Options) *Sweeper {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	return &Sweeper{
		log:      baseLog.With("component", "RecoverySweeper"),
		lister:   lister,
		dispatch: dispatch,
		opts:     opts,
		now:      time.Now,
	}
}

// Start sweeps once immediately, then every Interval until ctx ends.
func (s *Sweeper) Start(ctx context.Context) {
	s.log.Info("Starting recovery sweeper", "interval", s.opts.Interval, "batch", s.opts.BatchSize)
	go func() {
		ticker := time.NewTicker(s.opts.Interval)
		defer ticker.Stop()
		for {
			if _, err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("Recovery sweep failed", "error", err)
			}
			select {
			case <-ctx.Done():
				s.log.Info("Recovery sweeper stopped")
				return
			case <-ticker.C:
			}
		}
	}()
}

// Sweep dispatches one batch and reports how many runs were dispatched.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	reqs, err := s.lister.ListUnfinishedOutlines(ctx, s.opts.BatchSize)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-s.opts.MinAge)
	n := 0
	for _, req := range reqs {
		if req == nil || req.CreatedAt.After(cutoff) {
			continue
		}
		if err := s.dispatch.Dispatch(ctx, req.ID); err != nil {
			if errors.Is(err, runtime.ErrShuttingDown) {
				return n, nil
			}
			s.log.Warn("Recovery dispatch failed", "outline_id", req.ID, "error", err)
			continue
		}
		n++
	}
	if n > 0 {
		s.log.Info("Recovered unfinished outline runs", "count", n)
	}
	return n, nil
}
