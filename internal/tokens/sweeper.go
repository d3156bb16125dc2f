package tokens

import (
	"context"
	"log/slog"
	"time"

	"github.com/riverqueue/river"
)

// DefaultSweepGrace is how long an expired token is kept before physical
// purge. Purging is housekeeping: Validate and Consume re-check expiry
// themselves, so correctness never depends on the sweep having run.
const DefaultSweepGrace = 60 * time.Second

// SweepInterval is how often the periodic sweep job runs.
const SweepInterval = 30 * time.Second

type SweepTokensArgs struct{}

func (SweepTokensArgs) Kind() string { return "sweep_tokens" }

// SweepTokensWorker purges tokens that expired longer than the grace period ago.
type SweepTokensWorker struct {
	river.WorkerDefaults[SweepTokensArgs]
	tokens TokenRepo
	grace  time.Duration
	log    *slog.Logger
}

func NewSweepTokensWorker(tokens TokenRepo, grace time.Duration, log *slog.Logger) *SweepTokensWorker {
	if grace <= 0 {
		grace = DefaultSweepGrace
	}
	if log == nil {
		log = slog.Default()
	}
	return &SweepTokensWorker{tokens: tokens, grace: grace, log: log}
}

func (w *SweepTokensWorker) Work(ctx context.Context, _ *river.Job[SweepTokensArgs]) error {
	purged, err := w.tokens.DeleteExpired(ctx, time.Now().UTC().Add(-w.grace))
	if err != nil {
		return err
	}
	if purged > 0 {
		w.log.Info("purged expired tokens", "count", purged)
	}
	return nil
}
