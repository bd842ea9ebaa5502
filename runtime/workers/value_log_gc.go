package workers

import (
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const gcDiscardRatio = 0.5

// ValueLogGCWorker reclaims value log space left by rewritten conversation
// and notification records.
type ValueLogGCWorker struct {
	db       *badger.DB
	interval time.Duration
	log      *slog.Logger
}

func NewValueLogGCWorker(db *badger.DB, interval time.Duration, log *slog.Logger) *ValueLogGCWorker {
	return &ValueLogGCWorker{db: db, interval: interval, log: log}
}

func (w ValueLogGCWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping value log GC")
			return nil
		case <-ticker.C:
			w.collect(ctx)
		}
	}
}

// collect runs GC until badger reports there is nothing left to rewrite.
func (w ValueLogGCWorker) collect(ctx context.Context) {
	rewritten := 0
	for ctx.Err() == nil {
		err := w.db.RunValueLogGC(gcDiscardRatio)
		switch {
		case err == nil:
			rewritten++
			observability.ValueLogGC.WithLabelValues("rewritten").Inc()
			continue
		case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrRejected):
			observability.ValueLogGC.WithLabelValues("noop").Inc()
		default:
			observability.ValueLogGC.WithLabelValues("error").Inc()
			w.log.Warn("Value log GC failed", "error", err)
		}
		break
	}
	if rewritten > 0 {
		w.log.Info("Value log GC done", "rewritten", rewritten)
	}
}
