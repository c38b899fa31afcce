// Package session holds session lifecycle helpers shared by the auth flows.
package session

import (
	"context"
	"log/slog"
)

// DefaultMaxSessions is the number of live sessions kept per user, the newest included.
const DefaultMaxSessions = 10

// PruneStore is the persistence the pruner needs.
type PruneStore interface {
	ListIDsByActivity(ctx context.Context, userID int64) ([]int64, error)
	Delete(ctx context.Context, userID int64, ids []int64) (int64, error)
}

// PruneObserver is notified of the number of sessions removed.
type PruneObserver interface {
	SessionsPruned(ctx context.Context, n int64)
}

// Pruner caps the number of sessions per user after a new one is created.
type Pruner struct {
	store    PruneStore
	max      int
	logger   *slog.Logger
	observer PruneObserver
}

// NewPruner returns a Pruner keeping at most max sessions per user. max < 1 uses DefaultMaxSessions.
func NewPruner(store PruneStore, max int, logger *slog.Logger, observer PruneObserver) *Pruner {
	if max < 1 {
		max = DefaultMaxSessions
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{store: store, max: max, logger: logger, observer: observer}
}

// Prune deletes the user's least recently used sessions beyond the cap.
// keepID is never deleted. Failures are logged, not returned.
func (p *Pruner) Prune(ctx context.Context, userID, keepID int64) {
	ids, err := p.store.ListIDsByActivity(ctx, userID)
	if err != nil {
		p.logger.WarnContext(ctx, "prune sessions: list failed", "user_id", userID, "error", err)
		return
	}
	victims := selectVictims(ids, keepID, p.max-1)
	if len(victims) == 0 {
		return
	}
	n, err := p.store.Delete(ctx, userID, victims)
	if err != nil {
		p.logger.WarnContext(ctx, "prune sessions: delete failed", "user_id", userID, "count", len(victims), "error", err)
		return
	}
	if p.observer != nil {
		p.observer.SessionsPruned(ctx, n)
	}
	p.logger.DebugContext(ctx, "pruned sessions", "user_id", userID, "deleted", n)
}

// selectVictims returns the ids past the first keepOthers entries of ids, skipping keepID.
// ids must be ordered most recently used first.
func selectVictims(ids []int64, keepID int64, keepOthers int) []int64 {
	var victims []int64
	kept := 0
	for _, id := range ids {
		if id == keepID {
			continue
		}
		if kept < keepOthers {
			kept++
			continue
		}
		victims = append(victims, id)
	}
	return victims
}
