package engine

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
)

// ErrMediaNotFound is returned for mark operations on unknown media ids.
var ErrMediaNotFound = errors.New("media not found")

// Mark records a deletion vote and evaluates consensus synchronously before
// returning. Marking an already marked item is a no-op; the mark succeeds
// even when a triggered move subsequently fails, the move is retried by the
// scheduled jobs.
func (e *Engine) Mark(ctx context.Context, userID, mediaID uint) error {
	item, err := e.db.GetMediaByID(ctx, mediaID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMediaNotFound
		}
		return err
	}

	created, err := e.db.CreateMark(ctx, userID, item.ID, e.clock.Now())
	if err != nil {
		return err
	}
	if created {
		log.Info("Mark recorded", "user", userID, "media", mediaID, "title", item.Title)
	}

	if err := e.evaluateConsensus(ctx, item.ID); err != nil {
		// The ledger mutation already succeeded; the trash move will be
		// retried when consensus is evaluated again.
		log.Error("Consensus evaluation failed after mark", "media", mediaID, "error", err)
	}
	return nil
}

// Unmark withdraws a deletion vote. Once an item has left active status the
// marks are historical and unmarking no longer affects it.
func (e *Engine) Unmark(ctx context.Context, userID, mediaID uint) error {
	return e.db.DeleteMark(ctx, userID, mediaID)
}

// evaluateConsensus trashes the item if every eligible user has marked it.
// The actual status flip is a conditional update, so two marks racing to the
// threshold produce exactly one move.
func (e *Engine) evaluateConsensus(ctx context.Context, mediaID uint) error {
	ids, err := e.db.FullyMarkedActiveMediaIDs(ctx, e.policy.ExcludeAdmins())
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id != mediaID {
			continue
		}
		return e.toTrash(ctx, id)
	}
	return nil
}

// EvaluateAll re-checks consensus for every active item. Called after user
// deletion: a smaller eligible set can complete thresholds that were
// previously short.
func (e *Engine) EvaluateAll(ctx context.Context) error {
	ids, err := e.db.FullyMarkedActiveMediaIDs(ctx, e.policy.ExcludeAdmins())
	if err != nil {
		return err
	}
	var firstErr error
	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := e.toTrash(ctx, id); err != nil {
			log.Error("Failed to trash fully marked item", "media", id, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
