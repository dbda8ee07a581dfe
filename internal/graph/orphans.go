package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/enliterate-io/enliterate/internal/models"
)

// OrphanBatchSize is the default number of orphans removed per transaction.
const OrphanBatchSize = 100

// OrphanPreserveWindow is the default grace period for freshly created
// nodes. Nodes younger than the window survive even when disconnected, so a
// node written just before its edges never gets reaped mid-assembly.
const OrphanPreserveWindow = time.Hour

// RemoveOrphans deletes disconnected nodes from the connected pools.
// HAS_RIGHTS edges do not count as connections. Removal iterates until a
// pass deletes nothing, since deleting one orphan's neighbors can orphan
// another node.
func RemoveOrphans(ctx context.Context, sess Session, preserveWindow time.Duration, batchSize int, now time.Time, logger *slog.Logger) (int, error) {
	if batchSize <= 0 {
		batchSize = OrphanBatchSize
	}
	if preserveWindow <= 0 {
		preserveWindow = OrphanPreserveWindow
	}
	cutoff := now.Add(-preserveWindow)

	var totalRemoved int
	for {
		removed, err := removeOrphanPass(ctx, sess, cutoff, batchSize)
		if err != nil {
			return totalRemoved, err
		}
		totalRemoved += removed
		if removed == 0 {
			break
		}
	}
	if totalRemoved > 0 {
		logger.Info("removed orphan nodes", slog.Int("count", totalRemoved))
	}
	return totalRemoved, nil
}

func removeOrphanPass(ctx context.Context, sess Session, cutoff time.Time, batchSize int) (int, error) {
	var removed int
	for _, pool := range models.ConnectedPools {
		label := string(pool)
		var orphans []string
		err := sess.ExecuteRead(ctx, func(tx ReadTx) error {
			ids, err := tx.ListOrphanIDs(label, []string{HasRightsEdge})
			if err != nil {
				return err
			}
			orphans = ids
			return nil
		})
		if err != nil {
			return removed, fmt.Errorf("listing orphan %s nodes: %w", label, err)
		}

		// The node id is a ULID, so creation time falls out of the id
		// itself. Nodes inside the preserve window are skipped.
		due := orphans[:0]
		for _, id := range orphans {
			parsed, err := models.ParseULID(id)
			if err != nil || parsed.Timestamp().Before(cutoff) {
				due = append(due, id)
			}
		}

		for len(due) > 0 {
			chunk := due
			if len(chunk) > batchSize {
				chunk = chunk[:batchSize]
			}
			due = due[len(chunk):]
			err := sess.ExecuteWrite(ctx, func(tx DataTx) error {
				for _, id := range chunk {
					if err := tx.DetachDelete(label, id); err != nil {
						return err
					}
					removed++
				}
				return nil
			})
			if err != nil {
				return removed, fmt.Errorf("removing orphan %s nodes: %w", label, err)
			}
		}
	}
	return removed, nil
}
