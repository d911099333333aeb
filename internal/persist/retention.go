package persist

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// RunRetention periodically deletes audit log rows older than the
// retention period. Blocks until ctx is cancelled. Pass retentionDays
// <= 0 to disable.
func RunRetention(ctx context.Context, store *Store, retentionDays int) {
	if retentionDays <= 0 {
		store.log.Info().Msg("audit log retention disabled (keep forever)")
		return
	}

	interval := 1 * time.Hour
	store.log.Info().Int("retention_days", retentionDays).Dur("interval", interval).Msg("audit log retention enabled")

	prune(ctx, store, retentionDays)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune(ctx, store, retentionDays)
		}
	}
}

func prune(ctx context.Context, store *Store, retentionDays int) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	result, err := store.db.Collection("audit_log").DeleteMany(ctx, bson.M{
		"recorded_at": bson.M{"$lt": cutoff},
	})
	if err != nil {
		store.log.Error().Err(err).Msg("audit log retention prune failed")
		return
	}

	if result.DeletedCount > 0 {
		store.log.Info().Int64("deleted", result.DeletedCount).Str("cutoff", cutoff.Format(time.DateOnly)).Msg("pruned audit log rows")
	}
}
