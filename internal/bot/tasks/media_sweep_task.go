package tasks

import (
	"context"
	"fmt"
	"time"
)

// orphanCutoff is how long a media group may stay unreferenced before the
// sweep removes it. Long enough for any in-flight ingestion to finish.
const orphanCutoff = 24 * time.Hour

// newMediaSweepTask creates the scheduled task deleting media groups no
// entity ever claimed, together with their stored objects. Groups go
// unclaimed when ingestion persisted media but failed before entity
// creation, or when an upload-link flow was abandoned.
func newMediaSweepTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "media_sweep")

	return func(ctx context.Context) error {
		log.InfoContext(ctx, "Starting media sweep")
		start := time.Now()

		images, err := deps.Store.SweepOrphanMediaGroups(ctx, time.Now().Add(-orphanCutoff))
		if err != nil {
			log.ErrorContext(ctx, "Media sweep failed", "error", err, "duration", time.Since(start))
			return fmt.Errorf("media sweep failed: %w", err)
		}

		// Object deletes are best effort; a leftover object without a row
		// referencing it is harmless and the next sweep will not see it.
		deleted := 0
		for _, url := range images {
			objectPath, ok := deps.Objects.PathFromURL(url)
			if !ok {
				log.WarnContext(ctx, "Skipping image with foreign URL", "url", url)
				continue
			}
			exists, err := deps.Objects.Exists(ctx, objectPath)
			if err != nil {
				log.WarnContext(ctx, "Failed to check swept image", "object_path", objectPath, "error", err)
				continue
			}
			if !exists {
				continue
			}
			if err := deps.Objects.Delete(ctx, objectPath); err != nil {
				log.WarnContext(ctx, "Failed to delete swept image", "object_path", objectPath, "error", err)
				continue
			}
			deleted++
		}

		log.InfoContext(ctx, "Media sweep completed",
			"swept_images", len(images), "deleted_objects", deleted, "duration", time.Since(start))
		return nil
	}
}
