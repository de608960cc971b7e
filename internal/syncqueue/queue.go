package syncqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/turoarchive/turoarchive/internal/fingerprint"
	"github.com/turoarchive/turoarchive/internal/models"
	"github.com/turoarchive/turoarchive/internal/remote"
)

// DrainResult reports how a drain pass went. Duplicates and ghosts count as
// neither success nor failure.
type DrainResult struct {
	Success int
	Failed  int
}

// Queue drains durable upload requests against the remote store.
type Queue struct {
	store       *Store
	remote      remote.Store
	conn        *Connectivity
	logger      *slog.Logger
	draining    atomic.Bool
	weekdayFlag bool
}

// New assembles a Queue. weekdayComplianceFallback mirrors
// Config.AllowWeekdayComplianceFallback.
func New(store *Store, remoteStore remote.Store, conn *Connectivity, logger *slog.Logger, weekdayComplianceFallback bool) *Queue {
	return &Queue{
		store:       store,
		remote:      remoteStore,
		conn:        conn,
		logger:      logger,
		weekdayFlag: weekdayComplianceFallback,
	}
}

// Enqueue durably stores an upload request.
func (q *Queue) Enqueue(ctx context.Context, item *models.QueueItem) error {
	if err := q.store.Enqueue(ctx, item); err != nil {
		return err
	}
	q.logger.Info("Queued upload for later delivery.", "queueKey", item.Key, "fileHash", item.FileHash)
	return nil
}

// Size returns the durable count of pending items.
func (q *Queue) Size(ctx context.Context) (int, error) {
	return q.store.Size(ctx)
}

// StoragePath returns the bucket object path for a queued artifact. The
// digest prefix namespaces files with identical names.
func StoragePath(fileHash, fileName string) string {
	return fmt.Sprintf("archives/%s/%s", fingerprint.Short(fileHash), fileName)
}

// Drain attempts to deliver all pending items, oldest first. A drain that
// observes another drain in progress is a no-op unless forced. Connectivity
// is re-checked before every item so a mid-drain disconnection stops
// further attempts without discarding unprocessed items. One item's failure
// never aborts the pass.
func (q *Queue) Drain(ctx context.Context, force bool) (DrainResult, error) {
	var result DrainResult

	owned := q.draining.CompareAndSwap(false, true)
	if !owned && !force {
		q.logger.Debug("Drain already in progress, skipping.")
		return result, nil
	}
	if owned {
		defer q.draining.Store(false)
	}

	if !force && !q.conn.Check(ctx) {
		q.logger.Debug("Offline, drain deferred.")
		return result, nil
	}

	rows, err := q.store.oldestFirst(ctx)
	if err != nil {
		return result, fmt.Errorf("read queue: %w", err)
	}
	if len(rows) == 0 {
		return result, nil
	}

	logCtx := q.logger.With("pending", len(rows), "forced", force)
	logCtx.Info("Draining sync queue.")

	for _, row := range rows {
		if !force && !q.conn.Check(ctx) {
			logCtx.Warn("Connectivity lost mid-drain, stopping.", "processedBefore", result.Success+result.Failed)
			break
		}

		item, ok := row.decode()
		if !ok {
			// Ghost entry: unreadable stored state is dropped, not
			// retried, and is invisible to the caller's success/failure
			// counts.
			logCtx.Warn("Dropping unreadable queue entry.", "queueKey", row.key)
			if err := q.store.delete(ctx, row.key); err != nil {
				logCtx.Error("Failed to delete ghost entry.", "queueKey", row.key, "error", err)
			}
			continue
		}

		if err := q.deliver(ctx, item, &result); err != nil {
			result.Failed++
			if ferr := q.store.recordFailure(ctx, item.Key, err.Error()); ferr != nil {
				logCtx.Error("Failed to record item failure.", "queueKey", item.Key, "error", ferr)
			}
			logCtx.Warn("Queue item delivery failed, keeping for retry.", "queueKey", item.Key, "error", err)
		}
	}

	logCtx.Info("Drain pass complete.", "success", result.Success, "failed", result.Failed)
	return result, nil
}

// deliver uploads one item. Duplicate fingerprints at the remote delete the
// item silently; a successful blob write plus record write deletes it and
// counts a success.
func (q *Queue) deliver(ctx context.Context, item *models.QueueItem, result *DrainResult) error {
	existing, err := q.remote.QueryByFingerprint(ctx, item.FileHash)
	if err != nil {
		return fmt.Errorf("duplicate check: %w", err)
	}
	if existing != nil {
		q.logger.Info("Remote already holds this content, discarding queue item.", "queueKey", item.Key, "fileHash", item.FileHash)
		// A failed local delete is not a delivery failure; the duplicate
		// check discards the item again on the next drain.
		if err := q.store.delete(ctx, item.Key); err != nil {
			q.logger.Error("Failed to delete duplicate queue item.", "queueKey", item.Key, "error", err)
		}
		return nil
	}

	storagePath := StoragePath(item.FileHash, item.FileName)
	if err := q.remote.UploadBlob(ctx, storagePath, item.PDFBytes, "application/pdf"); err != nil {
		return fmt.Errorf("upload blob: %w", err)
	}

	rec := remote.BuildRecord(ctx, q.remote, q.logger,
		item.FileHash, item.FileName, storagePath, item.FileSize,
		item.Options, item.Options.Language, time.Now(), q.weekdayFlag)
	if err := q.remote.InsertRecord(ctx, rec); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}

	if err := q.store.delete(ctx, item.Key); err != nil {
		return fmt.Errorf("delete delivered item: %w", err)
	}
	result.Success++
	return nil
}
