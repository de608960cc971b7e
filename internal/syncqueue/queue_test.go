package syncqueue

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turoarchive/turoarchive/internal/fingerprint"
	"github.com/turoarchive/turoarchive/internal/models"
	"github.com/turoarchive/turoarchive/internal/remote"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

// fakeRemote implements remote.Store in memory and records call order.
type fakeRemote struct {
	mu        sync.Mutex
	records   map[string]*models.DocumentRecord
	uploads   []string
	inserts   []string
	uploadErr error
	insertErr error
	queryErr  error
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{records: make(map[string]*models.DocumentRecord)}
}

func (f *fakeRemote) InsertRecord(ctx context.Context, rec *models.DocumentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.records[rec.Fingerprint] = rec
	f.inserts = append(f.inserts, rec.Fingerprint)
	return nil
}

func (f *fakeRemote) UploadBlob(ctx context.Context, path string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.uploads = append(f.uploads, path)
	return nil
}

func (f *fakeRemote) QueryByFingerprint(ctx context.Context, fp string) (*models.DocumentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.records[fp], nil
}

func (f *fakeRemote) QueryDeadline(ctx context.Context, sel remote.DeadlineSelector) (*time.Time, error) {
	return nil, nil
}

// probe is an always-reachable connectivity endpoint whose availability can
// be flipped mid-test.
type probe struct {
	server *httptest.Server
	up     atomic.Bool
}

func newProbe(t *testing.T) *probe {
	t.Helper()
	p := &probe{}
	p.up.Store(true)
	p.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !p.up.Load() {
			// Drop the connection so the probe sees a transport error,
			// not an HTTP status.
			conn, _, err := w.(http.Hijacker).Hijack()
			if err == nil {
				_ = conn.Close()
			}
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(p.server.Close)
	return p
}

func newTestQueue(t *testing.T, rs remote.Store) (*Queue, *Store, *Connectivity) {
	t.Helper()
	store, err := OpenStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	conn := NewConnectivity(newProbe(t).server.URL, time.Second)
	return New(store, rs, conn, testLogger(), false), store, conn
}

func testItem(hash string) *models.QueueItem {
	return &models.QueueItem{
		FileName: "dll-week3.pdf",
		FileHash: hash,
		FileSize: 4,
		PDFBytes: []byte("%PDF"),
		Options:  models.UploadOptions{DocType: models.DocTypeDLL, WeekNumber: 3},
	}
}

func TestEnqueueDrainSuccess(t *testing.T) {
	rs := newFakeRemote()
	q, _, _ := newTestQueue(t, rs)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testItem("aaaa1111bbbb2222")))

	result, err := q.Drain(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Success: 1, Failed: 0}, result)

	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)
	assert.Equal(t, []string{StoragePath("aaaa1111bbbb2222", "dll-week3.pdf")}, rs.uploads)
	assert.Len(t, rs.inserts, 1)
}

func TestDrainRemoteDuplicateRemovesSilently(t *testing.T) {
	rs := newFakeRemote()
	rs.records["aaaa1111bbbb2222"] = &models.DocumentRecord{Fingerprint: "aaaa1111bbbb2222"}
	q, _, _ := newTestQueue(t, rs)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testItem("aaaa1111bbbb2222")))

	result, err := q.Drain(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{}, result, "duplicate is neither success nor failure")

	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)
	assert.Empty(t, rs.uploads, "no second remote write for duplicate content")
}

func TestDeliverDuplicateDeleteFailureIsNotADeliveryFailure(t *testing.T) {
	rs := newFakeRemote()
	rs.records["aaaa1111bbbb2222"] = &models.DocumentRecord{Fingerprint: "aaaa1111bbbb2222"}

	store, err := OpenStore(t.TempDir())
	require.NoError(t, err)
	conn := NewConnectivity(newProbe(t).server.URL, time.Second)
	q := New(store, rs, conn, testLogger(), false)

	item := testItem("aaaa1111bbbb2222")
	item.Key = "syncq:1:aaaa1111bbbb"

	// Close the store so the local delete fails.
	require.NoError(t, store.Close())

	var result DrainResult
	require.NoError(t, q.deliver(context.Background(), item, &result))
	assert.Equal(t, DrainResult{}, result, "a remote duplicate is never a failed delivery")
	assert.Empty(t, rs.uploads)
}

func TestDrainEmptyQueueIsNoop(t *testing.T) {
	rs := newFakeRemote()
	q, _, _ := newTestQueue(t, rs)

	result, err := q.Drain(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Success: 0, Failed: 0}, result)
	assert.Empty(t, rs.uploads)
}

func TestDrainFIFOOrder(t *testing.T) {
	rs := newFakeRemote()
	q, _, _ := newTestQueue(t, rs)
	ctx := context.Background()

	older := testItem("1111aaaa2222bbbb")
	older.FileName = "first.pdf"
	older.EnqueuedAt = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	newer := testItem("3333cccc4444dddd")
	newer.FileName = "second.pdf"
	newer.EnqueuedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	// Insert newest first; drain order must follow timestamps regardless.
	require.NoError(t, q.Enqueue(ctx, newer))
	require.NoError(t, q.Enqueue(ctx, older))

	result, err := q.Drain(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Success: 2}, result)
	assert.Equal(t, []string{
		StoragePath("1111aaaa2222bbbb", "first.pdf"),
		StoragePath("3333cccc4444dddd", "second.pdf"),
	}, rs.uploads)
}

func TestDrainFailureKeepsItemAndContinues(t *testing.T) {
	rs := newFakeRemote()
	rs.uploadErr = errors.New("upstream unavailable")
	q, store, _ := newTestQueue(t, rs)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testItem("aaaa1111bbbb2222")))
	require.NoError(t, q.Enqueue(ctx, testItem("cccc3333dddd4444")))

	result, err := q.Drain(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Success: 0, Failed: 2}, result, "each failure counted, none aborts the pass")

	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, size)

	rows, err := store.oldestFirst(ctx)
	require.NoError(t, err)
	for _, row := range rows {
		assert.Equal(t, 1, row.attempts)
	}
}

func TestDrainOfflineFlagShortCircuits(t *testing.T) {
	rs := newFakeRemote()
	q, _, conn := newTestQueue(t, rs)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testItem("aaaa1111bbbb2222")))
	conn.SetOffline(true)

	result, err := q.Drain(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{}, result)

	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size, "offline drain must not touch items")
	assert.Empty(t, rs.uploads)
}

func TestDrainForcedIgnoresOfflineFlag(t *testing.T) {
	rs := newFakeRemote()
	q, _, conn := newTestQueue(t, rs)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testItem("aaaa1111bbbb2222")))
	conn.SetOffline(true)

	result, err := q.Drain(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Success: 1}, result)
}

func TestDrainStopsWhenConnectivityLostMidDrain(t *testing.T) {
	rs := newFakeRemote()
	store, err := OpenStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	p := newProbe(t)
	conn := NewConnectivity(p.server.URL, time.Second)
	q := New(store, rs, conn, testLogger(), false)
	ctx := context.Background()

	first := testItem("aaaa1111bbbb2222")
	first.EnqueuedAt = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	second := testItem("cccc3333dddd4444")
	second.EnqueuedAt = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, q.Enqueue(ctx, first))
	require.NoError(t, q.Enqueue(ctx, second))

	// Drop the network once the first item has been delivered.
	go func() {
		for {
			rs.mu.Lock()
			delivered := len(rs.uploads) > 0
			rs.mu.Unlock()
			if delivered {
				p.up.Store(false)
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	result, err := q.Drain(ctx, false)
	require.NoError(t, err)
	assert.LessOrEqual(t, result.Success, 2)
	assert.Zero(t, result.Failed, "a disconnection is not an item failure")

	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2-result.Success, size, "unprocessed items must survive")
}

func TestDrainGhostEntryDeletedSilently(t *testing.T) {
	rs := newFakeRemote()
	q, store, _ := newTestQueue(t, rs)
	ctx := context.Background()

	_, err := store.db.ExecContext(ctx,
		`INSERT INTO queue_items (queue_key, file_name, file_path, file_hash, file_size, pdf_bytes, options_json, enqueued_at)
         VALUES ('syncq:1:ghost', 'ghost.pdf', '', 'ghosthash', 1, X'00', 'not valid json', '2026-03-01T08:00:00Z')`)
	require.NoError(t, err)

	result, err := q.Drain(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{}, result, "ghost is neither success nor failure")

	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestDrainMutualExclusion(t *testing.T) {
	rs := newFakeRemote()
	q, _, _ := newTestQueue(t, rs)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testItem("aaaa1111bbbb2222")))

	q.draining.Store(true)
	result, err := q.Drain(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{}, result, "concurrent drain must be a no-op")

	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	// Forced drains proceed anyway.
	result, err = q.Drain(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Success: 1}, result)
	q.draining.Store(false)
}

func TestEnqueueSameTickSameContentGetsDistinctKeys(t *testing.T) {
	rs := newFakeRemote()
	q, store, _ := newTestQueue(t, rs)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	a := testItem("aaaa1111bbbb2222")
	a.EnqueuedAt = at
	b := testItem("aaaa1111bbbb2222")
	b.EnqueuedAt = at

	require.NoError(t, q.Enqueue(ctx, a))
	require.NoError(t, q.Enqueue(ctx, b))
	assert.NotEqual(t, a.Key, b.Key)

	size, err := store.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, size)
}

func TestQueueSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Enqueue(ctx, testItem("aaaa1111bbbb2222")))
	require.NoError(t, store.Close())

	reopened, err := OpenStore(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	size, err := reopened.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)

	rows, err := reopened.oldestFirst(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	item, ok := rows[0].decode()
	require.True(t, ok)
	assert.Equal(t, "aaaa1111bbbb2222", item.FileHash)
	assert.Equal(t, []byte("%PDF"), item.PDFBytes)
	assert.Equal(t, models.DocTypeDLL, item.Options.DocType)
}

func TestStoragePathUsesDigestPrefix(t *testing.T) {
	hash := "0123456789abcdef0123456789abcdef"
	assert.Equal(t, "archives/"+fingerprint.Short(hash)+"/report.pdf", StoragePath(hash, "report.pdf"))
}
