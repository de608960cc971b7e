// Package pipeline sequences the document integrity chain: transcode,
// extract metadata, compress, fingerprint, stamp, then upload or enqueue.
// Progress is reported exclusively through PipelineEvents; the caller owns
// any accumulated log.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/turoarchive/turoarchive/internal/compress"
	"github.com/turoarchive/turoarchive/internal/config"
	"github.com/turoarchive/turoarchive/internal/fingerprint"
	"github.com/turoarchive/turoarchive/internal/metadata"
	"github.com/turoarchive/turoarchive/internal/models"
	"github.com/turoarchive/turoarchive/internal/remote"
	"github.com/turoarchive/turoarchive/internal/stamp"
	"github.com/turoarchive/turoarchive/internal/syncqueue"
	"github.com/turoarchive/turoarchive/internal/transcode"
)

// MetadataExtractor recovers advisory metadata from a source file.
type MetadataExtractor interface {
	Extract(ctx context.Context, file *models.SourceFile) *models.DocMetadata
}

// Enqueuer is the slice of the sync queue the pipeline needs: durably park
// an upload and kick off a drain attempt.
type Enqueuer interface {
	Enqueue(ctx context.Context, item *models.QueueItem) error
	Drain(ctx context.Context, force bool) (syncqueue.DrainResult, error)
}

// Pipeline drives one submission through all phases.
type Pipeline struct {
	extractor MetadataExtractor
	remote    remote.Store
	queue     Enqueuer
	logger    *slog.Logger
	cfg       *config.Config
}

// New assembles a Pipeline. extractor may be nil, in which case image
// inputs yield empty metadata (the rest of the chain is unaffected).
func New(extractor MetadataExtractor, remoteStore remote.Store, queue Enqueuer, logger *slog.Logger, cfg *config.Config) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		remote:    remoteStore,
		queue:     queue,
		logger:    logger,
		cfg:       cfg,
	}
}

// eventSink serializes event emission; the metadata branch reports from its
// own goroutine.
type eventSink struct {
	mu   sync.Mutex
	emit func(models.PipelineEvent)
}

func (s *eventSink) send(ev models.PipelineEvent) {
	if s.emit == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emit(ev)
}

// Process runs the full chain for one file. Options override anything the
// metadata extractor guesses. Only unsupported or malformed input ends in
// an error; every infrastructure failure terminates as a queued result.
func (p *Pipeline) Process(ctx context.Context, file *models.SourceFile, opts models.UploadOptions, emit func(models.PipelineEvent)) (*models.UploadOutcome, error) {
	sink := &eventSink{emit: emit}
	runID := uuid.NewString()
	logCtx := p.logger.With("runId", runID, "file", file.Name)
	logCtx.Info("Pipeline run starting.")

	// Phase 1: transcoding. The only phase whose failure is fatal.
	sink.send(models.PipelineEvent{Phase: models.PhaseTranscoding, Progress: 0, Message: "Converting document"})
	transcoded, err := transcode.Transcode(logCtx, file, p.cfg.ImageTargetBytes, p.cfg.ImageMaxDimension)
	if err != nil {
		return nil, p.fail(sink, logCtx, models.PhaseTranscoding, err)
	}
	sink.send(models.PipelineEvent{Phase: models.PhaseTranscoding, Progress: 15, Message: "Document converted"})

	// Phases 2+3: metadata is an informational branch running alongside
	// compression. Neither branch can fail the run.
	var (
		meta       *models.DocMetadata
		compressed []byte
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sink.send(models.PipelineEvent{Phase: models.PhaseMetadata, Progress: 20, Message: "Reading document details"})
		meta = p.extractMetadata(gctx, file, transcoded.Text)
		sink.send(models.PipelineEvent{Phase: models.PhaseMetadata, Progress: 30, Message: "Document details ready", Metadata: meta})
		return nil
	})
	g.Go(func() error {
		sink.send(models.PipelineEvent{Phase: models.PhaseCompressing, Progress: 35, Message: "Compressing document"})
		compressed = compress.PDF(logCtx, transcoded.PDFBytes, p.cfg.PDFTargetBytes)
		sink.send(models.PipelineEvent{Phase: models.PhaseCompressing, Progress: 50, Message: "Compression finished"})
		return nil
	})
	_ = g.Wait()

	opts = mergeOptions(opts, meta)

	// Phase 4: fingerprint the pre-stamp bytes. This digest is the one the
	// archive publishes and the QR locator encodes.
	sink.send(models.PipelineEvent{Phase: models.PhaseHashing, Progress: 55, Message: "Computing fingerprint"})
	digest := fingerprint.Hash(compressed)
	logCtx = logCtx.With("fingerprint", fingerprint.Short(digest))
	sink.send(models.PipelineEvent{Phase: models.PhaseHashing, Progress: 65, Message: "Fingerprint ready"})

	// Phase 5: stamping. A failed stamp degrades to the unstamped artifact.
	sink.send(models.PipelineEvent{Phase: models.PhaseStamping, Progress: 70, Message: "Embedding verification marker"})
	final := compressed
	if stamped, err := stamp.Apply(compressed, digest, p.cfg.VerifyBaseURL); err != nil {
		logCtx.Warn("Stamping failed, continuing with unstamped document.", "error", err)
	} else {
		final = stamped
	}
	sink.send(models.PipelineEvent{Phase: models.PhaseStamping, Progress: 75, Message: "Verification marker embedded"})

	// Phase 6: upload directly, or hand the prepared artifact to the sync
	// queue. Transport failures queue; logical rejections surface as errors.
	sink.send(models.PipelineEvent{Phase: models.PhaseUploading, Progress: 80, Message: "Uploading to archive"})
	outcome, err := p.uploadOrEnqueue(ctx, logCtx, file, final, digest, opts)
	if err != nil {
		return nil, p.fail(sink, logCtx, models.PhaseUploading, err)
	}

	sink.send(models.PipelineEvent{Phase: models.PhaseDone, Progress: 100, Message: doneMessage(outcome), Result: outcome})
	logCtx.Info("Pipeline run finished.", "uploaded", outcome.Uploaded, "duplicate", outcome.Duplicate, "queued", outcome.Queued)
	return outcome, nil
}

func (p *Pipeline) fail(sink *eventSink, logCtx *slog.Logger, phase models.Phase, err error) error {
	logCtx.Error("Pipeline run failed.", "phase", phase, "error", err)
	sink.send(models.PipelineEvent{Phase: models.PhaseError, Message: err.Error(), Err: err.Error()})
	return fmt.Errorf("%s: %w", phase, err)
}

func (p *Pipeline) extractMetadata(ctx context.Context, file *models.SourceFile, digitalText string) *models.DocMetadata {
	if digitalText != "" {
		return metadata.FromText(digitalText, 100)
	}
	if p.extractor != nil {
		return p.extractor.Extract(ctx, file)
	}
	return &models.DocMetadata{DocType: models.DocTypeUnknown, Language: models.LanguageUnknown}
}

// mergeOptions fills blanks in the user-confirmed options from extracted
// metadata. User-entered values always win over extracted ones.
func mergeOptions(opts models.UploadOptions, meta *models.DocMetadata) models.UploadOptions {
	if meta == nil {
		return opts
	}
	if opts.DocType == "" || opts.DocType == models.DocTypeUnknown {
		opts.DocType = meta.DocType
	}
	if opts.WeekNumber == 0 {
		opts.WeekNumber = meta.WeekNumber
	}
	if opts.SchoolYear == "" {
		opts.SchoolYear = meta.SchoolYear
	}
	if opts.Subject == "" {
		opts.Subject = meta.Subject
	}
	if opts.GradeLevel == 0 {
		opts.GradeLevel = meta.GradeLevel
	}
	if opts.School == "" {
		opts.School = meta.School
	}
	if opts.Teacher == "" {
		opts.Teacher = meta.Teacher
	}
	if opts.Language == "" || opts.Language == models.LanguageUnknown {
		opts.Language = meta.Language
	}
	return opts
}

func (p *Pipeline) uploadOrEnqueue(ctx context.Context, logCtx *slog.Logger, file *models.SourceFile, pdfBytes []byte, digest string, opts models.UploadOptions) (*models.UploadOutcome, error) {
	outcome := &models.UploadOutcome{Fingerprint: digest}

	existing, err := p.remote.QueryByFingerprint(ctx, digest)
	if err == nil && existing != nil {
		logCtx.Info("Archive already holds this content.", "existingPath", existing.StoragePath)
		outcome.Duplicate = true
		outcome.StoragePath = existing.StoragePath
		outcome.Record = existing
		return outcome, nil
	}

	if err == nil {
		storagePath := syncqueue.StoragePath(digest, file.Name)
		if uploadErr := p.remote.UploadBlob(ctx, storagePath, pdfBytes, "application/pdf"); uploadErr == nil {
			rec := remote.BuildRecord(ctx, p.remote, logCtx, digest, file.Name, storagePath,
				int64(len(pdfBytes)), opts, opts.Language, time.Now(), p.cfg.AllowWeekdayComplianceFallback)
			if insertErr := p.remote.InsertRecord(ctx, rec); insertErr == nil {
				outcome.Uploaded = true
				outcome.StoragePath = storagePath
				outcome.Record = rec
				return outcome, nil
			} else {
				err = fmt.Errorf("insert record: %w", insertErr)
			}
		} else {
			err = fmt.Errorf("upload blob: %w", uploadErr)
		}
	}

	// Logical rejections (bad credentials, permission denied) cannot be
	// fixed by retrying; queueing them would retry forever on every drain.
	if !remote.IsNetworkError(err) {
		return nil, err
	}

	// The archive is unreachable: park the fully-prepared artifact for the
	// sync queue.
	logCtx.Warn("Archive unreachable, queueing for later delivery.", "error", err)
	item := &models.QueueItem{
		FileName: file.Name,
		FilePath: file.Name,
		FileHash: digest,
		FileSize: int64(len(pdfBytes)),
		PDFBytes: pdfBytes,
		Options:  opts,
	}
	if enqueueErr := p.queue.Enqueue(ctx, item); enqueueErr != nil {
		// The queue database is local; failing to write it is the one
		// infrastructure error we cannot absorb silently.
		logCtx.Error("CRITICAL: Failed to persist queue item after upload failure.", "error", enqueueErr)
	} else {
		outcome.Queued = true
		go func() {
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Minute)
			defer cancel()
			if _, err := p.queue.Drain(drainCtx, false); err != nil {
				logCtx.Warn("Post-enqueue drain attempt failed.", "error", err)
			}
		}()
	}
	return outcome, nil
}

func doneMessage(outcome *models.UploadOutcome) string {
	switch {
	case outcome.Duplicate:
		return "Document already archived"
	case outcome.Queued:
		return "Offline: document queued for upload"
	default:
		return "Document archived"
	}
}
