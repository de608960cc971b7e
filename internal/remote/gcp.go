package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/turoarchive/turoarchive/internal/config"
	"github.com/turoarchive/turoarchive/internal/models"
)

// GCPStore implements Store against Firestore records and a GCS bucket.
type GCPStore struct {
	firestoreClient *firestore.Client
	storageClient   *storage.Client
	cfg             *config.Config
	logger          *slog.Logger
}

// NewGCPStore creates the production store. It centralizes client creation
// for every command that touches the remote archive.
func NewGCPStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*GCPStore, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	firestoreClient, err := firestore.NewClient(ctx, cfg.ProjectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}

	return &GCPStore{
		firestoreClient: firestoreClient,
		storageClient:   storageClient,
		cfg:             cfg,
		logger:          logger,
	}, nil
}

// Close releases both underlying clients.
func (s *GCPStore) Close() error {
	var firstErr error
	if err := s.firestoreClient.Close(); err != nil {
		firstErr = err
	}
	if err := s.storageClient.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// InsertRecord writes a new archive record to the documents collection.
func (s *GCPStore) InsertRecord(ctx context.Context, rec *models.DocumentRecord) error {
	if _, _, err := s.firestoreClient.Collection(s.cfg.CollectionName).Add(ctx, rec); err != nil {
		return fmt.Errorf("failed to insert document record: %w", err)
	}
	return nil
}

// QueryByFingerprint looks for an existing record with the same content
// digest. A nil record means the archive has never seen these bytes.
func (s *GCPStore) QueryByFingerprint(ctx context.Context, fingerprint string) (*models.DocumentRecord, error) {
	docs, err := s.firestoreClient.Collection(s.cfg.CollectionName).
		Where("fingerprint", "==", fingerprint).
		Limit(1).
		Documents(ctx).
		GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query by fingerprint: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	var rec models.DocumentRecord
	if err := docs[0].DataTo(&rec); err != nil {
		return nil, fmt.Errorf("failed to decode document record: %w", err)
	}
	return &rec, nil
}

// deadlineDoc is the deadline collection row shape.
type deadlineDoc struct {
	DocType    models.DocType `firestore:"docType"`
	WeekNumber int            `firestore:"weekNumber"`
	SchoolYear string         `firestore:"schoolYear"`
	DueDate    time.Time      `firestore:"dueDate"`
}

// QueryDeadline resolves the submission deadline matching the selector.
func (s *GCPStore) QueryDeadline(ctx context.Context, sel DeadlineSelector) (*time.Time, error) {
	docs, err := s.firestoreClient.Collection(s.cfg.DeadlineCollection).
		Where("docType", "==", sel.DocType).
		Where("weekNumber", "==", sel.WeekNumber).
		Where("schoolYear", "==", sel.SchoolYear).
		Limit(1).
		Documents(ctx).
		GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query deadline: %w", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}

	var d deadlineDoc
	if err := docs[0].DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to decode deadline record: %w", err)
	}
	return &d.DueDate, nil
}

// UploadBlob writes data to the archive bucket with bounded retries and
// exponential backoff. Each attempt gets its own write deadline.
func (s *GCPStore) UploadBlob(ctx context.Context, path string, data []byte, contentType string) error {
	const maxRetries = 4
	backoff := 1 * time.Second
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := func() error {
			writeCtx, cancel := context.WithTimeout(ctx, 50*time.Second)
			defer cancel()

			w := s.storageClient.Bucket(s.cfg.ArchiveBucket).Object(path).NewWriter(writeCtx)
			w.ContentType = contentType

			if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
				_ = w.Close()
				return fmt.Errorf("io.Copy to GCS failed: %w", err)
			}
			if err := w.Close(); err != nil {
				return fmt.Errorf("failed to close GCS writer (finalize upload): %w", err)
			}
			return nil
		}()
		if err == nil {
			return nil
		}

		lastErr = err
		s.logger.Warn(
			"Upload failed, will retry.",
			"gcsObject", path,
			"attempt", attempt,
			"maxRetries", maxRetries,
			"backoff", backoff.String(),
			"error", err,
		)

		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			s.logger.Error("Context cancelled during backoff. Aborting retries.", "gcsObject", path, "error", ctx.Err())
			return ctx.Err()
		}
	}
	return fmt.Errorf("upload for %s failed after all retries: %w", path, lastErr)
}
