// Package remote defines the narrow contract this system consumes from the
// remote archive (record inserts, blob uploads, fingerprint and deadline
// lookups) and implements it against Firestore and Cloud Storage.
package remote

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/turoarchive/turoarchive/internal/models"
)

// DeadlineSelector identifies which submission deadline applies to a record.
type DeadlineSelector struct {
	DocType    models.DocType
	WeekNumber int
	SchoolYear string
}

// Store is the four-operation remote contract. Implementations must fail
// with errors distinguishable as network-vs-logical via IsNetworkError.
type Store interface {
	// InsertRecord writes a new archive record.
	InsertRecord(ctx context.Context, rec *models.DocumentRecord) error

	// UploadBlob writes bytes to the given storage path.
	UploadBlob(ctx context.Context, path string, data []byte, contentType string) error

	// QueryByFingerprint returns the record holding the fingerprint, or
	// nil when no such record exists.
	QueryByFingerprint(ctx context.Context, fingerprint string) (*models.DocumentRecord, error)

	// QueryDeadline resolves the deadline for a selector, or nil when no
	// deadline record matches.
	QueryDeadline(ctx context.Context, sel DeadlineSelector) (*time.Time, error)
}

// IsNetworkError reports whether err looks like a transport failure rather
// than a logical rejection. Transport failures become queued retries;
// logical errors do not.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if s, ok := status.FromError(err); ok {
		switch s.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted:
			return true
		}
	}

	msg := err.Error()
	for _, marker := range []string{"connection refused", "connection reset", "no such host", "network is unreachable", "i/o timeout"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
