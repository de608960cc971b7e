package remote

import (
	"context"
	"log/slog"
	"time"

	"github.com/turoarchive/turoarchive/internal/models"
)

// BuildRecord assembles the archive record for an upload, resolving the
// compliance status from the deadline collection. Deadline lookup failures
// degrade to the fallback path; they never block the upload itself.
func BuildRecord(
	ctx context.Context,
	store Store,
	logger *slog.Logger,
	fingerprint, fileName, storagePath string,
	fileSize int64,
	opts models.UploadOptions,
	language models.Language,
	now time.Time,
	allowWeekdayFallback bool,
) *models.DocumentRecord {
	var deadline *time.Time
	if opts.DocType != "" && opts.DocType != models.DocTypeUnknown {
		var err error
		deadline, err = store.QueryDeadline(ctx, DeadlineSelector{
			DocType:    opts.DocType,
			WeekNumber: opts.WeekNumber,
			SchoolYear: opts.SchoolYear,
		})
		if err != nil {
			logger.Warn("Deadline lookup failed, falling back.", "fingerprint", fingerprint, "error", err)
		}
	}

	status, source := Compliance(now, deadline, allowWeekdayFallback)

	return &models.DocumentRecord{
		Fingerprint:      fingerprint,
		FileName:         fileName,
		StoragePath:      storagePath,
		FileSize:         fileSize,
		DocType:          opts.DocType,
		WeekNumber:       opts.WeekNumber,
		SchoolYear:       opts.SchoolYear,
		Subject:          opts.Subject,
		GradeLevel:       opts.GradeLevel,
		School:           opts.School,
		Teacher:          opts.Teacher,
		Language:         language,
		ComplianceStatus: string(status),
		ComplianceSource: source,
		SubmittedAt:      now,
	}
}
