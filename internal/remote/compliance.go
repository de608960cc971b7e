package remote

import (
	"time"

	"github.com/turoarchive/turoarchive/internal/models"
)

// Compliance sources recorded alongside the derived status.
const (
	ComplianceSourceDeadline = "deadline"
	ComplianceSourceWeekday  = "weekday-heuristic"
	ComplianceSourceNone     = "none"
)

// Compliance classifies a submission at time now against a resolved
// deadline: on or before the deadline is compliant, up to one day past is
// late, anything later is non-compliant.
//
// When no deadline resolves and allowWeekdayFallback is set, a day-of-week
// guess applies (Monday/Sunday compliant, Tuesday late, otherwise
// non-compliant). The returned source tags that status as a heuristic, not
// a derived policy.
func Compliance(now time.Time, deadline *time.Time, allowWeekdayFallback bool) (models.ComplianceStatus, string) {
	if deadline != nil {
		switch {
		case !now.After(*deadline):
			return models.ComplianceCompliant, ComplianceSourceDeadline
		case !now.After(deadline.Add(24 * time.Hour)):
			return models.ComplianceLate, ComplianceSourceDeadline
		default:
			return models.ComplianceNonCompliant, ComplianceSourceDeadline
		}
	}

	if !allowWeekdayFallback {
		return models.ComplianceUnknown, ComplianceSourceNone
	}

	switch now.Weekday() {
	case time.Monday, time.Sunday:
		return models.ComplianceCompliant, ComplianceSourceWeekday
	case time.Tuesday:
		return models.ComplianceLate, ComplianceSourceWeekday
	default:
		return models.ComplianceNonCompliant, ComplianceSourceWeekday
	}
}
