package compress

import "log/slog"

// ShrinkImage compresses a standalone image asset (non-PDF path) toward the
// byte budget, capping its longer dimension at maxDim. Quality steps down
// until the budget is met. On any failure, or if re-encoding would grow the
// asset, the original bytes come back unchanged.
func ShrinkImage(logger *slog.Logger, data []byte, maxDim int, target int64) []byte {
	if int64(len(data)) <= target {
		return data
	}

	best := data
	for _, quality := range []int{85, 75, 65, 55, 45} {
		out, err := reencodeJPEG(data, maxDim, quality)
		if err != nil {
			logger.Warn("Image re-encode failed, returning original bytes.", "error", err)
			return data
		}
		if len(out) < len(best) {
			best = out
		}
		if int64(len(best)) <= target {
			break
		}
	}

	if int64(len(best)) > target {
		logger.Warn("Image remains above size target.", "size", len(best), "target", target)
	}
	return best
}
