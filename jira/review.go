package jira

import (
	"log/slog"
	"strings"
)

// ReviewMarkerLabel tags issues created by the pipeline as review
// tickets. It is the primary review-ticket signal.
const ReviewMarkerLabel = "docflow-review"

// ReviewSummaryPrefix starts every review ticket summary the pipeline
// creates. It is the structural fallback signal for instances where
// label edits are restricted.
const ReviewSummaryPrefix = "[Doc Review]"

// ReviewSignal says which signal identified a review ticket.
type ReviewSignal string

// Review ticket signals.
const (
	ReviewSignalLabel   ReviewSignal = "label"
	ReviewSignalSummary ReviewSignal = "summary-prefix"
	ReviewSignalNone    ReviewSignal = "none"
)

// IsReviewTicket reports whether an issue is one of the pipeline's
// review tickets, and which signal matched. The marker label is
// checked first; the summary prefix is the structural fallback. The
// matched path is logged so degraded detection is visible, never
// silent.
func IsReviewTicket(logger *slog.Logger, issue *Issue) (bool, ReviewSignal) {
	if issue == nil {
		return false, ReviewSignalNone
	}
	if logger == nil {
		logger = slog.Default()
	}

	for _, label := range issue.Fields.Labels {
		if strings.EqualFold(label, ReviewMarkerLabel) {
			logger.Debug("review ticket detected", "issue", issue.Key, "signal", ReviewSignalLabel)
			return true, ReviewSignalLabel
		}
	}

	if strings.HasPrefix(issue.Fields.Summary, ReviewSummaryPrefix) {
		logger.Warn("review ticket detected by summary fallback, marker label missing",
			"issue", issue.Key, "signal", ReviewSignalSummary)
		return true, ReviewSignalSummary
	}

	return false, ReviewSignalNone
}
