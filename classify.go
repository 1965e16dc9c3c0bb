package docflow

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// Ticket Events
// =============================================================================

// TicketEvent is a normalized ticket-tracker event, the classifier
// input. Webhook payloads are normalized into this shape before
// classification; a payload that cannot produce one is malformed and
// dropped.
type TicketEvent struct {
	TicketID       string    `json:"ticketId"`
	DocumentID     string    `json:"documentId"`
	PreviousStatus string    `json:"previousStatus"`
	NewStatus      string    `json:"newStatus"`
	IssueType      string    `json:"issueType"`
	Labels         []string  `json:"labels,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// Validate checks the event carries the fields classification needs.
func (e *TicketEvent) Validate() error {
	switch {
	case e.TicketID == "":
		return fmt.Errorf("%w: missing ticket id", ErrMalformedEvent)
	case e.NewStatus == "":
		return fmt.Errorf("%w: missing new status", ErrMalformedEvent)
	case e.CreatedAt.IsZero():
		return fmt.Errorf("%w: missing created timestamp", ErrMalformedEvent)
	}
	return nil
}

// AgeInDays returns whole days between the ticket creation and now.
func (e *TicketEvent) AgeInDays(now time.Time) int {
	return int(now.Sub(e.CreatedAt).Hours() / 24)
}

// HasLabel reports whether the event carries the label, case-insensitively.
func (e *TicketEvent) HasLabel(label string) bool {
	for _, l := range e.Labels {
		if strings.EqualFold(l, label) {
			return true
		}
	}
	return false
}

// =============================================================================
// Classifier
// =============================================================================

// ClassifierConfig holds every threshold and status set the classifier
// consults. There are no defaults baked into the decision logic; the
// config layer supplies them.
type ClassifierConfig struct {
	// ForceLabel triggers a pipeline run regardless of the transition.
	ForceLabel string

	// SuppressLabel vetoes a pipeline run regardless of the transition.
	SuppressLabel string

	// CompletionStatuses are the workflow states that count as "done".
	CompletionStatuses []string

	// ActiveStatuses are the workflow states that count as real
	// in-progress work. A transition must come from one of these,
	// guarding against "To Do -> Done" skips.
	ActiveStatuses []string

	// DocumentableTypes are the issue types worth documenting.
	DocumentableTypes []string

	// MaxAgeDays rejects tickets older than this many days.
	MaxAgeDays int
}

// Validate rejects an inconsistent configuration. A status present in
// both the active and completion sets would make rule evaluation
// ambiguous, so it is a load-time error, never a silent
// misclassification.
func (c *ClassifierConfig) Validate() error {
	for _, a := range c.ActiveStatuses {
		for _, d := range c.CompletionStatuses {
			if strings.EqualFold(a, d) {
				return fmt.Errorf("%w: %q", ErrConfigStatusOverlap, a)
			}
		}
	}
	return nil
}

// RejectReason says which rule rejected an event.
type RejectReason string

// Reject reasons, one per classifier rule.
const (
	RejectSuppressLabel    RejectReason = "suppress-label"
	RejectNotCompleted     RejectReason = "status-not-completion"
	RejectNotFromActive    RejectReason = "previous-status-not-active"
	RejectStale            RejectReason = "ticket-too-old"
	RejectIssueType        RejectReason = "issue-type-not-documentable"
	RejectMalformedPayload RejectReason = "malformed-payload"
)

// Classification is the classifier verdict.
type Classification struct {
	Accept bool
	// Trigger is set when Accept is true.
	Trigger TriggerReason
	// Reject is set when Accept is false.
	Reject RejectReason
}

// Classifier decides whether a ticket event starts a pipeline run.
// It is a pure function of the event and its configuration.
type Classifier struct {
	cfg ClassifierConfig
	// now is swappable for tests.
	now func() time.Time
}

// NewClassifier creates a classifier. The config must already be
// validated; see ClassifierConfig.Validate.
func NewClassifier(cfg ClassifierConfig) *Classifier {
	return &Classifier{cfg: cfg, now: time.Now}
}

// Classify evaluates the decision rules in order; the first match
// wins.
//
//  1. force label            -> accept (forced-label)
//  2. suppress label         -> reject
//  3. new status not done    -> reject
//  4. previous not active    -> reject
//  5. ticket too old         -> reject
//  6. type not documentable  -> reject
//  7. otherwise              -> accept (status-transition)
func (c *Classifier) Classify(event *TicketEvent) Classification {
	if event == nil || event.Validate() != nil {
		return Classification{Reject: RejectMalformedPayload}
	}

	if c.cfg.ForceLabel != "" && event.HasLabel(c.cfg.ForceLabel) {
		return Classification{Accept: true, Trigger: TriggerForcedLabel}
	}
	if c.cfg.SuppressLabel != "" && event.HasLabel(c.cfg.SuppressLabel) {
		return Classification{Reject: RejectSuppressLabel}
	}
	if !containsFold(c.cfg.CompletionStatuses, event.NewStatus) {
		return Classification{Reject: RejectNotCompleted}
	}
	if !containsFold(c.cfg.ActiveStatuses, event.PreviousStatus) {
		return Classification{Reject: RejectNotFromActive}
	}
	if c.cfg.MaxAgeDays > 0 && event.AgeInDays(c.now()) > c.cfg.MaxAgeDays {
		return Classification{Reject: RejectStale}
	}
	if !containsFold(c.cfg.DocumentableTypes, event.IssueType) {
		return Classification{Reject: RejectIssueType}
	}

	return Classification{Accept: true, Trigger: TriggerStatusTransition}
}

func containsFold(set []string, s string) bool {
	for _, v := range set {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
