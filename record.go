package docflow

import (
	"context"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// =============================================================================
// Pipeline Stages
// =============================================================================

// PipelineStage identifies how far a change record has progressed.
type PipelineStage string

// Pipeline stages in order. The three trailing stages are terminal:
// published completes the pipeline, rejected and needs-revision are
// absorbing until a new record supersedes this one.
const (
	StageDetected      PipelineStage = "detected"
	StageGenerated     PipelineStage = "generated"
	StageReviewCreated PipelineStage = "review-created"
	StageDecided       PipelineStage = "decided"
	StagePublished     PipelineStage = "published"
	StageRejected      PipelineStage = "rejected"
	StageNeedsRevision PipelineStage = "needs-revision"
)

// stageOrder maps non-terminal progression. Terminal stages have no order.
var stageOrder = map[PipelineStage]int{
	StageDetected:      0,
	StageGenerated:     1,
	StageReviewCreated: 2,
	StageDecided:       3,
	StagePublished:     4,
}

// IsTerminal reports whether the stage is one of the three terminal states.
func (s PipelineStage) IsTerminal() bool {
	return s == StagePublished || s == StageRejected || s == StageNeedsRevision
}

// Valid reports whether the stage is a known stage value.
func (s PipelineStage) Valid() bool {
	if _, ok := stageOrder[s]; ok {
		return true
	}
	return s == StageRejected || s == StageNeedsRevision
}

// CanTransition reports whether a record at stage s may move to next.
// Forward moves along the main line are allowed one step at a time;
// the two rejection branches are reachable only from review-created or
// decided. Nothing leaves a terminal stage.
func (s PipelineStage) CanTransition(next PipelineStage) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case StageRejected, StageNeedsRevision:
		return s == StageReviewCreated || s == StageDecided
	case StagePublished:
		return s == StageDecided
	default:
		from, okFrom := stageOrder[s]
		to, okTo := stageOrder[next]
		return okFrom && okTo && to == from+1
	}
}

// ValidateTransition checks a proposed stage move. It distinguishes
// an attempt to leave a terminal stage from a regression or skip so
// stores and the coordinator report the right condition.
func ValidateTransition(from, to PipelineStage) error {
	if from.CanTransition(to) {
		return nil
	}
	if from.IsTerminal() {
		return fmt.Errorf("%w: %s", ErrRecordTerminal, from)
	}
	return fmt.Errorf("%w: %s -> %s", ErrStageRegression, from, to)
}

// TriggerReason records why a classifier accepted a ticket event.
type TriggerReason string

// Trigger reasons.
const (
	TriggerStatusTransition TriggerReason = "status-transition"
	TriggerForcedLabel      TriggerReason = "forced-label"
)

// =============================================================================
// ChangeRecord
// =============================================================================

// ChangeRecord is the durable record that a document needs
// regeneration and review. It is created by classifier acceptance,
// mutated only by the stage that currently owns it, and never deleted:
// a later edit to the same document supersedes it with a new record.
type ChangeRecord struct {
	ID             string        `json:"id"`
	SourceTicketID string        `json:"sourceTicketId"`
	DocumentID     string        `json:"documentId"`
	TriggerReason  TriggerReason `json:"triggerReason"`
	Stage          PipelineStage `json:"pipelineStage"`
	DetectedAt     time.Time     `json:"detectedAt"`
	LastUpdatedAt  time.Time     `json:"lastUpdatedAt"`

	// ReviewTicketID is set once the review ticket is created.
	ReviewTicketID string `json:"reviewTicketId,omitempty"`

	// BaseVersion and ProposedVersion are set once generation completes.
	BaseVersion     int `json:"baseVersion,omitempty"`
	ProposedVersion int `json:"proposedVersion,omitempty"`

	// LastError carries the last transient failure detail after retry
	// exhaustion, for operators. Empty otherwise.
	LastError string `json:"lastError,omitempty"`
}

// StageMove is one entry in a record's append-only stage history.
// Stores append a move on every successful AdvanceStage, so operators
// can reconstruct how a record reached its current stage.
type StageMove struct {
	From    PipelineStage `json:"from"`
	To      PipelineStage `json:"to"`
	MovedAt time.Time     `json:"movedAt"`
}

// changeRecordAlphabet keeps record IDs URL- and filename-safe.
const changeRecordAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewChangeRecord creates a record at the detected stage.
func NewChangeRecord(sourceTicketID, documentID string, reason TriggerReason) (*ChangeRecord, error) {
	id, err := gonanoid.Generate(changeRecordAlphabet, 12)
	if err != nil {
		return nil, fmt.Errorf("generate record id: %w", err)
	}
	now := time.Now().UTC()
	return &ChangeRecord{
		ID:             "chg-" + id,
		SourceTicketID: sourceTicketID,
		DocumentID:     documentID,
		TriggerReason:  reason,
		Stage:          StageDetected,
		DetectedAt:     now,
		LastUpdatedAt:  now,
	}, nil
}

// =============================================================================
// DocumentVersion
// =============================================================================

// DocumentVersion is an immutable content snapshot. Version numbers
// are monotonically increasing per document and start at 1.
type DocumentVersion struct {
	DocumentID  string    `json:"documentId"`
	Version     int       `json:"version"`
	Text        string    `json:"contentText"`
	Format      string    `json:"contentFormat"`
	GeneratedBy Author    `json:"generatedBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Author identifies what produced a document version.
type Author string

// Authors.
const (
	AuthorAI    Author = "ai"
	AuthorHuman Author = "human"
)

// =============================================================================
// PublicationRecord
// =============================================================================

// PublicationRecord is the result of a publish attempt. At most one
// record exists per idempotency key; a retry with the same key returns
// the existing record instead of publishing again.
type PublicationRecord struct {
	DocumentID      string    `json:"documentId"`
	Version         int       `json:"version"`
	RecordID        string    `json:"recordId"`
	ExternalPageRef string    `json:"externalPageRef"`
	PublishedAt     time.Time `json:"publishedAt"`
}

// IdempotencyKey is the deterministic key for a publish attempt.
func (p *PublicationRecord) IdempotencyKey() string {
	return PublicationKey(p.DocumentID, p.Version)
}

// PublicationKey builds the idempotency key for a document version.
func PublicationKey(documentID string, version int) string {
	return fmt.Sprintf("%s@%d", documentID, version)
}

// =============================================================================
// Store Interfaces
// =============================================================================

// RecordStore persists change records. Implementations must make
// AdvanceStage a conditional write: two handlers racing to advance the
// same record get exactly one winner, and the loser sees
// ErrStageConflict.
type RecordStore interface {
	// Create inserts a new record.
	Create(ctx context.Context, rec *ChangeRecord) error

	// Get returns the record by ID, or ErrRecordNotFound.
	Get(ctx context.Context, id string) (*ChangeRecord, error)

	// Latest returns the most recent record for a document, or
	// ErrRecordNotFound.
	Latest(ctx context.Context, documentID string) (*ChangeRecord, error)

	// ByReviewTicket returns the record whose review ticket is
	// reviewTicketID, or ErrRecordNotFound.
	ByReviewTicket(ctx context.Context, reviewTicketID string) (*ChangeRecord, error)

	// AdvanceStage moves the record from exactly fromStage to the state
	// carried by rec (stage and any updated fields). It returns
	// ErrStageConflict if the stored record is no longer at fromStage.
	AdvanceStage(ctx context.Context, rec *ChangeRecord, fromStage PipelineStage) error

	// SetLastError attaches a failure detail without changing the stage.
	SetLastError(ctx context.Context, id, detail string) error
}

// PublicationStore persists publication records keyed by idempotency
// key. PutPublication must be first-writer-wins: if a record already
// exists for the key, the existing record is returned with
// ErrPublicationExists.
type PublicationStore interface {
	PutPublication(ctx context.Context, rec *PublicationRecord) (*PublicationRecord, error)
	GetPublication(ctx context.Context, key string) (*PublicationRecord, error)
}
