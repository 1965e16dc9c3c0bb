package docflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/randalmurphal/docflow/approval"
	"github.com/randalmurphal/docflow/bus"
	"github.com/randalmurphal/docflow/gen"
	"github.com/randalmurphal/docflow/jira"
	"github.com/randalmurphal/docflow/review"
)

// VersionStore persists immutable document versions.
type VersionStore interface {
	SaveVersion(v *DocumentVersion) error
	LoadVersion(documentID string, version int) (*DocumentVersion, error)
	// LatestVersion returns the highest stored version number, or
	// ErrVersionNotFound when the document has none yet.
	LatestVersion(documentID string) (int, error)
}

// ArtifactStore persists review artifacts keyed by version pair.
type ArtifactStore interface {
	SaveArtifact(a *review.Artifact) error
}

// ReviewTracker is the slice of the ticket tracker the pipeline
// consumes. *jira.Client satisfies it.
type ReviewTracker interface {
	GetIssue(ctx context.Context, key string) (*jira.Issue, error)
	CreateIssue(ctx context.Context, req *jira.CreateIssueRequest) (*jira.CreateIssueResponse, error)
	GetComments(ctx context.Context, key string) ([]jira.Comment, error)
	AddComment(ctx context.Context, key string, body any) (*jira.Comment, error)
	AddLabel(ctx context.Context, key, label string) error
}

// DecisionAckLabel marks review tickets whose decision has been
// processed.
const DecisionAckLabel = "docflow-decided"

// PipelineConfig holds the settings the stage handlers need.
type PipelineConfig struct {
	// ReviewProject is the tracker project review tickets are created
	// in.
	ReviewProject string

	// ReviewIssueType is the issue type for review tickets. Defaults
	// to "Task".
	ReviewIssueType string

	// SignArtifactLink, when set, mints an expiring link to a review
	// artifact for inclusion in the review ticket.
	SignArtifactLink func(artifactKey string) (string, error)
}

// Pipeline wires the stage handlers together. Each handler is a
// stateless unit of work: it loads the change record, does one
// stage's effects, and advances the record with a conditional write.
// Losing that write means another delivery of the same event already
// did the work, so the handler returns without error.
type Pipeline struct {
	cfg         PipelineConfig
	classifier  *Classifier
	records     RecordStore
	versions    VersionStore
	artifacts   ArtifactStore
	tracker     ReviewTracker
	generator   gen.Generator
	parser      *approval.Parser
	coordinator *PublicationCoordinator
	events      bus.Publisher
	logger      *slog.Logger
}

// PipelineDeps carries the collaborators for NewPipeline.
type PipelineDeps struct {
	Classifier  *Classifier
	Records     RecordStore
	Versions    VersionStore
	Artifacts   ArtifactStore
	Tracker     ReviewTracker
	Generator   gen.Generator
	Parser      *approval.Parser
	Coordinator *PublicationCoordinator
	Events      bus.Publisher
	Logger      *slog.Logger
}

// NewPipeline creates a pipeline.
func NewPipeline(cfg PipelineConfig, deps PipelineDeps) *Pipeline {
	if cfg.ReviewIssueType == "" {
		cfg.ReviewIssueType = "Task"
	}
	if deps.Parser == nil {
		deps.Parser = approval.NewParser(nil)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Pipeline{
		cfg:         cfg,
		classifier:  deps.Classifier,
		records:     deps.Records,
		versions:    deps.Versions,
		artifacts:   deps.Artifacts,
		tracker:     deps.Tracker,
		generator:   deps.Generator,
		parser:      deps.Parser,
		coordinator: deps.Coordinator,
		events:      deps.Events,
		logger:      deps.Logger,
	}
}

// HandleEvent dispatches a bus event to the stage handler for its
// topic. This is the worker entry point.
func (p *Pipeline) HandleEvent(ctx context.Context, ev bus.Event) error {
	switch ev.Topic {
	case bus.TopicChangeDetected:
		return p.HandleChangeDetected(ctx, ev.RecordID)
	case bus.TopicDocumentGenerated:
		return p.HandleDocumentGenerated(ctx, ev.RecordID)
	case bus.TopicPublished:
		// Terminal notification, nothing left to do.
		return nil
	default:
		return fmt.Errorf("%w: %q", bus.ErrUnknownTopic, ev.Topic)
	}
}

// HandleTicketEvent classifies an inbound ticket event and, when
// accepted, opens a change record and kicks off the pipeline. A
// rejection is a decision, not an error: it is logged with its reason
// and dropped.
func (p *Pipeline) HandleTicketEvent(ctx context.Context, event *TicketEvent) (*ChangeRecord, error) {
	log := p.logger.With("ticket_id", eventTicketID(event))

	cls := p.classifier.Classify(event)
	if !cls.Accept {
		log.Info("ticket event rejected", "reason", cls.Reject)
		return nil, nil
	}

	rec, err := NewChangeRecord(event.TicketID, event.DocumentID, cls.Trigger)
	if err != nil {
		return nil, err
	}
	if err := p.records.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("creating change record: %w", err)
	}

	log.Info("change detected", "record_id", rec.ID, "document_id", rec.DocumentID, "trigger", cls.Trigger)

	if err := p.events.Publish(ctx, bus.Event{Topic: bus.TopicChangeDetected, RecordID: rec.ID}); err != nil {
		return nil, fmt.Errorf("enqueueing detection: %w", err)
	}
	return rec, nil
}

func eventTicketID(event *TicketEvent) string {
	if event == nil {
		return ""
	}
	return event.TicketID
}

// HandleChangeDetected drafts the proposed document version for a
// detected change and advances the record to generated.
func (p *Pipeline) HandleChangeDetected(ctx context.Context, recordID string) error {
	rec, err := p.records.Get(ctx, recordID)
	if err != nil {
		return err
	}
	log := p.logger.With("record_id", rec.ID, "document_id", rec.DocumentID)
	if rec.Stage != StageDetected {
		log.Info("generation skipped, record already advanced", "stage", rec.Stage)
		return nil
	}

	proposed, base, err := p.orphanedDraft(rec)
	if err != nil {
		return err
	}
	if proposed != nil {
		log.Info("reusing draft stored by an earlier attempt", "version", proposed.Version)
	} else {
		if base, err = p.baseVersion(rec.DocumentID); err != nil {
			return err
		}

		issue, err := p.tracker.GetIssue(ctx, rec.SourceTicketID)
		if err != nil {
			return p.generationFailure(ctx, rec, fmt.Errorf("fetching source ticket: %w", err))
		}
		ticketBody, _ := jira.PlainTextFromAny(issue.Fields.Description)

		text, err := p.generator.Generate(ctx, gen.Request{
			DocumentID:    rec.DocumentID,
			CurrentText:   base.Text,
			TicketID:      rec.SourceTicketID,
			TicketSummary: issue.Fields.Summary,
			TicketBody:    ticketBody,
		})
		if err != nil {
			return p.generationFailure(ctx, rec, err)
		}

		proposed = &DocumentVersion{
			DocumentID:  rec.DocumentID,
			Version:     base.Version + 1,
			Text:        text,
			Format:      "markdown",
			GeneratedBy: AuthorAI,
			CreatedAt:   rec.DetectedAt,
		}
		if err := p.versions.SaveVersion(proposed); err != nil {
			// A concurrent handler may have stored this version first;
			// reuse it rather than minting a divergent draft.
			stored, loadErr := p.versions.LoadVersion(rec.DocumentID, proposed.Version)
			if loadErr != nil {
				return fmt.Errorf("storing proposed version: %w", err)
			}
			proposed = stored
		}
	}

	rec.BaseVersion = base.Version
	rec.ProposedVersion = proposed.Version
	rec.Stage = StageGenerated
	if err := p.records.AdvanceStage(ctx, rec, StageDetected); err != nil {
		if errors.Is(err, ErrStageConflict) {
			log.Info("generation already recorded by a concurrent handler")
			return nil
		}
		return err
	}

	log.Info("document generated", "base_version", rec.BaseVersion, "proposed_version", rec.ProposedVersion)
	return p.events.Publish(ctx, bus.Event{Topic: bus.TopicDocumentGenerated, RecordID: rec.ID})
}

// baseVersion loads the latest stored version, or a synthetic empty
// v0 for a document that has never been stored.
func (p *Pipeline) baseVersion(documentID string) (*DocumentVersion, error) {
	latest, err := p.versions.LatestVersion(documentID)
	if errors.Is(err, ErrVersionNotFound) {
		return emptyBase(documentID), nil
	}
	if err != nil {
		return nil, err
	}
	return p.versions.LoadVersion(documentID, latest)
}

// orphanedDraft finds a draft left behind by an attempt that stored
// the proposed version but failed before advancing the record. Such a
// draft is the latest stored version, AI-authored, and stamped with
// this record's detection time; a redelivery must reuse it as the
// proposal rather than treat it as the base, or every retry would
// stack a fresh draft on top of the last one. Returns the draft and
// the version it was drafted from, or nil when generation should run.
func (p *Pipeline) orphanedDraft(rec *ChangeRecord) (draft, base *DocumentVersion, err error) {
	latest, err := p.versions.LatestVersion(rec.DocumentID)
	if errors.Is(err, ErrVersionNotFound) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	v, err := p.versions.LoadVersion(rec.DocumentID, latest)
	if err != nil {
		return nil, nil, err
	}
	if v.GeneratedBy != AuthorAI || !v.CreatedAt.Equal(rec.DetectedAt) {
		return nil, nil, nil
	}
	if v.Version == 1 {
		return v, emptyBase(rec.DocumentID), nil
	}
	base, err = p.versions.LoadVersion(rec.DocumentID, v.Version-1)
	if err != nil {
		return nil, nil, err
	}
	return v, base, nil
}

func emptyBase(documentID string) *DocumentVersion {
	return &DocumentVersion{DocumentID: documentID, Version: 0, Format: "markdown", GeneratedBy: AuthorHuman}
}

func (p *Pipeline) generationFailure(ctx context.Context, rec *ChangeRecord, cause error) error {
	detail := fmt.Sprintf("generate v%d: %v", rec.ProposedVersion+1, cause)
	if err := p.records.SetLastError(ctx, rec.ID, detail); err != nil {
		p.logger.Error("recording generation failure", "record_id", rec.ID, "error", err)
	}
	return fmt.Errorf("%w: %v", ErrGenerationFailed, cause)
}

// HandleDocumentGenerated composes the review artifact and opens the
// review ticket, advancing the record to review-created.
func (p *Pipeline) HandleDocumentGenerated(ctx context.Context, recordID string) error {
	rec, err := p.records.Get(ctx, recordID)
	if err != nil {
		return err
	}
	log := p.logger.With("record_id", rec.ID, "document_id", rec.DocumentID)
	if rec.Stage != StageGenerated {
		log.Info("review creation skipped, record already advanced", "stage", rec.Stage)
		return nil
	}

	base, proposed, err := p.versionPair(rec)
	if err != nil {
		return err
	}

	artifact := review.Compose(base, proposed)
	if err := p.artifacts.SaveArtifact(artifact); err != nil {
		return fmt.Errorf("storing review artifact: %w", err)
	}

	// A retry after a partially-applied run re-checks before
	// re-creating the ticket.
	if rec.ReviewTicketID == "" {
		key, err := p.createReviewTicket(ctx, rec, artifact)
		if err != nil {
			return err
		}
		rec.ReviewTicketID = key
	}

	rec.Stage = StageReviewCreated
	if err := p.records.AdvanceStage(ctx, rec, StageGenerated); err != nil {
		if errors.Is(err, ErrStageConflict) {
			log.Info("review ticket already recorded by a concurrent handler")
			return nil
		}
		return err
	}

	log.Info("review ticket created", "review_ticket_id", rec.ReviewTicketID,
		"additions", artifact.Additions, "deletions", artifact.Deletions)
	return nil
}

func (p *Pipeline) versionPair(rec *ChangeRecord) (base, proposed review.Version, err error) {
	base = review.Version{DocumentID: rec.DocumentID, Number: rec.BaseVersion}
	if rec.BaseVersion > 0 {
		v, loadErr := p.versions.LoadVersion(rec.DocumentID, rec.BaseVersion)
		if loadErr != nil {
			return base, proposed, fmt.Errorf("loading base version: %w", loadErr)
		}
		base.Text = v.Text
	}

	v, loadErr := p.versions.LoadVersion(rec.DocumentID, rec.ProposedVersion)
	if loadErr != nil {
		return base, proposed, fmt.Errorf("loading proposed version: %w", loadErr)
	}
	proposed = review.Version{DocumentID: rec.DocumentID, Number: rec.ProposedVersion, Text: v.Text}
	return base, proposed, nil
}

func (p *Pipeline) createReviewTicket(ctx context.Context, rec *ChangeRecord, artifact *review.Artifact) (string, error) {
	doc := jira.NewADFDocument()
	doc.AddHeading(2, fmt.Sprintf("Proposed update for %s", rec.DocumentID))
	doc.AddParagraph(fmt.Sprintf("Source ticket %s proposes v%d -> v%d: +%d/-%d lines.",
		rec.SourceTicketID, rec.BaseVersion, rec.ProposedVersion, artifact.Additions, artifact.Deletions))
	doc.AddParagraph(artifact.Summary())
	if p.cfg.SignArtifactLink != nil {
		link, err := p.cfg.SignArtifactLink(artifact.Key())
		if err != nil {
			p.logger.Error("signing artifact link", "record_id", rec.ID, "error", err)
		} else {
			doc.AddParagraph("Full diff: " + link)
		}
	}
	doc.AddParagraph("Reply APPROVED, REJECTED, or NEEDS REVISION to decide.")

	resp, err := p.tracker.CreateIssue(ctx, &jira.CreateIssueRequest{
		Fields: jira.CreateIssueFields{
			Project:     jira.ProjectRef{Key: p.cfg.ReviewProject},
			IssueType:   jira.IssueTypeRef{Name: p.cfg.ReviewIssueType},
			Summary:     fmt.Sprintf("%s %s v%d -> v%d", jira.ReviewSummaryPrefix, rec.DocumentID, rec.BaseVersion, rec.ProposedVersion),
			Description: doc,
			Labels:      []string{jira.ReviewMarkerLabel},
		},
	})
	if err != nil {
		return "", fmt.Errorf("creating review ticket: %w", err)
	}
	return resp.Key, nil
}

// HandleReviewComment re-parses the review thread after a new comment
// and applies any recognized decision. Comments on tickets the
// pipeline does not track are ignored.
func (p *Pipeline) HandleReviewComment(ctx context.Context, reviewTicketID string) (*PublicationRecord, error) {
	rec, err := p.records.ByReviewTicket(ctx, reviewTicketID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			p.logger.Debug("comment on untracked ticket ignored", "ticket_id", reviewTicketID)
			return nil, nil
		}
		return nil, err
	}
	log := p.logger.With("record_id", rec.ID, "review_ticket_id", reviewTicketID)

	comments, err := p.tracker.GetComments(ctx, reviewTicketID)
	if err != nil {
		return nil, fmt.Errorf("fetching review comments: %w", err)
	}

	result := p.parser.Parse(reviewTicketID, comments)
	if result.Decision == approval.Unknown {
		log.Info("no decision recognized yet, review stays open")
		return nil, nil
	}

	stageBefore := rec.Stage
	pub, err := p.coordinator.Apply(ctx, rec, result.Decision)
	if err != nil {
		return nil, err
	}

	if stageBefore != rec.Stage && rec.Stage.IsTerminal() {
		p.acknowledgeDecision(ctx, rec, result)
	}
	return pub, nil
}

// acknowledgeDecision marks the review ticket so reviewers can see the
// decision was processed. Failures here are logged, never fatal: the
// pipeline outcome is already durable.
func (p *Pipeline) acknowledgeDecision(ctx context.Context, rec *ChangeRecord, result approval.Result) {
	log := p.logger.With("record_id", rec.ID, "review_ticket_id", rec.ReviewTicketID)

	if err := p.tracker.AddLabel(ctx, rec.ReviewTicketID, DecisionAckLabel); err != nil {
		log.Error("adding decision label", "error", err)
	}

	doc := jira.NewADFDocument()
	switch rec.Stage {
	case StagePublished:
		doc.AddParagraph(fmt.Sprintf("Decision recorded: approved. Published %s v%d.", rec.DocumentID, rec.ProposedVersion))
	case StageRejected:
		doc.AddParagraph(fmt.Sprintf("Decision recorded: rejected. %s stays at v%d.", rec.DocumentID, rec.BaseVersion))
	case StageNeedsRevision:
		doc.AddParagraph("Decision recorded: needs revision. A new proposal requires a fresh source ticket event.")
	default:
		return
	}
	if _, err := p.tracker.AddComment(ctx, rec.ReviewTicketID, doc); err != nil {
		log.Error("adding decision comment", "error", err)
	}
}
