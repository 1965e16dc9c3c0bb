package docflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/randalmurphal/docflow/approval"
	"github.com/randalmurphal/docflow/bus"
)

// PagePublisher pushes an approved document to the external wiki and
// returns a reference to the published page.
type PagePublisher interface {
	PublishPage(ctx context.Context, documentID, markdown, versionMessage string) (pageRef string, err error)
}

// PublicationCoordinator drives a decided change record to its
// terminal stage. Every transition is a conditional write on the
// record's current stage, so concurrent deliveries of the same
// decision resolve to exactly one winner; losers observe the conflict
// and return the already-applied outcome.
type PublicationCoordinator struct {
	records   RecordStore
	pubs      PublicationStore
	versions  VersionStore
	publisher PagePublisher
	events    bus.Publisher
	logger    *slog.Logger
}

// NewPublicationCoordinator creates a coordinator.
func NewPublicationCoordinator(records RecordStore, pubs PublicationStore, versions VersionStore, publisher PagePublisher, events bus.Publisher, logger *slog.Logger) *PublicationCoordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &PublicationCoordinator{
		records:   records,
		pubs:      pubs,
		versions:  versions,
		publisher: publisher,
		events:    events,
		logger:    logger,
	}
}

// Apply applies a parsed review decision to the record. For approved
// decisions it returns the publication record; re-applying a decision
// to an already-published record returns the existing publication
// without a second external publish. Unknown decisions leave the
// record parked and return nil.
func (c *PublicationCoordinator) Apply(ctx context.Context, rec *ChangeRecord, decision approval.Decision) (*PublicationRecord, error) {
	log := c.logger.With("record_id", rec.ID, "document_id", rec.DocumentID, "decision", decision)

	switch rec.Stage {
	case StagePublished:
		// Duplicate delivery after a completed publish.
		return c.pubs.GetPublication(ctx, PublicationKey(rec.DocumentID, rec.ProposedVersion))
	case StageRejected, StageNeedsRevision:
		log.Info("decision ignored, record already terminal", "stage", rec.Stage)
		return nil, nil
	case StageReviewCreated, StageDecided:
	default:
		return nil, fmt.Errorf("record %s not ready for a decision (stage %s)", rec.ID, rec.Stage)
	}

	if decision == approval.Unknown {
		log.Info("no recognized decision yet, record stays parked")
		return nil, nil
	}

	if rec.Stage == StageReviewCreated {
		if err := c.advance(ctx, rec, StageReviewCreated, StageDecided); err != nil {
			return nil, err
		}
		if rec.Stage != StageDecided {
			// A racing handler moved the record further; re-enter with
			// the adopted state.
			return c.Apply(ctx, rec, decision)
		}
	}

	switch decision {
	case approval.Approved:
		return c.publish(ctx, rec, log)
	case approval.Rejected:
		if err := c.advance(ctx, rec, StageDecided, StageRejected); err != nil {
			return nil, err
		}
		log.Info("change rejected, record closed")
		return nil, nil
	case approval.NeedsRevision:
		if err := c.advance(ctx, rec, StageDecided, StageNeedsRevision); err != nil {
			return nil, err
		}
		log.Info("revision requested, record closed pending a new detection")
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDecision, decision)
	}
}

// publish runs the Publishing leg: external publish, idempotent
// publication write, then the final stage move. A publish failure
// leaves the stage at decided so a retry re-enters here.
func (c *PublicationCoordinator) publish(ctx context.Context, rec *ChangeRecord, log *slog.Logger) (*PublicationRecord, error) {
	key := PublicationKey(rec.DocumentID, rec.ProposedVersion)

	existing, err := c.pubs.GetPublication(ctx, key)
	if err == nil {
		// A previous attempt already published; finish the stage move.
		if advErr := c.advance(ctx, rec, StageDecided, StagePublished); advErr != nil {
			return nil, advErr
		}
		log.Info("publication already recorded, treating as success", "page_ref", existing.ExternalPageRef)
		return existing, nil
	}
	if !errors.Is(err, ErrRecordNotFound) {
		return nil, err
	}

	version, err := c.versions.LoadVersion(rec.DocumentID, rec.ProposedVersion)
	if err != nil {
		return nil, fmt.Errorf("loading approved version: %w", err)
	}

	versionMessage := fmt.Sprintf("v%d approved via %s", rec.ProposedVersion, rec.ReviewTicketID)
	pageRef, err := c.publisher.PublishPage(ctx, rec.DocumentID, version.Text, versionMessage)
	if err != nil {
		detail := fmt.Sprintf("publish v%d: %v", rec.ProposedVersion, err)
		if setErr := c.records.SetLastError(ctx, rec.ID, detail); setErr != nil {
			log.Error("recording publish failure", "error", setErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrPublishFailed, err)
	}

	pub := &PublicationRecord{
		DocumentID:      rec.DocumentID,
		Version:         rec.ProposedVersion,
		RecordID:        rec.ID,
		ExternalPageRef: pageRef,
		PublishedAt:     time.Now().UTC(),
	}
	stored, err := c.pubs.PutPublication(ctx, pub)
	if errors.Is(err, ErrPublicationExists) {
		// Another worker published between our check and write.
		pub = stored
	} else if err != nil {
		return nil, fmt.Errorf("recording publication: %w", err)
	} else {
		pub = stored
	}

	if err := c.advance(ctx, rec, StageDecided, StagePublished); err != nil {
		return nil, err
	}

	if c.events != nil {
		if err := c.events.Publish(ctx, bus.Event{Topic: bus.TopicPublished, RecordID: rec.ID}); err != nil {
			log.Error("publishing completion event", "error", err)
		}
	}

	log.Info("document published", "page_ref", pub.ExternalPageRef, "version", pub.Version)
	return pub, nil
}

// advance performs one conditional stage move. Losing the race is
// absorbed: the record is reloaded so the caller continues with the
// winner's state.
func (c *PublicationCoordinator) advance(ctx context.Context, rec *ChangeRecord, from, to PipelineStage) error {
	rec.Stage = to
	err := c.records.AdvanceStage(ctx, rec, from)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrStageConflict) {
		return err
	}

	current, getErr := c.records.Get(ctx, rec.ID)
	if getErr != nil {
		return getErr
	}
	*rec = *current
	c.logger.Info("lost stage race, adopting current state",
		"record_id", rec.ID, "from", from, "to", to, "stage", rec.Stage)
	return nil
}
