package docflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/randalmurphal/docflow/bus"
	"github.com/randalmurphal/docflow/gen"
	"github.com/randalmurphal/docflow/jira"
	"github.com/randalmurphal/docflow/review"
)

// ===== fakes =====

type memRecords struct {
	mu   sync.Mutex
	recs map[string]*ChangeRecord
	pubs map[string]*PublicationRecord
}

func newMemRecords() *memRecords {
	return &memRecords{
		recs: make(map[string]*ChangeRecord),
		pubs: make(map[string]*PublicationRecord),
	}
}

func (m *memRecords) Create(_ context.Context, rec *ChangeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.recs[rec.ID] = &cp
	return nil
}

func (m *memRecords) Get(_ context.Context, id string) (*ChangeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memRecords) Latest(_ context.Context, documentID string) (*ChangeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *ChangeRecord
	for _, rec := range m.recs {
		if rec.DocumentID != documentID {
			continue
		}
		if found == nil || rec.DetectedAt.After(found.DetectedAt) {
			found = rec
		}
	}
	if found == nil {
		return nil, ErrRecordNotFound
	}
	cp := *found
	return &cp, nil
}

func (m *memRecords) ByReviewTicket(_ context.Context, reviewTicketID string) (*ChangeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.recs {
		if reviewTicketID != "" && rec.ReviewTicketID == reviewTicketID {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, ErrRecordNotFound
}

func (m *memRecords) AdvanceStage(_ context.Context, rec *ChangeRecord, fromStage PipelineStage) error {
	if err := ValidateTransition(fromStage, rec.Stage); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.recs[rec.ID]
	if !ok {
		return ErrRecordNotFound
	}
	if cur.Stage != fromStage {
		return ErrStageConflict
	}
	cp := *rec
	cp.LastUpdatedAt = time.Now().UTC()
	m.recs[rec.ID] = &cp
	return nil
}

func (m *memRecords) SetLastError(_ context.Context, id, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.recs[id]
	if !ok {
		return ErrRecordNotFound
	}
	rec.LastError = detail
	return nil
}

func (m *memRecords) PutPublication(_ context.Context, rec *PublicationRecord) (*PublicationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.pubs[rec.IdempotencyKey()]; ok {
		cp := *existing
		return &cp, ErrPublicationExists
	}
	cp := *rec
	m.pubs[rec.IdempotencyKey()] = &cp
	return &cp, nil
}

func (m *memRecords) GetPublication(_ context.Context, key string) (*PublicationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.pubs[key]
	if !ok {
		return nil, ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

type memContent struct {
	mu        sync.Mutex
	versions  map[string]*DocumentVersion
	artifacts map[string]*review.Artifact
}

func newMemContent() *memContent {
	return &memContent{
		versions:  make(map[string]*DocumentVersion),
		artifacts: make(map[string]*review.Artifact),
	}
}

func versionKey(documentID string, version int) string {
	return fmt.Sprintf("%s@%d", documentID, version)
}

func (m *memContent) SaveVersion(v *DocumentVersion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := versionKey(v.DocumentID, v.Version)
	if _, ok := m.versions[key]; ok {
		return fmt.Errorf("version %s already stored", key)
	}
	cp := *v
	m.versions[key] = &cp
	return nil
}

func (m *memContent) LoadVersion(documentID string, version int) (*DocumentVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.versions[versionKey(documentID, version)]
	if !ok {
		return nil, ErrVersionNotFound
	}
	cp := *v
	return &cp, nil
}

func (m *memContent) LatestVersion(documentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	latest := 0
	for _, v := range m.versions {
		if v.DocumentID == documentID && v.Version > latest {
			latest = v.Version
		}
	}
	if latest == 0 {
		return 0, ErrVersionNotFound
	}
	return latest, nil
}

func (m *memContent) SaveArtifact(a *review.Artifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts[a.Key()] = a
	return nil
}

type fakeTracker struct {
	mu       sync.Mutex
	issues   map[string]*jira.Issue
	comments map[string][]jira.Comment
	labels   map[string][]string
	created  []jira.CreateIssueRequest
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{
		issues:   make(map[string]*jira.Issue),
		comments: make(map[string][]jira.Comment),
		labels:   make(map[string][]string),
	}
}

func (f *fakeTracker) GetIssue(_ context.Context, key string) (*jira.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, ok := f.issues[key]
	if !ok {
		return nil, jira.ErrIssueNotFound
	}
	return issue, nil
}

func (f *fakeTracker) CreateIssue(_ context.Context, req *jira.CreateIssueRequest) (*jira.CreateIssueResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, *req)
	key := fmt.Sprintf("%s-%d", req.Fields.Project.Key, 100+len(f.created))
	f.issues[key] = &jira.Issue{Key: key, Fields: jira.IssueFields{
		Summary: req.Fields.Summary,
		Labels:  req.Fields.Labels,
	}}
	return &jira.CreateIssueResponse{ID: key, Key: key}, nil
}

func (f *fakeTracker) GetComments(_ context.Context, key string) ([]jira.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]jira.Comment(nil), f.comments[key]...), nil
}

func (f *fakeTracker) AddComment(_ context.Context, key string, body any) (*jira.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := jira.Comment{Body: body, Created: jira.FormatTime(time.Now().UTC())}
	f.comments[key] = append(f.comments[key], c)
	return &c, nil
}

func (f *fakeTracker) AddLabel(_ context.Context, key, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labels[key] = append(f.labels[key], label)
	return nil
}

func (f *fakeTracker) comment(key, text string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[key] = append(f.comments[key], jira.Comment{
		Body:    text,
		Created: jira.FormatTime(at),
	})
}

type fakeGenerator struct {
	text  string
	err   error
	calls int
}

func (g *fakeGenerator) Generate(_ context.Context, _ gen.Request) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return g.text, nil
}

type fakePublisher struct {
	mu      sync.Mutex
	pageRef string
	err     error
	calls   int
}

func (p *fakePublisher) PublishPage(_ context.Context, documentID, _, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	if p.pageRef == "" {
		return "wiki/" + documentID, nil
	}
	return p.pageRef, nil
}

// ===== harness =====

type pipelineHarness struct {
	pipeline  *Pipeline
	records   *memRecords
	content   *memContent
	tracker   *fakeTracker
	generator *fakeGenerator
	publisher *fakePublisher
	events    *bus.MemoryBus
}

func newPipelineHarness(t *testing.T) *pipelineHarness {
	t.Helper()

	records := newMemRecords()
	content := newMemContent()
	tracker := newFakeTracker()
	generator := &fakeGenerator{text: "# Deploy Guide\n\nUpdated body.\n"}
	publisher := &fakePublisher{}
	events := bus.NewMemoryBus()

	coordinator := NewPublicationCoordinator(records, records, content, publisher, events, nil)

	cfg := testClassifierConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("classifier config: %v", err)
	}

	pipeline := NewPipeline(PipelineConfig{ReviewProject: "DOCREV"}, PipelineDeps{
		Classifier:  NewClassifier(cfg),
		Records:     records,
		Versions:    content,
		Artifacts:   content,
		Tracker:     tracker,
		Generator:   generator,
		Coordinator: coordinator,
		Events:      events,
	})

	return &pipelineHarness{
		pipeline:  pipeline,
		records:   records,
		content:   content,
		tracker:   tracker,
		generator: generator,
		publisher: publisher,
		events:    events,
	}
}

func acceptedEvent() *TicketEvent {
	return &TicketEvent{
		TicketID:       "OPS-42",
		DocumentID:     "doc-deploy",
		PreviousStatus: "In Progress",
		NewStatus:      "Done",
		IssueType:      "Task",
		CreatedAt:      time.Now().UTC().Add(-24 * time.Hour),
	}
}

func (h *pipelineHarness) sourceIssue() {
	h.tracker.issues["OPS-42"] = &jira.Issue{Key: "OPS-42", Fields: jira.IssueFields{
		Summary:     "Move deploys to blue-green",
		Description: "Deploys now roll out via the blue-green path.",
	}}
}

// runToReview drives a fresh record through detection, generation and
// review creation, returning the record at review-created.
func (h *pipelineHarness) runToReview(t *testing.T) *ChangeRecord {
	t.Helper()
	ctx := context.Background()
	h.sourceIssue()

	rec, err := h.pipeline.HandleTicketEvent(ctx, acceptedEvent())
	if err != nil {
		t.Fatalf("HandleTicketEvent: %v", err)
	}
	if rec == nil {
		t.Fatal("event should be accepted")
	}
	if err := h.pipeline.HandleChangeDetected(ctx, rec.ID); err != nil {
		t.Fatalf("HandleChangeDetected: %v", err)
	}
	if err := h.pipeline.HandleDocumentGenerated(ctx, rec.ID); err != nil {
		t.Fatalf("HandleDocumentGenerated: %v", err)
	}

	rec, err = h.records.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return rec
}

// ===== tests =====

func TestPipelineHappyPath(t *testing.T) {
	h := newPipelineHarness(t)
	ctx := context.Background()

	rec := h.runToReview(t)
	if rec.Stage != StageReviewCreated {
		t.Fatalf("stage = %s, want review-created", rec.Stage)
	}
	if rec.BaseVersion != 0 || rec.ProposedVersion != 1 {
		t.Errorf("versions = %d -> %d, want 0 -> 1", rec.BaseVersion, rec.ProposedVersion)
	}
	if rec.ReviewTicketID == "" {
		t.Fatal("review ticket not recorded")
	}
	if len(h.tracker.created) != 1 {
		t.Fatalf("created %d review tickets, want 1", len(h.tracker.created))
	}
	req := h.tracker.created[0]
	if !strings.HasPrefix(req.Fields.Summary, jira.ReviewSummaryPrefix) {
		t.Errorf("summary = %q", req.Fields.Summary)
	}
	if len(req.Fields.Labels) != 1 || req.Fields.Labels[0] != jira.ReviewMarkerLabel {
		t.Errorf("labels = %v", req.Fields.Labels)
	}
	if _, ok := h.content.artifacts[review.VersionPairKey("doc-deploy", 0, 1)]; !ok {
		t.Error("review artifact not stored")
	}

	h.tracker.comment(rec.ReviewTicketID, "APPROVED, ship it", time.Now().UTC())
	pub, err := h.pipeline.HandleReviewComment(ctx, rec.ReviewTicketID)
	if err != nil {
		t.Fatalf("HandleReviewComment: %v", err)
	}
	if pub == nil || pub.Version != 1 || pub.ExternalPageRef != "wiki/doc-deploy" {
		t.Fatalf("publication = %+v", pub)
	}
	if h.publisher.calls != 1 {
		t.Errorf("publisher calls = %d, want 1", h.publisher.calls)
	}

	rec, err = h.records.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.Stage != StagePublished {
		t.Errorf("stage = %s, want published", rec.Stage)
	}
	if labels := h.tracker.labels[rec.ReviewTicketID]; len(labels) != 1 || labels[0] != DecisionAckLabel {
		t.Errorf("ack labels = %v", labels)
	}

	var topics []string
	for _, ev := range h.events.Published() {
		topics = append(topics, ev.Topic)
	}
	want := []string{bus.TopicChangeDetected, bus.TopicDocumentGenerated, bus.TopicPublished}
	if len(topics) != len(want) {
		t.Fatalf("topics = %v, want %v", topics, want)
	}
	for i := range want {
		if topics[i] != want[i] {
			t.Errorf("topics[%d] = %s, want %s", i, topics[i], want[i])
		}
	}
}

func TestPipelineRejectedEventIsDropped(t *testing.T) {
	h := newPipelineHarness(t)

	ev := acceptedEvent()
	ev.PreviousStatus = "To Do"

	rec, err := h.pipeline.HandleTicketEvent(context.Background(), ev)
	if err != nil {
		t.Fatalf("HandleTicketEvent: %v", err)
	}
	if rec != nil {
		t.Errorf("rejected event produced record %+v", rec)
	}
	if len(h.events.Published()) != 0 {
		t.Error("rejected event published to bus")
	}
}

func TestPipelineGenerationSkipsAdvancedRecord(t *testing.T) {
	h := newPipelineHarness(t)
	ctx := context.Background()
	rec := h.runToReview(t)

	// Redelivery of the detection event after the record moved on.
	if err := h.pipeline.HandleChangeDetected(ctx, rec.ID); err != nil {
		t.Fatalf("HandleChangeDetected redelivery: %v", err)
	}
	if h.generator.calls != 1 {
		t.Errorf("generator calls = %d, want 1", h.generator.calls)
	}
}

func TestPipelineGenerationFailure(t *testing.T) {
	h := newPipelineHarness(t)
	ctx := context.Background()
	h.sourceIssue()
	h.generator.err = errors.New("model unavailable")

	rec, err := h.pipeline.HandleTicketEvent(ctx, acceptedEvent())
	if err != nil {
		t.Fatalf("HandleTicketEvent: %v", err)
	}

	err = h.pipeline.HandleChangeDetected(ctx, rec.ID)
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("HandleChangeDetected = %v, want ErrGenerationFailed", err)
	}

	rec, _ = h.records.Get(ctx, rec.ID)
	if rec.Stage != StageDetected {
		t.Errorf("stage = %s, want detected for retry", rec.Stage)
	}
	if !strings.Contains(rec.LastError, "model unavailable") {
		t.Errorf("LastError = %q", rec.LastError)
	}
}

func TestPipelineGenerationReusesStoredDraft(t *testing.T) {
	h := newPipelineHarness(t)
	ctx := context.Background()
	h.sourceIssue()

	rec, err := h.pipeline.HandleTicketEvent(ctx, acceptedEvent())
	if err != nil {
		t.Fatalf("HandleTicketEvent: %v", err)
	}

	// A previous attempt stored v1 and crashed before advancing, so
	// the record is still at detected when the event is redelivered.
	stored := &DocumentVersion{
		DocumentID: "doc-deploy", Version: 1,
		Text: "# Earlier draft\n", Format: "markdown", GeneratedBy: AuthorAI,
		CreatedAt: rec.DetectedAt,
	}
	if err := h.content.SaveVersion(stored); err != nil {
		t.Fatalf("SaveVersion: %v", err)
	}

	if err := h.pipeline.HandleChangeDetected(ctx, rec.ID); err != nil {
		t.Fatalf("HandleChangeDetected: %v", err)
	}

	rec, _ = h.records.Get(ctx, rec.ID)
	if rec.BaseVersion != 0 || rec.ProposedVersion != 1 {
		t.Errorf("versions = v%d->v%d, want v0->v1", rec.BaseVersion, rec.ProposedVersion)
	}
	got, err := h.content.LoadVersion("doc-deploy", 1)
	if err != nil {
		t.Fatalf("LoadVersion: %v", err)
	}
	if got.Text != "# Earlier draft\n" {
		t.Errorf("stored draft replaced: %q", got.Text)
	}
	if _, err := h.content.LoadVersion("doc-deploy", 2); !errors.Is(err, ErrVersionNotFound) {
		t.Errorf("redelivery stacked a v2 on top of the draft: %v", err)
	}
	if h.generator.calls != 0 {
		t.Errorf("generator called %d times, want 0 for a stored draft", h.generator.calls)
	}
}

func TestPipelineReviewRetryDoesNotDuplicateTicket(t *testing.T) {
	h := newPipelineHarness(t)
	ctx := context.Background()
	rec := h.runToReview(t)

	if err := h.pipeline.HandleDocumentGenerated(ctx, rec.ID); err != nil {
		t.Fatalf("HandleDocumentGenerated redelivery: %v", err)
	}
	if len(h.tracker.created) != 1 {
		t.Errorf("created %d review tickets, want 1", len(h.tracker.created))
	}
}

func TestPipelineUnknownDecisionStaysParked(t *testing.T) {
	h := newPipelineHarness(t)
	ctx := context.Background()
	rec := h.runToReview(t)

	h.tracker.comment(rec.ReviewTicketID, "still reading, give me a day", time.Now().UTC())

	pub, err := h.pipeline.HandleReviewComment(ctx, rec.ReviewTicketID)
	if err != nil {
		t.Fatalf("HandleReviewComment: %v", err)
	}
	if pub != nil {
		t.Errorf("publication = %+v, want nil", pub)
	}
	rec, _ = h.records.Get(ctx, rec.ID)
	if rec.Stage != StageReviewCreated {
		t.Errorf("stage = %s, want review-created", rec.Stage)
	}
	if h.publisher.calls != 0 {
		t.Errorf("publisher calls = %d", h.publisher.calls)
	}
}

func TestPipelineIgnoresUntrackedTickets(t *testing.T) {
	h := newPipelineHarness(t)

	pub, err := h.pipeline.HandleReviewComment(context.Background(), "RANDOM-1")
	if err != nil {
		t.Fatalf("HandleReviewComment: %v", err)
	}
	if pub != nil {
		t.Errorf("publication = %+v", pub)
	}
}

func TestPipelineRejectionClosesRecord(t *testing.T) {
	h := newPipelineHarness(t)
	ctx := context.Background()
	rec := h.runToReview(t)

	h.tracker.comment(rec.ReviewTicketID, "REJECTED: wrong doc entirely", time.Now().UTC())

	pub, err := h.pipeline.HandleReviewComment(ctx, rec.ReviewTicketID)
	if err != nil {
		t.Fatalf("HandleReviewComment: %v", err)
	}
	if pub != nil {
		t.Errorf("publication = %+v", pub)
	}

	rec, _ = h.records.Get(ctx, rec.ID)
	if rec.Stage != StageRejected {
		t.Errorf("stage = %s, want rejected", rec.Stage)
	}
	if h.publisher.calls != 0 {
		t.Errorf("publisher calls = %d", h.publisher.calls)
	}
	if labels := h.tracker.labels[rec.ReviewTicketID]; len(labels) != 1 {
		t.Errorf("ack labels = %v", labels)
	}
}

func TestPipelineHandleEventDispatch(t *testing.T) {
	h := newPipelineHarness(t)

	err := h.pipeline.HandleEvent(context.Background(), bus.Event{Topic: "bogus", RecordID: "chg-1"})
	if !errors.Is(err, bus.ErrUnknownTopic) {
		t.Errorf("HandleEvent = %v, want ErrUnknownTopic", err)
	}

	if err := h.pipeline.HandleEvent(context.Background(), bus.Event{Topic: bus.TopicPublished, RecordID: "chg-1"}); err != nil {
		t.Errorf("published topic should be a no-op, got %v", err)
	}
}
