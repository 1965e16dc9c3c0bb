package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/randalmurphal/docflow"
)

// Memory is an in-process implementation of docflow.RecordStore and
// docflow.PublicationStore. It mirrors the SQLite semantics exactly,
// including conditional stage advancement and first-writer-wins
// publication, so tests and single-process deployments can swap it in.
type Memory struct {
	mu           sync.Mutex
	records      map[string]*docflow.ChangeRecord
	history      map[string][]docflow.StageMove
	publications map[string]*docflow.PublicationRecord
}

func NewMemory() *Memory {
	return &Memory{
		records:      make(map[string]*docflow.ChangeRecord),
		history:      make(map[string][]docflow.StageMove),
		publications: make(map[string]*docflow.PublicationRecord),
	}
}

func (m *Memory) Create(_ context.Context, rec *docflow.ChangeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *rec
	m.records[rec.ID] = &cp
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*docflow.ChangeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, docflow.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *Memory) Latest(_ context.Context, documentID string) (*docflow.ChangeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []*docflow.ChangeRecord
	for _, rec := range m.records {
		if rec.DocumentID == documentID {
			all = append(all, rec)
		}
	}
	if len(all) == 0 {
		return nil, docflow.ErrRecordNotFound
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].DetectedAt.After(all[j].DetectedAt)
	})
	cp := *all[0]
	return &cp, nil
}

func (m *Memory) ByReviewTicket(_ context.Context, reviewTicketID string) (*docflow.ChangeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var found *docflow.ChangeRecord
	for _, rec := range m.records {
		if rec.ReviewTicketID != reviewTicketID || reviewTicketID == "" {
			continue
		}
		if found == nil || rec.DetectedAt.After(found.DetectedAt) {
			found = rec
		}
	}
	if found == nil {
		return nil, docflow.ErrRecordNotFound
	}
	cp := *found
	return &cp, nil
}

func (m *Memory) AdvanceStage(_ context.Context, rec *docflow.ChangeRecord, fromStage docflow.PipelineStage) error {
	if err := docflow.ValidateTransition(fromStage, rec.Stage); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.records[rec.ID]
	if !ok {
		return docflow.ErrRecordNotFound
	}
	if cur.Stage != fromStage {
		return docflow.ErrStageConflict
	}

	now := time.Now().UTC()
	cp := *rec
	cp.LastUpdatedAt = now
	m.records[rec.ID] = &cp
	m.history[rec.ID] = append(m.history[rec.ID], docflow.StageMove{
		From:    fromStage,
		To:      rec.Stage,
		MovedAt: now,
	})
	rec.LastUpdatedAt = now
	return nil
}

// History returns the record's stage moves in the order they happened.
func (m *Memory) History(_ context.Context, id string) ([]docflow.StageMove, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]docflow.StageMove(nil), m.history[id]...), nil
}

func (m *Memory) SetLastError(_ context.Context, id, detail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return docflow.ErrRecordNotFound
	}
	rec.LastError = detail
	rec.LastUpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) PutPublication(_ context.Context, rec *docflow.PublicationRecord) (*docflow.PublicationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := rec.IdempotencyKey()
	if existing, ok := m.publications[key]; ok {
		cp := *existing
		return &cp, docflow.ErrPublicationExists
	}
	cp := *rec
	m.publications[key] = &cp
	out := cp
	return &out, nil
}

func (m *Memory) GetPublication(_ context.Context, key string) (*docflow.PublicationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.publications[key]
	if !ok {
		return nil, docflow.ErrRecordNotFound
	}
	cp := *rec
	return &cp, nil
}
