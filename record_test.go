package docflow

import (
	"errors"
	"strings"
	"testing"
)

func TestStageCanTransition(t *testing.T) {
	tests := []struct {
		from, to PipelineStage
		want     bool
	}{
		{StageDetected, StageGenerated, true},
		{StageGenerated, StageReviewCreated, true},
		{StageReviewCreated, StageDecided, true},
		{StageDecided, StagePublished, true},
		{StageReviewCreated, StageRejected, true},
		{StageDecided, StageRejected, true},
		{StageDecided, StageNeedsRevision, true},
		{StageReviewCreated, StageNeedsRevision, true},

		{StageDetected, StageReviewCreated, false}, // no skipping
		{StageDetected, StagePublished, false},
		{StageGenerated, StageDetected, false}, // no regressing
		{StagePublished, StageDecided, false},
		{StageRejected, StageDecided, false},
		{StageNeedsRevision, StageDetected, false},
		{StageGenerated, StageRejected, false}, // rejection needs a review
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestValidateTransition(t *testing.T) {
	if err := ValidateTransition(StageDetected, StageGenerated); err != nil {
		t.Errorf("valid transition: %v", err)
	}
	if err := ValidateTransition(StagePublished, StageDecided); !errors.Is(err, ErrRecordTerminal) {
		t.Errorf("from terminal: got %v, want ErrRecordTerminal", err)
	}
	if err := ValidateTransition(StageDecided, StageGenerated); !errors.Is(err, ErrStageRegression) {
		t.Errorf("backward: got %v, want ErrStageRegression", err)
	}
}

func TestStageIsTerminal(t *testing.T) {
	for _, stage := range []PipelineStage{StagePublished, StageRejected, StageNeedsRevision} {
		if !stage.IsTerminal() {
			t.Errorf("%s should be terminal", stage)
		}
	}
	for _, stage := range []PipelineStage{StageDetected, StageGenerated, StageReviewCreated, StageDecided} {
		if stage.IsTerminal() {
			t.Errorf("%s should not be terminal", stage)
		}
	}
}

func TestNewChangeRecord(t *testing.T) {
	rec, err := NewChangeRecord("OPS-7", "doc-api", TriggerStatusTransition)
	if err != nil {
		t.Fatalf("NewChangeRecord: %v", err)
	}
	if !strings.HasPrefix(rec.ID, "chg-") || len(rec.ID) != len("chg-")+12 {
		t.Errorf("ID = %q", rec.ID)
	}
	if rec.Stage != StageDetected {
		t.Errorf("Stage = %s, want detected", rec.Stage)
	}
	if rec.DetectedAt.IsZero() || !rec.DetectedAt.Equal(rec.LastUpdatedAt) {
		t.Errorf("timestamps: detected=%v updated=%v", rec.DetectedAt, rec.LastUpdatedAt)
	}

	other, err := NewChangeRecord("OPS-7", "doc-api", TriggerStatusTransition)
	if err != nil {
		t.Fatalf("NewChangeRecord: %v", err)
	}
	if other.ID == rec.ID {
		t.Error("record IDs should be unique")
	}
}

func TestPublicationKey(t *testing.T) {
	rec := &PublicationRecord{DocumentID: "doc-api", Version: 4}
	if got := rec.IdempotencyKey(); got != "doc-api@4" {
		t.Errorf("IdempotencyKey = %q", got)
	}
	if got := PublicationKey("doc-api", 4); got != rec.IdempotencyKey() {
		t.Errorf("PublicationKey = %q", got)
	}
}
