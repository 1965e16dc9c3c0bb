package approval

import (
	"testing"
	"time"

	"github.com/randalmurphal/docflow/jira"
)

func plainComment(text string, at time.Time) jira.Comment {
	return jira.Comment{Body: text, Created: jira.FormatTime(at)}
}

func adfComment(text string, at time.Time) jira.Comment {
	doc := jira.NewADFDocument()
	doc.AddParagraph(text)
	return jira.Comment{Body: doc, Created: jira.FormatTime(at)}
}

func TestParseDecisions(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		comments []jira.Comment
		want     Decision
	}{
		{
			name:     "plain approval",
			comments: []jira.Comment{plainComment("Approved, thanks!", base)},
			want:     Approved,
		},
		{
			name:     "lgtm",
			comments: []jira.Comment{plainComment("lgtm \U0001F680", base)},
			want:     Approved,
		},
		{
			name:     "checkmark symbol",
			comments: []jira.Comment{plainComment("✅", base)},
			want:     Approved,
		},
		{
			name:     "rejection",
			comments: []jira.Comment{plainComment("REJECTED, this is wrong", base)},
			want:     Rejected,
		},
		{
			name:     "cross mark",
			comments: []jira.Comment{plainComment("❌ not this time", base)},
			want:     Rejected,
		},
		{
			name:     "revision request",
			comments: []jira.Comment{plainComment("please revise the second section", base)},
			want:     NeedsRevision,
		},
		{
			name: "no recognized pattern",
			comments: []jira.Comment{
				plainComment("interesting, let me read this later", base),
				plainComment("who owns this doc?", base.Add(time.Hour)),
			},
			want: Unknown,
		},
		{
			name:     "empty thread",
			comments: nil,
			want:     Unknown,
		},
		{
			name:     "adf body",
			comments: []jira.Comment{adfComment("Looks good to me", base)},
			want:     Approved,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewParser(nil).Parse("DOC-1", tt.comments)
			if got.Decision != tt.want {
				t.Errorf("Decision = %q, want %q", got.Decision, tt.want)
			}
		})
	}
}

func TestParseMostRecentWins(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	// Thread order is oldest first; the later APPROVED must win over
	// the earlier REJECTED.
	comments := []jira.Comment{
		plainComment("REJECTED, numbers are stale", base),
		plainComment("updated the numbers", base.Add(30*time.Minute)),
		plainComment("APPROVED", base.Add(time.Hour)),
	}

	got := NewParser(nil).Parse("DOC-1", comments)
	if got.Decision != Approved {
		t.Fatalf("Decision = %q, want approved", got.Decision)
	}
	if got.MatchedComment != "APPROVED" {
		t.Errorf("MatchedComment = %q, want the deciding comment", got.MatchedComment)
	}
	if !got.DecidedAt.Equal(base.Add(time.Hour)) {
		t.Errorf("DecidedAt = %v, want %v", got.DecidedAt, base.Add(time.Hour))
	}
}

func TestParseSameCommentPrecedence(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	// One comment matching both categories: approve outranks reject.
	comments := []jira.Comment{
		plainComment("I wanted to reject this, but the fixes landed: approved", base),
	}

	got := NewParser(nil).Parse("DOC-1", comments)
	if got.Decision != Approved {
		t.Errorf("Decision = %q, want approved (approve > reject within a comment)", got.Decision)
	}
}

func TestParseSkipsUnparseableComments(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	comments := []jira.Comment{
		plainComment("approved", base),
		{Body: 42, Created: jira.FormatTime(base.Add(time.Hour))}, // not rich text, skipped
	}

	got := NewParser(nil).Parse("DOC-1", comments)
	if got.Decision != Approved {
		t.Errorf("Decision = %q, want approved despite trailing junk comment", got.Decision)
	}
}

func TestParseMissingTimestampsFallBackToThreadOrder(t *testing.T) {
	// Neither comment carries a parseable timestamp; the later thread
	// position must still win.
	comments := []jira.Comment{
		{Body: "APPROVED"},
		{Body: "REJECTED, found a broken link after all"},
	}

	got := NewParser(nil).Parse("DOC-1", comments)
	if got.Decision != Rejected {
		t.Fatalf("Decision = %q, want rejected (later in thread)", got.Decision)
	}
}

func TestParseMissingTimestampLosesToTimestamped(t *testing.T) {
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	comments := []jira.Comment{
		{Body: "REJECTED"}, // timestamp missing, sorts after dated comments
		plainComment("APPROVED", base),
	}

	got := NewParser(nil).Parse("DOC-1", comments)
	if got.Decision != Approved {
		t.Errorf("Decision = %q, want approved (dated comment outranks undated)", got.Decision)
	}
}

func TestCustomRules(t *testing.T) {
	rules := []Rule{
		{Decision: Approved, Patterns: []string{"da"}},
		{Decision: Rejected, Patterns: []string{"nyet"}},
	}
	got := NewParser(rules).Parse("DOC-1", []jira.Comment{
		plainComment("nyet", time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)),
	})
	if got.Decision != Rejected {
		t.Errorf("Decision = %q, want rejected under custom rules", got.Decision)
	}
}
