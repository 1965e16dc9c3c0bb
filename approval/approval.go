// Package approval classifies free-form review comment threads into
// one terminal decision. Comment bodies are rich-text trees; their
// plain text is matched against a precedence-ordered pattern table.
//
// The table is data, not control flow: matching rules live in a slice
// evaluated in order, so pattern variants can be reconfigured and the
// precedence tested independently of the thread-walking logic.
package approval

import (
	"sort"
	"strings"
	"time"

	"github.com/randalmurphal/docflow/jira"
)

// Decision is the outcome of parsing a comment thread.
type Decision string

// Decisions.
const (
	Approved      Decision = "approved"
	Rejected      Decision = "rejected"
	NeedsRevision Decision = "needs-revision"
	Unknown       Decision = "unknown"
)

// Rule maps pattern variants to a decision. Within a rule any variant
// matches; across rules, earlier rules win.
type Rule struct {
	Decision Decision
	Patterns []string
}

// DefaultRules is the precedence-ordered pattern table. When one
// comment matches several categories, the first rule here wins:
// approve over reject over revise. All matching is case-insensitive
// substring matching on the extracted plain text.
var DefaultRules = []Rule{
	{Decision: Approved, Patterns: []string{
		"approved", "approve", "lgtm", "looks good", "ship it", "✅",
	}},
	{Decision: Rejected, Patterns: []string{
		"rejected", "reject", "do not publish", "don't publish", "❌",
	}},
	{Decision: NeedsRevision, Patterns: []string{
		"needs revision", "needs changes", "please revise", "request changes", "changes requested",
	}},
}

// Result is the parsed decision. MatchedComment carries the plain
// text of the one comment that determined the decision; it is empty
// when the decision is Unknown.
type Result struct {
	ReviewTicketID string    `json:"reviewTicketId"`
	Decision       Decision  `json:"decision"`
	MatchedComment string    `json:"matchedComment,omitempty"`
	DecidedAt      time.Time `json:"decidedAt,omitempty"`
}

// Parser classifies comment threads against a rule table.
type Parser struct {
	rules []Rule
}

// NewParser creates a parser. A nil or empty rule set uses DefaultRules.
func NewParser(rules []Rule) *Parser {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Parser{rules: rules}
}

// Parse scans the thread from most recent to least recent and returns
// the decision of the first comment matching any rule. Reviewers may
// re-decide, so the latest explicit decision always wins over earlier
// ones in the same thread. A thread with no matching comment yields
// Unknown, and the pipeline must not advance on it.
//
// Comment bodies that fail rich-text extraction are skipped, not
// fatal: one malformed comment must not hide a decision elsewhere in
// the thread.
func (p *Parser) Parse(reviewTicketID string, comments []jira.Comment) Result {
	type extracted struct {
		text     string
		postedAt time.Time
		pos      int
	}

	items := make([]extracted, 0, len(comments))
	for i := range comments {
		text, err := jira.PlainTextFromAny(comments[i].Body)
		if err != nil || text == "" {
			continue
		}
		postedAt, _ := comments[i].CreatedTime()
		items = append(items, extracted{text: text, postedAt: postedAt, pos: i})
	}

	// Comments with an unparseable timestamp compare equal at the zero
	// time; thread position breaks the tie so the later comment still
	// wins.
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].postedAt.Equal(items[j].postedAt) {
			return items[i].pos > items[j].pos
		}
		return items[i].postedAt.After(items[j].postedAt)
	})

	for _, item := range items {
		if decision, ok := p.match(item.text); ok {
			return Result{
				ReviewTicketID: reviewTicketID,
				Decision:       decision,
				MatchedComment: item.text,
				DecidedAt:      item.postedAt,
			}
		}
	}

	return Result{ReviewTicketID: reviewTicketID, Decision: Unknown}
}

// match evaluates the rule table in order against one comment text.
func (p *Parser) match(text string) (Decision, bool) {
	lower := strings.ToLower(text)
	for _, rule := range p.rules {
		for _, pattern := range rule.Patterns {
			if strings.Contains(lower, strings.ToLower(pattern)) {
				return rule.Decision, true
			}
		}
	}
	return Unknown, false
}
