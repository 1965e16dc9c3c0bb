// Package review composes the diff package output into the artifact a
// human reviews, plus a readable summary for the review ticket.
package review

import (
	"fmt"
	"strings"
	"time"

	"github.com/randalmurphal/docflow/diff"
)

// Version is the slice of a document version the composer needs.
type Version struct {
	DocumentID string
	Number     int
	Text       string
}

// Artifact is the diff package presented to a reviewer. It is derived
// and immutable: recomposing the same version pair yields an identical
// artifact except for CreatedAt.
type Artifact struct {
	DocumentID      string               `json:"documentId"`
	BaseVersion     int                  `json:"baseVersion"`
	ProposedVersion int                  `json:"proposedVersion"`
	Unified         []diff.UnifiedLine   `json:"unifiedView"`
	SideBySide      []diff.SideBySideRow `json:"sideBySideView"`
	Additions       int                  `json:"additionsCount"`
	Deletions       int                  `json:"deletionsCount"`
	ImageChanges    []diff.ImageChange   `json:"imageChanges"`
	CreatedAt       time.Time            `json:"createdAt"`
}

// Key identifies the artifact by its version pair.
func (a *Artifact) Key() string {
	return VersionPairKey(a.DocumentID, a.BaseVersion, a.ProposedVersion)
}

// VersionPairKey builds the storage key for an artifact.
func VersionPairKey(documentID string, base, proposed int) string {
	return fmt.Sprintf("%s@%d-%d", documentID, base, proposed)
}

// ParseVersionPairKey splits a storage key back into its parts. The
// document ID may itself contain "@", so the split is on the last one.
func ParseVersionPairKey(key string) (documentID string, base, proposed int, err error) {
	at := strings.LastIndex(key, "@")
	if at <= 0 {
		return "", 0, 0, fmt.Errorf("malformed artifact key %q", key)
	}
	documentID = key[:at]
	if _, err := fmt.Sscanf(key[at+1:], "%d-%d", &base, &proposed); err != nil {
		return "", 0, 0, fmt.Errorf("malformed artifact key %q", key)
	}
	return documentID, base, proposed, nil
}

// previewLimit caps the largest-run preview in summaries.
const previewLimit = 3

// Compose builds the review artifact for a version pair. Both view
// projections derive from one diff operation sequence, so the
// composition is deterministic.
func Compose(base, proposed Version) *Artifact {
	result := diff.Lines(base.Text, proposed.Text)

	return &Artifact{
		DocumentID:      base.DocumentID,
		BaseVersion:     base.Number,
		ProposedVersion: proposed.Number,
		Unified:         diff.Unified(result.Ops),
		SideBySide:      diff.SideBySide(result.Ops),
		Additions:       result.Stats.Additions,
		Deletions:       result.Stats.Deletions,
		ImageChanges:    diff.Images(base.Text, proposed.Text),
		CreatedAt:       time.Now().UTC(),
	}
}

// Summary renders the human-readable digest for the review ticket:
// counts, image changes, and a truncated preview of the largest
// contiguous changed run.
func (a *Artifact) Summary() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Proposed update for %s: v%d -> v%d\n", a.DocumentID, a.BaseVersion, a.ProposedVersion)
	fmt.Fprintf(&b, "%d additions, %d deletions", a.Additions, a.Deletions)

	if added, removed := a.imageCounts(); added+removed > 0 {
		fmt.Fprintf(&b, ", images: %d added, %d removed", added, removed)
	}
	b.WriteString("\n")

	if run := largestRun(a.Unified); len(run) > 0 {
		label := "added"
		if run[0].Marker == "-" {
			label = "removed"
		}
		fmt.Fprintf(&b, "Largest %s run (%d lines):\n", label, len(run))
		for i, line := range run {
			if i == previewLimit {
				fmt.Fprintf(&b, "  ... %d more\n", len(run)-previewLimit)
				break
			}
			fmt.Fprintf(&b, "  %s %s\n", line.Marker, line.Text)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func (a *Artifact) imageCounts() (added, removed int) {
	for _, ic := range a.ImageChanges {
		switch ic.Status {
		case diff.ImageAdded:
			added++
		case diff.ImageRemoved:
			removed++
		}
	}
	return added, removed
}

// largestRun finds the longest contiguous stretch of same-marker
// changed lines. Ties keep the earliest run so summaries stay stable.
func largestRun(lines []diff.UnifiedLine) []diff.UnifiedLine {
	var best, current []diff.UnifiedLine
	var currentMarker string

	flush := func() {
		if len(current) > len(best) {
			best = current
		}
		current = nil
	}

	for i, line := range lines {
		if line.Marker == " " {
			flush()
			currentMarker = ""
			continue
		}
		if line.Marker != currentMarker {
			flush()
			currentMarker = line.Marker
		}
		current = append(current, lines[i])
	}
	flush()

	return best
}
