package diff

import (
	"regexp"
	"sort"
)

// ImageStatus classifies one image reference across two versions.
type ImageStatus string

// Image statuses.
const (
	ImageAdded     ImageStatus = "added"
	ImageRemoved   ImageStatus = "removed"
	ImageUnchanged ImageStatus = "unchanged"
)

// ImageChange pairs a reference with its status.
type ImageChange struct {
	Ref    string      `json:"ref"`
	Status ImageStatus `json:"status"`
}

// Image reference syntaxes: markdown ![alt](ref) and tag-style
// <img src="ref">.
var (
	markdownImageRe = regexp.MustCompile(`!\[[^\]]*\]\(\s*([^)\s]+)[^)]*\)`)
	tagImageRe      = regexp.MustCompile(`(?i)<img[^>]*\bsrc\s*=\s*["']([^"']+)["']`)
)

// Images classifies every image reference found in either text as
// added, removed, or unchanged. Reference identity is the literal
// resource locator string: query strings and trailing slashes are
// significant, which is a known limitation. Results are sorted by ref
// so recomputation is byte-identical.
func Images(base, proposed string) []ImageChange {
	baseRefs := extractImageRefs(base)
	propRefs := extractImageRefs(proposed)

	refs := make(map[string]struct{}, len(baseRefs)+len(propRefs))
	for r := range baseRefs {
		refs[r] = struct{}{}
	}
	for r := range propRefs {
		refs[r] = struct{}{}
	}

	changes := make([]ImageChange, 0, len(refs))
	for r := range refs {
		_, inBase := baseRefs[r]
		_, inProp := propRefs[r]
		var status ImageStatus
		switch {
		case inBase && inProp:
			status = ImageUnchanged
		case inProp:
			status = ImageAdded
		default:
			status = ImageRemoved
		}
		changes = append(changes, ImageChange{Ref: r, Status: status})
	}

	sort.Slice(changes, func(i, j int) bool { return changes[i].Ref < changes[j].Ref })
	return changes
}

func extractImageRefs(text string) map[string]struct{} {
	refs := make(map[string]struct{})
	for _, m := range markdownImageRe.FindAllStringSubmatch(text, -1) {
		refs[m[1]] = struct{}{}
	}
	for _, m := range tagImageRe.FindAllStringSubmatch(text, -1) {
		refs[m[1]] = struct{}{}
	}
	return refs
}
