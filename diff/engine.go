package diff

import "strings"

// OpKind classifies a line operation.
type OpKind string

// Line operation kinds.
const (
	OpEqual  OpKind = "equal"
	OpInsert OpKind = "insert"
	OpDelete OpKind = "delete"
)

// LineOp is one operation over a line. OldLine and NewLine are 1-based
// line numbers in the base and proposed texts; an insert has no
// OldLine and a delete has no NewLine (zero value).
type LineOp struct {
	Kind    OpKind `json:"kind"`
	Text    string `json:"text"`
	OldLine int    `json:"oldLine,omitempty"`
	NewLine int    `json:"newLine,omitempty"`
}

// Stats summarizes a diff.
type Stats struct {
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
	Equal     int `json:"equal"`
}

// Result is an ordered operation sequence plus its stats. Both view
// projections (Unified, SideBySide) derive from Ops alone.
type Result struct {
	Ops   []LineOp `json:"lineOps"`
	Stats Stats    `json:"stats"`
}

// Lines computes the longest-common-subsequence line diff between base
// and proposed. The result is deterministic: when alignments tie, the
// earliest matching run wins, so repeated calls with the same inputs
// produce byte-identical operation sequences.
func Lines(base, proposed string) Result {
	a := splitLines(base)
	b := splitLines(proposed)

	// lcs[i][j] = LCS length of a[i:] and b[j:].
	lcs := make([][]int, len(a)+1)
	for i := range lcs {
		lcs[i] = make([]int, len(b)+1)
	}
	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var (
		ops  []LineOp
		st   Stats
		i, j int
	)
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			ops = append(ops, LineOp{Kind: OpEqual, Text: a[i], OldLine: i + 1, NewLine: j + 1})
			st.Equal++
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			// Deletions before insertions on ties keeps document order.
			ops = append(ops, LineOp{Kind: OpDelete, Text: a[i], OldLine: i + 1})
			st.Deletions++
			i++
		default:
			ops = append(ops, LineOp{Kind: OpInsert, Text: b[j], NewLine: j + 1})
			st.Additions++
			j++
		}
	}
	for ; i < len(a); i++ {
		ops = append(ops, LineOp{Kind: OpDelete, Text: a[i], OldLine: i + 1})
		st.Deletions++
	}
	for ; j < len(b); j++ {
		ops = append(ops, LineOp{Kind: OpInsert, Text: b[j], NewLine: j + 1})
		st.Additions++
	}

	return Result{Ops: ops, Stats: st}
}

// Apply reconstructs the proposed text by replaying the operations.
// Applying Lines(a, b).Ops yields b exactly.
func Apply(ops []LineOp) string {
	var out []string
	for _, op := range ops {
		if op.Kind == OpDelete {
			continue
		}
		out = append(out, op.Text)
	}
	return strings.Join(out, "\n")
}

// splitLines splits text into lines. A trailing newline produces a
// final empty line so Apply can reconstruct the text byte-for-byte.
// An empty text has no lines.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}
