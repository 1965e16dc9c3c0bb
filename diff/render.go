package diff

// UnifiedLine is one row of the single-column unified view.
type UnifiedLine struct {
	// Marker is "+", "-", or " ".
	Marker  string `json:"marker"`
	Text    string `json:"text"`
	OldLine int    `json:"oldLine,omitempty"`
	NewLine int    `json:"newLine,omitempty"`
}

// Unified projects the operation sequence into a single column with
// deletes and inserts interleaved in document order.
func Unified(ops []LineOp) []UnifiedLine {
	lines := make([]UnifiedLine, 0, len(ops))
	for _, op := range ops {
		lines = append(lines, UnifiedLine{
			Marker:  marker(op.Kind),
			Text:    op.Text,
			OldLine: op.OldLine,
			NewLine: op.NewLine,
		})
	}
	return lines
}

func marker(k OpKind) string {
	switch k {
	case OpInsert:
		return "+"
	case OpDelete:
		return "-"
	default:
		return " "
	}
}

// Cell is one side of a side-by-side row. A nil cell renders as an
// empty slot.
type Cell struct {
	Line int    `json:"line"`
	Text string `json:"text"`
}

// SideBySideRow pairs the base column with the proposed column.
// Equal operations fill both cells at matching rows; a delete fills
// only the left, an insert only the right.
type SideBySideRow struct {
	Kind  OpKind `json:"kind"`
	Left  *Cell  `json:"left,omitempty"`
	Right *Cell  `json:"right,omitempty"`
}

// SideBySide projects the operation sequence into two columns.
func SideBySide(ops []LineOp) []SideBySideRow {
	rows := make([]SideBySideRow, 0, len(ops))
	for _, op := range ops {
		row := SideBySideRow{Kind: op.Kind}
		switch op.Kind {
		case OpEqual:
			row.Left = &Cell{Line: op.OldLine, Text: op.Text}
			row.Right = &Cell{Line: op.NewLine, Text: op.Text}
		case OpDelete:
			row.Left = &Cell{Line: op.OldLine, Text: op.Text}
		case OpInsert:
			row.Right = &Cell{Line: op.NewLine, Text: op.Text}
		}
		rows = append(rows, row)
	}
	return rows
}
