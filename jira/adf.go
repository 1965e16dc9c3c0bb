package jira

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ADFDocument represents an Atlassian Document Format document, used
// for rich text fields in Jira Cloud API v3.
type ADFDocument struct {
	Version int       `json:"version"` // Always 1
	Type    string    `json:"type"`    // Always "doc"
	Content []ADFNode `json:"content"`
}

// ADFNode represents a node in an ADF document.
type ADFNode struct {
	Type    string         `json:"type"`
	Content []ADFNode      `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// ADF node types the extractor knows about. Anything else is treated
// as unknown-passthrough.
const (
	ADFNodeDoc         = "doc"
	ADFNodeParagraph   = "paragraph"
	ADFNodeText        = "text"
	ADFNodeHardBreak   = "hardBreak"
	ADFNodeHeading     = "heading"
	ADFNodeBulletList  = "bulletList"
	ADFNodeOrderedList = "orderedList"
	ADFNodeListItem    = "listItem"
)

// ADF errors.
var (
	ErrADFVersionOnly = fmt.Errorf("ADF version must be 1")
	ErrADFTypeInvalid = fmt.Errorf("ADF root type must be 'doc'")
)

// NewADFDocument creates a new empty ADF document.
func NewADFDocument() *ADFDocument {
	return &ADFDocument{
		Version: 1,
		Type:    ADFNodeDoc,
		Content: []ADFNode{},
	}
}

// Validate validates the ADF document structure.
func (d *ADFDocument) Validate() error {
	if d.Version != 1 {
		return ErrADFVersionOnly
	}
	if d.Type != ADFNodeDoc {
		return ErrADFTypeInvalid
	}
	return nil
}

// AddParagraph adds a paragraph with text to the document.
func (d *ADFDocument) AddParagraph(text string) {
	d.Content = append(d.Content, ADFNode{
		Type: ADFNodeParagraph,
		Content: []ADFNode{
			{Type: ADFNodeText, Text: text},
		},
	})
}

// AddHeading adds a heading to the document.
func (d *ADFDocument) AddHeading(level int, text string) {
	if level < 1 {
		level = 1
	}
	if level > 6 {
		level = 6
	}
	d.Content = append(d.Content, ADFNode{
		Type:  ADFNodeHeading,
		Attrs: map[string]any{"level": level},
		Content: []ADFNode{
			{Type: ADFNodeText, Text: text},
		},
	})
}

// AddBulletList adds a bullet list to the document.
func (d *ADFDocument) AddBulletList(items []string) {
	listItems := make([]ADFNode, len(items))
	for i, item := range items {
		listItems[i] = ADFNode{
			Type: ADFNodeListItem,
			Content: []ADFNode{
				{
					Type: ADFNodeParagraph,
					Content: []ADFNode{
						{Type: ADFNodeText, Text: item},
					},
				},
			},
		}
	}
	d.Content = append(d.Content, ADFNode{
		Type:    ADFNodeBulletList,
		Content: listItems,
	})
}

// PlainText extracts the plain text of the document: leaf text in
// document order, with a newline at every block-level boundary.
// Unknown node kinds never fail extraction; their children are still
// visited, which keeps the walk forward compatible with node types
// introduced after this code was written.
func (d *ADFDocument) PlainText() string {
	var b strings.Builder
	for i := range d.Content {
		writePlainText(&b, &d.Content[i])
	}
	return strings.TrimRight(b.String(), "\n")
}

// blockNodes terminate a line when their subtree ends. Lists break at
// the item level, not the list level.
var blockNodes = map[string]bool{
	ADFNodeParagraph: true,
	ADFNodeHeading:   true,
	ADFNodeListItem:  true,
}

func writePlainText(b *strings.Builder, node *ADFNode) {
	switch node.Type {
	case ADFNodeText:
		b.WriteString(node.Text)
	case ADFNodeHardBreak:
		b.WriteString("\n")
	default:
		// Known containers and unknown kinds alike: visit children.
		for i := range node.Content {
			writePlainText(b, &node.Content[i])
		}
		if blockNodes[node.Type] && b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
			b.WriteString("\n")
		}
	}
}

// PlainTextFromAny extracts plain text from a comment body that may be
// an ADF tree (API v3, decoded as map[string]any) or already a string
// (API v2).
func PlainTextFromAny(body any) (string, error) {
	if body == nil {
		return "", nil
	}
	if s, ok := body.(string); ok {
		return s, nil
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal adf: %w", err)
	}
	var doc ADFDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("unmarshal adf: %w", err)
	}
	return doc.PlainText(), nil
}
