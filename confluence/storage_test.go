package confluence

import (
	"strings"
	"testing"
)

func TestToStorage(t *testing.T) {
	tests := []struct {
		name     string
		markdown string
		want     string
	}{
		{
			name:     "heading and paragraph",
			markdown: "# Setup\n\nInstall the agent.",
			want:     "<h1>Setup</h1><p>Install the agent.</p>",
		},
		{
			name:     "nested heading level",
			markdown: "### Rollback",
			want:     "<h3>Rollback</h3>",
		},
		{
			name:     "bullet list",
			markdown: "- one\n- two",
			want:     "<ul><li>one</li><li>two</li></ul>",
		},
		{
			name:     "numbered list",
			markdown: "1. first\n2. second",
			want:     "<ol><li>first</li><li>second</li></ol>",
		},
		{
			name:     "bold and inline code",
			markdown: "Run **all** of `make deploy` now.",
			want:     "<p>Run <strong>all</strong> of <code>make deploy</code> now.</p>",
		},
		{
			name:     "link",
			markdown: "See [runbook](https://example.com/runbook).",
			want:     `<p>See <a href="https://example.com/runbook">runbook</a>.</p>`,
		},
		{
			name:     "image",
			markdown: "![topology](https://cdn.example.com/topology.png)",
			want:     `<p><ac:image><ri:url ri:value="https://cdn.example.com/topology.png"/></ac:image></p>`,
		},
		{
			name:     "escapes markup in text",
			markdown: "use <br> & such",
			want:     "<p>use &lt;br&gt; &amp; such</p>",
		},
		{
			name:     "horizontal rule",
			markdown: "before\n\n---\n\nafter",
			want:     "<p>before</p><hr/><p>after</p>",
		},
		{
			name:     "joins paragraph lines",
			markdown: "one\ntwo",
			want:     "<p>one two</p>",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToStorage(tt.markdown); got != tt.want {
				t.Errorf("ToStorage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToStorageCodeBlock(t *testing.T) {
	got := ToStorage("intro\n\n```bash\necho hi\n```\n\noutro")

	wantMacro := `<ac:structured-macro ac:name="code"><ac:parameter ac:name="language">bash</ac:parameter><ac:plain-text-body><![CDATA[echo hi]]></ac:plain-text-body></ac:structured-macro>`
	if !strings.Contains(got, wantMacro) {
		t.Errorf("missing code macro in %q", got)
	}
	if !strings.Contains(got, "<p>intro</p>") || !strings.Contains(got, "<p>outro</p>") {
		t.Errorf("surrounding paragraphs lost in %q", got)
	}
}

func TestToStorageCodeBlockKeepsMarkup(t *testing.T) {
	got := ToStorage("```\nvalue < 10 && flag\n```")
	if !strings.Contains(got, "<![CDATA[value < 10 && flag]]>") {
		t.Errorf("code body altered: %q", got)
	}
}
