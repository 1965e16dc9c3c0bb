package confluence

import (
	"fmt"
	"html"
	"regexp"
	"strings"
)

var (
	codeBlockRe  = regexp.MustCompile("(?s)```(\\w*)\\n(.*?)\\n```")
	boldRe       = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	italicRe     = regexp.MustCompile(`(?m)(^|[^*])\*([^*\n]+)\*`)
	inlineCodeRe = regexp.MustCompile("`([^`]+)`")
	linkRe       = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	imageRe      = regexp.MustCompile(`!\[([^\]]*)\]\(([^)\s]+)[^)]*\)`)
	hrRe         = regexp.MustCompile(`^---+$`)
	bulletRe     = regexp.MustCompile(`^- (.+)$`)
	numberedRe   = regexp.MustCompile(`^\d+\. (.+)$`)
	headingRe    = regexp.MustCompile(`^(#{1,6}) (.+)$`)
)

// ToStorage converts Markdown to the Confluence storage representation.
// Only the constructs the composer emits are handled; anything else
// passes through escaped inside paragraphs.
func ToStorage(markdown string) string {
	var out strings.Builder

	lines := strings.Split(markdown, "\n")
	var paragraph []string
	listTag := ""

	flushParagraph := func() {
		if len(paragraph) == 0 {
			return
		}
		out.WriteString("<p>")
		out.WriteString(inline(strings.Join(paragraph, " ")))
		out.WriteString("</p>")
		paragraph = nil
	}
	closeList := func() {
		if listTag != "" {
			out.WriteString("</" + listTag + ">")
			listTag = ""
		}
	}

	i := 0
	for i < len(lines) {
		line := lines[i]

		// Code blocks span lines, so match against the remaining text.
		if strings.HasPrefix(line, "```") {
			rest := strings.Join(lines[i:], "\n")
			if m := codeBlockRe.FindStringSubmatch(rest); m != nil && strings.HasPrefix(rest, m[0]) {
				flushParagraph()
				closeList()
				out.WriteString(codeMacro(m[1], m[2]))
				i += strings.Count(m[0], "\n") + 1
				continue
			}
		}

		switch {
		case strings.TrimSpace(line) == "":
			flushParagraph()
			closeList()
		case headingRe.MatchString(line):
			flushParagraph()
			closeList()
			m := headingRe.FindStringSubmatch(line)
			level := len(m[1])
			out.WriteString(fmt.Sprintf("<h%d>%s</h%d>", level, inline(m[2]), level))
		case bulletRe.MatchString(line):
			flushParagraph()
			if listTag != "ul" {
				closeList()
				out.WriteString("<ul>")
				listTag = "ul"
			}
			out.WriteString("<li>" + inline(bulletRe.FindStringSubmatch(line)[1]) + "</li>")
		case numberedRe.MatchString(line):
			flushParagraph()
			if listTag != "ol" {
				closeList()
				out.WriteString("<ol>")
				listTag = "ol"
			}
			out.WriteString("<li>" + inline(numberedRe.FindStringSubmatch(line)[1]) + "</li>")
		case hrRe.MatchString(line):
			flushParagraph()
			closeList()
			out.WriteString("<hr/>")
		default:
			paragraph = append(paragraph, line)
		}
		i++
	}
	flushParagraph()
	closeList()

	return out.String()
}

func codeMacro(lang, code string) string {
	var b strings.Builder
	b.WriteString(`<ac:structured-macro ac:name="code">`)
	if lang != "" {
		b.WriteString(`<ac:parameter ac:name="language">` + html.EscapeString(lang) + `</ac:parameter>`)
	}
	b.WriteString(`<ac:plain-text-body><![CDATA[` + code + `]]></ac:plain-text-body>`)
	b.WriteString(`</ac:structured-macro>`)
	return b.String()
}

// inline converts inline Markdown within a single line. Images and
// links are rewritten before escaping so their URLs survive intact.
func inline(s string) string {
	type span struct{ placeholder, rendered string }
	var spans []span
	n := 0

	stash := func(rendered string) string {
		ph := fmt.Sprintf("\x00%d\x00", n)
		n++
		spans = append(spans, span{ph, rendered})
		return ph
	}

	s = imageRe.ReplaceAllStringFunc(s, func(m string) string {
		parts := imageRe.FindStringSubmatch(m)
		return stash(`<ac:image><ri:url ri:value="` + html.EscapeString(parts[2]) + `"/></ac:image>`)
	})
	s = linkRe.ReplaceAllStringFunc(s, func(m string) string {
		parts := linkRe.FindStringSubmatch(m)
		return stash(`<a href="` + html.EscapeString(parts[2]) + `">` + html.EscapeString(parts[1]) + `</a>`)
	})
	s = inlineCodeRe.ReplaceAllStringFunc(s, func(m string) string {
		parts := inlineCodeRe.FindStringSubmatch(m)
		return stash(`<code>` + html.EscapeString(parts[1]) + `</code>`)
	})

	s = html.EscapeString(s)
	s = boldRe.ReplaceAllString(s, `<strong>$1</strong>`)
	s = italicRe.ReplaceAllString(s, `$1<em>$2</em>`)

	for _, sp := range spans {
		s = strings.Replace(s, sp.placeholder, sp.rendered, 1)
	}
	return s
}
