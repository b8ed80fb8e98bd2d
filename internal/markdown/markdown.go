// Package markdown turns Markdown documents into the plain text the
// translation pipeline works on.
package markdown

import (
	"bytes"
	"html"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

var blankRuns = regexp.MustCompile(`\n{3,}`)

// IsMarkdown reports whether path has a Markdown extension.
func IsMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	}
	return false
}

func render(md []byte, flags mdhtml.Flags) string {
	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: flags})
	ext := parser.CommonExtensions | parser.Attributes
	p := parser.NewWithExtensions(ext)
	doc := p.Parse(md)
	return string(markdown.Render(doc, renderer))
}

// ToPlainText renders md and strips the markup. Block elements end up on
// their own lines and paragraphs are separated by one blank line, so the
// segmenter still sees the paragraph structure. Typographic substitutions
// are off so quotes, dashes and fractions reach the pipeline as written.
func ToPlainText(md []byte) string {
	htmlContent := render(md, mdhtml.SkipHTML)
	htmlContent = strings.NewReplacer("</p>", "</p>\n\n", "</h1>", "</h1>\n\n", "</h2>", "</h2>\n\n",
		"</h3>", "</h3>\n\n", "</li>", "</li>\n", "</ul>", "</ul>\n\n", "</ol>", "</ol>\n\n").Replace(htmlContent)
	text := html.UnescapeString(StripHTMLTags(htmlContent))

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	text = strings.Join(lines, "\n")
	return strings.TrimSpace(blankRuns.ReplaceAllString(text, "\n\n"))
}

func StripHTMLTags(htmlContent string) string {
	var result bytes.Buffer
	inTag := false

	for _, ch := range htmlContent {
		switch ch {
		case '<':
			inTag = true
		case '>':
			inTag = false
		default:
			if !inTag {
				result.WriteRune(ch)
			}
		}
	}

	return result.String()
}
