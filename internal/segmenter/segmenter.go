// Package segmenter splits a document into ordered translation units.
// Paragraphs are kept whole when they fit; longer paragraphs are packed
// sentence by sentence. It also extracts a sliding-window context snippet
// (last N words) so the drafter can keep continuity across segments.
package segmenter

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultMaxChars is the segment bound used when the caller passes none.
	DefaultMaxChars = 1400

	// DefaultContextWords is the default number of words extracted by
	// ExtractContext.
	DefaultContextWords = 25
)

// paragraphRe matches a blank line, optionally carrying stray whitespace.
var paragraphRe = regexp.MustCompile(`\n\s*\n|\r\n\r\n`)

// Split returns the segments of text in document order. No segment is empty.
//
// A paragraph longer than maxChars runes is split after sentence-ending
// punctuation (. ! ?) followed by whitespace, and sentences are packed
// greedily into buffers of at most maxChars runes. A single sentence longer
// than maxChars is emitted whole and therefore exceeds the bound; it is never
// cut mid-sentence.
//
// If maxChars ≤ 0 each paragraph becomes one segment.
func Split(text string, maxChars int) []string {
	var segs []string
	for _, p := range paragraphRe.Split(strings.TrimSpace(text), -1) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if maxChars <= 0 || utf8.RuneCountInString(p) <= maxChars {
			segs = append(segs, p)
			continue
		}
		segs = append(segs, pack(Sentences(p), maxChars)...)
	}
	return segs
}

// pack greedily joins sentences with a single space while the result stays
// within maxChars runes.
func pack(sents []string, maxChars int) []string {
	var out []string
	buf := ""
	for _, s := range sents {
		if utf8.RuneCountInString(buf)+utf8.RuneCountInString(s)+1 <= maxChars {
			buf = strings.TrimSpace(buf + " " + s)
			continue
		}
		if buf != "" {
			out = append(out, buf)
		}
		buf = s
	}
	if buf != "" {
		out = append(out, buf)
	}
	return out
}

// Sentences splits text after every '.', '!' or '?' that is followed by
// whitespace. The punctuation stays with its sentence and the separating
// whitespace is dropped.
func Sentences(text string) []string {
	var out []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes)-1; i++ {
		r := runes[i]
		if (r == '.' || r == '!' || r == '?') && unicode.IsSpace(runes[i+1]) {
			if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
				out = append(out, s)
			}
			j := i + 1
			for j < len(runes) && unicode.IsSpace(runes[j]) {
				j++
			}
			start = j
			i = j - 1
		}
	}
	if start < len(runes) {
		if s := strings.TrimSpace(string(runes[start:])); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ExtractContext returns the last wordCount words of text, joined by a single
// space. If text has fewer words than wordCount, the entire text is returned.
// If wordCount ≤ 0, DefaultContextWords is used.
func ExtractContext(text string, wordCount int) string {
	if wordCount <= 0 {
		wordCount = DefaultContextWords
	}
	words := strings.Fields(text)
	if len(words) <= wordCount {
		return strings.TrimSpace(text)
	}
	return strings.Join(words[len(words)-wordCount:], " ")
}
