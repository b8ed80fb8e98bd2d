// Package placeholder protects do-not-translate strings (legal entity names,
// fund names, tickers) during translation by replacing every occurrence with
// a numbered marker ([[ENT_1]], [[ENT_2]], …) that language models are
// instructed to preserve. After translation, Unmask substitutes the markers
// back with the exact text that was hidden.
package placeholder

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// rePlaceholder matches a marker in translated text.
var rePlaceholder = regexp.MustCompile(`\[\[ENT_(\d+)\]\]`)

// Mapping maps each marker to the literal it replaced.
type Mapping map[string]string

type span struct {
	start, end int
}

// Mask replaces every whole-word, case-insensitive occurrence of the
// protected terms with a marker. Longer terms are matched first so a short
// term never claims part of a longer one. Markers are numbered by position in
// text, one per occurrence, and the mapping keeps the literal as it appeared
// so Unmask restores the original byte for byte. Numbers whose marker already
// occurs literally in text are skipped, so such text survives Unmask.
func Mask(text string, terms []string) (string, Mapping) {
	mapping := Mapping{}
	if len(terms) == 0 || text == "" {
		return text, mapping
	}

	ordered := dedupe(terms)
	sort.SliceStable(ordered, func(i, j int) bool {
		return utf8.RuneCountInString(ordered[i]) > utf8.RuneCountInString(ordered[j])
	})

	var claimed []span
	for _, term := range ordered {
		re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(term))
		for _, loc := range re.FindAllStringIndex(text, -1) {
			s := span{loc[0], loc[1]}
			if !wholeWord(text, s) || overlaps(claimed, s) {
				continue
			}
			claimed = append(claimed, s)
		}
	}
	if len(claimed) == 0 {
		return text, mapping
	}
	sort.Slice(claimed, func(i, j int) bool { return claimed[i].start < claimed[j].start })

	taken := map[string]bool{}
	for _, m := range rePlaceholder.FindAllString(text, -1) {
		taken[m] = true
	}

	var sb strings.Builder
	prev, n := 0, 0
	for _, s := range claimed {
		n++
		for taken[marker(n)] {
			n++
		}
		marker := marker(n)
		mapping[marker] = text[s.start:s.end]
		sb.WriteString(text[prev:s.start])
		sb.WriteString(marker)
		prev = s.end
	}
	sb.WriteString(text[prev:])
	return sb.String(), mapping
}

// Unmask substitutes markers with the literals recorded by Mask. Text without
// markers is returned unchanged, so applying Unmask twice is harmless.
// Markers missing from the mapping are left as they are.
func Unmask(text string, mapping Mapping) string {
	if len(mapping) == 0 || !strings.Contains(text, "[[ENT_") {
		return text
	}
	pairs := make([]string, 0, len(mapping)*2)
	for _, m := range sortedMarkers(mapping) {
		pairs = append(pairs, m, mapping[m])
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// Remask hides the mapping's literals in text that was produced outside the
// current document (for example a translation memory hit), so the text can
// travel through the same pipeline as freshly masked content. Literals that
// several markers share use the lowest-numbered marker.
func Remask(text string, mapping Mapping) string {
	if len(mapping) == 0 {
		return text
	}
	byLiteral := map[string]string{}
	for _, m := range sortedMarkers(mapping) {
		lit := mapping[m]
		if _, ok := byLiteral[lit]; !ok {
			byLiteral[lit] = m
		}
	}
	literals := make([]string, 0, len(byLiteral))
	for lit := range byLiteral {
		literals = append(literals, lit)
	}
	sort.Slice(literals, func(i, j int) bool { return len(literals[i]) > len(literals[j]) })
	pairs := make([]string, 0, len(literals)*2)
	for _, lit := range literals {
		pairs = append(pairs, lit, byLiteral[lit])
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// InstructionHint returns a short sentence to append to an LLM prompt so the
// model knows to leave markers intact.
func InstructionHint() string {
	return "Preserve all [[ENT_n]] markers exactly as they appear; do not translate, move, or remove them."
}

// Validate reports the markers from mapping that no longer appear in text,
// in ascending order.
func Validate(text string, mapping Mapping) []string {
	var missing []string
	for _, m := range sortedMarkers(mapping) {
		if !strings.Contains(text, m) {
			missing = append(missing, m)
		}
	}
	return missing
}

// Markers returns the markers present in text in order of appearance.
func Markers(text string) []string {
	return rePlaceholder.FindAllString(text, -1)
}

func marker(n int) string {
	return fmt.Sprintf("[[ENT_%d]]", n)
}

func sortedMarkers(mapping Mapping) []string {
	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return markerIndex(keys[i]) < markerIndex(keys[j]) })
	return keys
}

func markerIndex(m string) int {
	sub := rePlaceholder.FindStringSubmatch(m)
	if len(sub) < 2 {
		return 0
	}
	n := 0
	fmt.Sscanf(sub[1], "%d", &n)
	return n
}

func dedupe(terms []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, t := range terms {
		if strings.TrimSpace(t) == "" {
			continue
		}
		k := strings.ToLower(t)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, t)
	}
	return out
}

// wholeWord reports whether the match is not glued to a word character on
// either side. Boundaries only apply where the term itself starts or ends
// with a word character.
func wholeWord(text string, s span) bool {
	first, _ := utf8.DecodeRuneInString(text[s.start:s.end])
	last, _ := utf8.DecodeLastRuneInString(text[s.start:s.end])
	if isWord(first) && s.start > 0 {
		if r, _ := utf8.DecodeLastRuneInString(text[:s.start]); isWord(r) {
			return false
		}
	}
	if isWord(last) && s.end < len(text) {
		if r, _ := utf8.DecodeRuneInString(text[s.end:]); isWord(r) {
			return false
		}
	}
	return true
}

func isWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func overlaps(claimed []span, s span) bool {
	for _, c := range claimed {
		if s.start < c.end && c.start < s.end {
			return true
		}
	}
	return false
}
