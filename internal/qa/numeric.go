package qa

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// amount is a number written plainly or with grouping separators.
const amount = `(?:\d{1,3}(?:[.,\s]\d{3})+(?:[.,]\d+)?|\d+(?:[.,]\d+)?)`

// magnitudeWords lists longer alternatives first so "bn" is never read as
// "b" and "mil millones" never as "millones".
const magnitudeWords = `mil millones|milliarden|milliarde|milliards|milliard|mrd\.?|billions|billion|` +
	`millones|millón|millon|millionen|millions|million|mio\.?|mn|thousands|thousand|bn|mm|k|m|b`

const magnitude = `(?:\s?(?:` + magnitudeWords + `))?`

const multiplier = `(?:\s?[x×])?`

// numberRe matches a quantity token followed by a non-word character or the
// end of text. The trailing character is consumed in place of a lookahead;
// the token itself is capture group 1.
var numberRe = regexp.MustCompile(`(?i)((?:\(\s*)?[+\-]?(?:` +
	amount + `\s?%` +
	`|[€$£]\s*` + amount + magnitude + multiplier +
	`|` + amount + magnitude + multiplier + `\s?[€$£]` +
	`|` + amount + magnitude + multiplier +
	`)(?:\s*\))?)(?:[^\p{L}\p{N}_]|$)`)

var suffixRe = regexp.MustCompile(`(` + strings.ReplaceAll(magnitudeWords, " ", "") + `)$`)

// foldMagnitude maps a spelled or abbreviated magnitude to k, m or b.
func foldMagnitude(w string) string {
	w = strings.TrimSuffix(w, ".")
	switch {
	case w == "":
		return ""
	case w == "k" || strings.HasPrefix(w, "thousand"):
		return "k"
	case w == "b" || w == "bn" || w == "mrd" || w == "milmillones" ||
		strings.HasPrefix(w, "billion") || strings.HasPrefix(w, "milliard"):
		return "b"
	}
	return "m"
}

// ExtractNumbers returns the quantity tokens of text as written: percentages,
// amounts with a currency symbol before or after, bare numbers with an
// optional magnitude (k/m/bn or a word such as "million" or "Mio.") and
// optional "x" multiplier. Parenthesised
// and signed forms are kept whole.
func ExtractNumbers(text string) []string {
	text = strings.NewReplacer(" ", " ", " ", " ").Replace(text)
	var out []string
	for _, m := range numberRe.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2], m[3]
		if r, _ := utf8.DecodeLastRuneInString(text[:start]); start > 0 && isWord(r) {
			continue
		}
		if tok := strings.TrimSpace(text[start:end]); tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

func isWord(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// NormalizeNumber reduces a token to a locale-neutral key: currency symbols,
// grouping and decimal separators and the multiplier are dropped, negativity
// becomes a leading "-", the magnitude is folded to one letter (mm, Mio.
// and millones to m; bn, Mrd. and mil millones to b) and a "%" is
// re-appended. "€2.4M", "2,4 M€" and "2,4 millones" all yield "24m".
func NormalizeNumber(tok string) string {
	s := strings.ToLower(strings.TrimSpace(strings.ReplaceAll(tok, " ", " ")))
	if s == "" {
		return ""
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
	}
	s = strings.TrimSpace(strings.Trim(s, "()"))
	if strings.HasPrefix(s, "-") {
		neg = true
		s = strings.TrimSpace(s[1:])
	}
	s = strings.TrimSpace(strings.TrimPrefix(s, "+"))

	pct := strings.Contains(s, "%")
	s = strings.NewReplacer("€", "", "$", "", "£", "", "%", "", "×", "x", " ", "").Replace(s)
	s = strings.TrimSuffix(s, "x")

	mag := suffixRe.FindString(s)
	s = strings.TrimSuffix(s, mag)
	mag = foldMagnitude(mag)

	var core strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			core.WriteRune(r)
		}
	}
	if core.Len() == 0 {
		return ""
	}
	out := core.String() + mag
	if neg {
		out = "-" + out
	}
	if pct {
		out += "%"
	}
	return out
}

// NumberSet returns the distinct normalised quantities of text.
func NumberSet(text string) map[string]bool {
	set := map[string]bool{}
	for _, tok := range ExtractNumbers(text) {
		if n := NormalizeNumber(tok); n != "" {
			set[n] = true
		}
	}
	return set
}

// NumericConsistency is the share of the source's distinct quantities that
// also occur in target. A source without quantities scores 1.
func NumericConsistency(source, target string) float64 {
	src := NumberSet(source)
	if len(src) == 0 {
		return 1
	}
	tgt := NumberSet(target)
	hit := 0
	for n := range src {
		if tgt[n] {
			hit++
		}
	}
	return float64(hit) / float64(len(src))
}
