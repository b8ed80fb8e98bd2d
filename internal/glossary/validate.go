package glossary

import (
	"math"
	"regexp"
	"sort"
)

// Coverage reports which preferred forms of a glossary occur in a text.
type Coverage struct {
	Coverage     float64  `json:"coverage" yaml:"coverage"`
	TotalTerms   int      `json:"total_terms" yaml:"total_terms"`
	MatchedTerms []string `json:"matched_terms" yaml:"matched_terms"`
	MissingTerms []string `json:"missing_terms" yaml:"missing_terms"`
}

// Validate checks every preferred form in preferred (concept key →
// preferred) against text as a whole word or phrase, ignoring case. Matched
// and missing lists hold concept keys, sorted. An empty glossary has
// coverage 1.
func Validate(text string, preferred map[string]string) Coverage {
	rep := Coverage{Coverage: 1, MatchedTerms: []string{}, MissingTerms: []string{}}
	for key, form := range preferred {
		if form == "" {
			continue
		}
		rep.TotalTerms++
		if containsWord(text, form) {
			rep.MatchedTerms = append(rep.MatchedTerms, key)
		} else {
			rep.MissingTerms = append(rep.MissingTerms, key)
		}
	}
	sort.Strings(rep.MatchedTerms)
	sort.Strings(rep.MissingTerms)
	if rep.TotalTerms > 0 {
		ratio := float64(len(rep.MatchedTerms)) / float64(rep.TotalTerms)
		rep.Coverage = math.Round(ratio*10000) / 10000
	}
	return rep
}

func containsWord(text, phrase string) bool {
	re := regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}_])` + regexp.QuoteMeta(phrase) + `(?:$|[^\p{L}\p{N}_])`)
	return re.MatchString(text)
}
