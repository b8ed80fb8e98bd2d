// Package glossary discovers the financial concepts of a document and makes
// sure every one of them has a preferred form in every language the run
// needs, proposing and judging new forms through the language service.
package glossary

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/valpere/fintran/internal/concept"
	"github.com/valpere/fintran/internal/llm"
	"github.com/valpere/fintran/internal/prompt"
)

// candidateRe accepts a 2-6 letter acronym or a capitalised word of at least
// four letters.
var candidateRe = regexp.MustCompile(`^([A-Z]{2,6}|[A-Z][a-zA-Z]{3,})$`)

var markerRe = regexp.MustCompile(`\[\[ENT_\d+\]\]`)

var stopwords = map[string]bool{
	"and": true, "or": true, "the": true, "for": true, "with": true, "from": true,
	"into": true, "over": true, "under": true, "between": true, "without": true,
	"del": true, "de": true, "la": true, "el": true, "los": true, "las": true,
	"des": true, "le": true, "les": true, "von": true, "und": true, "der": true,
	"die": true, "das": true,
}

// boosted terms are ranked ahead of other candidates when they occur.
var boosted = map[string]bool{
	"IRR": true, "NAV": true, "TVPI": true, "DPI": true, "MOIC": true, "FX": true,
	"AIFMD": true, "ELTIF": true, "UCITS": true, "MiFID": true, "PRIIPs": true, "KID": true,
}

// Discovery finds candidate terms in a document.
type Discovery struct {
	llm    llm.Service
	model  string
	useLLM bool
	topK   int
	minLen int
	log    *slog.Logger
}

// DiscoveryOptions configures NewDiscovery.
type DiscoveryOptions struct {
	Model  string
	UseLLM bool
	TopK   int
	MinLen int
	Logger *slog.Logger
}

// NewDiscovery returns a Discovery. svc may be nil when UseLLM is false.
func NewDiscovery(svc llm.Service, opts DiscoveryOptions) *Discovery {
	if opts.TopK <= 0 {
		opts.TopK = 12
	}
	if opts.MinLen <= 0 {
		opts.MinLen = 2
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Discovery{
		llm:    svc,
		model:  opts.Model,
		useLLM: opts.UseLLM && svc != nil,
		topK:   opts.TopK,
		minLen: opts.MinLen,
		log:    opts.Logger,
	}
}

// Candidates merges the pattern scanner with the optional model spotter,
// drops duplicates and known terms (case-insensitive) and keeps at most
// TopK terms. A failing spotter only loses its own suggestions.
func (d *Discovery) Candidates(ctx context.Context, text, domain string, known []string) []string {
	terms := ScanCandidates(text)
	if d.useLLM {
		extra, err := d.extract(ctx, text, domain)
		if err != nil {
			d.log.Warn("term extractor failed, using pattern candidates only", "domain", domain, "error", err)
		}
		terms = append(terms, extra...)
	}
	return d.filter(terms, known)
}

func (d *Discovery) filter(terms, known []string) []string {
	skip := map[string]bool{}
	for _, k := range known {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			skip[k] = true
		}
	}
	var out []string
	for _, t := range terms {
		t = strings.TrimSpace(t)
		k := strings.ToLower(t)
		if utf8.RuneCountInString(t) < d.minLen || skip[k] {
			continue
		}
		skip[k] = true
		out = append(out, t)
		if len(out) == d.topK {
			break
		}
	}
	return out
}

type termsOut struct {
	Terms []string `json:"terms"`
}

func (d *Discovery) extract(ctx context.Context, text, domain string) ([]string, error) {
	if domain == "" {
		domain = "Finance"
	}
	var out termsOut
	err := d.llm.Parse(ctx, llm.Request{
		Task:   llm.TaskTermExtract,
		Model:  d.model,
		Prompt: prompt.TermExtract(domain, markerRe.ReplaceAllString(text, " "), d.topK),
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.Terms, nil
}

// ScanCandidates returns the acronyms and capitalised words of text in
// order of first appearance, boosted financial acronyms first. Entity
// markers and stopwords are ignored.
func ScanCandidates(text string) []string {
	text = markerRe.ReplaceAllString(text, " ")
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	seen := map[string]bool{}
	var front, rest []string
	for _, w := range words {
		if seen[w] || !candidateRe.MatchString(w) || stopwords[strings.ToLower(w)] {
			continue
		}
		seen[w] = true
		if boosted[w] {
			front = append(front, w)
		} else {
			rest = append(rest, w)
		}
	}
	return append(front, rest...)
}

// Concept is one discovered concept and the first surface form seen for it.
type Concept struct {
	Key     string
	Surface string
	Known   bool
}

// Concepts canonicalises terms, keeping the first surface per concept key
// and the input order.
func Concepts(terms []string) []Concept {
	seen := map[string]bool{}
	var out []Concept
	for _, t := range terms {
		key, known := concept.Canonical(t)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, Concept{Key: key, Surface: strings.TrimSpace(t), Known: known})
	}
	return out
}

// Keys returns the concept keys of cs.
func Keys(cs []Concept) []string {
	keys := make([]string, len(cs))
	for i, c := range cs {
		keys[i] = c.Key
	}
	return keys
}
