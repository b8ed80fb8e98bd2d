// Package qa scores a finished translation against its source: preserved
// quantities, preferred terminology and domain alignment. Rule scores are
// computed locally; an optional model referee can refine the numeric and
// domain scores.
package qa

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/valpere/fintran/internal/domain"
	"github.com/valpere/fintran/internal/llm"
	"github.com/valpere/fintran/internal/prompt"
)

// DefaultWeight is the share given to the model referee in hybrid mode.
const DefaultWeight = 0.6

// RepairNote is appended to the fluency side of a repair merge.
const RepairNote = "NOTE: Fix to include missing preferred terms and keep all numbers exactly."

// Result holds the three scores of one translation, each in [0,1].
type Result struct {
	NumericConsistency float64 `json:"numeric_consistency" yaml:"numeric_consistency"`
	TermCoverage       float64 `json:"term_coverage" yaml:"term_coverage"`
	DomainScore        float64 `json:"domain_score" yaml:"domain_score"`
}

// Thresholds are the minimum scores a translation needs to pass.
type Thresholds struct {
	NumMin  float64
	TermMin float64
	DomMin  float64
}

// Pass reports whether every score reaches its threshold.
func (t Thresholds) Pass(r Result) bool {
	return len(t.Failures(r)) == 0
}

// Failures names the scores below threshold.
func (t Thresholds) Failures(r Result) []string {
	var out []string
	if r.NumericConsistency < t.NumMin {
		out = append(out, fmt.Sprintf("numeric_consistency %.2f < %.2f", r.NumericConsistency, t.NumMin))
	}
	if r.TermCoverage < t.TermMin {
		out = append(out, fmt.Sprintf("term_coverage %.2f < %.2f", r.TermCoverage, t.TermMin))
	}
	if r.DomainScore < t.DomMin {
		out = append(out, fmt.Sprintf("domain_score %.2f < %.2f", r.DomainScore, t.DomMin))
	}
	return out
}

// TermCoverage is the share of preferred terms found in text as a
// case-insensitive substring. An empty glossary scores 1; an entry with an
// empty preferred form never matches.
func TermCoverage(text string, preferred map[string]string) float64 {
	if len(preferred) == 0 {
		return 1
	}
	low := strings.ToLower(text)
	hits := 0
	for _, term := range preferred {
		if term != "" && strings.Contains(low, strings.ToLower(term)) {
			hits++
		}
	}
	return float64(hits) / float64(len(preferred))
}

// MissingTerms returns the non-empty preferred terms absent from text,
// sorted and distinct.
func MissingTerms(text string, preferred map[string]string) []string {
	low := strings.ToLower(text)
	seen := map[string]bool{}
	var out []string
	for _, term := range preferred {
		if term == "" || seen[term] || strings.Contains(low, strings.ToLower(term)) {
			continue
		}
		seen[term] = true
		out = append(out, term)
	}
	sort.Strings(out)
	return out
}

var cues = map[string][]*regexp.Regexp{
	domain.PrivateEquity: compile(
		`\bnav\b`, `\b(irr?|internal rate of return|tir)\b`, `\btvpi\b`, `\bdpi\b`, `\bmoic\b`,
		`\bdry powder\b`, `\bcapital calls?\b`, `\bdistributions?\b`, `\bfunds?\b`, `\bportfolio revaluation\b`,
	),
	domain.RealEstate: compile(
		`\bcap rate\b`, `\bleases?\b`, `\bnoi\b`, `\bltv\b`, `\bdscr\b`, `\bwault\b`, `\brent roll\b`, `\bvaluation\b`,
	),
	domain.FiscalTax: compile(
		`\bwithholding\b`, `\bvat\b`, `\btreat(y|ies)\b`, `\bcfc\b`, `\bbeps\b`, `\btransfer pricing\b`,
		`\bpermanent establishment\b`,
	),
	domain.WealthManagement: compile(
		`\bmifid\b`, `\bucits\b`, `\bter\b`, `\bsharpe\b`, `\bportfolio\b`, `\bkid\b`, `\bpriips?\b`,
	),
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// DomainScore is 0.5 plus 0.1 for every distinct cue pattern of dom found in
// text, capped at 1. Unknown domains score 0.5.
func DomainScore(dom, text string) float64 {
	low := strings.ToLower(text)
	hits := 0
	for _, re := range cues[dom] {
		if re.MatchString(low) {
			hits++
		}
	}
	return math.Min(1, 0.5+0.1*float64(hits))
}

// RepairHints turns missing terms into imperative instructions, one per
// line.
func RepairHints(missing []string) string {
	lines := make([]string, len(missing))
	for i, t := range missing {
		lines[i] = fmt.Sprintf("Ensure term %q appears.", t)
	}
	return strings.Join(lines, "\n")
}

// Options configures a Scorer.
type Options struct {
	// UseLLM enables the model referee for the numeric and domain scores.
	UseLLM bool
	Model  string
	// Weight is the referee's share of a blended score.
	Weight float64
	Logger *slog.Logger
}

// Scorer computes Results, optionally blending in a model referee.
type Scorer struct {
	llm  llm.Service
	opts Options
	log  *slog.Logger
}

// NewScorer returns a Scorer. svc may be nil when UseLLM is false.
func NewScorer(svc llm.Service, opts Options) *Scorer {
	if opts.Weight <= 0 || opts.Weight > 1 {
		opts.Weight = DefaultWeight
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if svc == nil {
		opts.UseLLM = false
	}
	return &Scorer{llm: svc, opts: opts, log: log}
}

// Score rates target against the original, unmasked source.
func (s *Scorer) Score(ctx context.Context, source, target, dom string, preferred map[string]string) Result {
	return Result{
		NumericConsistency: s.Numeric(ctx, source, target),
		TermCoverage:       TermCoverage(target, preferred),
		DomainScore:        s.Domain(ctx, dom, target),
	}
}

type numericAudit struct {
	OK           bool     `json:"ok"`
	MatchedRatio *float64 `json:"matched_ratio"`
	Confidence   *float64 `json:"confidence"`
	Issues       []string `json:"issues"`
}

func (a *numericAudit) Validate() error {
	if a.MatchedRatio == nil || a.Confidence == nil {
		return errors.New("matched_ratio and confidence are required")
	}
	return nil
}

// Numeric returns the rule score, or in hybrid mode and below 1 a blend
// with the referee's matched ratio and confidence. A failed referee call
// falls back to the rule score.
func (s *Scorer) Numeric(ctx context.Context, source, target string) float64 {
	rule := NumericConsistency(source, target)
	if rule >= 1 || !s.opts.UseLLM {
		return rule
	}
	var a numericAudit
	err := s.llm.Parse(ctx, llm.Request{
		Task:   llm.TaskQANumeric,
		Model:  s.opts.Model,
		Prompt: prompt.NumericAudit(source, target),
	}, &a)
	if err != nil {
		s.log.Warn("numeric referee failed, using rule score", "error", err)
		return rule
	}
	judged := 0.5*unit(*a.MatchedRatio) + 0.5*unit(*a.Confidence)
	w := s.opts.Weight
	return math.Min(1, (1-w)*rule+w*judged)
}

type domainAudit struct {
	Domain     string   `json:"domain"`
	Aligned    bool     `json:"aligned"`
	Confidence *float64 `json:"confidence"`
	Cues       []string `json:"cues"`
}

func (a *domainAudit) Validate() error {
	if a.Confidence == nil {
		return errors.New("confidence is required")
	}
	return nil
}

// Domain returns the cue score, or in hybrid mode the larger of it and its
// blend with the referee's confidence. The result never drops below the
// cue score.
func (s *Scorer) Domain(ctx context.Context, dom, text string) float64 {
	rule := DomainScore(dom, text)
	if !s.opts.UseLLM {
		return rule
	}
	var a domainAudit
	err := s.llm.Parse(ctx, llm.Request{
		Task:   llm.TaskQADomain,
		Model:  s.opts.Model,
		Prompt: prompt.DomainAudit(dom, text),
	}, &a)
	if err != nil {
		s.log.Warn("domain referee failed, using rule score", "domain", dom, "error", err)
		return rule
	}
	w := s.opts.Weight
	return math.Min(1, math.Max(rule, (1-w)*rule+w*unit(*a.Confidence)))
}

func unit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
