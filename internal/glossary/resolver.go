package glossary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/valpere/fintran/internal/llm"
	"github.com/valpere/fintran/internal/prompt"
	"github.com/valpere/fintran/internal/store"
)

// CanonicalLangs are filled for every concept when canonical fill is on, so
// glossaries stay cross-linked even for languages a run did not request.
var CanonicalLangs = []string{"en", "es", "fr", "de"}

// Store is the glossary persistence the resolver needs.
type Store interface {
	FindPreferredFuzzy(ctx context.Context, client, domain, lang, query string) (string, bool, error)
	UpsertPreferred(ctx context.Context, sc store.Scope, conceptKey, lang, preferred string) error
}

// Enricher ingests background material for terms. It is best effort: the
// resolver logs its error and carries on.
type Enricher func(ctx context.Context, terms []string, domain, client string) error

// Options configures a Resolver.
type Options struct {
	ProposeModel string
	JudgeModel   string
	// MinQuality is the judge confidence below which one enrichment and
	// retry round is attempted.
	MinQuality float64
	// Concurrency caps in-flight concept×language fills.
	Concurrency int
	Enrich      Enricher
	Logger      *slog.Logger
}

// Resolver fills missing preferred forms.
type Resolver struct {
	store  Store
	llm    llm.Service
	opts   Options
	log    *slog.Logger
	enrich Enricher
}

// NewResolver returns a Resolver writing to st and proposing through svc.
func NewResolver(st Store, svc llm.Service, opts Options) *Resolver {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 6
	}
	if opts.MinQuality <= 0 {
		opts.MinQuality = 0.75
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Resolver{store: st, llm: svc, opts: opts, log: log, enrich: opts.Enrich}
}

// Pair identifies one concept that needs a preferred form in TgtLang.
type Pair struct {
	Client     string
	Domain     string
	ConceptKey string
	Surface    string
	SrcLang    string
	TgtLang    string
	// Enrich allows the low-confidence enrichment round.
	Enrich bool
}

type proposal struct {
	Term     string `json:"term"`
	SrcLang  string `json:"src_lang"`
	TgtLang  string `json:"tgt_lang"`
	Proposal string `json:"proposal"`
}

func (p *proposal) Validate() error {
	if strings.TrimSpace(p.Proposal) == "" {
		return errors.New("proposal is empty")
	}
	return nil
}

type judgement struct {
	OK         bool     `json:"ok"`
	Confidence *float64 `json:"confidence"`
	Reasons    []string `json:"reasons"`
}

func (j *judgement) Validate() error {
	if j.Confidence == nil {
		return errors.New("confidence is missing")
	}
	return nil
}

// EnsurePreferred returns the preferred form of the pair's concept in
// TgtLang, creating it when the scope chain has none:
//
//  1. fuzzy lookup on the concept key, then on the surface form;
//  2. otherwise a proposal is requested and judged;
//  3. below MinQuality, one enrichment attempt is made and the
//     proposal and judgement are repeated exactly once;
//  4. the final proposal is stored under (client, domain) whatever its
//     confidence.
//
// A proposal on the banned list is discarded and reported as
// store.ErrBannedTranslation.
func (r *Resolver) EnsurePreferred(ctx context.Context, p Pair) (string, error) {
	for i, q := range []string{p.ConceptKey, p.Surface} {
		if q == "" || (i == 1 && q == p.ConceptKey) {
			continue
		}
		pref, ok, err := r.store.FindPreferredFuzzy(ctx, p.Client, p.Domain, p.TgtLang, q)
		if err != nil {
			return "", fmt.Errorf("glossary lookup: %w", err)
		}
		if ok {
			return pref, nil
		}
	}

	surface := p.Surface
	if surface == "" {
		surface = p.ConceptKey
	}
	text, conf, err := r.proposeAndJudge(ctx, p.ConceptKey, surface, p.SrcLang, p.TgtLang)
	if err != nil {
		return "", err
	}

	if conf < r.opts.MinQuality && p.Enrich && r.enrich != nil {
		r.log.Debug("low term confidence, enriching",
			"concept", p.ConceptKey, "lang", p.TgtLang, "confidence", conf)
		if err := r.enrich(ctx, []string{surface, p.ConceptKey}, p.Domain, p.Client); err != nil {
			r.log.Warn("term enrichment failed", "concept", p.ConceptKey, "error", err)
		}
		if text, conf, err = r.proposeAndJudge(ctx, p.ConceptKey, surface, p.SrcLang, p.TgtLang); err != nil {
			return "", err
		}
	}

	sc := store.Scope{Client: p.Client, Domain: p.Domain}
	if err := r.store.UpsertPreferred(ctx, sc, p.ConceptKey, p.TgtLang, text); err != nil {
		return "", err
	}
	r.log.Debug("term resolved",
		"concept", p.ConceptKey, "lang", p.TgtLang, "preferred", text, "confidence", conf)
	return text, nil
}

func (r *Resolver) proposeAndJudge(ctx context.Context, key, surface, src, tgt string) (string, float64, error) {
	var prop proposal
	err := r.llm.Parse(ctx, llm.Request{
		Task:   llm.TaskTermTranslate,
		Model:  r.opts.ProposeModel,
		Prompt: prompt.TermTranslate(surface, src, tgt),
	}, &prop)
	if err != nil {
		return "", 0, fmt.Errorf("term proposal: %w", err)
	}
	text := strings.TrimSpace(prop.Proposal)
	if err := store.CheckBanned(tgt, key, text); err != nil {
		return "", 0, err
	}

	var j judgement
	err = r.llm.Parse(ctx, llm.Request{
		Task:   llm.TaskTermJudge,
		Model:  r.opts.JudgeModel,
		Prompt: prompt.TermJudge(surface, src, tgt, text),
	}, &j)
	if err != nil {
		return "", 0, fmt.Errorf("term judge: %w", err)
	}
	return text, clamp(*j.Confidence), nil
}

func clamp(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// Request describes one document's glossary fill.
type Request struct {
	Client   string
	Domain   string
	SrcLang  string
	Targets  []string
	Concepts []Concept
	// Canonical also fills CanonicalLangs.
	Canonical bool
	Enrich    bool
}

// Failure is a concept×language pair left unresolved.
type Failure struct {
	ConceptKey string
	Lang       string
	Err        error
}

// FillReport is the outcome of Resolve.
type FillReport struct {
	// Preferred maps language → concept key → preferred form.
	Preferred map[string]map[string]string
	Failed    []Failure
}

// Langs returns the languages Resolve fills for req, sorted.
func (req Request) Langs() []string {
	set := map[string]bool{}
	for _, l := range req.Targets {
		set[l] = true
	}
	if req.SrcLang != "" {
		set[req.SrcLang] = true
	}
	if req.Canonical {
		for _, l := range CanonicalLangs {
			set[l] = true
		}
	}
	langs := make([]string, 0, len(set))
	for l := range set {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

// Resolve runs EnsurePreferred for every concept in every language of
// req.Langs(), at most Concurrency at a time. A failing pair is logged and
// recorded in the report; it never stops the others.
func (r *Resolver) Resolve(ctx context.Context, req Request) *FillReport {
	langs := req.Langs()
	report := &FillReport{Preferred: make(map[string]map[string]string, len(langs))}
	for _, l := range langs {
		report.Preferred[l] = map[string]string{}
	}

	sem := semaphore.NewWeighted(int64(r.opts.Concurrency))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	fail := func(key, lang string, err error) {
		mu.Lock()
		report.Failed = append(report.Failed, Failure{ConceptKey: key, Lang: lang, Err: err})
		mu.Unlock()
		r.log.Warn("glossary fill failed", "client", req.Client, "concept", key, "lang", lang, "error", err)
	}

	for _, c := range req.Concepts {
		for _, lang := range langs {
			if err := sem.Acquire(ctx, 1); err != nil {
				fail(c.Key, lang, err)
				continue
			}
			wg.Add(1)
			go func(c Concept, lang string) {
				defer wg.Done()
				defer sem.Release(1)
				pref, err := r.EnsurePreferred(ctx, Pair{
					Client:     req.Client,
					Domain:     req.Domain,
					ConceptKey: c.Key,
					Surface:    c.Surface,
					SrcLang:    req.SrcLang,
					TgtLang:    lang,
					Enrich:     req.Enrich,
				})
				if err != nil {
					fail(c.Key, lang, err)
					return
				}
				mu.Lock()
				report.Preferred[lang][c.Key] = pref
				mu.Unlock()
			}(c, lang)
		}
	}
	wg.Wait()

	sort.Slice(report.Failed, func(i, j int) bool {
		a, b := report.Failed[i], report.Failed[j]
		if a.ConceptKey != b.ConceptKey {
			return a.ConceptKey < b.ConceptKey
		}
		return a.Lang < b.Lang
	})
	return report
}
