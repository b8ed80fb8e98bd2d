// Package orchestrator runs one document through the translation pipeline:
// detect and mask, decide the domain, resolve the glossary and reference
// context, draft and review every target language, then score and repair
// each language behind the quality gate. Every completed stage is
// checkpointed so an interrupted run resumes where it stopped.
package orchestrator

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/valpere/fintran/internal"
	"github.com/valpere/fintran/internal/detector"
	"github.com/valpere/fintran/internal/domain"
	"github.com/valpere/fintran/internal/glossary"
	"github.com/valpere/fintran/internal/llm"
	"github.com/valpere/fintran/internal/placeholder"
	"github.com/valpere/fintran/internal/postprocess"
	"github.com/valpere/fintran/internal/prompt"
	"github.com/valpere/fintran/internal/qa"
	"github.com/valpere/fintran/internal/review"
	"github.com/valpere/fintran/internal/segmenter"
	"github.com/valpere/fintran/internal/store"
	"github.com/valpere/fintran/internal/tm"
	"github.com/valpere/fintran/internal/trace"
	"github.com/valpere/fintran/internal/translator"
)

const (
	StageDetect    = "detect_and_prepare"
	StageDomain    = "decide_domain"
	StageGlossary  = "resolve_glossary_and_context"
	StageTranslate = "translate_and_review"
	StageQuality   = "quality_gate"
)

const (
	// maxQueryChars bounds the masked text used as the retrieval query.
	maxQueryChars = 2000
	// maxLookupTerms is the number of unknown terms sent to targeted lookup.
	maxLookupTerms = 10
)

// Store is the persistence the pipeline reads and checkpoints to.
type Store interface {
	DNTList(ctx context.Context, client string) ([]string, error)
	GlossaryBlock(ctx context.Context, client, domain, lang string) (string, map[string]string, error)
	SaveCheckpoint(ctx context.Context, threadKey, stage string, state []byte) error
	LoadCheckpoint(ctx context.Context, threadKey string) (*store.Checkpoint, error)
	ClearCheckpoint(ctx context.Context, threadKey string) error
}

// Memory is the translation memory.
type Memory interface {
	Lookup(ctx context.Context, client, srcLang, tgtLang, text string) (tm.Hit, bool, error)
	Upsert(ctx context.Context, pairs ...tm.Pair) error
}

// Retriever supplies reference snippets. Its errors are never fatal.
type Retriever interface {
	Retrieve(ctx context.Context, query, domain, client string, topK int) ([]string, error)
	Context(ctx context.Context, query, domain, client string, topK int) ([]string, error)
	Backfill(ctx context.Context, terms []string, domain, client string) (int, error)
}

// LanguageDetector picks the source language of a document.
type LanguageDetector interface {
	Source(text string) string
}

// LanguageChecker reports a segment written in the wrong language.
type LanguageChecker interface {
	Warning(i int, text, lang string) string
}

type OrchestratorConfig struct {
	ClassifyModel   string
	Thresholds      qa.Thresholds
	MaxLoops        int
	SegmentMaxChars int
	RAGTopK         int
	// FillCanonical fills the canonical languages for every concept.
	FillCanonical bool
	// EnrichGlossary lets low-confidence term proposals trigger retrieval
	// on requests with UseRAG set.
	EnrichGlossary bool
	Checkpoints    bool
	IncludeTrace   bool
}

// Components are the collaborators of a pipeline. Memory, Retriever,
// Detector and Checker are optional.
type Components struct {
	Store     Store
	LLM       llm.Service
	Drafter   translator.Drafter
	Reviewer  *review.Reviewer
	Scorer    *qa.Scorer
	Discovery *glossary.Discovery
	Resolver  *glossary.Resolver
	Memory    Memory
	Retriever Retriever
	Detector  LanguageDetector
	Checker   LanguageChecker
	Logger    *slog.Logger
}

type Orchestrator struct {
	Components
	config OrchestratorConfig
}

func New(components Components, config OrchestratorConfig) *Orchestrator {
	if components.Logger == nil {
		components.Logger = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		Components: components,
		config:     config,
	}
}

// LanguageResult is the outcome for one target language. A language that
// misses a threshold after every repair is still returned, with Passed
// false.
type LanguageResult struct {
	Text     string    `json:"text"`
	QA       qa.Result `json:"qa"`
	Passed   bool      `json:"passed"`
	Repairs  int       `json:"repairs"`
	TMHits   int       `json:"tm_hits"`
	Warnings []string  `json:"warnings,omitempty"`
}

// Result is the terminal state of a run.
type Result struct {
	ID        string                     `json:"id"`
	Client    string                     `json:"client"`
	SrcLang   string                     `json:"src_lang"`
	Domain    string                     `json:"domain"`
	RAGUsed   bool                       `json:"rag_used"`
	Languages map[string]*LanguageResult `json:"languages"`
	// Unresolved lists "CONCEPT/lang" pairs the glossary fill left empty.
	Unresolved  []string      `json:"unresolved_terms,omitempty"`
	ResumedFrom string        `json:"resumed_from,omitempty"`
	TraceID     string        `json:"trace_id"`
	Trace       []trace.Event `json:"trace,omitempty"`
}

// Passed reports whether every language passed the quality gate.
func (r *Result) Passed() bool {
	for _, l := range r.Languages {
		if !l.Passed {
			return false
		}
	}
	return true
}

type segmentPair struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// draft is a reassembled language before the quality gate.
type draft struct {
	Text     string        `json:"text"`
	Segments []segmentPair `json:"segments"`
	TMHits   int           `json:"tm_hits"`
	Warnings []string      `json:"warnings,omitempty"`

	memoryDown bool
}

// state is threaded through the stages and checkpointed between them.
type state struct {
	Overrides  string                       `json:"overrides"`
	SrcLang    string                       `json:"src_lang"`
	Targets    []string                     `json:"targets"`
	DNT        []string                     `json:"dnt"`
	Masked     string                       `json:"masked"`
	Mapping    placeholder.Mapping          `json:"mapping"`
	Domain     string                       `json:"domain"`
	Blocks     map[string]string            `json:"blocks"`
	Preferred  map[string]map[string]string `json:"preferred"`
	Snippets   []string                     `json:"snippets"`
	RAGUsed    bool                         `json:"rag_used"`
	Unresolved []string                     `json:"unresolved"`
	Drafts     map[string]*draft            `json:"drafts"`

	results map[string]*LanguageResult
}

type stage struct {
	name string
	run  func(context.Context, *internal.TranslationRequest, *state) error
}

// ThreadKey identifies the checkpoint of a document for one client.
func ThreadKey(client, text string) string {
	sum := sha1.Sum([]byte(text))
	return client + ":" + hex.EncodeToString(sum[:])[:16]
}

// Targets resolves the target languages of a run. Explicit targets are
// lower-cased and deduplicated; without them every supported language is
// used. The source language is never a target.
func Targets(src string, explicit []string) []string {
	if len(explicit) == 0 {
		explicit = detector.Supported
	}
	seen := map[string]bool{src: true}
	var out []string
	for _, l := range explicit {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	return out
}

// Run translates req.SourceText into every target language.
func (o *Orchestrator) Run(ctx context.Context, req internal.TranslationRequest) (*Result, error) {
	if strings.TrimSpace(req.SourceText) == "" {
		return nil, errors.New("source text is empty")
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	rec := trace.NewRecorder()
	ctx = trace.NewContext(ctx, rec)
	log := o.Logger.With("run", req.ID, "client", req.Client, "trace_id", rec.ID())

	stages := []stage{
		{StageDetect, o.detectAndPrepare},
		{StageDomain, o.decideDomain},
		{StageGlossary, o.resolveGlossaryAndContext},
		{StageTranslate, o.translateAndReview},
		{StageQuality, o.qualityGate},
	}

	key := ThreadKey(req.Client, req.SourceText)
	st, next := o.resume(ctx, key, &req, stages, log)
	resumedFrom := ""
	if next > 0 {
		resumedFrom = stages[next-1].name
		log.Info("resuming run", "after", resumedFrom)
	}

	for i := next; i < len(stages); i++ {
		s := stages[i]
		start := time.Now()
		if err := s.run(ctx, &req, st); err != nil {
			rec.Log(trace.KindStage, map[string]any{"stage": s.name, "error": err.Error()})
			return nil, fmt.Errorf("%s: %w", s.name, err)
		}
		rec.Log(trace.KindStage, map[string]any{"stage": s.name, "elapsed_ms": time.Since(start).Milliseconds()})
		log.Debug("stage done", "stage", s.name, "elapsed", time.Since(start))
		if i < len(stages)-1 {
			o.checkpoint(ctx, key, s.name, st, log)
		}
	}
	if o.config.Checkpoints {
		if err := o.Store.ClearCheckpoint(ctx, key); err != nil {
			log.Warn("failed to clear checkpoint", "error", err)
		}
	}

	res := &Result{
		ID:          req.ID,
		Client:      req.Client,
		SrcLang:     st.SrcLang,
		Domain:      st.Domain,
		RAGUsed:     st.RAGUsed,
		Languages:   st.results,
		Unresolved:  st.Unresolved,
		ResumedFrom: resumedFrom,
		TraceID:     rec.ID(),
	}
	if o.config.IncludeTrace {
		res.Trace = rec.Events()
	}
	return res, nil
}

func overrides(req *internal.TranslationRequest) string {
	return fmt.Sprintf("%s|%s|%s|%t", req.SourceLang, strings.Join(req.TargetLangs, ","), req.Domain, req.UseRAG)
}

// resume loads the checkpoint for key and returns the state to continue
// from and the index of the first stage still to run. A checkpoint written
// with different overrides, or one that cannot be read, starts over.
func (o *Orchestrator) resume(ctx context.Context, key string, req *internal.TranslationRequest, stages []stage, log *slog.Logger) (*state, int) {
	fresh := &state{Overrides: overrides(req)}
	if !o.config.Checkpoints {
		return fresh, 0
	}
	cp, err := o.Store.LoadCheckpoint(ctx, key)
	if err != nil {
		log.Warn("failed to load checkpoint", "error", err)
		return fresh, 0
	}
	if cp == nil {
		return fresh, 0
	}
	var st state
	if err := json.Unmarshal(cp.State, &st); err != nil {
		log.Warn("discarding unreadable checkpoint", "stage", cp.Stage, "error", err)
		return fresh, 0
	}
	if st.Overrides != fresh.Overrides {
		log.Info("discarding checkpoint with different options", "stage", cp.Stage)
		return fresh, 0
	}
	for i, s := range stages {
		if s.name == cp.Stage {
			return &st, i + 1
		}
	}
	return fresh, 0
}

func (o *Orchestrator) checkpoint(ctx context.Context, key, stage string, st *state, log *slog.Logger) {
	if !o.config.Checkpoints {
		return
	}
	data, err := json.Marshal(st)
	if err == nil {
		err = o.Store.SaveCheckpoint(ctx, key, stage, data)
	}
	if err != nil {
		log.Warn("failed to save checkpoint", "stage", stage, "error", err)
	}
}

func (o *Orchestrator) detectAndPrepare(ctx context.Context, req *internal.TranslationRequest, st *state) error {
	src := strings.ToLower(strings.TrimSpace(req.SourceLang))
	if src == "" || src == "auto" {
		src = detector.Fallback
		if o.Detector != nil {
			src = o.Detector.Source(req.SourceText)
		}
	}
	st.SrcLang = src
	st.Targets = Targets(src, req.TargetLangs)
	if len(st.Targets) == 0 {
		return fmt.Errorf("no target language besides %s", src)
	}

	dnt, err := o.Store.DNTList(ctx, req.Client)
	if err != nil {
		return fmt.Errorf("failed to load do-not-translate list: %w", err)
	}
	st.DNT = dnt
	st.Masked, st.Mapping = placeholder.Mask(req.SourceText, dnt)
	return nil
}

func (o *Orchestrator) decideDomain(ctx context.Context, req *internal.TranslationRequest, st *state) error {
	if strings.TrimSpace(req.Domain) != "" {
		st.Domain = domain.Normalize(req.Domain)
		return nil
	}
	label, err := o.LLM.Generate(ctx, llm.Request{
		Task:   llm.TaskClassify,
		Model:  o.config.ClassifyModel,
		Prompt: prompt.Classify(st.Masked, domain.All),
	})
	if err != nil {
		return fmt.Errorf("failed to classify domain: %w", err)
	}
	st.Domain = domain.Normalize(postprocess.Clean(label))
	return nil
}

func (o *Orchestrator) resolveGlossaryAndContext(ctx context.Context, req *internal.TranslationRequest, st *state) error {
	_, srcTerms, err := o.Store.GlossaryBlock(ctx, req.Client, st.Domain, st.SrcLang)
	if err != nil {
		return fmt.Errorf("failed to load glossary: %w", err)
	}
	known := append([]string{}, st.DNT...)
	for _, v := range srcTerms {
		known = append(known, v)
	}

	concepts := glossary.Concepts(o.Discovery.Candidates(ctx, st.Masked, st.Domain, known))
	if len(concepts) > 0 {
		report := o.Resolver.Resolve(ctx, glossary.Request{
			Client:    req.Client,
			Domain:    st.Domain,
			SrcLang:   st.SrcLang,
			Targets:   st.Targets,
			Concepts:  concepts,
			Canonical: o.config.FillCanonical,
			Enrich:    o.config.EnrichGlossary && req.UseRAG && o.Retriever != nil,
		})
		for _, f := range report.Failed {
			st.Unresolved = append(st.Unresolved, f.ConceptKey+"/"+f.Lang)
		}
		sort.Strings(st.Unresolved)
	}

	// Prompts and term coverage use the whole scope-merged glossary.
	st.Blocks = make(map[string]string, len(st.Targets))
	st.Preferred = make(map[string]map[string]string, len(st.Targets))
	for _, lang := range st.Targets {
		_, terms, err := o.Store.GlossaryBlock(ctx, req.Client, st.Domain, lang)
		if err != nil {
			return fmt.Errorf("failed to load %s glossary: %w", lang, err)
		}
		st.Preferred[lang] = terms
		st.Blocks[lang] = store.RenderBlock(terms)
	}

	if req.UseRAG && o.Retriever != nil {
		st.Snippets = o.referenceContext(ctx, req, st, concepts)
	}
	st.RAGUsed = len(st.Snippets) > 0
	return nil
}

// referenceContext retrieves snippets for the masked document, then sends
// up to maxLookupTerms unknown terms to a targeted lookup and retrieves
// again when that added anything. Failures leave fewer snippets.
func (o *Orchestrator) referenceContext(ctx context.Context, req *internal.TranslationRequest, st *state, concepts []glossary.Concept) []string {
	log := o.Logger.With("client", req.Client, "domain", st.Domain)
	query := st.Masked
	if r := []rune(query); len(r) > maxQueryChars {
		query = string(r[:maxQueryChars])
	}

	snips, err := o.Retriever.Context(ctx, query, st.Domain, req.Client, o.config.RAGTopK)
	if err != nil {
		log.Warn("context retrieval failed", "error", err)
		snips = nil
	}

	var unknown []string
	for _, c := range concepts {
		if !c.Known {
			unknown = append(unknown, c.Surface)
		}
	}
	if len(unknown) > maxLookupTerms {
		unknown = unknown[:maxLookupTerms]
	}
	if len(unknown) == 0 {
		return snips
	}
	n, err := o.Retriever.Backfill(ctx, unknown, st.Domain, req.Client)
	if err != nil {
		log.Warn("targeted lookup failed", "terms", len(unknown), "error", err)
		return snips
	}
	if n == 0 {
		return snips
	}
	more, err := o.Retriever.Retrieve(ctx, query, st.Domain, req.Client, o.config.RAGTopK)
	if err != nil {
		log.Warn("context retrieval failed", "error", err)
		return snips
	}
	if len(more) > 0 {
		return more
	}
	return snips
}

func (o *Orchestrator) translateAndReview(ctx context.Context, req *internal.TranslationRequest, st *state) error {
	segs := segmenter.Split(st.Masked, o.config.SegmentMaxChars)

	var mu sync.Mutex
	drafts := make(map[string]*draft, len(st.Targets))
	g, gctx := errgroup.WithContext(ctx)
	for _, lang := range st.Targets {
		g.Go(func() error {
			d, err := o.translateLanguage(gctx, req, st, lang, segs)
			if err != nil {
				return fmt.Errorf("%s: %w", lang, err)
			}
			mu.Lock()
			drafts[lang] = d
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	st.Drafts = drafts
	return nil
}

// translateLanguage handles the segments of one language in document
// order, each from translation memory or drafted and reviewed.
func (o *Orchestrator) translateLanguage(ctx context.Context, req *internal.TranslationRequest, st *state, lang string, segs []string) (*draft, error) {
	d := &draft{}
	out := make([]string, 0, len(segs))
	for i, seg := range segs {
		source := placeholder.Unmask(seg, st.Mapping)
		text, hit := o.recall(ctx, req.Client, st, lang, source, d)
		if !hit {
			prev := ""
			if i > 0 {
				prev = segmenter.ExtractContext(segs[i-1], 0)
			}
			res, err := o.Drafter.Translate(ctx, translator.TranslateRequest{
				Text:       seg,
				SourceLang: st.SrcLang,
				TargetLang: lang,
				Domain:     st.Domain,
				Glossary:   st.Blocks[lang],
				DNT:        st.DNT,
				Snippets:   st.Snippets,
				Previous:   prev,
			})
			if err != nil {
				return nil, fmt.Errorf("segment %d: %w", i+1, err)
			}
			text, err = o.Reviewer.Review(ctx, review.Segment{
				SrcLang:  st.SrcLang,
				TgtLang:  lang,
				Domain:   st.Domain,
				Glossary: st.Blocks[lang],
				Source:   seg,
				Draft:    res.TranslatedText,
			})
			if err != nil {
				return nil, fmt.Errorf("segment %d review: %w", i+1, err)
			}
			d.Segments = append(d.Segments, segmentPair{Source: source, Target: placeholder.Unmask(text, st.Mapping)})
		}

		if lost := lostMarkers(seg, text); len(lost) > 0 {
			d.Warnings = append(d.Warnings, fmt.Sprintf("segment %d: lost %s", i+1, strings.Join(lost, ", ")))
		}
		if o.Checker != nil {
			if w := o.Checker.Warning(i, text, lang); w != "" {
				d.Warnings = append(d.Warnings, w)
			}
		}
		out = append(out, text)
	}
	d.Text = placeholder.Unmask(strings.Join(out, "\n\n"), st.Mapping)
	return d, nil
}

// recall returns the remembered translation of source, masked again with
// the document's markers. A memory error is reported once per language and
// disables further lookups for it.
func (o *Orchestrator) recall(ctx context.Context, client string, st *state, lang, source string, d *draft) (string, bool) {
	if o.Memory == nil || d.memoryDown {
		return "", false
	}
	hit, ok, err := o.Memory.Lookup(ctx, client, st.SrcLang, lang, source)
	if err != nil {
		d.memoryDown = true
		d.Warnings = append(d.Warnings, fmt.Sprintf("translation memory unavailable: %v", err))
		o.Logger.Warn("translation memory lookup failed", "client", client, "lang", lang, "error", err)
		return "", false
	}
	if !ok {
		return "", false
	}
	d.TMHits++
	o.Logger.Debug("translation memory hit", "client", client, "lang", lang, "similarity", hit.Similarity)
	return placeholder.Remask(hit.Target, st.Mapping), true
}

func lostMarkers(source, target string) []string {
	var lost []string
	for _, m := range placeholder.Markers(source) {
		if !strings.Contains(target, m) {
			lost = append(lost, m)
		}
	}
	return lost
}

func (o *Orchestrator) qualityGate(ctx context.Context, req *internal.TranslationRequest, st *state) error {
	var mu sync.Mutex
	results := make(map[string]*LanguageResult, len(st.Targets))
	g, gctx := errgroup.WithContext(ctx)
	for _, lang := range st.Targets {
		g.Go(func() error {
			res, err := o.gate(gctx, req, st, lang)
			if err != nil {
				return fmt.Errorf("%s: %w", lang, err)
			}
			mu.Lock()
			results[lang] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	st.results = results
	return nil
}

// gate scores one language and repairs it while it fails and the loop
// budget lasts. A passing language is written to translation memory.
func (o *Orchestrator) gate(ctx context.Context, req *internal.TranslationRequest, st *state, lang string) (*LanguageResult, error) {
	d := st.Drafts[lang]
	if d == nil {
		return nil, errors.New("no draft")
	}
	log := o.Logger.With("client", req.Client, "lang", lang)
	preferred := st.Preferred[lang]
	res := &LanguageResult{Text: d.Text, TMHits: d.TMHits, Warnings: d.Warnings}
	res.QA = o.Scorer.Score(ctx, req.SourceText, res.Text, st.Domain, preferred)

	for res.Repairs < o.config.MaxLoops && !o.config.Thresholds.Pass(res.QA) {
		log.Info("quality gate failed, repairing",
			"attempt", res.Repairs+1,
			"failures", o.config.Thresholds.Failures(res.QA))
		missing := qa.MissingTerms(res.Text, preferred)
		fixed, err := o.Reviewer.Repair(ctx, lang, st.Domain, placeholder.Remask(res.Text, st.Mapping), missing)
		if err != nil {
			return nil, fmt.Errorf("repair: %w", err)
		}
		res.Text = placeholder.Unmask(fixed, st.Mapping)
		res.Repairs++
		res.QA = o.Scorer.Score(ctx, req.SourceText, res.Text, st.Domain, preferred)
	}

	res.Passed = o.config.Thresholds.Pass(res.QA)
	if !res.Passed {
		log.Warn("quality gate failed", "failures", o.config.Thresholds.Failures(res.QA), "repairs", res.Repairs)
		return res, nil
	}
	o.remember(ctx, req, st, lang, d, res)
	return res, nil
}

// remember appends a passing language to translation memory: its drafted
// segments when no repair touched them, the whole document otherwise.
func (o *Orchestrator) remember(ctx context.Context, req *internal.TranslationRequest, st *state, lang string, d *draft, res *LanguageResult) {
	if o.Memory == nil {
		return
	}
	var pairs []tm.Pair
	if res.Repairs == 0 {
		for _, s := range d.Segments {
			pairs = append(pairs, tm.Pair{
				Client:  req.Client,
				SrcLang: st.SrcLang,
				TgtLang: lang,
				Domain:  st.Domain,
				Source:  s.Source,
				Target:  s.Target,
			})
		}
	} else {
		pairs = append(pairs, tm.Pair{
			Client:  req.Client,
			SrcLang: st.SrcLang,
			TgtLang: lang,
			Domain:  st.Domain,
			Source:  strings.TrimSpace(req.SourceText),
			Target:  res.Text,
		})
	}
	if len(pairs) == 0 {
		return
	}
	if err := o.Memory.Upsert(ctx, pairs...); err != nil {
		o.Logger.Warn("translation memory not updated", "client", req.Client, "lang", lang, "error", err)
		res.Warnings = append(res.Warnings, fmt.Sprintf("translation memory not updated: %v", err))
	}
}
