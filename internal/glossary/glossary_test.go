package glossary

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valpere/fintran/internal/llm"
	"github.com/valpere/fintran/internal/llm/llmtest"
	"github.com/valpere/fintran/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "glossary.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestScanCandidates(t *testing.T) {
	got := ScanCandidates("El TIR fue de 12,5% y el NAV alcanzó €2.4M según Acme. [[ENT_1]] The Fund")
	want := []string{"NAV", "TIR", "Acme", "Fund"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestScanCandidates_NoBoostInjection(t *testing.T) {
	if got := ScanCandidates("nothing capitalised here"); len(got) != 0 {
		t.Errorf("expected no candidates, got %v", got)
	}
}

func TestScanCandidates_AccentedWordNotCut(t *testing.T) {
	for _, c := range ScanCandidates("Société Générale") {
		if c == "Soci" || c == "Sociét" {
			t.Errorf("accented word was cut: %v", c)
		}
	}
}

func TestCandidates_MergesFiltersAndCaps(t *testing.T) {
	fake := &llmtest.Fake{Parse: map[llm.Task]func(llm.Request) (string, error){
		llm.TaskTermExtract: llmtest.Const(`{"terms": ["capital call", "NAV", "x", "dry powder"]}`),
	}}
	d := NewDiscovery(fake.Service(), DiscoveryOptions{UseLLM: true, TopK: 3, MinLen: 2})
	got := d.Candidates(context.Background(), "The NAV and IRR moved.", "Private Equity", []string{"irr"})
	want := []string{"NAV", "capital call", "dry powder"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestCandidates_ExtractorFailureKeepsPatterns(t *testing.T) {
	fake := &llmtest.Fake{Parse: map[llm.Task]func(llm.Request) (string, error){
		llm.TaskTermExtract: llmtest.Fail("down"),
	}}
	d := NewDiscovery(fake.Service(), DiscoveryOptions{UseLLM: true})
	got := d.Candidates(context.Background(), "UCITS rules", "", nil)
	if !reflect.DeepEqual(got, []string{"UCITS"}) {
		t.Errorf("expected pattern candidates, got %v", got)
	}
}

func TestConcepts(t *testing.T) {
	got := Concepts([]string{"TIR", "IRR", "NAV", " Acme "})
	if len(got) != 3 {
		t.Fatalf("expected 3 concepts, got %v", got)
	}
	if got[0].Key != "IRR" || got[0].Surface != "TIR" || !got[0].Known {
		t.Errorf("first surface should win: %+v", got[0])
	}
	if got[2].Key != "Acme" || got[2].Known {
		t.Errorf("unknown concept expected, got %+v", got[2])
	}
}

func termFake(proposal string, confidence string) *llmtest.Fake {
	return &llmtest.Fake{Parse: map[llm.Task]func(llm.Request) (string, error){
		llm.TaskTermTranslate: llmtest.Const(`{"term":"x","src_lang":"es","tgt_lang":"en","proposal":"` + proposal + `"}`),
		llm.TaskTermJudge:     llmtest.Const(`{"ok":true,"confidence":` + confidence + `,"reasons":[]}`),
	}}
}

func TestEnsurePreferred_ExistingEntrySkipsModel(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	if err := st.UpsertPreferred(ctx, store.Scope{}, "IRR", "en", "IRR"); err != nil {
		t.Fatal(err)
	}
	fake := termFake("unused", "1")
	r := NewResolver(st, fake.Service(), Options{})
	got, err := r.EnsurePreferred(ctx, Pair{Client: "acme", Domain: "Private Equity", ConceptKey: "IRR", Surface: "TIR", SrcLang: "es", TgtLang: "en"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "IRR" {
		t.Errorf("expected stored form, got %q", got)
	}
	if n := len(fake.Calls()); n != 0 {
		t.Errorf("expected no model calls, got %d", n)
	}
}

func TestEnsurePreferred_ProposesAndStores(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	fake := termFake("Valor liquidativo (NAV)", "0.9")
	r := NewResolver(st, fake.Service(), Options{})
	got, err := r.EnsurePreferred(ctx, Pair{Client: "acme", Domain: "Private Equity", ConceptKey: "NAV", Surface: "NAV", SrcLang: "en", TgtLang: "es"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "Valor liquidativo (NAV)" {
		t.Errorf("unexpected proposal %q", got)
	}
	pref, ok, err := st.FindPreferredFuzzy(ctx, "acme", "Private Equity", "es", "NAV")
	if err != nil || !ok || pref != got {
		t.Errorf("expected stored preferred, got %q %v %v", pref, ok, err)
	}
	if fake.Count(llm.TaskTermTranslate) != 1 || fake.Count(llm.TaskTermJudge) != 1 {
		t.Errorf("expected one proposal and one judgement, got %v", fake.Calls())
	}
}

func TestEnsurePreferred_LowConfidenceRetriesOnce(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	fake := termFake("Tasa interna", "0.3")
	var enriched int
	r := NewResolver(st, fake.Service(), Options{
		MinQuality: 0.75,
		Enrich: func(_ context.Context, terms []string, domain, client string) error {
			enriched++
			if len(terms) != 2 || client != "acme" {
				t.Errorf("unexpected enrichment call %v %q %q", terms, domain, client)
			}
			return errors.New("search offline")
		},
	})
	got, err := r.EnsurePreferred(ctx, Pair{Client: "acme", ConceptKey: "IRR", Surface: "IRR", SrcLang: "en", TgtLang: "es", Enrich: true})
	if err != nil {
		t.Fatal(err)
	}
	if enriched != 1 {
		t.Errorf("expected exactly one enrichment, got %d", enriched)
	}
	if fake.Count(llm.TaskTermTranslate) != 2 || fake.Count(llm.TaskTermJudge) != 2 {
		t.Errorf("expected one retry of proposal and judge")
	}
	if got != "Tasa interna" {
		t.Errorf("low-confidence proposal must still be stored, got %q", got)
	}
}

func TestEnsurePreferred_NoEnrichWhenDisabled(t *testing.T) {
	fake := termFake("Tasa interna", "0.1")
	called := false
	r := NewResolver(newTestStore(t), fake.Service(), Options{
		Enrich: func(context.Context, []string, string, string) error { called = true; return nil },
	})
	if _, err := r.EnsurePreferred(context.Background(), Pair{ConceptKey: "IRR", SrcLang: "en", TgtLang: "es"}); err != nil {
		t.Fatal(err)
	}
	if called || fake.Count(llm.TaskTermTranslate) != 1 {
		t.Error("enrichment must not run when the pair disallows it")
	}
}

func TestEnsurePreferred_BannedProposalDiscarded(t *testing.T) {
	st := newTestStore(t)
	fake := termFake("Gestor de Proyectos", "0.99")
	r := NewResolver(st, fake.Service(), Options{})
	_, err := r.EnsurePreferred(context.Background(), Pair{Client: "acme", ConceptKey: "GP", Surface: "GP", SrcLang: "en", TgtLang: "es"})
	if !errors.Is(err, store.ErrBannedTranslation) {
		t.Fatalf("expected banned error, got %v", err)
	}
	if _, ok, _ := st.FindPreferredFuzzy(context.Background(), "acme", "", "es", "GP"); ok {
		t.Error("banned proposal must not be stored")
	}
}

func TestEnsurePreferred_SchemaFailure(t *testing.T) {
	fake := &llmtest.Fake{Parse: map[llm.Task]func(llm.Request) (string, error){
		llm.TaskTermTranslate: llmtest.Const(`{"proposal": ""}`),
	}}
	r := NewResolver(newTestStore(t), fake.Service(), Options{})
	_, err := r.EnsurePreferred(context.Background(), Pair{ConceptKey: "NAV", SrcLang: "en", TgtLang: "fr"})
	if !errors.Is(err, llm.ErrSchema) {
		t.Errorf("expected schema failure, got %v", err)
	}
}

func TestRequestLangs(t *testing.T) {
	req := Request{SrcLang: "es", Targets: []string{"it", "en"}, Canonical: true}
	want := []string{"de", "en", "es", "fr", "it"}
	if got := req.Langs(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	req.Canonical = false
	if got := req.Langs(); !reflect.DeepEqual(got, []string{"en", "es", "it"}) {
		t.Errorf("unexpected langs %v", got)
	}
}

func TestResolve_IsolatesFailures(t *testing.T) {
	st := newTestStore(t)
	fake := &llmtest.Fake{Parse: map[llm.Task]func(llm.Request) (string, error){
		llm.TaskTermTranslate: func(req llm.Request) (string, error) {
			if strings.Contains(req.Prompt, "TARGET language German") {
				return llmtest.Fail("timeout")(req)
			}
			return `{"proposal":"form"}`, nil
		},
		llm.TaskTermJudge: llmtest.Const(`{"ok":true,"confidence":0.9}`),
	}}
	r := NewResolver(st, fake.Service(), Options{Concurrency: 3})
	rep := r.Resolve(context.Background(), Request{
		Client:    "acme",
		Domain:    "Private Equity",
		SrcLang:   "en",
		Targets:   []string{"es"},
		Concepts:  Concepts([]string{"NAV", "IRR"}),
		Canonical: true,
	})
	if len(rep.Failed) != 2 {
		t.Fatalf("expected the two German pairs to fail, got %+v", rep.Failed)
	}
	for _, f := range rep.Failed {
		if f.Lang != "de" || !errors.Is(f.Err, llm.ErrTransport) {
			t.Errorf("unexpected failure %+v", f)
		}
	}
	for _, lang := range []string{"en", "es", "fr"} {
		if len(rep.Preferred[lang]) != 2 {
			t.Errorf("expected both concepts resolved in %s, got %v", lang, rep.Preferred[lang])
		}
	}
}

type slowStore struct {
	inFlight, peak atomic.Int32
	mu             sync.Mutex
	rows           map[string]string
}

func (s *slowStore) FindPreferredFuzzy(context.Context, string, string, string, string) (string, bool, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		p := s.peak.Load()
		if n <= p || s.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	return "", false, nil
}

func (s *slowStore) UpsertPreferred(_ context.Context, _ store.Scope, key, lang, preferred string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[key+"/"+lang] = preferred
	return nil
}

func TestResolve_BoundedConcurrency(t *testing.T) {
	st := &slowStore{rows: map[string]string{}}
	fake := termFake("form", "1")
	r := NewResolver(st, fake.Service(), Options{Concurrency: 2})
	rep := r.Resolve(context.Background(), Request{
		SrcLang:   "en",
		Concepts:  Concepts([]string{"NAV", "IRR", "TVPI", "DPI"}),
		Canonical: true,
	})
	if len(rep.Failed) != 0 {
		t.Fatalf("unexpected failures %+v", rep.Failed)
	}
	if len(st.rows) != 16 {
		t.Errorf("expected 16 stored pairs, got %d", len(st.rows))
	}
	if p := st.peak.Load(); p > 2 {
		t.Errorf("expected at most 2 concurrent fills, saw %d", p)
	}
}

func TestValidate(t *testing.T) {
	rep := Validate("The capital call and the NAV rose.", map[string]string{
		"CAPITAL_CALL": "capital call",
		"NAV":          "nav",
		"IRR":          "IRR",
		"DPI":          "DP",
	})
	if rep.TotalTerms != 4 || rep.Coverage != 0.5 {
		t.Errorf("unexpected report %+v", rep)
	}
	if !reflect.DeepEqual(rep.MissingTerms, []string{"DPI", "IRR"}) {
		t.Errorf("unexpected missing terms %v", rep.MissingTerms)
	}
}

func TestValidate_EmptyGlossary(t *testing.T) {
	if rep := Validate("anything", nil); rep.Coverage != 1 || rep.TotalTerms != 0 {
		t.Errorf("expected vacuous coverage, got %+v", rep)
	}
}
