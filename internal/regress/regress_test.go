package regress

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/valpere/fintran/internal"
	"github.com/valpere/fintran/internal/orchestrator"
	"github.com/valpere/fintran/internal/qa"
	"github.com/valpere/fintran/internal/store"
)

const fixtureYAML = `client_id: fund_a
domain: Private Equity
targets: [en, fr]
glossary:
  IRR: {en: IRR, fr: TRI}
dnt: [Acme Capital]
cases:
  - text: "El TIR fue de 12,5%."
    src_lang: es
  - text: "Acme Capital invirtió €2M."
`

func writeFixture(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "b.yaml", fixtureYAML)
	writeFixture(t, dir, "a.yml", "cases:\n  - text: hola\n")
	writeFixture(t, dir, "notes.txt", "ignored")

	fxs, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fxs) != 2 || fxs[0].Name != "a.yml" || fxs[1].Name != "b.yaml" {
		t.Fatalf("unexpected fixtures %+v", fxs)
	}
	a, b := fxs[0], fxs[1]
	if a.ClientID != defaultClient || strings.Join(a.Targets, ",") != "en,fr,de" {
		t.Errorf("expected defaults, got %+v", a)
	}
	if b.ClientID != "fund_a" || b.Glossary["IRR"]["fr"] != "TRI" || len(b.Cases) != 2 || b.Cases[0].SrcLang != "es" {
		t.Errorf("unexpected fixture %+v", b)
	}
}

func TestLoadFile_NoCases(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, dir, "empty.yaml", "client_id: x\n")
	if _, err := LoadFile(filepath.Join(dir, "empty.yaml")); err == nil {
		t.Error("expected error for a fixture without cases")
	}
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	st, err := store.New(filepath.Join(t.TempDir(), "regress.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	dir := t.TempDir()
	writeFixture(t, dir, "f.yaml", fixtureYAML)
	fx, err := LoadFile(filepath.Join(dir, "f.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if err := Seed(ctx, st, fx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, fr, err := st.GlossaryBlock(ctx, "fund_a", "Private Equity", "fr")
	if err != nil || fr["IRR"] != "TRI" {
		t.Errorf("expected global TRI, got %v %v", fr, err)
	}
	dnt, err := st.DNTList(ctx, "fund_a")
	if err != nil || len(dnt) != 1 || dnt[0] != "Acme Capital" {
		t.Errorf("unexpected dnt %v %v", dnt, err)
	}
}

type fakeRunner struct {
	reqs []internal.TranslationRequest
	fn   func(req internal.TranslationRequest) (*orchestrator.Result, error)
}

func (f *fakeRunner) Run(_ context.Context, req internal.TranslationRequest) (*orchestrator.Result, error) {
	f.reqs = append(f.reqs, req)
	return f.fn(req)
}

func TestRun(t *testing.T) {
	fx := &Fixture{
		Name:     "pe.yaml",
		ClientID: "fund_a",
		Domain:   "Private Equity",
		Targets:  []string{"en", "fr"},
		Cases:    []Case{{Text: "uno", SrcLang: "es"}, {Text: "dos"}},
	}
	r := &fakeRunner{fn: func(req internal.TranslationRequest) (*orchestrator.Result, error) {
		if req.SourceText == "dos" {
			return nil, errors.New("llm down")
		}
		return &orchestrator.Result{Languages: map[string]*orchestrator.LanguageResult{
			"en": {QA: qa.Result{NumericConsistency: 1, TermCoverage: 1, DomainScore: 0.6}},
			"fr": {QA: qa.Result{NumericConsistency: 0.5, TermCoverage: 1}},
		}}, nil
	}}

	out := Run(context.Background(), r, fx)
	if len(out) != 4 {
		t.Fatalf("expected four outcomes, got %d", len(out))
	}
	if !out[0].OK || out[1].OK || out[2].Err == nil || out[3].Err == nil {
		t.Errorf("unexpected outcomes %+v", out)
	}
	if Failed(out) != 3 {
		t.Errorf("expected three failures, got %d", Failed(out))
	}
	if got := out[0].String(); got != "[pe.yaml#1][en] num=1.00 term=1.00 dom=0.60 -> OK" {
		t.Errorf("unexpected line %q", got)
	}
	if req := r.reqs[0]; req.Client != "fund_a" || req.Domain != "Private Equity" || req.SourceLang != "es" || req.UseRAG {
		t.Errorf("unexpected request %+v", req)
	}
}

func TestRun_FixtureThresholds(t *testing.T) {
	fx := &Fixture{
		Name:       "loose.yaml",
		Targets:    []string{"en"},
		Cases:      []Case{{Text: "uno"}},
		Thresholds: &Thresholds{NumMin: 0.5, TermMin: 0.5},
	}
	r := &fakeRunner{fn: func(internal.TranslationRequest) (*orchestrator.Result, error) {
		return &orchestrator.Result{Languages: map[string]*orchestrator.LanguageResult{
			"en": {QA: qa.Result{NumericConsistency: 0.5, TermCoverage: 0.6}},
		}}, nil
	}}
	if out := Run(context.Background(), r, fx); Failed(out) != 0 {
		t.Errorf("expected pass with fixture thresholds, got %+v", out)
	}
}
