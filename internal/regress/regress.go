// Package regress replays YAML fixtures through the pipeline and checks
// each target language against fixed quality thresholds.
//
// A fixture looks like:
//
//	client_id: qa_client
//	domain: Private Equity
//	targets: [en, fr, de]
//	glossary:
//	  IRR: {en: IRR, fr: TRI, de: IRR}
//	dnt: [Acme Capital]
//	cases:
//	  - text: "El TIR fue de 12,5%."
//	    src_lang: es
package regress

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/valpere/fintran/internal"
	"github.com/valpere/fintran/internal/orchestrator"
	"github.com/valpere/fintran/internal/qa"
	"github.com/valpere/fintran/internal/store"
)

const defaultClient = "qa_client"

// DefaultTargets are used by fixtures that name none.
var DefaultTargets = []string{"en", "fr", "de"}

// DefaultThresholds require every quantity and nearly every term.
var DefaultThresholds = Thresholds{NumMin: 1.0, TermMin: 0.98}

// Thresholds are the minimum numeric and term scores of a passing case.
// Domain alignment is reported but not checked.
type Thresholds struct {
	NumMin  float64 `yaml:"num_min"`
	TermMin float64 `yaml:"term_min"`
}

type Case struct {
	Text    string `yaml:"text"`
	SrcLang string `yaml:"src_lang"`
}

type Fixture struct {
	Name     string                       `yaml:"-"`
	ClientID string                       `yaml:"client_id"`
	Domain   string                       `yaml:"domain"`
	Targets  []string                     `yaml:"targets"`
	Glossary map[string]map[string]string `yaml:"glossary"`
	DNT      []string                     `yaml:"dnt"`
	Cases    []Case                       `yaml:"cases"`
	// Thresholds overrides DefaultThresholds when set.
	Thresholds *Thresholds `yaml:"thresholds"`
}

// Load reads every *.yaml and *.yml fixture of dir in name order.
func Load(dir string) ([]*Fixture, error) {
	var paths []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		m, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		paths = append(paths, m...)
	}
	sort.Strings(paths)

	fixtures := make([]*Fixture, 0, len(paths))
	for _, p := range paths {
		fx, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		fixtures = append(fixtures, fx)
	}
	return fixtures, nil
}

// LoadFile reads one fixture and fills its defaults.
func LoadFile(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("failed to parse fixture %s: %w", filepath.Base(path), err)
	}
	fx.Name = filepath.Base(path)
	if fx.ClientID == "" {
		fx.ClientID = defaultClient
	}
	if len(fx.Targets) == 0 {
		fx.Targets = DefaultTargets
	}
	if len(fx.Cases) == 0 {
		return nil, fmt.Errorf("fixture %s has no cases", fx.Name)
	}
	return &fx, nil
}

// Seeder is the persistence a fixture is seeded into.
type Seeder interface {
	UpsertPreferred(ctx context.Context, sc store.Scope, conceptKey, lang, preferred string) error
	AddDNT(ctx context.Context, client, term string) error
}

// Seed stores the fixture glossary in the global scope and its
// do-not-translate terms for the fixture client.
func Seed(ctx context.Context, st Seeder, fx *Fixture) error {
	keys := make([]string, 0, len(fx.Glossary))
	for k := range fx.Glossary {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		for lang, preferred := range fx.Glossary[key] {
			if err := st.UpsertPreferred(ctx, store.Scope{}, key, lang, preferred); err != nil {
				return fmt.Errorf("failed to seed %s/%s: %w", key, lang, err)
			}
		}
	}
	for _, term := range fx.DNT {
		if err := st.AddDNT(ctx, fx.ClientID, term); err != nil {
			return fmt.Errorf("failed to seed do-not-translate %q: %w", term, err)
		}
	}
	return nil
}

// Runner translates one document.
type Runner interface {
	Run(ctx context.Context, req internal.TranslationRequest) (*orchestrator.Result, error)
}

// Outcome is the verdict for one case in one language.
type Outcome struct {
	Fixture string
	Case    int
	Lang    string
	QA      qa.Result
	OK      bool
	Err     error
}

func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("[%s#%d][%s] error: %v", o.Fixture, o.Case+1, o.Lang, o.Err)
	}
	verdict := "FAIL"
	if o.OK {
		verdict = "OK"
	}
	return fmt.Sprintf("[%s#%d][%s] num=%.2f term=%.2f dom=%.2f -> %s",
		o.Fixture, o.Case+1, o.Lang, o.QA.NumericConsistency, o.QA.TermCoverage, o.QA.DomainScore, verdict)
}

// Run translates every case of fx with retrieval disabled and checks each
// target language. A case whose run fails yields one outcome per target
// carrying the error.
func Run(ctx context.Context, r Runner, fx *Fixture) []Outcome {
	th := DefaultThresholds
	if fx.Thresholds != nil {
		th = *fx.Thresholds
	}
	var out []Outcome
	for i, c := range fx.Cases {
		res, err := r.Run(ctx, internal.TranslationRequest{
			Client:      fx.ClientID,
			SourceText:  c.Text,
			SourceLang:  c.SrcLang,
			TargetLangs: fx.Targets,
			Domain:      fx.Domain,
		})
		for _, lang := range fx.Targets {
			o := Outcome{Fixture: fx.Name, Case: i, Lang: lang, Err: err}
			if err == nil {
				lr := res.Languages[lang]
				if lr == nil {
					o.Err = fmt.Errorf("no result for %s", lang)
				} else {
					o.QA = lr.QA
					o.OK = lr.QA.NumericConsistency >= th.NumMin && lr.QA.TermCoverage >= th.TermMin
				}
			}
			out = append(out, o)
		}
	}
	return out
}

// Failed counts the outcomes that are not OK.
func Failed(outcomes []Outcome) int {
	n := 0
	for _, o := range outcomes {
		if !o.OK {
			n++
		}
	}
	return n
}
