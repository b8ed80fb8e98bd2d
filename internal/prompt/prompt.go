// Package prompt renders the instructions sent to the language service.
// Every template is parsed once at init; rendering cannot fail for the
// plain-data structs defined here.
package prompt

import (
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/valpere/fintran/internal/placeholder"
)

var funcs = template.FuncMap{
	"lang": LanguageName,
	"clip": clip,
	"join": strings.Join,
}

func parse(name, text string) *template.Template {
	return template.Must(template.New(name).Funcs(funcs).Parse(text))
}

func render(t *template.Template, data any) string {
	var sb strings.Builder
	if err := t.Execute(&sb, data); err != nil {
		panic(fmt.Sprintf("prompt %s: %v", t.Name(), err))
	}
	return sb.String()
}

// LanguageName returns the English name of an ISO 639-1 code ("es" →
// "Spanish"). Unknown codes are returned unchanged.
func LanguageName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Languages().Name(tag); name != "" {
		return name
	}
	return code
}

// clip cuts s to at most n runes.
func clip(n int, s string) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Translate is the data for the segment drafting prompt.
type Translate struct {
	SrcLang  string
	TgtLang  string
	Domain   string
	Style    string
	Glossary string
	DNT      []string
	Snippets []string
	Previous string
	Source   string
}

var translateTmpl = parse("translate", `You are a senior financial translator working from {{lang .SrcLang}} into {{lang .TgtLang}}.
Domain: {{.Domain}}

Style guide:
{{.Style}}
{{if .Glossary}}
Mandatory glossary (always use the preferred form on the right):
{{.Glossary}}
{{end}}{{if .DNT}}
Never translate these strings: {{range $i, $t := .DNT}}{{if $i}}, {{end}}"{{$t}}"{{end}}
{{end}}{{if .Snippets}}
Reference material from the same domain (for terminology only, do not copy):
{{range .Snippets}}---
{{.}}
{{end}}{{end}}{{if .Previous}}
The previous segment ended with: "{{.Previous}}"
{{end}}
Rules:
- Keep every number, percentage, currency amount and multiplier exactly as in the source.
- `+placeholder.InstructionHint()+`
- Return only the translation, with no preamble and no notes.

SOURCE ({{lang .SrcLang}}):
{{.Source}}`)

// Translator renders the first-draft prompt for one segment.
func Translator(d Translate) string { return render(translateTmpl, d) }

// Adequacy is the data for the source-faithfulness reviewer.
type Adequacy struct {
	SrcLang  string
	TgtLang  string
	Domain   string
	Glossary string
	Source   string
	Current  string
}

var adequacyTmpl = parse("adequacy", `Role: financial translation reviewer (adequacy).
Compare the {{lang .TgtLang}} TRANSLATION with the {{lang .SrcLang}} SOURCE for the {{.Domain}} domain.
Check meaning, omissions, additions, numbers and terminology.
{{if .Glossary}}
Preferred terms that must appear:
{{.Glossary}}
{{end}}
`+placeholder.InstructionHint()+`

Return JSON only: {"ok": true|false, "notes": "...", "revised": "<full corrected translation, or empty if ok>"}

SOURCE:
{{.Source}}

TRANSLATION:
{{.Current}}`)

// AdequacyReview renders the adequacy reviewer prompt.
func AdequacyReview(d Adequacy) string { return render(adequacyTmpl, d) }

// Fluency is the data for the target-only fluency reviewer.
type Fluency struct {
	TgtLang string
	Domain  string
	Current string
}

var fluencyTmpl = parse("fluency", `Role: native {{lang .TgtLang}} copy editor for {{.Domain}} publications.
Improve the TEXT so it reads as natural, idiomatic {{lang .TgtLang}} prose.
Do not change any number, term in the glossary or meaning.
`+placeholder.InstructionHint()+`

Return JSON only: {"revised": "<full improved text>", "notes": "..."}

TEXT:
{{.Current}}`)

// FluencyReview renders the fluency reviewer prompt.
func FluencyReview(d Fluency) string { return render(fluencyTmpl, d) }

// Edit is the data for the merge editor.
type Edit struct {
	TgtLang      string
	Domain       string
	AdequacyText string
	FluencyText  string
}

var editTmpl = parse("edit", `You are the final {{lang .TgtLang}} editor for a {{.Domain}} document.
Two reviewers produced the versions below. Merge them into one final text that keeps
the accuracy of VERSION A and the fluency of VERSION B.
Follow any instruction lines that appear after a version.
Keep every number exactly. `+placeholder.InstructionHint()+`
Return only the final text.

VERSION A (accuracy):
{{.AdequacyText}}

VERSION B (fluency):
{{.FluencyText}}`)

// Editor renders the merge prompt.
func Editor(d Edit) string { return render(editTmpl, d) }

var classifyTmpl = parse("classify", `Classify the PRIMARY financial domain of the text into one of: {{join .Labels ", "}}. Answer with the label ONLY.

TEXT:
{{clip 2000 .Text}}`)

// Classify renders the domain classification prompt.
func Classify(text string, labels []string) string {
	return render(classifyTmpl, struct {
		Text   string
		Labels []string
	}{text, labels})
}

var termExtractTmpl = parse("term_extract", `You are a financial terminology spotter.
Goal: extract domain-relevant KEY TERMS from the SOURCE. Prefer acronyms, ratios, regulatory names, metrics, named instruments and idioms.

Guidelines:
- Keep only the most salient terms, at most {{.TopK}}.
- Include acronyms in their original casing and multi-word expressions (e.g. "withholding tax", "capital call").
- Exclude generic words, stopwords and isolated numbers, dates or currencies.
- Ignore [[ENT_n]] markers.
- Keep the surface form seen in the source.
- Output JSON only: {"terms": ["..."]}

Expected domain: {{.Domain}}
SOURCE:
{{clip 6000 .Text}}`)

// TermExtract renders the term spotter prompt.
func TermExtract(domain, text string, topK int) string {
	return render(termExtractTmpl, struct {
		Domain, Text string
		TopK         int
	}{domain, text, topK})
}

var termTranslateTmpl = parse("term_translate", `You are a financial terminology adapter.
Given a SOURCE term in {{lang .Src}} and a TARGET language {{lang .Tgt}}, output ONE preferred target-language form.

Rules:
- If an established acronym exists in {{lang .Tgt}}, prefer "Long form (ACRONYM)".
- Use industry-standard casing and diacritics. No extra notes.
- Return JSON only: {"term": "{{.Term}}", "src_lang": "{{.Src}}", "tgt_lang": "{{.Tgt}}", "proposal": "..."}`)

// TermTranslate renders the term proposal prompt.
func TermTranslate(term, srcLang, tgtLang string) string {
	return render(termTranslateTmpl, struct{ Term, Src, Tgt string }{clip(120, term), srcLang, tgtLang})
}

var termJudgeTmpl = parse("term_judge", `You are a financial term auditor.
Judge if TARGET is an appropriate preferred form for SOURCE (in {{lang .Src}}) when translated to {{lang .Tgt}}.

Return JSON only: {"ok": true|false, "confidence": 0..1, "reasons": ["..."]}

SOURCE: {{.Source}}
SOURCE_LANG: {{.Src}}
TARGET_LANG: {{.Tgt}}
TARGET: {{.Target}}`)

// TermJudge renders the term quality judge prompt.
func TermJudge(source, srcLang, tgtLang, target string) string {
	return render(termJudgeTmpl, struct{ Source, Src, Tgt, Target string }{
		clip(120, source), srcLang, tgtLang, clip(200, target),
	})
}

var numericAuditTmpl = parse("numeric_audit", `Role: financial translation QA referee.
Task: check that all QUANTITIES in SOURCE are preserved in TARGET.
- Consider percentages, currencies (€, $, £), magnitudes k/M/B/bn/mm and multipliers such as 1.8x.
- Locale formatting and currency symbol position may change.
- Units and magnitude MUST remain identical.

Return JSON only: {"ok": true|false, "matched_ratio": 0..1, "confidence": 0..1, "issues": ["..."]}

SOURCE:
{{clip 4000 .Source}}

TARGET:
{{clip 4000 .Target}}`)

// NumericAudit renders the model-based numeric referee prompt.
func NumericAudit(source, target string) string {
	return render(numericAuditTmpl, struct{ Source, Target string }{source, target})
}

var domainAuditTmpl = parse("domain_audit", `Role: financial domain auditor.
Decide if the TEXT aligns with the domain "{{.Domain}}".

Guidance:
- Private Equity: NAV, IRR, TVPI, DPI, MOIC, capital calls, distributions, dry powder.
- Real Estate: cap rate, leases, NOI, LTV, DSCR, WAULT, rent roll, valuation.
- Fiscal/Tax: VAT, withholding, treaties, BEPS, transfer pricing, CFC, permanent establishment.
- Wealth Management: UCITS, MiFID, KID/PRIIPs, TER, Sharpe, retail investor disclosures.

Return JSON only: {"domain": "{{.Domain}}", "aligned": true|false, "confidence": 0..1, "cues": ["..."]}

TEXT:
{{clip 4000 .Text}}`)

// DomainAudit renders the model-based domain referee prompt.
func DomainAudit(domain, text string) string {
	return render(domainAuditTmpl, struct{ Domain, Text string }{domain, text})
}
