// Package detector identifies the language of a text with lingua-go.
package detector

import (
	"slices"
	"strings"

	lingua "github.com/pemistahl/lingua-go"
)

// Supported lists the document languages, in default target order.
var Supported = []string{"en", "fr", "de", "es"}

// Fallback is the source language assumed when detection fails.
const Fallback = "es"

type Detector struct {
	detector lingua.LanguageDetector
	known    []string
}

// New returns a detector over every language lingua knows.
func New() *Detector {
	detector := lingua.NewLanguageDetectorBuilder().
		FromAllLanguages().
		Build()

	return &Detector{detector: detector}
}

// NewFor returns a detector restricted to the given ISO 639-1 codes.
// Unknown codes are ignored; with fewer than two usable codes the
// Supported set is used instead.
func NewFor(codes ...string) *Detector {
	var langs []lingua.Language
	var known []string
	for _, c := range codes {
		lang := lingua.GetLanguageFromIsoCode639_1(lingua.GetIsoCode639_1FromValue(strings.ToUpper(c)))
		if lang == lingua.Unknown {
			continue
		}
		langs = append(langs, lang)
		known = append(known, strings.ToLower(c))
	}
	if len(langs) < 2 {
		return NewFor(Supported...)
	}
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(langs...).
		Build()

	return &Detector{detector: detector, known: known}
}

// Knows reports whether code can be detected at all.
func (d *Detector) Knows(code string) bool {
	if d.known == nil {
		return lingua.GetIsoCode639_1FromValue(strings.ToUpper(code)) != lingua.UnknownIsoCode639_1
	}
	return slices.Contains(d.known, strings.ToLower(code))
}

func (d *Detector) Detect(text string) (lingua.Language, bool) {
	if text == "" {
		return lingua.Unknown, false
	}
	return d.detector.DetectLanguageOf(text)
}

// DetectISO returns the upper-case ISO 639-1 code of text.
func (d *Detector) DetectISO(text string) (string, bool) {
	lang, ok := d.Detect(text)
	if !ok {
		return "", false
	}
	return lang.IsoCode639_1().String(), true
}

// Source returns the lower-case code of text when it is one of Supported,
// and Fallback otherwise.
func (d *Detector) Source(text string) string {
	code, ok := d.DetectISO(strings.TrimSpace(text))
	if !ok {
		return Fallback
	}
	code = strings.ToLower(code)
	if !slices.Contains(Supported, code) {
		return Fallback
	}
	return code
}
