// Package domain holds the closed set of financial domains a document can be
// routed to, and the house style guide every prompt carries.
package domain

import "strings"

const (
	PrivateEquity    = "Private Equity"
	RealEstate       = "Real Estate"
	FiscalTax        = "Fiscal/Tax"
	WealthManagement = "Wealth Management"
)

// All lists the supported domains in display order.
var All = []string{PrivateEquity, RealEstate, FiscalTax, WealthManagement}

// StyleGuide is injected into every drafting prompt.
const StyleGuide = "Tone: formal, precise, concise. Audience: investors & regulatory.\n" +
	"Constraints: preserve numbers, percentages, dates and legal entity names. " +
	"Enforce preferred terms. Locale formats: en 1,234.56 | fr 1 234,56 | de 1.234,56 | es 1.234,56.\n" +
	"Avoid calques; prefer established industry phrasing. Honor do-not-translate list."

// Normalize maps a free-form label (user override or classifier output) to
// one of All. An exact case-insensitive match wins; otherwise keyword
// fallbacks apply, and anything unrecognised is Wealth Management.
func Normalize(label string) string {
	l := strings.ToLower(strings.TrimSpace(label))
	for _, d := range All {
		if strings.ToLower(d) == l {
			return d
		}
	}
	switch {
	case strings.Contains(l, "equity"):
		return PrivateEquity
	case containsAny(l, "estate", "rics", "cap rate"):
		return RealEstate
	case containsAny(l, "tax", "vat", "withholding", "fiscal"):
		return FiscalTax
	}
	return WealthManagement
}

// Valid reports whether label is exactly one of All.
func Valid(label string) bool {
	for _, d := range All {
		if d == label {
			return true
		}
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
