// Package concept maps surface forms of financial terms in any supported
// language to one stable concept key, so "TIR", "TRI" and "IRR" share a
// glossary row.
package concept

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// aliases maps a normalised surface to its canonical key. English keys are
// used where one exists.
var aliases = map[string]string{
	// private equity
	"irr": "IRR", "tir": "IRR", "tri": "IRR",
	"tvpi": "TVPI",
	"dpi":  "DPI",
	"moic": "MOIC",
	"nav":  "NAV", "vni": "NAV", "vna": "NAV",
	"gp": "GP", "generalpartner": "GP", "sociogeneral": "GP",
	"drypowder": "Dry powder",

	// fx
	"fx": "FX", "tipodecambio": "FX", "devises": "FX", "waehrung": "FX", "wahrung": "FX",

	// real estate
	"caprate": "cap rate", "tauxdecapitalisation": "cap rate", "kapitalisierungsrate": "cap rate",
	"noi": "NOI", "rbe": "NOI",
	"dscr":  "DSCR",
	"ltv":   "LTV",
	"wault": "WAULT",

	// tax
	"vat": "VAT", "tva": "VAT", "mwst": "VAT",
	"withholdingtax": "withholding tax", "retenuealasource": "withholding tax", "quellensteuer": "withholding tax",

	// wealth management
	"ucits": "UCITS", "opcvm": "UCITS", "ogaw": "UCITS",
	"mifid":  "MiFID",
	"priips": "PRIIPs",
	"kid":    "KID",
}

var (
	reNonWord = regexp.MustCompile(`[^\p{L}\p{N}_]+`)
	reAcronym = regexp.MustCompile(`^[A-Z]{2,6}$`)
)

// Normalize lowercases s, folds diacritics to their base letters and drops
// every non-word character.
func Normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}
	return reNonWord.ReplaceAllString(s, "")
}

// Canonical returns the concept key for surface and whether it is a known
// concept. Alias table hits and 2-6 letter all-caps acronyms are known; any
// other surface is returned trimmed and flagged unknown.
func Canonical(surface string) (string, bool) {
	trimmed := strings.TrimSpace(surface)
	k := Normalize(surface)
	if k == "" {
		return trimmed, false
	}
	if key, ok := aliases[k]; ok {
		return key, true
	}
	if reAcronym.MatchString(trimmed) {
		return trimmed, true
	}
	return trimmed, false
}

// Key is Canonical without the known flag.
func Key(surface string) string {
	k, _ := Canonical(surface)
	return k
}

// IsAcronym reports whether s is a 2-6 letter all-caps token.
func IsAcronym(s string) bool {
	return reAcronym.MatchString(strings.TrimSpace(s))
}
