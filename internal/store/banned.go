package store

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBannedTranslation is returned when a preferred form contains a
// rendering known to be wrong for the concept in that language.
var ErrBannedTranslation = errors.New("banned translation")

// banned maps lang → concept key → forbidden substrings.
var banned = map[string]map[string][]string{
	"es": {
		"GP":  {"Gestor de Proyectos"},
		"DPI": {"Índice de Precios al Consumidor", "IPC"},
	},
	"fr": {},
	"de": {},
}

// CheckBanned returns an error wrapping ErrBannedTranslation when preferred
// contains a forbidden rendering of conceptKey in lang.
func CheckBanned(lang, conceptKey, preferred string) error {
	lower := strings.ToLower(normalizeText(preferred))
	for _, bad := range banned[lang][conceptKey] {
		if strings.Contains(lower, strings.ToLower(normalizeText(bad))) {
			return fmt.Errorf("%w: %s/%s must not contain %q", ErrBannedTranslation, lang, conceptKey, bad)
		}
	}
	return nil
}
