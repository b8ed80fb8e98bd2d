// Package validator checks that a translation result is in the expected target language.
package validator

import (
	"fmt"
	"strings"

	"github.com/valpere/fintran/internal/detector"
	"github.com/valpere/fintran/internal/placeholder"
)

// minValidationLength is the minimum rune count required to attempt language detection.
// Shorter texts produce unreliable results and are accepted without validation.
const minValidationLength = 20

// Validator checks that a translation result is written in the expected target language.
// The underlying language detector is expensive to build; reuse the instance.
type Validator struct {
	det *detector.Detector
}

// New creates a Validator over det.
func New(det *detector.Detector) *Validator {
	return &Validator{det: det}
}

// IsValid returns true when translatedText appears to be written in targetLang.
//
// Short texts (fewer than minValidationLength runes after entity markers are
// removed), languages the detector cannot recognise and texts whose language
// cannot be determined pass without error. When the detected language differs
// from targetLang the returned error names both codes.
func (v *Validator) IsValid(translatedText, targetLang string) (bool, error) {
	if targetLang == "" || !v.det.Knows(targetLang) {
		return true, nil
	}

	text := strings.TrimSpace(translatedText)
	if text == "" {
		return false, fmt.Errorf("translation is empty")
	}
	for _, m := range placeholder.Markers(text) {
		text = strings.ReplaceAll(text, m, "")
	}

	if len([]rune(strings.TrimSpace(text))) < minValidationLength {
		return true, nil
	}

	detected, ok := v.det.DetectISO(text)
	if !ok {
		return true, nil
	}

	if !strings.EqualFold(detected, targetLang) {
		return false, fmt.Errorf("expected %s but detected %s", strings.ToLower(targetLang), strings.ToLower(detected))
	}

	return true, nil
}

// Warning returns the IsValid failure for segment index i as a message, or
// "" when the segment passes.
func (v *Validator) Warning(i int, translatedText, targetLang string) string {
	if ok, err := v.IsValid(translatedText, targetLang); !ok {
		return fmt.Sprintf("segment %d: %v", i+1, err)
	}
	return ""
}
