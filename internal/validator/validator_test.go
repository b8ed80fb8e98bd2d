package validator

import (
	"strings"
	"testing"

	"github.com/valpere/fintran/internal/detector"
)

const englishMemo = "The fund called 40% of committed capital during the quarter."

func TestIsValid(t *testing.T) {
	v := New(detector.New())

	tests := []struct {
		name      string
		text      string
		lang      string
		wantValid bool
		wantErr   bool
	}{
		{"no target language", "Some translated text", "", true, false},
		{"empty translation", "", "en", false, true},
		{"blank translation", "   ", "en", false, true},
		{"below validation length", "NAV up", "en", true, false},
		{"matching language", englishMemo, "en", true, false},
		{"upper-case target", englishMemo, "EN", true, false},
		{"german matches", "Der Fonds hat im Quartal 40% des zugesagten Kapitals abgerufen.", "de", true, false},
		{"english where french expected", englishMemo, "fr", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, err := v.IsValid(tt.text, tt.lang)
			if (err != nil) != tt.wantErr {
				t.Errorf("IsValid error = %v, wantErr %v", err, tt.wantErr)
			}
			if valid != tt.wantValid {
				t.Errorf("IsValid = %v, want %v", valid, tt.wantValid)
			}
		})
	}
}

func TestIsValid_IgnoresEntityMarkers(t *testing.T) {
	v := New(detector.New())

	valid, err := v.IsValid("[[ENT_0]] [[ENT_1]] [[ENT_2]] [[ENT_3]] ok", "de")
	if err != nil || !valid {
		t.Errorf("markers alone should not be validated, got %v %v", valid, err)
	}
}

func TestIsValid_UnknownToRestrictedDetector(t *testing.T) {
	v := New(detector.NewFor(detector.Supported...))

	text := "This is a longer piece of text that should be detected as English."
	valid, err := v.IsValid(text, "it")
	if err != nil || !valid {
		t.Errorf("a language the detector cannot see should pass, got %v %v", valid, err)
	}
}

func TestWarning(t *testing.T) {
	v := New(detector.NewFor(detector.Supported...))

	english := "This is a longer piece of text that should be detected as English."
	if w := v.Warning(0, english, "en"); w != "" {
		t.Errorf("expected no warning, got %q", w)
	}
	w := v.Warning(2, english, "fr")
	if !strings.HasPrefix(w, "segment 3: expected fr but detected en") {
		t.Errorf("unexpected warning %q", w)
	}
}
