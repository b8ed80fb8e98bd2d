package placeholder_test

import (
	"reflect"
	"strings"
	"testing"

	"github.com/valpere/fintran/internal/placeholder"
)

func TestMask_NoTerms(t *testing.T) {
	text := "Hello, world!"
	got, mapping := placeholder.Mask(text, nil)
	if got != text {
		t.Errorf("expected unchanged text, got %q", got)
	}
	if len(mapping) != 0 {
		t.Errorf("expected empty mapping, got %v", mapping)
	}
}

func TestMask_EntityRoundTrip(t *testing.T) {
	text := "Acme Capital raised $500M"
	masked, mapping := placeholder.Mask(text, []string{"Acme Capital"})

	if masked != "[[ENT_1]] raised $500M" {
		t.Errorf("unexpected masked text %q", masked)
	}
	if len(mapping) != 1 {
		t.Fatalf("expected mapping of size 1, got %v", mapping)
	}
	if got := placeholder.Unmask(masked, mapping); got != text {
		t.Errorf("expected %q, got %q", text, got)
	}
}

func TestMask_LiteralMarkerInSource(t *testing.T) {
	text := "See note [[ENT_1]] issued by Acme Capital."
	masked, mapping := placeholder.Mask(text, []string{"Acme Capital"})

	if masked != "See note [[ENT_1]] issued by [[ENT_2]]." {
		t.Errorf("unexpected masked text %q", masked)
	}
	if _, ok := mapping["[[ENT_1]]"]; ok {
		t.Errorf("marker already in the text must not be reused: %v", mapping)
	}
	if got := placeholder.Unmask(masked, mapping); got != text {
		t.Errorf("expected %q, got %q", text, got)
	}
}

func TestMask_LongestTermFirst(t *testing.T) {
	text := "Acme Capital Partners and Acme Capital are related."
	masked, mapping := placeholder.Mask(text, []string{"Acme Capital", "Acme Capital Partners"})

	if len(mapping) != 2 {
		t.Fatalf("expected 2 markers, got %v", mapping)
	}
	if mapping["[[ENT_1]]"] != "Acme Capital Partners" {
		t.Errorf("expected the longer name to win the first occurrence, got %q", mapping["[[ENT_1]]"])
	}
	if strings.Contains(masked, "Partners") {
		t.Errorf("longer term was split: %q", masked)
	}
	if got := placeholder.Unmask(masked, mapping); got != text {
		t.Errorf("round-trip failed: %q", got)
	}
}

func TestMask_CaseInsensitivePreservesLiteral(t *testing.T) {
	text := "ACME CAPITAL signed; Acme Capital paid."
	masked, mapping := placeholder.Mask(text, []string{"Acme Capital"})
	if strings.Contains(strings.ToLower(masked), "acme") {
		t.Errorf("expected all case variants masked, got %q", masked)
	}
	if got := placeholder.Unmask(masked, mapping); got != text {
		t.Errorf("expected exact restore %q, got %q", text, got)
	}
}

func TestMask_WholeWordOnly(t *testing.T) {
	text := "The GP fund, not GPS."
	masked, mapping := placeholder.Mask(text, []string{"GP"})
	if len(mapping) != 1 {
		t.Fatalf("expected 1 marker, got %v", mapping)
	}
	if !strings.Contains(masked, "GPS") {
		t.Errorf("substring of a longer word must not be masked: %q", masked)
	}
}

func TestMask_AccentedBoundary(t *testing.T) {
	text := "Société Générale et Société Généraleé"
	_, mapping := placeholder.Mask(text, []string{"Société Générale"})
	if len(mapping) != 1 {
		t.Errorf("expected only the standalone occurrence masked, got %v", mapping)
	}
}

func TestUnmask_Idempotent(t *testing.T) {
	text := "Fund Alpha beat Fund Beta."
	masked, mapping := placeholder.Mask(text, []string{"Fund Alpha", "Fund Beta"})
	once := placeholder.Unmask(masked, mapping)
	twice := placeholder.Unmask(once, mapping)
	if once != twice || once != text {
		t.Errorf("expected idempotent restore, got %q then %q", once, twice)
	}
}

func TestUnmask_NoMarkers(t *testing.T) {
	mapping := placeholder.Mapping{"[[ENT_1]]": "Acme"}
	if got := placeholder.Unmask("plain text", mapping); got != "plain text" {
		t.Errorf("expected unchanged text, got %q", got)
	}
}

func TestUnmask_TenOrMoreMarkers(t *testing.T) {
	terms := []string{"A1", "B2", "C3", "D4", "E5", "F6", "G7", "H8", "I9", "J10", "K11"}
	text := strings.Join(terms, " ")
	masked, mapping := placeholder.Mask(text, terms)
	if len(mapping) != len(terms) {
		t.Fatalf("expected %d markers, got %d", len(terms), len(mapping))
	}
	if got := placeholder.Unmask(masked, mapping); got != text {
		t.Errorf("expected %q, got %q", text, got)
	}
}

func TestRemask(t *testing.T) {
	mapping := placeholder.Mapping{"[[ENT_1]]": "Acme Capital", "[[ENT_2]]": "Acme Capital"}
	got := placeholder.Remask("Acme Capital invirtió.", mapping)
	if got != "[[ENT_1]] invirtió." {
		t.Errorf("expected lowest marker reused, got %q", got)
	}
}

func TestValidate(t *testing.T) {
	mapping := placeholder.Mapping{"[[ENT_1]]": "A", "[[ENT_2]]": "B", "[[ENT_3]]": "C"}
	missing := placeholder.Validate("[[ENT_2]] only", mapping)
	want := []string{"[[ENT_1]]", "[[ENT_3]]"}
	if !reflect.DeepEqual(missing, want) {
		t.Errorf("expected %v, got %v", want, missing)
	}
}

func TestMarkers(t *testing.T) {
	got := placeholder.Markers("x [[ENT_2]] y [[ENT_1]]")
	want := []string{"[[ENT_2]]", "[[ENT_1]]"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestInstructionHint(t *testing.T) {
	if !strings.Contains(placeholder.InstructionHint(), "[[ENT_n]]") {
		t.Error("hint should mention the marker format")
	}
}
