package markdown

import (
	"strings"
	"testing"
)

func TestToPlainText(t *testing.T) {
	md := "# Quarterly report\n\nThe **IRR** was 12.5% & the NAV rose.\n\n- Capital calls\n- Distributions\n"
	got := ToPlainText([]byte(md))

	if strings.ContainsAny(got, "<>*#") {
		t.Errorf("markup left in %q", got)
	}
	for _, want := range []string{"Quarterly report", "The IRR was 12.5% & the NAV rose.", "Capital calls", "Distributions"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in %q", want, got)
		}
	}
	if !strings.Contains(got, "Quarterly report\n\nThe IRR") {
		t.Errorf("paragraphs should stay separated by a blank line: %q", got)
	}
	if strings.Contains(got, "\n\n\n") {
		t.Errorf("blank line runs should be collapsed: %q", got)
	}
}

func TestStripHTMLTags(t *testing.T) {
	if got := StripHTMLTags(`<p class="x">a <b>b</b></p>`); got != "a b" {
		t.Errorf("unexpected %q", got)
	}
}

func TestIsMarkdown(t *testing.T) {
	for path, want := range map[string]bool{"a.md": true, "b.MARKDOWN": true, "c.txt": false, "d": false} {
		if got := IsMarkdown(path); got != want {
			t.Errorf("IsMarkdown(%q) = %v, want %v", path, got, want)
		}
	}
}
