package segmenter_test

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/valpere/fintran/internal/segmenter"
)

// --- Split tests ---

func TestSplit_ShortText(t *testing.T) {
	text := "Hello, world!"
	segs := segmenter.Split(text, 100)
	if len(segs) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(segs))
	}
	if segs[0] != text {
		t.Errorf("expected %q, got %q", text, segs[0])
	}
}

func TestSplit_EmptyText(t *testing.T) {
	if segs := segmenter.Split("   \n\n  ", 100); len(segs) != 0 {
		t.Errorf("expected no segments, got %v", segs)
	}
}

func TestSplit_ParagraphsKeepOrder(t *testing.T) {
	text := "First paragraph.\n\nSecond paragraph.\n  \nThird paragraph."
	segs := segmenter.Split(text, 100)
	want := []string{"First paragraph.", "Second paragraph.", "Third paragraph."}
	if !reflect.DeepEqual(segs, want) {
		t.Errorf("expected %v, got %v", want, segs)
	}
}

func TestSplit_CRLFParagraphs(t *testing.T) {
	segs := segmenter.Split("One.\r\n\r\nTwo.", 100)
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d: %v", len(segs), segs)
	}
}

func TestSplit_SentencePacking(t *testing.T) {
	text := "First sentence ends here. Second sentence follows. Third sentence."
	segs := segmenter.Split(text, 52)
	want := []string{"First sentence ends here. Second sentence follows.", "Third sentence."}
	if !reflect.DeepEqual(segs, want) {
		t.Errorf("expected %v, got %v", want, segs)
	}
	for i, s := range segs {
		if utf8.RuneCountInString(s) > 52 {
			t.Errorf("segment %d exceeds bound: %q", i, s)
		}
	}
}

func TestSplit_OversizedSentenceKeptWhole(t *testing.T) {
	long := strings.Repeat("word ", 30) + "end."
	text := "Short one. " + long + " Tail."
	segs := segmenter.Split(text, 40)
	found := false
	for _, s := range segs {
		if s == strings.TrimSpace(long) {
			found = true
		}
	}
	if !found {
		t.Errorf("expected the oversized sentence as its own segment, got %v", segs)
	}
}

func TestSplit_Unlimited(t *testing.T) {
	text := strings.Repeat("Sentence. ", 500)
	if segs := segmenter.Split(text, 0); len(segs) != 1 {
		t.Errorf("expected 1 segment when maxChars=0, got %d", len(segs))
	}
}

func TestSplit_Deterministic(t *testing.T) {
	text := "A. B! C? D.\n\nE. F."
	first := segmenter.Split(text, 4)
	for i := 0; i < 5; i++ {
		if got := segmenter.Split(text, 4); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs: %v vs %v", i, got, first)
		}
	}
}

func TestSentences(t *testing.T) {
	got := segmenter.Sentences("El TIR fue de 12,5%. ¿Y el NAV? Subió!  Fin")
	want := []string{"El TIR fue de 12,5%.", "¿Y el NAV?", "Subió!", "Fin"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestSentences_DecimalNotSplit(t *testing.T) {
	got := segmenter.Sentences("NAV reached €2.4M in Q3.")
	if len(got) != 1 {
		t.Errorf("decimal point must not split a sentence: %v", got)
	}
}

// --- ExtractContext tests ---

func TestExtractContext_FewerWordsThanLimit(t *testing.T) {
	text := "short text"
	if ctx := segmenter.ExtractContext(text, 25); ctx != text {
		t.Errorf("expected %q, got %q", text, ctx)
	}
}

func TestExtractContext_DefaultWordCount(t *testing.T) {
	words := make([]string, 50)
	for i := range words {
		words[i] = "w"
	}
	ctx := segmenter.ExtractContext(strings.Join(words, " "), 0)
	if got := len(strings.Fields(ctx)); got != segmenter.DefaultContextWords {
		t.Errorf("expected %d words, got %d", segmenter.DefaultContextWords, got)
	}
}

func TestExtractContext_LastWordsCorrect(t *testing.T) {
	if ctx := segmenter.ExtractContext("alpha beta gamma delta epsilon", 3); ctx != "gamma delta epsilon" {
		t.Errorf("expected last 3 words, got %q", ctx)
	}
}
