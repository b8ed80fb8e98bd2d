package review

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valpere/fintran/internal/llm"
	"github.com/valpere/fintran/internal/llm/llmtest"
	"github.com/valpere/fintran/internal/qa"
)

var seg = Segment{
	SrcLang:  "es",
	TgtLang:  "en",
	Domain:   "Private Equity",
	Glossary: "- irr: IRR",
	Source:   "El TIR fue de 12,5%.",
	Draft:    "The TIR was 12.5%.",
}

func TestReview_MergesBothRevisions(t *testing.T) {
	fake := &llmtest.Fake{
		Parse: map[llm.Task]func(llm.Request) (string, error){
			llm.TaskAdequacy: llmtest.Const(`{"ok": false, "notes": "term", "revised": "The IRR was 12.5%."}`),
			llm.TaskFluency:  llmtest.Const(`{"revised": "IRR stood at 12.5%.", "notes": ""}`),
		},
		Generate: map[llm.Task]func(llm.Request) (string, error){
			llm.TaskEdit: func(req llm.Request) (string, error) {
				if !strings.Contains(req.Prompt, "The IRR was 12.5%.") || !strings.Contains(req.Prompt, "IRR stood at 12.5%.") {
					t.Errorf("editor prompt lacks a reviewer version:\n%s", req.Prompt)
				}
				return "Here is the final text: The IRR stood at 12.5%.", nil
			},
		},
	}
	r := New(fake.Service(), "rev", nil)

	got, err := r.Review(context.Background(), seg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "The IRR stood at 12.5%." {
		t.Errorf("unexpected merge %q", got)
	}
	for _, task := range []llm.Task{llm.TaskAdequacy, llm.TaskFluency, llm.TaskEdit} {
		if fake.Count(task) != 1 {
			t.Errorf("expected one %s call, got %d", task, fake.Count(task))
		}
	}
}

func TestReview_EmptyRevisionsUseDraft(t *testing.T) {
	var editPrompt string
	fake := &llmtest.Fake{
		Parse: map[llm.Task]func(llm.Request) (string, error){
			llm.TaskAdequacy: llmtest.Const(`{"ok": true, "notes": "", "revised": ""}`),
		},
		Generate: map[llm.Task]func(llm.Request) (string, error){
			llm.TaskEdit: func(req llm.Request) (string, error) {
				editPrompt = req.Prompt
				return "", nil
			},
		},
	}
	got, err := New(fake.Service(), "rev", nil).Review(context.Background(), seg)
	if err != nil {
		t.Fatal(err)
	}
	if got != seg.Draft {
		t.Errorf("expected the draft back, got %q", got)
	}
	if strings.Count(editPrompt, seg.Draft) != 2 {
		t.Errorf("expected the draft in both editor slots:\n%s", editPrompt)
	}
}

func TestReview_ReviewersRunConcurrently(t *testing.T) {
	var inFlight, peak atomic.Int32
	slow := func(answer string) func(llm.Request) (string, error) {
		return func(llm.Request) (string, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(50 * time.Millisecond)
			inFlight.Add(-1)
			return answer, nil
		}
	}
	fake := &llmtest.Fake{
		Parse: map[llm.Task]func(llm.Request) (string, error){
			llm.TaskAdequacy: slow(`{"ok": true}`),
			llm.TaskFluency:  slow(`{"revised": ""}`),
		},
		Default: "done",
	}
	if _, err := New(fake.Service(), "rev", nil).Review(context.Background(), seg); err != nil {
		t.Fatal(err)
	}
	if peak.Load() != 2 {
		t.Errorf("expected both reviewers in flight together, peak was %d", peak.Load())
	}
}

func TestReview_ReviewerFailureSurfaces(t *testing.T) {
	fake := &llmtest.Fake{
		Parse: map[llm.Task]func(llm.Request) (string, error){
			llm.TaskFluency: llmtest.Fail("timeout"),
		},
	}
	_, err := New(fake.Service(), "rev", nil).Review(context.Background(), seg)
	if !errors.Is(err, llm.ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if fake.Count(llm.TaskEdit) != 0 {
		t.Error("editor must not run after a reviewer failure")
	}
}

func TestRepair(t *testing.T) {
	var prompt string
	fake := &llmtest.Fake{Generate: map[llm.Task]func(llm.Request) (string, error){
		llm.TaskEdit: func(req llm.Request) (string, error) {
			prompt = req.Prompt
			return "La tasa interna de retorno fue del 12,5%.", nil
		},
	}}
	r := New(fake.Service(), "rev", nil)
	got, err := r.Repair(context.Background(), "es", "Private Equity", "El TIR fue del 12,5%.", []string{"tasa interna de retorno"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "La tasa interna de retorno fue del 12,5%." {
		t.Errorf("unexpected repair %q", got)
	}
	for _, want := range []string{`Ensure term "tasa interna de retorno" appears.`, qa.RepairNote} {
		if !strings.Contains(prompt, want) {
			t.Errorf("repair prompt is missing %q", want)
		}
	}

	fake.Generate[llm.TaskEdit] = llmtest.Const("")
	got, err = r.Repair(context.Background(), "es", "Private Equity", "texto", []string{"x"})
	if err != nil || got != "texto" {
		t.Errorf("empty editor answer should keep the text, got %q %v", got, err)
	}
}
