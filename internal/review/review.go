// Package review improves a draft in two independent passes and merges them.
// The adequacy reviewer compares the draft with its source; the fluency
// reviewer reads the draft alone. An editor call then merges both revisions
// into the final text of the segment.
package review

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/valpere/fintran/internal/llm"
	"github.com/valpere/fintran/internal/postprocess"
	"github.com/valpere/fintran/internal/prompt"
	"github.com/valpere/fintran/internal/qa"
)

const (
	adequacyTemperature = 0.0
	fluencyTemperature  = 0.3
	editTemperature     = 0.2
)

// AdequacyResult is the source-faithfulness verdict.
type AdequacyResult struct {
	OK      bool   `json:"ok"`
	Notes   string `json:"notes"`
	Revised string `json:"revised"`
}

// FluencyResult is the target-only style revision.
type FluencyResult struct {
	Revised string `json:"revised"`
	Notes   string `json:"notes"`
}

// Segment is a masked source segment with its draft.
type Segment struct {
	SrcLang  string
	TgtLang  string
	Domain   string
	Glossary string
	Source   string
	Draft    string
}

// Reviewer runs the reviewers and the merge editor on one model.
type Reviewer struct {
	llm   llm.Service
	model string
	log   *slog.Logger
}

func New(svc llm.Service, model string, logger *slog.Logger) *Reviewer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reviewer{llm: svc, model: model, log: logger}
}

// Adequacy checks the draft against the source.
func (r *Reviewer) Adequacy(ctx context.Context, seg Segment) (*AdequacyResult, error) {
	var out AdequacyResult
	err := r.llm.Parse(ctx, llm.Request{
		Task:  llm.TaskAdequacy,
		Model: r.model,
		Prompt: prompt.AdequacyReview(prompt.Adequacy{
			SrcLang:  seg.SrcLang,
			TgtLang:  seg.TgtLang,
			Domain:   seg.Domain,
			Glossary: seg.Glossary,
			Source:   seg.Source,
			Current:  seg.Draft,
		}),
		Temperature: adequacyTemperature,
	}, &out)
	if err != nil {
		return nil, err
	}
	out.Revised = postprocess.Clean(out.Revised)
	return &out, nil
}

// Fluency polishes the draft without looking at the source.
func (r *Reviewer) Fluency(ctx context.Context, seg Segment) (*FluencyResult, error) {
	var out FluencyResult
	err := r.llm.Parse(ctx, llm.Request{
		Task:        llm.TaskFluency,
		Model:       r.model,
		Prompt:      prompt.FluencyReview(prompt.Fluency{TgtLang: seg.TgtLang, Domain: seg.Domain, Current: seg.Draft}),
		Temperature: fluencyTemperature,
	}, &out)
	if err != nil {
		return nil, err
	}
	out.Revised = postprocess.Clean(out.Revised)
	return &out, nil
}

// Merge asks the editor to combine an accuracy-first and a fluency-first
// version. An empty answer keeps the accuracy version.
func (r *Reviewer) Merge(ctx context.Context, tgtLang, domain, accuracy, fluency string) (string, error) {
	merged, err := r.edit(ctx, tgtLang, domain, accuracy, fluency)
	if err != nil {
		return "", err
	}
	if merged == "" {
		r.log.Debug("editor returned empty text, keeping accuracy version", "lang", tgtLang)
		return accuracy, nil
	}
	return merged, nil
}

func (r *Reviewer) edit(ctx context.Context, tgtLang, domain, accuracy, fluency string) (string, error) {
	out, err := r.llm.Generate(ctx, llm.Request{
		Task:  llm.TaskEdit,
		Model: r.model,
		Prompt: prompt.Editor(prompt.Edit{
			TgtLang:      tgtLang,
			Domain:       domain,
			AdequacyText: accuracy,
			FluencyText:  fluency,
		}),
		Temperature: editTemperature,
	})
	if err != nil {
		return "", err
	}
	return postprocess.Clean(out), nil
}

// Review runs both reviewers on the draft concurrently and merges their
// revisions. A reviewer that proposes nothing contributes the draft itself.
func (r *Reviewer) Review(ctx context.Context, seg Segment) (string, error) {
	var (
		ade *AdequacyResult
		flu *FluencyResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ade, err = r.Adequacy(gctx, seg)
		return err
	})
	g.Go(func() error {
		var err error
		flu, err = r.Fluency(gctx, seg)
		return err
	})
	if err := g.Wait(); err != nil {
		return "", err
	}

	accuracy := seg.Draft
	if ade.Revised != "" {
		accuracy = ade.Revised
	}
	fluency := seg.Draft
	if flu.Revised != "" {
		fluency = flu.Revised
	}
	return r.Merge(ctx, seg.TgtLang, seg.Domain, accuracy, fluency)
}

// Repair re-merges a failing translation with explicit instructions: one
// line per missing preferred term on the accuracy side and a note to keep
// every number on the fluency side. An empty answer keeps text unchanged.
func (r *Reviewer) Repair(ctx context.Context, tgtLang, domain, text string, missing []string) (string, error) {
	accuracy := text
	if hints := qa.RepairHints(missing); hints != "" {
		accuracy = strings.Join([]string{text, hints}, "\n\n")
	}
	fluency := text + "\n\n" + qa.RepairNote
	fixed, err := r.edit(ctx, tgtLang, domain, accuracy, fluency)
	if err != nil {
		return "", err
	}
	if fixed == "" {
		return text, nil
	}
	return fixed, nil
}
