package translator

import (
	"context"
	"errors"
	"time"

	"github.com/valpere/fintran/internal/domain"
	"github.com/valpere/fintran/internal/llm"
	"github.com/valpere/fintran/internal/postprocess"
	"github.com/valpere/fintran/internal/prompt"
)

// LLMTranslator drafts segments with the language service.
type LLMTranslator struct {
	llm         llm.Service
	model       string
	temperature float64
}

func NewLLMTranslator(svc llm.Service, model string, temperature float64) *LLMTranslator {
	return &LLMTranslator{llm: svc, model: model, temperature: temperature}
}

func (s *LLMTranslator) Name() string {
	return "llm"
}

func (s *LLMTranslator) Translate(ctx context.Context, req TranslateRequest) (*ServiceResult, error) {
	start := time.Now()
	p := prompt.Translator(prompt.Translate{
		SrcLang:  req.SourceLang,
		TgtLang:  req.TargetLang,
		Domain:   req.Domain,
		Style:    domain.StyleGuide,
		Glossary: req.Glossary,
		DNT:      req.DNT,
		Snippets: req.Snippets,
		Previous: req.Previous,
		Source:   req.Text,
	})
	out, err := s.llm.Generate(ctx, llm.Request{
		Task:        llm.TaskTranslate,
		Model:       s.model,
		Prompt:      p,
		Temperature: s.temperature,
	})
	if err != nil {
		return nil, err
	}
	text := postprocess.Clean(out)
	if text == "" {
		return nil, &llm.SchemaError{Model: s.model, Raw: out, Err: errors.New("empty draft")}
	}
	return &ServiceResult{
		ServiceName:    s.Name(),
		TranslatedText: text,
		Metadata:       map[string]string{"model": s.model},
		Latency:        time.Since(start),
	}, nil
}
