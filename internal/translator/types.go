// Package translator produces first drafts of masked segments. The LLM
// drafter carries the glossary, do-not-translate list, reference snippets
// and style guide in its prompt; the Google drafter is a plain MT engine
// whose draft still goes through review.
package translator

import (
	"context"
	"time"
)

// TranslateRequest is one masked segment to draft.
type TranslateRequest struct {
	Text       string   `json:"text"`
	SourceLang string   `json:"source_lang"`
	TargetLang string   `json:"target_lang"`
	Domain     string   `json:"domain"`
	Glossary   string   `json:"glossary,omitempty"`
	DNT        []string `json:"dnt,omitempty"`
	Snippets   []string `json:"snippets,omitempty"`
	// Previous is the tail of the preceding source segment.
	Previous string `json:"previous,omitempty"`
}

// ServiceResult is a draft and where it came from.
type ServiceResult struct {
	ServiceName    string            `json:"service_name"`
	TranslatedText string            `json:"translated_text"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	Latency        time.Duration     `json:"latency"`
}

// Drafter turns a masked segment into a first-draft translation.
type Drafter interface {
	Name() string
	Translate(ctx context.Context, req TranslateRequest) (*ServiceResult, error)
}
