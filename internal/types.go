package internal

import "time"

// TranslationRequest is one document submitted for translation. Empty
// SourceLang means auto-detect; empty TargetLangs means every supported
// language except the source; empty Domain means classify.
type TranslationRequest struct {
	ID          string    `json:"id" yaml:"id"`
	Client      string    `json:"client" yaml:"client"`
	SourceText  string    `json:"source_text" yaml:"source_text"`
	SourceLang  string    `json:"source_lang,omitempty" yaml:"source_lang,omitempty"`
	TargetLangs []string  `json:"target_langs,omitempty" yaml:"target_langs,omitempty"`
	Domain      string    `json:"domain,omitempty" yaml:"domain,omitempty"`
	UseRAG      bool      `json:"use_rag" yaml:"use_rag"`
	Timestamp   time.Time `json:"timestamp" yaml:"-"`
}
