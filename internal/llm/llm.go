// Package llm is the language-service boundary: free-text generation and
// structured (JSON) extraction against Ollama or any OpenAI-compatible API.
//
// Every failure is typed. Network errors, timeouts, non-2xx statuses and
// malformed envelopes are *TransportError; an answer that cannot be decoded
// into the requested shape is *SchemaError. Adapters never retry.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/valpere/fintran/internal/postprocess"
)

// Task labels what a request is for. It travels into trace events and lets
// fakes dispatch on purpose instead of prompt text.
type Task string

const (
	TaskTranslate     Task = "translate"
	TaskAdequacy      Task = "adequacy"
	TaskFluency       Task = "fluency"
	TaskEdit          Task = "edit"
	TaskClassify      Task = "classify"
	TaskTermExtract   Task = "term_extract"
	TaskTermTranslate Task = "term_translate"
	TaskTermJudge     Task = "term_judge"
	TaskQANumeric     Task = "qa_numeric"
	TaskQADomain      Task = "qa_domain"
)

// Request is one call to the language service.
type Request struct {
	Task        Task
	Model       string
	Prompt      string
	Temperature float64
}

// Service generates text or decodes a structured answer into out.
type Service interface {
	Generate(ctx context.Context, req Request) (string, error)
	Parse(ctx context.Context, req Request, out any) error
}

// Validator is implemented by parse targets that have required fields.
type Validator interface {
	Validate() error
}

var (
	ErrTransport = errors.New("llm transport failure")
	ErrSchema    = errors.New("llm schema failure")
)

// TransportError reports that the service could not be reached or answered
// with something other than a well-formed response.
type TransportError struct {
	Op      string
	Model   string
	Status  int
	Timeout bool
	Err     error
}

func (e *TransportError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s", e.Op, e.Model)
	if e.Status != 0 {
		fmt.Fprintf(&sb, ": status %d", e.Status)
	}
	if e.Timeout {
		sb.WriteString(": timeout")
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	}
	return sb.String()
}

func (e *TransportError) Unwrap() []error { return []error{ErrTransport, e.Err} }

// SchemaError reports a structured answer that did not match the expected
// shape.
type SchemaError struct {
	Model string
	Raw   string
	Err   error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Model, e.Err)
}

func (e *SchemaError) Unwrap() []error { return []error{ErrSchema, e.Err} }

// Decode extracts the JSON object from a model answer and unmarshals it into
// out, running out's Validate method when it has one.
func Decode(model, text string, out any) error {
	raw := postprocess.JSON(text)
	if raw == "" {
		return &SchemaError{Model: model, Raw: text, Err: errors.New("no JSON object in answer")}
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return &SchemaError{Model: model, Raw: text, Err: err}
	}
	if v, ok := out.(Validator); ok {
		if err := v.Validate(); err != nil {
			return &SchemaError{Model: model, Raw: text, Err: err}
		}
	}
	return nil
}
