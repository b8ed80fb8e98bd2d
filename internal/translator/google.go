package translator

import (
	"context"
	"fmt"
	"html"
	"time"

	translate "cloud.google.com/go/translate"
	"golang.org/x/text/language"
	"google.golang.org/api/option"

	"github.com/valpere/fintran/internal/llm"
)

// GoogleService drafts segments with Google Cloud Translation. It ignores
// the glossary and reference snippets; reviewers enforce those afterwards.
type GoogleService struct {
	client *translate.Client
}

// NewGoogleService creates a client. With an empty credentials file the
// application default credentials are used; extra options are passed to
// the client as they are.
func NewGoogleService(ctx context.Context, credentialsFile string, extra ...option.ClientOption) (*GoogleService, error) {
	opts := []option.ClientOption{}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	opts = append(opts, extra...)

	client, err := translate.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return &GoogleService{client: client}, nil
}

func (s *GoogleService) Name() string {
	return "google"
}

func (s *GoogleService) Close() error {
	return s.client.Close()
}

func (s *GoogleService) Translate(ctx context.Context, req TranslateRequest) (*ServiceResult, error) {
	start := time.Now()

	targetLangTag, err := language.Parse(req.TargetLang)
	if err != nil {
		return nil, fmt.Errorf("invalid target language: %w", err)
	}
	opts := &translate.Options{Format: translate.Text}
	if req.SourceLang != "" && req.SourceLang != "auto" {
		sourceLangTag, err := language.Parse(req.SourceLang)
		if err != nil {
			return nil, fmt.Errorf("invalid source language: %w", err)
		}
		opts.Source = sourceLangTag
	}

	translations, err := s.client.Translate(ctx, []string{req.Text}, targetLangTag, opts)
	if err != nil {
		return nil, &llm.TransportError{Op: "google translate", Model: s.Name(), Err: err}
	}
	if len(translations) == 0 {
		return nil, &llm.SchemaError{Model: s.Name(), Err: fmt.Errorf("no translation returned")}
	}

	return &ServiceResult{
		ServiceName:    s.Name(),
		TranslatedText: html.UnescapeString(translations[0].Text),
		Latency:        time.Since(start),
	}, nil
}
