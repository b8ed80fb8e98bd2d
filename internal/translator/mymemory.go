package translator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"time"

	"github.com/valpere/fintran/internal/llm"
)

const myMemoryURL = "https://api.mymemory.translated.net/get"

// MyMemoryService drafts segments with the free MyMemory API. Like the
// Google drafter it ignores the glossary; reviewers enforce it afterwards.
type MyMemoryService struct {
	email   string
	baseURL string
	client  *http.Client
}

// NewMyMemoryService returns a drafter. The email raises the daily quota;
// an empty baseURL selects the public endpoint.
func NewMyMemoryService(email, baseURL string) *MyMemoryService {
	if baseURL == "" {
		baseURL = myMemoryURL
	}
	return &MyMemoryService{
		email:   email,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *MyMemoryService) Name() string {
	return "mymemory"
}

func (s *MyMemoryService) Translate(ctx context.Context, req TranslateRequest) (*ServiceResult, error) {
	start := time.Now()

	if req.SourceLang == "" || req.SourceLang == "auto" {
		return nil, fmt.Errorf("mymemory needs an explicit source language")
	}

	q := url.Values{}
	q.Set("q", req.Text)
	q.Set("langpair", req.SourceLang+"|"+req.TargetLang)
	if s.email != "" {
		q.Set("de", s.email)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, &llm.TransportError{Op: "mymemory translate", Model: s.Name(), Timeout: ctx.Err() != nil, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &llm.TransportError{Op: "mymemory translate", Model: s.Name(), Status: resp.StatusCode}
	}

	var mymemResp struct {
		ResponseData struct {
			TranslatedText string  `json:"translatedText"`
			Match          float64 `json:"match"`
		} `json:"responseData"`
		ResponseStatus  json.Number `json:"responseStatus"`
		ResponseDetails string      `json:"responseDetails"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&mymemResp); err != nil {
		return nil, &llm.SchemaError{Model: s.Name(), Err: err}
	}

	// Quota and validation failures come back with HTTP 200 and the real
	// status in the body.
	if mymemResp.ResponseStatus.String() != "200" {
		return nil, &llm.TransportError{
			Op:    "mymemory translate",
			Model: s.Name(),
			Err:   fmt.Errorf("status %s: %s", mymemResp.ResponseStatus, mymemResp.ResponseDetails),
		}
	}
	text := html.UnescapeString(mymemResp.ResponseData.TranslatedText)
	if text == "" {
		return nil, &llm.SchemaError{Model: s.Name(), Err: errors.New("empty translation")}
	}

	match := min(max(mymemResp.ResponseData.Match, 0), 1)
	return &ServiceResult{
		ServiceName:    s.Name(),
		TranslatedText: text,
		Metadata:       map[string]string{"match": fmt.Sprintf("%.2f", match)},
		Latency:        time.Since(start),
	}, nil
}
