// Package embedding turns text into fixed-size vectors for translation
// memory and context retrieval lookups.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/valpere/fintran/internal/llm"
	"github.com/valpere/fintran/internal/ratelimit"
	"github.com/valpere/fintran/internal/trace"
)

// maxInputChars bounds each text sent for embedding.
const maxInputChars = 3000

// Embedder returns one vector per input text, in input order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// OllamaEmbedder calls Ollama's batch /api/embed endpoint.
type OllamaEmbedder struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaEmbedder returns an embedder for baseURL (default
// http://localhost:11434) and model (default nomic-embed-text).
func NewOllamaEmbedder(baseURL, model string) *OllamaEmbedder {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	return &OllamaEmbedder{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{},
	}
}

func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body := map[string]any{"model": e.model, "input": clip(texts)}
	var resp struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := post(ctx, e.client, e.model, e.baseURL+"/api/embed", nil, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, &llm.TransportError{Op: "embed", Model: e.model,
			Err: fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings))}
	}
	return resp.Embeddings, nil
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewOpenAIEmbedder returns an embedder for baseURL (default
// https://api.openai.com/v1) and model (default text-embedding-3-large).
func NewOpenAIEmbedder(apiKey, baseURL, model string) *OpenAIEmbedder {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = "text-embedding-3-large"
	}
	return &OpenAIEmbedder{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  &http.Client{},
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if e.apiKey == "" {
		return nil, &llm.TransportError{Op: "embed", Model: e.model, Err: errors.New("API key required")}
	}
	body := map[string]any{"model": e.model, "input": clip(texts)}
	var resp struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	headers := map[string]string{"Authorization": "Bearer " + e.apiKey}
	if err := post(ctx, e.client, e.model, e.baseURL+"/embeddings", headers, body, &resp); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, &llm.TransportError{Op: "embed", Model: e.model, Err: fmt.Errorf("embedding index %d out of range", d.Index)}
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, &llm.TransportError{Op: "embed", Model: e.model, Err: fmt.Errorf("missing embedding %d", i)}
		}
	}
	return out, nil
}

// Limited applies the shared embedding budget and a per-call timeout.
type Limited struct {
	next    Embedder
	limiter ratelimit.Limiter
	timeout time.Duration
}

func NewLimited(next Embedder, limiter ratelimit.Limiter, timeout time.Duration) *Limited {
	if limiter == nil {
		limiter = ratelimit.Unlimited()
	}
	return &Limited{next: next, limiter: limiter, timeout: timeout}
}

func (l *Limited) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, &llm.TransportError{Op: "embed", Err: err}
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	trace.FromContext(ctx, trace.Nop{}).Log(trace.KindEmbed, map[string]any{"texts": len(texts)})
	return l.next.Embed(ctx, texts)
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or their lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func clip(texts []string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		if utf8.RuneCountInString(t) > maxInputChars {
			t = string([]rune(t)[:maxInputChars])
		}
		out[i] = t
	}
	return out
}

func post(ctx context.Context, client *http.Client, model, url string, headers map[string]string, body, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return &llm.TransportError{Op: "embed", Model: model, Err: fmt.Errorf("marshaling request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return &llm.TransportError{Op: "embed", Model: model, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return &llm.TransportError{Op: "embed", Model: model, Timeout: errors.Is(err, context.DeadlineExceeded), Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &llm.TransportError{Op: "embed", Model: model, Status: resp.StatusCode, Err: errors.New(string(bytes.TrimSpace(snippet)))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &llm.TransportError{Op: "embed", Model: model, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}
