package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/valpere/fintran/internal/ratelimit"
	"github.com/valpere/fintran/internal/trace"
)

type domainAnswer struct {
	Domain     string  `json:"domain"`
	Confidence float64 `json:"confidence"`
}

func (d *domainAnswer) Validate() error {
	if d.Domain == "" {
		return errors.New("domain is required")
	}
	return nil
}

func TestOllamaClient_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Stream {
			t.Error("stream must be false")
		}
		if req.Format != "" {
			t.Errorf("generate must not force a format, got %q", req.Format)
		}
		json.NewEncoder(w).Encode(ollamaResponse{Response: "The IRR was 12.5%."})
	}))
	defer server.Close()

	c := NewOllamaClient(server.URL)
	got, err := c.Generate(context.Background(), Request{Model: "m", Prompt: "p"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "The IRR was 12.5%." {
		t.Errorf("expected translation, got %q", got)
	}
}

func TestOllamaClient_Parse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ollamaRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.Format != "json" {
			t.Errorf("expected json format, got %q", req.Format)
		}
		json.NewEncoder(w).Encode(ollamaResponse{Response: `{"domain":"Real Estate","confidence":0.8}`})
	}))
	defer server.Close()

	var out domainAnswer
	if err := NewOllamaClient(server.URL).Parse(context.Background(), Request{Model: "m"}, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Domain != "Real Estate" || out.Confidence != 0.8 {
		t.Errorf("unexpected parse result %+v", out)
	}
}

func TestOllamaClient_StatusIsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewOllamaClient(server.URL).Generate(context.Background(), Request{Model: "m"})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	var te *TransportError
	if !errors.As(err, &te) || te.Status != http.StatusNotFound {
		t.Errorf("expected status 404 in error, got %v", err)
	}
	if errors.Is(err, ErrSchema) {
		t.Error("transport error must not match ErrSchema")
	}
}

func TestParse_SchemaErrors(t *testing.T) {
	tests := []struct {
		name   string
		answer string
	}{
		{"no json", "I think it is real estate"},
		{"bad json", `{"domain": }`},
		{"missing field", `{"confidence": 0.4}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(ollamaResponse{Response: tt.answer})
			}))
			defer server.Close()

			var out domainAnswer
			err := NewOllamaClient(server.URL).Parse(context.Background(), Request{Model: "m"}, &out)
			if !errors.Is(err, ErrSchema) {
				t.Fatalf("expected schema error, got %v", err)
			}
			if errors.Is(err, ErrTransport) {
				t.Error("schema error must not match ErrTransport")
			}
		})
	}
}

func TestOpenAIClient_Parse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer k" {
			t.Errorf("unexpected auth header %q", got)
		}
		var req chatRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.ResponseFormat["type"] != "json_object" {
			t.Errorf("expected json_object response format, got %v", req.ResponseFormat)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"` + "```json\\n{\\\"domain\\\":\\\"Fiscal/Tax\\\"}\\n```" + `"}}]}`))
	}))
	defer server.Close()

	var out domainAnswer
	if err := NewOpenAIClient("k", server.URL).Parse(context.Background(), Request{Model: "gpt"}, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Domain != "Fiscal/Tax" {
		t.Errorf("expected Fiscal/Tax, got %q", out.Domain)
	}
}

func TestOpenAIClient_NoKey(t *testing.T) {
	_, err := NewOpenAIClient("", "http://unused").Generate(context.Background(), Request{Model: "gpt"})
	if !errors.Is(err, ErrTransport) {
		t.Errorf("expected transport error, got %v", err)
	}
}

func TestOpenAIClient_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	_, err := NewOpenAIClient("k", server.URL).Generate(context.Background(), Request{Model: "gpt"})
	if !errors.Is(err, ErrTransport) {
		t.Errorf("expected transport error, got %v", err)
	}
}

type slowService struct{ delay time.Duration }

func (s slowService) Generate(ctx context.Context, req Request) (string, error) {
	select {
	case <-time.After(s.delay):
		return "late", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s slowService) Parse(ctx context.Context, req Request, out any) error {
	_, err := s.Generate(ctx, req)
	return err
}

func TestLimited_TimeoutIsTransportError(t *testing.T) {
	l := NewLimited(slowService{delay: time.Second}, ratelimit.Unlimited(), 20*time.Millisecond)
	_, err := l.Generate(context.Background(), Request{Model: "m"})
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError, got %v", err)
	}
	if !te.Timeout {
		t.Error("expected Timeout flag")
	}
}

type countingLimiter struct{ n atomic.Int32 }

func (c *countingLimiter) Wait(context.Context) error {
	c.n.Add(1)
	return nil
}

type echoService struct{}

func (echoService) Generate(_ context.Context, req Request) (string, error) { return req.Prompt, nil }
func (echoService) Parse(_ context.Context, req Request, out any) error {
	return Decode(req.Model, req.Prompt, out)
}

func TestLimited_UsesLimiterAndTraces(t *testing.T) {
	lim := &countingLimiter{}
	rec := trace.NewRecorder()
	l := NewLimited(echoService{}, lim, time.Second, WithTrace(rec, true))

	if _, err := l.Generate(context.Background(), Request{Task: TaskTranslate, Model: "m", Prompt: "hello"}); err != nil {
		t.Fatal(err)
	}
	var out domainAnswer
	if err := l.Parse(context.Background(), Request{Task: TaskClassify, Model: "m", Prompt: "{}"}, &out); !errors.Is(err, ErrSchema) {
		t.Fatalf("expected schema error to pass through, got %v", err)
	}

	if lim.n.Load() != 2 {
		t.Errorf("expected 2 limiter waits, got %d", lim.n.Load())
	}
	kinds := []string{}
	for _, e := range rec.Events() {
		kinds = append(kinds, e.Kind)
	}
	want := "llm.request,llm.response,llm.request,llm.error"
	if strings.Join(kinds, ",") != want {
		t.Errorf("expected events %s, got %v", want, kinds)
	}
	if rec.Events()[0].Data["prompt_snip"] != "hello" {
		t.Errorf("expected prompt snippet in trace, got %v", rec.Events()[0].Data)
	}
}
