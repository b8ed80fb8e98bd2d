package llm

import (
	"context"
	"net/http"
	"strings"
)

// OllamaClient talks to a local Ollama server's /api/generate endpoint.
type OllamaClient struct {
	baseURL string
	client  *http.Client
}

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
}

// NewOllamaClient returns a client for baseURL (default
// http://localhost:11434). Timeouts come from the caller's context.
func NewOllamaClient(baseURL string) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

func (c *OllamaClient) Generate(ctx context.Context, req Request) (string, error) {
	resp, err := c.call(ctx, "generate", req, "")
	if err != nil {
		return "", err
	}
	return resp, nil
}

// Parse asks Ollama for JSON output and decodes it into out.
func (c *OllamaClient) Parse(ctx context.Context, req Request, out any) error {
	resp, err := c.call(ctx, "parse", req, "json")
	if err != nil {
		return err
	}
	return Decode(req.Model, resp, out)
}

func (c *OllamaClient) call(ctx context.Context, op string, req Request, format string) (string, error) {
	body := ollamaRequest{
		Model:   req.Model,
		Prompt:  req.Prompt,
		Stream:  false,
		Format:  format,
		Options: map[string]any{"temperature": req.Temperature},
	}
	var resp ollamaResponse
	if err := postJSON(ctx, c.client, op, req.Model, c.baseURL+"/api/generate", nil, body, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}
