package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// OpenAIClient talks to any OpenAI-compatible /chat/completions endpoint
// (OpenAI, OpenRouter, vLLM, LM Studio).
type OpenAIClient struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// NewOpenAIClient returns a client for baseURL (default
// https://api.openai.com/v1).
func NewOpenAIClient(apiKey, baseURL string) *OpenAIClient {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIClient{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
	}
}

func (c *OpenAIClient) Generate(ctx context.Context, req Request) (string, error) {
	return c.call(ctx, "generate", req, nil)
}

// Parse requests a json_object response and decodes it into out.
func (c *OpenAIClient) Parse(ctx context.Context, req Request, out any) error {
	text, err := c.call(ctx, "parse", req, map[string]string{"type": "json_object"})
	if err != nil {
		return err
	}
	return Decode(req.Model, text, out)
}

func (c *OpenAIClient) call(ctx context.Context, op string, req Request, format map[string]string) (string, error) {
	if c.apiKey == "" {
		return "", &TransportError{Op: op, Model: req.Model, Err: errors.New("API key required")}
	}
	body := chatRequest{
		Model:          req.Model,
		Messages:       []chatMessage{{Role: "user", Content: req.Prompt}},
		Temperature:    req.Temperature,
		ResponseFormat: format,
	}
	headers := map[string]string{"Authorization": fmt.Sprintf("Bearer %s", c.apiKey)}

	var resp chatResponse
	if err := postJSON(ctx, c.client, op, req.Model, c.baseURL+"/chat/completions", headers, body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", &TransportError{Op: op, Model: req.Model, Err: errors.New("empty response from API")}
	}
	return resp.Choices[0].Message.Content, nil
}
