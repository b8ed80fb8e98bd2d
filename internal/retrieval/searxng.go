package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Result is one web search hit.
type Result struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Searcher finds candidate pages for a query.
type Searcher interface {
	Search(ctx context.Context, query string, max int) ([]Result, error)
}

// SearXNG queries SearXNG instances in order until one answers.
type SearXNG struct {
	instances []string
	client    *http.Client
	userAgent string
}

// NewSearXNG returns a client for instances.
func NewSearXNG(instances []string, timeout time.Duration) *SearXNG {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &SearXNG{
		instances: instances,
		client:    &http.Client{Timeout: timeout},
		userAgent: "fintran/1.0 (+reference backfill)",
	}
}

func (s *SearXNG) Search(ctx context.Context, query string, max int) ([]Result, error) {
	var lastErr error
	for _, inst := range s.instances {
		res, err := s.searchInstance(ctx, inst, query)
		if err != nil {
			lastErr = err
			continue
		}
		if max > 0 && len(res) > max {
			res = res[:max]
		}
		return res, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("all SearXNG instances failed, last error: %w", lastErr)
	}
	return nil, fmt.Errorf("no SearXNG instances configured")
}

func (s *SearXNG) searchInstance(ctx context.Context, instance, query string) ([]Result, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("categories", "general")
	searchURL := fmt.Sprintf("%s/search?%s", strings.TrimSuffix(instance, "/"), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("instance %s returned %d: %s", instance, resp.StatusCode, string(body))
	}

	var out struct {
		Results []Result `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return out.Results, nil
}

// preferTrusted moves URLs whose host is, or is a subdomain of, a trusted
// host to the front, keeping relative order otherwise.
func preferTrusted(urls, trusted []string) []string {
	if len(trusted) == 0 {
		return urls
	}
	var front, rest []string
	for _, u := range urls {
		if isTrusted(u, trusted) {
			front = append(front, u)
		} else {
			rest = append(rest, u)
		}
	}
	return append(front, rest...)
}

func isTrusted(raw string, trusted []string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, t := range trusted {
		t = strings.ToLower(t)
		if host == t || strings.HasSuffix(host, "."+t) {
			return true
		}
	}
	return false
}
