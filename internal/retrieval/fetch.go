package retrieval

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// maxPageBytes bounds how much of a response body is read.
const maxPageBytes = 2 << 20

// Page is the readable text of a fetched document.
type Page struct {
	URL   string
	Title string
	Text  string
}

// Fetcher downloads a page and extracts its text.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// HTTPFetcher fetches http(s) pages and extracts visible text from HTML.
// Plain-text responses are used as they are.
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher returns a fetcher with the given per-request timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Page{}, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Page{}, fmt.Errorf("only http and https URLs are supported")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Page{}, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; fintran/1.0)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain")

	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Page{}, fmt.Errorf("server returned %d", resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, maxPageBytes)
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") {
		b, err := io.ReadAll(body)
		if err != nil {
			return Page{}, fmt.Errorf("failed to read response: %w", err)
		}
		return Page{URL: rawURL, Text: collapse(string(b))}, nil
	}

	doc, err := html.Parse(body)
	if err != nil {
		return Page{}, fmt.Errorf("failed to parse HTML: %w", err)
	}
	title, text := ExtractText(doc)
	return Page{URL: rawURL, Title: title, Text: text}, nil
}

// skipped elements never contribute visible prose.
var skipped = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true,
	atom.Nav: true, atom.Header: true, atom.Footer: true, atom.Aside: true,
	atom.Form: true, atom.Svg: true, atom.Iframe: true,
}

// block elements end a line of text.
var block = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Li: true, atom.Br: true, atom.Tr: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Section: true, atom.Article: true, atom.Blockquote: true, atom.Pre: true, atom.Td: true,
}

// ExtractText returns the document title and its visible text, one block
// per line with runs of whitespace collapsed.
func ExtractText(doc *html.Node) (string, string) {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (skipped[n.DataAtom] || n.DataAtom == atom.Head) {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && block[n.DataAtom] {
			sb.WriteByte('\n')
		}
	}
	walk(doc)
	return findTitle(doc), collapse(sb.String())
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Title && n.FirstChild != nil {
		return strings.TrimSpace(n.FirstChild.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

// collapse trims every line, squeezes inner whitespace and drops empty
// lines.
func collapse(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
