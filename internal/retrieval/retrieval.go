// Package retrieval supplies domain reference snippets to the translator.
// Documents are ingested from seed URLs or web search results, embedded and
// ranked by cosine similarity against the query.
//
// Everything here is best effort. Every failure is reported as an
// *EnrichmentError so callers can log it and continue with no snippets.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sort"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/valpere/fintran/internal/embedding"
	"github.com/valpere/fintran/internal/store"
)

const (
	maxQueryChars   = 2000
	maxSnippetChars = 1800
	maxContentChars = 12000
	maxBackfillTerm = 6
	fetchWorkers    = 4
)

// DefaultSeedTerms are searched when a text yields no acronyms.
var DefaultSeedTerms = []string{"IRR", "NAV", "MiFID", "UCITS"}

var acronymRe = regexp.MustCompile(`\b[A-Z]{2,6}\b`)

// ErrEnrichment matches every *EnrichmentError.
var ErrEnrichment = errors.New("enrichment failed")

// EnrichmentError reports a failed retrieval, ingest or backfill.
type EnrichmentError struct {
	Op  string
	Err error
}

func (e *EnrichmentError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *EnrichmentError) Unwrap() []error { return []error{ErrEnrichment, e.Err} }

func enrichErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ee *EnrichmentError
	if errors.As(err, &ee) {
		return err
	}
	return &EnrichmentError{Op: op, Err: err}
}

// Store is the corpus persistence the retriever needs.
type Store interface {
	DocsFor(ctx context.Context, domain, client string) ([]store.CorpusDoc, error)
	InsertDocs(ctx context.Context, docs []store.CorpusDoc) error
	HasDocURL(ctx context.Context, domain, url string) (bool, error)
	SourcesFor(ctx context.Context, domain string) ([]store.Source, error)
	AddSource(ctx context.Context, src store.Source) (bool, error)
}

// Options configures a Retriever.
type Options struct {
	// MaxResults is the number of search results taken per backfill term.
	MaxResults int
	// Trusted hosts are ingested before other search results.
	Trusted []string
	Logger  *slog.Logger
}

// Retriever ranks and grows the reference corpus.
type Retriever struct {
	store    Store
	embed    embedding.Embedder
	searcher Searcher
	fetcher  Fetcher
	opts     Options
	log      *slog.Logger
}

// New returns a Retriever. searcher may be nil, which disables web backfill
// but keeps seed ingestion.
func New(st Store, emb embedding.Embedder, searcher Searcher, fetcher Fetcher, opts Options) *Retriever {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 3
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Retriever{store: st, embed: emb, searcher: searcher, fetcher: fetcher, opts: opts, log: log}
}

// Retrieve returns up to topK documents filed under domain or owned by
// client, most similar to query first, each cut to 1800 characters.
func (r *Retriever) Retrieve(ctx context.Context, query, domain, client string, topK int) ([]string, error) {
	if topK <= 0 {
		return nil, nil
	}
	docs, err := r.store.DocsFor(ctx, domain, client)
	if err != nil {
		return nil, enrichErr("retrieve", err)
	}
	if len(docs) == 0 {
		return nil, nil
	}
	vecs, err := r.embed.Embed(ctx, []string{clip(query, maxQueryChars)})
	if err != nil {
		return nil, enrichErr("retrieve", err)
	}
	q := vecs[0]

	type scored struct {
		content string
		sim     float64
	}
	ranked := make([]scored, len(docs))
	for i, d := range docs {
		ranked[i] = scored{d.Content, embedding.Cosine(q, d.Vector)}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].sim > ranked[j].sim })
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}
	out := make([]string, len(ranked))
	for i, s := range ranked {
		out[i] = clip(s.content, maxSnippetChars)
	}
	return out, nil
}

// Context retrieves snippets for query, running one backfill and one
// retry when the corpus for domain and client is empty.
func (r *Retriever) Context(ctx context.Context, query, domain, client string, topK int) ([]string, error) {
	snips, err := r.Retrieve(ctx, query, domain, client, topK)
	if err != nil || len(snips) > 0 {
		return snips, err
	}
	n, err := r.Backfill(ctx, AcronymTerms(query), domain, client)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	r.log.Info("corpus backfilled", "domain", domain, "client", client, "docs", n)
	return r.Retrieve(ctx, query, domain, client, topK)
}

// Enrich adapts Backfill to the glossary resolver's enrichment hook.
func (r *Retriever) Enrich(ctx context.Context, terms []string, domain, client string) error {
	_, err := r.Backfill(ctx, terms, domain, client)
	return err
}

// Backfill grows the corpus for domain. Registered seed sources that were
// never ingested go first; when they add nothing, up to six terms are
// searched as "<term> <domain> finance definition" and the results
// ingested, trusted hosts first. It returns the number of documents added.
func (r *Retriever) Backfill(ctx context.Context, terms []string, domain, client string) (int, error) {
	seeds, err := r.store.SourcesFor(ctx, domain)
	if err != nil {
		return 0, enrichErr("backfill", err)
	}
	var urls []string
	for _, s := range seeds {
		urls = append(urls, s.URL)
	}
	if n, err := r.Ingest(ctx, urls, domain, client); err != nil || n > 0 {
		return n, err
	}

	if r.searcher == nil {
		return 0, nil
	}
	if len(terms) > maxBackfillTerm {
		terms = terms[:maxBackfillTerm]
	}
	var (
		found   []string
		lastErr error
	)
	for _, t := range terms {
		res, err := r.searcher.Search(ctx, fmt.Sprintf("%s %s finance definition", t, domain), r.opts.MaxResults)
		if err != nil {
			lastErr = err
			r.log.Warn("backfill search failed", "term", t, "error", err)
			continue
		}
		for _, hit := range res {
			found = append(found, hit.URL)
		}
	}
	if len(found) == 0 && lastErr != nil {
		return 0, enrichErr("backfill", lastErr)
	}
	return r.Ingest(ctx, preferTrusted(dedupe(found), r.opts.Trusted), domain, client)
}

// Ingest fetches urls not yet stored for domain, embeds their text and
// stores them. Pages that cannot be fetched or carry no text are skipped.
// It returns the number of documents added.
func (r *Retriever) Ingest(ctx context.Context, urls []string, domain, client string) (int, error) {
	var todo []string
	for _, u := range dedupe(urls) {
		seen, err := r.store.HasDocURL(ctx, domain, u)
		if err != nil {
			return 0, enrichErr("ingest", err)
		}
		if !seen {
			todo = append(todo, u)
		}
	}
	if len(todo) == 0 {
		return 0, nil
	}

	pages := make([]Page, len(todo))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchWorkers)
	for i, u := range todo {
		g.Go(func() error {
			p, err := r.fetcher.Fetch(gctx, u)
			if err != nil {
				r.log.Debug("fetch failed", "url", u, "error", err)
				return nil
			}
			pages[i] = p
			return nil
		})
	}
	_ = g.Wait()

	var docs []store.CorpusDoc
	var texts []string
	for _, p := range pages {
		if p.Text == "" {
			continue
		}
		content := clip(p.Text, maxContentChars)
		title := p.Title
		if title == "" {
			title = p.URL
		}
		docs = append(docs, store.CorpusDoc{Domain: domain, ClientID: client, URL: p.URL, Title: title, Content: content})
		texts = append(texts, content)
	}
	if len(docs) == 0 {
		return 0, nil
	}
	vecs, err := r.embed.Embed(ctx, texts)
	if err != nil {
		return 0, enrichErr("ingest", err)
	}
	if len(vecs) != len(docs) {
		return 0, enrichErr("ingest", fmt.Errorf("embedding returned %d vectors for %d documents", len(vecs), len(docs)))
	}
	for i := range docs {
		docs[i].Vector = vecs[i]
	}
	if err := r.store.InsertDocs(ctx, docs); err != nil {
		return 0, enrichErr("ingest", err)
	}
	return len(docs), nil
}

// LoadSeeds registers the seed sources of a YAML file shaped as
// domain → list of {url, title, year, notes}. It returns the number of new
// sources.
func (r *Retriever) LoadSeeds(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read seeds: %w", err)
	}
	var byDomain map[string][]store.Source
	if err := yaml.Unmarshal(data, &byDomain); err != nil {
		return 0, fmt.Errorf("failed to parse seeds: %w", err)
	}
	domains := make([]string, 0, len(byDomain))
	for d := range byDomain {
		domains = append(domains, d)
	}
	sort.Strings(domains)

	n := 0
	for _, d := range domains {
		for _, src := range byDomain[d] {
			src.Domain = d
			added, err := r.store.AddSource(ctx, src)
			if err != nil {
				return n, fmt.Errorf("failed to add seed %s: %w", src.URL, err)
			}
			if added {
				n++
			}
		}
	}
	return n, nil
}

// AcronymTerms returns the distinct 2-6 letter acronyms of text, sorted and
// capped at six, or DefaultSeedTerms when there are none.
func AcronymTerms(text string) []string {
	set := map[string]bool{}
	for _, m := range acronymRe.FindAllString(text, -1) {
		set[m] = true
	}
	if len(set) == 0 {
		return append([]string(nil), DefaultSeedTerms...)
	}
	terms := make([]string, 0, len(set))
	for t := range set {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	if len(terms) > maxBackfillTerm {
		terms = terms[:maxBackfillTerm]
	}
	return terms
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func dedupe(items []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, it := range items {
		if it == "" || seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}
