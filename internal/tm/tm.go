// Package tm is the translation memory: a semantic near-duplicate cache of
// accepted segment translations, scoped by client and language pair.
package tm

import (
	"context"
	"fmt"
	"sort"

	"github.com/valpere/fintran/internal/embedding"
	"github.com/valpere/fintran/internal/store"
)

// DefaultThreshold is the similarity a hit must exceed to be reused.
const DefaultThreshold = 0.92

// Store is the persistence the cache needs.
type Store interface {
	InsertMemory(ctx context.Context, e store.MemoryEntry) (string, error)
	MemoryCandidates(ctx context.Context, client, srcLang, tgtLang string) ([]store.MemoryEntry, error)
}

// Hit is one ranked match.
type Hit struct {
	ID         string
	Source     string
	Target     string
	Similarity float64
}

// Cache searches and appends translation memory.
type Cache struct {
	store     Store
	embed     embedding.Embedder
	threshold float64
}

// New returns a Cache. A threshold outside (0,1] falls back to
// DefaultThreshold.
func New(st Store, emb embedding.Embedder, threshold float64) *Cache {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Cache{store: st, embed: emb, threshold: threshold}
}

// Threshold returns the acceptance threshold.
func (c *Cache) Threshold() float64 { return c.threshold }

// Search embeds text and returns the topK stored segments of the same
// (client, srcLang, tgtLang) scope by cosine similarity, best first.
func (c *Cache) Search(ctx context.Context, client, srcLang, tgtLang, text string, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = 1
	}
	cands, err := c.store.MemoryCandidates(ctx, client, srcLang, tgtLang)
	if err != nil {
		return nil, fmt.Errorf("loading memory: %w", err)
	}
	if len(cands) == 0 {
		return nil, nil
	}
	vecs, err := c.embed.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	q := vecs[0]

	hits := make([]Hit, 0, len(cands))
	for _, e := range cands {
		hits = append(hits, Hit{
			ID:         e.ID,
			Source:     e.SourceText,
			Target:     e.TargetText,
			Similarity: embedding.Cosine(q, e.Vector),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Similarity > hits[j].Similarity })
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Lookup returns the best hit when its similarity exceeds the threshold.
func (c *Cache) Lookup(ctx context.Context, client, srcLang, tgtLang, text string) (Hit, bool, error) {
	hits, err := c.Search(ctx, client, srcLang, tgtLang, text, 1)
	if err != nil || len(hits) == 0 {
		return Hit{}, false, err
	}
	if hits[0].Similarity <= c.threshold {
		return hits[0], false, nil
	}
	return hits[0], true, nil
}

// Pair is an accepted translation to remember.
type Pair struct {
	Client  string
	SrcLang string
	TgtLang string
	Domain  string
	Source  string
	Target  string
}

// Upsert appends pairs with their source embeddings, embedding them in one
// batch. Existing rows are never modified.
func (c *Cache) Upsert(ctx context.Context, pairs ...Pair) error {
	if len(pairs) == 0 {
		return nil
	}
	texts := make([]string, len(pairs))
	for i, p := range pairs {
		texts[i] = p.Source
	}
	vecs, err := c.embed.Embed(ctx, texts)
	if err != nil {
		return err
	}
	if len(vecs) != len(pairs) {
		return fmt.Errorf("embedding returned %d vectors for %d texts", len(vecs), len(pairs))
	}
	for i, p := range pairs {
		_, err := c.store.InsertMemory(ctx, store.MemoryEntry{
			ClientID:   p.Client,
			SourceLang: p.SrcLang,
			TargetLang: p.TgtLang,
			Domain:     p.Domain,
			SourceText: p.Source,
			TargetText: p.Target,
			Vector:     vecs[i],
		})
		if err != nil {
			return fmt.Errorf("storing memory: %w", err)
		}
	}
	return nil
}
