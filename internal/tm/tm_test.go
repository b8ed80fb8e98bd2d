package tm

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/valpere/fintran/internal/embedding/embeddingtest"
	"github.com/valpere/fintran/internal/store"
)

func newTestCache(t *testing.T, emb *embeddingtest.Hashing) (*Cache, *store.Store) {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "tm.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return New(st, emb, 0), st
}

func TestLookup_ExactSourceIsHit(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, &embeddingtest.Hashing{})
	src := "El TIR fue de 12,5% y el NAV alcanzó €2.4M."
	if err := c.Upsert(ctx, Pair{Client: "acme", SrcLang: "es", TgtLang: "en", Source: src, Target: "IRR was 12.5%."}); err != nil {
		t.Fatal(err)
	}
	hit, ok, err := c.Lookup(ctx, "acme", "es", "en", src)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || math.Abs(hit.Similarity-1) > 1e-6 {
		t.Fatalf("expected an exact hit, got %+v ok=%v", hit, ok)
	}
	if hit.Target != "IRR was 12.5%." {
		t.Errorf("unexpected target %q", hit.Target)
	}
}

func TestLookup_DissimilarIsMiss(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t, &embeddingtest.Hashing{})
	if err := c.Upsert(ctx, Pair{Client: "acme", SrcLang: "es", TgtLang: "en", Source: "uno dos tres", Target: "one two three"}); err != nil {
		t.Fatal(err)
	}
	_, ok, err := c.Lookup(ctx, "acme", "es", "en", "cuatro cinco seis")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("expected a miss below the threshold")
	}
}

func TestSearch_ScopedAndRanked(t *testing.T) {
	ctx := context.Background()
	emb := &embeddingtest.Hashing{}
	c, _ := newTestCache(t, emb)
	err := c.Upsert(ctx,
		Pair{Client: "acme", SrcLang: "es", TgtLang: "en", Source: "a b c d", Target: "close"},
		Pair{Client: "acme", SrcLang: "es", TgtLang: "en", Source: "a x y z", Target: "far"},
		Pair{Client: "other", SrcLang: "es", TgtLang: "en", Source: "a b c d", Target: "other client"},
		Pair{Client: "acme", SrcLang: "es", TgtLang: "fr", Source: "a b c d", Target: "other pair"},
	)
	if err != nil {
		t.Fatal(err)
	}
	if emb.Calls() != 1 {
		t.Errorf("expected one batched embed call, got %d", emb.Calls())
	}
	hits, err := c.Search(ctx, "acme", "es", "en", "a b c e", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 scoped hits, got %+v", hits)
	}
	if hits[0].Target != "close" || hits[0].Similarity < hits[1].Similarity {
		t.Errorf("unexpected ranking %+v", hits)
	}
}

func TestSearch_EmptyScopeSkipsEmbedding(t *testing.T) {
	emb := &embeddingtest.Hashing{}
	c, _ := newTestCache(t, emb)
	hits, err := c.Search(context.Background(), "acme", "es", "en", "anything", 1)
	if err != nil || len(hits) != 0 {
		t.Fatalf("expected no hits, got %v %v", hits, err)
	}
	if emb.Calls() != 0 {
		t.Error("empty scope should not call the embedder")
	}
}

func TestUpsert_AppendOnly(t *testing.T) {
	ctx := context.Background()
	c, st := newTestCache(t, &embeddingtest.Hashing{})
	p := Pair{Client: "acme", SrcLang: "es", TgtLang: "en", Source: "hola", Target: "hello"}
	for i := 0; i < 2; i++ {
		if err := c.Upsert(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	stats, err := st.MemoryStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalEntries != 2 {
		t.Errorf("expected 2 rows, got %d", stats.TotalEntries)
	}
}

func TestUpsert_EmbeddingError(t *testing.T) {
	boom := errors.New("embed down")
	c, _ := newTestCache(t, &embeddingtest.Hashing{Err: boom})
	err := c.Upsert(context.Background(), Pair{Client: "acme", SrcLang: "es", TgtLang: "en", Source: "x", Target: "y"})
	if !errors.Is(err, boom) {
		t.Errorf("expected embedding error, got %v", err)
	}
}
