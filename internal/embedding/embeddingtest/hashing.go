// Package embeddingtest provides a deterministic offline Embedder for tests.
package embeddingtest

import (
	"context"
	"hash/fnv"
	"strings"
	"sync/atomic"
)

// Dim is the vector size produced by Hashing.
const Dim = 64

// Hashing embeds text as a bag of lowercase word hashes. Identical texts get
// identical vectors; texts sharing most words score close to 1.
type Hashing struct {
	calls atomic.Int32
	Err   error
}

// Calls returns the number of Embed invocations.
func (h *Hashing) Calls() int { return int(h.calls.Load()) }

func (h *Hashing) Embed(_ context.Context, texts []string) ([][]float32, error) {
	h.calls.Add(1)
	if h.Err != nil {
		return nil, h.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, Dim)
		for _, w := range strings.Fields(strings.ToLower(t)) {
			f := fnv.New32a()
			f.Write([]byte(w))
			v[f.Sum32()%Dim]++
		}
		out[i] = v
	}
	return out, nil
}
