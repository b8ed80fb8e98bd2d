/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"google.golang.org/api/option"

	"github.com/valpere/fintran/internal/detector"
	"github.com/valpere/fintran/internal/embedding"
	"github.com/valpere/fintran/internal/glossary"
	"github.com/valpere/fintran/internal/llm"
	"github.com/valpere/fintran/internal/orchestrator"
	"github.com/valpere/fintran/internal/qa"
	"github.com/valpere/fintran/internal/ratelimit"
	"github.com/valpere/fintran/internal/retrieval"
	"github.com/valpere/fintran/internal/review"
	"github.com/valpere/fintran/internal/store"
	"github.com/valpere/fintran/internal/tm"
	"github.com/valpere/fintran/internal/trace"
	"github.com/valpere/fintran/internal/translator"
	"github.com/valpere/fintran/internal/validator"
)

const httpTimeout = 20 * time.Second

// pipelineOptions are the per-invocation switches that are not part of the
// configuration file.
type pipelineOptions struct {
	Drafter      string // llm | google | mymemory
	IncludeTrace bool
	Checkpoints  bool
	// NoMemory leaves the translation memory out of the pipeline.
	NoMemory bool
}

// pipeline owns everything a command needs to translate documents.
type pipeline struct {
	store     *store.Store
	llm       llm.Service
	embedder  embedding.Embedder
	retriever *retrieval.Retriever
	orch      *orchestrator.Orchestrator
	limits    ratelimit.Limiters
	closers   []func() error
}

func (p *pipeline) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}
}

// openStore opens the database, creating its directory first.
func openStore() (*store.Store, error) {
	if dir := filepath.Dir(cfg.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	st, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return st, nil
}

// buildLLM returns the rate-limited language service of the configured
// provider.
func buildLLM(lim ratelimit.Limiters) llm.Service {
	var client llm.Service
	switch cfg.LLM.Provider {
	case "openai":
		client = llm.NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.BaseURL)
	default:
		client = llm.NewOllamaClient(cfg.LLM.BaseURL)
	}
	return llm.NewLimited(client, lim.LLM, cfg.LLM.CallTimeout,
		llm.WithTrace(trace.Nop{}, cfg.Trace.Prompts),
		llm.WithLogger(logger))
}

func buildEmbedder(lim ratelimit.Limiters) embedding.Embedder {
	var e embedding.Embedder
	switch cfg.Embed.Provider {
	case "openai":
		e = embedding.NewOpenAIEmbedder(cfg.Embed.APIKey, cfg.Embed.BaseURL, cfg.Embed.Model)
	default:
		e = embedding.NewOllamaEmbedder(cfg.Embed.BaseURL, cfg.Embed.Model)
	}
	return embedding.NewLimited(e, lim.Embed, cfg.LLM.CallTimeout)
}

// buildRetriever wires the corpus retriever to SearXNG and the page fetcher.
func buildRetriever(st *store.Store, emb embedding.Embedder) *retrieval.Retriever {
	return retrieval.New(st, emb,
		retrieval.NewSearXNG(cfg.RAG.SearxngInstances, httpTimeout),
		retrieval.NewHTTPFetcher(httpTimeout),
		retrieval.Options{
			MaxResults: cfg.RAG.BackfillMaxResults,
			Trusted:    cfg.RAG.TrustedDomains,
			Logger:     logger,
		})
}

// buildCorpus opens the store and the services needed by the corpus and
// memory commands, without the translation pipeline.
func buildCorpus() (*pipeline, error) {
	st, err := openStore()
	if err != nil {
		return nil, err
	}
	lim := ratelimit.New(cfg.Limits.LLMRPS, cfg.Limits.EmbedRPS)
	emb := buildEmbedder(lim)
	return &pipeline{
		store:     st,
		embedder:  emb,
		retriever: buildRetriever(st, emb),
		limits:    lim,
		closers:   []func() error{st.Close},
	}, nil
}

func buildDrafter(ctx context.Context, name string, svc llm.Service) (translator.Drafter, func() error, error) {
	switch name {
	case "", "llm":
		return translator.NewLLMTranslator(svc, cfg.LLM.TranslateModel, cfg.LLM.Temperature), nil, nil
	case "google":
		var extra []option.ClientOption
		if cfg.Google.ProjectID != "" {
			extra = append(extra, option.WithQuotaProject(cfg.Google.ProjectID))
		}
		g, err := translator.NewGoogleService(ctx, cfg.Google.CredentialsFile, extra...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create google drafter: %w", err)
		}
		return g, g.Close, nil
	case "mymemory":
		return translator.NewMyMemoryService(cfg.MyMemory.Email, ""), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown drafter %q (use llm, google or mymemory)", name)
	}
}

// buildPipeline constructs the full translation pipeline from the loaded
// configuration.
func buildPipeline(ctx context.Context, opts pipelineOptions) (*pipeline, error) {
	p, err := buildCorpus()
	if err != nil {
		return nil, err
	}
	p.llm = buildLLM(p.limits)

	drafter, closeDrafter, err := buildDrafter(ctx, opts.Drafter, p.llm)
	if err != nil {
		p.Close()
		return nil, err
	}
	if closeDrafter != nil {
		p.closers = append(p.closers, closeDrafter)
	}

	det := detector.NewFor(detector.Supported...)

	components := orchestrator.Components{
		Store:    p.store,
		LLM:      p.llm,
		Drafter:  drafter,
		Reviewer: review.New(p.llm, cfg.LLM.ReviewModel, logger),
		Scorer: qa.NewScorer(p.llm, qa.Options{
			UseLLM: cfg.QA.UseLLM,
			Model:  cfg.LLM.QAModel,
			Weight: cfg.QA.LLMWeight,
			Logger: logger,
		}),
		Discovery: glossary.NewDiscovery(p.llm, glossary.DiscoveryOptions{
			Model:  cfg.LLM.ClassifyModel,
			UseLLM: cfg.Glossary.LLMTermExtractor,
			TopK:   cfg.Glossary.CandidateTopK,
			MinLen: cfg.Glossary.MinTermLen,
			Logger: logger,
		}),
		Resolver: glossary.NewResolver(p.store, p.llm, glossary.Options{
			ProposeModel: cfg.LLM.TranslateModel,
			JudgeModel:   cfg.LLM.ReviewModel,
			MinQuality:   cfg.Glossary.TermQualityMin,
			Concurrency:  cfg.Limits.GlossaryFill,
			Enrich:       p.retriever.Enrich,
			Logger:       logger,
		}),
		Retriever: p.retriever,
		Detector:  det,
		Checker:   validator.New(det),
		Logger:    logger,
	}
	if !opts.NoMemory {
		components.Memory = tm.New(p.store, p.embedder, cfg.TM.Threshold)
	}

	p.orch = orchestrator.New(components, orchestrator.OrchestratorConfig{
		ClassifyModel: cfg.LLM.ClassifyModel,
		Thresholds: qa.Thresholds{
			NumMin:  cfg.QA.NumMin,
			TermMin: cfg.QA.TermMin,
			DomMin:  cfg.QA.DomMin,
		},
		MaxLoops:        cfg.QA.MaxLoops,
		SegmentMaxChars: cfg.Segment.MaxChars,
		RAGTopK:         cfg.RAG.TopK,
		FillCanonical:   cfg.Glossary.FillCanonicalLangs,
		EnrichGlossary:  true,
		Checkpoints:     opts.Checkpoints,
		IncludeTrace:    opts.IncludeTrace,
	})
	return p, nil
}
