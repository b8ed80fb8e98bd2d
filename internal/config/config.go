// Package config loads runtime options from defaults, an optional config
// file, FINTRAN_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment override, e.g.
// FINTRAN_QA_NUM_MIN.
const EnvPrefix = "FINTRAN"

// Config holds the complete application configuration.
type Config struct {
	DBPath    string `mapstructure:"db_path"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	LLM      LLMConfig      `mapstructure:"llm"`
	Embed    EmbedConfig    `mapstructure:"embed"`
	QA       QAConfig       `mapstructure:"qa"`
	Glossary GlossaryConfig `mapstructure:"glossary"`
	Limits   LimitsConfig   `mapstructure:"limits"`
	Segment  SegmentConfig  `mapstructure:"segment"`
	TM       TMConfig       `mapstructure:"tm"`
	RAG      RAGConfig      `mapstructure:"rag"`
	Google   GoogleConfig   `mapstructure:"google"`
	MyMemory MyMemoryConfig `mapstructure:"mymemory"`
	Trace    TraceConfig    `mapstructure:"trace"`
}

// LLMConfig selects the language service and its models.
type LLMConfig struct {
	Provider       string        `mapstructure:"provider"` // ollama | openai
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	TranslateModel string        `mapstructure:"translate_model"`
	ReviewModel    string        `mapstructure:"review_model"`
	ClassifyModel  string        `mapstructure:"classify_model"`
	QAModel        string        `mapstructure:"qa_model"`
	Temperature    float64       `mapstructure:"temperature"`
	CallTimeout    time.Duration `mapstructure:"call_timeout"`
}

// EmbedConfig selects the embedding service.
type EmbedConfig struct {
	Provider string `mapstructure:"provider"`
	BaseURL  string `mapstructure:"base_url"`
	APIKey   string `mapstructure:"api_key"`
	Model    string `mapstructure:"model"`
}

// QAConfig holds quality-gate thresholds and the hybrid judge switch.
type QAConfig struct {
	NumMin    float64 `mapstructure:"num_min"`
	TermMin   float64 `mapstructure:"term_min"`
	DomMin    float64 `mapstructure:"dom_min"`
	MaxLoops  int     `mapstructure:"max_loops"`
	UseLLM    bool    `mapstructure:"use_llm"`
	LLMWeight float64 `mapstructure:"llm_weight"`
}

// GlossaryConfig drives concept discovery and glossary fill.
type GlossaryConfig struct {
	TermQualityMin     float64 `mapstructure:"term_quality_min"`
	CandidateTopK      int     `mapstructure:"candidate_top_k"`
	MinTermLen         int     `mapstructure:"min_term_len"`
	LLMTermExtractor   bool    `mapstructure:"llm_term_extractor"`
	FillCanonicalLangs bool    `mapstructure:"fill_canonical_langs"`
}

// LimitsConfig holds process-wide concurrency and rate budgets.
type LimitsConfig struct {
	GlossaryFill int     `mapstructure:"glossary_fill"`
	LLMRPS       float64 `mapstructure:"llm_rps"`
	EmbedRPS     float64 `mapstructure:"embed_rps"`
}

type SegmentConfig struct {
	MaxChars int `mapstructure:"max_chars"`
}

type TMConfig struct {
	TopK      int     `mapstructure:"top_k"`
	Threshold float64 `mapstructure:"threshold"`
}

// RAGConfig configures context retrieval and web backfill.
type RAGConfig struct {
	TopK               int      `mapstructure:"top_k"`
	SearxngInstances   []string `mapstructure:"searxng_instances"`
	BackfillMaxResults int      `mapstructure:"backfill_max_results"`
	TrustedDomains     []string `mapstructure:"trusted_domains"`
}

// GoogleConfig enables the Google Cloud Translation drafter.
type GoogleConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	ProjectID       string `mapstructure:"project_id"`
}

// MyMemoryConfig configures the MyMemory drafter. The email raises the
// anonymous daily quota.
type MyMemoryConfig struct {
	Email string `mapstructure:"email"`
}

type TraceConfig struct {
	Prompts bool `mapstructure:"prompts"`
}

// Default returns a Config populated with the built-in defaults.
func Default() *Config {
	return &Config{
		DBPath:    "./data/fintran.db",
		LogLevel:  "info",
		LogFormat: "json",
		LLM: LLMConfig{
			Provider:       "ollama",
			BaseURL:        "http://localhost:11434",
			TranslateModel: "qwen3:14b",
			ReviewModel:    "qwen3:14b",
			ClassifyModel:  "llama3.1:8b",
			QAModel:        "llama3.1:8b",
			Temperature:    0.2,
			CallTimeout:    60 * time.Second,
		},
		Embed: EmbedConfig{
			Provider: "ollama",
			BaseURL:  "http://localhost:11434",
			Model:    "nomic-embed-text",
		},
		QA: QAConfig{
			NumMin:    0.98,
			TermMin:   0.98,
			DomMin:    0.85,
			MaxLoops:  1,
			LLMWeight: 0.6,
		},
		Glossary: GlossaryConfig{
			TermQualityMin:     0.75,
			CandidateTopK:      12,
			MinTermLen:         2,
			LLMTermExtractor:   true,
			FillCanonicalLangs: true,
		},
		Limits:  LimitsConfig{GlossaryFill: 6, LLMRPS: 4, EmbedRPS: 2},
		Segment: SegmentConfig{MaxChars: 1400},
		TM:      TMConfig{TopK: 1, Threshold: 0.92},
		RAG: RAGConfig{
			TopK:               3,
			SearxngInstances:   []string{"http://localhost:8080"},
			BackfillMaxResults: 4,
			TrustedDomains: []string{
				"eur-lex.europa.eu", "oecd.org", "esma.europa.eu", "ilpa.org",
				"investeurope.eu", "inrev.org", "epra.com", "rics.org",
			},
		},
	}
}

// Load reads configuration. path may be empty, in which case ./fintran.yaml
// and $HOME/.config/fintran/fintran.yaml are tried. bindings maps config keys
// (e.g. "qa.max_loops") to flag names in fs; only flags the user actually set
// override lower layers.
func Load(path string, fs *pflag.FlagSet, bindings map[string]string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("fintran")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "fintran"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if fs != nil {
		for key, name := range bindings {
			f := fs.Lookup(name)
			if f == nil {
				return nil, fmt.Errorf("unknown flag %q bound to %q", name, key)
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %q: %w", name, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every leaf of d so that environment variables can
// override keys that appear in no config file.
func setDefaults(v *viper.Viper, d *Config) {
	defaults := map[string]any{
		"db_path":    d.DBPath,
		"log_level":  d.LogLevel,
		"log_format": d.LogFormat,

		"llm.provider":        d.LLM.Provider,
		"llm.base_url":        d.LLM.BaseURL,
		"llm.api_key":         d.LLM.APIKey,
		"llm.translate_model": d.LLM.TranslateModel,
		"llm.review_model":    d.LLM.ReviewModel,
		"llm.classify_model":  d.LLM.ClassifyModel,
		"llm.qa_model":        d.LLM.QAModel,
		"llm.temperature":     d.LLM.Temperature,
		"llm.call_timeout":    d.LLM.CallTimeout,

		"embed.provider": d.Embed.Provider,
		"embed.base_url": d.Embed.BaseURL,
		"embed.api_key":  d.Embed.APIKey,
		"embed.model":    d.Embed.Model,

		"qa.num_min":    d.QA.NumMin,
		"qa.term_min":   d.QA.TermMin,
		"qa.dom_min":    d.QA.DomMin,
		"qa.max_loops":  d.QA.MaxLoops,
		"qa.use_llm":    d.QA.UseLLM,
		"qa.llm_weight": d.QA.LLMWeight,

		"glossary.term_quality_min":     d.Glossary.TermQualityMin,
		"glossary.candidate_top_k":      d.Glossary.CandidateTopK,
		"glossary.min_term_len":         d.Glossary.MinTermLen,
		"glossary.llm_term_extractor":   d.Glossary.LLMTermExtractor,
		"glossary.fill_canonical_langs": d.Glossary.FillCanonicalLangs,

		"limits.glossary_fill": d.Limits.GlossaryFill,
		"limits.llm_rps":       d.Limits.LLMRPS,
		"limits.embed_rps":     d.Limits.EmbedRPS,

		"segment.max_chars": d.Segment.MaxChars,
		"tm.top_k":          d.TM.TopK,
		"tm.threshold":      d.TM.Threshold,

		"rag.top_k":                d.RAG.TopK,
		"rag.searxng_instances":    d.RAG.SearxngInstances,
		"rag.backfill_max_results": d.RAG.BackfillMaxResults,
		"rag.trusted_domains":      d.RAG.TrustedDomains,

		"google.credentials_file": d.Google.CredentialsFile,
		"google.project_id":       d.Google.ProjectID,

		"mymemory.email": d.MyMemory.Email,

		"trace.prompts": d.Trace.Prompts,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	unit := func(name string, f float64) {
		if f < 0 || f > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [0,1], got %v", name, f))
		}
	}
	unit("qa.num_min", c.QA.NumMin)
	unit("qa.term_min", c.QA.TermMin)
	unit("qa.dom_min", c.QA.DomMin)
	unit("qa.llm_weight", c.QA.LLMWeight)
	unit("tm.threshold", c.TM.Threshold)
	unit("glossary.term_quality_min", c.Glossary.TermQualityMin)

	if c.QA.MaxLoops < 0 {
		errs = append(errs, fmt.Errorf("qa.max_loops must be >= 0, got %d", c.QA.MaxLoops))
	}
	if c.Limits.GlossaryFill < 1 {
		errs = append(errs, fmt.Errorf("limits.glossary_fill must be >= 1, got %d", c.Limits.GlossaryFill))
	}
	if c.Limits.LLMRPS <= 0 || c.Limits.EmbedRPS <= 0 {
		errs = append(errs, fmt.Errorf("rate limits must be positive"))
	}
	if c.LLM.CallTimeout <= 0 {
		errs = append(errs, fmt.Errorf("llm.call_timeout must be positive"))
	}
	switch c.LLM.Provider {
	case "ollama", "openai":
	default:
		errs = append(errs, fmt.Errorf("llm.provider must be ollama or openai, got %q", c.LLM.Provider))
	}
	switch c.Embed.Provider {
	case "ollama", "openai":
	default:
		errs = append(errs, fmt.Errorf("embed.provider must be ollama or openai, got %q", c.Embed.Provider))
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log_format must be json or text, got %q", c.LogFormat))
	}
	if c.DBPath == "" {
		errs = append(errs, fmt.Errorf("db_path is required"))
	}
	return errors.Join(errs...)
}
