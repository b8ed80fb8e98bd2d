package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/valpere/fintran/internal/config"
)

func TestDefault_Valid(t *testing.T) {
	if err := config.Default().Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := config.Load("", nil, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.QA.NumMin != 0.98 || cfg.QA.DomMin != 0.85 || cfg.QA.MaxLoops != 1 {
		t.Errorf("unexpected QA defaults: %+v", cfg.QA)
	}
	if cfg.TM.Threshold != 0.92 {
		t.Errorf("expected tm threshold 0.92, got %v", cfg.TM.Threshold)
	}
	if cfg.Limits.GlossaryFill != 6 {
		t.Errorf("expected glossary fill 6, got %d", cfg.Limits.GlossaryFill)
	}
	if cfg.LLM.CallTimeout != 60*time.Second {
		t.Errorf("expected 60s timeout, got %v", cfg.LLM.CallTimeout)
	}
}

func TestLoad_FileEnvAndFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fintran.yaml")
	content := `
db_path: /tmp/x.db
qa:
  term_min: 0.9
  max_loops: 2
llm:
  call_timeout: 15s
rag:
  searxng_instances: ["http://a", "http://b"]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FINTRAN_QA_DOM_MIN", "0.5")
	t.Setenv("FINTRAN_QA_MAX_LOOPS", "3")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("max-loops", 1, "")
	fs.String("db", "", "")
	if err := fs.Parse([]string{"--max-loops", "4"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path, fs, map[string]string{"qa.max_loops": "max-loops", "db_path": "db"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.QA.TermMin != 0.9 {
		t.Errorf("file value lost: %v", cfg.QA.TermMin)
	}
	if cfg.QA.DomMin != 0.5 {
		t.Errorf("env value lost: %v", cfg.QA.DomMin)
	}
	if cfg.QA.MaxLoops != 4 {
		t.Errorf("flag should win over env and file, got %d", cfg.QA.MaxLoops)
	}
	if cfg.DBPath != "/tmp/x.db" {
		t.Errorf("unset flag must not override file, got %q", cfg.DBPath)
	}
	if cfg.LLM.CallTimeout != 15*time.Second {
		t.Errorf("expected 15s, got %v", cfg.LLM.CallTimeout)
	}
	if len(cfg.RAG.SearxngInstances) != 2 {
		t.Errorf("expected 2 instances, got %v", cfg.RAG.SearxngInstances)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"), nil, nil); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestValidate_Rejects(t *testing.T) {
	cfg := config.Default()
	cfg.QA.NumMin = 1.5
	cfg.LLM.Provider = "bedrock"
	cfg.Limits.GlossaryFill = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"qa.num_min", "llm.provider", "limits.glossary_fill"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %s", err, want)
		}
	}
}
