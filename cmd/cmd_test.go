package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/valpere/fintran/internal/orchestrator"
	"github.com/valpere/fintran/internal/qa"
	"github.com/valpere/fintran/internal/store"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := newLogger(&buf, "info", "json")
	log.Debug("hidden")
	log.Info("shown", "client", "fund_a")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("debug record written at info level: %s", out)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &rec); err != nil {
		t.Fatalf("expected one JSON record, got %q: %v", out, err)
	}
	if rec["msg"] != "shown" || rec["client"] != "fund_a" {
		t.Errorf("unexpected record %v", rec)
	}

	buf.Reset()
	newLogger(&buf, "debug", "text").Debug("visible")
	if !strings.Contains(buf.String(), "msg=visible") {
		t.Errorf("expected a text record, got %q", buf.String())
	}
}

func TestReadDocument(t *testing.T) {
	dir := t.TempDir()
	md := filepath.Join(dir, "memo.md")
	if err := os.WriteFile(md, []byte("# Memo\n\nThe **IRR** was 12.5%.\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := readDocument(md)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(got, "**") || !strings.Contains(got, "The IRR was 12.5%.") {
		t.Errorf("expected plain text, got %q", got)
	}

	if _, err := readDocument(filepath.Join(dir, "missing.txt")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestWriteOutputs(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	res := &orchestrator.Result{
		ID:      "run-1",
		SrcLang: "es",
		Languages: map[string]*orchestrator.LanguageResult{
			"en": {Text: "The IRR was 12.5%.", Passed: true, QA: qa.Result{NumericConsistency: 1, TermCoverage: 1, DomainScore: 0.9}},
			"fr": {Text: "Le TRI était de 12,5 %.", Passed: true},
		},
	}
	if err := writeOutputs(dir, "/inbox/memo.txt", res); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	en, err := os.ReadFile(filepath.Join(dir, "memo.en.txt"))
	if err != nil || string(en) != "The IRR was 12.5%." {
		t.Errorf("unexpected en output %q %v", en, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "memo.fr.txt")); err != nil {
		t.Errorf("missing fr output: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "memo.report.json"))
	if err != nil {
		t.Fatalf("missing report: %v", err)
	}
	var report orchestrator.Result
	if err := json.Unmarshal(raw, &report); err != nil {
		t.Fatalf("invalid report: %v", err)
	}
	if report.ID != "run-1" || len(report.Languages) != 2 {
		t.Errorf("unexpected report %+v", report)
	}
}

func TestGlossaryCommands(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "fintran.db")
	exported := filepath.Join(dir, "fund_a.yaml")

	if err := execute(t, "glossary", "upsert", "IRR", "fr", "TRI", "--client", "fund_a", "--domain", "", "--db", db); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := execute(t, "glossary", "export", "--client", "fund_a", "--format", "yaml", "-o", exported, "--db", db); err != nil {
		t.Fatalf("export: %v", err)
	}
	raw, err := os.ReadFile(exported)
	if err != nil || !strings.Contains(string(raw), "GLOBAL::IRR") {
		t.Fatalf("unexpected export %q %v", raw, err)
	}
	if err := execute(t, "glossary", "import", exported, "--client", "fund_b", "--db", db); err != nil {
		t.Fatalf("import: %v", err)
	}

	if err := execute(t, "glossary", "upsert", "NAV", "de", "NIW", "--client", "", "--domain", "", "--db", db); err != nil {
		t.Fatalf("global upsert: %v", err)
	}
	if err := execute(t, "glossary", "bootstrap", "--client", "fund_c", "--domain", "", "--db", db); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	err = execute(t, "glossary", "upsert", "GP", "es", "Gestor de Proyectos", "--client", "fund_a", "--db", db)
	if !errors.Is(err, store.ErrBannedTranslation) {
		t.Errorf("expected banned translation error, got %v", err)
	}

	st, err := store.New(db)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	_, fr, err := st.GlossaryBlock(context.Background(), "fund_b", "Private Equity", "fr")
	if err != nil || fr["IRR"] != "TRI" {
		t.Errorf("expected imported TRI for fund_b, got %v %v", fr, err)
	}
	entries, err := st.ListGlossary(context.Background(), store.GlossaryFilter{Scope: store.Scope{Client: "fund_c"}, ScopeSet: true})
	if err != nil || len(entries) != 1 || entries[0].ConceptKey != "NAV" || entries[0].Preferred != "NIW" {
		t.Errorf("expected the global NAV entry seeded for fund_c, got %+v %v", entries, err)
	}
	if _, es, _ := st.GlossaryBlock(context.Background(), "fund_a", "", "es"); es["GP"] != "" {
		t.Errorf("banned form was stored: %q", es["GP"])
	}
}

func TestDNTCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "fintran.db")

	dntClient = ""
	if err := execute(t, "dnt", "list", "--db", db); err == nil {
		t.Error("expected error without --client")
	}
	if err := execute(t, "dnt", "add", "Acme Capital", "Fondo Horizonte II", "--client", "fund_a", "--db", db); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := execute(t, "dnt", "remove", "Acme Capital", "--client", "fund_a", "--db", db); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := execute(t, "dnt", "remove", "Acme Capital", "--client", "fund_a", "--db", db); err == nil {
		t.Error("expected error removing a term twice")
	}

	st, err := store.New(db)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	terms, err := st.DNTList(context.Background(), "fund_a")
	if err != nil || len(terms) != 1 || terms[0] != "Fondo Horizonte II" {
		t.Errorf("unexpected terms %v %v", terms, err)
	}
}

func TestWatchRejectsInboxAsOutput(t *testing.T) {
	dir := t.TempDir()
	err := execute(t, "watch", dir, "-o", dir, "--db", filepath.Join(dir, "fintran.db"))
	if err == nil || !strings.Contains(err.Error(), "must differ") {
		t.Errorf("expected output directory error, got %v", err)
	}
}

func TestInvalidConfigFlag(t *testing.T) {
	db := filepath.Join(t.TempDir(), "fintran.db")
	if err := execute(t, "cache", "stats", "--db", db, "--log-format", "xml"); err == nil {
		t.Error("expected validation error for an unknown log format")
	}
	if err := execute(t, "cache", "stats", "--db", db, "--log-format", "text"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
