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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/valpere/fintran/internal"
	"github.com/valpere/fintran/internal/markdown"
	"github.com/valpere/fintran/internal/orchestrator"
)

const defaultClient = "default"

var (
	inputFile  string
	outputDir  string
	clientID   string
	sourceLang string
	targetLang []string
	domainName string
	useRAG     bool

	drafterName  string
	withTrace    bool
	noCheckpoint bool
	noMemory     bool
)

var translateCmd = &cobra.Command{
	Use:   "translate [file]",
	Short: "Translate a document into several languages",
	Long: `Translate a document into every target language.

Numbers, dates, identifiers and do-not-translate terms are masked before
translation and restored afterwards. The client glossary is resolved for every
target language, each segment is drafted and reviewed, and every language is
scored by the quality gate:

  numeric consistency   every quantity of the source appears in the target
  term coverage         preferred glossary forms are used
  domain alignment      the register fits the document domain

Languages that still fail after the repair budget are reported with
"passed": false. The JSON report is printed to stdout.

Markdown inputs (.md) are converted to plain text first.

Examples:
  fintran translate -i memo.txt --targets en,fr --client fund_a
  fintran translate memo.md -o out/ --domain "Private Equity" --rag --trace`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if inputFile == "" && len(args) == 1 {
			inputFile = args[0]
		}
		if inputFile == "" {
			return fmt.Errorf("an input file is required")
		}

		text, err := readDocument(inputFile)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		p, err := buildPipeline(ctx, pipelineOptions{
			Drafter:      drafterName,
			IncludeTrace: withTrace,
			Checkpoints:  !noCheckpoint,
			NoMemory:     noMemory,
		})
		if err != nil {
			return err
		}
		defer p.Close()

		fmt.Fprintf(os.Stderr, "Translating %s for client %s...\n", filepath.Base(inputFile), clientID)
		res, err := p.orch.Run(ctx, newRequest(text))
		if err != nil {
			return fmt.Errorf("translation failed: %w", err)
		}
		if res.ResumedFrom != "" {
			fmt.Fprintf(os.Stderr, "Resumed after stage %s\n", res.ResumedFrom)
		}
		printSummary(res)

		if outputDir != "" {
			if err := writeOutputs(outputDir, inputFile, res); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Outputs written to %s\n", outputDir)
		}

		report, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		fmt.Println(string(report))
		return nil
	},
}

func newRequest(text string) internal.TranslationRequest {
	return internal.TranslationRequest{
		ID:          uuid.New().String(),
		Client:      clientID,
		SourceText:  text,
		SourceLang:  sourceLang,
		TargetLangs: targetLang,
		Domain:      domainName,
		UseRAG:      useRAG,
		Timestamp:   time.Now(),
	}
}

// readDocument loads a document, converting markdown to plain text.
func readDocument(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read input file: %w", err)
	}
	if markdown.IsMarkdown(path) {
		return markdown.ToPlainText(data), nil
	}
	return string(data), nil
}

// writeOutputs writes <name>.<lang>.txt for every language plus
// <name>.report.json into dir.
func writeOutputs(dir, inputPath string, res *orchestrator.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	for lang, lr := range res.Languages {
		path := filepath.Join(dir, fmt.Sprintf("%s.%s.txt", name, lang))
		if err := os.WriteFile(path, []byte(lr.Text), 0o644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
	}
	report, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name+".report.json"), report, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// printSummary writes one line per language to stderr.
func printSummary(res *orchestrator.Result) {
	langs := make([]string, 0, len(res.Languages))
	for lang := range res.Languages {
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	fmt.Fprintf(os.Stderr, "Source: %s, domain: %s\n", res.SrcLang, res.Domain)
	for _, lang := range langs {
		lr := res.Languages[lang]
		verdict := "passed"
		if !lr.Passed {
			verdict = "FAILED"
		}
		fmt.Fprintf(os.Stderr, "  %s: num=%.2f term=%.2f dom=%.2f repairs=%d tm_hits=%d %s\n",
			lang, lr.QA.NumericConsistency, lr.QA.TermCoverage, lr.QA.DomainScore, lr.Repairs, lr.TMHits, verdict)
		for _, w := range lr.Warnings {
			fmt.Fprintf(os.Stderr, "    warning: %s\n", w)
		}
	}
	if len(res.Unresolved) > 0 {
		fmt.Fprintf(os.Stderr, "Unresolved terms: %s\n", strings.Join(res.Unresolved, ", "))
	}
}

// addRunFlags registers the flags shared by every command that runs the
// pipeline.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&clientID, "client", defaultClient, "Client id scoping the glossary, do-not-translate list and memory")
	cmd.Flags().StringVarP(&sourceLang, "source", "s", "auto", "Source language code")
	cmd.Flags().StringVar(&domainName, "domain", "", "Document domain (classified when empty)")
	cmd.Flags().BoolVar(&useRAG, "rag", false, "Add reference snippets from the domain corpus to prompts")
	cmd.Flags().StringVar(&drafterName, "drafter", "llm", "First-draft engine: llm, google or mymemory")
	cmd.Flags().BoolVar(&noMemory, "no-memory", false, "Disable the translation memory")
	cmd.Flags().Int("max-loops", 1, "Maximum repair passes per language")
	cmd.Flags().Int("segment-max-chars", 1400, "Maximum characters per segment")
	cmd.Flags().Bool("qa-llm", false, "Blend a model referee into the numeric and domain scores")
	cmd.Flags().String("llm-provider", "", "Language service provider: ollama or openai")
	cmd.Flags().String("llm-url", "", "Language service base URL")
	cmd.Flags().String("translate-model", "", "Drafting model")
	cmd.Flags().String("review-model", "", "Reviewer and judge model")
	cmd.Flags().String("credentials", "", "Path to Google Cloud credentials (google drafter)")
	cmd.Flags().String("project", "", "Google Cloud project id (google drafter)")
	cmd.Flags().String("mymemory-email", "", "Contact email raising the MyMemory quota (mymemory drafter)")
	cmd.Flags().Bool("trace-prompts", false, "Include prompts and responses in trace events")
	cmd.Flags().Bool("llm-terms", true, "Use the model to extract candidate terms")
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input file to translate")
	translateCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory for <name>.<lang>.txt and <name>.report.json")
	translateCmd.Flags().BoolVar(&withTrace, "trace", false, "Include trace events in the report")
	translateCmd.Flags().BoolVar(&noCheckpoint, "no-checkpoint", false, "Do not write or resume checkpoints")
	translateCmd.Flags().StringSliceVar(&targetLang, "targets", nil, "Target language codes (comma-separated, default all supported)")
	addRunFlags(translateCmd)
}
