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
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/valpere/fintran/internal/concept"
	"github.com/valpere/fintran/internal/domain"
	"github.com/valpere/fintran/internal/glossary"
	"github.com/valpere/fintran/internal/store"
)

var (
	glossaryClient string
	glossaryDomain string
)

var glossaryCmd = &cobra.Command{
	Use:   "glossary",
	Short: "Manage the terminology glossary",
	Long: `Upsert, list, export, import, bootstrap and validate glossary entries.

Entries are scoped by client and domain. Lookups walk the scopes from the most
specific to the global one:

  (client, domain) > (client, *) > (*, domain) > (*, *)

Leave --client or --domain empty to address the global scope.`,
}

// scopeDomain normalises a user supplied domain, keeping empty as "any".
func scopeDomain(d string) string {
	if strings.TrimSpace(d) == "" {
		return ""
	}
	return domain.Normalize(d)
}

var glossaryVariants []string

var glossaryUpsertCmd = &cobra.Command{
	Use:   "upsert <concept> <lang> <preferred>",
	Short: "Set the preferred form of a concept in one language",
	Long: `Set the preferred form of a concept for a scope. Variants already recorded are
kept; --variant adds more. Preferred forms on the banned list are rejected.

Example:
  fintran glossary upsert IRR fr TRI --client fund_a --domain "Private Equity"
  fintran glossary upsert "management fee" es "comisión de gestión" --variant "comisión de administración"`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := cmd.Context()
		sc := store.Scope{Client: glossaryClient, Domain: scopeDomain(glossaryDomain)}
		key := concept.Key(args[0])
		lang := strings.ToLower(args[1])
		if err := db.UpsertPreferred(ctx, sc, key, lang, args[2]); err != nil {
			return fmt.Errorf("failed to upsert glossary entry: %w", err)
		}
		if len(glossaryVariants) > 0 {
			if err := db.AddVariants(ctx, sc, key, lang, glossaryVariants); err != nil {
				return fmt.Errorf("failed to add variants: %w", err)
			}
		}
		fmt.Printf("Upserted: [%s] %s/%s → %q\n", sc, key, lang, args[2])
		return nil
	},
}

var glossaryListLang string

var glossaryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List glossary entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := db.ListGlossary(cmd.Context(), store.GlossaryFilter{
			Client: glossaryClient,
			Lang:   strings.ToLower(glossaryListLang),
		})
		if err != nil {
			return fmt.Errorf("failed to list glossary: %w", err)
		}

		if len(entries) == 0 {
			fmt.Println("Glossary is empty.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SCOPE\tCONCEPT\tLANG\tPREFERRED\tVARIANTS\tUPDATED")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				e.Scope, e.ConceptKey, e.Lang, e.Preferred,
				strings.Join(e.Variants, "; "), e.UpdatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var (
	glossaryExportFormat string
	glossaryExportOutput string
)

var glossaryExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a client glossary as YAML or JSON",
	Long: `Export every entry stored for a client. Keys are "<domain|GLOBAL>::<concept>"
with a language to preferred form map each, the shape "glossary import" reads.

Example:
  fintran glossary export --client fund_a --format yaml -o fund_a.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if glossaryClient == "" {
			return fmt.Errorf("--client is required")
		}
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		data, err := db.ExportClient(cmd.Context(), glossaryClient)
		if err != nil {
			return fmt.Errorf("failed to export glossary: %w", err)
		}

		var out []byte
		switch glossaryExportFormat {
		case "yaml", "yml":
			out, err = yaml.Marshal(data)
		case "json":
			out, err = json.MarshalIndent(data, "", "  ")
		default:
			return fmt.Errorf("unknown format %q (use yaml or json)", glossaryExportFormat)
		}
		if err != nil {
			return fmt.Errorf("failed to encode glossary: %w", err)
		}

		if glossaryExportOutput == "" {
			_, err = os.Stdout.Write(out)
			return err
		}
		if err := os.WriteFile(glossaryExportOutput, out, 0o644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Exported %d concepts to %s\n", len(data), glossaryExportOutput)
		return nil
	},
}

var glossaryImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a client glossary exported with \"glossary export\"",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if glossaryClient == "" {
			return fmt.Errorf("--client is required")
		}
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read input file: %w", err)
		}
		// JSON is a subset of YAML, so one decoder reads both formats.
		var data map[string]map[string]string
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return fmt.Errorf("failed to parse glossary: %w", err)
		}

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		n, rejected, err := db.ImportClient(cmd.Context(), glossaryClient, data)
		for _, r := range rejected {
			fmt.Fprintf(os.Stderr, "Skipped: %v\n", r)
		}
		if err != nil {
			return err
		}
		fmt.Printf("Imported %d entries for %s (%d rejected)\n", n, glossaryClient, len(rejected))
		return nil
	},
}

var bootstrapLangs []string

var glossaryBootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Seed a client scope from the global glossary",
	Long: `Copy the global entries visible to --domain into the (client, domain) scope so
they can be edited per client. Concepts the client already defines are kept.

Example:
  fintran glossary bootstrap --client fund_a --domain "Private Equity"
  fintran glossary bootstrap --client fund_a --lang en --lang fr`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if glossaryClient == "" {
			return fmt.Errorf("--client is required")
		}
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		langs := make([]string, 0, len(bootstrapLangs))
		for _, l := range bootstrapLangs {
			langs = append(langs, strings.ToLower(strings.TrimSpace(l)))
		}
		sc := store.Scope{Client: glossaryClient, Domain: scopeDomain(glossaryDomain)}
		n, err := db.BootstrapClient(cmd.Context(), sc.Client, sc.Domain, langs)
		if err != nil {
			return fmt.Errorf("failed to bootstrap glossary: %w", err)
		}
		fmt.Printf("Seeded %d entries into [%s]\n", n, sc)
		return nil
	},
}

var (
	validateInput string
	validateLang  string
)

var glossaryValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Report glossary coverage of a translated text",
	Long: `Check which preferred forms of the scope-merged glossary occur in a text, as
whole words, ignoring case. The report is printed as JSON.

Example:
  fintran glossary validate -i memo.fr.txt --lang fr --client fund_a --domain "Private Equity"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if validateLang == "" {
			return fmt.Errorf("--lang is required")
		}
		var text []byte
		var err error
		if validateInput == "" || validateInput == "-" {
			text, err = io.ReadAll(os.Stdin)
		} else {
			text, err = os.ReadFile(validateInput)
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		_, preferred, err := db.GlossaryBlock(cmd.Context(), glossaryClient, scopeDomain(glossaryDomain), strings.ToLower(validateLang))
		if err != nil {
			return fmt.Errorf("failed to load glossary: %w", err)
		}
		report, err := json.MarshalIndent(glossary.Validate(string(text), preferred), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(report))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(glossaryCmd)

	glossaryCmd.PersistentFlags().StringVar(&glossaryClient, "client", "", "Client id (empty for the global scope)")
	glossaryCmd.PersistentFlags().StringVar(&glossaryDomain, "domain", "", "Domain (empty for any domain)")

	glossaryUpsertCmd.Flags().StringSliceVar(&glossaryVariants, "variant", nil, "Accepted variant (repeatable)")

	glossaryListCmd.Flags().StringVarP(&glossaryListLang, "lang", "l", "", "Filter by language code (e.g. fr)")

	glossaryExportCmd.Flags().StringVarP(&glossaryExportFormat, "format", "f", "yaml", "Output format: yaml or json")
	glossaryExportCmd.Flags().StringVarP(&glossaryExportOutput, "output", "o", "", "Output file (default stdout)")

	glossaryBootstrapCmd.Flags().StringSliceVarP(&bootstrapLangs, "lang", "l", nil, "Language to seed (repeatable; default es, fr, de)")

	glossaryValidateCmd.Flags().StringVarP(&validateInput, "input", "i", "", "Text file to check (default stdin)")
	glossaryValidateCmd.Flags().StringVarP(&validateLang, "lang", "l", "", "Language of the text")

	glossaryCmd.AddCommand(glossaryUpsertCmd)
	glossaryCmd.AddCommand(glossaryListCmd)
	glossaryCmd.AddCommand(glossaryExportCmd)
	glossaryCmd.AddCommand(glossaryImportCmd)
	glossaryCmd.AddCommand(glossaryValidateCmd)
	glossaryCmd.AddCommand(glossaryBootstrapCmd)
}
