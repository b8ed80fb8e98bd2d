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
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	ragDomain string
	ragClient string
	ragTopK   int
)

var ragCmd = &cobra.Command{
	Use:   "rag",
	Short: "Manage the reference corpus",
	Long: `Grow and query the reference corpus used for prompt context.

Documents are filed under a domain (and optionally a client), embedded, and
retrieved by similarity when "translate --rag" is used.`,
}

var ragIngestCmd = &cobra.Command{
	Use:   "ingest <url>...",
	Short: "Fetch, embed and store reference pages",
	Long: `Fetch each URL, extract its text, embed it and file it under the domain.
URLs already stored for the domain are skipped.

Example:
  fintran rag ingest https://www.ilpa.org/glossary/ --domain "Private Equity"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dom := scopeDomain(ragDomain)
		if dom == "" {
			return fmt.Errorf("--domain is required")
		}
		p, err := buildCorpus()
		if err != nil {
			return err
		}
		defer p.Close()

		fmt.Fprintf(os.Stderr, "Ingesting %d URLs into %s...\n", len(args), dom)
		n, err := p.retriever.Ingest(cmd.Context(), args, dom, ragClient)
		if err != nil {
			return fmt.Errorf("ingest failed: %w", err)
		}
		fmt.Printf("Added %d documents to %s\n", n, dom)
		return nil
	},
}

var ragSeedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Register seed sources per domain",
	Long: `Register seed source URLs from a YAML file shaped as domain → list of sources:

  Private Equity:
    - url: https://www.ilpa.org/glossary/
      title: ILPA glossary
      year: 2024

Backfill ingests registered seeds before it falls back to web search.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildCorpus()
		if err != nil {
			return err
		}
		defer p.Close()

		n, err := p.retriever.LoadSeeds(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Registered %d new seed sources\n", n)
		return nil
	},
}

var ragQueryCmd = &cobra.Command{
	Use:   "query <text>",
	Short: "Show the snippets retrieved for a text",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dom := scopeDomain(ragDomain)
		p, err := buildCorpus()
		if err != nil {
			return err
		}
		defer p.Close()

		snippets, err := p.retriever.Retrieve(cmd.Context(), strings.Join(args, " "), dom, ragClient, ragTopK)
		if err != nil {
			return fmt.Errorf("retrieval failed: %w", err)
		}
		if len(snippets) == 0 {
			fmt.Println("No matching documents.")
			return nil
		}
		for i, s := range snippets {
			fmt.Printf("--- %d ---\n%s\n", i+1, s)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ragCmd)

	ragCmd.PersistentFlags().StringVar(&ragDomain, "domain", "", "Domain the documents belong to")
	ragCmd.PersistentFlags().StringVar(&ragClient, "client", "", "Client owning the documents (optional)")
	ragQueryCmd.Flags().IntVarP(&ragTopK, "top", "k", 3, "Number of snippets")

	ragCmd.AddCommand(ragIngestCmd)
	ragCmd.AddCommand(ragSeedCmd)
	ragCmd.AddCommand(ragQueryCmd)
}
