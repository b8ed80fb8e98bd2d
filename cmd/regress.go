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

	"github.com/spf13/cobra"

	"github.com/valpere/fintran/internal/regress"
)

var regressCmd = &cobra.Command{
	Use:   "regress <fixtures>",
	Short: "Run regression fixtures through the pipeline",
	Long: `Run every YAML fixture of a directory (or a single fixture file) through the
pipeline and check numeric consistency and term coverage per target language.

Each fixture seeds its glossary into the global scope and its do-not-translate
terms for its client before its cases run. Retrieval and the translation
memory are disabled so results depend only on the fixture. The command exits
non-zero when any check fails.

Example:
  fintran regress ./testdata/regress`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var fixtures []*regress.Fixture
		info, err := os.Stat(args[0])
		if err != nil {
			return fmt.Errorf("failed to open fixtures: %w", err)
		}
		if info.IsDir() {
			fixtures, err = regress.Load(args[0])
		} else {
			var fx *regress.Fixture
			fx, err = regress.LoadFile(args[0])
			fixtures = append(fixtures, fx)
		}
		if err != nil {
			return err
		}
		if len(fixtures) == 0 {
			return fmt.Errorf("no fixtures found in %s", args[0])
		}

		ctx := cmd.Context()
		p, err := buildPipeline(ctx, pipelineOptions{Drafter: drafterName, NoMemory: true})
		if err != nil {
			return err
		}
		defer p.Close()

		var total, failed int
		for _, fx := range fixtures {
			if err := regress.Seed(ctx, p.store, fx); err != nil {
				return err
			}
			outcomes := regress.Run(ctx, p.orch, fx)
			for _, o := range outcomes {
				fmt.Println(o)
			}
			total += len(outcomes)
			failed += regress.Failed(outcomes)
		}

		fmt.Printf("%d/%d checks passed\n", total-failed, total)
		if failed > 0 {
			return fmt.Errorf("%d checks failed", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(regressCmd)

	regressCmd.Flags().StringVar(&drafterName, "drafter", "llm", "First-draft engine: llm, google or mymemory")
	regressCmd.Flags().Int("max-loops", 1, "Maximum repair passes per language")
	regressCmd.Flags().Bool("qa-llm", false, "Blend a model referee into the numeric and domain scores")
	regressCmd.Flags().String("translate-model", "", "Drafting model")
	regressCmd.Flags().String("review-model", "", "Reviewer and judge model")
}
