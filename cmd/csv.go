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
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	csvInputFile  string
	csvOutputFile string
	csvTargetLang string
	csvColumns    []int
	csvHeader     bool
)

var csvCmd = &cobra.Command{
	Use:   "csv",
	Short: "Translate columns of a CSV file",
	Long: `Translate one or more columns in a CSV file into one target language.

Every cell runs through the full pipeline, so numbers, glossary terms and the
quality gate apply per cell. By default all columns are translated. Use -l to
select specific columns (0-indexed). The flag may be repeated to select
multiple columns.

Cells are checkpointed and remembered like documents: rerunning an interrupted
job reuses the translation memory for cells that were already accepted.

Example:
  fintran translate csv -i data.csv -o out.csv -t en -l 1 -l 3 --client fund_a`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if csvInputFile == csvOutputFile {
			return fmt.Errorf("input file and output file cannot be the same")
		}

		f, err := os.Open(csvInputFile)
		if err != nil {
			return fmt.Errorf("failed to open input CSV: %w", err)
		}
		defer f.Close()

		reader := csv.NewReader(f)
		records, err := reader.ReadAll()
		if err != nil {
			return fmt.Errorf("failed to read CSV: %w", err)
		}

		if len(records) == 0 {
			return fmt.Errorf("CSV file is empty")
		}

		ctx := cmd.Context()
		p, err := buildPipeline(ctx, pipelineOptions{
			Drafter:     drafterName,
			Checkpoints: true,
			NoMemory:    noMemory,
		})
		if err != nil {
			return err
		}
		defer p.Close()

		targetLang = []string{strings.ToLower(csvTargetLang)}

		// Determine which columns to translate.
		colSet := make(map[int]bool, len(csvColumns))
		for _, c := range csvColumns {
			colSet[c] = true
		}
		translateAll := len(csvColumns) == 0

		var translated, failed int
		out := make([][]string, len(records))
		for rowIdx, row := range records {
			out[rowIdx] = make([]string, len(row))
			copy(out[rowIdx], row)
			if csvHeader && rowIdx == 0 {
				continue
			}

			for colIdx, cell := range row {
				if !translateAll && !colSet[colIdx] {
					continue
				}
				if strings.TrimSpace(cell) == "" {
					continue
				}

				res, err := p.orch.Run(ctx, newRequest(cell))
				if err != nil {
					fmt.Fprintf(os.Stderr, "Row %d col %d: %v, keeping original\n", rowIdx, colIdx, err)
					failed++
					continue
				}
				lr, ok := res.Languages[targetLang[0]]
				if !ok {
					fmt.Fprintf(os.Stderr, "Row %d col %d: source is already %s, keeping original\n", rowIdx, colIdx, res.SrcLang)
					continue
				}
				if !lr.Passed {
					fmt.Fprintf(os.Stderr, "Row %d col %d: quality gate failed (num=%.2f term=%.2f dom=%.2f)\n",
						rowIdx, colIdx, lr.QA.NumericConsistency, lr.QA.TermCoverage, lr.QA.DomainScore)
					failed++
				}
				out[rowIdx][colIdx] = lr.Text
				translated++
			}
		}

		outFile, err := os.Create(csvOutputFile)
		if err != nil {
			return fmt.Errorf("failed to create output CSV: %w", err)
		}
		defer outFile.Close()

		writer := csv.NewWriter(outFile)
		if err := writer.WriteAll(out); err != nil {
			return fmt.Errorf("failed to write output CSV: %w", err)
		}
		writer.Flush()
		if err := writer.Error(); err != nil {
			return fmt.Errorf("failed to flush output CSV: %w", err)
		}

		fmt.Printf("CSV translated successfully: %s (%d cells, %d flagged)\n", csvOutputFile, translated, failed)
		return nil
	},
}

func init() {
	translateCmd.AddCommand(csvCmd)

	csvCmd.Flags().StringVarP(&csvInputFile, "input", "i", "", "Input CSV file (required)")
	csvCmd.Flags().StringVarP(&csvOutputFile, "output", "o", "", "Output CSV file (required)")
	csvCmd.Flags().StringVarP(&csvTargetLang, "target", "t", "", "Target language code (required)")
	csvCmd.Flags().IntSliceVarP(&csvColumns, "column", "l", nil, "Column index to translate (0-indexed, repeatable; default: all columns)")
	csvCmd.Flags().BoolVar(&csvHeader, "header", false, "Keep the first row untranslated")
	addRunFlags(csvCmd)

	csvCmd.MarkFlagRequired("input")
	csvCmd.MarkFlagRequired("output")
	csvCmd.MarkFlagRequired("target")
}
