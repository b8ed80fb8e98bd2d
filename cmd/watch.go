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

	"github.com/spf13/cobra"

	"github.com/valpere/fintran/internal/inbox"
)

var (
	watchOutputDir  string
	watchExtensions []string
	watchSettle     time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Translate every document dropped into a directory",
	Long: `Watch an inbox directory and translate every .txt or .md file written to it.

For each input <name>.<ext> the translations are written to the output
directory as <name>.<lang>.txt together with <name>.report.json. The output
directory must not be the inbox itself. Stop with Ctrl-C.

Example:
  fintran watch ./inbox -o ./outbox --client fund_a --targets en,fr,de`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}
		out, err := filepath.Abs(watchOutputDir)
		if err != nil {
			return err
		}
		if in == out {
			return fmt.Errorf("output directory must differ from the inbox")
		}

		ctx := cmd.Context()
		p, err := buildPipeline(ctx, pipelineOptions{
			Drafter:      drafterName,
			IncludeTrace: withTrace,
			Checkpoints:  true,
			NoMemory:     noMemory,
		})
		if err != nil {
			return err
		}
		defer p.Close()

		handle := func(ctx context.Context, path string) error {
			text, err := readDocument(path)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Translating %s...\n", filepath.Base(path))
			res, err := p.orch.Run(ctx, newRequest(text))
			if err != nil {
				return fmt.Errorf("translation failed: %w", err)
			}
			printSummary(res)
			return writeOutputs(out, path, res)
		}

		fmt.Fprintf(os.Stderr, "Watching %s, writing to %s\n", in, out)
		return inbox.New(watchExtensions, watchSettle, logger).Watch(ctx, in, handle)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVarP(&watchOutputDir, "output", "o", "./outbox", "Output directory")
	watchCmd.Flags().StringSliceVar(&watchExtensions, "ext", inbox.DefaultExtensions, "File extensions to pick up")
	watchCmd.Flags().DurationVar(&watchSettle, "settle", 500*time.Millisecond, "Quiet period before a file is processed")
	watchCmd.Flags().BoolVar(&withTrace, "trace", false, "Include trace events in the reports")
	watchCmd.Flags().StringSliceVar(&targetLang, "targets", nil, "Target language codes (comma-separated, default all supported)")
	addRunFlags(watchCmd)
}
