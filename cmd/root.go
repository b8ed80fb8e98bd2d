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
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/valpere/fintran/internal/config"
)

var version = "0.1.0"

var (
	configFile string

	cfg    *config.Config
	logger *slog.Logger
)

// flagBindings maps config keys to the flag names that override them. Only
// the flags a command actually has are bound.
var flagBindings = map[string]string{
	"db_path":                     "db",
	"log_level":                   "log-level",
	"log_format":                  "log-format",
	"llm.provider":                "llm-provider",
	"llm.base_url":                "llm-url",
	"llm.translate_model":         "translate-model",
	"llm.review_model":            "review-model",
	"qa.max_loops":                "max-loops",
	"qa.use_llm":                  "qa-llm",
	"segment.max_chars":           "segment-max-chars",
	"google.credentials_file":     "credentials",
	"google.project_id":           "project",
	"mymemory.email":              "mymemory-email",
	"trace.prompts":               "trace-prompts",
	"glossary.llm_term_extractor": "llm-terms",
}

var rootCmd = &cobra.Command{
	Use:   "fintran",
	Short: "Multilingual financial document translator",
	Long: `A CLI application that translates financial documents into several languages
while keeping every number intact and enforcing a per-client terminology glossary.

Each document is masked, classified, drafted and reviewed per target language,
then scored by a quality gate that repairs failing translations once before
reporting them.

Use "fintran translate --help" for translation options.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		bindings := map[string]string{}
		for key, name := range flagBindings {
			if cmd.Flags().Lookup(name) != nil {
				bindings[key] = name
			}
		}
		c, err := config.Load(configFile, cmd.Flags(), bindings)
		if err != nil {
			return err
		}
		cfg = c
		logger = newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
		return nil
	},
}

// newLogger builds the process logger from the configured level and format.
func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Execute runs the root command. An interrupt cancels the running command,
// leaving the last completed stage checkpointed.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default ./fintran.yaml or $HOME/.config/fintran/fintran.yaml)")
	rootCmd.PersistentFlags().String("db", "", "Database path (overrides db_path)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: json or text")
}
