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
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	cacheClient string
	cacheLimit  int
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the translation memory",
	Long: `List, inspect, and clear the translation memory.

Accepted segment pairs are stored per client and language pair with the
embedding of their source text. A later segment whose embedding is close
enough reuses the stored translation verbatim.`,
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List translation memory entries, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := db.ListMemory(cmd.Context(), cacheClient, cacheLimit)
		if err != nil {
			return fmt.Errorf("failed to list entries: %w", err)
		}

		if len(entries) == 0 {
			fmt.Println("No entries in translation memory.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCLIENT\tSOURCE\tTARGET\tDOMAIN\tCREATED\tTEXT")
		for _, e := range entries {
			snippet := []rune(e.SourceText)
			if len(snippet) > 40 {
				snippet = append(snippet[:37], []rune("...")...)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				e.ID, e.ClientID, e.SourceLang, e.TargetLang, e.Domain,
				e.CreatedAt.Format("2006-01-02 15:04"), string(snippet))
		}
		return w.Flush()
	},
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show translation memory statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.MemoryStats(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to get stats: %w", err)
		}

		fmt.Printf("Total entries:   %d\n", stats.TotalEntries)
		fmt.Printf("Clients:         %d\n", stats.Clients)
		fmt.Printf("Language pairs:  %d\n", stats.LangPairs)
		return nil
	},
}

var cacheDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a translation memory entry by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.DeleteMemory(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to delete entry: %w", err)
		}
		fmt.Printf("Deleted entry: %s\n", args[0])
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove entries from translation memory",
	Long:  `Remove every entry of one client, or of all clients when --client is empty.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.ClearMemory(cmd.Context(), cacheClient)
		if err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
		fmt.Printf("Cleared %d entries from translation memory.\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)

	cacheCmd.PersistentFlags().StringVar(&cacheClient, "client", "", "Restrict to one client")
	cacheListCmd.Flags().IntVarP(&cacheLimit, "limit", "n", 50, "Maximum entries to list (0 for all)")

	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheDeleteCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
