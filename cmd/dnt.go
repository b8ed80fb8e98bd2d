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
	"strings"

	"github.com/spf13/cobra"
)

var dntClient string

var dntCmd = &cobra.Command{
	Use:   "dnt",
	Short: "Manage the do-not-translate list of a client",
	Long: `Add, remove and list terms that must never be translated for a client.

Do-not-translate terms are masked before drafting and restored verbatim, the
same way numbers and identifiers are.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		if strings.TrimSpace(dntClient) == "" {
			return fmt.Errorf("--client is required")
		}
		return nil
	},
}

var dntAddCmd = &cobra.Command{
	Use:   "add <term>...",
	Short: "Add terms to the list",
	Long: `Add one or more terms to the client's do-not-translate list.

Example:
  fintran dnt add "Acme Capital" "Fondo Horizonte II" --client fund_a`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		for _, term := range args {
			if err := db.AddDNT(cmd.Context(), dntClient, term); err != nil {
				return fmt.Errorf("failed to add %q: %w", term, err)
			}
			fmt.Printf("Added: %q\n", term)
		}
		return nil
	},
}

var dntRemoveCmd = &cobra.Command{
	Use:   "remove <term>",
	Short: "Remove a term from the list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		removed, err := db.RemoveDNT(cmd.Context(), dntClient, args[0])
		if err != nil {
			return fmt.Errorf("failed to remove %q: %w", args[0], err)
		}
		if !removed {
			return fmt.Errorf("%q is not on the list of %s", args[0], dntClient)
		}
		fmt.Printf("Removed: %q\n", args[0])
		return nil
	},
}

var dntListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the do-not-translate terms",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore()
		if err != nil {
			return err
		}
		defer db.Close()

		terms, err := db.DNTList(cmd.Context(), dntClient)
		if err != nil {
			return fmt.Errorf("failed to list terms: %w", err)
		}
		if len(terms) == 0 {
			fmt.Printf("No do-not-translate terms for %s.\n", dntClient)
			return nil
		}
		for _, t := range terms {
			fmt.Println(t)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dntCmd)

	dntCmd.PersistentFlags().StringVar(&dntClient, "client", "", "Client id (required)")

	dntCmd.AddCommand(dntAddCmd)
	dntCmd.AddCommand(dntRemoveCmd)
	dntCmd.AddCommand(dntListCmd)
}
