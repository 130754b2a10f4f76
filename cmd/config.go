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
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/stran/internal/config"
	"github.com/valpere/stran/internal/translator"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage saved settings",
	Long: `Save, show, and list settings kept in the local database.

Saved keys: api_key, target_lang. Environment variables (STRAN_API_KEY,
STRAN_TARGET_LANG) and flags take precedence over saved values.`,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Save a setting",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], strings.TrimSpace(args[1])
		if !config.IsSaved(key) {
			return fmt.Errorf("unknown setting %q (want one of %s)", key, strings.Join(config.Saved, ", "))
		}
		if key == config.KeyTargetLang {
			name, err := translator.LanguageName(value)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "Target language: %s\n", name)
		}

		_, db, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.SetSetting(cmd.Context(), key, value); err != nil {
			return fmt.Errorf("failed to save setting: %w", err)
		}
		fmt.Printf("Saved %s\n", key)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Show a saved setting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		value, ok, err := db.GetSetting(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to read setting: %w", err)
		}
		if !ok {
			return fmt.Errorf("setting %q is not saved", args[0])
		}
		fmt.Println(displayValue(args[0], value))
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		settings, err := db.ListSettings(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list settings: %w", err)
		}
		if len(settings) == 0 {
			fmt.Println("No saved settings.")
			return nil
		}

		keys := make([]string, 0, len(settings))
		for k := range settings {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tVALUE")
		for _, k := range keys {
			fmt.Fprintf(w, "%s\t%s\n", k, displayValue(k, settings[k]))
		}
		return w.Flush()
	},
}

// displayValue masks secrets.
func displayValue(key, value string) string {
	if key != config.KeyAPIKey {
		return value
	}
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

func init() {
	rootCmd.AddCommand(configCmd)

	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configListCmd)
}
