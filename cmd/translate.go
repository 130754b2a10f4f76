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
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/valpere/stran/internal/config"
	"github.com/valpere/stran/internal/dom"
	"github.com/valpere/stran/internal/pipeline"
	"github.com/valpere/stran/internal/translator"
)

var (
	inputFile  string
	outputFile string
	selectExpr string
)

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Translate the selected part of an HTML document",
	Long: `Translate the region of an HTML document matched by --select.

The selection runs from the start of the first matching element to the end
of the last one. Its text is split into paragraphs, each paragraph is sent
to the backend on its own, and every result is inserted right after the
text node the paragraph ends in.

Backends:
  - openai   OpenAI-compatible chat completions (requires API key)
  - ollama   Ollama LLM (self-hosted)
  - google   Google Translate (requires credentials)

Use --worker ws://host:port/ws to send paragraphs to a "stran serve" worker.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if inputFile == outputFile && inputFile != "-" {
			return fmt.Errorf("input file and output file cannot be the same")
		}

		ctx := cmd.Context()
		cfg, db, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		doc, err := readDocument(inputFile)
		if err != nil {
			return err
		}
		r, err := doc.SelectRange(selectExpr)
		if err != nil {
			return err
		}

		tr, release, err := buildTranslator(ctx, cfg, db)
		if err != nil {
			return err
		}
		defer release()

		p := pipeline.New(tr, pipeline.Config{
			Placeholder: cfg.Placeholder,
			JobTimeout:  cfg.JobTimeout,
		})
		session := pipeline.NewSession(doc, dom.NewSelection(r), p, pipeline.SessionOptions{
			DropStale: cfg.DropStale,
		})
		session.SetEnabled(true)

		report, err := session.Translate(ctx)
		if errors.Is(err, translator.ErrConfigurationMissing) {
			return fmt.Errorf("%w\nSet it with: stran config set %s <value>", err, config.KeyAPIKey)
		}
		if report == nil {
			return err
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Stopped early: %v\n", err)
		}

		if err := writeDocument(outputFile, doc); err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Translated %d paragraphs to %s: %d succeeded, %d failed\n",
			report.Paragraphs, cfg.TargetLang, report.Succeeded, report.Failed)
		if report.Fallbacks > 0 {
			fmt.Fprintf(os.Stderr, "%d paragraphs placed at the end of the selection\n", report.Fallbacks)
		}
		return err
	},
}

func readDocument(path string) (*dom.Document, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read input file: %w", err)
		}
		defer f.Close()
		r = f
	}
	doc, err := dom.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse input: %w", err)
	}
	return doc, nil
}

func writeDocument(path string, doc *dom.Document) error {
	if path == "-" {
		return doc.Render(os.Stdout)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	if err := doc.Render(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return f.Close()
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Input HTML file, - for stdin (required)")
	translateCmd.Flags().StringVarP(&outputFile, "output", "o", "-", "Output HTML file, - for stdout")
	translateCmd.Flags().StringVarP(&selectExpr, "select", "s", "body", "CSS selector for the region to translate")

	addBackendFlags(translateCmd.Flags())
	translateCmd.Flags().String(config.FlagName(config.KeyWorker), "", "Worker URL (ws://...) to dispatch paragraphs to")
	translateCmd.Flags().Duration(config.FlagName(config.KeyJobTimeout), 0, "Per-paragraph timeout (default 60s)")
	translateCmd.Flags().Duration(config.FlagName(config.KeyWorkerTimeout), 0, "Time to wait for a worker completion (default 60s)")
	translateCmd.Flags().String(config.FlagName(config.KeyPlaceholder), "", "Text shown while a paragraph is in flight")
	translateCmd.Flags().Bool(config.FlagName(config.KeyDropStale), false, "Discard results that arrive after translation is turned off")

	translateCmd.MarkFlagRequired("input")
}
