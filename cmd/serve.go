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
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/valpere/stran/internal/logging"
	"github.com/valpere/stran/internal/worker"
)

var (
	serveAddr    string
	servePath    string
	serveTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a translation worker over websocket",
	Long: `Run a worker that accepts paragraphs over a websocket connection,
answers each with a worker id, and later sends back a completion carrying
that id with the translation or an error.

Point "stran translate --worker ws://host:port/ws" at it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg, db, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		tr, err := buildBackend(cfg, db)
		if err != nil {
			return err
		}

		mux := http.NewServeMux()
		mux.Handle(servePath, worker.NewServer(tr, worker.WithTimeout(serveTimeout)))

		srv := &http.Server{
			Addr:              serveAddr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errc := make(chan error, 1)
		go func() {
			logging.Info("worker listening", "addr", serveAddr, "path", servePath, "service", cfg.Service, "target_lang", cfg.TargetLang)
			errc <- srv.ListenAndServe()
		}()

		select {
		case err := <-errc:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("worker server failed: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		logging.Info("shutting down worker")
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&servePath, "path", "/ws", "Websocket endpoint path")
	serveCmd.Flags().DurationVar(&serveTimeout, "timeout", worker.DefaultEngineTimeout, "Per-paragraph bound for each worker")
	addBackendFlags(serveCmd.Flags())
}
