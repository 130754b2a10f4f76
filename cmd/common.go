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

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/valpere/stran/internal/config"
	"github.com/valpere/stran/internal/store"
	"github.com/valpere/stran/internal/translator"
	"github.com/valpere/stran/internal/worker"
)

// addBackendFlags registers the flags that pick and configure a
// translation backend. Empty defaults defer to environment, config file,
// saved settings and built-in defaults.
func addBackendFlags(fs *pflag.FlagSet) {
	fs.String(config.FlagName(config.KeyService), "", "Translation backend: openai, ollama, google (default openai)")
	fs.String(config.FlagName(config.KeyAPIKey), "", "API key for the backend")
	fs.String(config.FlagName(config.KeyBaseURL), "", "Backend base URL")
	fs.String(config.FlagName(config.KeyModel), "", "Model name for LLM backends")
	fs.String(config.FlagName(config.KeyCredentials), "", "Path to Google Cloud credentials")
	fs.String(config.FlagName(config.KeySourceLang), "", "Source language code (detected by the backend if empty)")
	fs.StringP(config.FlagName(config.KeyTargetLang), "t", "", "Target language code (default ko)")
	fs.Bool(config.FlagName(config.KeyCache), false, "Reuse and store translations in the local cache")
}

// openStore opens the database, creating its directory first.
func openStore(path string) (*store.Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// loadConfig resolves the configuration and opens the store it names. The
// store's saved settings take part in the resolution.
func loadConfig(cmd *cobra.Command) (*config.Config, *store.Store, error) {
	ctx := cmd.Context()

	bootstrap, err := config.Load(ctx, cfgFile, cmd.Flags(), nil)
	if err != nil {
		return nil, nil, err
	}
	db, err := openStore(bootstrap.DB)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(ctx, cfgFile, cmd.Flags(), db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return cfg, db, nil
}

// buildService constructs the backend named by cfg.Service.
func buildService(cfg *config.Config) (translator.TranslationService, error) {
	switch cfg.Service {
	case "openai":
		return translator.NewOpenAIService(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case "ollama":
		return translator.NewOllamaTranslator(cfg.BaseURL, cfg.Model), nil
	case "google":
		return translator.NewGoogleService(cfg.Credentials), nil
	}
	return nil, fmt.Errorf("unknown service: %s", cfg.Service)
}

// buildBackend binds the configured service to the target language,
// optionally behind the cache.
func buildBackend(cfg *config.Config, db *store.Store) (translator.Translator, error) {
	svc, err := buildService(cfg)
	if err != nil {
		return nil, err
	}
	tr := translator.Bind(svc, translator.ServiceConfig{
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		BaseURL:     cfg.BaseURL,
		Credentials: cfg.Credentials,
	}, cfg.SourceLang, cfg.TargetLang)

	if cfg.Cache && db != nil {
		tr = translator.Cached(tr, db, cfg.TargetLang, translator.BackendKey(svc.Name(), cfg.Model))
	}
	return tr, nil
}

// buildTranslator returns the capability paragraphs are sent to: a remote
// worker when one is configured, the backend directly otherwise. The
// returned func releases any connection.
func buildTranslator(ctx context.Context, cfg *config.Config, db *store.Store) (translator.Translator, func(), error) {
	if cfg.Worker == "" {
		tr, err := buildBackend(cfg, db)
		return tr, func() {}, err
	}

	client, err := worker.Dial(ctx, cfg.Worker, 0)
	if err != nil {
		return nil, nil, err
	}
	tr := worker.NewTranslator(client, cfg.WorkerTimeout)
	return tr, func() { client.Close() }, nil
}
