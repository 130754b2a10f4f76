// Package store keeps user settings and a translation memo cache in SQLite.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	_ "modernc.org/sqlite"
)

// Setting keys written by `stran config set`.
const (
	SettingAPIKey     = "api_key"
	SettingTargetLang = "target_lang"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Jobs settle concurrently; one connection keeps SQLite writers serialized.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- translation_cache predates the backend column; its rows cannot be
	-- attributed to a backend.
	DROP TABLE IF EXISTS translation_cache;

	-- translation_memo memoizes results per paragraph, target language and backend
	CREATE TABLE IF NOT EXISTS translation_memo (
		source_text TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		backend TEXT NOT NULL,
		translated_text TEXT NOT NULL,
		usage_count INTEGER DEFAULT 1,
		last_used TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (source_text, target_lang, backend)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// GetSetting returns a stored setting; found is false when it was never set.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now())
	return err
}

// ListSettings returns all settings as a key → value map.
func (s *Store) ListSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		settings[k] = v
	}
	return settings, rows.Err()
}

// GetCachedTranslation looks up a translation produced by backend, which
// names the service and, when one is configured, its model.
func (s *Store) GetCachedTranslation(ctx context.Context, sourceText, targetLang, backend string) (string, bool, error) {
	key := normalizeText(sourceText)

	var translated string
	err := s.db.QueryRowContext(ctx,
		`SELECT translated_text FROM translation_memo WHERE source_text = ? AND target_lang = ? AND backend = ?`,
		key, targetLang, backend).Scan(&translated)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE translation_memo SET usage_count = usage_count + 1, last_used = ?
		 WHERE source_text = ? AND target_lang = ? AND backend = ?`,
		time.Now(), key, targetLang, backend)
	return translated, true, err
}

func (s *Store) SaveTranslation(ctx context.Context, sourceText, targetLang, translatedText, backend string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO translation_memo (source_text, target_lang, backend, translated_text, usage_count, last_used)
		 VALUES (?, ?, ?, ?, 1, ?)`,
		normalizeText(sourceText), targetLang, backend, translatedText, time.Now())
	return err
}

// CacheStats summarises cache usage.
type CacheStats struct {
	Entries    int
	TotalUsage int
	ByLanguage map[string]int
}

func (s *Store) Stats(ctx context.Context) (*CacheStats, error) {
	stats := &CacheStats{ByLanguage: make(map[string]int)}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(usage_count), 0) FROM translation_memo`).
		Scan(&stats.Entries, &stats.TotalUsage)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT target_lang, COUNT(*) FROM translation_memo GROUP BY target_lang`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var lang string
		var n int
		if err := rows.Scan(&lang, &n); err != nil {
			return nil, err
		}
		stats.ByLanguage[lang] = n
	}
	return stats, rows.Err()
}

// ClearCache removes all cached translations.
func (s *Store) ClearCache(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM translation_memo`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// normalizeText trims whitespace and applies Unicode NFC normalization
// for consistent cache key comparison.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}
