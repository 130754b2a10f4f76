package store

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_New_InvalidPath(t *testing.T) {
	_, err := New("/nonexistent/path/test.db")
	if err == nil {
		t.Error("expected error for invalid path")
	}
}

func TestStore_Settings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, found, err := s.GetSetting(ctx, SettingAPIKey); err != nil || found {
		t.Fatalf("expected missing setting, got found=%v err=%v", found, err)
	}

	if err := s.SetSetting(ctx, SettingAPIKey, "sk-1"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	if err := s.SetSetting(ctx, SettingAPIKey, "sk-2"); err != nil {
		t.Fatalf("SetSetting overwrite failed: %v", err)
	}
	if err := s.SetSetting(ctx, SettingTargetLang, "ja"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}

	v, found, err := s.GetSetting(ctx, SettingAPIKey)
	if err != nil || !found || v != "sk-2" {
		t.Errorf("expected sk-2, got %q found=%v err=%v", v, found, err)
	}

	all, err := s.ListSettings(ctx)
	if err != nil {
		t.Fatalf("ListSettings failed: %v", err)
	}
	if len(all) != 2 || all[SettingTargetLang] != "ja" {
		t.Errorf("unexpected settings: %v", all)
	}
}

func TestStore_GetCachedTranslation_Miss(t *testing.T) {
	s := newTestStore(t)

	text, found, err := s.GetCachedTranslation(context.Background(), "Hello", "ko", "openai")
	if err != nil {
		t.Errorf("GetCachedTranslation failed: %v", err)
	}
	if found {
		t.Error("expected not found for uncached translation")
	}
	if text != "" {
		t.Errorf("expected empty text, got %q", text)
	}
}

func TestStore_GetCachedTranslation_Hit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveTranslation(ctx, "Hello world", "ko", "안녕 세계", "openai"); err != nil {
		t.Fatalf("SaveTranslation failed: %v", err)
	}

	// Lookups are whitespace-insensitive at the edges.
	text, found, err := s.GetCachedTranslation(ctx, "  Hello world\n", "ko", "openai")
	if err != nil {
		t.Errorf("GetCachedTranslation failed: %v", err)
	}
	if !found || text != "안녕 세계" {
		t.Errorf("expected '안녕 세계', got %q found=%v", text, found)
	}

	if _, found, _ := s.GetCachedTranslation(ctx, "Hello world", "ja", "openai"); found {
		t.Error("cache must be keyed by target language")
	}
}

func TestStore_GetCachedTranslation_KeyedByBackend(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveTranslation(ctx, "Hello", "ko", "안녕 (gpt)", "openai/gpt-4o-mini"); err != nil {
		t.Fatalf("SaveTranslation failed: %v", err)
	}
	if err := s.SaveTranslation(ctx, "Hello", "ko", "안녕 (qwen)", "ollama/qwen3:14b"); err != nil {
		t.Fatalf("SaveTranslation failed: %v", err)
	}

	if _, found, _ := s.GetCachedTranslation(ctx, "Hello", "ko", "google"); found {
		t.Error("a backend with no entry must miss")
	}
	text, found, err := s.GetCachedTranslation(ctx, "Hello", "ko", "openai/gpt-4o-mini")
	if err != nil || !found || text != "안녕 (gpt)" {
		t.Errorf("expected the openai entry, got %q found=%v err=%v", text, found, err)
	}
	text, found, err = s.GetCachedTranslation(ctx, "Hello", "ko", "ollama/qwen3:14b")
	if err != nil || !found || text != "안녕 (qwen)" {
		t.Errorf("expected the ollama entry, got %q found=%v err=%v", text, found, err)
	}
}

func TestStore_StatsAndClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	s.SaveTranslation(ctx, "Hello", "ko", "안녕", "openai")
	s.SaveTranslation(ctx, "Bye", "ko", "잘 가", "openai")
	s.SaveTranslation(ctx, "Hello", "ja", "こんにちは", "openai")
	s.GetCachedTranslation(ctx, "Hello", "ko", "openai")

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Entries != 3 {
		t.Errorf("expected 3 entries, got %d", stats.Entries)
	}
	if stats.TotalUsage != 4 {
		t.Errorf("expected total usage 4, got %d", stats.TotalUsage)
	}
	if stats.ByLanguage["ko"] != 2 || stats.ByLanguage["ja"] != 1 {
		t.Errorf("unexpected per-language counts: %v", stats.ByLanguage)
	}

	n, err := s.ClearCache(ctx)
	if err != nil {
		t.Fatalf("ClearCache failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 rows cleared, got %d", n)
	}
}

func TestNormalizeText(t *testing.T) {
	if got := normalizeText("  Cafe\u0301 "); got != "Caf\u00e9" {
		t.Errorf("expected NFC form, got %q", got)
	}
}
