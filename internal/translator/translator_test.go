package translator

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestLanguageName(t *testing.T) {
	cases := map[string]string{
		"ko": "한국어",
		"en": "English",
		"de": "Deutsch",
	}
	for code, want := range cases {
		got, err := LanguageName(code)
		if err != nil {
			t.Errorf("LanguageName(%q): unexpected error: %v", code, err)
		}
		if got != want {
			t.Errorf("LanguageName(%q) = %q, want %q", code, got, want)
		}
	}

	if name, err := LanguageName("uk"); err != nil || name == "" {
		t.Errorf("expected x/text name for uk, got %q, %v", name, err)
	}

	if _, err := LanguageName("not a language"); !errors.Is(err, ErrConfigurationMissing) {
		t.Errorf("expected ErrConfigurationMissing, got %v", err)
	}
}

func TestLanguageCodes_Sorted(t *testing.T) {
	codes := LanguageCodes()
	if len(codes) != len(Languages) {
		t.Fatalf("expected %d codes, got %d", len(Languages), len(codes))
	}
	for i := 1; i < len(codes); i++ {
		if codes[i-1] > codes[i] {
			t.Errorf("codes not sorted: %v", codes)
		}
	}
}

func TestReason(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{&TranslationError{Service: "openai", Message: "rate limited"}, "rate limited"},
		{fmt.Errorf("wrapped: %w", &TranslationError{Message: "quota"}), "quota"},
		{ErrTranslationTimeout, "Translation timeout"},
		{fmt.Errorf("job: %w", context.DeadlineExceeded), "Translation timeout"},
		{errors.New("boom"), "boom"},
	}
	for _, c := range cases {
		if got := Reason(c.err); got != c.want {
			t.Errorf("Reason(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}

func TestTranslationError_Error(t *testing.T) {
	err := &TranslationError{Service: "openai", Message: "rate limited"}
	if err.Error() != "openai: rate limited" {
		t.Errorf("unexpected Error(): %q", err.Error())
	}
	if (&TranslationError{Message: "x"}).Error() != "x" {
		t.Error("expected bare message without service")
	}
}

func TestClean(t *testing.T) {
	cases := map[string]string{
		"  plain  ":                            "plain",
		"<think>reasoning</think>\nBonjour":    "Bonjour",
		"<thinking>cut off":                    "",
		"Here is the translation: Hallo":       "Hallo",
		"Sure, here's the translation: Hola":   "Hola",
		"\"quoted\"":                           "quoted",
		"«citation»":                           "citation",
		"Translation is fun: keep this intact": "Translation is fun: keep this intact",
	}
	for in, want := range cases {
		if got := clean(in); got != want {
			t.Errorf("clean(%q) = %q, want %q", in, got, want)
		}
	}
}

type memCache struct {
	entries map[string]string
	saves   int
}

func (m *memCache) GetCachedTranslation(ctx context.Context, sourceText, targetLang, backend string) (string, bool, error) {
	v, ok := m.entries[backend+"|"+targetLang+"|"+sourceText]
	return v, ok, nil
}

func (m *memCache) SaveTranslation(ctx context.Context, sourceText, targetLang, translatedText, backend string) error {
	m.entries[backend+"|"+targetLang+"|"+sourceText] = translatedText
	m.saves++
	return nil
}

func TestCached(t *testing.T) {
	calls := 0
	next := Func(func(ctx context.Context, text string) (string, error) {
		calls++
		if text == "fail" {
			return "", &TranslationError{Message: "nope"}
		}
		return "T:" + text, nil
	})
	cache := &memCache{entries: map[string]string{}}
	tr := Cached(next, cache, "ko", "openai")

	for i := 0; i < 2; i++ {
		got, err := tr.Translate(context.Background(), "hello")
		if err != nil || got != "T:hello" {
			t.Fatalf("unexpected result %q, %v", got, err)
		}
	}
	if calls != 1 {
		t.Errorf("expected 1 backend call, got %d", calls)
	}

	if _, err := tr.Translate(context.Background(), "fail"); err == nil {
		t.Error("expected error to pass through")
	}
	if cache.saves != 1 {
		t.Errorf("failed translations must not be cached, saves=%d", cache.saves)
	}
}

func TestCached_KeyedByBackend(t *testing.T) {
	cache := &memCache{entries: map[string]string{}}
	gpt := Cached(Func(func(ctx context.Context, text string) (string, error) {
		return "gpt:" + text, nil
	}), cache, "ko", BackendKey("openai", "gpt-4o-mini"))
	qwen := Cached(Func(func(ctx context.Context, text string) (string, error) {
		return "qwen:" + text, nil
	}), cache, "ko", BackendKey("ollama", "qwen3:14b"))

	if got, _ := gpt.Translate(context.Background(), "hello"); got != "gpt:hello" {
		t.Fatalf("unexpected result %q", got)
	}
	if got, _ := qwen.Translate(context.Background(), "hello"); got != "qwen:hello" {
		t.Errorf("another backend's result was served: %q", got)
	}
	if cache.saves != 2 {
		t.Errorf("expected one entry per backend, saves=%d", cache.saves)
	}
}

func TestBackendKey(t *testing.T) {
	if got := BackendKey("google", ""); got != "google" {
		t.Errorf("BackendKey without model = %q", got)
	}
	if got := BackendKey("ollama", "qwen3:14b"); got != "ollama/qwen3:14b" {
		t.Errorf("BackendKey with model = %q", got)
	}
}

func TestCached_ReadyDelegates(t *testing.T) {
	bound := Bind(NewOpenAIService("", "", ""), ServiceConfig{}, "", "ko")
	tr := Cached(bound, &memCache{entries: map[string]string{}}, "ko", "openai")

	if err := tr.(Readier).Ready(context.Background()); !errors.Is(err, ErrConfigurationMissing) {
		t.Errorf("expected ErrConfigurationMissing, got %v", err)
	}
}
