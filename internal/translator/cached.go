package translator

import (
	"context"

	"github.com/valpere/stran/internal/logging"
)

// Cache memoizes translations per target language and backend.
type Cache interface {
	GetCachedTranslation(ctx context.Context, sourceText, targetLang, backend string) (string, bool, error)
	SaveTranslation(ctx context.Context, sourceText, targetLang, translatedText, backend string) error
}

type cachedTranslator struct {
	next       Translator
	cache      Cache
	targetLang string
	backend    string
}

// Cached consults cache before calling next and stores successful results.
// Entries are keyed by backend, so results from one service or model are
// never served for another. Cache failures are logged and never fail a
// paragraph.
func Cached(next Translator, cache Cache, targetLang, backend string) Translator {
	return &cachedTranslator{next: next, cache: cache, targetLang: targetLang, backend: backend}
}

// BackendKey identifies a service and model for cache keys.
func BackendKey(service, model string) string {
	if model == "" {
		return service
	}
	return service + "/" + model
}

func (c *cachedTranslator) Translate(ctx context.Context, text string) (string, error) {
	if hit, ok, err := c.cache.GetCachedTranslation(ctx, text, c.targetLang, c.backend); err != nil {
		logging.Warn("cache lookup failed", "error", err)
	} else if ok {
		return hit, nil
	}

	translated, err := c.next.Translate(ctx, text)
	if err != nil {
		return "", err
	}
	if err := c.cache.SaveTranslation(ctx, text, c.targetLang, translated, c.backend); err != nil {
		logging.Warn("cache save failed", "error", err)
	}
	return translated, nil
}

func (c *cachedTranslator) Ready(ctx context.Context) error {
	if r, ok := c.next.(Readier); ok {
		return r.Ready(ctx)
	}
	return nil
}
