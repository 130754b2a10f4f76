package translator

import (
	"context"
	"errors"
	"fmt"
)

type boundService struct {
	svc        TranslationService
	cfg        ServiceConfig
	sourceLang string
	targetLang string
}

// Bind fixes a backend's configuration and language pair, producing the
// single-argument capability the pipeline uses.
func Bind(svc TranslationService, cfg ServiceConfig, sourceLang, targetLang string) Translator {
	return &boundService{svc: svc, cfg: cfg, sourceLang: sourceLang, targetLang: targetLang}
}

func (b *boundService) Translate(ctx context.Context, text string) (string, error) {
	res, err := b.svc.Translate(ctx, b.cfg, TranslateRequest{
		Text:       text,
		SourceLang: b.sourceLang,
		TargetLang: b.targetLang,
	})

	if err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		return "", fmt.Errorf("%w: %s", ErrTranslationTimeout, b.svc.Name())
	}

	msg := ""
	if res != nil {
		msg = res.Error
	}
	if err != nil || msg != "" {
		if msg == "" {
			msg = err.Error()
		}
		return "", &TranslationError{Service: b.svc.Name(), Message: msg, Err: err}
	}
	return res.TranslatedText, nil
}

// Ready checks the target language and the backend's configuration.
func (b *boundService) Ready(ctx context.Context) error {
	if _, err := LanguageName(b.targetLang); err != nil {
		return err
	}
	if err := b.svc.IsAvailable(ctx); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConfigurationMissing, b.svc.Name(), err)
	}
	return nil
}
