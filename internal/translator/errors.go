package translator

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTranslationTimeout means no result arrived within the bound.
	ErrTranslationTimeout = errors.New("translation timeout")

	// ErrConfigurationMissing means a precondition such as a credential is
	// not set; nothing should be mutated when it is returned.
	ErrConfigurationMissing = errors.New("configuration missing")
)

// TranslationError is a backend, network or API failure for one paragraph.
type TranslationError struct {
	Service string
	Message string
	Err     error
}

func (e *TranslationError) Error() string {
	if e.Service != "" {
		return fmt.Sprintf("%s: %s", e.Service, e.Message)
	}
	return e.Message
}

func (e *TranslationError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is a translation timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTranslationTimeout) || errors.Is(err, context.DeadlineExceeded)
}

// Reason is the user-facing part of an inline error message.
func Reason(err error) string {
	var te *TranslationError
	switch {
	case err == nil:
		return ""
	case IsTimeout(err):
		return "Translation timeout"
	case errors.As(err, &te):
		return te.Message
	default:
		return err.Error()
	}
}
