package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/valpere/stran/internal/logging"
	"github.com/valpere/stran/internal/pending"
	"github.com/valpere/stran/internal/translator"
)

// DefaultTimeout bounds how long a dispatched paragraph may wait for its
// completion.
const DefaultTimeout = 60 * time.Second

const serviceName = "worker"

// Translator adapts a Dispatcher to translator.Translator by correlating
// completions with callers through a pending table.
type Translator struct {
	d    Dispatcher
	jobs *pending.Table[string, Completion]
	done chan struct{}
}

// NewTranslator starts consuming d's completions. A non-positive timeout
// selects DefaultTimeout.
func NewTranslator(d Dispatcher, timeout time.Duration) *Translator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	t := &Translator{
		d:    d,
		jobs: pending.New[string, Completion](timeout),
		done: make(chan struct{}),
	}
	go t.listen()
	return t
}

func (t *Translator) listen() {
	defer close(t.done)
	defer t.jobs.Close()

	for c := range t.d.Completions() {
		if !t.jobs.Resolve(c.Worker, c) {
			logging.Debug("ignoring completion with no waiter", "worker", c.Worker)
		}
	}
}

// Translate dispatches text and waits for its completion.
func (t *Translator) Translate(ctx context.Context, text string) (string, error) {
	id, fut, err := t.jobs.Dispatch(func() (string, error) {
		return t.d.Dispatch(ctx, text)
	})
	if err != nil {
		switch {
		case errors.Is(err, translator.ErrConfigurationMissing):
			return "", err
		case errors.Is(err, ErrNoText):
			return "", &translator.TranslationError{Service: serviceName, Message: "No text provided", Err: err}
		case errors.Is(err, pending.ErrDuplicateID):
			return "", &translator.TranslationError{
				Service: serviceName,
				Message: fmt.Sprintf("worker id %s already in flight", id),
				Err:     err,
			}
		}
		return "", &translator.TranslationError{Service: serviceName, Message: err.Error(), Err: err}
	}

	c, err := fut.Wait(ctx)
	switch {
	case errors.Is(err, pending.ErrTimeout):
		return "", fmt.Errorf("worker %s: %w", id, translator.ErrTranslationTimeout)
	case errors.Is(err, pending.ErrClosed):
		return "", &translator.TranslationError{Service: serviceName, Message: "worker connection closed", Err: err}
	case err != nil:
		return "", err
	case c.Error != "":
		return "", &translator.TranslationError{Service: serviceName, Message: c.Error}
	}
	return c.TranslatedText, nil
}

// Ready delegates to the dispatcher when it can check its configuration.
func (t *Translator) Ready(ctx context.Context) error {
	if r, ok := t.d.(translator.Readier); ok {
		if err := r.Ready(ctx); err != nil {
			if errors.Is(err, translator.ErrConfigurationMissing) {
				return err
			}
			return fmt.Errorf("%w: %v", translator.ErrConfigurationMissing, err)
		}
	}
	return nil
}

// InFlight returns the number of paragraphs waiting for a completion.
func (t *Translator) InFlight() int {
	return t.jobs.Len()
}

// Done is closed once the dispatcher's completion stream has ended.
func (t *Translator) Done() <-chan struct{} {
	return t.done
}
