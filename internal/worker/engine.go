// Package worker runs translations off the caller's goroutine and reports
// them back as correlated completions.
//
// An Engine accepts a paragraph, answers immediately with a worker id, and
// later emits a Completion carrying that id. A Translator layers the
// pending table over any Dispatcher so callers get back a plain
// translator.Translator. The websocket Server and Client carry the same
// protocol across a network boundary.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/valpere/stran/internal/logging"
	"github.com/valpere/stran/internal/translator"
)

// DefaultEngineTimeout bounds a single worker's translation call.
const DefaultEngineTimeout = 30 * time.Second

var (
	ErrNoText = errors.New("no text provided")
	ErrClosed = errors.New("worker closed")
)

// Completion is the outcome of one dispatched translation. Exactly one of
// TranslatedText and Error is meaningful.
type Completion struct {
	Worker         string `json:"worker"`
	TranslatedText string `json:"translated_text,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Dispatcher starts translations and reports their completions.
type Dispatcher interface {
	// Dispatch starts translating text and returns the worker id that its
	// Completion will carry. It must not block on the translation itself.
	Dispatch(ctx context.Context, text string) (string, error)
	Completions() <-chan Completion
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTimeout overrides DefaultEngineTimeout.
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithIDFunc overrides how worker ids are minted.
func WithIDFunc(fn func() string) EngineOption {
	return func(e *Engine) {
		e.newID = fn
	}
}

// Engine runs each dispatched translation on its own goroutine.
type Engine struct {
	tr      translator.Translator
	timeout time.Duration
	newID   func() string

	ctx         context.Context
	cancel      context.CancelFunc
	completions chan Completion
	done        chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
	mu          sync.Mutex
	closed      bool
}

// NewEngine creates an engine backed by tr.
func NewEngine(tr translator.Translator, opts ...EngineOption) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		tr:          tr,
		timeout:     DefaultEngineTimeout,
		newID:       uuid.NewString,
		ctx:         ctx,
		cancel:      cancel,
		completions: make(chan Completion, 16),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ready reports whether the backing translator is configured. Any failure
// wraps translator.ErrConfigurationMissing.
func (e *Engine) Ready(ctx context.Context) error {
	r, ok := e.tr.(translator.Readier)
	if !ok {
		return nil
	}
	err := r.Ready(ctx)
	if err != nil && !errors.Is(err, translator.ErrConfigurationMissing) {
		err = fmt.Errorf("%w: %v", translator.ErrConfigurationMissing, err)
	}
	return err
}

// Dispatch validates text and starts a worker for it.
func (e *Engine) Dispatch(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrNoText
	}
	if err := e.Ready(ctx); err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return "", ErrClosed
	}

	id := e.newID()
	e.wg.Add(1)
	go e.run(id, text)
	return id, nil
}

func (e *Engine) run(id, text string) {
	defer e.wg.Done()

	ctx, cancel := context.WithTimeout(e.ctx, e.timeout)
	defer cancel()

	c := Completion{Worker: id}
	translated, err := e.safeTranslate(ctx, text)
	if err != nil {
		c.Error = translator.Reason(err)
	} else {
		c.TranslatedText = translated
	}

	select {
	case e.completions <- c:
	case <-e.done:
		logging.Debug("completion dropped after close", "worker", id)
	}
}

func (e *Engine) safeTranslate(ctx context.Context, text string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("translator panic: %v", r)
		}
	}()
	return e.tr.Translate(ctx, text)
}

// Completions returns the channel completions are delivered on. It is
// closed by Close once every worker has exited.
func (e *Engine) Completions() <-chan Completion {
	return e.completions
}

// Close cancels in-flight workers, waits for them, and closes Completions.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		e.mu.Lock()
		e.closed = true
		e.mu.Unlock()

		e.cancel()
		close(e.done)
		e.wg.Wait()
		close(e.completions)
	})
	return nil
}
