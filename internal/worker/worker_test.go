package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valpere/stran/internal/pending"
	"github.com/valpere/stran/internal/translator"
)

func echo(prefix string) translator.Translator {
	return translator.Func(func(ctx context.Context, text string) (string, error) {
		return prefix + text, nil
	})
}

type readyFunc struct {
	translator.Func
	err error
}

func (r readyFunc) Ready(ctx context.Context) error { return r.err }

// stubDispatcher hands out fixed ids and lets tests push completions by hand.
type stubDispatcher struct {
	mu          sync.Mutex
	ids         []string
	completions chan Completion
}

func newStub(ids ...string) *stubDispatcher {
	return &stubDispatcher{ids: ids, completions: make(chan Completion, 8)}
}

func (s *stubDispatcher) Dispatch(ctx context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ids) == 0 {
		return "", errors.New("no ids left")
	}
	id := s.ids[0]
	s.ids = s.ids[1:]
	return id, nil
}

func (s *stubDispatcher) Completions() <-chan Completion { return s.completions }

func TestEngine_DispatchAndComplete(t *testing.T) {
	e := NewEngine(echo("T:"), WithIDFunc(func() string { return "w1" }))
	defer e.Close()

	id, err := e.Dispatch(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "w1", id)

	select {
	case c := <-e.Completions():
		assert.Equal(t, Completion{Worker: "w1", TranslatedText: "T:Hello"}, c)
	case <-time.After(time.Second):
		t.Fatal("no completion")
	}
}

func TestEngine_RejectsEmptyText(t *testing.T) {
	e := NewEngine(echo(""))
	defer e.Close()

	_, err := e.Dispatch(context.Background(), "  \n ")
	assert.ErrorIs(t, err, ErrNoText)
}

func TestEngine_RejectsWhenNotConfigured(t *testing.T) {
	tr := readyFunc{Func: func(ctx context.Context, s string) (string, error) { return s, nil }, err: translator.ErrConfigurationMissing}
	e := NewEngine(tr)
	defer e.Close()

	_, err := e.Dispatch(context.Background(), "Hello")
	assert.ErrorIs(t, err, translator.ErrConfigurationMissing)
}

func TestEngine_ReadyWrapsPlainErrors(t *testing.T) {
	e := NewEngine(readyFunc{err: errors.New("OpenAI API key not configured")})
	defer e.Close()

	err := e.Ready(context.Background())
	assert.ErrorIs(t, err, translator.ErrConfigurationMissing)
	assert.ErrorContains(t, err, "OpenAI API key not configured")

	_, err = e.Dispatch(context.Background(), "Hello")
	assert.ErrorIs(t, err, translator.ErrConfigurationMissing)

	assert.NoError(t, NewEngine(echo("")).Ready(context.Background()))
}

func TestEngine_ErrorCompletion(t *testing.T) {
	failing := translator.Func(func(ctx context.Context, text string) (string, error) {
		return "", &translator.TranslationError{Service: "openai", Message: "rate limited"}
	})
	e := NewEngine(failing)
	defer e.Close()

	id, err := e.Dispatch(context.Background(), "Hello")
	require.NoError(t, err)

	c := <-e.Completions()
	assert.Equal(t, id, c.Worker)
	assert.Equal(t, "rate limited", c.Error)
}

func TestEngine_TimeoutBound(t *testing.T) {
	blocking := translator.Func(func(ctx context.Context, text string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	e := NewEngine(blocking, WithTimeout(20*time.Millisecond))
	defer e.Close()

	_, err := e.Dispatch(context.Background(), "Hello")
	require.NoError(t, err)

	c := <-e.Completions()
	assert.Equal(t, "Translation timeout", c.Error)
}

func TestEngine_CloseRejectsNewWork(t *testing.T) {
	e := NewEngine(echo(""))
	require.NoError(t, e.Close())

	_, err := e.Dispatch(context.Background(), "Hello")
	assert.ErrorIs(t, err, ErrClosed)

	_, ok := <-e.Completions()
	assert.False(t, ok, "completions must be closed")
}

func TestTranslator_OverEngine(t *testing.T) {
	e := NewEngine(echo("T:"))
	defer e.Close()
	tr := NewTranslator(e, time.Second)

	var wg sync.WaitGroup
	for _, text := range []string{"one", "two", "three"} {
		wg.Add(1)
		go func(text string) {
			defer wg.Done()
			got, err := tr.Translate(context.Background(), text)
			assert.NoError(t, err)
			assert.Equal(t, "T:"+text, got)
		}(text)
	}
	wg.Wait()
	assert.Zero(t, tr.InFlight())
}

func TestTranslator_CompletionError(t *testing.T) {
	d := newStub("w1")
	tr := NewTranslator(d, time.Second)

	go func() {
		for tr.InFlight() == 0 {
			time.Sleep(time.Millisecond)
		}
		d.completions <- Completion{Worker: "w1", Error: "quota exceeded"}
	}()

	_, err := tr.Translate(context.Background(), "Hello")
	var te *translator.TranslationError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "quota exceeded", translator.Reason(err))
}

func TestTranslator_TimeoutRemovesEntryAndIgnoresLateCompletion(t *testing.T) {
	d := newStub("w1")
	tr := NewTranslator(d, 30*time.Millisecond)

	_, err := tr.Translate(context.Background(), "Hello")
	assert.ErrorIs(t, err, translator.ErrTranslationTimeout)
	assert.Equal(t, "Translation timeout", translator.Reason(err))
	assert.Zero(t, tr.InFlight())

	// A late completion for the expired id is dropped.
	d.completions <- Completion{Worker: "w1", TranslatedText: "too late"}
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, tr.InFlight())
}

func TestTranslator_DuplicateWorkerID(t *testing.T) {
	d := newStub("same", "same")
	tr := NewTranslator(d, time.Second)

	first := make(chan error, 1)
	go func() {
		_, err := tr.Translate(context.Background(), "one")
		first <- err
	}()
	require.Eventually(t, func() bool { return tr.InFlight() == 1 }, time.Second, time.Millisecond)

	_, err := tr.Translate(context.Background(), "two")
	assert.ErrorIs(t, err, pending.ErrDuplicateID)

	d.completions <- Completion{Worker: "same", TranslatedText: "하나"}
	assert.NoError(t, <-first)
}

func TestTranslator_DispatchRejected(t *testing.T) {
	e := NewEngine(echo(""))
	defer e.Close()
	tr := NewTranslator(e, time.Second)

	_, err := tr.Translate(context.Background(), "")
	assert.Equal(t, "No text provided", translator.Reason(err))
	assert.Zero(t, tr.InFlight())
}

func TestTranslator_ContextCancelled(t *testing.T) {
	d := newStub("w1")
	tr := NewTranslator(d, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := tr.Translate(ctx, "Hello")
	assert.True(t, translator.IsTimeout(err))
	assert.Zero(t, tr.InFlight())
}

func TestTranslator_ClosedStream(t *testing.T) {
	d := newStub("w1")
	tr := NewTranslator(d, time.Minute)

	go func() {
		for tr.InFlight() == 0 {
			time.Sleep(time.Millisecond)
		}
		close(d.completions)
	}()

	_, err := tr.Translate(context.Background(), "Hello")
	assert.Equal(t, "worker connection closed", translator.Reason(err))
	<-tr.Done()
}

func TestTranslator_Ready(t *testing.T) {
	missing := readyFunc{err: errors.New("no key")}
	tr := NewTranslator(NewEngine(missing), time.Second)
	assert.ErrorIs(t, tr.Ready(context.Background()), translator.ErrConfigurationMissing)

	assert.NoError(t, NewTranslator(newStub(), time.Second).Ready(context.Background()))
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestBridge_RoundTrip(t *testing.T) {
	server := httptest.NewServer(NewServer(echo("T:")))
	defer server.Close()

	client, err := Dial(context.Background(), wsURL(server), time.Second)
	require.NoError(t, err)
	defer client.Close()

	tr := NewTranslator(client, 2*time.Second)

	got, err := tr.Translate(context.Background(), "Hello world")
	require.NoError(t, err)
	assert.Equal(t, "T:Hello world", got)

	got, err = tr.Translate(context.Background(), "Goodbye world")
	require.NoError(t, err)
	assert.Equal(t, "T:Goodbye world", got)
}

func TestBridge_Rejections(t *testing.T) {
	notConfigured := readyFunc{Func: func(ctx context.Context, s string) (string, error) { return s, nil }, err: translator.ErrConfigurationMissing}

	server := httptest.NewServer(NewServer(notConfigured))
	defer server.Close()

	client, err := Dial(context.Background(), wsURL(server), time.Second)
	require.NoError(t, err)
	defer client.Close()

	_, err = client.Dispatch(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoText)

	_, err = client.Dispatch(context.Background(), "Hello")
	assert.ErrorIs(t, err, translator.ErrConfigurationMissing)
}

func TestClient_Ready(t *testing.T) {
	missing := readyFunc{
		Func: func(ctx context.Context, s string) (string, error) { return s, nil },
		err:  errors.New("OpenAI API key not configured"),
	}
	server := httptest.NewServer(NewServer(missing))
	defer server.Close()

	client, err := Dial(context.Background(), wsURL(server), time.Second)
	require.NoError(t, err)
	defer client.Close()

	err = client.Ready(context.Background())
	assert.ErrorIs(t, err, translator.ErrConfigurationMissing)
	assert.ErrorContains(t, err, "OpenAI API key not configured")

	tr := NewTranslator(client, time.Second)
	assert.ErrorIs(t, tr.Ready(context.Background()), translator.ErrConfigurationMissing)
	assert.Zero(t, tr.InFlight())

	configured := httptest.NewServer(NewServer(readyFunc{Func: func(ctx context.Context, s string) (string, error) { return s, nil }}))
	defer configured.Close()

	ok, err := Dial(context.Background(), wsURL(configured), time.Second)
	require.NoError(t, err)
	defer ok.Close()
	assert.NoError(t, ok.Ready(context.Background()))
}

func TestRejection_NotConfiguredMessage(t *testing.T) {
	m := rejection(3, fmt.Errorf("%w: openai: no key", translator.ErrConfigurationMissing))
	assert.Equal(t, Message{Type: TypeRejected, Seq: 3, Error: "openai: no key", Code: CodeNotConfigured}, m)

	m = rejection(4, translator.ErrConfigurationMissing)
	assert.Equal(t, "No API key provided", m.Error)
}

func TestBridge_RemoteFailure(t *testing.T) {
	failing := translator.Func(func(ctx context.Context, text string) (string, error) {
		return "", &translator.TranslationError{Service: "openai", Message: "rate limited"}
	})
	server := httptest.NewServer(NewServer(failing))
	defer server.Close()

	client, err := Dial(context.Background(), wsURL(server), time.Second)
	require.NoError(t, err)
	defer client.Close()

	_, err = NewTranslator(client, time.Second).Translate(context.Background(), "Hello")
	assert.Equal(t, "rate limited", translator.Reason(err))
}

func TestDial_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := Dial(ctx, "ws://127.0.0.1:1/", time.Second)
	assert.Error(t, err)
}
