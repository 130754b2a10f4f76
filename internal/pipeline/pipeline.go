// Package pipeline fans segmented paragraphs out to a translator and writes
// each outcome into the result node inserted for it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/net/html"

	"github.com/valpere/stran/internal/dom"
	"github.com/valpere/stran/internal/logging"
	"github.com/valpere/stran/internal/segmenter"
	"github.com/valpere/stran/internal/translator"
)

const (
	DefaultPlaceholder = "Translating..."
	DefaultJobTimeout  = 60 * time.Second
)

// ErrStale marks a job whose result arrived after translation was turned
// off and the session drops stale results.
var ErrStale = errors.New("translation cancelled")

// State is a job's lifecycle position. Pending moves to exactly one of
// Succeeded or Failed.
type State int

const (
	Pending State = iota
	Succeeded
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Job is one paragraph in flight.
type Job struct {
	Index       int
	Text        string
	Anchor      dom.Anchor
	Result      *dom.ResultNode
	State       State
	Translation string
	Err         error
	Elapsed     time.Duration
}

// settle writes the outcome into the result node. Only the first call has
// any effect. The caller must hold the document.
func (j *Job) settle(translation string, err error) bool {
	if j.State != Pending {
		return false
	}
	if err != nil {
		j.State, j.Err = Failed, err
		j.Result.SetText("Translation error: " + translator.Reason(err))
		return true
	}
	j.State, j.Translation = Succeeded, translation
	j.Result.SetText(translation)
	return true
}

// Config tunes a Pipeline.
type Config struct {
	Placeholder string
	// JobTimeout bounds each paragraph's translation. Zero disables it.
	JobTimeout time.Duration
}

// Pipeline runs one translation job per paragraph.
type Pipeline struct {
	tr     translator.Translator
	config Config
}

// New creates a pipeline. An empty placeholder selects DefaultPlaceholder.
func New(tr translator.Translator, config Config) *Pipeline {
	if config.Placeholder == "" {
		config.Placeholder = DefaultPlaceholder
	}
	return &Pipeline{tr: tr, config: config}
}

// Translator returns the capability jobs are sent to.
func (p *Pipeline) Translator() translator.Translator {
	return p.tr
}

type outcome struct {
	slot        int
	translation string
	err         error
	elapsed     time.Duration
}

// Run inserts a placeholder for each pair in order and starts its
// translation as soon as it is inserted, without waiting for earlier jobs.
// It returns once every started job has settled.
//
// If a placeholder cannot be inserted Run stops starting jobs, lets the
// started ones settle, and returns the jobs so far with the error.
//
// stale, when non-nil, is consulted before each outcome is applied; a true
// result fails the job with ErrStale instead of applying the translation.
func (p *Pipeline) Run(ctx context.Context, doc *dom.Document, pairs []segmenter.Pair, stale func() bool) ([]*Job, error) {
	jobs := make([]*Job, 0, len(pairs))
	outcomes := make(chan outcome, len(pairs))

	var wg sync.WaitGroup
	var setupErr error
	for _, pair := range pairs {
		job := &Job{
			Index:  pair.Index,
			Text:   pair.Text,
			Anchor: pair.Anchor,
			Result: dom.NewResultNode(p.config.Placeholder),
		}
		if err := doc.Do(func(*html.Node) error { return job.Result.InsertAt(job.Anchor) }); err != nil {
			setupErr = fmt.Errorf("failed to insert result for paragraph %d: %w", pair.Index, err)
			break
		}

		slot := len(jobs)
		jobs = append(jobs, job)

		wg.Add(1)
		go func(slot int, text string) {
			defer wg.Done()
			outcomes <- p.translate(ctx, slot, text)
		}(slot, pair.Text)
	}

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	for o := range outcomes {
		job := jobs[o.slot]
		err := o.err
		if stale != nil && stale() {
			err = ErrStale
		}
		doc.Do(func(*html.Node) error {
			job.Elapsed = o.elapsed
			job.settle(o.translation, err)
			return nil
		})
		logging.JobSettled(ctx, job.Index, job.State.String(), job.Elapsed, "reason", translator.Reason(job.Err))
	}

	return jobs, setupErr
}

func (p *Pipeline) translate(ctx context.Context, slot int, text string) (o outcome) {
	start := time.Now()
	o.slot = slot
	defer func() {
		if r := recover(); r != nil {
			o.err = fmt.Errorf("translator panic: %v", r)
		}
		o.elapsed = time.Since(start)
	}()

	if p.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.JobTimeout)
		defer cancel()
	}

	o.translation, o.err = p.tr.Translate(ctx, text)
	return o
}
