package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/valpere/stran/internal/dom"
	"github.com/valpere/stran/internal/logging"
	"github.com/valpere/stran/internal/segmenter"
	"github.com/valpere/stran/internal/translator"
)

var (
	ErrDisabled = errors.New("translation is disabled")
	ErrBusy     = errors.New("translation already in progress")
)

// Report summarizes one Translate call.
type Report struct {
	Paragraphs int
	Succeeded  int
	Failed     int
	// Fallbacks is the number of paragraphs anchored to the end of the
	// selection because the text walk could not place them.
	Fallbacks int
	Jobs      []*Job
}

// SessionOptions configures a Session.
type SessionOptions struct {
	// Enabled is the initial state of the enable flag.
	Enabled bool
	// DropStale fails in-flight jobs instead of applying their results
	// once translation has been turned off.
	DropStale bool
}

// Session owns the per-document state: the enable flag, the in-progress
// guard, and the generation counter bumped on every disable.
type Session struct {
	ID string

	doc       *dom.Document
	sel       *dom.Selection
	pipeline  *Pipeline
	dropStale bool

	enabled     atomic.Bool
	translating atomic.Bool
	generation  atomic.Uint64
}

// NewSession binds a pipeline to a document and its selection.
func NewSession(doc *dom.Document, sel *dom.Selection, p *Pipeline, opts SessionOptions) *Session {
	s := &Session{
		ID:        uuid.NewString(),
		doc:       doc,
		sel:       sel,
		pipeline:  p,
		dropStale: opts.DropStale,
	}
	s.enabled.Store(opts.Enabled)
	return s
}

// SetEnabled turns translation on or off. Turning it off starts a new
// generation; jobs from the old one still land unless DropStale is set.
func (s *Session) SetEnabled(on bool) {
	if prev := s.enabled.Swap(on); prev && !on {
		s.generation.Add(1)
	}
	logging.Debug("translation toggled", "session_id", s.ID, "enabled", on)
}

// Enabled reports the enable flag.
func (s *Session) Enabled() bool {
	return s.enabled.Load()
}

// Busy reports whether a Translate call is in progress.
func (s *Session) Busy() bool {
	return s.translating.Load()
}

// Watch applies enable/disable events until events is closed or ctx ends.
func (s *Session) Watch(ctx context.Context, events <-chan bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case on, ok := <-events:
			if !ok {
				return
			}
			s.SetEnabled(on)
		}
	}
}

// Translate segments the current selection and translates every paragraph.
//
// It returns ErrDisabled or ErrBusy without touching anything, and an error
// wrapping translator.ErrConfigurationMissing before any mutation when the
// translator reports it is not ready.
func (s *Session) Translate(ctx context.Context) (*Report, error) {
	if !s.enabled.Load() {
		return nil, ErrDisabled
	}
	if !s.translating.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer s.translating.Store(false)

	ctx = logging.WithSessionID(ctx, s.ID)
	log := logging.LoggerFromContext(ctx)

	if r, ok := s.pipeline.Translator().(translator.Readier); ok {
		if err := r.Ready(ctx); err != nil {
			if !errors.Is(err, translator.ErrConfigurationMissing) {
				err = fmt.Errorf("%w: %v", translator.ErrConfigurationMissing, err)
			}
			log.Warn("translator not ready", "error", err)
			return nil, err
		}
	}

	var seg *segmenter.Result
	err := s.doc.Do(func(*html.Node) error {
		var err error
		seg, err = segmenter.Segment(ctx, s.sel)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to segment selection: %w", err)
	}

	report := &Report{Paragraphs: len(seg.Pairs), Fallbacks: seg.Fallbacks}
	if len(seg.Pairs) == 0 {
		return report, nil
	}
	log.Info("translating selection", "paragraphs", len(seg.Pairs), "fallbacks", seg.Fallbacks)

	var stale func() bool
	if s.dropStale {
		gen := s.generation.Load()
		stale = func() bool { return s.generation.Load() != gen }
	}

	jobs, err := s.pipeline.Run(ctx, s.doc, seg.Pairs, stale)
	report.Jobs = jobs
	for _, j := range jobs {
		switch j.State {
		case Succeeded:
			report.Succeeded++
		case Failed:
			report.Failed++
		}
	}
	log.Info("selection translated", "succeeded", report.Succeeded, "failed", report.Failed)
	return report, err
}
