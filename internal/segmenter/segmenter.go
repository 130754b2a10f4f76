// Package segmenter turns a selection into paragraphs and finds, for each
// paragraph, the text node its text ends in.
//
// Alignment is a fold over the text nodes under the selection's common
// ancestor. Each node contributes its newline-delimited lines; a line that
// prefixes the unmatched remainder of the current paragraph is consumed, and
// when the remainder is empty the node becomes that paragraph's anchor.
// Paragraphs the walk never completes anchor to the end of the working
// range instead of being dropped.
package segmenter

import (
	"context"
	"strings"

	"golang.org/x/net/html"

	"github.com/valpere/stran/internal/dom"
	"github.com/valpere/stran/internal/logging"
)

// Pair is one paragraph and where its result goes.
type Pair struct {
	Index  int
	Text   string
	Anchor dom.Anchor
}

// Result is the aligned selection.
type Result struct {
	Pairs []Pair
	// Fallbacks counts trailing paragraphs anchored to the range end
	// container rather than to a text node.
	Fallbacks int
}

// TextEntry is one text node seen by the walk, with its anchor captured
// before any insertion happens.
type TextEntry struct {
	Anchor dom.Anchor
	Lines  []string
}

// Lines splits s on newline runs, trimming each piece and dropping empties.
func Lines(s string) []string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '\n' })
	lines := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			lines = append(lines, p)
		}
	}
	return lines
}

// Paragraphs splits flattened selection text into translation units.
func Paragraphs(text string) []string {
	return Lines(strings.TrimSpace(text))
}

type alignState struct {
	index     int
	remaining string
}

// consume applies one line to the state. It reports whether the line
// completed the current paragraph.
func (s alignState) consume(line string, paragraphs []string) (alignState, bool) {
	if line == "" || !strings.HasPrefix(s.remaining, line) {
		return s, false
	}
	s.remaining = strings.TrimSpace(s.remaining[len(line):])
	if s.remaining != "" {
		return s, false
	}
	s.index++
	if s.index < len(paragraphs) {
		s.remaining = paragraphs[s.index]
	}
	return s, true
}

// Align assigns an anchor to every paragraph. Paragraphs the entries do not
// complete get fallback. The second result is the number of fallbacks.
func Align(paragraphs []string, entries []TextEntry, fallback dom.Anchor) ([]dom.Anchor, int) {
	anchors := make([]dom.Anchor, 0, len(paragraphs))
	if len(paragraphs) == 0 {
		return anchors, 0
	}

	state := alignState{remaining: paragraphs[0]}
walk:
	for _, e := range entries {
		for _, line := range e.Lines {
			if state.index == len(paragraphs) {
				break walk
			}
			var done bool
			if state, done = state.consume(line, paragraphs); done {
				anchors = append(anchors, e.Anchor)
			}
		}
	}

	fallbacks := 0
	for len(anchors) < len(paragraphs) {
		anchors = append(anchors, fallback)
		fallbacks++
	}
	return anchors, fallbacks
}

// Entries snapshots the text nodes under root, with whitespace folded the
// same way the paragraphs were.
func Entries(root *html.Node) []TextEntry {
	nodes := dom.TextNodes(root)
	entries := make([]TextEntry, 0, len(nodes))
	for _, n := range nodes {
		entries = append(entries, TextEntry{
			Anchor: dom.AnchorAfter(n),
			Lines:  Lines(strings.TrimSpace(dom.RenderedText(n))),
		})
	}
	return entries
}

// Segment aligns the first range of sel against the tree and clears the
// selection. The caller must hold the document. An empty selection yields an
// empty result.
func Segment(ctx context.Context, sel *dom.Selection) (*Result, error) {
	defer sel.Clear()

	if sel.RangeCount() == 0 {
		return &Result{}, nil
	}
	r, err := sel.RangeAt(0)
	if err != nil {
		return nil, err
	}

	ancestor := r.CommonAncestor()
	if ancestor == nil {
		return &Result{}, nil
	}
	work := dom.NodeContents(ancestor)

	paragraphs := Paragraphs(dom.InnerText(ancestor))
	if len(paragraphs) == 0 {
		return &Result{}, nil
	}

	anchors, fallbacks := Align(paragraphs, Entries(ancestor), dom.AnchorAfter(work.EndContainer))
	if fallbacks > 0 {
		logging.AnchorFallback(ctx, len(paragraphs), fallbacks)
	}

	res := &Result{Pairs: make([]Pair, len(paragraphs)), Fallbacks: fallbacks}
	for i, p := range paragraphs {
		res.Pairs[i] = Pair{Index: i, Text: p, Anchor: anchors[i]}
	}
	return res, nil
}
