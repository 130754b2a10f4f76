package dom

import (
	"errors"
	"sync"

	"golang.org/x/net/html"
)

var ErrNoRange = errors.New("selection has no range")

// Range is a start and end boundary point in the tree.
type Range struct {
	StartContainer *html.Node
	StartOffset    int
	EndContainer   *html.Node
	EndOffset      int
}

func NewRange(start *html.Node, startOffset int, end *html.Node, endOffset int) *Range {
	return &Range{
		StartContainer: start,
		StartOffset:    startOffset,
		EndContainer:   end,
		EndOffset:      endOffset,
	}
}

// NodeContents returns a range covering all of n's contents.
func NodeContents(n *html.Node) *Range {
	return NewRange(n, 0, n, nodeLength(n))
}

// Collapsed reports whether the range is empty.
func (r *Range) Collapsed() bool {
	return r.StartContainer == r.EndContainer && r.StartOffset == r.EndOffset
}

// CommonAncestor returns the deepest node containing both boundary containers.
func (r *Range) CommonAncestor() *html.Node {
	seen := make(map[*html.Node]bool)
	for n := r.StartContainer; n != nil; n = n.Parent {
		seen[n] = true
	}
	for n := r.EndContainer; n != nil; n = n.Parent {
		if seen[n] {
			return n
		}
	}
	return nil
}

// Selection holds the ranges the user has highlighted.
type Selection struct {
	mu     sync.Mutex
	ranges []*Range
}

func NewSelection(ranges ...*Range) *Selection {
	return &Selection{ranges: ranges}
}

func (s *Selection) Add(r *Range) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ranges = append(s.ranges, r)
}

func (s *Selection) RangeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ranges)
}

func (s *Selection) RangeAt(i int) (*Range, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.ranges) {
		return nil, ErrNoRange
	}
	return s.ranges[i], nil
}

// Clear drops every range.
func (s *Selection) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ranges = nil
}

// Empty reports whether nothing is selected.
func (s *Selection) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.ranges {
		if !r.Collapsed() {
			return false
		}
	}
	return true
}
