// Package dom wraps a parsed HTML tree with the pieces the translator needs
// from a live document: serialized access, rendered text, text-node walks,
// ranges and selections, and the inserted result markup.
package dom

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Document owns an HTML tree. All reads and writes of the tree go through
// Do, Select or Render so that jobs settling on other goroutines never
// mutate the tree while it is being walked or serialized.
type Document struct {
	mu   sync.Mutex
	root *html.Node
}

// Parse reads an HTML document.
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return &Document{root: root}, nil
}

// ParseString is Parse for in-memory markup.
func ParseString(s string) (*Document, error) {
	return Parse(bytes.NewBufferString(s))
}

// New wraps an existing tree.
func New(root *html.Node) *Document {
	return &Document{root: root}
}

// Do runs fn with exclusive access to the tree.
func (d *Document) Do(fn func(root *html.Node) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fn(d.root)
}

// Select returns the nodes matching a CSS selector in document order.
func (d *Document) Select(selector string) []*html.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return goquery.NewDocumentFromNode(d.root).Find(selector).Nodes
}

// SelectRange builds a range spanning from the start of the first node
// matching selector to the end of the last one, the way a drag across those
// elements would.
func (d *Document) SelectRange(selector string) (*Range, error) {
	nodes := d.Select(selector)
	if len(nodes) == 0 {
		return nil, fmt.Errorf("selector %q matched nothing", selector)
	}
	first, last := nodes[0], nodes[len(nodes)-1]
	return NewRange(first, 0, last, nodeLength(last)), nil
}

// Render writes the tree as HTML.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

// String renders the tree, returning an empty string on failure.
func (d *Document) String() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}
