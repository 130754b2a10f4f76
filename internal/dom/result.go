package dom

import (
	"errors"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ResultClass marks the element that shows a paragraph's translation.
const ResultClass = "stran-result"

const resultStyle = "color: #666; margin-top: 0.5em; margin-bottom: 0.5em;"

var (
	ErrDetachedAnchor  = errors.New("anchor node has no parent")
	ErrStaleAnchor     = errors.New("anchor sibling is no longer a child of the anchor parent")
	ErrAlreadyInserted = errors.New("result node is already in the document")
)

// Anchor is where a paragraph's result goes: right after Node, in front of
// the sibling Node had when the anchor was resolved.
type Anchor struct {
	Node *html.Node
	Next *html.Node
}

// AnchorAfter captures n and its current next sibling.
func AnchorAfter(n *html.Node) Anchor {
	return Anchor{Node: n, Next: n.NextSibling}
}

// ResultNode is the inserted <span><br><span class="stran-result">…</span></span>.
type ResultNode struct {
	container *html.Node
	message   *html.Node
}

func NewResultNode(text string) *ResultNode {
	message := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Span,
		Data:     "span",
		Attr: []html.Attribute{
			{Key: "class", Val: ResultClass},
			{Key: "style", Val: resultStyle},
		},
	}
	message.AppendChild(&html.Node{Type: html.TextNode, Data: text})

	container := &html.Node{Type: html.ElementNode, DataAtom: atom.Span, Data: "span"}
	container.AppendChild(&html.Node{Type: html.ElementNode, DataAtom: atom.Br, Data: "br"})
	container.AppendChild(message)

	return &ResultNode{container: container, message: message}
}

// InsertAt splices the node in at a. The caller must hold the document.
func (r *ResultNode) InsertAt(a Anchor) error {
	if r.container.Parent != nil {
		return ErrAlreadyInserted
	}
	parent := a.Node.Parent
	if parent == nil {
		return ErrDetachedAnchor
	}
	if a.Next != nil && a.Next.Parent != parent {
		return ErrStaleAnchor
	}
	parent.InsertBefore(r.container, a.Next)
	return nil
}

// SetText replaces the displayed message. The caller must hold the document.
func (r *ResultNode) SetText(text string) {
	for c := r.message.FirstChild; c != nil; {
		next := c.NextSibling
		r.message.RemoveChild(c)
		c = next
	}
	r.message.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

// Text returns the displayed message.
func (r *ResultNode) Text() string {
	if c := r.message.FirstChild; c != nil && c.Type == html.TextNode {
		return c.Data
	}
	return ""
}

// Container is the outermost inserted element.
func (r *ResultNode) Container() *html.Node {
	return r.container
}
