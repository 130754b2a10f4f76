package dom

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// blockElements start and end a line in rendered text.
var blockElements = map[atom.Atom]bool{
	atom.Address:    true,
	atom.Article:    true,
	atom.Aside:      true,
	atom.Blockquote: true,
	atom.Body:       true,
	atom.Caption:    true,
	atom.Dd:         true,
	atom.Details:    true,
	atom.Dialog:     true,
	atom.Div:        true,
	atom.Dl:         true,
	atom.Dt:         true,
	atom.Fieldset:   true,
	atom.Figcaption: true,
	atom.Figure:     true,
	atom.Footer:     true,
	atom.Form:       true,
	atom.H1:         true,
	atom.H2:         true,
	atom.H3:         true,
	atom.H4:         true,
	atom.H5:         true,
	atom.H6:         true,
	atom.Header:     true,
	atom.Hr:         true,
	atom.Li:         true,
	atom.Main:       true,
	atom.Nav:        true,
	atom.Ol:         true,
	atom.P:          true,
	atom.Pre:        true,
	atom.Section:    true,
	atom.Summary:    true,
	atom.Table:      true,
	atom.Td:         true,
	atom.Th:         true,
	atom.Tr:         true,
	atom.Ul:         true,
}

// hiddenElements never contribute rendered text.
var hiddenElements = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Noscript: true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Template: true,
	atom.Title:    true,
}

// preformatted elements keep their whitespace as written.
var preformatted = map[atom.Atom]bool{
	atom.Listing:   true,
	atom.Plaintext: true,
	atom.Pre:       true,
	atom.Textarea:  true,
	atom.Xmp:       true,
}

func isHidden(n *html.Node) bool {
	return n.Type == html.ElementNode && hiddenElements[n.DataAtom]
}

func insidePre(n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && preformatted[p.DataAtom] {
			return true
		}
	}
	return false
}

// TextNodes returns every rendered text node under root in document order.
// A text root is returned on its own.
func TextNodes(root *html.Node) []*html.Node {
	var nodes []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			nodes = append(nodes, n)
			return
		case isHidden(n):
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return nodes
}

// InnerText flattens the subtree under root the way a browser renders it for
// copying: block boundaries and <br> become newlines, collapsible whitespace
// outside preformatted elements folds to a single space.
func InnerText(root *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node, pre bool)
	walk = func(n *html.Node, pre bool) {
		switch n.Type {
		case html.TextNode:
			if pre {
				sb.WriteString(n.Data)
			} else {
				sb.WriteString(collapseSpace(n.Data))
			}
			return
		case html.ElementNode:
			if hiddenElements[n.DataAtom] {
				return
			}
			if n.DataAtom == atom.Br {
				sb.WriteByte('\n')
				return
			}
			pre = pre || preformatted[n.DataAtom]
		}
		block := n.Type == html.ElementNode && blockElements[n.DataAtom]
		if block {
			sb.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, pre)
		}
		if block {
			sb.WriteByte('\n')
		}
	}
	walk(root, insidePre(root))
	return sb.String()
}

// RenderedText is the text node n as InnerText renders it: collapsible
// whitespace folds to a single space unless n sits in a preformatted element.
func RenderedText(n *html.Node) string {
	if insidePre(n) {
		return n.Data
	}
	return collapseSpace(n.Data)
}

func collapseSpace(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	inSpace := false
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\f':
			if !inSpace {
				sb.WriteByte(' ')
			}
			inSpace = true
		default:
			sb.WriteRune(r)
			inSpace = false
		}
	}
	return sb.String()
}

// nodeLength is the offset of the end boundary of n's contents.
func nodeLength(n *html.Node) int {
	if n.Type == html.TextNode || n.Type == html.CommentNode {
		return len(n.Data)
	}
	count := 0
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		count++
	}
	return count
}
