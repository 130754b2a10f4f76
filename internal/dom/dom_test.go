package dom

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func mustParse(t *testing.T, markup string) *Document {
	t.Helper()
	doc, err := ParseString(markup)
	require.NoError(t, err)
	return doc
}

func first(t *testing.T, doc *Document, selector string) *html.Node {
	t.Helper()
	nodes := doc.Select(selector)
	require.NotEmpty(t, nodes, "selector %q", selector)
	return nodes[0]
}

func TestInnerText_BlocksAndBreaks(t *testing.T) {
	doc := mustParse(t, `<div id="a"><p>Hello <b>big</b> world</p><p>Second</p>tail<br>after</div>`)
	got := InnerText(first(t, doc, "#a"))
	assert.Equal(t, "\n\nHello big world\n\nSecond\ntail\nafter\n", got)
}

func TestInnerText_CollapsesWhitespace(t *testing.T) {
	doc := mustParse(t, "<p id=\"a\">Hello\n   world\t again</p>")
	assert.Equal(t, "\nHello world again\n", InnerText(first(t, doc, "#a")))
}

func TestInnerText_PreKeepsNewlines(t *testing.T) {
	doc := mustParse(t, "<pre id=\"a\">one\ntwo  three</pre>")
	assert.Equal(t, "\none\ntwo  three\n", InnerText(first(t, doc, "#a")))
}

func TestInnerText_SkipsHidden(t *testing.T) {
	doc := mustParse(t, `<div id="a">visible<script>var x = 1;</script><style>p{}</style></div>`)
	assert.Equal(t, "\nvisible\n", InnerText(first(t, doc, "#a")))
}

func TestRenderedText(t *testing.T) {
	doc := mustParse(t, "<div><p id=\"a\">Hello  \t world</p><pre id=\"b\"><b>x  y</b></pre></div>")
	assert.Equal(t, "Hello world", RenderedText(first(t, doc, "#a").FirstChild))
	assert.Equal(t, "x  y", RenderedText(first(t, doc, "#b b").FirstChild))
}

func TestTextNodes_DocumentOrder(t *testing.T) {
	doc := mustParse(t, `<div id="a">one<span>two<i>three</i></span><script>x</script>four</div>`)
	var got []string
	for _, n := range TextNodes(first(t, doc, "#a")) {
		got = append(got, n.Data)
	}
	assert.Equal(t, []string{"one", "two", "three", "four"}, got)
}

func TestTextNodes_TextRoot(t *testing.T) {
	doc := mustParse(t, `<p id="a">only</p>`)
	text := first(t, doc, "#a").FirstChild
	nodes := TextNodes(text)
	require.Len(t, nodes, 1)
	assert.Same(t, text, nodes[0])
}

func TestRange_CommonAncestor(t *testing.T) {
	doc := mustParse(t, `<div id="a"><p id="b">x</p><p id="c"><i>y</i></p></div>`)
	b := first(t, doc, "#b").FirstChild
	c := first(t, doc, "#c i").FirstChild

	r := NewRange(b, 0, c, 1)
	assert.Same(t, first(t, doc, "#a"), r.CommonAncestor())

	same := NewRange(b, 0, b, 1)
	assert.Same(t, b, same.CommonAncestor())
}

func TestNodeContents(t *testing.T) {
	doc := mustParse(t, `<div id="a"><p>x</p><p>y</p>z</div>`)
	div := first(t, doc, "#a")
	r := NodeContents(div)
	assert.Same(t, div, r.StartContainer)
	assert.Same(t, div, r.EndContainer)
	assert.Equal(t, 0, r.StartOffset)
	assert.Equal(t, 3, r.EndOffset)
	assert.False(t, r.Collapsed())
}

func TestSelection(t *testing.T) {
	doc := mustParse(t, `<p id="a">x</p>`)
	sel := NewSelection()
	assert.True(t, sel.Empty())

	_, err := sel.RangeAt(0)
	assert.ErrorIs(t, err, ErrNoRange)

	sel.Add(NodeContents(first(t, doc, "#a")))
	assert.Equal(t, 1, sel.RangeCount())
	assert.False(t, sel.Empty())

	sel.Clear()
	assert.Equal(t, 0, sel.RangeCount())
}

func TestSelectRange(t *testing.T) {
	doc := mustParse(t, `<div id="a"><p>one</p><p>two</p></div>`)
	r, err := doc.SelectRange("#a p")
	require.NoError(t, err)
	assert.Same(t, first(t, doc, "#a"), r.CommonAncestor())

	_, err = doc.SelectRange("#missing")
	assert.Error(t, err)
}

func TestResultNode_InsertAtFrozenSibling(t *testing.T) {
	doc := mustParse(t, `<div id="a">one<br>two</div>`)
	div := first(t, doc, "#a")
	one := div.FirstChild
	two := div.LastChild

	anchors := []Anchor{AnchorAfter(one), AnchorAfter(two)}
	results := []*ResultNode{NewResultNode("Translating..."), NewResultNode("Translating...")}

	require.NoError(t, doc.Do(func(*html.Node) error {
		for i, r := range results {
			if err := r.InsertAt(anchors[i]); err != nil {
				return err
			}
		}
		return nil
	}))

	out := doc.String()
	assert.Contains(t, out, `one<span><br/><span class="stran-result"`)
	assert.True(t, strings.HasSuffix(strings.TrimSuffix(out, "</div></body></html>"), "Translating...</span></span>"))

	results[1].SetText("둘")
	assert.Equal(t, "둘", results[1].Text())
	assert.Equal(t, "Translating...", results[0].Text())
}

func TestResultNode_InsertErrors(t *testing.T) {
	detached := &html.Node{Type: html.TextNode, Data: "x"}
	r := NewResultNode("Translating...")
	assert.ErrorIs(t, r.InsertAt(AnchorAfter(detached)), ErrDetachedAnchor)

	doc := mustParse(t, `<div id="a">one<i>two</i></div><p id="b">elsewhere</p>`)
	one := first(t, doc, "#a").FirstChild
	stale := Anchor{Node: one, Next: first(t, doc, "#b")}
	assert.ErrorIs(t, r.InsertAt(stale), ErrStaleAnchor)

	require.NoError(t, r.InsertAt(AnchorAfter(one)))
	assert.ErrorIs(t, r.InsertAt(AnchorAfter(one)), ErrAlreadyInserted)
}
