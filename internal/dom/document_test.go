package dom

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const page = `<!DOCTYPE html><html><head><title>t</title></head><body><p id="a">你好世界</p><div><span>ok</span></div></body></html>`

func TestMutatePublishesChanges(t *testing.T) {
	doc, err := ParseString(page)
	require.NoError(t, err)

	changes, cancel := doc.Subscribe()
	defer cancel()

	doc.Mutate(func(root *html.Node) {
		body := FindElement(root, atom.Body)
		body.AppendChild(&html.Node{Type: html.TextNode, Data: "新内容"})
	})

	select {
	case c := <-changes:
		assert.Equal(t, uint64(1), c.Seq)
	case <-time.After(time.Second):
		t.Fatal("expected a change notification")
	}

	// 核心侧写入不产生通知
	require.NoError(t, doc.Update(func(root *html.Node) error {
		SetAttr(ElementByID(root, "a"), "data-x", "1")
		return nil
	}))
	select {
	case c := <-changes:
		t.Fatalf("unexpected change %d", c.Seq)
	default:
	}
}

func TestTeardownBlocksUpdatesUntilRevived(t *testing.T) {
	doc, err := ParseString(page)
	require.NoError(t, err)

	doc.Teardown()
	assert.True(t, doc.IsTornDown())

	select {
	case <-doc.TornDown():
	default:
		t.Fatal("expected teardown signal")
	}

	err = doc.Update(func(root *html.Node) error { return nil })
	assert.ErrorIs(t, err, ErrTornDown)

	doc.Mutate(func(root *html.Node) {})
	assert.False(t, doc.IsTornDown())
	assert.NoError(t, doc.Update(func(root *html.Node) error { return nil }))
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	doc, err := ParseString(page)
	require.NoError(t, err)

	changes, cancel := doc.Subscribe()
	cancel()
	cancel()

	_, ok := <-changes
	assert.False(t, ok)
	doc.Mutate(func(root *html.Node) {})
}

func TestReplaceBodyDetachesOldNodes(t *testing.T) {
	doc, err := ParseString(page)
	require.NoError(t, err)

	var old *html.Node
	doc.View(func(root *html.Node) { old = ElementByID(root, "a") })
	require.NotNil(t, old)

	src, err := html.Parse(strings.NewReader(`<html><body><p id="a">你好世界</p></body></html>`))
	require.NoError(t, err)
	doc.ReplaceBody(src)

	doc.View(func(root *html.Node) {
		assert.False(t, IsAttached(root, old))
		fresh := ElementByID(root, "a")
		require.NotNil(t, fresh)
		assert.True(t, IsAttached(root, fresh))
	})
}

func TestInnerHTMLRoundTrip(t *testing.T) {
	doc, err := ParseString(page)
	require.NoError(t, err)

	require.NoError(t, doc.Update(func(root *html.Node) error {
		p := ElementByID(root, "a")
		inner, err := InnerHTML(p)
		require.NoError(t, err)
		assert.Equal(t, "你好世界", inner)

		SetInnerHTML(p, `你好<b>世界</b>`)
		inner, err = InnerHTML(p)
		require.NoError(t, err)
		assert.Equal(t, "你好<b>世界</b>", inner)
		return nil
	}))

	assert.Contains(t, doc.String(), `<p id="a">你好<b>世界</b></p>`)
}

func TestAttrHelpers(t *testing.T) {
	n := &html.Node{Type: html.ElementNode, Data: "span", DataAtom: atom.Span}
	_, ok := GetAttr(n, "class")
	assert.False(t, ok)

	SetAttr(n, "class", "a translens-annotation")
	assert.True(t, HasClass(n, "translens-annotation"))
	assert.False(t, HasClass(n, "translens"))

	SetAttr(n, "class", "b")
	v, _ := GetAttr(n, "class")
	assert.Equal(t, "b", v)
	assert.Len(t, n.Attr, 1)

	assert.False(t, IsAttached(nil, n))
	assert.True(t, IsAttached(n, n))
}
