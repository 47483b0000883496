package annotate

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/net/html"

	"github.com/nerdneilsfield/translens/internal/dom"
	"github.com/nerdneilsfield/translens/internal/extract"
	"github.com/nerdneilsfield/translens/internal/marker"
)

func setup(t *testing.T, body string) (*dom.Document, *Annotator, extract.Segment) {
	t.Helper()
	doc, err := dom.ParseString("<html><body>" + body + "</body></html>")
	require.NoError(t, err)

	a := New(doc, zaptest.NewLogger(t))
	n := 0
	a.newID = func() string {
		n++
		return fmt.Sprintf("u%d", n)
	}

	var seg extract.Segment
	doc.View(func(root *html.Node) {
		owner := dom.ElementByID(root, "t")
		require.NotNil(t, owner)
		seg = extract.Segment{RawText: "", Node: owner.FirstChild, Owner: owner}
	})
	return doc, a, seg
}

func inner(t *testing.T, doc *dom.Document, id string) string {
	t.Helper()
	var out string
	doc.View(func(root *html.Node) {
		s, err := dom.InnerHTML(dom.ElementByID(root, id))
		require.NoError(t, err)
		out = s
	})
	return out
}

func TestApplyInsertsUnitAfterWord(t *testing.T) {
	doc, a, seg := setup(t, `<p id="t">你好世界</p>`)

	ok, err := a.Apply(context.Background(), seg, "世界", "world")
	require.NoError(t, err)
	assert.True(t, ok)

	got := inner(t, doc, "t")
	assert.True(t, strings.HasPrefix(got, "你好世界"+marker.OpenMarker), got)
	assert.Equal(t, 1, strings.Count(got, marker.OpenMarker))
	assert.Contains(t, got, `data-word="世界"`)
	assert.Contains(t, got, `data-translation="world"`)
	assert.Contains(t, got, `[world]`)
	assert.Contains(t, got, marker.EasyClass)
}

func TestApplyNeverDoubleAnnotates(t *testing.T) {
	doc, a, seg := setup(t, `<p id="t">世界你好世界</p>`)

	ok, err := a.Apply(context.Background(), seg, "世界", "world")
	require.NoError(t, err)
	assert.True(t, ok)

	// 同一元素里已有该词的注释时不再插入
	ok, err = a.Apply(context.Background(), seg, "世界", "world")
	require.NoError(t, err)
	assert.False(t, ok)

	got := inner(t, doc, "t")
	assert.Equal(t, 1, strings.Count(got, marker.OpenMarker))
	// 第一处出现被注释
	assert.True(t, strings.HasPrefix(got, "世界"+marker.OpenMarker), got)
}

func TestApplyNoMatch(t *testing.T) {
	doc, a, seg := setup(t, `<p id="t">你好朋友</p>`)
	ok, err := a.Apply(context.Background(), seg, "世界", "world")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "你好朋友", inner(t, doc, "t"))

	ok, err = a.Apply(context.Background(), seg, "", "world")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestApplySkipsWordInsideTags(t *testing.T) {
	doc, a, seg := setup(t, `<p id="t"><a title="世界">链接</a>世界</p>`)
	ok, err := a.Apply(context.Background(), seg, "世界", "world")
	require.NoError(t, err)
	assert.True(t, ok)

	got := inner(t, doc, "t")
	assert.True(t, strings.HasPrefix(got, `<a title="世界">链接</a>世界`+marker.OpenMarker), got)
}

func TestApplyDetachedOwner(t *testing.T) {
	doc, a, seg := setup(t, `<p id="t">你好世界</p>`)
	doc.Mutate(func(root *html.Node) {
		seg.Owner.Parent.RemoveChild(seg.Owner)
	})

	ok, err := a.Apply(context.Background(), seg, "世界", "world")
	assert.ErrorIs(t, err, dom.ErrDetached)
	assert.False(t, ok)
}

func TestApplyAfterTeardownOrCancel(t *testing.T) {
	doc, a, seg := setup(t, `<p id="t">你好世界</p>`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Apply(ctx, seg, "世界", "world")
	assert.ErrorIs(t, err, context.Canceled)

	doc.Teardown()
	_, err = a.Apply(context.Background(), seg, "世界", "world")
	assert.ErrorIs(t, err, dom.ErrTornDown)

	assert.Equal(t, "你好世界", inner(t, doc, "t"))
}

func TestSpliceRuneOffsets(t *testing.T) {
	re, err := WordPattern("b&c")
	require.NoError(t, err)

	out, ok, err := Splice(re, "中文 b&amp;c 中文", marker.Unit{ID: "x", Word: "b&c", Translation: "t"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(out, "中文 b&amp;c"+marker.OpenMarker), out)
	assert.True(t, strings.HasSuffix(out, "</span> 中文"), out)
}

func TestApplyNeverRightAfterExistingUnit(t *testing.T) {
	doc, a, seg := setup(t, `<p id="t">你好世界</p>`)

	ok, err := a.Apply(context.Background(), seg, "界", "boundary")
	require.NoError(t, err)
	require.True(t, ok)

	// “世界”唯一的出现紧跟着“界”的注释单元，不能再插入
	ok, err = a.Apply(context.Background(), seg, "世界", "world")
	require.NoError(t, err)
	assert.False(t, ok)

	got := inner(t, doc, "t")
	assert.Equal(t, 1, strings.Count(got, marker.OpenMarker), got)
	assert.Contains(t, got, `data-word="界"`)
	assert.NotContains(t, got, `data-word="世界"`)
}

func TestSpliceSkipsOccurrenceFollowedByUnit(t *testing.T) {
	re, err := WordPattern("世界")
	require.NoError(t, err)

	first := marker.Unit{ID: "a", Word: "世界", Translation: "world"}
	second := marker.Unit{ID: "b", Word: "世界", Translation: "world"}
	content := "世界" + first.HTML() + "世界"

	out, ok, err := Splice(re, content, second)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, content+second.HTML(), out)
}
