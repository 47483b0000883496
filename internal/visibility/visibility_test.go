package visibility

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/nerdneilsfield/translens/internal/dom"
)

func parse(t *testing.T, body string) *html.Node {
	t.Helper()
	root, err := html.Parse(strings.NewReader("<html><head><title>x</title></head><body>" + body + "</body></html>"))
	require.NoError(t, err)
	return root
}

func TestVisible(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"plain paragraph", `<p id="t">你好</p>`, true},
		{"display none", `<p id="t" style="display:none">你好</p>`, false},
		{"display none ancestor", `<div style="display: none"><p id="t">你好</p></div>`, false},
		{"hidden attribute", `<p id="t" hidden>你好</p>`, false},
		{"hidden attribute overridden", `<p id="t" hidden style="display:block">你好</p>`, true},
		{"visibility hidden", `<p id="t" style="visibility:hidden">你好</p>`, false},
		{"visibility inherited", `<div style="visibility:hidden"><p id="t">你好</p></div>`, false},
		{"visibility restored", `<div style="visibility:hidden"><p id="t" style="visibility:visible">你好</p></div>`, true},
		{"opacity zero", `<p id="t" style="opacity:0">你好</p>`, false},
		{"opacity zero decimal", `<p id="t" style="opacity: 0.0 !important">你好</p>`, false},
		{"opacity half", `<p id="t" style="opacity:0.5">你好</p>`, true},
		{"zero size", `<p id="t" style="width:0;height:0px">你好</p>`, false},
		{"zero height only", `<p id="t" style="height:0">你好</p>`, true},
		{"fixed without offset parent", `<p id="t" style="position:fixed">你好</p>`, true},
		{"positioned ancestor", `<div style="position:relative"><p id="t">你好</p></div>`, true},
	}

	f := New(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := parse(t, tt.body)
			n := dom.ElementByID(root, "t")
			require.NotNil(t, n)
			assert.Equal(t, tt.want, f.Visible(n))
		})
	}
}

func TestVisibleRejectsBodyAndNil(t *testing.T) {
	f := New(InlineStyles{})
	assert.False(t, f.Visible(nil))

	root := parse(t, "你好")
	// body 没有 offset parent
	body := dom.FindElement(root, atom.Body)
	require.NotNil(t, body)
	assert.False(t, f.Visible(body))
}

type stubStyles struct {
	style  Style
	w, h   float64
	parent *html.Node
	calls  int
}

func (s *stubStyles) ComputedStyle(*html.Node) Style {
	s.calls++
	return s.style
}
func (s *stubStyles) Size(*html.Node) (float64, float64) { return s.w, s.h }
func (s *stubStyles) OffsetParent(*html.Node) *html.Node { return s.parent }

func TestVisibleReadsFreshState(t *testing.T) {
	n := &html.Node{Type: html.ElementNode, Data: "p"}
	src := &stubStyles{style: Style{Display: "block", Visibility: "visible", Opacity: "1", Position: "static"}, w: 10, h: 10, parent: n}
	f := New(src)

	assert.True(t, f.Visible(n))
	src.style.Display = "none"
	assert.False(t, f.Visible(n))
	assert.Equal(t, 2, src.calls)

	src.style.Display = "block"
	src.parent = nil
	assert.False(t, f.Visible(n))
	src.style.Position = "fixed"
	assert.True(t, f.Visible(n))
}
