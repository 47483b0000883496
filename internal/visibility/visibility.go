// Package visibility 判断文档中的元素当前是否能被用户看到
package visibility

import (
	"golang.org/x/net/html"
)

// Style 计算样式中与可见性相关的属性
type Style struct {
	Display    string
	Visibility string
	Opacity    string
	Position   string
}

// StyleSource 提供元素当前的渲染状态
// 每次调用都应读取最新状态，Filter 不做任何缓存
type StyleSource interface {
	ComputedStyle(n *html.Node) Style
	Size(n *html.Node) (width, height float64)
	OffsetParent(n *html.Node) *html.Node
}

// Filter 可见性过滤器
type Filter struct {
	src StyleSource
}

// New 创建可见性过滤器，src 为空时使用内联样式推断
func New(src StyleSource) *Filter {
	if src == nil {
		src = InlineStyles{}
	}
	return &Filter{src: src}
}

// Visible 判断元素是否可见
//
// 元素可见当且仅当：display 不是 none，visibility 不是 hidden，opacity 不等于 "0"，
// 宽或高不为零，并且存在 offset parent（自身 position 为 fixed 时除外）。
func (f *Filter) Visible(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}

	st := f.src.ComputedStyle(n)
	if st.Display == "none" || st.Visibility == "hidden" || st.Opacity == "0" {
		return false
	}

	if w, h := f.src.Size(n); w == 0 && h == 0 {
		return false
	}

	if st.Position != "fixed" && f.src.OffsetParent(n) == nil {
		return false
	}
	return true
}
