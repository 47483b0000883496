package visibility

import (
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// autoExtent 没有布局引擎时，未声明尺寸的元素按一个非零的名义尺寸处理
const autoExtent = 1

// hiddenByDefault 浏览器默认样式中 display 为 none 的元素
var hiddenByDefault = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Template: true,
	atom.Title:    true,
	atom.Meta:     true,
	atom.Link:     true,
	atom.Base:     true,
	atom.Noscript: true,
}

// InlineStyles 根据内联 style、hidden 属性和标签默认样式推断渲染状态
type InlineStyles struct{}

// ComputedStyle 实现 StyleSource
func (InlineStyles) ComputedStyle(n *html.Node) Style {
	decls := declarations(n)

	st := Style{
		Display:    displayOf(n, decls),
		Visibility: "visible",
		Opacity:    "1",
		Position:   "static",
	}

	// visibility 会继承
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		if v, ok := declarations(cur)["visibility"]; ok && v != "inherit" {
			st.Visibility = v
			break
		}
	}

	if v, ok := decls["opacity"]; ok {
		st.Opacity = normalizeOpacity(v)
	}
	if v, ok := decls["position"]; ok {
		st.Position = v
	}
	return st
}

// Size 实现 StyleSource
func (s InlineStyles) Size(n *html.Node) (float64, float64) {
	if n == nil || s.inHiddenSubtree(n) {
		return 0, 0
	}
	decls := declarations(n)
	return extent(decls["width"]), extent(decls["height"])
}

// OffsetParent 实现 StyleSource
func (s InlineStyles) OffsetParent(n *html.Node) *html.Node {
	if n == nil || n.Type != html.ElementNode {
		return nil
	}
	if n.DataAtom == atom.Body || n.DataAtom == atom.Html {
		return nil
	}
	if s.inHiddenSubtree(n) {
		return nil
	}
	if declarations(n)["position"] == "fixed" {
		return nil
	}

	var body *html.Node
	for cur := n.Parent; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		if pos, ok := declarations(cur)["position"]; ok && pos != "static" {
			return cur
		}
		switch cur.DataAtom {
		case atom.Td, atom.Th, atom.Table:
			return cur
		case atom.Body:
			body = cur
		}
	}
	return body
}

func (InlineStyles) inHiddenSubtree(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type == html.ElementNode && displayOf(cur, declarations(cur)) == "none" {
			return true
		}
	}
	return false
}

func displayOf(n *html.Node, decls map[string]string) string {
	if v, ok := decls["display"]; ok {
		return v
	}
	for _, attr := range n.Attr {
		if attr.Key == "hidden" {
			return "none"
		}
	}
	if hiddenByDefault[n.DataAtom] {
		return "none"
	}
	return "block"
}

// declarations 解析内联 style 声明，属性名和取值统一转为小写
func declarations(n *html.Node) map[string]string {
	decls := make(map[string]string)
	if n == nil {
		return decls
	}
	var style string
	for _, attr := range n.Attr {
		if attr.Key == "style" {
			style = attr.Val
			break
		}
	}
	for _, decl := range strings.Split(style, ";") {
		name, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(value), "!important"))
		if name == "" || value == "" {
			continue
		}
		decls[name] = strings.ToLower(value)
	}
	return decls
}

func normalizeOpacity(v string) string {
	f, err := strconv.ParseFloat(strings.TrimSuffix(v, "%"), 64)
	if err != nil {
		return v
	}
	if f <= 0 {
		return "0"
	}
	return v
}

func extent(v string) float64 {
	if v == "" || v == "auto" {
		return autoExtent
	}
	num := strings.TrimRightFunc(v, func(r rune) bool { return r < '0' || r > '9' })
	f, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return autoExtent
	}
	return f
}
