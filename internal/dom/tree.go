package dom

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// GetAttr 读取属性
func GetAttr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, attr := range n.Attr {
		if attr.Namespace == "" && attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}

// SetAttr 设置属性，已存在则覆盖
func SetAttr(n *html.Node, key, val string) {
	for i, attr := range n.Attr {
		if attr.Namespace == "" && attr.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// HasClass 元素的 class 列表中是否包含 class
func HasClass(n *html.Node, class string) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	val, ok := GetAttr(n, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(val) {
		if c == class {
			return true
		}
	}
	return false
}

// Closest 返回 n 自身或最近的满足条件的祖先元素
func Closest(n *html.Node, match func(*html.Node) bool) *html.Node {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type == html.ElementNode && match(cur) {
			return cur
		}
	}
	return nil
}

// FindElement 深度优先查找第一个指定标签的元素
func FindElement(n *html.Node, a atom.Atom) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := FindElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

// IsAttached 判断节点是否仍挂在 root 之下
func IsAttached(root, n *html.Node) bool {
	if root == nil || n == nil {
		return false
	}
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == root {
			return true
		}
	}
	return false
}

// Selection 把节点包装为 goquery 选择集
func Selection(n *html.Node) *goquery.Selection {
	return goquery.NewDocumentFromNode(n).Selection
}

// InnerHTML 序列化元素的子节点
func InnerHTML(n *html.Node) (string, error) {
	return Selection(n).Html()
}

// SetInnerHTML 以元素为上下文解析 markup，并整体替换其子节点
func SetInnerHTML(n *html.Node, markup string) {
	Selection(n).SetHtml(markup)
}

// ElementByID 深度优先查找指定 id 的元素
func ElementByID(n *html.Node, id string) *html.Node {
	if n == nil {
		return nil
	}
	if n.Type == html.ElementNode {
		if v, ok := GetAttr(n, "id"); ok && v == id {
			return n
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := ElementByID(c, id); found != nil {
			return found
		}
	}
	return nil
}
