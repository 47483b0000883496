// Package extract 从活动文档中提取含目标文字的候选文本片段
package extract

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/text/unicode/rangetable"

	"github.com/nerdneilsfield/translens/internal/dom"
	"github.com/nerdneilsfield/translens/internal/logger"
	"github.com/nerdneilsfield/translens/internal/marker"
	"github.com/nerdneilsfield/translens/internal/visibility"
)

// Segment 一次扫描得到的候选文本片段
// 去重以 PureText 为准：同一句话在树重建后可能出现在新的节点上
type Segment struct {
	RawText  string
	PureText string
	Node     *html.Node // 文本节点
	Owner    *html.Node // 持有该文本的元素
}

// Options 提取器选项
type Options struct {
	TargetScripts []string // Unicode script 名称，如 Han
	MinLength     int      // PureText 最小字符数
	SkipElements  []string // 非内容元素
}

// DefaultOptions 默认提取器选项
func DefaultOptions() Options {
	return Options{
		TargetScripts: []string{"Han"},
		MinLength:     2,
		SkipElements:  []string{"script", "style", "noscript", "template", "textarea", "iframe", "svg", "math"},
	}
}

// Stats 一次扫描的拒绝原因统计
type Stats struct {
	TextNodes int
	Processed int
	Hidden    int
	Shape     int
	Accepted  int
}

// Extractor 候选文本提取器
type Extractor struct {
	script    *unicode.RangeTable
	minLength int
	skip      map[string]bool
	vis       *visibility.Filter
	logger    *zap.Logger
}

// New 创建提取器
func New(opts Options, vis *visibility.Filter, log *zap.Logger) (*Extractor, error) {
	if len(opts.TargetScripts) == 0 {
		return nil, fmt.Errorf("no target script configured")
	}
	tables := make([]*unicode.RangeTable, 0, len(opts.TargetScripts))
	for _, name := range opts.TargetScripts {
		table, ok := unicode.Scripts[name]
		if !ok {
			return nil, fmt.Errorf("unknown unicode script %q", name)
		}
		tables = append(tables, table)
	}

	skip := make(map[string]bool, len(opts.SkipElements))
	for _, tag := range opts.SkipElements {
		skip[strings.ToLower(tag)] = true
	}

	if opts.MinLength < 1 {
		opts.MinLength = 1
	}
	if vis == nil {
		vis = visibility.New(nil)
	}

	return &Extractor{
		script:    rangetable.Merge(tables...),
		minLength: opts.MinLength,
		skip:      skip,
		vis:       vis,
		logger:    logger.OrNop(log),
	}, nil
}

// Extract 深度优先遍历文档，返回本轮新接受的片段
// 调用方需持有文档锁：接受的片段会把其所属元素打上已处理标记
func (e *Extractor) Extract(root *html.Node) []Segment {
	var (
		segments []Segment
		stats    Stats
	)
	e.walk(root, &segments, &stats)

	e.logger.Debug("extracted candidate segments",
		zap.Int("textNodes", stats.TextNodes),
		zap.Int("accepted", stats.Accepted),
		zap.Int("processed", stats.Processed),
		zap.Int("hidden", stats.Hidden),
		zap.Int("shape", stats.Shape))
	return segments
}

func (e *Extractor) walk(n *html.Node, out *[]Segment, stats *Stats) {
	if n == nil {
		return
	}

	switch n.Type {
	case html.ElementNode:
		// 非内容元素和已有注释单元的子树整体跳过
		if e.skip[strings.ToLower(n.Data)] || dom.HasClass(n, marker.AnnotationClass) {
			return
		}
	case html.TextNode:
		stats.TextNodes++
		if seg, ok := e.accept(n, stats); ok {
			*out = append(*out, seg)
		}
		return
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		e.walk(c, out, stats)
	}
}

func (e *Extractor) accept(n *html.Node, stats *Stats) (Segment, bool) {
	owner := n.Parent
	if owner == nil || owner.Type != html.ElementNode {
		return Segment{}, false
	}
	if e.skip[strings.ToLower(owner.Data)] {
		return Segment{}, false
	}
	if _, marked := dom.GetAttr(owner, marker.ProcessedAttr); marked {
		stats.Processed++
		return Segment{}, false
	}
	if dom.Closest(owner, func(el *html.Node) bool { return dom.HasClass(el, marker.AnnotationClass) }) != nil {
		return Segment{}, false
	}
	if !e.vis.Visible(owner) {
		stats.Hidden++
		return Segment{}, false
	}

	pure := Purify(n.Data)
	if !e.ShapeOK(pure) {
		stats.Shape++
		return Segment{}, false
	}

	// 标记与去重账本无关，接受即标记，之后的扫描不再重复遍历
	dom.SetAttr(owner, marker.ProcessedAttr, "1")
	stats.Accepted++

	return Segment{
		RawText:  n.Data,
		PureText: pure,
		Node:     n,
		Owner:    owner,
	}, true
}

// ShapeOK 文本是否满足长度和目标文字要求
func (e *Extractor) ShapeOK(pure string) bool {
	if utf8.RuneCountInString(pure) < e.minLength {
		return false
	}
	for _, r := range pure {
		if unicode.Is(e.script, r) {
			return true
		}
	}
	return false
}

// Purify 去掉注释文字并裁剪首尾空白
func Purify(raw string) string {
	return strings.TrimSpace(marker.Strip(raw))
}
