// Package annotate 把译文注释插入到目标词之后
package annotate

import (
	"context"
	"fmt"
	"html"

	"github.com/PuerkitoBio/goquery"
	"github.com/dlclark/regexp2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	nethtml "golang.org/x/net/html"

	"github.com/nerdneilsfield/translens/internal/dom"
	"github.com/nerdneilsfield/translens/internal/extract"
	"github.com/nerdneilsfield/translens/internal/logger"
	"github.com/nerdneilsfield/translens/internal/marker"
)

// Annotator 注释器
//
// 注释通过重新序列化所属元素的全部内容完成，而不是插入单个节点。
// 同一元素上与之并发的其它修改可能被覆盖，这是已知限制。
type Annotator struct {
	doc    *dom.Document
	newID  func() string
	logger *zap.Logger
}

// New 创建注释器
func New(doc *dom.Document, log *zap.Logger) *Annotator {
	return &Annotator{
		doc:    doc,
		newID:  uuid.NewString,
		logger: logger.OrNop(log),
	}
}

// Apply 在所属元素中第一个尚未注释的 word 之后插入注释单元
//
// 返回 false 表示没有可注释的位置。所属元素已脱离文档时返回 dom.ErrDetached；
// 文档已卸载时返回 dom.ErrTornDown；ctx 已取消时返回 ctx 的错误。
func (a *Annotator) Apply(ctx context.Context, seg extract.Segment, word, translation string) (bool, error) {
	if word == "" || translation == "" {
		return false, nil
	}
	pattern, err := WordPattern(word)
	if err != nil {
		return false, err
	}

	applied := false
	err = a.doc.Update(func(root *nethtml.Node) error {
		// 结果是否仍然需要：在文档锁内检查，避免与卸载交错
		if err := ctx.Err(); err != nil {
			return err
		}
		if !dom.IsAttached(root, seg.Owner) {
			return dom.ErrDetached
		}
		if HasUnit(seg.Owner, word) {
			a.logger.Debug("word already annotated in element", zap.String("word", word))
			return nil
		}

		inner, err := dom.InnerHTML(seg.Owner)
		if err != nil {
			return fmt.Errorf("failed to serialize element: %w", err)
		}
		rewritten, ok, err := Splice(pattern, inner, marker.Unit{
			ID:          a.newID(),
			Word:        word,
			Translation: translation,
		})
		if err != nil || !ok {
			return err
		}

		dom.SetInnerHTML(seg.Owner, rewritten)
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// WordPattern 匹配序列化内容中的 word：不在标签内部，且后面没有紧跟注释单元
func WordPattern(word string) (*regexp2.Regexp, error) {
	expr := regexp2.Escape(html.EscapeString(word)) +
		`(?![^<>]*>)` +
		`(?!` + regexp2.Escape(marker.OpenMarker) + `)`
	re, err := regexp2.Compile(expr, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("invalid word pattern for %q: %w", word, err)
	}
	return re, nil
}

// Splice 在第一个匹配之后插入注释单元
func Splice(pattern *regexp2.Regexp, inner string, unit marker.Unit) (string, bool, error) {
	m, err := pattern.FindStringMatch(inner)
	if err != nil {
		return "", false, fmt.Errorf("failed to match word pattern: %w", err)
	}
	if m == nil {
		return inner, false, nil
	}

	// regexp2 的下标以 rune 计
	runes := []rune(inner)
	end := m.Index + m.Length
	return string(runes[:end]) + unit.HTML() + string(runes[end:]), true, nil
}

// HasUnit 元素内是否已有绑定 word 的注释单元
func HasUnit(owner *nethtml.Node, word string) bool {
	return dom.Selection(owner).
		Find("span." + marker.AnnotationClass).
		FilterFunction(func(_ int, s *goquery.Selection) bool {
			w, _ := s.Attr(marker.WordAttr)
			return w == word
		}).
		Length() > 0
}
