// Package suppress 处理用户对注释单元的“太简单”确认
package suppress

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/nerdneilsfield/translens/internal/client"
	"github.com/nerdneilsfield/translens/internal/dom"
	"github.com/nerdneilsfield/translens/internal/logger"
	"github.com/nerdneilsfield/translens/internal/marker"
	"github.com/nerdneilsfield/translens/internal/metrics"
)

// ErrUnitNotFound 文档中没有指定 id 的注释单元
var ErrUnitNotFound = errors.New("annotation unit not found")

// Notifier 远端的标记接口
type Notifier interface {
	MarkEasy(ctx context.Context, word string) (*client.MarkEasyResult, error)
}

// Interaction 抑制交互
type Interaction struct {
	doc      *dom.Document
	notifier Notifier
	timeout  time.Duration
	logger   *zap.Logger

	wg sync.WaitGroup
}

// New 创建抑制交互，timeout 为通知请求的超时，<= 0 时不设超时
func New(doc *dom.Document, notifier Notifier, timeout time.Duration, log *zap.Logger) *Interaction {
	return &Interaction{
		doc:      doc,
		notifier: notifier,
		timeout:  timeout,
		logger:   logger.OrNop(log),
	}
}

// Confirm 移除注释单元并在后台通知服务端，返回单元绑定的词
//
// 本地移除立即生效且不会回滚；通知失败只记录日志。
// 通知不继承 ctx 的取消，调用方可以用 Wait 等待它结束。
func (i *Interaction) Confirm(ctx context.Context, unitID string) (string, error) {
	var word string
	err := i.doc.Update(func(root *html.Node) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		unit := FindUnit(root, unitID)
		if unit.Length() == 0 {
			return fmt.Errorf("%w: %s", ErrUnitNotFound, unitID)
		}
		word = unit.AttrOr(marker.WordAttr, "")
		unit.Remove()
		return nil
	})
	if err != nil {
		return "", err
	}

	i.logger.Info("annotation removed", zap.String("word", word), zap.String("id", unitID))
	if word == "" {
		return "", nil
	}

	notifyCtx := context.WithoutCancel(ctx)
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		i.notify(notifyCtx, word)
	}()
	return word, nil
}

// Wait 等待所有后台通知结束
func (i *Interaction) Wait() {
	i.wg.Wait()
}

func (i *Interaction) notify(ctx context.Context, word string) {
	if i.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.timeout)
		defer cancel()
	}

	res, err := i.notifier.MarkEasy(ctx, word)
	if err != nil {
		metrics.Suppressions.WithLabelValues("failed").Inc()
		i.logger.Warn("failed to notify mark easy", zap.String("word", word), zap.Error(err))
		return
	}
	metrics.Suppressions.WithLabelValues("success").Inc()
	if res != nil {
		i.logger.Info("word suppressed",
			zap.String("word", word),
			zap.Int("level", res.NewLevel),
			zap.Int("days", res.SuppressDays))
	}
}

// FindUnit 按 id 查找注释单元
func FindUnit(root *html.Node, unitID string) *goquery.Selection {
	return dom.Selection(root).
		Find("span." + marker.AnnotationClass).
		FilterFunction(func(_ int, s *goquery.Selection) bool {
			id, _ := s.Attr(marker.IDAttr)
			return id == unitID
		}).
		First()
}

// Units 列出文档中所有注释单元
func Units(root *html.Node) []marker.Unit {
	var units []marker.Unit
	dom.Selection(root).Find("span." + marker.AnnotationClass).Each(func(_ int, s *goquery.Selection) {
		units = append(units, marker.Unit{
			ID:          s.AttrOr(marker.IDAttr, ""),
			Word:        s.AttrOr(marker.WordAttr, ""),
			Translation: s.AttrOr(marker.TranslationAttr, ""),
		})
	})
	return units
}
