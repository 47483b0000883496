// Package pipeline 为抽中的片段并发发起翻译请求，并把结果交给注释器
package pipeline

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/nerdneilsfield/translens/internal/client"
	"github.com/nerdneilsfield/translens/internal/dom"
	"github.com/nerdneilsfield/translens/internal/epoch"
	"github.com/nerdneilsfield/translens/internal/extract"
	"github.com/nerdneilsfield/translens/internal/logger"
	"github.com/nerdneilsfield/translens/internal/metrics"
)

// Translator 翻译服务
type Translator interface {
	Translate(ctx context.Context, sentence string) (*client.Result, error)
}

// Applier 注释器
type Applier interface {
	Apply(ctx context.Context, seg extract.Segment, word, translation string) (bool, error)
}

// Outcome 单个片段的处理结果，Kind 取 metrics.Outcome* 之一
type Outcome struct {
	Segment extract.Segment
	Result  *client.Result
	Kind    string
	Err     error
}

// Flight 一次派发的全部在途请求
type Flight struct {
	Gen  uint64
	Size int

	wg       sync.WaitGroup
	done     chan struct{}
	mu       sync.Mutex
	outcomes []Outcome
}

// Done 所有请求结束后关闭
func (f *Flight) Done() <-chan struct{} {
	return f.done
}

// Wait 等待所有请求结束，返回各片段的结果（完成顺序）
func (f *Flight) Wait() []Outcome {
	<-f.done
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Outcome, len(f.outcomes))
	copy(out, f.outcomes)
	return out
}

func (f *Flight) record(o Outcome) {
	f.mu.Lock()
	f.outcomes = append(f.outcomes, o)
	f.mu.Unlock()
}

// Pipeline 请求管线
type Pipeline struct {
	translator Translator
	applier    Applier
	logger     *zap.Logger
}

// New 创建请求管线
func New(tr Translator, ap Applier, log *zap.Logger) *Pipeline {
	return &Pipeline{
		translator: tr,
		applier:    ap,
		logger:     logger.OrNop(log),
	}
}

// Dispatch 为每个片段各发起一个请求，全部共享 ep，立即返回
// 各片段的失败互不影响；ep 撤销后到达的结果一律丢弃
func (p *Pipeline) Dispatch(ep *epoch.Epoch, segs []extract.Segment) *Flight {
	f := &Flight{Gen: ep.Gen(), Size: len(segs), done: make(chan struct{})}

	f.wg.Add(len(segs))
	for _, seg := range segs {
		go func(seg extract.Segment) {
			defer f.wg.Done()
			o := p.process(ep, seg)
			metrics.Requests.WithLabelValues(o.Kind).Inc()
			f.record(o)
		}(seg)
	}

	go func() {
		f.wg.Wait()
		close(f.done)
	}()
	return f
}

func (p *Pipeline) process(ep *epoch.Epoch, seg extract.Segment) Outcome {
	ctx := ep.Context()
	log := p.logger.With(zap.Uint64("epoch", ep.Gen()), zap.String("sentence", seg.PureText))

	res, err := p.translator.Translate(ctx, seg.PureText)
	switch {
	case ep.Revoked() || errors.Is(err, context.Canceled):
		log.Debug("translation cancelled")
		return Outcome{Segment: seg, Kind: metrics.OutcomeCancelled, Err: err}
	case err != nil:
		log.Warn("translation request failed", zap.Error(err))
		return Outcome{Segment: seg, Kind: metrics.OutcomeFailed, Err: err}
	case res == nil:
		log.Debug("no eligible word in sentence")
		return Outcome{Segment: seg, Kind: metrics.OutcomeSkipped}
	}

	log = log.With(zap.String("word", res.TargetWord), zap.Bool("fromCache", res.FromCache))
	ok, err := p.applier.Apply(ctx, seg, res.TargetWord, res.Translation)
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, dom.ErrTornDown):
		log.Debug("annotation discarded after teardown")
		return Outcome{Segment: seg, Result: res, Kind: metrics.OutcomeCancelled, Err: err}
	case errors.Is(err, dom.ErrDetached):
		log.Warn("owning element detached before annotation")
		return Outcome{Segment: seg, Result: res, Kind: metrics.OutcomeStale, Err: err}
	case err != nil:
		log.Warn("annotation failed", zap.Error(err))
		return Outcome{Segment: seg, Result: res, Kind: metrics.OutcomeFailed, Err: err}
	case !ok:
		log.Debug("no unannotated occurrence of word")
		return Outcome{Segment: seg, Result: res, Kind: metrics.OutcomeNoop}
	}

	log.Info("annotated", zap.String("translation", res.Translation))
	return Outcome{Segment: seg, Result: res, Kind: metrics.OutcomeAnnotated}
}
