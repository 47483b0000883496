// Package scheduler 对结构变化去抖，并驱动一轮轮 提取 → 去重 → 抽样 → 派发
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/nerdneilsfield/translens/internal/dom"
	"github.com/nerdneilsfield/translens/internal/epoch"
	"github.com/nerdneilsfield/translens/internal/extract"
	"github.com/nerdneilsfield/translens/internal/ledger"
	"github.com/nerdneilsfield/translens/internal/logger"
	"github.com/nerdneilsfield/translens/internal/metrics"
	"github.com/nerdneilsfield/translens/internal/pipeline"
	"github.com/nerdneilsfield/translens/internal/sampler"
)

// DefaultDebounce 默认去抖延迟
const DefaultDebounce = time.Second

// State 调度器状态
type State int32

const (
	Idle State = iota
	ScheduledPending
	Scanning
	TornDown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ScheduledPending:
		return "scheduled"
	case Scanning:
		return "scanning"
	case TornDown:
		return "torn-down"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Dispatcher 请求管线
type Dispatcher interface {
	Dispatch(ep *epoch.Epoch, segs []extract.Segment) *pipeline.Flight
}

// Pass 一轮扫描的结果
type Pass struct {
	Epoch     uint64 // 未派发时为 0
	Extracted int
	Admitted  int
	Sampled   []extract.Segment
	Flight    *pipeline.Flight // 未派发时为 nil
}

// Config 调度器依赖
type Config struct {
	Document   *dom.Document
	Extractor  *extract.Extractor
	Ledger     *ledger.Ledger
	Sampler    *sampler.Sampler
	Dispatcher Dispatcher
	Epochs     *epoch.Source
	Debounce   time.Duration
	// OnPass 每轮扫描派发后在调度 goroutine 中同步调用，不应阻塞
	OnPass func(Pass)
	Logger *zap.Logger
}

// Scheduler 扫描调度器
type Scheduler struct {
	doc        *dom.Document
	extractor  *extract.Extractor
	ledger     *ledger.Ledger
	sampler    *sampler.Sampler
	dispatcher Dispatcher
	epochs     *epoch.Source
	debounce   time.Duration
	onPass     func(Pass)
	logger     *zap.Logger

	state  atomic.Int32
	scanMu sync.Mutex
}

// New 创建调度器
func New(cfg Config) (*Scheduler, error) {
	switch {
	case cfg.Document == nil:
		return nil, errors.New("scheduler: document is required")
	case cfg.Extractor == nil:
		return nil, errors.New("scheduler: extractor is required")
	case cfg.Dispatcher == nil:
		return nil, errors.New("scheduler: dispatcher is required")
	}
	if cfg.Ledger == nil {
		cfg.Ledger = ledger.New()
	}
	if cfg.Sampler == nil {
		cfg.Sampler = sampler.New(sampler.DefaultFraction)
	}
	if cfg.Epochs == nil {
		cfg.Epochs = epoch.NewSource(context.Background())
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	return &Scheduler{
		doc:        cfg.Document,
		extractor:  cfg.Extractor,
		ledger:     cfg.Ledger,
		sampler:    cfg.Sampler,
		dispatcher: cfg.Dispatcher,
		epochs:     cfg.Epochs,
		debounce:   cfg.Debounce,
		onPass:     cfg.OnPass,
		logger:     logger.OrNop(cfg.Logger),
	}, nil
}

// State 当前状态
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(st State) {
	old := State(s.state.Swap(int32(st)))
	if old != st {
		s.logger.Debug("scheduler state changed", zap.Stringer("from", old), zap.Stringer("to", st))
	}
}

// Run 处理结构变化和卸载信号，直到 ctx 取消
//
// 只有去抖窗口内的最后一次变化会触发扫描。卸载信号立即撤销当前令牌；
// 卸载后的再次变化视为页面恢复，下一轮扫描会分配新的令牌。
func (s *Scheduler) Run(ctx context.Context) error {
	changes, unsubscribe := s.doc.Subscribe()
	defer unsubscribe()

	timer := time.NewTimer(s.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	var fire <-chan time.Time

	s.logger.Debug("scheduler started", zap.Duration("debounce", s.debounce))
	for {
		select {
		case <-ctx.Done():
			s.epochs.Revoke()
			s.logger.Debug("scheduler stopped")
			return nil

		case _, ok := <-changes:
			if !ok {
				return nil
			}
			if s.State() == TornDown {
				s.logger.Info("document revived after teardown")
			}
			s.setState(ScheduledPending)
			timer.Reset(s.debounce)
			fire = timer.C

		case <-fire:
			fire = nil
			s.ScanNow()

		case <-s.doc.TornDown():
			s.epochs.Revoke()
			if !s.doc.IsTornDown() {
				// 卸载信号到达前宿主已经恢复了页面，待定的扫描照常进行
				s.logger.Debug("teardown superseded by later mutation")
				continue
			}
			timer.Stop()
			fire = nil
			s.setState(TornDown)
			s.logger.Info("document torn down, in-flight requests cancelled")
		}
	}
}

// ScanNow 立即执行一轮扫描，派发后即返回，不等待在途请求
func (s *Scheduler) ScanNow() Pass {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	s.setState(Scanning)
	metrics.ScanPasses.Inc()

	var segs []extract.Segment
	err := s.doc.Update(func(root *html.Node) error {
		segs = s.extractor.Extract(root)
		return nil
	})
	if err != nil {
		s.logger.Debug("scan skipped", zap.Error(err))
		if errors.Is(err, dom.ErrTornDown) {
			s.setState(TornDown)
		} else {
			s.setState(Idle)
		}
		return Pass{}
	}

	admitted := s.ledger.Admit(segs)
	sampled := s.sampler.Sample(admitted)
	metrics.SegmentsExtracted.Add(float64(len(segs)))
	metrics.SegmentsAdmitted.Add(float64(len(admitted)))

	pass := Pass{
		Extracted: len(segs),
		Admitted:  len(admitted),
		Sampled:   sampled,
	}
	if len(sampled) > 0 {
		ep, fresh := s.epochs.Ensure()
		if fresh && ep.Gen() > 1 {
			s.logger.Debug("allocated fresh epoch", zap.Uint64("epoch", ep.Gen()))
		}
		pass.Epoch = ep.Gen()
		pass.Flight = s.dispatcher.Dispatch(ep, sampled)
	}

	s.logger.Info("scan pass",
		zap.Int("extracted", pass.Extracted),
		zap.Int("new", pass.Admitted),
		zap.Int("dispatched", len(pass.Sampled)),
		zap.Int("ledger", s.ledger.Len()))

	s.setState(Idle)
	if s.onPass != nil {
		s.onPass(pass)
	}
	return pass
}
