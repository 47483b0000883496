package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nerdneilsfield/translens/internal/annotate"
	"github.com/nerdneilsfield/translens/internal/client"
	"github.com/nerdneilsfield/translens/internal/config"
	"github.com/nerdneilsfield/translens/internal/dom"
	"github.com/nerdneilsfield/translens/internal/epoch"
	"github.com/nerdneilsfield/translens/internal/extract"
	"github.com/nerdneilsfield/translens/internal/ledger"
	"github.com/nerdneilsfield/translens/internal/pipeline"
	"github.com/nerdneilsfield/translens/internal/sampler"
	"github.com/nerdneilsfield/translens/internal/scheduler"
	"github.com/nerdneilsfield/translens/internal/visibility"
)

// engine 把核心组件按配置装配到一个文档上
type engine struct {
	doc       *dom.Document
	client    *client.Client
	epochs    *epoch.Source
	scheduler *scheduler.Scheduler
}

func newEngine(ctx context.Context, cfg *config.Config, doc *dom.Document, onPass func(scheduler.Pass), log *zap.Logger) (*engine, error) {
	extractor, err := extract.New(extract.Options{
		TargetScripts: cfg.TargetScripts,
		MinLength:     cfg.MinTextLength,
		SkipElements:  cfg.SkipElements,
	}, visibility.New(visibility.InlineStyles{}), log.Named("extract"))
	if err != nil {
		return nil, fmt.Errorf("创建提取器失败: %w", err)
	}

	c := client.New(client.Config{
		BaseURL: cfg.ServiceURL,
		Timeout: cfg.Timeout(),
	}, log.Named("client"))

	epochs := epoch.NewSource(ctx)
	pl := pipeline.New(c, annotate.New(doc, log.Named("annotate")), log.Named("pipeline"))

	sched, err := scheduler.New(scheduler.Config{
		Document:   doc,
		Extractor:  extractor,
		Ledger:     ledger.New(),
		Sampler:    sampler.New(cfg.SampleFraction),
		Dispatcher: pl,
		Epochs:     epochs,
		Debounce:   cfg.Debounce(),
		OnPass:     onPass,
		Logger:     log.Named("scheduler"),
	})
	if err != nil {
		return nil, err
	}

	return &engine{
		doc:       doc,
		client:    c,
		epochs:    epochs,
		scheduler: sched,
	}, nil
}
