// Package metrics 定义 translens 的 Prometheus 指标并提供抓取接口
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// 请求结果标签
const (
	OutcomeAnnotated = "annotated"
	OutcomeNoop      = "noop"
	OutcomeSkipped   = "skipped"
	OutcomeCancelled = "cancelled"
	OutcomeStale     = "stale"
	OutcomeFailed    = "failed"
)

var (
	// ScanPasses 调度器执行的扫描轮数
	ScanPasses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "translens_scan_passes_total",
			Help: "Total number of scan passes run by the scheduler.",
		},
	)
	// SegmentsExtracted 通过提取器筛选的候选片段数
	SegmentsExtracted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "translens_segments_extracted_total",
			Help: "Total number of candidate segments accepted by the extractor.",
		},
	)
	// SegmentsAdmitted 首次进入去重账本的片段数
	SegmentsAdmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "translens_segments_admitted_total",
			Help: "Total number of segments that were new to the dedup ledger.",
		},
	)
	// Requests 翻译请求数，按结果分类
	Requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "translens_requests_total",
			Help: "Total number of translation requests, labeled by outcome.",
		},
		[]string{"outcome"},
	)
	// Suppressions “太简单”通知数，按成败分类
	Suppressions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "translens_suppressions_total",
			Help: "Total number of mark-easy notifications, labeled by result.",
		},
		[]string{"result"},
	)
	// ServiceRequests 翻译服务处理的请求数，按接口和状态码分类
	ServiceRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "translens_service_requests_total",
			Help: "Total number of requests handled by the translation service, labeled by endpoint and status code.",
		},
		[]string{"endpoint", "status"},
	)
	// ProviderDuration 上游大模型调用耗时
	ProviderDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "translens_provider_duration_seconds",
			Help:    "Duration of upstream LLM calls in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(ScanPasses)
	prometheus.MustRegister(SegmentsExtracted)
	prometheus.MustRegister(SegmentsAdmitted)
	prometheus.MustRegister(Requests)
	prometheus.MustRegister(Suppressions)
	prometheus.MustRegister(ServiceRequests)
	prometheus.MustRegister(ProviderDuration)
}

// Handler 返回 Prometheus 抓取接口
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve 在 addr 上暴露 /metrics，ctx 取消时关闭
func Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("exposing prometheus metrics", zap.String("address", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
