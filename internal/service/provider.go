package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/nerdneilsfield/translens/internal/config"
	"github.com/nerdneilsfield/translens/internal/logger"
	"github.com/nerdneilsfield/translens/internal/metrics"
)

// NoKeyRequired 本地模型不需要 API key 时的占位值
const NoKeyRequired = "no-key-required"

var (
	// ErrTranslationTooLong 模型输出超过允许长度，通常是模型没有遵守指令
	ErrTranslationTooLong = errors.New("translation too long")
	// ErrEmptyTranslation 模型没有返回内容
	ErrEmptyTranslation = errors.New("empty translation")
)

// Provider 翻译句子中的指定词
type Provider interface {
	Translate(ctx context.Context, sentence, word string) (string, error)
}

// Prompt 发给模型的用户提示词
func Prompt(sentence, word string) string {
	return fmt.Sprintf("翻译下面句子中的「%s」：%s", word, sentence)
}

// headerRoundTripper 给每个请求附加自定义请求头
type headerRoundTripper struct {
	base    http.RoundTripper
	headers map[string]string
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(h.headers) == 0 {
		return h.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
	return h.base.RoundTrip(req)
}

// LLMProvider 通过 OpenAI 兼容接口调用大模型
//
// 相同 (sentence, word) 的并发调用合并为一次；连续失败后熔断，快速失败直到恢复。
type LLMProvider struct {
	name          string
	model         string
	systemPrompt  string
	useSystemRole bool
	maxLength     int
	timeout       time.Duration

	client  *openai.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	group   singleflight.Group
	logger  *zap.Logger
}

// NewLLMProvider 根据配置创建 provider
func NewLLMProvider(name string, cfg config.ProviderConfig, log *zap.Logger) (*LLMProvider, error) {
	log = logger.OrNop(log).With(zap.String("provider", name))
	if cfg.APIURL == "" {
		return nil, fmt.Errorf("provider %s: api_url is required", name)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("provider %s: invalid proxy %q: %w", name, cfg.Proxy, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	apiKey := cfg.APIKey
	if apiKey == NoKeyRequired {
		apiKey = ""
	}
	clientCfg := openai.DefaultConfig(apiKey)
	clientCfg.BaseURL = BaseURL(cfg.APIURL)
	clientCfg.HTTPClient = &http.Client{
		Timeout:   timeout,
		Transport: &headerRoundTripper{base: transport, headers: cfg.Headers},
	}

	p := &LLMProvider{
		name:          name,
		model:         cfg.Model,
		systemPrompt:  cfg.SystemPrompt,
		useSystemRole: cfg.UseSystemRole,
		maxLength:     cfg.MaxTranslationLength,
		timeout:       timeout,
		client:        openai.NewClientWithConfig(clientCfg),
		logger:        log,
	}
	if p.model == "" {
		p.model = "default"
	}

	if cfg.RateLimitCount > 0 {
		period := time.Duration(cfg.RateLimitPeriodSeconds) * time.Second
		if period <= 0 {
			period = time.Minute
		}
		p.limiter = rate.NewLimiter(rate.Every(period/time.Duration(cfg.RateLimitCount)), cfg.RateLimitCount)
		log.Info("rate limit enabled", zap.Int("count", cfg.RateLimitCount), zap.Duration("period", period))
	} else {
		log.Info("rate limit disabled")
	}

	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// 模型输出过长不算上游故障
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrTranslationTooLong)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed", zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	log.Debug("provider initialised",
		zap.String("baseURL", clientCfg.BaseURL),
		zap.String("model", p.model),
		zap.Bool("useSystemRole", p.useSystemRole),
		zap.Bool("hasKey", apiKey != ""))
	return p, nil
}

// BaseURL 把完整的 chat completions 地址还原为接口根地址
func BaseURL(apiURL string) string {
	u := strings.TrimRight(apiURL, "/")
	return strings.TrimSuffix(u, "/chat/completions")
}

// Messages 构造对话消息；不支持 system 角色的模型把系统提示词拼在用户消息前
func (p *LLMProvider) Messages(prompt string) []openai.ChatCompletionMessage {
	if p.useSystemRole {
		return []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: p.systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		}
	}
	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: p.systemPrompt + "\n\n---\n\n" + prompt},
	}
}

// Translate 实现 Provider
//
// 合并后的调用不随任何一个调用方取消，每个调用方只在自己的 ctx 结束时停止等待。
func (p *LLMProvider) Translate(ctx context.Context, sentence, word string) (string, error) {
	shared := context.WithoutCancel(ctx)
	ch := p.group.DoChan(CacheKey(sentence, word), func() (any, error) {
		callCtx, cancel := context.WithTimeout(shared, p.timeout)
		defer cancel()
		return p.call(callCtx, sentence, word)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (p *LLMProvider) call(ctx context.Context, sentence, word string) (string, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("rate limit: %w", err)
		}
	}

	out, err := p.breaker.Execute(func() (interface{}, error) {
		start := time.Now()
		defer func() { metrics.ProviderDuration.Observe(time.Since(start).Seconds()) }()

		resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    p.model,
			Messages: p.Messages(Prompt(sentence, word)),
		})
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", p.name, err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("provider %s: %w", p.name, ErrEmptyTranslation)
		}

		translation := strings.TrimSpace(resp.Choices[0].Message.Content)
		if translation == "" {
			return nil, fmt.Errorf("provider %s: %w", p.name, ErrEmptyTranslation)
		}
		if p.maxLength > 0 && utf8.RuneCountInString(translation) > p.maxLength {
			return nil, fmt.Errorf("%w: %s", ErrTranslationTooLong, translation)
		}
		return translation, nil
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}
