// Package client 调用远端翻译服务的 /translate 和 /mark_easy 接口
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nerdneilsfield/translens/internal/logger"
)

// Result 翻译结果
type Result struct {
	TargetWord  string `json:"target_word"`
	Translation string `json:"translation"`
	FromCache   bool   `json:"from_cache"`
}

// MarkEasyResult 标记“太简单”的结果
type MarkEasyResult struct {
	Status       string `json:"status,omitempty"`
	Word         string `json:"word"`
	NewLevel     int    `json:"new_level,omitempty"`
	SuppressDays int    `json:"suppress_days"`
}

// TranslateRequest /translate 请求体
type TranslateRequest struct {
	Sentence string `json:"sentence"`
}

// MarkEasyRequest /mark_easy 请求体
type MarkEasyRequest struct {
	Word string `json:"word"`
}

// ErrEmptyResponse 服务返回 2xx 但响应体为空
var ErrEmptyResponse = errors.New("service returned an empty response")

// StatusError 服务返回了非 2xx 状态
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Endpoint, e.Code)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Endpoint, e.Code, e.Body)
}

// Config 客户端配置
type Config struct {
	BaseURL string
	Timeout time.Duration
	Headers map[string]string
}

// Client 翻译服务客户端
type Client struct {
	baseURL    string
	headers    map[string]string
	httpClient *http.Client
	logger     *zap.Logger
}

// New 创建客户端
func New(cfg Config, log *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		headers:    cfg.Headers,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.OrNop(log),
	}
}

// Translate 请求翻译句子中的一个词
//
// 服务返回 404 或 204 表示句中没有可翻译的词（例如候选词都被标记为太简单），
// 此时返回 (nil, nil)。ctx 取消会中止请求并返回 ctx 的错误。
func (c *Client) Translate(ctx context.Context, sentence string) (*Result, error) {
	var res Result
	_, ok, err := c.post(ctx, "/translate", TranslateRequest{Sentence: sentence}, &res)
	if err != nil || !ok {
		return nil, err
	}
	if res.TargetWord == "" || res.Translation == "" {
		return nil, nil
	}
	return &res, nil
}

// MarkEasy 通知服务端在一段时间内不再翻译 word
func (c *Client) MarkEasy(ctx context.Context, word string) (*MarkEasyResult, error) {
	var res MarkEasyResult
	status, ok, err := c.post(ctx, "/mark_easy", MarkEasyRequest{Word: word}, &res)
	if err != nil {
		return nil, err
	}
	if !ok {
		if status == http.StatusNotFound {
			return nil, &StatusError{Endpoint: "/mark_easy", Code: status}
		}
		return nil, fmt.Errorf("/mark_easy status %d: %w", status, ErrEmptyResponse)
	}
	return &res, nil
}

// post 发送 JSON 请求，返回服务的状态码；false 表示服务给出了“没有内容”类响应
func (c *Client) post(ctx context.Context, endpoint string, payload, out interface{}) (int, bool, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, false, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// 取消时直接返回 ctx 的错误，便于调用方用 errors.Is 区分
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, false, ctxErr
		}
		return 0, false, fmt.Errorf("%s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return resp.StatusCode, false, ctxErr
		}
		return resp.StatusCode, false, fmt.Errorf("failed to read %s response: %w", endpoint, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent:
		c.logger.Debug("service returned no content",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode))
		return resp.StatusCode, false, nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return resp.StatusCode, false, &StatusError{
			Endpoint: endpoint,
			Code:     resp.StatusCode,
			Body:     strings.TrimSpace(string(respBody)),
		}
	}

	if len(bytes.TrimSpace(respBody)) == 0 {
		return resp.StatusCode, false, nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return resp.StatusCode, false, fmt.Errorf("failed to decode %s response: %w", endpoint, err)
	}
	return resp.StatusCode, true, nil
}
