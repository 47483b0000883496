package service

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/translens/internal/client"
	"github.com/nerdneilsfield/translens/internal/metrics"
)

// NewRouter 注册所有路由
func NewRouter(s *Service) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.logger))
	r.Use(cors())

	r.POST("/translate", s.handleTranslate)
	r.POST("/mark_easy", s.handleMarkEasy)
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	return r
}

// Serve 在 addr 上运行服务，ctx 取消后优雅关闭
func Serve(ctx context.Context, addr string, s *Service) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(s),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("translation service listening", zap.String("address", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("shutting down translation service")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Service) handleTranslate(c *gin.Context) {
	var req client.TranslateRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Sentence) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "JSON中必须包含 'sentence' 字段"})
		return
	}

	ctx := c.Request.Context()
	res, err := s.Translate(ctx, req.Sentence)
	switch {
	case errors.Is(err, ErrNoCandidate), errors.Is(err, ErrAllSuppressed):
		s.logger.Debug("no eligible word", zap.String("sentence", req.Sentence), zap.Error(err))
		c.JSON(http.StatusNotFound, gin.H{"detail": err.Error()})
	case err != nil && ctx.Err() != nil:
		// 客户端已断开，不再写响应
		s.logger.Debug("client disconnected", zap.String("sentence", req.Sentence))
		c.Abort()
	case err != nil:
		s.logger.Warn("translate failed", zap.String("sentence", req.Sentence), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"detail": "处理翻译请求时发生错误: " + err.Error()})
	default:
		c.JSON(http.StatusOK, res)
	}
}

func (s *Service) handleMarkEasy(c *gin.Context) {
	var req client.MarkEasyRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Word) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "JSON中必须包含 'word' 字段"})
		return
	}

	res, err := s.MarkEasy(c.Request.Context(), req.Word)
	if err != nil {
		s.logger.Warn("mark easy failed", zap.String("word", req.Word), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "服务器内部错误: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

// cors 允许任意来源，浏览器扩展从页面所在的源跨域调用
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		origin := c.GetHeader("Origin")
		if origin == "" {
			origin = "*"
		}
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Credentials", "true")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if reqHeaders := c.GetHeader("Access-Control-Request-Headers"); reqHeaders != "" {
			h.Set("Access-Control-Allow-Headers", reqHeaders)
		} else {
			h.Set("Access-Control-Allow-Headers", "*")
		}
		h.Add("Vary", "Origin")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.ServiceRequests.WithLabelValues(path, strconv.Itoa(status)).Inc()
		log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)))
	}
}
