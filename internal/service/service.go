// Package service 实现翻译服务端：挑选句中的生词、翻译并缓存，以及“太简单”的记忆曲线
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nerdneilsfield/translens/internal/client"
	"github.com/nerdneilsfield/translens/internal/config"
	"github.com/nerdneilsfield/translens/internal/logger"
)

var (
	// ErrNoCandidate 句子里没有名词或动词
	ErrNoCandidate = errors.New("句子中未找到可翻译的名词或动词")
	// ErrAllSuppressed 所有候选词都处在抑制期
	ErrAllSuppressed = errors.New("所有候选词均被标记为简单词")
)

// Service 翻译服务
type Service struct {
	store     *Store
	segmenter Segmenter
	provider  Provider
	glossary  *config.Glossary
	now       func() time.Time
	logger    *zap.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

// New 创建翻译服务
func New(store *Store, seg Segmenter, provider Provider, log *zap.Logger) *Service {
	return &Service{
		store:     store,
		segmenter: seg,
		provider:  provider,
		now:       time.Now,
		logger:    logger.OrNop(log),
		rnd:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// SetGlossary 设置固定译文表，命中的词直接使用表中译文
func (s *Service) SetGlossary(g *config.Glossary) {
	s.glossary = g
}

// Translate 从句子中挑一个未被抑制的词并翻译
func (s *Service) Translate(ctx context.Context, sentence string) (*client.Result, error) {
	sentence = strings.TrimSpace(sentence)
	candidates := s.segmenter.Candidates(sentence)
	if len(candidates) == 0 {
		return nil, ErrNoCandidate
	}

	suppressed, err := s.store.Suppressed(ctx, candidates, s.now())
	if err != nil {
		return nil, err
	}
	eligible := make([]string, 0, len(candidates))
	for _, w := range candidates {
		if !suppressed[w] {
			eligible = append(eligible, w)
		}
	}
	if len(suppressed) > 0 {
		s.logger.Debug("filtered easy words", zap.Int("suppressed", len(suppressed)), zap.Int("eligible", len(eligible)))
	}
	if len(eligible) == 0 {
		return nil, ErrAllSuppressed
	}

	freq, err := s.store.Frequencies(ctx, eligible)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	word := WeightedChoice(s.rnd, eligible, freq)
	s.mu.Unlock()

	n, err := s.store.IncrementFrequency(ctx, word)
	if err != nil {
		return nil, err
	}
	log := s.logger.With(zap.String("word", word), zap.Int("frequency", n))

	if fixed, ok := s.glossary.Lookup(word); ok {
		log.Debug("glossary hit", zap.String("translation", fixed))
		return &client.Result{TargetWord: word, Translation: fixed, FromCache: true}, nil
	}

	if cached, ok, err := s.store.CachedTranslation(ctx, sentence, word); err != nil {
		return nil, err
	} else if ok {
		log.Debug("cache hit", zap.String("translation", cached))
		return &client.Result{TargetWord: word, Translation: cached, FromCache: true}, nil
	}

	translation, err := s.provider.Translate(ctx, sentence, word)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveTranslation(ctx, sentence, word, translation, s.now()); err != nil {
		return nil, err
	}
	log.Info("translated", zap.String("translation", translation))
	return &client.Result{TargetWord: word, Translation: translation}, nil
}

// MarkEasy 标记词“太简单”，返回新的等级和抑制天数
func (s *Service) MarkEasy(ctx context.Context, word string) (*client.MarkEasyResult, error) {
	word = strings.TrimSpace(word)
	if word == "" {
		return nil, fmt.Errorf("word is required")
	}
	m, err := s.store.MarkEasy(ctx, word, s.now())
	if err != nil {
		return nil, err
	}
	s.logger.Info("word marked easy",
		zap.String("word", word),
		zap.Int("level", m.Level),
		zap.Int("days", m.SuppressDays))
	return &client.MarkEasyResult{
		Status:       "success",
		Word:         word,
		NewLevel:     m.Level,
		SuppressDays: m.SuppressDays,
	}, nil
}

// WeightedChoice 按 1/(frequency+1) 加权随机选择，选得越多的词越少再被选中
func WeightedChoice(r *rand.Rand, words []string, freq map[string]int) string {
	switch len(words) {
	case 0:
		return ""
	case 1:
		return words[0]
	}

	weights := make([]float64, len(words))
	total := 0.0
	for i, w := range words {
		weights[i] = 1.0 / float64(freq[w]+1)
		total += weights[i]
	}

	x := r.Float64() * total
	for i, w := range weights {
		if x < w {
			return words[i]
		}
		x -= w
	}
	return words[len(words)-1]
}
