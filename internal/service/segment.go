package service

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-ego/gse"
)

// Segmenter 从句子中找出可翻译的候选词
type Segmenter interface {
	Candidates(sentence string) []string
}

// GSESegmenter 基于 gse 分词和词性标注，名词和动词作为候选
type GSESegmenter struct {
	mu  sync.Mutex
	seg gse.Segmenter
}

// NewGSESegmenter 加载内置中文词典
func NewGSESegmenter() (*GSESegmenter, error) {
	seg, err := gse.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load segmenter dictionary: %w", err)
	}
	return &GSESegmenter{seg: seg}, nil
}

// Candidates 去重后的名词、动词，保持首次出现的顺序
func (g *GSESegmenter) Candidates(sentence string) []string {
	g.mu.Lock()
	tagged := g.seg.Pos(sentence, false)
	g.mu.Unlock()

	seen := make(map[string]bool, len(tagged))
	var words []string
	for _, t := range tagged {
		word := strings.TrimSpace(t.Text)
		if word == "" || seen[word] || !IsCandidatePOS(t.Pos) {
			continue
		}
		seen[word] = true
		words = append(words, word)
	}
	return words
}

// IsCandidatePOS 词性以 n 或 v 开头
func IsCandidatePOS(pos string) bool {
	return strings.HasPrefix(pos, "n") || strings.HasPrefix(pos, "v")
}
