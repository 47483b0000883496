package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Glossary 固定译文表，命中的词不再调用大模型
//
// 文件格式:
//
//	[translations]
//	"机器学习" = "machine learning"
//	"深度学习" = "deep learning"
type Glossary struct {
	Translations map[string]string `toml:"translations"`
}

// LoadGlossary 从 TOML 文件加载固定译文表
func LoadGlossary(path string) (*Glossary, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read glossary file: %w", err)
	}

	g := &Glossary{}
	if err := toml.Unmarshal(content, g); err != nil {
		return nil, fmt.Errorf("failed to unmarshal glossary: %w", err)
	}

	cleaned := make(map[string]string, len(g.Translations))
	for word, translation := range g.Translations {
		word, translation = strings.TrimSpace(word), strings.TrimSpace(translation)
		if word == "" || translation == "" {
			return nil, fmt.Errorf("glossary entry %q has an empty word or translation", word)
		}
		cleaned[word] = translation
	}
	g.Translations = cleaned
	return g, nil
}

// Lookup 返回 word 的固定译文；g 为 nil 时总是未命中
func (g *Glossary) Lookup(word string) (string, bool) {
	if g == nil {
		return "", false
	}
	t, ok := g.Translations[word]
	return t, ok
}

// Len 词条数
func (g *Glossary) Len() int {
	if g == nil {
		return 0
	}
	return len(g.Translations)
}
