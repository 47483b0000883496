// Package sampler 从一批候选中随机抽取子集
package sampler

import (
	"math"
	"math/rand/v2"
	"sync"

	"github.com/nerdneilsfield/translens/internal/extract"
)

// DefaultFraction 默认抽样比例
const DefaultFraction = 0.4

// Size 返回 n 个候选按比例 p 抽样后的数量：n ≥ 1 时为 max(1, floor(n·p))，否则为 0
func Size(n int, p float64) int {
	if n <= 0 {
		return 0
	}
	k := int(math.Floor(float64(n) * p))
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	return k
}

// Pick 用 Fisher–Yates 洗牌的前 k 步选出 k 个元素，不修改输入
func Pick[T any](r *rand.Rand, items []T, k int) []T {
	if k <= 0 || len(items) == 0 {
		return nil
	}
	if k > len(items) {
		k = len(items)
	}
	pool := make([]T, len(items))
	copy(pool, items)
	for i := 0; i < k; i++ {
		j := i + r.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k]
}

// Sampler 片段抽样器
type Sampler struct {
	fraction float64

	mu  sync.Mutex
	rnd *rand.Rand
}

// New 创建抽样器，fraction 不在 (0, 1] 内时使用默认值
func New(fraction float64) *Sampler {
	return NewWithRand(fraction, rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
}

// NewWithRand 使用指定随机源创建抽样器
func NewWithRand(fraction float64, r *rand.Rand) *Sampler {
	if fraction <= 0 || fraction > 1 {
		fraction = DefaultFraction
	}
	return &Sampler{fraction: fraction, rnd: r}
}

// Fraction 抽样比例
func (s *Sampler) Fraction() float64 {
	return s.fraction
}

// Sample 均匀随机地选出 Size(len(segs), fraction) 个片段
func (s *Sampler) Sample(segs []extract.Segment) []extract.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Pick(s.rnd, segs, Size(len(segs), s.fraction))
}
