// Package ledger 记录已经发往翻译服务的纯文本
package ledger

import (
	"sync"

	"github.com/nerdneilsfield/translens/internal/extract"
)

// Ledger 去重账本
//
// 只增不删，生命周期与进程相同。内存随遇到的不同文本增长，
// 适用于页面级别的进程，不适合长期运行的服务端。
type Ledger struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// New 创建空账本
func New() *Ledger {
	return &Ledger{seen: make(map[string]struct{})}
}

// Contains 文本是否已登记
func (l *Ledger) Contains(pure string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.seen[pure]
	return ok
}

// Len 已登记的文本数
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.seen)
}

// Admit 把一轮提取结果分成“已见过”和“新的”，只返回新的片段
//
// 所有新片段的 PureText 会在抽样之前立即登记：未被抽中的片段下一轮也不会再被当作新的，
// 并发的另一轮扫描也不会再选中正在请求中的文本。同一批里重复的 PureText 只保留第一个。
func (l *Ledger) Admit(segs []extract.Segment) []extract.Segment {
	l.mu.Lock()
	defer l.mu.Unlock()

	fresh := make([]extract.Segment, 0, len(segs))
	for _, seg := range segs {
		if _, ok := l.seen[seg.PureText]; ok {
			continue
		}
		l.seen[seg.PureText] = struct{}{}
		fresh = append(fresh, seg)
	}
	return fresh
}
