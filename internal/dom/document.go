package dom

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	// ErrTornDown 文档已收到页面卸载信号，核心不再允许写入
	ErrTornDown = errors.New("document torn down")
	// ErrDetached 元素已经不在文档树中
	ErrDetached = errors.New("element detached from document")
)

// Change 一次结构变化通知
type Change struct {
	Seq uint64
	At  time.Time
}

// Document 线程安全的活动文档
//
// 所有对节点树的读写都在 mu 下进行，所以对单个元素内容的重写相对其它访问是原子的。
// 宿主通过 Mutate 修改文档并产生结构变化通知；核心通过 Update 写入（标记、注释），
// 这类写入不会回流到变化通知里。
type Document struct {
	mu   sync.Mutex
	root *html.Node
	torn bool
	seq  uint64

	subsMu sync.Mutex
	subs   map[int]chan Change
	nextID int

	teardown chan struct{}
	logger   *zap.Logger
}

// Option 文档选项
type Option func(*Document)

// WithLogger 设置日志记录器
func WithLogger(logger *zap.Logger) Option {
	return func(d *Document) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New 用已有的节点树创建文档
func New(root *html.Node, opts ...Option) *Document {
	d := &Document{
		root:     root,
		subs:     make(map[int]chan Change),
		teardown: make(chan struct{}, 1),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Parse 解析 HTML 并创建文档
func Parse(r io.Reader, opts ...Option) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return New(root, opts...), nil
}

// ParseString 解析 HTML 字符串
func ParseString(s string, opts ...Option) (*Document, error) {
	return Parse(strings.NewReader(s), opts...)
}

// Subscribe 订阅结构变化，返回的函数用于取消订阅
func (d *Document) Subscribe() (<-chan Change, func()) {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()

	id := d.nextID
	d.nextID++
	ch := make(chan Change, 64)
	d.subs[id] = ch

	return ch, func() {
		d.subsMu.Lock()
		defer d.subsMu.Unlock()
		if _, ok := d.subs[id]; ok {
			delete(d.subs, id)
			close(ch)
		}
	}
}

// TornDown 页面卸载信号
func (d *Document) TornDown() <-chan struct{} {
	return d.teardown
}

// Teardown 发出页面卸载信号
func (d *Document) Teardown() {
	d.mu.Lock()
	d.torn = true
	d.mu.Unlock()

	select {
	case d.teardown <- struct{}{}:
	default:
	}
	d.logger.Debug("document torn down")
}

// IsTornDown 文档是否处于卸载状态
func (d *Document) IsTornDown() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.torn
}

// Mutate 宿主侧修改文档，并通知所有订阅者
// 卸载后的文档再次被修改视为页面恢复
func (d *Document) Mutate(fn func(root *html.Node)) {
	d.mu.Lock()
	if d.torn {
		d.logger.Debug("document revived by host mutation")
	}
	d.torn = false
	fn(d.root)
	d.seq++
	change := Change{Seq: d.seq, At: time.Now()}
	d.mu.Unlock()

	d.publish(change)
}

// Update 核心侧写入文档，卸载后返回 ErrTornDown
func (d *Document) Update(fn func(root *html.Node) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.torn {
		return ErrTornDown
	}
	return fn(d.root)
}

// View 在锁内只读访问文档
func (d *Document) View(fn func(root *html.Node)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fn(d.root)
}

// Render 序列化整个文档
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

// String 序列化整个文档为字符串
func (d *Document) String() string {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return ""
	}
	return buf.String()
}

// ReplaceBody 用另一棵树的 body 内容替换当前 body，模拟整页重新渲染
func (d *Document) ReplaceBody(src *html.Node) {
	d.Mutate(func(root *html.Node) {
		dst := FindElement(root, atom.Body)
		from := FindElement(src, atom.Body)
		if dst == nil || from == nil {
			return
		}
		for c := dst.FirstChild; c != nil; {
			next := c.NextSibling
			dst.RemoveChild(c)
			c = next
		}
		for c := from.FirstChild; c != nil; {
			next := c.NextSibling
			from.RemoveChild(c)
			dst.AppendChild(c)
			c = next
		}
	})
}

func (d *Document) publish(change Change) {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	for _, ch := range d.subs {
		select {
		case ch <- change:
		default:
			// 订阅者跟不上时丢弃，队列里已有的通知足以触发下一轮扫描
		}
	}
}
