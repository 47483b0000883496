// Package marker 定义写入文档的标记：已处理标记和注释单元的 markup
package marker

import (
	"fmt"
	"html"
	"regexp"
)

const (
	// ProcessedAttr 已处理元素上的幂等标记
	ProcessedAttr = "data-translens-processed"
	// AnnotationClass 注释单元的 class
	AnnotationClass = "translens-annotation"
	// EasyClass 注释单元内“太简单”按钮的 class
	EasyClass = "translens-easy"
	// IDAttr 注释单元的唯一标识
	IDAttr = "data-translens-id"
	// WordAttr 注释单元绑定的原词
	WordAttr = "data-word"
	// TranslationAttr 注释单元绑定的译文
	TranslationAttr = "data-translation"
	// EasyAttr 按钮指向所属注释单元的 id
	EasyAttr = "data-translens-easy"

	// OpenMarker 序列化后注释单元的开头，紧跟在被注释词之后
	OpenMarker = `<span class="` + AnnotationClass + `"`

	// EasyGlyph 按钮上的文字
	EasyGlyph = "×"
)

// stripPattern 匹配注释单元渲染出的纯文本形式 “[译文]×”
var stripPattern = regexp.MustCompile(`\[[^\[\]]*\]` + EasyGlyph + `?`)

// Strip 去掉文本中嵌入的注释文字
func Strip(text string) string {
	return stripPattern.ReplaceAllString(text, "")
}

// Unit 一个注释单元
type Unit struct {
	ID          string
	Word        string
	Translation string
}

// HTML 渲染注释单元
func (u Unit) HTML() string {
	id := html.EscapeString(u.ID)
	return fmt.Sprintf(`%s %s="%s" %s="%s" %s="%s">[%s]<button type="button" class="%s" %s="%s" title="太简单，不再翻译">%s</button></span>`,
		OpenMarker,
		IDAttr, id,
		WordAttr, html.EscapeString(u.Word),
		TranslationAttr, html.EscapeString(u.Translation),
		html.EscapeString(u.Translation),
		EasyClass, EasyAttr, id,
		EasyGlyph,
	)
}
