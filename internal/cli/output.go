package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-runewidth"

	"github.com/nerdneilsfield/translens/internal/dom"
	"github.com/nerdneilsfield/translens/internal/marker"
	"github.com/nerdneilsfield/translens/internal/metrics"
	"github.com/nerdneilsfield/translens/internal/pipeline"
)

// sentenceWidth 表格里句子列的显示宽度
const sentenceWidth = 36

// writeDocument 先写临时文件再改名，避免 watch 模式下读到半个文件
func writeDocument(path string, doc *dom.Document) error {
	if path == "" || path == "-" {
		return doc.Render(os.Stdout)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".translens-*.html")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := doc.Render(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("渲染文档失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// printOutcomes 打印一轮请求的结果表
func printOutcomes(w io.Writer, outcomes []pipeline.Outcome) {
	sort.SliceStable(outcomes, func(i, j int) bool {
		return outcomes[i].Kind < outcomes[j].Kind
	})

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"结果", "句子", "词", "译文"})

	counts := make(map[string]int)
	for _, o := range outcomes {
		counts[o.Kind]++
		var word, translation string
		if o.Result != nil {
			word, translation = o.Result.TargetWord, o.Result.Translation
			if o.Result.FromCache {
				translation += " (cache)"
			}
		}
		tw.AppendRow(table.Row{
			kindLabel(o.Kind),
			runewidth.Truncate(o.Segment.PureText, sentenceWidth, "…"),
			word,
			translation,
		})
	}
	tw.AppendFooter(table.Row{"合计", len(outcomes), fmt.Sprintf("已标注 %d", counts[metrics.OutcomeAnnotated]), ""})
	tw.SetStyle(table.StyleLight)
	tw.Render()
}

// printUnits 打印文档中的注释单元
func printUnits(w io.Writer, units []marker.Unit) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"ID", "词", "译文"})
	for _, u := range units {
		tw.AppendRow(table.Row{u.ID, u.Word, runewidth.Truncate(u.Translation, sentenceWidth, "…")})
	}
	tw.SetStyle(table.StyleLight)
	tw.Render()
}

func kindLabel(kind string) string {
	switch kind {
	case metrics.OutcomeAnnotated:
		return color.GreenString(kind)
	case metrics.OutcomeFailed, metrics.OutcomeStale:
		return color.RedString(kind)
	case metrics.OutcomeCancelled:
		return color.YellowString(kind)
	default:
		return kind
	}
}
