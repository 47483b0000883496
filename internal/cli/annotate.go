package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/translens/internal/dom"
)

// newAnnotateCommand 创建 annotate 命令
func newAnnotateCommand(opts *rootOptions) *cobra.Command {
	var (
		outputPath string
		quiet      bool
	)

	cmd := &cobra.Command{
		Use:   "annotate <input.html>",
		Short: "对静态文档执行一轮扫描并输出标注结果",
		Long: `读取 HTML 文档，执行一轮 提取 → 去重 → 抽样 → 翻译 → 标注，等待所有请求结束后输出结果。

Examples:
  # 结果写到标准输出
  translens annotate page.html

  # 结果写到文件，并在终端显示标注表
  translens annotate page.html -o page.annotated.html`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = log.Sync()
			}()

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("打开输入文件失败: %w", err)
			}
			doc, err := dom.Parse(f, dom.WithLogger(log.Named("dom")))
			f.Close()
			if err != nil {
				return err
			}

			eng, err := newEngine(cmd.Context(), cfg, doc, nil, log)
			if err != nil {
				return err
			}

			pass := eng.scheduler.ScanNow()
			if pass.Flight == nil {
				log.Info("没有可翻译的文本", zap.Int("extracted", pass.Extracted))
			} else {
				outcomes := pass.Flight.Wait()
				if !quiet {
					printOutcomes(cmd.ErrOrStderr(), outcomes)
				}
			}

			if err := writeDocument(outputPath, doc); err != nil {
				return fmt.Errorf("写入输出失败: %w", err)
			}
			if outputPath != "" && outputPath != "-" && !quiet {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s\n", color.GreenString("✓"), outputPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "-", "输出文件 (- 表示标准输出)")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "不显示标注表")
	return cmd
}
