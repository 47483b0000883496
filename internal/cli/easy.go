package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/net/html"

	"github.com/nerdneilsfield/translens/internal/client"
	"github.com/nerdneilsfield/translens/internal/dom"
	"github.com/nerdneilsfield/translens/internal/suppress"
)

// newEasyCommand 创建 easy 命令
func newEasyCommand(opts *rootOptions) *cobra.Command {
	var (
		filePath   string
		unitID     string
		outputPath string
		list       bool
	)

	cmd := &cobra.Command{
		Use:   "easy [word]",
		Short: "把词标记为太简单",
		Long: `把词标记为太简单，服务端在 等级² 天内不再选它。

直接给出词时只通知服务端；用 --file 和 --id 时相当于在页面上点击注释的 “×”：
先从文档中移除该注释，再通知服务端，通知失败不会恢复注释。

Examples:
  translens easy 世界
  translens easy --file page.annotated.html --list
  translens easy --file page.annotated.html --id 3f1c... -o page.annotated.html`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = log.Sync()
			}()

			c := client.New(client.Config{BaseURL: cfg.ServiceURL, Timeout: cfg.Timeout()}, log.Named("client"))
			out := cmd.OutOrStdout()

			if filePath == "" {
				if len(args) != 1 {
					return fmt.Errorf("需要一个词，或者使用 --file 和 --id")
				}
				res, err := c.MarkEasy(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("标记失败: %w", err)
				}
				fmt.Fprintf(out, "%s %s 等级 %d，%s 天内不再翻译\n",
					color.GreenString("✓"), res.Word, res.NewLevel, color.CyanString("%d", res.SuppressDays))
				return nil
			}

			f, err := os.Open(filePath)
			if err != nil {
				return fmt.Errorf("打开文件失败: %w", err)
			}
			doc, err := dom.Parse(f)
			f.Close()
			if err != nil {
				return err
			}

			if list {
				doc.View(func(root *html.Node) {
					printUnits(out, suppress.Units(root))
				})
				return nil
			}
			if unitID == "" {
				return fmt.Errorf("需要 --id 或 --list")
			}

			interaction := suppress.New(doc, c, cfg.Timeout(), log.Named("suppress"))
			word, err := interaction.Confirm(cmd.Context(), unitID)
			if err != nil {
				return err
			}
			interaction.Wait()

			if outputPath == "" {
				outputPath = filePath
			}
			if err := writeDocument(outputPath, doc); err != nil {
				return err
			}
			fmt.Fprintf(out, "%s 已移除 %s 的注释\n", color.GreenString("✓"), word)
			return nil
		},
	}

	cmd.Flags().StringVarP(&filePath, "file", "f", "", "已标注的 HTML 文档")
	cmd.Flags().StringVar(&unitID, "id", "", "要移除的注释 ID")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "输出文件 (默认覆盖 --file)")
	cmd.Flags().BoolVarP(&list, "list", "l", false, "列出文档中的注释")
	return cmd
}
