package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"github.com/nerdneilsfield/translens/internal/dom"
	"github.com/nerdneilsfield/translens/internal/metrics"
	"github.com/nerdneilsfield/translens/internal/scheduler"
)

// newWatchCommand 创建 watch 命令
func newWatchCommand(opts *rootOptions) *cobra.Command {
	var (
		outputPath  string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "watch <input.html>",
		Short: "监视文档变化，持续扫描并刷新输出",
		Long: `把输入文件当作一个活动页面：文件每次变化都会整体替换页面内容，
调度器对变化去抖后扫描新出现的文本，每轮请求结束后重新写出输出文件。
收到 SIGINT/SIGTERM 时视为页面卸载，所有在途请求立即取消。

Examples:
  translens watch page.html -o page.annotated.html --metrics-addr :9090`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = log.Sync()
			}()

			input, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			if outputPath == "" {
				return fmt.Errorf("watch 模式需要 --output")
			}

			root, err := parseFile(input)
			if err != nil {
				return err
			}
			doc := dom.New(root, dom.WithLogger(log.Named("dom")))

			var writeMu sync.Mutex
			flush := func() {
				writeMu.Lock()
				defer writeMu.Unlock()
				if err := writeDocument(outputPath, doc); err != nil {
					log.Warn("写入输出失败", zap.Error(err))
				}
			}
			onPass := func(pass scheduler.Pass) {
				if pass.Flight == nil {
					flush()
					return
				}
				go func() {
					outcomes := pass.Flight.Wait()
					flush()
					printOutcomes(cmd.ErrOrStderr(), outcomes)
				}()
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			eng, err := newEngine(ctx, cfg, doc, onPass, log)
			if err != nil {
				return err
			}

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("创建文件监视器失败: %w", err)
			}
			defer watcher.Close()
			// 监视目录而不是文件，编辑器保存时常常是先写临时文件再改名
			if err := watcher.Add(filepath.Dir(input)); err != nil {
				return fmt.Errorf("监视目录失败: %w", err)
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return eng.scheduler.Run(gctx)
			})
			g.Go(func() error {
				return watchFile(gctx, watcher, input, doc, log)
			})
			if metricsAddr != "" {
				g.Go(func() error {
					return metrics.Serve(gctx, metricsAddr, log)
				})
			}
			g.Go(func() error {
				sigCh := make(chan os.Signal, 1)
				signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
				defer signal.Stop(sigCh)
				select {
				case sig := <-sigCh:
					log.Info("收到退出信号，卸载页面", zap.String("signal", sig.String()))
					doc.Teardown()
					cancel()
				case <-gctx.Done():
				}
				return nil
			})

			// 页面首次加载视为一次结构变化
			doc.Mutate(func(*html.Node) {})
			log.Info("开始监视", zap.String("input", input), zap.String("output", outputPath))

			err = g.Wait()
			flush()
			return err
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "输出文件")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Prometheus 指标监听地址，如 :9090")
	return cmd
}

// watchFile 输入文件变化时重新解析并替换页面内容
func watchFile(ctx context.Context, watcher *fsnotify.Watcher, input string, doc *dom.Document, log *zap.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != input || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			root, err := parseFile(input)
			if err != nil {
				log.Warn("重新解析输入失败", zap.Error(err))
				continue
			}
			log.Debug("输入文件已变化", zap.String("op", event.Op.String()))
			doc.ReplaceBody(root)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("文件监视出错", zap.Error(err))
		}
	}
}

func parseFile(path string) (*html.Node, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开输入文件失败: %w", err)
	}
	defer f.Close()
	root, err := html.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("解析 HTML 失败: %w", err)
	}
	return root, nil
}
