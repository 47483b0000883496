package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/translens/internal/config"
	"github.com/nerdneilsfield/translens/internal/service"
)

// newServeCommand 创建 serve 命令
func newServeCommand(opts *rootOptions) *cobra.Command {
	var (
		listen   string
		provider string
		database string
		glossary string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "运行翻译服务",
		Long: `运行 /translate 和 /mark_easy 接口。服务对句子分词，挑选一个未被标记为简单的名词或动词，
用配置的大模型翻译并缓存到 sqlite。

provider 的优先级: --provider > 环境变量 TRANSLENS_PROVIDER > 配置 server.provider`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.load(cmd)
			if err != nil {
				return err
			}
			defer func() {
				_ = log.Sync()
			}()

			if env := os.Getenv("TRANSLENS_PROVIDER"); env != "" {
				cfg.Server.Provider = env
			}
			if provider != "" {
				cfg.Server.Provider = provider
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}
			if database != "" {
				cfg.Server.Database = database
			}
			if glossary != "" {
				cfg.Server.Glossary = glossary
			}

			name, pc, err := cfg.ActiveProvider()
			if err != nil {
				return err
			}

			store, err := service.OpenStore(cfg.DatabasePath())
			if err != nil {
				return err
			}
			defer store.Close()
			log.Info("数据库已就绪", zap.String("path", cfg.DatabasePath()))

			seg, err := service.NewGSESegmenter()
			if err != nil {
				return err
			}
			llm, err := service.NewLLMProvider(name, pc, log.Named("provider"))
			if err != nil {
				return fmt.Errorf("初始化 provider 失败: %w", err)
			}

			if !cfg.Debug {
				gin.SetMode(gin.ReleaseMode)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			svc := service.New(store, seg, llm, log.Named("service"))
			if cfg.Server.Glossary != "" {
				g, err := config.LoadGlossary(cfg.Server.Glossary)
				if err != nil {
					return err
				}
				svc.SetGlossary(g)
				log.Info("固定译文表已加载", zap.String("path", cfg.Server.Glossary), zap.Int("entries", g.Len()))
			}
			return service.Serve(ctx, cfg.Server.Listen, svc)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "监听地址 (默认 server.listen)")
	cmd.Flags().StringVar(&provider, "provider", "", "使用的 provider 配置名")
	cmd.Flags().StringVar(&database, "database", "", "sqlite 数据库文件")
	cmd.Flags().StringVar(&glossary, "glossary", "", "固定译文表 (TOML)")
	return cmd
}
