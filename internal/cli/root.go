package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nerdneilsfield/translens/internal/config"
	"github.com/nerdneilsfield/translens/internal/logger"
)

// rootOptions 所有子命令共享的标志
type rootOptions struct {
	cfgFile     string
	debugMode   bool
	verboseMode bool
	serviceURL  string
	fraction    float64
	debounce    time.Duration
}

// NewRootCommand 创建根命令
func NewRootCommand(version, commit, buildDate string) *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "translens",
		Short: "translens 在中文网页里随机挑选生词并就地标注英文释义",
		Long: `translens 扫描 HTML 文档中可见的中文文本，按比例随机抽取句子发送到翻译服务，
由服务挑选句中的一个名词或动词并返回译文，再把译文以注释的形式插入到原词之后。

点击注释上的 “×” 可以把词标记为太简单，服务端会按遗忘曲线在一段时间内不再选它。

子命令:
  annotate  对静态文档执行一轮扫描并输出标注结果
  watch     监视文档变化，持续扫描并刷新输出
  easy      把词标记为太简单
  serve     运行翻译服务
  config    显示当前生效的配置`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, commit, buildDate),
		SilenceUsage:  true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.cfgFile, "config", "c", "", "配置文件路径 (默认 $HOME/.translens.yaml)")
	flags.BoolVarP(&opts.debugMode, "debug", "d", false, "启用调试日志")
	flags.BoolVarP(&opts.verboseMode, "verbose", "v", false, "使用彩色控制台日志")
	flags.StringVar(&opts.serviceURL, "service-url", "", "翻译服务地址")
	flags.Float64Var(&opts.fraction, "fraction", 0, "每轮扫描的抽样比例 (0, 1]")
	flags.DurationVar(&opts.debounce, "debounce", 0, "结构变化防抖延迟")

	rootCmd.AddCommand(newAnnotateCommand(opts))
	rootCmd.AddCommand(newWatchCommand(opts))
	rootCmd.AddCommand(newEasyCommand(opts))
	rootCmd.AddCommand(newServeCommand(opts))
	rootCmd.AddCommand(newConfigCommand(opts))

	return rootCmd
}

// load 加载配置并用命令行标志覆盖，返回配置和日志记录器
func (o *rootOptions) load(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig(o.cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("加载配置失败: %w", err)
	}
	o.applyFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	log := logger.NewLoggerWithVerbose(cfg.Debug, cfg.Verbose)
	return cfg, log, nil
}

// applyFlags 只覆盖用户显式设置过的标志
func (o *rootOptions) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("debug") {
		cfg.Debug = o.debugMode
	}
	if flags.Changed("verbose") {
		cfg.Verbose = o.verboseMode
	}
	if flags.Changed("service-url") {
		cfg.ServiceURL = o.serviceURL
	}
	if flags.Changed("fraction") {
		cfg.SampleFraction = o.fraction
	}
	if flags.Changed("debounce") {
		cfg.DebounceMs = int(o.debounce / time.Millisecond)
	}
}
