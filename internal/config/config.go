package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ProviderConfig 保存翻译服务端调用的大模型接口配置
type ProviderConfig struct {
	APIURL                 string            `mapstructure:"api_url"`
	Model                  string            `mapstructure:"model"`
	APIKey                 string            `mapstructure:"api_key"`
	UseSystemRole          bool              `mapstructure:"use_system_role"`
	SystemPrompt           string            `mapstructure:"system_prompt"`
	Proxy                  string            `mapstructure:"proxy"`
	Headers                map[string]string `mapstructure:"headers"`                   // 附加请求头
	RateLimitCount         int               `mapstructure:"rate_limit_count"`          // 0 表示不限速
	RateLimitPeriodSeconds int               `mapstructure:"rate_limit_period_seconds"` // 限速窗口（秒）
	MaxTranslationLength   int               `mapstructure:"max_translation_length"`    // 译文最大字符数
	Timeout                int               `mapstructure:"timeout"`                   // 单次请求超时（秒）
}

// ServerConfig 保存伴随翻译服务的配置
type ServerConfig struct {
	Listen       string                    `mapstructure:"listen"`
	Database     string                    `mapstructure:"database"`
	Provider     string                    `mapstructure:"provider"`
	Glossary     string                    `mapstructure:"glossary"`      // 固定译文表 (TOML)，为空表示不使用
	SystemPrompt string                    `mapstructure:"system_prompt"` // 各 provider 未配置时的默认提示词
	Providers    map[string]ProviderConfig `mapstructure:"providers"`
}

// Config 保存 translens 的所有配置
type Config struct {
	ServiceURL     string       `mapstructure:"service_url"`     // 翻译服务地址
	SampleFraction float64      `mapstructure:"sample_fraction"` // 每轮扫描的抽样比例
	DebounceMs     int          `mapstructure:"debounce_ms"`     // 结构变化防抖延迟（毫秒）
	RequestTimeout int          `mapstructure:"request_timeout"` // 请求超时时间（秒）
	TargetScripts  []string     `mapstructure:"target_scripts"`  // 目标文字的 Unicode script 名称
	MinTextLength  int          `mapstructure:"min_text_length"` // 候选文本最小字符数
	SkipElements   []string     `mapstructure:"skip_elements"`   // 非内容元素
	Debug          bool         `mapstructure:"debug"`
	Verbose        bool         `mapstructure:"verbose"` // 彩色控制台日志
	Server         ServerConfig `mapstructure:"server"`
}

// DefaultSystemPrompt 服务端默认系统提示词
const DefaultSystemPrompt = "你是一个中英翻译助手。只输出被指定词语在句中语境下的英文译文，不要输出任何解释或标点。"

// DefaultSkipElements 默认跳过的非内容元素
func DefaultSkipElements() []string {
	return []string{"script", "style", "noscript", "template", "textarea", "iframe", "svg", "math"}
}

// LoadConfig 从文件加载配置
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	// 设置默认值
	setDefaults(v)

	// 如果配置路径已指定，则直接使用
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// 查找家目录中的配置文件
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}

		v.AddConfigPath(home)
		v.AddConfigPath(".")
		v.SetConfigName(".translens")
		v.SetConfigType("yaml")
	}

	// 读取环境变量，例如 TRANSLENS_SERVICE_URL
	v.SetEnvPrefix("TRANSLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// 如果找不到配置文件，则使用默认值
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// provider 名称里可能带点号（如 qwen2.5），单独按 key 解析
	providersRaw := v.GetStringMap("server.providers")
	if len(providersRaw) > 0 {
		config.Server.Providers = make(map[string]ProviderConfig)
		for name := range providersRaw {
			pc := defaultProvider()
			subKey := fmt.Sprintf("server.providers.%s", name)
			if err := v.UnmarshalKey(subKey, &pc); err != nil {
				return nil, fmt.Errorf("配置错误: 无法解析 provider '%s': %w", name, err)
			}
			config.Server.Providers[name] = expandProvider(pc)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// NewDefaultConfig 创建一个新的默认配置
func NewDefaultConfig() *Config {
	return &Config{
		ServiceURL:     "http://127.0.0.1:8000",
		SampleFraction: 0.4,
		DebounceMs:     1000,
		RequestTimeout: 30,
		TargetScripts:  []string{"Han"},
		MinTextLength:  2,
		SkipElements:   DefaultSkipElements(),
		Server: ServerConfig{
			Listen:       ":8000",
			Database:     "translens_data.db",
			Provider:     "local_llama",
			SystemPrompt: DefaultSystemPrompt,
			Providers: map[string]ProviderConfig{
				"local_llama": {
					APIURL:                 "http://127.0.0.1:8080/v1",
					Model:                  "default",
					APIKey:                 "no-key-required",
					UseSystemRole:          true,
					RateLimitPeriodSeconds: 60,
					MaxTranslationLength:   30,
					Timeout:                30,
				},
			},
		},
	}
}

// Validate 检查配置取值是否合法
func (c *Config) Validate() error {
	if c.SampleFraction <= 0 || c.SampleFraction > 1 {
		return fmt.Errorf("sample_fraction must be in (0, 1], got %v", c.SampleFraction)
	}
	if c.DebounceMs < 0 {
		return fmt.Errorf("debounce_ms must not be negative, got %d", c.DebounceMs)
	}
	if len(c.TargetScripts) == 0 {
		return fmt.Errorf("target_scripts must name at least one script")
	}
	if c.MinTextLength < 1 {
		return fmt.Errorf("min_text_length must be positive, got %d", c.MinTextLength)
	}
	return nil
}

// Debounce 返回防抖延迟
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// Timeout 返回单次请求超时
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// ActiveProvider 返回当前启用的 provider 配置
func (c *Config) ActiveProvider() (string, ProviderConfig, error) {
	name := c.Server.Provider
	pc, ok := c.Server.Providers[name]
	if !ok {
		return name, ProviderConfig{}, fmt.Errorf("配置错误: 未找到名为 '%s' 的 provider 配置", name)
	}
	if pc.SystemPrompt == "" {
		pc.SystemPrompt = c.Server.SystemPrompt
	}
	if pc.SystemPrompt == "" {
		pc.SystemPrompt = DefaultSystemPrompt
	}
	return name, pc, nil
}

// DatabasePath 返回服务端数据库文件的绝对路径
func (c *Config) DatabasePath() string {
	if c.Server.Database == "" || filepath.IsAbs(c.Server.Database) {
		return c.Server.Database
	}
	abs, err := filepath.Abs(c.Server.Database)
	if err != nil {
		return c.Server.Database
	}
	return abs
}

func defaultProvider() ProviderConfig {
	return ProviderConfig{
		UseSystemRole:          true,
		RateLimitPeriodSeconds: 60,
		MaxTranslationLength:   30,
		Timeout:                30,
	}
}

// expandProvider 展开配置值中的环境变量，例如 api_key: ${OPENAI_API_KEY}
func expandProvider(pc ProviderConfig) ProviderConfig {
	pc.APIURL = os.ExpandEnv(pc.APIURL)
	pc.Model = os.ExpandEnv(pc.Model)
	pc.APIKey = os.ExpandEnv(pc.APIKey)
	pc.SystemPrompt = os.ExpandEnv(pc.SystemPrompt)
	pc.Proxy = os.ExpandEnv(pc.Proxy)
	if len(pc.Headers) > 0 {
		headers := make(map[string]string, len(pc.Headers))
		for k, v := range pc.Headers {
			headers[k] = os.ExpandEnv(v)
		}
		pc.Headers = headers
	}
	return pc
}

func setDefaults(v *viper.Viper) {
	def := NewDefaultConfig()
	v.SetDefault("service_url", def.ServiceURL)
	v.SetDefault("sample_fraction", def.SampleFraction)
	v.SetDefault("debounce_ms", def.DebounceMs)
	v.SetDefault("request_timeout", def.RequestTimeout)
	v.SetDefault("target_scripts", def.TargetScripts)
	v.SetDefault("min_text_length", def.MinTextLength)
	v.SetDefault("skip_elements", def.SkipElements)
	v.SetDefault("debug", false)
	v.SetDefault("verbose", false)
	v.SetDefault("server.listen", def.Server.Listen)
	v.SetDefault("server.database", def.Server.Database)
	v.SetDefault("server.provider", def.Server.Provider)
	v.SetDefault("server.glossary", "")
	v.SetDefault("server.system_prompt", def.Server.SystemPrompt)
	v.SetDefault("server.providers.local_llama.api_url", def.Server.Providers["local_llama"].APIURL)
	v.SetDefault("server.providers.local_llama.model", def.Server.Providers["local_llama"].Model)
	v.SetDefault("server.providers.local_llama.api_key", def.Server.Providers["local_llama"].APIKey)
}
