package core

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/RecoveryAshes/qianli/internal/models"
	"github.com/RecoveryAshes/qianli/internal/sources"
)

// Config 应用程序配置
type Config struct {
	CDP     CDPConfig     `mapstructure:"cdp"`
	Search  SearchConfig  `mapstructure:"search"`
	Browser BrowserConfig `mapstructure:"browser"`
	Reader  ReaderConfig  `mapstructure:"reader"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// CDPConfig 浏览器调试端点配置
// 浏览器进程的启动与退出不归本程序管,只负责连接已开启的调试端口
type CDPConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Endpoint 返回host:port形式的端点地址
func (c CDPConfig) Endpoint() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// SearchConfig 搜索配置
type SearchConfig struct {
	// 单来源搜索的默认结果数上限
	DefaultLimit int `mapstructure:"default_limit"`
	// all模式下每个来源的默认结果数上限
	AllLimit int `mapstructure:"all_limit"`
	// 单个来源一次调用的整体超时(秒)
	SourceTimeout int `mapstructure:"source_timeout"`
	// 各来源的等待预算(秒),零值使用适配器内置默认
	Wechat SourceWaitConfig `mapstructure:"wechat"`
	Kr36   SourceWaitConfig `mapstructure:"36kr"`
	XHS    SourceWaitConfig `mapstructure:"xhs"`
}

// SourceWaitConfig 单个来源的等待预算(秒)
type SourceWaitConfig struct {
	NavTimeout  int `mapstructure:"nav_timeout"`
	InitialWait int `mapstructure:"initial_wait"`
	MaxWait     int `mapstructure:"max_wait"`
}

func (c SourceWaitConfig) options() sources.Options {
	return sources.Options{
		NavTimeout:  time.Duration(c.NavTimeout) * time.Second,
		InitialWait: time.Duration(c.InitialWait) * time.Second,
		MaxWait:     time.Duration(c.MaxWait) * time.Second,
	}
}

// AdapterOptions 组装传给适配器层的等待预算
func (c SearchConfig) AdapterOptions() map[models.Source]sources.Options {
	return map[models.Source]sources.Options{
		models.SourceWechat: c.Wechat.options(),
		models.Source36kr:   c.Kr36.options(),
		models.SourceXHS:    c.XHS.options(),
	}
}

// BrowserConfig 浏览器资源配置
type BrowserConfig struct {
	// 并发标签页绝对上限
	MaxTabs int `mapstructure:"max_tabs"`
	// 单个标签页的内存预估(MB),用于按可用内存收紧上限
	TabMemoryMB int `mapstructure:"tab_memory_mb"`
}

// ReaderConfig 通用读取配置
type ReaderConfig struct {
	// 导航后的初始静默等待(秒)
	StabilizeWait int `mapstructure:"stabilize_wait"`
	// 内容稳定等待的整体上限(秒)
	MaxWait int `mapstructure:"max_wait"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// LoadConfig 加载配置文件
// configPath为空时按默认位置搜索,找不到配置文件就使用默认值
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".qianli"))
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate 校验配置取值范围
func (c *Config) Validate() error {
	if c.CDP.Host == "" {
		return fmt.Errorf("cdp.host不能为空")
	}
	if c.CDP.Port < 1 || c.CDP.Port > 65535 {
		return fmt.Errorf("cdp.port必须在1-65535之间,当前值: %d", c.CDP.Port)
	}
	if c.Search.DefaultLimit < 1 || c.Search.DefaultLimit > 100 {
		return fmt.Errorf("search.default_limit必须在1-100之间,当前值: %d", c.Search.DefaultLimit)
	}
	if c.Search.AllLimit < 1 || c.Search.AllLimit > 100 {
		return fmt.Errorf("search.all_limit必须在1-100之间,当前值: %d", c.Search.AllLimit)
	}
	if c.Search.SourceTimeout < 5 || c.Search.SourceTimeout > 300 {
		return fmt.Errorf("search.source_timeout必须在5-300秒之间,当前值: %d", c.Search.SourceTimeout)
	}
	if c.Browser.MaxTabs < 1 || c.Browser.MaxTabs > 16 {
		return fmt.Errorf("browser.max_tabs必须在1-16之间,当前值: %d", c.Browser.MaxTabs)
	}
	return nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	// CDP端点
	v.SetDefault("cdp.host", "127.0.0.1")
	v.SetDefault("cdp.port", 9222)

	// 搜索
	v.SetDefault("search.default_limit", 5)
	v.SetDefault("search.all_limit", 3)
	v.SetDefault("search.source_timeout", 60)

	// 浏览器资源
	v.SetDefault("browser.max_tabs", 4)
	v.SetDefault("browser.tab_memory_mb", 100)

	// 通用读取
	v.SetDefault("reader.stabilize_wait", 5)
	v.SetDefault("reader.max_wait", 15)

	// 日志
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)
}
