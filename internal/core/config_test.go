package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/RecoveryAshes/qianli/internal/models"
)

func TestLoadConfig_Defaults(t *testing.T) {
	// 无配置文件时全部使用默认值
	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig error = %v", err)
	}

	if config.CDP.Endpoint() != "127.0.0.1:9222" {
		t.Errorf("默认端点 = %q, 期望 127.0.0.1:9222", config.CDP.Endpoint())
	}
	if config.Search.DefaultLimit != 5 {
		t.Errorf("default_limit = %d, 期望 5", config.Search.DefaultLimit)
	}
	if config.Search.AllLimit != 3 {
		t.Errorf("all_limit = %d, 期望 3", config.Search.AllLimit)
	}
	if config.Browser.MaxTabs != 4 {
		t.Errorf("max_tabs = %d, 期望 4", config.Browser.MaxTabs)
	}
	if config.Logging.Level != "info" {
		t.Errorf("logging.level = %q, 期望 info", config.Logging.Level)
	}
}

func TestLoadConfig_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
cdp:
  host: 10.0.0.8
  port: 9333
search:
  default_limit: 8
  "36kr":
    initial_wait: 9
    max_wait: 30
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("写配置文件失败: %v", err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error = %v", err)
	}

	if config.CDP.Endpoint() != "10.0.0.8:9333" {
		t.Errorf("端点 = %q, 期望 10.0.0.8:9333", config.CDP.Endpoint())
	}
	if config.Search.DefaultLimit != 8 {
		t.Errorf("default_limit = %d, 期望 8", config.Search.DefaultLimit)
	}

	// 未显式配置的项仍是默认值
	if config.Search.AllLimit != 3 {
		t.Errorf("all_limit = %d, 期望默认 3", config.Search.AllLimit)
	}

	opts := config.Search.AdapterOptions()
	kr := opts[models.Source36kr]
	if kr.InitialWait != 9*time.Second || kr.MaxWait != 30*time.Second {
		t.Errorf("36kr等待预算 = %+v, 配置未生效", kr)
	}
	// 未配置的来源保持零值,由适配器自行兜底
	if opts[models.SourceWechat].MaxWait != 0 {
		t.Errorf("wechat.MaxWait = %v, 期望零值", opts[models.SourceWechat].MaxWait)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		config, _ := LoadConfig("")
		return config
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"host为空", func(c *Config) { c.CDP.Host = "" }},
		{"端口越界", func(c *Config) { c.CDP.Port = 70000 }},
		{"default_limit为零", func(c *Config) { c.Search.DefaultLimit = 0 }},
		{"all_limit过大", func(c *Config) { c.Search.AllLimit = 101 }},
		{"source_timeout过短", func(c *Config) { c.Search.SourceTimeout = 1 }},
		{"max_tabs为零", func(c *Config) { c.Browser.MaxTabs = 0 }},
		{"max_tabs过大", func(c *Config) { c.Browser.MaxTabs = 64 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid()
			tt.mutate(config)
			if err := config.Validate(); err == nil {
				t.Error("期望校验失败")
			}
		})
	}
}
