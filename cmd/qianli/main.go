package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/RecoveryAshes/qianli/internal/browser"
	"github.com/RecoveryAshes/qianli/internal/core"
	"github.com/RecoveryAshes/qianli/internal/models"
	"github.com/RecoveryAshes/qianli/internal/sources"
	"github.com/RecoveryAshes/qianli/internal/utils"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// 命令行参数
var (
	// 全局参数
	configFile  string
	logLevel    string
	cdpEndpoint string

	// 搜索参数
	limit         int
	jsonOut       bool
	sourceTimeout int

	appConfig *core.Config
)

var rootCmd = &cobra.Command{
	Use:   "qianli",
	Short: "通过CDP浏览器搜索中文内容平台",
	Long: `qianli(千里) - 通过已运行的CDP浏览器搜索中文内容平台

不调用任何站点API,而是远程控制一个已经开着调试端口的浏览器,
驱动各站点的导航/等待/提取序列,把结果统一成一种格式输出。

支持的来源:
  • wechat  微信公众号(经搜狗微信搜索)
  • 36kr    36氪(慢SPA,等待预算较长)
  • xhs     小红书(需要该浏览器配置文件中已有登录态)

前提: 浏览器已带调试端口运行,例如:
  chrome --remote-debugging-port=9222 --user-data-dir=~/.qianli-chrome

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}

		// 命令行参数覆盖配置文件
		if cdpEndpoint != "" {
			host, portStr, err := net.SplitHostPort(cdpEndpoint)
			if err != nil {
				return fmt.Errorf("--cdp参数格式应为host:port: %w", err)
			}
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return fmt.Errorf("--cdp端口无效: %w", err)
			}
			config.CDP.Host = host
			config.CDP.Port = port
		}
		if sourceTimeout > 0 {
			config.Search.SourceTimeout = sourceTimeout
		}
		if err := config.Validate(); err != nil {
			return err
		}

		logConfig := utils.LogConfig{
			Level:      config.Logging.Level,
			LogDir:     config.Logging.LogDir,
			MaxSize:    config.Logging.Rotation.MaxSize,
			MaxBackups: config.Logging.Rotation.MaxBackups,
			MaxAge:     config.Logging.Rotation.MaxAge,
			Compress:   config.Logging.Rotation.Compress,
		}
		if logLevel != "" {
			logConfig.Level = logLevel
		}
		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		appConfig = config
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别(trace/debug/info/warn/error)")
	rootCmd.PersistentFlags().StringVar(&cdpEndpoint, "cdp", "", "浏览器调试端点(host:port),覆盖配置文件")

	// 单来源搜索子命令
	for _, src := range models.SourcePriority {
		src := src
		searchCmd := &cobra.Command{
			Use:   fmt.Sprintf("%s <关键词>", src),
			Short: fmt.Sprintf("在%s中搜索", src),
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runSearch(cmd.Context(), string(src), args[0])
			},
		}
		addSearchFlags(searchCmd)
		rootCmd.AddCommand(searchCmd)
	}

	// all子命令
	allCmd := &cobra.Command{
		Use:   "all <关键词>",
		Short: "并发搜索全部来源,容忍部分失败",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), "all", args[0])
		},
	}
	addSearchFlags(allCmd)
	rootCmd.AddCommand(allCmd)

	// read子命令
	readCmd := &cobra.Command{
		Use:   "read <URL>",
		Short: "读取任意URL的正文文本",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(cmd.Context(), args[0])
		},
	}
	rootCmd.AddCommand(readCmd)
}

func addSearchFlags(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "每个来源的结果数上限(0=使用配置默认)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "以JSON格式输出")
	cmd.Flags().IntVar(&sourceTimeout, "timeout", 0, "单个来源的整体超时(秒)")
}

// connect 建立协议会话,进程生命周期内唯一,退出时必须关闭
func connect(ctx context.Context) (*browser.Session, error) {
	monitor := browser.NewResourceMonitor(browser.ResourceMonitorConfig{
		MaxTabsLimit:   appConfig.Browser.MaxTabs,
		TabMemoryUsage: int64(appConfig.Browser.TabMemoryMB) * 1024 * 1024,
	})
	sess, err := browser.Connect(ctx, appConfig.CDP.Endpoint(), monitor)
	if err != nil {
		return nil, fmt.Errorf("%w\n提示: 请先以调试模式启动浏览器,例如 chrome --remote-debugging-port=%d",
			err, appConfig.CDP.Port)
	}
	if product, verr := sess.Version(); verr == nil {
		utils.Infof("浏览器版本: %s", product)
	}
	return sess, nil
}

// runSearch 执行一次搜索并渲染输出
func runSearch(ctx context.Context, selector, text string) error {
	srcs, err := models.ParseSelector(selector)
	if err != nil {
		return err
	}

	effectiveLimit := limit
	if effectiveLimit == 0 {
		if selector == "all" {
			effectiveLimit = appConfig.Search.AllLimit
		} else {
			effectiveLimit = appConfig.Search.DefaultLimit
		}
	}
	if err := ValidateSearchFlags(text, effectiveLimit, appConfig.Search.SourceTimeout); err != nil {
		return err
	}

	sess, err := connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			utils.Warnf("关闭协议会话失败: %v", cerr)
		}
	}()

	adapters, err := sources.ForSources(srcs, appConfig.Search.AdapterOptions())
	if err != nil {
		return err
	}

	agg := core.NewAggregator(sess, adapters,
		time.Duration(appConfig.Search.SourceTimeout)*time.Second)

	// 人类可读模式下用进度条提示各来源的完成情况
	var bar *progressbar.ProgressBar
	if !jsonOut && len(adapters) > 1 {
		bar = progressbar.NewOptions(len(adapters),
			progressbar.OptionSetDescription("搜索中"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionClearOnFinish(),
		)
		agg.OnOutcome(func(models.Source) {
			_ = bar.Add(1)
		})
	}

	resp, err := agg.Search(ctx, models.Query{Text: text, Limit: effectiveLimit, Sources: srcs})
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		if resp != nil {
			utils.RenderErrors(os.Stderr, resp)
		}
		return err
	}

	utils.RenderErrors(os.Stderr, resp)
	if jsonOut {
		return utils.RenderJSON(os.Stdout, resp.Results())
	}
	utils.RenderText(os.Stdout, resp.Results())
	return nil
}

// runRead 读取任意URL的正文
func runRead(ctx context.Context, rawURL string) error {
	sess, err := connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sess.Close(); cerr != nil {
			utils.Warnf("关闭协议会话失败: %v", cerr)
		}
	}()

	reader := core.NewReader(sess,
		time.Duration(appConfig.Reader.StabilizeWait)*time.Second,
		time.Duration(appConfig.Reader.MaxWait)*time.Second)

	text, err := reader.Read(ctx, rawURL)
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}

func main() {
	// Ctrl+C触发context取消,让所有在途标签页走正常的释放路径
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
