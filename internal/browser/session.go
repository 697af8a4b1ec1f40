package browser

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"

	"github.com/RecoveryAshes/qianli/internal/models"
	"github.com/RecoveryAshes/qianli/internal/utils"
)

// Session 协议会话
// 职责: 持有到已运行浏览器调试端点的唯一控制连接,管理标签页的获取与释放
// 命令与响应的关联由底层CDP客户端按命令ID匹配,不依赖到达顺序,
// 因此一个标签页的慢响应不会被错配到另一个标签页的命令上
type Session struct {
	browser *rod.Browser
	monitor *ResourceMonitor

	// 取消它即断开控制连接; 浏览器进程归用户所有,本程序从不发送Browser.close
	cancel context.CancelFunc

	// 并发标签页配额
	slots chan struct{}

	mu     sync.Mutex
	tabs   map[*Tab]struct{}
	closed bool
}

// Connect 连接到已运行浏览器的调试端点(host:port)
// 端点不可达时返回connection种类的失败; 不负责浏览器进程的启动与退出
func Connect(ctx context.Context, endpoint string, monitor *ResourceMonitor) (*Session, error) {
	// 先用HTTP探测/json/version,给出可操作的启动错误
	if err := Probe(endpoint, 2*time.Second); err != nil {
		return nil, models.NewSourceError("", models.KindConnection,
			fmt.Errorf("CDP浏览器未运行或端点不可达(%s): %w", endpoint, err))
	}

	wsURL, err := launcher.ResolveURL(endpoint)
	if err != nil {
		return nil, models.NewSourceError("", models.KindConnection,
			fmt.Errorf("解析调试端点失败(%s): %w", endpoint, err))
	}

	sessCtx, cancel := context.WithCancel(ctx)
	b := rod.New().ControlURL(wsURL).Context(sessCtx)
	if err := b.Connect(); err != nil {
		cancel()
		return nil, models.NewSourceError("", models.KindConnection,
			fmt.Errorf("连接浏览器失败: %w", err))
	}

	maxTabs := monitor.MaxTabs()
	utils.Debugf("已连接浏览器: %s, 并发标签页上限: %d", wsURL, maxTabs)

	return &Session{
		browser: b,
		monitor: monitor,
		cancel:  cancel,
		slots:   make(chan struct{}, maxTabs),
		tabs:    make(map[*Tab]struct{}),
	}, nil
}

// Probe 探测调试端点的/json/version是否可达
func Probe(endpoint string, timeout time.Duration) error {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(fmt.Sprintf("http://%s/json/version", endpoint))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("调试端点返回HTTP %d", resp.StatusCode)
	}
	return nil
}

// OpenTab 打开一个新标签页
// 标签页是作用域资源: 调用方必须在所有退出路径上调用Tab.Close归还
func (s *Session) OpenTab(ctx context.Context) (*Tab, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, models.NewSourceError("", models.KindConnection, fmt.Errorf("协议会话已关闭"))
	}
	s.mu.Unlock()

	// 占用一个并发配额,配额满时阻塞等待
	select {
	case s.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, models.NewSourceError("", models.KindTimeout,
			fmt.Errorf("等待标签页配额超时: %w", ctx.Err()))
	}

	page, err := s.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		<-s.slots
		return nil, models.NewSourceError("", models.KindConnection,
			fmt.Errorf("创建标签页失败(浏览器可能已断开): %w", err))
	}

	tab := &Tab{
		ID:      uuid.New().String()[:8],
		page:    page,
		session: s,
	}

	s.mu.Lock()
	s.tabs[tab] = struct{}{}
	s.mu.Unlock()

	utils.Debugf("打开标签页 [%s], 当前标签页数: %d", tab.ID, len(s.slots))
	return tab, nil
}

// release 归还标签页,关闭失败仅记录日志,配额必定释放
func (s *Session) release(t *Tab) {
	s.mu.Lock()
	if _, ok := s.tabs[t]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.tabs, t)
	s.mu.Unlock()

	if err := t.page.Close(); err != nil {
		utils.Warnf("关闭标签页失败 [%s]: %v", t.ID, err)
	}
	<-s.slots
	utils.Debugf("关闭标签页 [%s]", t.ID)
}

// Close 关闭协议会话: 先释放本程序打开的标签页,再断开控制连接
// 浏览器是用户已经开着的进程,这里只撤走附着的连接,绝不发送Browser.close
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	remaining := make([]*Tab, 0, len(s.tabs))
	for t := range s.tabs {
		remaining = append(remaining, t)
	}
	s.tabs = make(map[*Tab]struct{})
	s.mu.Unlock()

	for _, t := range remaining {
		if err := t.page.Close(); err != nil {
			utils.Warnf("关闭残留标签页失败 [%s]: %v", t.ID, err)
		}
	}

	s.cancel()
	utils.Debug("协议会话已断开,浏览器保持运行")
	return nil
}

// Version 返回浏览器版本信息,用于启动时的连通性自检
func (s *Session) Version() (string, error) {
	v, err := proto.BrowserGetVersion{}.Call(s.browser)
	if err != nil {
		return "", models.NewSourceError("", models.KindConnection,
			fmt.Errorf("获取浏览器版本失败: %w", err))
	}
	return v.Product, nil
}
