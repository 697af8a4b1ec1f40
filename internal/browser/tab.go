package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/ysmood/gson"

	"github.com/RecoveryAshes/qianli/internal/models"
	"github.com/RecoveryAshes/qianli/internal/utils"
)

// 就绪轮询的退避参数: 间隔从500ms起倍增,封顶2秒,不做忙轮询
const (
	pollInitialInterval = 500 * time.Millisecond
	pollMaxInterval     = 2 * time.Second
)

// Tab 标签页控制器
// 包装单个标签页的命令面: 导航、页面上下文求值、就绪等待、文本读取
// 每个操作都尊重调用方超时; 超时后标签页仍可被干净地关闭
type Tab struct {
	ID      string
	page    *rod.Page
	session *Session
}

// Close 归还标签页,任何退出路径都必须调用
func (t *Tab) Close() {
	t.session.release(t)
}

// Navigate 导航到URL并等待加载完成
func (t *Tab) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	p := t.page.Context(navCtx)
	err := p.Navigate(url)
	if err == nil {
		err = p.WaitLoad()
	}
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return models.NewSourceError("", models.KindTimeout,
			fmt.Errorf("导航超时 [%s] %s: %w", t.ID, url, err))
	}
	return models.NewSourceError("", models.KindNavigation,
		fmt.Errorf("导航失败 [%s] %s: %w", t.ID, url, err))
}

// WaitReady 反复求值就绪条件直到其为真或超时
// initial为SPA渲染前的首次静默等待,total为整体超时预算
func (t *Tab) WaitReady(ctx context.Context, predicateJS string, initial, total time.Duration) error {
	deadline := time.Now().Add(total)

	// SPA内容在首次渲染前轮询毫无意义,先静默等待
	if initial > 0 {
		select {
		case <-time.After(initial):
		case <-ctx.Done():
			return models.NewSourceError("", models.KindTimeout,
				fmt.Errorf("就绪等待被取消 [%s]: %w", t.ID, ctx.Err()))
		}
	}

	interval := pollInitialInterval
	for {
		ready, err := t.evalBool(ctx, predicateJS)
		if err == nil && ready {
			return nil
		}
		if err != nil {
			utils.Debugf("就绪条件求值失败 [%s]: %v", t.ID, err)
		}

		if time.Now().After(deadline) {
			return models.NewSourceError("", models.KindTimeout,
				fmt.Errorf("就绪条件在%.0f秒内未满足 [%s]", total.Seconds(), t.ID))
		}

		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return models.NewSourceError("", models.KindTimeout,
				fmt.Errorf("就绪等待被取消 [%s]: %w", t.ID, ctx.Err()))
		}
		interval *= 2
		if interval > pollMaxInterval {
			interval = pollMaxInterval
		}
	}
}

// Eval 在页面上下文中执行只读表达式并返回其值
// js必须是函数形式,如 () => document.title
func (t *Tab) Eval(ctx context.Context, js string, timeout time.Duration, args ...interface{}) (gson.JSON, error) {
	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	obj, err := t.page.Context(evalCtx).Eval(js, args...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return gson.New(nil), models.NewSourceError("", models.KindTimeout,
				fmt.Errorf("脚本执行超时 [%s]: %w", t.ID, err))
		}
		return gson.New(nil), models.NewSourceError("", models.KindEvaluation,
			fmt.Errorf("脚本执行失败 [%s]: %w", t.ID, err))
	}
	return obj.Value, nil
}

// Text 返回选择器下的可见文本,节点不存在返回空串(此层不视为错误)
func (t *Tab) Text(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	v, err := t.Eval(ctx, `(sel) => {
		const el = document.querySelector(sel);
		return el ? (el.innerText || '') : '';
	}`, timeout, selector)
	if err != nil {
		return "", err
	}
	return v.Str(), nil
}

// Cookies 读取指定URL作用域下的Cookie,仅用于观察登录信号,绝不写入
func (t *Tab) Cookies(urls []string) ([]*proto.NetworkCookie, error) {
	cookies, err := t.page.Cookies(urls)
	if err != nil {
		return nil, models.NewSourceError("", models.KindEvaluation,
			fmt.Errorf("读取Cookie失败 [%s]: %w", t.ID, err))
	}
	return cookies, nil
}

// URL 返回标签页当前地址,用于检测反爬跳转
func (t *Tab) URL(ctx context.Context, timeout time.Duration) (string, error) {
	v, err := t.Eval(ctx, `() => location.href`, timeout)
	if err != nil {
		return "", err
	}
	return v.Str(), nil
}

// evalBool 求值布尔条件
func (t *Tab) evalBool(ctx context.Context, js string) (bool, error) {
	v, err := t.Eval(ctx, js, 5*time.Second)
	if err != nil {
		return false, err
	}
	return v.Bool(), nil
}
