package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ysmood/gson"

	"github.com/RecoveryAshes/qianli/internal/browser"
	"github.com/RecoveryAshes/qianli/internal/models"
	"github.com/RecoveryAshes/qianli/internal/utils"
)

// readerStableJS 内容稳定性探针: 返回当前正文文本长度
// 目标页面的结构未知,只能用"文本量不再增长"这种宽松启发式,
// 比来源适配器的就绪条件松得多
const readerStableJS = `() => (document.body && document.body.innerText || '').length`

// readerExtractJS 取最大连续可见文本区域作为尽力而为的正文
// 不做标题/日期/作者等字段解析,输出就是一段文本
// 候选区域覆盖正文主体时返回它,否则返回空串,由调用方退回整个body
const readerExtractJS = `() => {
	const candidates = document.querySelectorAll('article, main, [role="main"], #content, .content, .article, .post');
	let best = '';
	for (const el of candidates) {
		const text = el.innerText || '';
		if (text.length > best.length) best = text;
	}
	const bodyText = document.body ? (document.body.innerText || '') : '';
	if (best.length > bodyText.length / 2) return best;
	return '';
}`

// readerTab 读取器需要的标签页操作面
type readerTab interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	Eval(ctx context.Context, js string, timeout time.Duration, args ...interface{}) (gson.JSON, error)
	Text(ctx context.Context, selector string, timeout time.Duration) (string, error)
	Close()
}

// Reader 通用读取器
// 给定任意URL(不要求属于已知来源),导航后等内容稳定,提取尽力而为的正文文本
type Reader struct {
	sess *browser.Session
	open func(context.Context) (readerTab, error)

	// 导航后的初始静默等待
	stabilize time.Duration
	// 稳定等待的整体上限
	maxWait time.Duration
}

// NewReader 创建通用读取器
func NewReader(sess *browser.Session, stabilize, maxWait time.Duration) *Reader {
	if stabilize <= 0 {
		stabilize = 5 * time.Second
	}
	if maxWait <= 0 {
		maxWait = 15 * time.Second
	}
	r := &Reader{sess: sess, stabilize: stabilize, maxWait: maxWait}
	r.open = func(ctx context.Context) (readerTab, error) {
		tab, err := sess.OpenTab(ctx)
		if err != nil {
			return nil, err
		}
		return tab, nil
	}
	return r
}

// Read 读取URL的正文文本
// 页面没有可识别的正文区域时返回空文本而非错误; 主机不可达返回ReadError
func (r *Reader) Read(ctx context.Context, rawURL string) (string, error) {
	if err := models.ValidateURL(rawURL); err != nil {
		return "", &models.ReadError{Kind: models.KindRead, Err: err}
	}

	tab, err := r.open(ctx)
	if err != nil {
		return "", r.wrap(err)
	}
	defer tab.Close()

	if err := tab.Navigate(ctx, rawURL, r.maxWait); err != nil {
		return "", r.wrap(err)
	}

	r.waitStable(ctx, tab)

	text, err := tab.Eval(ctx, readerExtractJS, 10*time.Second)
	if err != nil {
		return "", r.wrap(err)
	}

	body := strings.TrimSpace(text.Str())
	if body == "" {
		// 没有覆盖正文主体的候选区域,退回整个body的可见文本
		whole, terr := tab.Text(ctx, "body", 10*time.Second)
		if terr != nil {
			return "", r.wrap(terr)
		}
		body = strings.TrimSpace(whole)
	}
	utils.Debugf("读取完成: %s, 正文%d字符", rawURL, len(body))
	return body, nil
}

// waitStable 等待正文文本量趋于稳定
// 先静默等待,再轮询文本长度,连续两次不变即认为稳定; 上限内未稳定也照样提取,
// 稳定性只是启发式,不构成失败
func (r *Reader) waitStable(ctx context.Context, tab readerTab) {
	deadline := time.Now().Add(r.maxWait)

	select {
	case <-time.After(r.stabilize):
	case <-ctx.Done():
		return
	}

	last := -1
	stable := 0
	for time.Now().Before(deadline) && stable < 2 {
		v, err := tab.Eval(ctx, readerStableJS, 5*time.Second)
		if err != nil {
			return
		}
		length := v.Int()
		if length == last {
			stable++
		} else {
			stable = 0
			last = length
		}

		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return
		}
	}
}

// wrap 把下层失败折叠为ReadError,保留原始种类
func (r *Reader) wrap(err error) error {
	var se *models.SourceError
	if errors.As(err, &se) {
		return &models.ReadError{Kind: se.Kind, Err: fmt.Errorf("读取页面失败: %w", err)}
	}
	return &models.ReadError{Kind: models.KindRead, Err: err}
}
