package sources

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/RecoveryAshes/qianli/internal/browser"
	"github.com/RecoveryAshes/qianli/internal/models"
	"github.com/RecoveryAshes/qianli/internal/utils"
)

// 搜狗微信搜索: 微信公众号没有公开的未登录搜索入口,走搜狗代理站
// 结果在导航后不久就出现在服务端渲染的HTML里,短等待即可
const (
	wechatSearchBase = "https://weixin.sogou.com/weixin?type=2&query="
	wechatResultBase = "https://weixin.sogou.com"

	// 搜狗风控页的路径特征
	wechatAntispiderMark = "antispider"
)

// wechatReadyJS 结果列表就绪条件
const wechatReadyJS = `() => document.querySelectorAll('#main .txt-box').length > 0`

// wechatExtractJS 结果列表提取脚本,返回JSON数组字符串
// 日期从span.s2文本中按YYYY-M-D抽取,抽不到保留空串
const wechatExtractJS = `() => {
	const items = document.querySelectorAll('#main .txt-box');
	const results = [];
	for (const item of items) {
		const li = item.closest('li');
		const titleEl = item.querySelector('h3 a');
		const snippetEl = item.querySelector('p.txt-info, p');
		const accountEl = li ? li.querySelector('span.all-time-y2') : null;
		const dateEl = li ? li.querySelector('span.s2') : null;

		const title = (titleEl && titleEl.textContent || '').trim();
		const href = (titleEl && titleEl.getAttribute('href') || '').trim();
		const snippet = (snippetEl && snippetEl.textContent || '').trim();
		const account = (accountEl && accountEl.textContent || '').trim();
		const dateText = (dateEl && dateEl.textContent || '').trim();
		const dateMatch = dateText.match(/(\d{4}-\d{1,2}-\d{1,2})/);

		if (title && href) {
			results.push({
				title: title,
				url: href,
				snippet: snippet,
				author: account,
				date: dateMatch ? dateMatch[1] : ''
			});
		}
	}
	return JSON.stringify(results);
}`

// Wechat 微信公众号搜索适配器(搜狗代理)
type Wechat struct {
	opt  Options
	base *url.URL
}

// NewWechat 创建微信适配器
func NewWechat(opt Options) *Wechat {
	base, _ := url.Parse(wechatResultBase)
	return &Wechat{
		opt:  opt.withDefaults(10*time.Second, 4*time.Second, 12*time.Second),
		base: base,
	}
}

// Source 实现Adapter接口
func (w *Wechat) Source() models.Source {
	return models.SourceWechat
}

// Search 实现Adapter接口
func (w *Wechat) Search(ctx context.Context, sess *browser.Session, text string, limit int) ([]models.Result, error) {
	tab, err := sess.OpenTab(ctx)
	if err != nil {
		return nil, attribute(err, models.SourceWechat)
	}
	defer tab.Close()

	searchURL := wechatSearchBase + url.QueryEscape(text)
	utils.Debugf("[wechat] 搜索: %s", searchURL)

	payload, err := runExtraction(ctx, tab, models.SourceWechat,
		searchURL, wechatReadyJS, wechatExtractJS, w.opt)
	if err != nil {
		// 就绪超时可能其实是被搜狗风控拦截,跳转地址会暴露这一点
		var se *models.SourceError
		if errors.As(err, &se) && se.Kind == models.KindTimeout {
			if blocked, berr := w.blockedByAntispider(ctx, tab); berr == nil && blocked {
				return nil, models.NewSourceError(models.SourceWechat, models.KindBlocked,
					fmt.Errorf("命中搜狗反爬验证页"))
			}
		}
		return nil, err
	}

	return Normalize(models.SourceWechat, payload, w.base, limit), nil
}

// blockedByAntispider 检测当前标签页是否被重定向到搜狗风控验证页
func (w *Wechat) blockedByAntispider(ctx context.Context, tab *browser.Tab) (bool, error) {
	current, err := tab.URL(ctx, 3*time.Second)
	if err != nil {
		return false, err
	}
	return strings.Contains(current, wechatAntispiderMark), nil
}
