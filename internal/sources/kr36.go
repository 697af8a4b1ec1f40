package sources

import (
	"context"
	"net/url"
	"time"

	"github.com/RecoveryAshes/qianli/internal/browser"
	"github.com/RecoveryAshes/qianli/internal/models"
	"github.com/RecoveryAshes/qianli/internal/utils"
)

// 36氪是单页应用,结果节点要等客户端脚本的XHR完成后才注入DOM
// 渲染慢,等待预算明显高于其他来源
const (
	kr36SearchBase = "https://36kr.com/search/articles/"
	kr36ResultBase = "https://36kr.com"
)

// kr36ReadyJS 结果列表就绪条件
const kr36ReadyJS = `() => document.querySelectorAll('.kr-flow-article-item').length > 0`

// kr36ExtractJS 结果列表提取脚本,返回JSON数组字符串
const kr36ExtractJS = `() => {
	const items = document.querySelectorAll('.kr-flow-article-item');
	const results = [];
	for (const item of items) {
		const linkEl = item.querySelector('a[href*="/p/"]');
		const titleEl = item.querySelector('.article-item-title');
		const descEl = item.querySelector('.article-item-description');
		const timeEl = item.querySelector('.kr-flow-bar-time');

		const href = (linkEl && linkEl.getAttribute('href') || '').trim();
		const title = (titleEl && titleEl.textContent || '').trim();
		const desc = (descEl && descEl.textContent || '').trim();
		const date = (timeEl && timeEl.textContent || '').trim();

		if (title && href) {
			results.push({
				title: title,
				url: href,
				snippet: desc,
				author: '36氪',
				date: date
			});
		}
	}
	return JSON.stringify(results);
}`

// Kr36 36氪搜索适配器
type Kr36 struct {
	opt  Options
	base *url.URL
}

// New36kr 创建36氪适配器
func New36kr(opt Options) *Kr36 {
	base, _ := url.Parse(kr36ResultBase)
	return &Kr36{
		// 慢SPA: 首次静默6秒,整体预算18秒
		opt:  opt.withDefaults(15*time.Second, 6*time.Second, 18*time.Second),
		base: base,
	}
}

// Source 实现Adapter接口
func (k *Kr36) Source() models.Source {
	return models.Source36kr
}

// Search 实现Adapter接口
func (k *Kr36) Search(ctx context.Context, sess *browser.Session, text string, limit int) ([]models.Result, error) {
	tab, err := sess.OpenTab(ctx)
	if err != nil {
		return nil, attribute(err, models.Source36kr)
	}
	defer tab.Close()

	searchURL := kr36SearchBase + url.PathEscape(text)
	utils.Debugf("[36kr] 搜索: %s", searchURL)

	payload, err := runExtraction(ctx, tab, models.Source36kr,
		searchURL, kr36ReadyJS, kr36ExtractJS, k.opt)
	if err != nil {
		return nil, err
	}

	return Normalize(models.Source36kr, payload, k.base, limit), nil
}
