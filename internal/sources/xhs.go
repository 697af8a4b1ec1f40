package sources

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"github.com/RecoveryAshes/qianli/internal/browser"
	"github.com/RecoveryAshes/qianli/internal/models"
	"github.com/RecoveryAshes/qianli/internal/utils"
)

// 小红书对自动化访问极其敏感,且搜索必须携带登录态
// 登录态只存在于浏览器的持久化配置文件中,本系统只观察登录信号,绝不写入凭据
const (
	xhsSearchBase = "https://www.xiaohongshu.com/search_result?type=51&keyword="
	xhsOrigin     = "https://www.xiaohongshu.com"

	// 登录会话Cookie名
	xhsSessionCookie = "web_session"
)

// xhsReadyJS 结果列表就绪条件
const xhsReadyJS = `() => document.querySelectorAll('section.note-item').length > 0`

// xhsLoginWallJS 登录墙检测: 未登录时搜索页会弹出登录容器
const xhsLoginWallJS = `() => {
	return document.querySelector('.login-container, .force-login-container, #login-container') !== null;
}`

// xhsChallengeJS 风控验证页检测
const xhsChallengeJS = `() => {
	const t = document.title || '';
	return t.indexOf('安全验证') !== -1 || t.indexOf('验证码') !== -1 ||
		document.querySelector('.captcha, #captcha, .red-captcha') !== null;
}`

// xhsExtractJS 结果列表提取脚本,返回JSON数组字符串
// 从href中抽取noteId拼出规范URL; 日期接受YYYY-MM-DD、MM-DD及相对时间(小时前/天前/昨天)
const xhsExtractJS = `() => {
	const items = document.querySelectorAll('section.note-item');
	const results = [];
	for (const item of items) {
		const titleEl = item.querySelector('.footer .title span');
		const authorEl = item.querySelector('.author .name');
		const linkEl = item.querySelector('a.cover');
		const likeEl = item.querySelector('.like-wrapper .count');
		const footerEl = item.querySelector('.footer');
		const footerText = footerEl ? (footerEl.innerText || '') : '';

		const title = (titleEl && titleEl.textContent || '').trim();
		const author = (authorEl && authorEl.textContent || '').trim();
		const href = (linkEl && linkEl.getAttribute('href') || '').trim();
		const likes = (likeEl && likeEl.textContent || '').trim();

		let date = '';
		const lines = footerText.split('\n').map(l => l.trim()).filter(Boolean);
		for (const line of lines) {
			if (/^\d{4}-\d{2}-\d{2}$/.test(line) || /^\d{2}-\d{2}$/.test(line) || /小时前|天前|昨天/.test(line)) {
				date = line;
				break;
			}
		}

		const idMatch = href.match(/\/(explore|search_result)\/([a-f0-9]+)/);
		const noteId = idMatch ? idMatch[2] : '';
		const canonicalUrl = noteId ? 'https://www.xiaohongshu.com/explore/' + noteId : '';

		if (title && canonicalUrl) {
			results.push({
				title: title,
				url: canonicalUrl,
				author: '@' + author,
				date: date,
				likes: likes
			});
		}
	}
	return JSON.stringify(results);
}`

// XHS 小红书搜索适配器(需要已登录的浏览器配置文件)
type XHS struct {
	opt  Options
	base *url.URL
}

// NewXHS 创建小红书适配器
func NewXHS(opt Options) *XHS {
	base, _ := url.Parse(xhsOrigin)
	return &XHS{
		opt:  opt.withDefaults(15*time.Second, 4*time.Second, 15*time.Second),
		base: base,
	}
}

// Source 实现Adapter接口
func (x *XHS) Source() models.Source {
	return models.SourceXHS
}

// Search 实现Adapter接口
// 搜索前先检查登录信号,未登录直接返回login_required,不把登录墙误报为超时;
// 命中风控验证页返回blocked; 两者都绝不被自动重试
func (x *XHS) Search(ctx context.Context, sess *browser.Session, text string, limit int) ([]models.Result, error) {
	tab, err := sess.OpenTab(ctx)
	if err != nil {
		return nil, attribute(err, models.SourceXHS)
	}
	defer tab.Close()

	searchURL := xhsSearchBase + url.QueryEscape(text)
	utils.Debugf("[xhs] 搜索: %s", searchURL)

	if err := tab.Navigate(ctx, searchURL, x.opt.NavTimeout); err != nil {
		return nil, attribute(err, models.SourceXHS)
	}

	// 登录预检: 只读取Cookie与DOM信号,登录态本身归浏览器配置文件所有
	if loggedIn, cerr := x.loggedIn(ctx, tab); cerr == nil && !loggedIn {
		return nil, models.NewSourceError(models.SourceXHS, models.KindLoginRequired,
			fmt.Errorf("浏览器配置文件缺少小红书登录态,请先在该浏览器中登录"))
	}

	if err := tab.WaitReady(ctx, xhsReadyJS, x.opt.InitialWait, x.opt.MaxWait); err != nil {
		var se *models.SourceError
		if errors.As(err, &se) && se.Kind == models.KindTimeout {
			// 超时的真实原因可能是登录墙或验证页,区分后再上报
			if kind, ok := x.classifyEmptyPage(ctx, tab); ok {
				return nil, models.NewSourceError(models.SourceXHS, kind,
					fmt.Errorf("小红书拒绝了本次自动化访问"))
			}
		}
		return nil, attribute(err, models.SourceXHS)
	}

	payload, err := tab.Eval(ctx, xhsExtractJS, 10*time.Second)
	if err != nil {
		return nil, attribute(err, models.SourceXHS)
	}

	return Normalize(models.SourceXHS, payload.Str(), x.base, limit), nil
}

// xhsSessionActive 登录态判定: 存在非空会话Cookie且没有弹出登录墙
// wallErr非nil表示登录墙信号读不到,此时以Cookie为准,
// 避免把求值抖动放大成登录错误
func xhsSessionActive(cookies []*proto.NetworkCookie, wallShown bool, wallErr error) bool {
	hasSession := false
	for _, c := range cookies {
		if c.Name == xhsSessionCookie && c.Value != "" {
			hasSession = true
			break
		}
	}
	if !hasSession {
		return false
	}
	if wallErr != nil {
		return true
	}
	return !wallShown
}

// loggedIn 观察标签页上的登录信号,只读取Cookie与DOM,绝不写入
func (x *XHS) loggedIn(ctx context.Context, tab *browser.Tab) (bool, error) {
	cookies, err := tab.Cookies([]string{xhsOrigin})
	if err != nil {
		return false, err
	}

	wall, wallErr := tab.Eval(ctx, xhsLoginWallJS, 5*time.Second)
	if wallErr != nil {
		utils.Debugf("[xhs] 登录墙检测失败: %v", wallErr)
	}
	return xhsSessionActive(cookies, wall.Bool(), wallErr), nil
}

// classifyEmptyPage 把"就绪超时"细分为登录墙/风控验证,否则维持原判
func (x *XHS) classifyEmptyPage(ctx context.Context, tab *browser.Tab) (models.ErrorKind, bool) {
	if wall, err := tab.Eval(ctx, xhsLoginWallJS, 3*time.Second); err == nil && wall.Bool() {
		return models.KindLoginRequired, true
	}
	if challenge, err := tab.Eval(ctx, xhsChallengeJS, 3*time.Second); err == nil && challenge.Bool() {
		return models.KindBlocked, true
	}
	return "", false
}
