package sources

import (
	"net/url"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/RecoveryAshes/qianli/internal/models"
	"github.com/RecoveryAshes/qianli/internal/utils"
)

// snippetMaxRunes 摘要截断长度
const snippetMaxRunes = 120

// Normalize 把页面脚本返回的JSON数组负载规整为Result记录
//
// 规则:
//   - title与url缺一的节点整条跳过,其余字段逐项降级为空值,绝不让整次搜索失败
//   - 相对URL基于base补全为绝对地址
//   - 同一次调用内按URL去重(同一URL绝不出现两次)
//   - limit>0时截断到limit条; 跨来源的重复不在此处处理
func Normalize(src models.Source, payload string, base *url.URL, limit int) []models.Result {
	items := gjson.Parse(payload)
	if !items.IsArray() {
		if strings.TrimSpace(payload) != "" {
			utils.Warnf("[%s] 提取负载不是JSON数组,按零结果处理", src)
		}
		return nil
	}

	seen := make(map[string]struct{})
	var results []models.Result

	items.ForEach(func(_, item gjson.Result) bool {
		title := strings.TrimSpace(item.Get("title").String())
		href := strings.TrimSpace(item.Get("url").String())
		if title == "" || href == "" {
			return true // 残缺节点,跳过继续
		}

		abs := AbsoluteURL(base, href)
		if abs == "" {
			return true
		}
		if _, dup := seen[abs]; dup {
			return true
		}
		seen[abs] = struct{}{}

		results = append(results, models.Result{
			Source:      src,
			Title:       title,
			Publisher:   strings.TrimSpace(item.Get("author").String()),
			PublishedAt: strings.TrimSpace(item.Get("date").String()),
			URL:         abs,
			Snippet:     TruncateRunes(strings.TrimSpace(item.Get("snippet").String()), snippetMaxRunes),
			Likes:       strings.TrimSpace(item.Get("likes").String()),
		})

		return limit <= 0 || len(results) < limit
	})

	return results
}

// AbsoluteURL 把可能为相对路径的href基于base补全为绝对URL
// 无法解析或非http(s)时返回空串
func AbsoluteURL(base *url.URL, href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := ref
	if base != nil {
		abs = base.ResolveReference(ref)
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	if abs.Host == "" {
		return ""
	}
	return abs.String()
}

// TruncateRunes 按rune截断,避免把多字节字符切半
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
