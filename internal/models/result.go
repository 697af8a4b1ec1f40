package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Source 内容平台来源
type Source string

const (
	// SourceWechat 微信公众号(通过搜狗微信搜索)
	SourceWechat Source = "wechat"
	// Source36kr 36氪
	Source36kr Source = "36kr"
	// SourceXHS 小红书(需要浏览器配置文件中已有登录态)
	SourceXHS Source = "xhs"
)

// SourcePriority 固定的来源优先级顺序
// 聚合结果按此顺序输出,与各来源完成的先后无关
var SourcePriority = []Source{SourceWechat, Source36kr, SourceXHS}

// ParseSource 解析来源字符串
func ParseSource(s string) (Source, error) {
	switch Source(strings.ToLower(strings.TrimSpace(s))) {
	case SourceWechat:
		return SourceWechat, nil
	case Source36kr:
		return Source36kr, nil
	case SourceXHS:
		return SourceXHS, nil
	default:
		return "", fmt.Errorf("未知的来源: %q (可选: wechat, 36kr, xhs)", s)
	}
}

// ParseSelector 解析来源选择器,"all"展开为全部来源
func ParseSelector(selector string) ([]Source, error) {
	if strings.EqualFold(strings.TrimSpace(selector), "all") {
		out := make([]Source, len(SourcePriority))
		copy(out, SourcePriority)
		return out, nil
	}
	src, err := ParseSource(selector)
	if err != nil {
		return nil, err
	}
	return []Source{src}, nil
}

// Result 单条搜索结果
// 由提取器从一个标签页的DOM状态构造,构造后不可变
// 不变式: URL始终是绝对地址,且在同一次适配器调用内唯一
type Result struct {
	Source      Source `json:"source"`
	Title       string `json:"title"`
	Publisher   string `json:"author"`
	PublishedAt string `json:"date"`
	URL         string `json:"url"`
	Snippet     string `json:"snippet,omitempty"`
	Likes       string `json:"likes,omitempty"`
}

// Query 一次搜索请求
type Query struct {
	Text    string
	Limit   int
	Sources []Source
}

// Validate 校验查询参数
func (q Query) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("搜索关键词为空")
	}
	if q.Limit < 0 {
		return fmt.Errorf("结果数量上限不能为负数: %d", q.Limit)
	}
	if len(q.Sources) == 0 {
		return fmt.Errorf("来源集合为空")
	}
	for _, s := range q.Sources {
		if _, err := ParseSource(string(s)); err != nil {
			return err
		}
	}
	return nil
}

// SourceOutcome 一次适配器调用的结果
// Results与Err最多只有一个有意义; 空结果集且Err为nil表示成功但无匹配
type SourceOutcome struct {
	Source  Source
	RunID   string
	Results []Result
	Err     error
	Elapsed time.Duration
}

// Failed 该来源本次调用是否失败
func (o SourceOutcome) Failed() bool {
	return o.Err != nil
}

// SearchResponse 聚合后的搜索响应,Outcomes按固定优先级排序
type SearchResponse struct {
	Outcomes []SourceOutcome
}

// Results 按来源优先级顺序合并所有成功来源的结果
// 各来源内部保持其自身返回顺序
func (r *SearchResponse) Results() []Result {
	var out []Result
	for _, o := range r.Outcomes {
		if o.Err == nil {
			out = append(out, o.Results...)
		}
	}
	return out
}

// Errors 各失败来源对应的错误种类
func (r *SearchResponse) Errors() map[Source]ErrorKind {
	out := make(map[Source]ErrorKind)
	for _, o := range r.Outcomes {
		if o.Err != nil {
			out[o.Source] = KindOf(o.Err)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// AllFailed 是否所有来源都失败
func (r *SearchResponse) AllFailed() bool {
	if len(r.Outcomes) == 0 {
		return true
	}
	for _, o := range r.Outcomes {
		if o.Err == nil {
			return false
		}
	}
	return true
}

// ValidateURL 验证URL为绝对的http(s)地址
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL为空")
	}
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("URL格式无效: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL协议必须为http或https: %s", urlStr)
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL缺少主机名: %s", urlStr)
	}
	return nil
}
