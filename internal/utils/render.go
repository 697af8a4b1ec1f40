package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/RecoveryAshes/qianli/internal/models"
)

// RenderText 以紧凑文本格式输出结果
// 格式: [来源] 标题 / 作者 · 日期 · ❤ 点赞 / URL / 摘要
func RenderText(w io.Writer, results []models.Result) {
	for _, r := range results {
		tag := string(r.Source)
		indent := strings.Repeat(" ", len(tag)+3)

		fmt.Fprintf(w, "[%s] %s\n", tag, r.Title)

		var meta []string
		if r.Publisher != "" {
			meta = append(meta, r.Publisher)
		}
		if r.PublishedAt != "" {
			meta = append(meta, r.PublishedAt)
		}
		if r.Likes != "" {
			meta = append(meta, "❤ "+r.Likes)
		}
		if len(meta) > 0 {
			fmt.Fprintf(w, "%s%s\n", indent, strings.Join(meta, " · "))
		}
		if r.URL != "" {
			fmt.Fprintf(w, "%s%s\n", indent, r.URL)
		}
		if r.Snippet != "" {
			fmt.Fprintf(w, "%s%s\n", indent, r.Snippet)
		}
		fmt.Fprintln(w)
	}
}

// RenderJSON 以JSON格式输出结果,中文不转义
func RenderJSON(w io.Writer, results []models.Result) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if results == nil {
		results = []models.Result{}
	}
	return enc.Encode(results)
}

// RenderErrors 把各来源的失败原因输出到w(通常是stderr)
// 部分成功时失败原因必须可见,绝不静默丢弃
func RenderErrors(w io.Writer, resp *models.SearchResponse) {
	for _, o := range resp.Outcomes {
		if o.Err != nil {
			fmt.Fprintf(w, "[%s] 失败(%s): %v\n", o.Source, models.KindOf(o.Err), o.Err)
		}
	}
}
