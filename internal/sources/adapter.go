// Package sources 各内容平台的搜索适配器
// 来源集合是封闭且很小的,用枚举变体+共享接口建模,不做开放式插件注册
package sources

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RecoveryAshes/qianli/internal/browser"
	"github.com/RecoveryAshes/qianli/internal/models"
	"github.com/RecoveryAshes/qianli/internal/utils"
)

// Adapter 单个平台的搜索契约
// 每个变体负责: 查询URL构造、结果列表定位、SPA就绪条件、反爬/登录姿态、limit语义
type Adapter interface {
	// Source 该适配器对应的来源
	Source() models.Source
	// Search 执行一次搜索,返回结构化结果或类型化失败
	// limit小于单页结果数时在提取后截断,不翻页; 无法翻页的变体只返回单页所得,不算错误
	Search(ctx context.Context, sess *browser.Session, text string, limit int) ([]models.Result, error)
}

// Options 单个适配器的等待预算,零值字段使用该变体的默认值
type Options struct {
	NavTimeout  time.Duration // 导航超时
	InitialWait time.Duration // 首次轮询前的静默等待
	MaxWait     time.Duration // 就绪条件的整体超时
}

func (o Options) withDefaults(nav, initial, max time.Duration) Options {
	if o.NavTimeout == 0 {
		o.NavTimeout = nav
	}
	if o.InitialWait == 0 {
		o.InitialWait = initial
	}
	if o.MaxWait == 0 {
		o.MaxWait = max
	}
	return o
}

// ForSources 按来源集合构造适配器,保持输入顺序
func ForSources(srcs []models.Source, opts map[models.Source]Options) ([]Adapter, error) {
	adapters := make([]Adapter, 0, len(srcs))
	for _, src := range srcs {
		var o Options
		if opts != nil {
			o = opts[src]
		}
		switch src {
		case models.SourceWechat:
			adapters = append(adapters, NewWechat(o))
		case models.Source36kr:
			adapters = append(adapters, New36kr(o))
		case models.SourceXHS:
			adapters = append(adapters, NewXHS(o))
		default:
			return nil, fmt.Errorf("未知的来源: %q", src)
		}
	}
	return adapters, nil
}

// runExtraction 各变体共用的导航/等待/提取骨架
// 就绪等待成功但提取不到任何结果节点时按零结果处理,不算错误
func runExtraction(ctx context.Context, tab *browser.Tab, src models.Source,
	searchURL, readyJS, extractJS string, opt Options) (string, error) {

	if err := tab.Navigate(ctx, searchURL, opt.NavTimeout); err != nil {
		return "", attribute(err, src)
	}

	if err := tab.WaitReady(ctx, readyJS, opt.InitialWait, opt.MaxWait); err != nil {
		return "", attribute(err, src)
	}

	payload, err := tab.Eval(ctx, extractJS, 10*time.Second)
	if err != nil {
		return "", attribute(err, src)
	}

	utils.Debugf("[%s] 提取完成, 负载%d字节", src, len(payload.Str()))
	return payload.Str(), nil
}

// attribute 把标签页层的匿名失败归属到具体来源
func attribute(err error, src models.Source) error {
	if err == nil {
		return nil
	}
	var se *models.SourceError
	if errors.As(err, &se) {
		return models.NewSourceError(src, se.Kind, se.Err)
	}
	return models.NewSourceError(src, models.KindUnknown, err)
}
