package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/RecoveryAshes/qianli/internal/browser"
	"github.com/RecoveryAshes/qianli/internal/models"
	"github.com/RecoveryAshes/qianli/internal/sources"
	"github.com/RecoveryAshes/qianli/internal/utils"
)

// Aggregator 聚合器
// 职责: 把一次查询并发扇出到多个来源适配器,合并结果并容忍部分失败
// 各来源彼此独立且都很慢,一个来源的失败或超时绝不拖累或阻塞其他来源
type Aggregator struct {
	sess     *browser.Session
	adapters []sources.Adapter

	// 单个来源一次调用的整体超时
	sourceTimeout time.Duration

	// 每收到一个来源的结果就回调一次,供CLI层驱动进度条,可为nil
	onOutcome func(models.Source)
}

// NewAggregator 创建聚合器
func NewAggregator(sess *browser.Session, adapters []sources.Adapter, sourceTimeout time.Duration) *Aggregator {
	if sourceTimeout <= 0 {
		sourceTimeout = 60 * time.Second
	}
	return &Aggregator{
		sess:          sess,
		adapters:      adapters,
		sourceTimeout: sourceTimeout,
	}
}

// OnOutcome 注册来源完成回调
func (a *Aggregator) OnOutcome(fn func(models.Source)) {
	a.onOutcome = fn
}

// Search 执行一次聚合查询
//
// 每个适配器在独立goroutine中运行,携带自己的超时,通过outcome值传递结果(消息传递,
// 不共享可变状态); 输出按固定来源优先级排序,与完成先后无关,各来源内部保持其自身
// 的相关性排序。所有来源都失败时整体失败; 至少一个成功时为部分成功,失败来源的原因
// 一并带回,绝不静默丢弃
func (a *Aggregator) Search(ctx context.Context, q models.Query) (*models.SearchResponse, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if len(a.adapters) == 0 {
		return nil, fmt.Errorf("没有可用的来源适配器")
	}

	outcomes := make(chan models.SourceOutcome, len(a.adapters))
	for _, ad := range a.adapters {
		go func(ad sources.Adapter) {
			outcomes <- a.runAdapter(ctx, ad, q)
		}(ad)
	}

	collected := make([]models.SourceOutcome, 0, len(a.adapters))
	for range a.adapters {
		o := <-outcomes
		collected = append(collected, o)
		if a.onOutcome != nil {
			a.onOutcome(o.Source)
		}
		// 共享控制连接本身死亡时任何来源都无法继续,立即升级中止
		if o.Err != nil && models.Fatal(models.KindOf(o.Err)) {
			return nil, o.Err
		}
	}

	// 固定优先级排序,不按完成时间
	rank := make(map[models.Source]int, len(models.SourcePriority))
	for i, s := range models.SourcePriority {
		rank[s] = i
	}
	sort.SliceStable(collected, func(i, j int) bool {
		return rank[collected[i].Source] < rank[collected[j].Source]
	})

	resp := &models.SearchResponse{Outcomes: collected}
	if resp.AllFailed() {
		return resp, fmt.Errorf("所有来源均失败")
	}
	return resp, nil
}

// runAdapter 运行单个适配器并把结果折叠为SourceOutcome
// navigation/timeout类失败用新标签页重试一次; blocked/login_required绝不重试
func (a *Aggregator) runAdapter(ctx context.Context, ad sources.Adapter, q models.Query) models.SourceOutcome {
	src := ad.Source()
	runID := uuid.New().String()[:8]
	start := time.Now()

	results, err := a.invoke(ctx, ad, q)
	if err != nil && models.Retryable(models.KindOf(err)) {
		utils.Warnf("[%s] 首次调用失败(%s),用新标签页重试一次: %v",
			src, models.KindOf(err), err)
		results, err = a.invoke(ctx, ad, q)
	}

	elapsed := time.Since(start)
	if err != nil {
		utils.Warnf("[%s] 搜索失败 (run=%s, 耗时%.1fs): %v", src, runID, elapsed.Seconds(), err)
	} else {
		utils.Infof("[%s] 搜索完成 (run=%s): %d条结果, 耗时%.1fs",
			src, runID, len(results), elapsed.Seconds())
	}

	return models.SourceOutcome{
		Source:  src,
		RunID:   runID,
		Results: results,
		Err:     err,
		Elapsed: elapsed,
	}
}

func (a *Aggregator) invoke(ctx context.Context, ad sources.Adapter, q models.Query) ([]models.Result, error) {
	invokeCtx, cancel := context.WithTimeout(ctx, a.sourceTimeout)
	defer cancel()
	return ad.Search(invokeCtx, a.sess, q.Text, q.Limit)
}
